package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *TrustrailClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *TrustrailClient) *Handlers {
	return &Handlers{client: client}
}

// HandleGetTrustScore calculates and formats an account's trust score.
func (h *Handlers) HandleGetTrustScore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	account := req.GetString("account", "")
	if account == "" {
		return mcp.NewToolResultError("account is required"), nil
	}
	deviceID := req.GetString("device_id", "")

	raw, err := h.client.CalculateScore(ctx, account, deviceID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to calculate score: %v", err)), nil
	}

	text, err := formatScore(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse score: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetAccountHistory fetches and formats an account's audit trail.
func (h *Handlers) HandleGetAccountHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	account := req.GetString("account", "")
	if account == "" {
		return mcp.NewToolResultError("account is required"), nil
	}
	eventType := req.GetString("event_type", "")
	limit := req.GetInt("limit", 20)

	raw, err := h.client.GetHistory(ctx, account, eventType, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to fetch history: %v", err)), nil
	}

	text, err := formatHistory(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse history: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleCrossLookup finds accounts sharing hashed identifiers.
func (h *Handlers) HandleCrossLookup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	refType := req.GetString("reference_type", "")
	if refType == "" {
		return mcp.NewToolResultError("reference_type is required"), nil
	}
	minAccounts := req.GetInt("min_accounts", 0)

	raw, err := h.client.CrossLookup(ctx, refType, minAccounts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Cross lookup failed: %v", err)), nil
	}

	text, err := formatGroups(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse groups: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleFlagAccount attaches a risk flag to an account.
func (h *Handlers) HandleFlagAccount(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	account := req.GetString("account", "")
	if account == "" {
		return mcp.NewToolResultError("account is required"), nil
	}
	reason := req.GetString("reason", "")
	if reason == "" {
		return mcp.NewToolResultError("reason is required"), nil
	}

	raw, err := h.client.FlagAccount(ctx, account, reason)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to flag account: %v", err)), nil
	}

	var flag map[string]any
	if err := json.Unmarshal(raw, &flag); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse flag: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Account %s flagged.\n"+
			"Flag ID: %s\n"+
			"Reason: %s\n\n"+
			"Run get_trust_score to see the updated score.",
		account, getString(flag, "id"), getString(flag, "reason"))), nil
}

// HandleCheckDecision returns an enforcement decision for an account.
func (h *Handlers) HandleCheckDecision(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	account := req.GetString("account", "")
	if account == "" {
		return mcp.NewToolResultError("account is required"), nil
	}
	deviceID := req.GetString("device_id", "")

	raw, err := h.client.Decide(ctx, account, deviceID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Decision failed: %v", err)), nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse decision: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Decision for %s:\n", account)
	fmt.Fprintf(&sb, "  Action: %s\n", getString(m, "action"))
	if v, ok := getFloat(m, "score"); ok {
		fmt.Fprintf(&sb, "  Score: %.2f (%s)\n", v, getString(m, "tier"))
	}
	if v := getString(m, "reason"); v != "" {
		fmt.Fprintf(&sb, "  Reason: %s\n", v)
	}

	return mcp.NewToolResultText(sb.String()), nil
}

// --- Formatting helpers ---

func formatScore(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Trust score for %s:\n", getString(m, "accountId"))
	if v, ok := getFloat(m, "score"); ok {
		fmt.Fprintf(&sb, "  Score: %.2f\n", v)
	}
	fmt.Fprintf(&sb, "  Tier: %s\n", getString(m, "tier"))

	if components, ok := m["components"].(map[string]any); ok && len(components) > 0 {
		sb.WriteString("\nComponents:\n")
		for _, name := range []string{"device_health", "activity", "social_influence", "financial_trust", "security_score", "longevity"} {
			if v, ok := components[name].(float64); ok {
				fmt.Fprintf(&sb, "  %-16s %.1f\n", name, v)
			}
		}
	}

	if recs, ok := m["recommendations"].([]any); ok && len(recs) > 0 {
		sb.WriteString("\nRecommendations:\n")
		for _, r := range recs {
			rm, ok := r.(map[string]any)
			if !ok {
				continue
			}
			gain, _ := getFloat(rm, "potentialGain", "gain")
			fmt.Fprintf(&sb, "  - %s (+%.1f)\n", getString(rm, "message", "action"), gain)
		}
	}

	return sb.String(), nil
}

func formatHistory(raw json.RawMessage) (string, error) {
	var resp struct {
		AccountID string           `json:"accountId"`
		Events    []map[string]any `json:"events"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if len(resp.Events) == 0 {
		return fmt.Sprintf("No events recorded for %s.", resp.AccountID), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d event(s) for %s (newest first):\n\n", len(resp.Events), resp.AccountID)
	for _, e := range resp.Events {
		fmt.Fprintf(&sb, "  %s  %s", getString(e, "createdAt"), getString(e, "eventType"))
		if gw := getString(e, "gateway"); gw != "" {
			fmt.Fprintf(&sb, "  via %s", gw)
		}
		if v, ok := getFloat(e, "amountCents"); ok && v != 0 {
			fmt.Fprintf(&sb, "  %.2f", v/100)
		}
		if ok, exists := e["success"].(bool); exists && !ok {
			sb.WriteString("  [failed]")
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func formatGroups(raw json.RawMessage) (string, error) {
	var resp struct {
		Groups []map[string]any `json:"groups"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if len(resp.Groups) == 0 {
		return "No shared identifiers found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d shared identifier group(s):\n\n", len(resp.Groups))
	for i, g := range resp.Groups {
		count, _ := getFloat(g, "count")
		fmt.Fprintf(&sb, "%d. %s %s: %.0f account(s)\n", i+1, getString(g, "referenceType"), truncateHash(getString(g, "valueHash")), count)
		if accounts, ok := g["accountIds"].([]any); ok {
			for _, a := range accounts {
				if s, ok := a.(string); ok {
					fmt.Fprintf(&sb, "   %s\n", s)
				}
			}
		}
		if i < len(resp.Groups)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func truncateHash(h string) string {
	if len(h) > 12 {
		return h[:12] + "..."
	}
	return h
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
