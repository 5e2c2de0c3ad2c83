package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the trustrail API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
}

// TrustrailClient is a pure HTTP client for the trustrail API.
type TrustrailClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewTrustrailClient creates a new client for the trustrail API.
func NewTrustrailClient(cfg Config) *TrustrailClient {
	return &TrustrailClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *TrustrailClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// CalculateScore recomputes and returns an account's trust score.
func (c *TrustrailClient) CalculateScore(ctx context.Context, account, deviceID string) (json.RawMessage, error) {
	path := "/v1/accounts/" + url.PathEscape(account) + "/score"
	var body any
	if deviceID != "" {
		body = map[string]string{"deviceId": deviceID}
	}
	return c.doRequest(ctx, http.MethodPost, path, nil, body)
}

// GetProfile returns an account's stored trust profile.
func (c *TrustrailClient) GetProfile(ctx context.Context, account string) (json.RawMessage, error) {
	path := "/v1/accounts/" + url.PathEscape(account) + "/profile"
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// GetHistory returns an account's audit trail, newest first.
func (c *TrustrailClient) GetHistory(ctx context.Context, account, eventType string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if eventType != "" {
		q.Set("type", eventType)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/accounts/" + url.PathEscape(account) + "/history"
	return c.doRequest(ctx, http.MethodGet, path, q, nil)
}

// CrossLookup returns groups of accounts sharing a hashed identifier.
func (c *TrustrailClient) CrossLookup(ctx context.Context, referenceType string, minAccounts int) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("type", referenceType)
	if minAccounts > 0 {
		q.Set("min_accounts", strconv.Itoa(minAccounts))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/references/cross-lookup", q, nil)
}

// FlagAccount attaches a risk flag to an account.
func (c *TrustrailClient) FlagAccount(ctx context.Context, account, reason string) (json.RawMessage, error) {
	path := "/v1/accounts/" + url.PathEscape(account) + "/flags"
	body := map[string]string{"reason": reason}
	return c.doRequest(ctx, http.MethodPost, path, nil, body)
}

// Decide returns an enforcement decision for an account.
func (c *TrustrailClient) Decide(ctx context.Context, account, deviceID string) (json.RawMessage, error) {
	body := map[string]string{"account": account}
	if deviceID != "" {
		body["deviceId"] = deviceID
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/decision", nil, body)
}
