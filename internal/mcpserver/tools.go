package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the trustrail MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolGetTrustScore = mcp.NewTool("get_trust_score",
	mcp.WithDescription(
		"Calculate the trust score for an account. "+
			"Returns the weighted score (0-100), tier (unranked/bronze/silver/gold/platinum), "+
			"per-feature component values, and improvement recommendations."),
	mcp.WithString("account",
		mcp.Required(),
		mcp.Description("The account handle (e.g. '@alice')")),
	mcp.WithString("device_id",
		mcp.Description("Optional device identifier to include attested device health in the score")),
)

var ToolGetAccountHistory = mcp.NewTool("get_account_history",
	mcp.WithDescription(
		"Fetch an account's audit trail, newest first. "+
			"Shows logins, payments, gateway links, risk flags, and other recorded events."),
	mcp.WithString("account",
		mcp.Required(),
		mcp.Description("The account handle (e.g. '@alice')")),
	mcp.WithString("event_type",
		mcp.Description("Filter by event type (e.g. 'login', 'payment_success', 'fraud_flag', 'suspicious_activity')")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of events to return (default 20)")),
)

var ToolCrossLookup = mcp.NewTool("cross_lookup",
	mcp.WithDescription(
		"Find groups of accounts sharing the same hashed identifier (phone, email, or device). "+
			"Shared identifiers across many accounts are a fraud-ring signal."),
	mcp.WithString("reference_type",
		mcp.Required(),
		mcp.Description("Identifier type to group by: 'phone_hash', 'email_hash', or 'device_id'")),
	mcp.WithNumber("min_accounts",
		mcp.Description("Only return groups with at least this many accounts (default 2)")),
)

var ToolFlagAccount = mcp.NewTool("flag_account",
	mcp.WithDescription(
		"Attach a risk flag to an account. Flags raise the account's risk points, "+
			"lower its security and financial trust components, and can trigger webhook alerts. "+
			"Reasons like 'fraud_confirmed', 'chargeback' or 'stolen_card' also force block decisions."),
	mcp.WithString("account",
		mcp.Required(),
		mcp.Description("The account handle (e.g. '@alice')")),
	mcp.WithString("reason",
		mcp.Required(),
		mcp.Description("Why the account is being flagged (e.g. 'chargeback', 'suspicious_velocity')")),
)

var ToolCheckDecision = mcp.NewTool("check_decision",
	mcp.WithDescription(
		"Get an enforcement decision (allow/throttle/block) for an account. "+
			"Recomputes the trust score and applies the action policy including high-severity flag checks."),
	mcp.WithString("account",
		mcp.Required(),
		mcp.Description("The account handle (e.g. '@alice')")),
	mcp.WithString("device_id",
		mcp.Description("Optional device identifier to include in the score")),
)
