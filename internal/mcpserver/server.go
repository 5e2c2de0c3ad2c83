package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all trustrail tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("trustrail", "0.1.0")
	client := NewTrustrailClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolGetTrustScore, h.HandleGetTrustScore)
	s.AddTool(ToolGetAccountHistory, h.HandleGetAccountHistory)
	s.AddTool(ToolCrossLookup, h.HandleCrossLookup)
	s.AddTool(ToolFlagAccount, h.HandleFlagAccount)
	s.AddTool(ToolCheckDecision, h.HandleCheckDecision)

	return s
}
