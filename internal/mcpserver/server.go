package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all EscrowPi tools
// registered. Order tools are left out when no API is configured.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("escrowpi", "1.0.0")
	h := NewHandlers(nil)

	s.AddTool(ToolFeeBreakdown, h.HandleFeeBreakdown)
	s.AddTool(ToolSolveBaseAmount, h.HandleSolveBaseAmount)
	s.AddTool(ToolDisputeSplit, h.HandleDisputeSplit)
	s.AddTool(ToolCancelRefund, h.HandleCancelRefund)
	s.AddTool(ToolLegalActions, h.HandleLegalActions)

	if cfg.APIURL == "" {
		return s
	}
	h.client = NewEscrowPiClient(cfg)

	s.AddTool(ToolListOrders, h.HandleListOrders)
	s.AddTool(ToolGetOrder, h.HandleGetOrder)
	s.AddTool(ToolCreateOrder, h.HandleCreateOrder)
	s.AddTool(ToolActOnOrder, h.HandleActOnOrder)
	s.AddTool(ToolNegotiateRefund, h.HandleNegotiateRefund)
	s.AddTool(ToolAddComment, h.HandleAddComment)

	return s
}
