package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/escrowpi/escrowpi/internal/fees"
	"github.com/escrowpi/escrowpi/internal/txstate"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *EscrowPiClient
}

// NewHandlers creates a new Handlers instance. client may be nil when only
// the calculators are served.
func NewHandlers(client *EscrowPiClient) *Handlers {
	return &Handlers{client: client}
}

// --- Calculators ---

// HandleFeeBreakdown prices an order.
func (h *Handlers) HandleFeeBreakdown(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	amount, err := fees.ParseAmount(req.GetString("amount", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid amount: %v", err)), nil
	}
	b, err := fees.ComputeBreakdown(amount)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatBreakdown(b)), nil
}

// HandleSolveBaseAmount inverts the breakdown.
func (h *Handlers) HandleSolveBaseAmount(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	total, err := fees.ParseAmount(req.GetString("total", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid total: %v", err)), nil
	}
	base, err := fees.SolveBaseFromTotal(total)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b := fees.MustBreakdown(base)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Base amount: %s pi\n\n", fees.Format(base))
	sb.WriteString(formatBreakdown(b))
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleDisputeSplit settles a dispute at a refund percentage.
func (h *Handlers) HandleDisputeSplit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	amount, err := fees.ParseAmount(req.GetString("amount", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid amount: %v", err)), nil
	}
	percent, err := fees.ParsePercent(req.GetString("percent", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid percent: %v", err)), nil
	}
	split, err := fees.ComputeDisputeSplit(amount, percent)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Refund of %s%% on a %s pi order:\n", percent.StringFixed(fees.PercentPlaces), fees.Format(amount))
	fmt.Fprintf(&sb, "  Payer refund:     %s pi\n", fees.Format(split.PayerRefund))
	fmt.Fprintf(&sb, "  Completion stake: %s pi (returned)\n", fees.Format(split.CompletionStake))
	if split.NetworkRefund.IsPositive() {
		fmt.Fprintf(&sb, "  Network fee:      %s pi (returned)\n", fees.Format(split.NetworkRefund))
	}
	fmt.Fprintf(&sb, "  Total refunded:   %s pi\n", fees.Format(split.TotalRefunded))
	fmt.Fprintf(&sb, "  Payee receives:   %s pi\n", fees.Format(split.PayeeReceives))
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleCancelRefund prices cancelling a paid order.
func (h *Handlers) HandleCancelRefund(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	amount, err := fees.ParseAmount(req.GetString("amount", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid amount: %v", err)), nil
	}
	r, err := fees.ComputeCancelRefund(amount)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Cancelling a paid %s pi order refunds %s pi:\n"+
			"  Base:             %s pi\n"+
			"  Completion stake: %s pi\n"+
			"  Network refund:   %s pi\n"+
			"The escrow fee is kept.",
		fees.Format(amount), fees.Format(r.Total),
		fees.Format(r.Base), fees.Format(r.CompletionStake), fees.Format(r.NetworkRefund))), nil
}

// HandleLegalActions lists what a role may do in a status.
func (h *Handlers) HandleLegalActions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := txstate.ParseStatus(req.GetString("status", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	role := txstate.Role(req.GetString("role", ""))
	if role != txstate.RolePayer && role != txstate.RolePayee {
		return mcp.NewToolResultError("role must be payer or payee"), nil
	}

	actions := txstate.LegalActions(status, role)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s), as %s:\n", status.Label(), status, role)
	fmt.Fprintf(&sb, "  %s\n", txstate.Prompt(status, role))
	if len(actions) == 0 {
		sb.WriteString("No actions available.")
		return mcp.NewToolResultText(sb.String()), nil
	}
	for _, a := range actions {
		to, _ := txstate.Apply(status, role, a)
		fmt.Fprintf(&sb, "  - %s (%s) -> %s\n", a, a.Label(), to)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// --- Order tools ---

func (h *Handlers) noClient() *mcp.CallToolResult {
	return mcp.NewToolResultError("EscrowPi API is not configured")
}

// HandleListOrders lists the user's orders.
func (h *Handlers) HandleListOrders(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.client == nil {
		return h.noClient(), nil
	}
	raw, err := h.client.ListOrders(ctx, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list orders: %v", err)), nil
	}
	text, err := formatOrderList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse orders: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

// HandleGetOrder shows one order.
func (h *Handlers) HandleGetOrder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.client == nil {
		return h.noClient(), nil
	}
	id := req.GetString("order_id", "")
	if id == "" {
		return mcp.NewToolResultError("order_id is required"), nil
	}
	raw, err := h.client.GetOrder(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get order: %v", err)), nil
	}
	return orderResult(raw)
}

// HandleCreateOrder starts an order.
func (h *Handlers) HandleCreateOrder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.client == nil {
		return h.noClient(), nil
	}
	counterparty := req.GetString("counterparty", "")
	if counterparty == "" {
		return mcp.NewToolResultError("counterparty is required"), nil
	}
	amount := req.GetString("amount", "")
	if amount == "" {
		return mcp.NewToolResultError("amount is required"), nil
	}
	raw, err := h.client.CreateOrder(ctx, counterparty, req.GetString("type", "request"), amount, req.GetString("note", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create order: %v", err)), nil
	}
	return orderResult(raw)
}

// HandleActOnOrder applies a lifecycle action.
func (h *Handlers) HandleActOnOrder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.client == nil {
		return h.noClient(), nil
	}
	id := req.GetString("order_id", "")
	action := req.GetString("action", "")
	expected := req.GetString("expected_status", "")
	if id == "" || action == "" || expected == "" {
		return mcp.NewToolResultError("order_id, action and expected_status are required"), nil
	}
	raw, err := h.client.Act(ctx, id, action, expected)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Action %s failed: %v", action, err)), nil
	}
	return orderResult(raw)
}

// HandleNegotiateRefund drives the dispute centre.
func (h *Handlers) HandleNegotiateRefund(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.client == nil {
		return h.noClient(), nil
	}
	id := req.GetString("order_id", "")
	if id == "" {
		return mcp.NewToolResultError("order_id is required"), nil
	}
	op := req.GetString("op", "")
	percent := req.GetString("percent", "")
	switch op {
	case "propose", "accept":
		if percent == "" {
			return mcp.NewToolResultError("percent is required to " + op), nil
		}
	case "withdraw", "decline":
		percent = ""
	default:
		return mcp.NewToolResultError("op must be propose, accept, withdraw or decline"), nil
	}

	raw, err := h.client.Dispute(ctx, id, op, percent)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Refund %s failed: %v", op, err)), nil
	}
	return orderResult(raw)
}

// HandleAddComment posts a message.
func (h *Handlers) HandleAddComment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.client == nil {
		return h.noClient(), nil
	}
	id := req.GetString("order_id", "")
	text := req.GetString("text", "")
	if id == "" || text == "" {
		return mcp.NewToolResultError("order_id and text are required"), nil
	}
	if _, err := h.client.AddComment(ctx, id, text); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to comment: %v", err)), nil
	}
	return mcp.NewToolResultText("Comment posted to " + id), nil
}

// --- Formatting helpers ---

func formatBreakdown(b fees.Breakdown) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "  Base:             %s pi\n", fees.Format(b.Base))
	fmt.Fprintf(&sb, "  Completion stake: %s pi\n", fees.Format(b.CompletionStake))
	fmt.Fprintf(&sb, "  Network fee:      %s pi\n", fees.Format(b.NetworkFee))
	fmt.Fprintf(&sb, "  Escrow fee:       %s pi\n", fees.Format(b.EscrowFee))
	fmt.Fprintf(&sb, "  Total:            %s pi", fees.Format(b.Total))
	return sb.String()
}

// orderSummary is the part of the API's order view the tools print.
type orderSummary struct {
	ID           string `json:"id"`
	Role         string `json:"role"`
	Counterparty string `json:"counterparty"`
	Amount       string `json:"amount"`
	Status       string `json:"status"`
	StatusLabel  string `json:"statusLabel"`
	Prompt       string `json:"prompt"`
	Actions      []struct {
		Action string `json:"action"`
		Label  string `json:"label"`
	} `json:"actions"`
	Breakdown struct {
		Total string `json:"total"`
	} `json:"breakdown"`
	Dispute *struct {
		Status          string `json:"status"`
		ProposalPercent string `json:"proposalPercent"`
		ProposedByUser  string `json:"proposedByUser"`
	} `json:"dispute"`
	Comments []struct {
		Author string `json:"author"`
		Text   string `json:"text"`
	} `json:"comments"`
}

func orderResult(raw json.RawMessage) (*mcp.CallToolResult, error) {
	var resp struct {
		Order orderSummary `json:"order"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Order.ID == "" {
		return mcp.NewToolResultText(formatJSON(raw)), nil
	}
	return mcp.NewToolResultText(formatOrder(resp.Order)), nil
}

func formatOrder(o orderSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Order %s: %s pi with %s (you are the %s)\n", o.ID, o.Amount, o.Counterparty, o.Role)
	fmt.Fprintf(&sb, "Status: %s\n", o.StatusLabel)
	if o.Prompt != "" {
		fmt.Fprintf(&sb, "%s\n", o.Prompt)
	}
	if o.Breakdown.Total != "" {
		fmt.Fprintf(&sb, "Payer total: %s pi\n", o.Breakdown.Total)
	}
	if len(o.Actions) > 0 {
		names := make([]string, 0, len(o.Actions))
		for _, a := range o.Actions {
			names = append(names, a.Action)
		}
		fmt.Fprintf(&sb, "Actions: %s\n", strings.Join(names, ", "))
	}
	if d := o.Dispute; d != nil {
		if d.ProposalPercent != "" {
			fmt.Fprintf(&sb, "Refund proposal: %s%% by %s (%s)\n", d.ProposalPercent, d.ProposedByUser, d.Status)
		} else {
			fmt.Fprintf(&sb, "Refund proposal: none\n")
		}
	}
	if len(o.Comments) > 0 {
		sb.WriteString("Comments:\n")
		for _, c := range o.Comments {
			fmt.Fprintf(&sb, "  %s: %s\n", c.Author, c.Text)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatOrderList(raw json.RawMessage) (string, error) {
	var resp struct {
		Orders []orderSummary `json:"orders"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Orders) == 0 {
		return "No orders yet.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d order(s):\n", len(resp.Orders))
	for i, o := range resp.Orders {
		fmt.Fprintf(&sb, "%d. %s | %s pi with %s | %s (%s)\n", i+1, o.ID, o.Amount, o.Counterparty, o.StatusLabel, o.Role)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}
