package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the EscrowPi MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

// Calculators. These run locally and need no account.

var ToolFeeBreakdown = mcp.NewTool("fee_breakdown",
	mcp.WithDescription(
		"Show what a payer is charged for an EscrowPi order of a given base amount: "+
			"the base, a 10% completion stake (minimum 1 pi), the 0.03 pi network fee, "+
			"a 3% escrow fee (minimum 0.1 pi) and the total."),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Base amount in pi, e.g. '74.61'")),
)

var ToolSolveBaseAmount = mcp.NewTool("solve_base_amount",
	mcp.WithDescription(
		"Find the base amount whose fee breakdown totals the given figure. "+
			"Use this when the user knows what they want to pay in total."),
	mcp.WithString("total",
		mcp.Required(),
		mcp.Description("Total the payer should be charged, in pi")),
)

var ToolDisputeSplit = mcp.NewTool("dispute_split",
	mcp.WithDescription(
		"Show how a disputed order settles if a refund percentage is agreed: "+
			"what the payer gets back, what the payee receives, and the completion stake refund."),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Base amount of the order in pi")),
	mcp.WithString("percent",
		mcp.Required(),
		mcp.Description("Refund percentage to the payer, 0 to 100")),
)

var ToolCancelRefund = mcp.NewTool("cancel_refund",
	mcp.WithDescription(
		"Show what the payer gets back if they cancel a paid order before it is fulfilled."),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Base amount of the order in pi")),
)

var ToolLegalActions = mcp.NewTool("legal_actions",
	mcp.WithDescription(
		"List the actions a payer or payee may take on an order in a given status."),
	mcp.WithString("status",
		mcp.Required(),
		mcp.Description("Order status"),
		mcp.Enum("initiated", "requested", "paid", "fulfilled", "disputed", "cancelled", "declined", "released", "expired")),
	mcp.WithString("role",
		mcp.Required(),
		mcp.Description("The user's side of the order"),
		mcp.Enum("payer", "payee")),
)

// Order tools. These call the EscrowPi API as the configured user.

var ToolListOrders = mcp.NewTool("list_orders",
	mcp.WithDescription("List the user's EscrowPi orders, newest first, with status and counterparty."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of orders to return (default 20)")),
)

var ToolGetOrder = mcp.NewTool("get_order",
	mcp.WithDescription(
		"Get one order as the user sees it: role, status, available actions, fee breakdown, "+
			"dispute state and comments."),
	mcp.WithString("order_id",
		mcp.Required(),
		mcp.Description("Order number, e.g. 'EP3f9c0a1b2c4d'")),
)

var ToolCreateOrder = mcp.NewTool("create_order",
	mcp.WithDescription(
		"Start an order with another Pi user. 'request' asks them for pi; 'send' pays them "+
			"into escrow."),
	mcp.WithString("counterparty",
		mcp.Required(),
		mcp.Description("The other user's Pi username")),
	mcp.WithString("type",
		mcp.Required(),
		mcp.Enum("send", "request")),
	mcp.WithString("amount",
		mcp.Required(),
		mcp.Description("Base amount in pi")),
	mcp.WithString("note",
		mcp.Description("Optional note shown to both parties")),
)

var ToolActOnOrder = mcp.NewTool("act_on_order",
	mcp.WithDescription(
		"Take a lifecycle action on an order. Pass the status you last saw; if the order "+
			"has moved on the action is refused and you should fetch it again."),
	mcp.WithString("order_id",
		mcp.Required()),
	mcp.WithString("action",
		mcp.Required(),
		mcp.Enum("accept", "reject", "cancel", "fulfill", "dispute", "release")),
	mcp.WithString("expected_status",
		mcp.Required(),
		mcp.Description("Status of the order when you last fetched it")),
)

var ToolNegotiateRefund = mcp.NewTool("negotiate_refund",
	mcp.WithDescription(
		"Negotiate the refund on a disputed order. 'propose' offers a percentage, 'accept' "+
			"agrees to the other party's offer (the percent must match it) and releases the order, "+
			"'withdraw' retracts your own offer, 'decline' rejects theirs."),
	mcp.WithString("order_id",
		mcp.Required()),
	mcp.WithString("op",
		mcp.Required(),
		mcp.Enum("propose", "accept", "withdraw", "decline")),
	mcp.WithString("percent",
		mcp.Description("Refund percentage, required for propose and accept")),
)

var ToolAddComment = mcp.NewTool("add_comment",
	mcp.WithDescription("Post a message to an order's comment thread."),
	mcp.WithString("order_id",
		mcp.Required()),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("Message, at most 500 characters")),
)
