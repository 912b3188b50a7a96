// Package txstate is the EscrowPi transaction lifecycle.
//
// Flow:
//  1. Payee requests pi, or payer starts a send (initiated)
//  2. Payer accepts the request and funds the escrow (paid)
//  3. Payee marks the purchased item(s) fulfilled
//  4. Payer confirms receipt and the escrow is released to the payee
//  5. Either side may dispute; the dispute centre negotiates a refund split
//
// The package is pure: it decides which actions a role may take and what
// status they lead to. Persisting a transition is the caller's job.
package txstate

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when an action is not legal for the
// current status and role.
var ErrInvalidTransition = errors.New("invalid transition")

// Status is the lifecycle state of an order.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusRequested Status = "requested"
	StatusPaid      Status = "paid"
	StatusFulfilled Status = "fulfilled"
	StatusDisputed  Status = "disputed"
	StatusCancelled Status = "cancelled" // terminal
	StatusDeclined  Status = "declined"  // terminal
	StatusReleased  Status = "released"  // terminal
	StatusExpired   Status = "expired"   // terminal
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusInitiated,
	StatusRequested,
	StatusPaid,
	StatusFulfilled,
	StatusDisputed,
	StatusCancelled,
	StatusDeclined,
	StatusReleased,
	StatusExpired,
}

// ParseStatus converts a wire value into a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// IsTerminal reports whether no further actions exist for the status.
func IsTerminal(s Status) bool {
	switch s {
	case StatusCancelled, StatusDeclined, StatusReleased, StatusExpired:
		return true
	}
	return false
}

// Label is the user-facing name of the status.
func (s Status) Label() string {
	switch s {
	case StatusInitiated:
		return "Initiated"
	case StatusRequested:
		return "Requested"
	case StatusPaid:
		return "Paid"
	case StatusFulfilled:
		return "Fulfilled"
	case StatusDisputed:
		return "Disputed"
	case StatusCancelled:
		return "Cancelled"
	case StatusDeclined:
		return "Declined"
	case StatusReleased:
		return "Released"
	case StatusExpired:
		return "Expired"
	}
	return string(s)
}

// Role is the viewer's side of an order. It is derived, never stored.
type Role string

const (
	RolePayer Role = "payer"
	RolePayee Role = "payee"
)

// Roles lists both roles.
var Roles = []Role{RolePayer, RolePayee}

// Counterpart returns the other role.
func (r Role) Counterpart() Role {
	if r == RolePayer {
		return RolePayee
	}
	return RolePayer
}

// ResolveRole derives the viewer's role: payer when the viewer is the
// payer, payee otherwise.
func ResolveRole(payerUsername, viewerUsername string) Role {
	if payerUsername == viewerUsername {
		return RolePayer
	}
	return RolePayee
}

// Action is something a party can do to an order.
type Action string

const (
	ActionCancel        Action = "cancel"
	ActionAccept        Action = "accept"
	ActionReject        Action = "reject"
	ActionFulfill       Action = "fulfill"
	ActionDispute       Action = "dispute"
	ActionRelease       Action = "release"
	ActionProposeRefund Action = "propose_refund"
	ActionAcceptRefund  Action = "accept_refund"
)

// Actions lists every action.
var Actions = []Action{
	ActionCancel,
	ActionAccept,
	ActionReject,
	ActionFulfill,
	ActionDispute,
	ActionRelease,
	ActionProposeRefund,
	ActionAcceptRefund,
}

// ParseAction converts a wire value into an Action.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Label is the button text for the action.
func (a Action) Label() string {
	switch a {
	case ActionCancel:
		return "Cancel"
	case ActionAccept:
		return "Accept"
	case ActionReject:
		return "Reject"
	case ActionFulfill:
		return "Fulfilled"
	case ActionDispute:
		return "Dispute"
	case ActionRelease:
		return "Received"
	case ActionProposeRefund:
		return "Send Proposal"
	case ActionAcceptRefund:
		return "Accept Proposal"
	}
	return string(a)
}

// RequiresPayment reports whether the action only commits after the
// payment provider reports success.
func RequiresPayment(a Action) bool {
	return a == ActionAccept
}
