package txstate

import "fmt"

type edge struct {
	action Action
	to     Status
}

// transitions is keyed by (status, role). Pairs that are absent have no
// legal actions; terminal statuses are never keys.
var transitions = map[Status]map[Role][]edge{
	StatusInitiated: {
		RolePayer: {{ActionCancel, StatusCancelled}},
		RolePayee: {{ActionCancel, StatusCancelled}},
	},
	StatusRequested: {
		RolePayer: {{ActionAccept, StatusPaid}, {ActionReject, StatusDeclined}},
		RolePayee: {{ActionCancel, StatusCancelled}},
	},
	StatusPaid: {
		RolePayer: {{ActionDispute, StatusDisputed}, {ActionCancel, StatusCancelled}},
		RolePayee: {{ActionFulfill, StatusFulfilled}},
	},
	StatusFulfilled: {
		RolePayer: {{ActionRelease, StatusReleased}, {ActionDispute, StatusDisputed}},
		RolePayee: {{ActionDispute, StatusDisputed}},
	},
	StatusDisputed: {
		RolePayer: {{ActionProposeRefund, StatusDisputed}, {ActionAcceptRefund, StatusReleased}},
		RolePayee: {{ActionProposeRefund, StatusDisputed}, {ActionAcceptRefund, StatusReleased}},
	},
}

// LegalActions returns the actions role may take on an order in status.
// The result is a fresh slice; it is empty for terminal statuses and for
// any pair the lifecycle does not list.
func LegalActions(status Status, role Role) []Action {
	edges := transitions[status][role]
	out := make([]Action, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.action)
	}
	return out
}

// CanApply reports whether action is legal for (status, role).
func CanApply(status Status, role Role, action Action) bool {
	_, ok := lookup(status, role, action)
	return ok
}

// Apply returns the status reached by role taking action on an order in
// status. Actions outside LegalActions fail with ErrInvalidTransition.
func Apply(status Status, role Role, action Action) (Status, error) {
	to, ok := lookup(status, role, action)
	if !ok {
		return status, fmt.Errorf("%w: %s cannot %s a %s transaction", ErrInvalidTransition, role, action, status)
	}
	return to, nil
}

func lookup(status Status, role Role, action Action) (Status, bool) {
	for _, e := range transitions[status][role] {
		if e.action == action {
			return e.to, true
		}
	}
	return "", false
}

// Funded is the system edge taken when the payment for a send order
// settles. It is not a user action.
func Funded(status Status) (Status, error) {
	if status != StatusInitiated {
		return status, fmt.Errorf("%w: cannot fund a %s transaction", ErrInvalidTransition, status)
	}
	return StatusPaid, nil
}

// Expirable lists the statuses the expiry sweeper may move to expired.
var Expirable = []Status{StatusInitiated, StatusRequested}

// Expire is the system edge for orders nobody acted on before the TTL.
func Expire(status Status) (Status, error) {
	for _, s := range Expirable {
		if s == status {
			return StatusExpired, nil
		}
	}
	return status, fmt.Errorf("%w: cannot expire a %s transaction", ErrInvalidTransition, status)
}

// Prompt is the action bar message for role looking at an order in status.
func Prompt(status Status, role Role) string {
	switch status {
	case StatusInitiated:
		return "This transaction was initiated, but could not be completed"
	case StatusRequested:
		return "Waiting for Payer to accept Payee request for pi transfer"
	case StatusPaid:
		if role == RolePayer {
			return "Waiting for payee to fulfill the purchased item(s)"
		}
		return "Waiting for Payee fulfillment of the purchased item(s)"
	case StatusFulfilled:
		return "Waiting for Payer to confirm purchased items received OK"
	case StatusDisputed:
		return "Dispute Centre"
	case StatusDeclined:
		return "This transaction was declined. No further actions required."
	case StatusCancelled:
		return "This transaction was cancelled. No further actions required."
	case StatusReleased:
		return "This transaction is marked as Completed. No further actions required."
	case StatusExpired:
		return "This transaction has expired. No further actions required."
	}
	return "No further actions required."
}
