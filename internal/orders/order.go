// Package orders is the EscrowPi order workflow.
//
// Flow:
//  1. A payee requests pi (requested) or a payer sends pi (initiated, then
//     paid once the payment settles)
//  2. Each action is checked against the lifecycle, committed through the
//     Store and recorded as a system comment
//  3. While disputed, the parties negotiate a refund split; an accepted
//     proposal releases the order
//  4. Orders nobody acted on expire in the background
//
// Every collaborator call completes before local state advances. A failed
// call leaves the order as it was.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/escrowpi/escrowpi/internal/comments"
	"github.com/escrowpi/escrowpi/internal/dispute"
	"github.com/escrowpi/escrowpi/internal/pagination"
	"github.com/escrowpi/escrowpi/internal/payments"
	"github.com/escrowpi/escrowpi/internal/txstate"
)

var (
	ErrNotFound     = errors.New("order not found")
	ErrForbidden    = errors.New("not a participant in this order")
	ErrStaleState   = errors.New("order changed since it was loaded, refresh and retry")
	ErrCollaborator = errors.New("collaborator failure")
	ErrSelfOrder    = errors.New("counterparty cannot be yourself")

	// ErrProposalChanged is the loser of two near-simultaneous dispute
	// updates.
	ErrProposalChanged = fmt.Errorf("%w: refund proposal changed, refresh and retry", txstate.ErrInvalidTransition)
	// ErrPaymentReused rejects a receipt whose payment already funds
	// another order.
	ErrPaymentReused = fmt.Errorf("%w: payment already recorded on another order", ErrStaleState)
	// ErrCommentsClosed rejects comments on terminal orders.
	ErrCommentsClosed = fmt.Errorf("%w: comments are closed on finished transactions", txstate.ErrInvalidTransition)
)

// Type distinguishes who started the order.
type Type string

const (
	TypeSend    Type = "send"    // viewer pays counterparty
	TypeRequest Type = "request" // viewer asks counterparty for pi
)

// SystemActor authors audit entries the sweeper writes.
const SystemActor = "EscrowPi"

// Order is an escrow transaction between a payer and a payee.
type Order struct {
	ID            string          `json:"id"`
	Type          Type            `json:"type"`
	PayerUsername string          `json:"payerUsername"`
	PayeeUsername string          `json:"payeeUsername"`
	Amount        decimal.Decimal `json:"amount"`
	Status        txstate.Status  `json:"status"`
	Note          string          `json:"note,omitempty"`
	Dispute       dispute.Dispute `json:"dispute"`
	PaymentID     string          `json:"paymentId,omitempty"`
	TxID          string          `json:"txid,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// RoleOf derives the viewer's role on the order.
func (o *Order) RoleOf(viewer string) txstate.Role {
	return txstate.ResolveRole(o.PayerUsername, viewer)
}

// IsParticipant reports whether viewer is the payer or the payee.
func (o *Order) IsParticipant(viewer string) bool {
	return viewer != "" && (viewer == o.PayerUsername || viewer == o.PayeeUsername)
}

// Counterparty returns the other participant from viewer's side.
func (o *Order) Counterparty(viewer string) string {
	if viewer == o.PayerUsername {
		return o.PayeeUsername
	}
	return o.PayerUsername
}

// IsTerminal returns true if the order is in a final state.
func (o *Order) IsTerminal() bool {
	return txstate.IsTerminal(o.Status)
}

// Clone returns a copy that shares nothing with o.
func (o *Order) Clone() *Order {
	cp := *o
	return &cp
}

// StatusUpdate is a compare-and-set status change. The store applies it
// only if the order is still in From.
type StatusUpdate struct {
	From    txstate.Status
	To      txstate.Status
	Actor   string
	Receipt *payments.Receipt
}

// Store persists orders. Mutations are compare-and-set: a status that is
// no longer From yields ErrStaleState, and a dispute that is no longer the
// expected one yields ErrProposalChanged.
type Store interface {
	Get(ctx context.Context, id string) (*Order, error)
	// ListByUser pages through a user's orders newest first, starting after
	// the cursor (nil for the first page).
	ListByUser(ctx context.Context, username string, after *pagination.Cursor, limit int) ([]*Order, error)
	Create(ctx context.Context, order *Order) error
	// UpdateStatus commits a transition. Stores that write their own audit
	// entry return it; otherwise the comment is nil.
	UpdateStatus(ctx context.Context, id string, u StatusUpdate) (*Order, *comments.Comment, error)
	ProposeDispute(ctx context.Context, id string, expected, proposal dispute.Dispute) (*Order, error)
	// AcceptDispute freezes the accepted dispute and releases the order.
	AcceptDispute(ctx context.Context, id string, expected, accepted dispute.Dispute) (*Order, *comments.Comment, error)
	ClearDispute(ctx context.Context, id string, expected dispute.Dispute) (*Order, error)
	// ListStale returns orders in one of statuses created before the cutoff.
	ListStale(ctx context.Context, statuses []txstate.Status, before time.Time, limit int) ([]*Order, error)
}

// sameDispute compares the fields a concurrent writer could have changed.
func sameDispute(a, b dispute.Dispute) bool {
	a, b = a.Normalized(), b.Normalized()
	if a.Status != b.Status {
		return false
	}
	if a.Status == dispute.StatusNone {
		return true
	}
	return a.ProposedBy == b.ProposedBy && dispute.SamePercent(a.ProposalPercent, b.ProposalPercent)
}
