// Package dispute is the refund negotiation that runs while an order is
// disputed.
//
// Flow:
//  1. Either party proposes a refund percent (none -> proposed)
//  2. The counterpart accepts the exact percent, or counter-proposes
//  3. Acceptance freezes the dispute (accepted) and releases the order
//  4. The proposer may withdraw, the counterpart may decline; both reset
//     the negotiation to none so either side can propose again
package dispute

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/escrowpi/escrowpi/internal/fees"
	"github.com/escrowpi/escrowpi/internal/txstate"
)

// All protocol violations wrap txstate.ErrInvalidTransition so callers can
// classify them with a single errors.Is.
var (
	ErrOwnProposalPending = fmt.Errorf("%w: own refund proposal is still pending", txstate.ErrInvalidTransition)
	ErrSelfAccept         = fmt.Errorf("%w: cannot accept own refund proposal", txstate.ErrInvalidTransition)
	ErrSelfDecline        = fmt.Errorf("%w: cannot decline own refund proposal", txstate.ErrInvalidTransition)
	ErrNotProposer        = fmt.Errorf("%w: only the proposer can withdraw a proposal", txstate.ErrInvalidTransition)
	ErrNoProposal         = fmt.Errorf("%w: no outstanding refund proposal", txstate.ErrInvalidTransition)
	ErrProposalMismatch   = fmt.Errorf("%w: percent does not match the outstanding proposal", txstate.ErrInvalidTransition)
	ErrResolved           = fmt.Errorf("%w: dispute already resolved", txstate.ErrInvalidTransition)
)

// Status is the negotiation state.
type Status string

const (
	StatusNone      Status = "none"
	StatusProposed  Status = "proposed"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
)

// ParseStatus converts a stored value. Empty means none.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case "", StatusNone:
		return StatusNone, nil
	case StatusProposed, StatusAccepted, StatusDeclined, StatusCancelled:
		return Status(s), nil
	}
	return "", errors.New("unknown dispute status " + s)
}

// Dispute is the negotiation sub-record of an order. The zero value is a
// dispute with no proposal.
type Dispute struct {
	Status          Status          `json:"status"`
	ProposalPercent decimal.Decimal `json:"proposalPercent"`
	ProposedBy      txstate.Role    `json:"proposedBy,omitempty"`
	ProposedByUser  string          `json:"proposedByUser,omitempty"`
	AcceptedBy      string          `json:"acceptedBy,omitempty"`
	AcceptedByRole  txstate.Role    `json:"acceptedByRole,omitempty"`
}

// Normalized maps the zero value and stored declined/cancelled records
// onto the states the protocol acts on.
func (d Dispute) Normalized() Dispute {
	switch d.Status {
	case "", StatusDeclined, StatusCancelled:
		return Dispute{Status: StatusNone}
	}
	return d
}

// HasProposal reports whether a proposal is outstanding.
func (d Dispute) HasProposal() bool {
	return d.Normalized().Status == StatusProposed
}

// IsAccepted reports whether the negotiation has concluded.
func (d Dispute) IsAccepted() bool {
	return d.Status == StatusAccepted
}

// SamePercent compares percents at the two decimal places a party can enter.
func SamePercent(a, b decimal.Decimal) bool {
	return a.Round(fees.PercentPlaces).Equal(b.Round(fees.PercentPlaces))
}

// Propose records a refund proposal by role. Counter-proposing over the
// other party's proposal is allowed; replacing one's own is not.
func Propose(d Dispute, byRole txstate.Role, byUser string, percent decimal.Decimal) (Dispute, error) {
	d = d.Normalized()
	if d.IsAccepted() {
		return d, ErrResolved
	}
	if err := fees.ValidatePercent(percent); err != nil {
		return d, err
	}
	if d.Status == StatusProposed && d.ProposedBy == byRole {
		return d, ErrOwnProposalPending
	}
	return Dispute{
		Status:          StatusProposed,
		ProposalPercent: percent.Round(fees.PercentPlaces),
		ProposedBy:      byRole,
		ProposedByUser:  byUser,
	}, nil
}

// Accept concludes the negotiation at the outstanding percent. localPercent
// is what the accepting party has entered and must match the proposal.
func Accept(d Dispute, byRole txstate.Role, byUser string, localPercent decimal.Decimal) (Dispute, error) {
	d = d.Normalized()
	if d.IsAccepted() {
		return d, ErrResolved
	}
	if d.Status != StatusProposed {
		return d, ErrNoProposal
	}
	if d.ProposedBy == byRole {
		return d, ErrSelfAccept
	}
	if !SamePercent(localPercent, d.ProposalPercent) {
		return d, ErrProposalMismatch
	}
	d.Status = StatusAccepted
	d.AcceptedBy = byUser
	d.AcceptedByRole = byRole
	return d, nil
}

// Withdraw lets the proposer take their proposal back.
func Withdraw(d Dispute, byRole txstate.Role) (Dispute, error) {
	d = d.Normalized()
	if d.IsAccepted() {
		return d, ErrResolved
	}
	if d.Status != StatusProposed {
		return d, ErrNoProposal
	}
	if d.ProposedBy != byRole {
		return d, ErrNotProposer
	}
	return Dispute{Status: StatusNone}, nil
}

// Decline lets the counterpart reject the outstanding proposal.
func Decline(d Dispute, byRole txstate.Role) (Dispute, error) {
	d = d.Normalized()
	if d.IsAccepted() {
		return d, ErrResolved
	}
	if d.Status != StatusProposed {
		return d, ErrNoProposal
	}
	if d.ProposedBy == byRole {
		return d, ErrSelfDecline
	}
	return Dispute{Status: StatusNone}, nil
}

// Controls is the state of the dispute centre for one party.
type Controls struct {
	HasProposal          bool `json:"hasProposal"`
	OwnProposal          bool `json:"ownProposal"`
	CounterpartyProposal bool `json:"counterpartyProposal"`
	Matches              bool `json:"matches"`
	InputLocked          bool `json:"inputLocked"`
	SendEnabled          bool `json:"sendEnabled"`
	AcceptEnabled        bool `json:"acceptEnabled"`
	WithdrawEnabled      bool `json:"withdrawEnabled"`
	DeclineEnabled       bool `json:"declineEnabled"`
}

// ControlsFor derives the controls for role given what it has typed. An
// invalid local percent never enables send or accept.
func ControlsFor(d Dispute, role txstate.Role, localPercent decimal.NullDecimal) Controls {
	d = d.Normalized()
	accepted := d.IsAccepted()
	hasProposal := d.Status == StatusProposed
	own := hasProposal && d.ProposedBy == role
	counter := hasProposal && !own
	valid := localPercent.Valid && fees.ValidatePercent(localPercent.Decimal) == nil
	matches := counter && valid && SamePercent(localPercent.Decimal, d.ProposalPercent)

	return Controls{
		HasProposal:          hasProposal,
		OwnProposal:          own,
		CounterpartyProposal: counter,
		Matches:              matches,
		InputLocked:          accepted || own,
		SendEnabled:          valid && !(accepted || matches || own),
		AcceptEnabled:        !accepted && matches,
		WithdrawEnabled:      !accepted && own,
		DeclineEnabled:       !accepted && counter,
	}
}
