package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/escrowpi/escrowpi/internal/comments"
	"github.com/escrowpi/escrowpi/internal/dispute"
	"github.com/escrowpi/escrowpi/internal/fees"
	"github.com/escrowpi/escrowpi/internal/txstate"
)

// ActionView is one button in the action bar.
type ActionView struct {
	Action          txstate.Action `json:"action"`
	Label           string         `json:"label"`
	RequiresPayment bool           `json:"requiresPayment"`
}

// DisputeView is the dispute centre as one party sees it.
type DisputeView struct {
	Status          dispute.Status     `json:"status"`
	ProposalPercent string             `json:"proposalPercent,omitempty"`
	ProposedBy      txstate.Role       `json:"proposedBy,omitempty"`
	ProposedByUser  string             `json:"proposedByUser,omitempty"`
	AcceptedBy      string             `json:"acceptedBy,omitempty"`
	Split           *fees.DisputeSplit `json:"split,omitempty"`
	Controls        dispute.Controls   `json:"controls"`
}

// View is an order resolved for one viewer.
type View struct {
	ID            string              `json:"id"`
	Type          Type                `json:"type"`
	Role          txstate.Role        `json:"role"`
	Counterparty  string              `json:"counterparty"`
	PayerUsername string              `json:"payerUsername"`
	PayeeUsername string              `json:"payeeUsername"`
	Amount        string              `json:"amount"`
	Status        txstate.Status      `json:"status"`
	StatusLabel   string              `json:"statusLabel"`
	Terminal      bool                `json:"terminal"`
	Prompt        string              `json:"prompt"`
	Actions       []ActionView        `json:"actions"`
	Breakdown     fees.Breakdown      `json:"breakdown"`
	CancelRefund  *fees.CancelRefund  `json:"cancelRefund,omitempty"`
	Dispute       *DisputeView        `json:"dispute,omitempty"`
	Note          string              `json:"note,omitempty"`
	PaymentID     string              `json:"paymentId,omitempty"`
	TxID          string              `json:"txid,omitempty"`
	Comments      []*comments.Comment `json:"comments,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// MapOrderToViewModel resolves o for viewer: role, legal actions, prompt,
// fee breakdown and dispute centre. It performs no I/O.
func MapOrderToViewModel(o *Order, viewer string) *View {
	return mapOrder(o, viewer, decimal.NullDecimal{})
}

// mapOrder is MapOrderToViewModel with the percent the viewer has typed
// into the dispute centre.
func mapOrder(o *Order, viewer string, localPercent decimal.NullDecimal) *View {
	role := o.RoleOf(viewer)
	// Amounts are validated on create; a bad stored amount renders a zero
	// breakdown rather than failing the whole view.
	breakdown, _ := fees.ComputeBreakdown(o.Amount)

	v := &View{
		ID:            o.ID,
		Type:          o.Type,
		Role:          role,
		Counterparty:  o.Counterparty(viewer),
		PayerUsername: o.PayerUsername,
		PayeeUsername: o.PayeeUsername,
		Amount:        fees.Format(o.Amount),
		Status:        o.Status,
		StatusLabel:   o.Status.Label(),
		Terminal:      o.IsTerminal(),
		Prompt:        txstate.Prompt(o.Status, role),
		Breakdown:     breakdown,
		Note:          o.Note,
		PaymentID:     o.PaymentID,
		TxID:          o.TxID,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}

	legal := txstate.LegalActions(o.Status, role)
	v.Actions = make([]ActionView, 0, len(legal))
	for _, a := range legal {
		// Refund negotiation has its own controls in the dispute centre.
		if a == txstate.ActionProposeRefund || a == txstate.ActionAcceptRefund {
			continue
		}
		v.Actions = append(v.Actions, ActionView{Action: a, Label: a.Label(), RequiresPayment: txstate.RequiresPayment(a)})
	}

	if o.Status == txstate.StatusPaid && role == txstate.RolePayer {
		if r, err := fees.ComputeCancelRefund(o.Amount); err == nil {
			v.CancelRefund = &r
		}
	}

	if o.Status == txstate.StatusDisputed || o.Dispute.IsAccepted() {
		v.Dispute = mapDispute(o, role, localPercent)
	}
	return v
}

func mapDispute(o *Order, role txstate.Role, localPercent decimal.NullDecimal) *DisputeView {
	d := o.Dispute.Normalized()
	dv := &DisputeView{
		Status:         d.Status,
		ProposedBy:     d.ProposedBy,
		ProposedByUser: d.ProposedByUser,
		AcceptedBy:     d.AcceptedBy,
		Controls:       dispute.ControlsFor(d, role, localPercent),
	}
	if d.Status == dispute.StatusProposed || d.Status == dispute.StatusAccepted {
		dv.ProposalPercent = d.ProposalPercent.StringFixed(fees.PercentPlaces)
		if split, err := fees.ComputeDisputeSplit(o.Amount, d.ProposalPercent); err == nil {
			dv.Split = &split
		}
	}
	return dv
}
