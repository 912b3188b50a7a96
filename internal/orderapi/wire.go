package orderapi

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/escrowpi/escrowpi/internal/comments"
	"github.com/escrowpi/escrowpi/internal/dispute"
	"github.com/escrowpi/escrowpi/internal/orders"
	"github.com/escrowpi/escrowpi/internal/txstate"
)

// wireOrder is an order as the backend serialises it.
type wireOrder struct {
	OrderNo       string          `json:"order_no"`
	OrderType     string          `json:"order_type"`
	PayerUsername string          `json:"payer_username"`
	PayeeUsername string          `json:"payee_username"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	Description   string          `json:"description,omitempty"`
	Dispute       *wireDispute    `json:"dispute,omitempty"`
	PaymentID     string          `json:"payment_id,omitempty"`
	TxID          string          `json:"txid,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type wireDispute struct {
	Status         string              `json:"status"`
	Percent        decimal.NullDecimal `json:"proposal_percent"`
	ProposedBy     string              `json:"proposed_by,omitempty"`
	ProposedByUser string              `json:"proposed_by_user,omitempty"`
	AcceptedBy     string              `json:"accepted_by,omitempty"`
	AcceptedByRole string              `json:"accepted_by_role,omitempty"`
}

type wireComment struct {
	ID          string    `json:"id"`
	OrderNo     string    `json:"order_no"`
	Author      string    `json:"author"`
	Description string    `json:"description"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
}

func fromOrder(o *orders.Order) wireOrder {
	d := fromDispute(o.Dispute)
	return wireOrder{
		OrderNo:       o.ID,
		OrderType:     string(o.Type),
		PayerUsername: o.PayerUsername,
		PayeeUsername: o.PayeeUsername,
		Amount:        o.Amount,
		Status:        string(o.Status),
		Description:   o.Note,
		Dispute:       &d,
		PaymentID:     o.PaymentID,
		TxID:          o.TxID,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func (w *wireOrder) toOrder() (*orders.Order, error) {
	status, err := txstate.ParseStatus(w.Status)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", w.OrderNo, err)
	}
	o := &orders.Order{
		ID:            w.OrderNo,
		Type:          orders.Type(w.OrderType),
		PayerUsername: w.PayerUsername,
		PayeeUsername: w.PayeeUsername,
		Amount:        w.Amount,
		Status:        status,
		Note:          w.Description,
		PaymentID:     w.PaymentID,
		TxID:          w.TxID,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
	if w.Dispute != nil {
		o.Dispute = w.Dispute.toDispute()
	}
	o.Dispute = o.Dispute.Normalized()
	return o, nil
}

func fromDispute(d dispute.Dispute) wireDispute {
	d = d.Normalized()
	w := wireDispute{
		Status:         string(d.Status),
		ProposedBy:     string(d.ProposedBy),
		ProposedByUser: d.ProposedByUser,
		AcceptedBy:     d.AcceptedBy,
		AcceptedByRole: string(d.AcceptedByRole),
	}
	if d.Status != dispute.StatusNone {
		w.Percent = decimal.NullDecimal{Decimal: d.ProposalPercent, Valid: true}
	}
	return w
}

func (w *wireDispute) toDispute() dispute.Dispute {
	d := dispute.Dispute{
		Status:         dispute.Status(w.Status),
		ProposedBy:     txstate.Role(w.ProposedBy),
		ProposedByUser: w.ProposedByUser,
		AcceptedBy:     w.AcceptedBy,
		AcceptedByRole: txstate.Role(w.AcceptedByRole),
	}
	if w.Percent.Valid {
		d.ProposalPercent = w.Percent.Decimal
	}
	return d
}

func fromComment(c *comments.Comment) wireComment {
	return wireComment{
		ID:          c.ID,
		OrderNo:     c.OrderID,
		Author:      c.Author,
		Description: c.Text,
		IsSystem:    c.System,
		CreatedAt:   c.CreatedAt,
	}
}

func (w *wireComment) toComment() *comments.Comment {
	return &comments.Comment{
		ID:        w.ID,
		OrderID:   w.OrderNo,
		Author:    w.Author,
		Text:      w.Description,
		System:    w.IsSystem,
		CreatedAt: w.CreatedAt,
	}
}
