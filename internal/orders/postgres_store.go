package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/escrowpi/escrowpi/internal/comments"
	"github.com/escrowpi/escrowpi/internal/dispute"
	"github.com/escrowpi/escrowpi/internal/pagination"
	"github.com/escrowpi/escrowpi/internal/txstate"
)

// PostgresStore persists orders in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed order store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// PingContext lets the health registry probe the database.
func (p *PostgresStore) PingContext(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

const orderColumns = `id, order_type, payer_username, payee_username, amount, status, note,
		       dispute_status, dispute_percent, dispute_proposed_by, dispute_proposed_by_user,
		       dispute_accepted_by, dispute_accepted_by_role,
		       payment_id, txid, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, o *Order) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_type, payer_username, payee_username, amount, status, note,
			dispute_status, payment_id, txid, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5::NUMERIC(30,7), $6, $7,
			'none', $8, $9, $10, $11
		)`,
		o.ID, string(o.Type), o.PayerUsername, o.PayeeUsername, o.Amount.String(), string(o.Status),
		nullString(o.Note), nullString(o.PaymentID), nullString(o.TxID),
		o.CreatedAt, o.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Order, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

func (p *PostgresStore) ListByUser(ctx context.Context, username string, after *pagination.Cursor, limit int) ([]*Order, error) {
	var afterAt sql.NullTime
	var afterID string
	if after != nil {
		afterAt = sql.NullTime{Time: after.CreatedAt, Valid: true}
		afterID = after.ID
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE (payer_username = $1 OR payee_username = $1)
		  AND ($2::timestamptz IS NULL OR (created_at, id) < ($2, $3))
		ORDER BY created_at DESC, id DESC
		LIMIT $4`, username, afterAt, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanOrders(rows)
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, u StatusUpdate) (*Order, *comments.Comment, error) {
	var paymentID, txID sql.NullString
	if u.Receipt != nil {
		paymentID = nullString(u.Receipt.PaymentID)
		txID = nullString(u.Receipt.TxID)
	}

	// Entering disputed starts a fresh negotiation.
	row := p.db.QueryRowContext(ctx, `
		UPDATE orders SET
			status = $1,
			payment_id = COALESCE($2, payment_id),
			txid = COALESCE($3, txid),
			dispute_status = CASE WHEN $1 = 'disputed' THEN 'none' ELSE dispute_status END,
			dispute_percent = CASE WHEN $1 = 'disputed' THEN NULL ELSE dispute_percent END,
			dispute_proposed_by = CASE WHEN $1 = 'disputed' THEN NULL ELSE dispute_proposed_by END,
			dispute_proposed_by_user = CASE WHEN $1 = 'disputed' THEN NULL ELSE dispute_proposed_by_user END,
			updated_at = $4
		WHERE id = $5 AND status = $6
		RETURNING `+orderColumns,
		string(u.To), paymentID, txID, time.Now(), id, string(u.From),
	)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, p.missOrStale(ctx, id)
	}
	if isUniqueViolation(err, "idx_orders_payment_id") {
		return nil, nil, ErrPaymentReused
	}
	if err != nil {
		return nil, nil, err
	}
	return o, nil, nil
}

// isUniqueViolation reports whether err is Postgres rejecting a duplicate
// key on the named index or constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == constraint
}

// missOrStale explains why a conditional update matched no row.
func (p *PostgresStore) missOrStale(ctx context.Context, id string) error {
	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStaleState
}

func (p *PostgresStore) ProposeDispute(ctx context.Context, id string, expected, proposal dispute.Dispute) (*Order, error) {
	return p.writeDispute(ctx, id, expected, proposal, txstate.StatusDisputed)
}

func (p *PostgresStore) AcceptDispute(ctx context.Context, id string, expected, accepted dispute.Dispute) (*Order, *comments.Comment, error) {
	o, err := p.writeDispute(ctx, id, expected, accepted, txstate.StatusReleased)
	return o, nil, err
}

func (p *PostgresStore) ClearDispute(ctx context.Context, id string, expected dispute.Dispute) (*Order, error) {
	return p.writeDispute(ctx, id, expected, dispute.Dispute{Status: dispute.StatusNone}, txstate.StatusDisputed)
}

// writeDispute locks the order row, checks it is still disputed with the
// expected negotiation state, and stores next.
func (p *PostgresStore) writeDispute(ctx context.Context, id string, expected, next dispute.Dispute, status txstate.Status) (*Order, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if current.Status != txstate.StatusDisputed {
		return nil, ErrStaleState
	}
	if !sameDispute(current.Dispute, expected) {
		return nil, ErrProposalChanged
	}

	var percent decimal.NullDecimal
	if next.Status == dispute.StatusProposed || next.Status == dispute.StatusAccepted {
		percent = decimal.NullDecimal{Decimal: next.ProposalPercent, Valid: true}
	}
	o, err := scanOrder(tx.QueryRowContext(ctx, `
		UPDATE orders SET
			status = $1,
			dispute_status = $2,
			dispute_percent = $3,
			dispute_proposed_by = $4,
			dispute_proposed_by_user = $5,
			dispute_accepted_by = $6,
			dispute_accepted_by_role = $7,
			updated_at = $8
		WHERE id = $9
		RETURNING `+orderColumns,
		string(status), string(next.Status), percent,
		nullString(string(next.ProposedBy)), nullString(next.ProposedByUser),
		nullString(next.AcceptedBy), nullString(string(next.AcceptedByRole)),
		time.Now(), id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to update dispute: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return o, nil
}

func (p *PostgresStore) ListStale(ctx context.Context, statuses []txstate.Status, before time.Time, limit int) ([]*Order, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = ANY($1)
		  AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3`, pq.Array(names), before, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanOrders(rows)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(s scanner) (*Order, error) {
	o := &Order{}
	var (
		orderType       string
		status          string
		note            sql.NullString
		disputeStatus   string
		disputePercent  decimal.NullDecimal
		proposedBy      sql.NullString
		proposedByUser  sql.NullString
		acceptedBy      sql.NullString
		acceptedByRole  sql.NullString
		paymentID, txID sql.NullString
	)

	err := s.Scan(
		&o.ID, &orderType, &o.PayerUsername, &o.PayeeUsername, &o.Amount, &status, &note,
		&disputeStatus, &disputePercent, &proposedBy, &proposedByUser,
		&acceptedBy, &acceptedByRole,
		&paymentID, &txID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Type = Type(orderType)
	if o.Status, err = txstate.ParseStatus(status); err != nil {
		return nil, err
	}
	ds, err := dispute.ParseStatus(disputeStatus)
	if err != nil {
		return nil, err
	}
	o.Dispute = dispute.Dispute{
		Status:          ds,
		ProposalPercent: disputePercent.Decimal,
		ProposedBy:      txstate.Role(proposedBy.String),
		ProposedByUser:  proposedByUser.String,
		AcceptedBy:      acceptedBy.String,
		AcceptedByRole:  txstate.Role(acceptedByRole.String),
	}.Normalized()
	o.Note = note.String
	o.PaymentID = paymentID.String
	o.TxID = txID.String
	return o, nil
}

func scanOrders(rows *sql.Rows) ([]*Order, error) {
	var result []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

// nullString converts an empty Go string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
