package notifications

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresStore persists notifications in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed notification store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const columns = `id, username, order_id, reason, is_cleared, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*Notification, error) {
	n := &Notification{}
	var orderID sql.NullString
	if err := row.Scan(&n.ID, &n.Username, &orderID, &n.Reason, &n.Cleared, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.OrderID = orderID.String
	return n, nil
}

func (p *PostgresStore) Add(ctx context.Context, n *Notification) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notifications (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.Username, sql.NullString{String: n.OrderID, Valid: n.OrderID != ""}, n.Reason, n.Cleared, n.CreatedAt,
	)
	return err
}

func (p *PostgresStore) List(ctx context.Context, q Query) ([]*Notification, error) {
	var cleared sql.NullBool
	if q.Status != StatusAll {
		cleared = sql.NullBool{Bool: q.Status == StatusCleared, Valid: true}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = MaxListLimit
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT `+columns+`
		FROM notifications
		WHERE username = $1 AND ($2::boolean IS NULL OR is_cleared = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`, q.Username, cleared, limit, q.Skip)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Notification
	for rows.Next() {
		n, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (p *PostgresStore) CountUncleared(ctx context.Context, username string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE username = $1 AND NOT is_cleared`, username).Scan(&count)
	return count, err
}

func (p *PostgresStore) Toggle(ctx context.Context, id, username string) (*Notification, error) {
	n, err := scan(p.db.QueryRowContext(ctx, `
		UPDATE notifications SET is_cleared = NOT is_cleared
		WHERE id = $1 AND username = $2
		RETURNING `+columns, id, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
