package comments

import (
	"context"
	"database/sql"
)

// PostgresStore persists comments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed comment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Add(ctx context.Context, c *Comment) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO order_comments (id, order_id, author, body, is_system, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.OrderID, c.Author, c.Text, c.System, c.CreatedAt,
	)
	return err
}

func (p *PostgresStore) List(ctx context.Context, orderID string, limit int) ([]*Comment, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, order_id, author, body, is_system, created_at
		FROM (
			SELECT id, order_id, author, body, is_system, created_at
			FROM order_comments
			WHERE order_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) newest
		ORDER BY created_at ASC, id ASC`, orderID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Comment
	for rows.Next() {
		c := &Comment{}
		if err := rows.Scan(&c.ID, &c.OrderID, &c.Author, &c.Text, &c.System, &c.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// Compile-time assertion that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
