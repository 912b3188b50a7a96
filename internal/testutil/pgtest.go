// Package testutil provides shared infrastructure for Postgres integration
// tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"

	_ "github.com/lib/pq"

	"github.com/escrowpi/escrowpi/migrations"
)

// PGTest returns a migrated database and a cleanup that empties it:
//
//	db, cleanup := testutil.PGTest(t)
//	defer cleanup()
//
// POSTGRES_URL selects an existing database. Without it, PGTEST_CONTAINER=1
// starts a throwaway Postgres container; otherwise the test is skipped.
func PGTest(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("POSTGRES_URL")
	if dsn == "" {
		if os.Getenv("PGTEST_CONTAINER") == "" {
			t.Skip("POSTGRES_URL not set, skipping integration test")
		}
		var err error
		if dsn, err = containerURL(ctx); err != nil {
			t.Fatalf("pgtest: %v", err)
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("pgtest: open: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: ping: %v", err)
	}
	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		t.Fatalf("pgtest: %v", err)
	}

	return db, func() {
		truncate(ctx, db)
		_ = db.Close()
	}
}

// truncate empties every application table. goose's version table stays
// so the next PGTest has nothing to apply.
func truncate(ctx context.Context, db *sql.DB) {
	rows, err := db.QueryContext(ctx, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public' AND tablename <> 'goose_db_version'`)
	if err != nil {
		return
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if rows.Scan(&name) == nil {
			tables = append(tables, name)
		}
	}
	if len(tables) == 0 {
		return
	}
	// Names come from pg_tables.
	_, _ = db.ExecContext(ctx, "TRUNCATE "+strings.Join(tables, ", ")+" CASCADE") // #nosec G202
}
