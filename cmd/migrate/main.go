// Command migrate manages the EscrowPi Postgres schema.
//
//	migrate up             apply pending migrations
//	migrate down           roll back the latest migration
//	migrate up-to <v>      apply up to version v
//	migrate down-to <v>    roll back to version v
//	migrate status         list migrations and whether they are applied
//	migrate version        print the current schema version
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"

	_ "github.com/lib/pq"

	"github.com/escrowpi/escrowpi/internal/config"
	"github.com/escrowpi/escrowpi/internal/logging"
	"github.com/escrowpi/escrowpi/migrations"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate up|down|up-to <v>|down-to <v>|status|version")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := run(context.Background(), db, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("migration failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, db *sql.DB, command string, args []string) error {
	p, err := migrations.NewProvider(db)
	if err != nil {
		return err
	}

	switch command {
	case "up":
		_, err = p.Up(ctx)
	case "down":
		_, err = p.Down(ctx)
	case "up-to", "down-to":
		if len(args) != 1 {
			return fmt.Errorf("%s needs a version", command)
		}
		v, perr := strconv.ParseInt(args[0], 10, 64)
		if perr != nil {
			return fmt.Errorf("bad version %q", args[0])
		}
		if command == "up-to" {
			_, err = p.UpTo(ctx, v)
		} else {
			_, err = p.DownTo(ctx, v)
		}
	case "status":
		statuses, serr := p.Status(ctx)
		if serr != nil {
			return serr
		}
		for _, s := range statuses {
			fmt.Printf("%-8s %s\n", s.State, s.Source.Path)
		}
	case "version":
		v, verr := p.GetDBVersion(ctx)
		if verr != nil {
			return verr
		}
		fmt.Println(v)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return err
}
