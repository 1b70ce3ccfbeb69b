// Package main is the entrypoint for agent-dispatch (binary name "agent").
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/agent-dispatch/internal/config"
	"github.com/morezero/agent-dispatch/internal/server"
	"github.com/morezero/agent-dispatch/pkg/db"
)

const usage = `Usage: agent [command]
       agent serve              Start the agent (NATS inbound/outbound, route store, HTTP health).
       agent migrate up         Run database migrations.
       agent migrate status     Show migration status.
       agent clear              Truncate the routes and route_events tables; schema is preserved.
       agent types              List every registered message type URI.

Commands:
  serve           (default) Start the agent.
  migrate up      Run database migrations only.
  migrate status  Show which migrations are applied.
  clear           Drop all stored routes.
  types           Print the message type registry, legacy and current families.

Environment: COMMS_URL, AGENT_INBOUND_SUBJECT, AGENT_OUTBOUND_SUBJECT, ROUTE_STORE (memory|postgres),
DATABASE_URL (required for postgres, migrate, clear), MIGRATION_PATH, ACCEPT_INVITES, AGENT_LABEL, HTTP_PORT,
LOG_LEVEL. Defaults are in internal/config.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("agent migrate: require subcommand (up, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := withPool(runMigrateUp); err != nil {
				log.Fatalf("agent migrate up: %v", err)
			}
		case "status":
			if err := withPool(runMigrateStatus); err != nil {
				log.Fatalf("agent migrate status: %v", err)
			}
		default:
			log.Fatalf("agent migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "clear":
		if err := withPool(runClear); err != nil {
			log.Fatalf("agent clear: %v", err)
		}
		return
	case "types":
		if err := printTypes(os.Stdout); err != nil {
			log.Fatalf("agent types: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("agent: %v", err)
	}
}

// withPool loads config, opens a pool and runs fn with it.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func runMigrateUp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	return db.MigrationStatus(ctx, pool, migrations, os.Stdout)
}

func runClear(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
	if err := db.ClearRoutes(ctx, pool); err != nil {
		return fmt.Errorf("clear routes: %w", err)
	}
	return nil
}

// printTypes writes one registered URI per line with its handler status.
func printTypes(w io.Writer) error {
	agent, err := server.NewAgent(server.AgentParams{})
	if err != nil {
		return err
	}
	for _, uri := range agent.Dispatcher.Registry().Types() {
		status := "no handler"
		if _, err := agent.Dispatcher.HandlerFor(uri); err == nil {
			status = "handled"
		}
		fmt.Fprintf(w, "%-80s %s\n", uri, status)
	}
	return nil
}
