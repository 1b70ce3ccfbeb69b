// Package db provides the Postgres-backed routing table: connection pooling via pgx, SQL
// migrations and the route repository.
package db

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// PoolOptions sizes the connection pool. Zero values use defaults.
type PoolOptions struct {
	MaxConns int32
	MinConns int32
}

// NewPool creates a pgx connection pool for the route store and pings it.
func NewPool(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	config, err := poolConfig(databaseURL, opts)
	if err != nil {
		return nil, err
	}
	slog.Info(fmt.Sprintf("%s - Connecting to database max_conns=%d", logPrefix, config.MaxConns))

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established", logPrefix))
	return pool, nil
}

// poolConfig parses databaseURL and applies opts. An empty URL is rejected rather than falling
// back to libpq environment defaults.
func poolConfig(databaseURL string, opts PoolOptions) (*pgxpool.Config, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("%s - database URL is empty", logPrefix)
	}
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 && opts.MinConns <= config.MaxConns {
		config.MinConns = opts.MinConns
	}
	return config, nil
}

// RunMigrations applies the migrations not yet recorded in schema_migrations, in order. Each
// migration runs in its own transaction together with its bookkeeping row.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	slog.Info(fmt.Sprintf("%s - Checking %d migrations", logPrefix, len(migrations)))

	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name    TEXT        PRIMARY KEY,
		applied TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("%s - failed to create schema_migrations: %w", logPrefix, err)
	}

	applied := 0
	for _, m := range migrations {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("%s - begin %s: %w", logPrefix, m.Name, err)
		}

		tag, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, m.Name)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%s - record %s: %w", logPrefix, m.Name, err)
		}
		if tag.RowsAffected() == 0 {
			_ = tx.Rollback(ctx)
			continue
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%s - migration %s failed: %w", logPrefix, m.Name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("%s - commit %s: %w", logPrefix, m.Name, err)
		}
		applied++
		slog.Info(fmt.Sprintf("%s - Applied migration %s", logPrefix, m.Name))
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete, %d applied", logPrefix, applied))
	return nil
}

// MigrationStatus writes which migration files have been applied.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrations []Migration, w io.Writer) error {
	const statusLogPrefix = "db:MigrationStatus"

	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'schema_migrations')`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%s - failed to check schema: %w", statusLogPrefix, err)
	}

	applied := make(map[string]bool)
	if exists {
		rows, err := pool.Query(ctx, `SELECT name FROM schema_migrations`)
		if err != nil {
			return fmt.Errorf("%s - list applied: %w", statusLogPrefix, err)
		}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return fmt.Errorf("%s - scan applied: %w", statusLogPrefix, err)
			}
			applied[name] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("%s - list applied: %w", statusLogPrefix, err)
		}
	}

	for _, m := range migrations {
		state := "pending"
		if applied[m.Name] {
			state = "applied"
		}
		fmt.Fprintf(w, "%-40s %s\n", m.Name, state)
	}
	return nil
}
