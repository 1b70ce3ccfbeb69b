package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearRoutes truncates the routing table and its audit trail. Schema and applied migrations
// are preserved.
func ClearRoutes(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing routing tables", clearLogPrefix))

	_, err := pool.Exec(ctx, `TRUNCATE TABLE route_events, routes RESTART IDENTITY`)
	if err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Routing tables cleared", clearLogPrefix))
	return nil
}
