package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/agent-dispatch/pkg/routing"
)

const repoLogPrefix = "db:route_repository"

// createAttempts bounds the insert/read loop when a competing delete removes the row between
// the conflicting insert and the owner lookup.
const createAttempts = 3

// RouteRepository is a routing.Store over Postgres. Each create and delete is one statement, so
// ownership checks and mutation are atomic per key.
type RouteRepository struct {
	pool *pgxpool.Pool
}

var _ routing.Store = (*RouteRepository)(nil)

// NewRouteRepository creates a new RouteRepository with the given connection pool.
func NewRouteRepository(pool *pgxpool.Pool) *RouteRepository {
	return &RouteRepository{pool: pool}
}

// =========================================================================
// POINT OPERATIONS
// =========================================================================

// GetRoute implements routing.Store.
func (r *RouteRepository) GetRoute(ctx context.Context, recipientKey string) (*routing.Route, error) {
	var route routing.Route
	err := r.pool.QueryRow(ctx,
		`SELECT recipient_key, connection_id, created
		 FROM routes
		 WHERE recipient_key = $1`, recipientKey,
	).Scan(&route.RecipientKey, &route.ConnectionID, &route.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - GetRoute failed: %w", repoLogPrefix, err)
	}
	return &route, nil
}

// CreateRoute implements routing.Store.
func (r *RouteRepository) CreateRoute(ctx context.Context, recipientKey, connectionID string) (string, bool, error) {
	if recipientKey == "" {
		return "", false, routing.ErrEmptyRecipientKey
	}
	slog.Debug(fmt.Sprintf("%s - CreateRoute key=%s connection=%s", repoLogPrefix, recipientKey, connectionID))

	for attempt := 0; attempt < createAttempts; attempt++ {
		var owner string
		err := r.pool.QueryRow(ctx,
			`WITH ins AS (
			    INSERT INTO routes (recipient_key, connection_id)
			    VALUES ($1, $2)
			    ON CONFLICT (recipient_key) DO NOTHING
			    RETURNING recipient_key, connection_id
			 ), ev AS (
			    INSERT INTO route_events (recipient_key, connection_id, action)
			    SELECT recipient_key, connection_id, 'create' FROM ins
			 )
			 SELECT connection_id FROM ins`, recipientKey, connectionID,
		).Scan(&owner)
		if err == nil {
			return owner, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", false, fmt.Errorf("%s - CreateRoute insert failed: %w", repoLogPrefix, err)
		}

		existing, err := r.owner(ctx, recipientKey)
		if err != nil {
			return "", false, err
		}
		if existing != "" {
			return existing, false, nil
		}
		slog.Debug(fmt.Sprintf("%s - CreateRoute key=%s raced with delete, retrying", repoLogPrefix, recipientKey))
	}
	return "", false, fmt.Errorf("%s - CreateRoute key=%s: gave up after %d attempts", repoLogPrefix, recipientKey, createAttempts)
}

// DeleteRoute implements routing.Store.
func (r *RouteRepository) DeleteRoute(ctx context.Context, recipientKey, connectionID string) (string, bool, error) {
	if recipientKey == "" {
		return "", false, routing.ErrEmptyRecipientKey
	}
	slog.Debug(fmt.Sprintf("%s - DeleteRoute key=%s connection=%s", repoLogPrefix, recipientKey, connectionID))

	var owner string
	err := r.pool.QueryRow(ctx,
		`WITH del AS (
		    DELETE FROM routes
		    WHERE recipient_key = $1 AND connection_id = $2
		    RETURNING recipient_key, connection_id
		 ), ev AS (
		    INSERT INTO route_events (recipient_key, connection_id, action)
		    SELECT recipient_key, connection_id, 'delete' FROM del
		 )
		 SELECT connection_id FROM del`, recipientKey, connectionID,
	).Scan(&owner)
	if err == nil {
		return owner, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("%s - DeleteRoute failed: %w", repoLogPrefix, err)
	}

	existing, err := r.owner(ctx, recipientKey)
	if err != nil {
		return "", false, err
	}
	return existing, false, nil
}

// owner returns the connection owning key, or "" if unmapped.
func (r *RouteRepository) owner(ctx context.Context, recipientKey string) (string, error) {
	var owner string
	err := r.pool.QueryRow(ctx, `SELECT connection_id FROM routes WHERE recipient_key = $1`, recipientKey).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%s - owner lookup failed: %w", repoLogPrefix, err)
	}
	return owner, nil
}

// =========================================================================
// CONNECTION OPERATIONS
// =========================================================================

// ListRoutes implements routing.Store.
func (r *RouteRepository) ListRoutes(ctx context.Context, connectionID string) ([]routing.Route, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT recipient_key, connection_id, created
		 FROM routes
		 WHERE connection_id = $1
		 ORDER BY seq`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("%s - ListRoutes failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	routes := make([]routing.Route, 0)
	for rows.Next() {
		var route routing.Route
		if err := rows.Scan(&route.RecipientKey, &route.ConnectionID, &route.Created); err != nil {
			return nil, fmt.Errorf("%s - ListRoutes scan failed: %w", repoLogPrefix, err)
		}
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - ListRoutes failed: %w", repoLogPrefix, err)
	}
	return routes, nil
}

// DeleteConnectionRoutes implements routing.Store.
func (r *RouteRepository) DeleteConnectionRoutes(ctx context.Context, connectionID string) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`WITH del AS (
		    DELETE FROM routes WHERE connection_id = $1
		    RETURNING recipient_key, connection_id
		 )
		 INSERT INTO route_events (recipient_key, connection_id, action)
		 SELECT recipient_key, connection_id, 'remove' FROM del`, connectionID)
	if err != nil {
		return 0, fmt.Errorf("%s - DeleteConnectionRoutes failed: %w", repoLogPrefix, err)
	}
	n := int(tag.RowsAffected())
	slog.Info(fmt.Sprintf("%s - Deleted %d routes of connection=%s", repoLogPrefix, n, connectionID))
	return n, nil
}

// RouteEvent is one row of the route audit trail.
type RouteEvent struct {
	RecipientKey string
	ConnectionID string
	Action       string
}

// ListRouteEvents returns the audit trail of a connection, oldest first.
func (r *RouteRepository) ListRouteEvents(ctx context.Context, connectionID string) ([]RouteEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT recipient_key, connection_id, action
		 FROM route_events
		 WHERE connection_id = $1
		 ORDER BY id`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("%s - ListRouteEvents failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []RouteEvent
	for rows.Next() {
		var e RouteEvent
		if err := rows.Scan(&e.RecipientKey, &e.ConnectionID, &e.Action); err != nil {
			return nil, fmt.Errorf("%s - ListRouteEvents scan failed: %w", repoLogPrefix, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
