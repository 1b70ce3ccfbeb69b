package routing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/agent-dispatch/pkg/events"
)

const logPrefix = "routing:manager"

// Manager applies route updates and queries on behalf of a connection. A connection only ever
// sees and mutates its own routes.
type Manager struct {
	store     Store
	publisher events.EventPublisher
}

// ManagerParams holds parameters for NewManager.
type ManagerParams struct {
	Store     Store
	Publisher events.EventPublisher
}

// NewManager creates a Manager. A nil Store uses a fresh MemoryStore; a nil Publisher publishes nothing.
func NewManager(params ManagerParams) *Manager {
	store := params.Store
	if store == nil {
		store = NewMemoryStore()
	}
	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	return &Manager{store: store, publisher: pub}
}

// ApplyUpdates applies each update in order and returns one result per update. A failing item
// never stops the rest of the batch and nothing is rolled back.
func (m *Manager) ApplyUpdates(ctx context.Context, connectionID string, updates []RouteUpdate) []RouteUpdated {
	results := make([]RouteUpdated, 0, len(updates))
	changed := events.NewRoutesChangedEvent(connectionID)

	for _, update := range updates {
		result := m.applyOne(ctx, connectionID, update)
		results = append(results, RouteUpdated{
			RecipientKey: update.RecipientKey,
			Action:       update.Action,
			Result:       result,
		})
		if result != ResultSuccess {
			continue
		}
		switch update.Action {
		case ActionCreate:
			changed.Created = append(changed.Created, update.RecipientKey)
		case ActionDelete:
			changed.Deleted = append(changed.Deleted, update.RecipientKey)
		}
	}

	slog.Info(fmt.Sprintf("%s - Applied %d route updates connection=%s created=%d deleted=%d",
		logPrefix, len(updates), connectionID, len(changed.Created), len(changed.Deleted)))
	m.publish(ctx, changed)
	return results
}

func (m *Manager) applyOne(ctx context.Context, connectionID string, update RouteUpdate) string {
	if update.RecipientKey == "" {
		slog.Warn(fmt.Sprintf("%s - Rejected %q update without recipient key connection=%s", logPrefix, update.Action, connectionID))
		return ResultClientError
	}

	switch update.Action {
	case ActionCreate:
		owner, created, err := m.store.CreateRoute(ctx, update.RecipientKey, connectionID)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - create %s failed: %v", logPrefix, update.RecipientKey, err))
			return ResultServerError
		}
		switch {
		case created:
			return ResultSuccess
		case owner == connectionID:
			return ResultNoChange
		default:
			slog.Warn(fmt.Sprintf("%s - Key %s already routed to another connection, requested by %s", logPrefix, update.RecipientKey, connectionID))
			return ResultClientError
		}

	case ActionDelete:
		owner, deleted, err := m.store.DeleteRoute(ctx, update.RecipientKey, connectionID)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - delete %s failed: %v", logPrefix, update.RecipientKey, err))
			return ResultServerError
		}
		switch {
		case deleted:
			return ResultSuccess
		case owner == "":
			return ResultNoChange
		default:
			slog.Warn(fmt.Sprintf("%s - Key %s is routed to another connection, delete requested by %s", logPrefix, update.RecipientKey, connectionID))
			return ResultClientError
		}

	default:
		slog.Warn(fmt.Sprintf("%s - Unsupported route action %q connection=%s", logPrefix, update.Action, connectionID))
		return ResultClientError
	}
}

// QueryRoutes returns the routes owned by connectionID. An empty table yields an empty, non-nil slice.
func (m *Manager) QueryRoutes(ctx context.Context, connectionID string) ([]Route, error) {
	routes, err := m.store.ListRoutes(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("%s - list routes for %s: %w", logPrefix, connectionID, err)
	}
	if routes == nil {
		routes = []Route{}
	}
	return routes, nil
}

// GetRoute returns the route for recipientKey, or nil when unmapped.
func (m *Manager) GetRoute(ctx context.Context, recipientKey string) (*Route, error) {
	route, err := m.store.GetRoute(ctx, recipientKey)
	if err != nil {
		return nil, fmt.Errorf("%s - get route %s: %w", logPrefix, recipientKey, err)
	}
	return route, nil
}

// DeleteConnectionRoutes drops every route of a removed connection.
func (m *Manager) DeleteConnectionRoutes(ctx context.Context, connectionID string) (int, error) {
	n, err := m.store.DeleteConnectionRoutes(ctx, connectionID)
	if err != nil {
		return 0, fmt.Errorf("%s - delete routes for %s: %w", logPrefix, connectionID, err)
	}

	slog.Info(fmt.Sprintf("%s - Removed %d routes of connection=%s", logPrefix, n, connectionID))
	if n > 0 {
		event := events.NewRoutesChangedEvent(connectionID)
		event.Removed = true
		m.publish(ctx, event)
	}
	return n, nil
}

// publish sends a change event. Publisher failures are logged and never change results.
func (m *Manager) publish(ctx context.Context, event *events.RoutesChangedEvent) {
	if event.Empty() {
		return
	}
	if err := m.publisher.PublishRoutesChanged(ctx, event); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish routes changed for %s: %v", logPrefix, event.ConnectionID, err))
	}
}
