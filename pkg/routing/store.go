package routing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ErrEmptyRecipientKey is returned by stores when asked to write a route without a key.
var ErrEmptyRecipientKey = errors.New("recipient key is required")

// Store persists the routing table. Create and delete are compare-and-update operations on a
// single key: they decide and mutate in one atomic step.
type Store interface {
	// GetRoute returns the route for key, or nil if there is none.
	GetRoute(ctx context.Context, recipientKey string) (*Route, error)
	// CreateRoute inserts key -> connectionID unless the key is already mapped. It returns the
	// owner after the call and whether a row was inserted.
	CreateRoute(ctx context.Context, recipientKey, connectionID string) (owner string, created bool, err error)
	// DeleteRoute removes key only if it is owned by connectionID. It returns the owner before
	// the call ("" if unmapped) and whether a row was removed.
	DeleteRoute(ctx context.Context, recipientKey, connectionID string) (owner string, deleted bool, err error)
	// ListRoutes returns the routes owned by connectionID in insertion order.
	ListRoutes(ctx context.Context, connectionID string) ([]Route, error)
	// DeleteConnectionRoutes removes every route owned by connectionID.
	DeleteConnectionRoutes(ctx context.Context, connectionID string) (int, error)
}

type memoryRoute struct {
	route Route
	seq   uint64
}

// MemoryStore is an in-process Store. Each key is updated with an atomic compare operation on
// its own map slot, so writers to different keys never contend.
type MemoryStore struct {
	routes sync.Map // recipient key -> *memoryRoute
	seq    atomic.Uint64
	now    func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: func() time.Time { return time.Now().UTC() }}
}

// GetRoute implements Store.
func (s *MemoryStore) GetRoute(_ context.Context, recipientKey string) (*Route, error) {
	v, ok := s.routes.Load(recipientKey)
	if !ok {
		return nil, nil
	}
	out := v.(*memoryRoute).route
	return &out, nil
}

// CreateRoute implements Store.
func (s *MemoryStore) CreateRoute(_ context.Context, recipientKey, connectionID string) (string, bool, error) {
	if recipientKey == "" {
		return "", false, ErrEmptyRecipientKey
	}

	candidate := &memoryRoute{
		route: Route{RecipientKey: recipientKey, ConnectionID: connectionID, Created: s.now()},
		seq:   s.seq.Add(1),
	}
	v, loaded := s.routes.LoadOrStore(recipientKey, candidate)
	if loaded {
		return v.(*memoryRoute).route.ConnectionID, false, nil
	}
	return connectionID, true, nil
}

// DeleteRoute implements Store.
func (s *MemoryStore) DeleteRoute(_ context.Context, recipientKey, connectionID string) (string, bool, error) {
	if recipientKey == "" {
		return "", false, ErrEmptyRecipientKey
	}

	for {
		v, ok := s.routes.Load(recipientKey)
		if !ok {
			return "", false, nil
		}
		existing := v.(*memoryRoute)
		if existing.route.ConnectionID != connectionID {
			return existing.route.ConnectionID, false, nil
		}
		if s.routes.CompareAndDelete(recipientKey, existing) {
			return connectionID, true, nil
		}
		// Replaced between load and delete; decide again on the new value.
	}
}

// ListRoutes implements Store.
func (s *MemoryStore) ListRoutes(_ context.Context, connectionID string) ([]Route, error) {
	owned := make([]*memoryRoute, 0)
	s.routes.Range(func(_, v any) bool {
		if r := v.(*memoryRoute); r.route.ConnectionID == connectionID {
			owned = append(owned, r)
		}
		return true
	})

	sort.Slice(owned, func(i, j int) bool { return owned[i].seq < owned[j].seq })
	out := make([]Route, len(owned))
	for i, r := range owned {
		out[i] = r.route
	}
	return out, nil
}

// DeleteConnectionRoutes implements Store.
func (s *MemoryStore) DeleteConnectionRoutes(_ context.Context, connectionID string) (int, error) {
	n := 0
	s.routes.Range(func(key, v any) bool {
		if v.(*memoryRoute).route.ConnectionID == connectionID && s.routes.CompareAndDelete(key, v) {
			n++
		}
		return true
	})
	return n, nil
}
