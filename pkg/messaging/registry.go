package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/morezero/agent-dispatch/pkg/msgtype"
)

const logPrefix = "messaging:registry"

// resolveCacheSize bounds the number of remembered version-compatible resolutions.
const resolveCacheSize = 256

// ErrUnknownMessageType is returned when a @type URI cannot be resolved.
var ErrUnknownMessageType = errors.New("unknown message type")

// Factory returns a new zero value of a concrete message, ready to be unmarshalled into.
type Factory func() Message

type registryEntry struct {
	msgType *msgtype.MessageType
	factory Factory
}

// Registry maps message type URIs to message factories. Several URIs may share a factory
// (legacy and current document prefixes, version aliases).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
	// resolved maps a requested URI with no exact entry to the registered URI serving it.
	resolved *lru.Cache[string, string]
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	resolved, err := lru.New[string, string](resolveCacheSize)
	if err != nil {
		panic(fmt.Sprintf("%s - resolve cache: %v", logPrefix, err))
	}
	return &Registry{entries: make(map[string]registryEntry), resolved: resolved}
}

// Register adds a message type URI. The URI must parse and must not already be registered.
func (r *Registry) Register(uri string, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("%s - nil factory for %s", logPrefix, uri)
	}
	mt, err := msgtype.Parse(uri)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[mt.URI]; exists {
		return fmt.Errorf("%s - message type already registered: %s", logPrefix, mt.URI)
	}
	r.entries[mt.URI] = registryEntry{msgType: mt, factory: factory}
	r.resolved.Purge()
	slog.Debug(fmt.Sprintf("%s - Registered %s", logPrefix, mt.URI))
	return nil
}

// RegisterAll registers every URI in types, in sorted order. It stops at the first error.
func (r *Registry) RegisterAll(types map[string]Factory) error {
	uris := make([]string, 0, len(types))
	for uri := range types {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	for _, uri := range uris {
		if err := r.Register(uri, types[uri]); err != nil {
			return err
		}
	}
	return nil
}

// Known reports whether uri is registered exactly.
func (r *Registry) Known(uri string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[uri]
	return ok
}

// Resolve returns the registered URI serving uri and its factory. An exact match wins; otherwise
// a registered type of the same protocol, name and major version is used.
func (r *Registry) Resolve(uri string) (string, Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.entries[uri]; ok {
		return e.msgType.URI, e.factory, nil
	}
	if target, ok := r.resolved.Get(uri); ok {
		if e, ok := r.entries[target]; ok {
			return target, e.factory, nil
		}
	}

	requested, err := msgtype.Parse(uri)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, uri)
	}

	candidates := make([]*msgtype.MessageType, 0, len(r.entries))
	for _, e := range r.entries {
		candidates = append(candidates, e.msgType)
	}
	match := msgtype.ResolveCompatible(requested, candidates)
	if match == nil {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, uri)
	}

	r.resolved.Add(uri, match.URI)
	slog.Debug(fmt.Sprintf("%s - Resolved %s to %s", logPrefix, uri, match.URI))
	return match.URI, r.entries[match.URI].factory, nil
}

// Types returns all registered URIs, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.entries))
	for uri := range r.entries {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}

// Decode reads @type from raw JSON, resolves it and unmarshals into a fresh message.
func (r *Registry) Decode(raw []byte) (Message, error) {
	var head struct {
		Type string `json:"@type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%s - failed to read message type: %w", logPrefix, err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("%w: missing @type", ErrUnknownMessageType)
	}

	_, factory, err := r.Resolve(head.Type)
	if err != nil {
		return nil, err
	}

	msg := factory()
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("%s - failed to decode %s: %w", logPrefix, head.Type, err)
	}
	return msg, nil
}
