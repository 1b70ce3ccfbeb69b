package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/agent-dispatch/pkg/messaging"
)

const logPrefix = "dispatcher:dispatch"

// Handler performs one protocol step for an inbound message.
type Handler interface {
	Handle(ctx context.Context, rc *RequestContext, r Responder) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, rc *RequestContext, r Responder) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, rc *RequestContext, r Responder) error {
	return f(ctx, rc, r)
}

// Dispatcher routes messages to handlers keyed by message type URI.
type Dispatcher struct {
	types *messaging.Registry

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewDispatcher creates a Dispatcher over the given message type registry.
func NewDispatcher(types *messaging.Registry) *Dispatcher {
	return &Dispatcher{types: types, handlers: make(map[string]Handler)}
}

// Registry returns the message type registry used for decoding.
func (d *Dispatcher) Registry() *messaging.Registry {
	return d.types
}

// Register binds h to every URI in uris. Each URI must already be in the type registry and
// must not have a handler yet; nothing is registered if any URI fails.
func (d *Dispatcher) Register(h Handler, uris ...string) error {
	if h == nil {
		return fmt.Errorf("%s - nil handler", logPrefix)
	}
	if len(uris) == 0 {
		return fmt.Errorf("%s - no message types given", logPrefix)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, uri := range uris {
		if !d.types.Known(uri) {
			return NewHandlerError(CodeNoHandler, fmt.Sprintf("message type not registered: %s", uri))
		}
		if _, exists := d.handlers[uri]; exists {
			return fmt.Errorf("%s - handler already registered for %s", logPrefix, uri)
		}
	}
	for _, uri := range uris {
		d.handlers[uri] = h
	}
	return nil
}

// HandlerFor returns the handler for uri, following the registry's version resolution when
// there is no exact binding.
func (d *Dispatcher) HandlerFor(uri string) (Handler, error) {
	d.mu.RLock()
	h, ok := d.handlers[uri]
	d.mu.RUnlock()
	if ok {
		return h, nil
	}

	resolved, _, err := d.types.Resolve(uri)
	if err != nil {
		return nil, NoHandler(uri)
	}

	d.mu.RLock()
	h, ok = d.handlers[resolved]
	d.mu.RUnlock()
	if !ok {
		return nil, NoHandler(uri)
	}
	return h, nil
}

// Dispatch runs the handler for rc.Message. It returns nil when handled, a *HandlerError when a
// precondition failed, or the collaborator's error unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, rc *RequestContext, r Responder) error {
	if rc == nil || rc.Message == nil {
		return MissingField("message")
	}
	msgType := rc.Message.MessageType()
	slog.Debug(fmt.Sprintf("%s - type=%s id=%s connection=%s", logPrefix, msgType, rc.Message.MessageID(), rc.ConnectionID()))

	h, err := d.HandlerFor(msgType)
	if err != nil {
		return err
	}

	start := time.Now()
	err = h.Handle(ctx, rc, r)
	if err != nil {
		if he, ok := AsHandlerError(err); ok {
			slog.Warn(fmt.Sprintf("%s - %s rejected: %s", logPrefix, msgType, he.Error()))
		} else {
			slog.Error(fmt.Sprintf("%s - %s failed: %v", logPrefix, msgType, err))
		}
		return err
	}

	slog.Debug(fmt.Sprintf("%s - %s handled in %s", logPrefix, msgType, time.Since(start)))
	return nil
}

// DispatchRaw decodes raw, builds a fresh context and dispatches it.
func (d *Dispatcher) DispatchRaw(ctx context.Context, raw []byte, state ConnectionState, settings Settings, r Responder) error {
	msg, err := d.types.Decode(raw)
	if err != nil {
		if errors.Is(err, messaging.ErrUnknownMessageType) {
			return NewHandlerError(CodeNoHandler, err.Error())
		}
		return err
	}
	if state.Receipt != nil && state.Receipt.ReceivedAt.IsZero() {
		state.Receipt.ReceivedAt = time.Now().UTC()
	}
	return d.Dispatch(ctx, NewRequestContext(msg, state, settings), r)
}
