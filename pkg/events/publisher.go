package events

import "context"

// EventPublisher is the interface for publishing routing table change events.
type EventPublisher interface {
	PublishRoutesChanged(ctx context.Context, event *RoutesChangedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing.
type NoOpPublisher struct{}

// PublishRoutesChanged is a no-op.
func (p *NoOpPublisher) PublishRoutesChanged(_ context.Context, _ *RoutesChangedEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *RoutesChangedEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *RoutesChangedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishRoutesChanged calls the callback.
func (p *CallbackPublisher) PublishRoutesChanged(ctx context.Context, event *RoutesChangedEvent) error {
	return p.callback(ctx, event)
}
