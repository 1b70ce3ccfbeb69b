// Package events defines the routing table change event and its publishers.
package events

import "time"

// RoutesChangedEvent is emitted when a batch route update changed a connection's routing table.
type RoutesChangedEvent struct {
	ConnectionID string   `json:"connectionId"`
	Created      []string `json:"created,omitempty"`
	Deleted      []string `json:"deleted,omitempty"`
	// Removed is set when the routes were dropped because the connection itself went away.
	Removed   bool   `json:"removed,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewRoutesChangedEvent creates an event stamped with the current time.
func NewRoutesChangedEvent(connectionID string) *RoutesChangedEvent {
	return &RoutesChangedEvent{
		ConnectionID: connectionID,
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Empty reports whether the event carries no change.
func (e *RoutesChangedEvent) Empty() bool {
	return e == nil || (len(e.Created) == 0 && len(e.Deleted) == 0 && !e.Removed)
}
