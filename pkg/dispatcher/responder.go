package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/morezero/agent-dispatch/pkg/messaging"
)

const responderLogPrefix = "dispatcher:responder"

// Target addresses an outbound message. A nil Target means reply to the sender on the inbound channel.
type Target struct {
	ConnectionID  string   `json:"connectionId,omitempty"`
	Endpoint      string   `json:"endpoint,omitempty"`
	RecipientKeys []string `json:"recipientKeys,omitempty"`
	RoutingKeys   []string `json:"routingKeys,omitempty"`
}

// Outbound is one queued reply.
type Outbound struct {
	Message messaging.Message
	Target  *Target
}

// Responder collects the outbound messages produced by one dispatch.
type Responder interface {
	Send(ctx context.Context, msg messaging.Message, target *Target) error
}

// RecordingResponder records sends in order. The transport drains it after the handler returns.
type RecordingResponder struct {
	mu       sync.Mutex
	messages []Outbound
}

// NewRecordingResponder creates an empty RecordingResponder.
func NewRecordingResponder() *RecordingResponder {
	return &RecordingResponder{}
}

// Send implements Responder.
func (r *RecordingResponder) Send(_ context.Context, msg messaging.Message, target *Target) error {
	if msg == nil {
		return fmt.Errorf("%s - cannot send nil message", responderLogPrefix)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Outbound{Message: msg, Target: target})
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *RecordingResponder) Messages() []Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outbound, len(r.messages))
	copy(out, r.messages)
	return out
}

// Drain returns the recorded messages and clears the record.
func (r *RecordingResponder) Drain() []Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.messages
	r.messages = nil
	if out == nil {
		out = []Outbound{}
	}
	return out
}

// Len returns the number of recorded messages.
func (r *RecordingResponder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}
