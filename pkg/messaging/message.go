// Package messaging defines agent messages and the message type registry used to decode them.
package messaging

import (
	"github.com/google/uuid"
)

// Message is implemented by every agent message carried over the wire.
type Message interface {
	MessageType() string
	MessageID() string
	ThreadID() string
}

// Header carries the fields shared by all agent messages.
type Header struct {
	ID     string     `json:"@id,omitempty"`
	Type   string     `json:"@type"`
	Thread *Decorator `json:"~thread,omitempty"`
}

// Decorator is the ~thread decorator.
type Decorator struct {
	ThreadID       string `json:"thid,omitempty"`
	ParentThreadID string `json:"pthid,omitempty"`
}

// NewHeader creates a header with a fresh message id.
func NewHeader(msgType string) Header {
	return Header{ID: uuid.NewString(), Type: msgType}
}

// MessageType returns the @type URI.
func (h *Header) MessageType() string { return h.Type }

// MessageID returns the @id.
func (h *Header) MessageID() string { return h.ID }

// ThreadID returns the thread id, falling back to the message id when the message starts a thread.
func (h *Header) ThreadID() string {
	if h.Thread != nil && h.Thread.ThreadID != "" {
		return h.Thread.ThreadID
	}
	return h.ID
}

// ReplyTo threads this message as a reply to parent.
func (h *Header) ReplyTo(parent Message) {
	if parent == nil {
		return
	}
	thid := parent.ThreadID()
	if thid == "" {
		return
	}
	h.Thread = &Decorator{ThreadID: thid}
}
