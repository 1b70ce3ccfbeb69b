// Package dispatcher routes decoded agent messages to the handler registered for their type.
package dispatcher

import (
	"time"

	"github.com/morezero/agent-dispatch/pkg/connections"
	"github.com/morezero/agent-dispatch/pkg/messaging"
)

// Settings holds the per-context options handlers may consult.
type Settings struct {
	// AcceptInvites makes forwarded invitations answer with a connection request immediately.
	AcceptInvites bool
}

// MessageReceipt describes how an inbound message arrived.
type MessageReceipt struct {
	SenderVerkey    string    `json:"senderVerkey,omitempty"`
	RecipientVerkey string    `json:"recipientVerkey,omitempty"`
	RoutingKeys     []string  `json:"routingKeys,omitempty"`
	ReceivedAt      time.Time `json:"receivedAt"`
}

// ConnectionState is what the session layer knows about the sender's connection.
type ConnectionState struct {
	Connection *connections.ConnectionRecord
	Ready      bool
	Receipt    *MessageReceipt
}

// RequestContext is created for one inbound message and discarded after its handler returns.
type RequestContext struct {
	Message         messaging.Message
	ConnectionReady bool
	Connection      *connections.ConnectionRecord
	Receipt         *MessageReceipt
	Settings        Settings
}

// NewRequestContext builds a fresh context for msg.
func NewRequestContext(msg messaging.Message, state ConnectionState, settings Settings) *RequestContext {
	return &RequestContext{
		Message:         msg,
		ConnectionReady: state.Ready,
		Connection:      state.Connection,
		Receipt:         state.Receipt,
		Settings:        settings,
	}
}

// ConnectionID returns the sender's connection id, or "" when there is no connection.
func (rc *RequestContext) ConnectionID() string {
	if rc == nil || rc.Connection == nil {
		return ""
	}
	return rc.Connection.ConnectionID
}
