// Package transport carries agent messages between COMMS subjects and the dispatcher. Envelope
// decryption happens upstream; inbound envelopes carry the already-unpacked message.
package transport

import (
	"encoding/json"

	"github.com/morezero/agent-dispatch/pkg/dispatcher"
)

// InboundEnvelope is published on the inbound subject by the session layer.
type InboundEnvelope struct {
	ConnectionID    string          `json:"connectionId,omitempty"`
	ConnectionReady bool            `json:"connectionReady"`
	SenderVerkey    string          `json:"senderVerkey,omitempty"`
	RecipientVerkey string          `json:"recipientVerkey,omitempty"`
	RoutingKeys     []string        `json:"routingKeys,omitempty"`
	Message         json.RawMessage `json:"message"`
}

// OutboundEnvelope is published on the outbound subject for each queued reply.
type OutboundEnvelope struct {
	// ConnectionID is the connection the message is addressed to.
	ConnectionID string `json:"connectionId,omitempty"`
	// InReplyTo is the inbound connection when the message answers on the same channel.
	InReplyTo     string          `json:"inReplyTo,omitempty"`
	Endpoint      string          `json:"endpoint,omitempty"`
	RecipientKeys []string        `json:"recipientKeys,omitempty"`
	RoutingKeys   []string        `json:"routingKeys,omitempty"`
	ThreadID      string          `json:"threadId,omitempty"`
	Message       json.RawMessage `json:"message"`
}

// ConnectionRemoved is published when a connection is deleted.
type ConnectionRemoved struct {
	ConnectionID string `json:"connectionId"`
}

// Receipt builds the message receipt for the envelope.
func (e *InboundEnvelope) Receipt() *dispatcher.MessageReceipt {
	return &dispatcher.MessageReceipt{
		SenderVerkey:    e.SenderVerkey,
		RecipientVerkey: e.RecipientVerkey,
		RoutingKeys:     e.RoutingKeys,
	}
}
