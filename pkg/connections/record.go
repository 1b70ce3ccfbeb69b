// Package connections defines connection records, the connection protocol messages the dispatch
// core needs to reference, and the connection manager boundary.
package connections

import "time"

// Connection lifecycle states.
const (
	StateInit       = "init"
	StateInvitation = "invitation"
	StateRequest    = "request"
	StateResponse   = "response"
	StateActive     = "active"
	StateError      = "error"
	StateInactive   = "inactive"
)

// InboundRoutingState tracks whether a mediator has confirmed one of our recipient keys.
type InboundRoutingState string

// Inbound routing states.
const (
	InboundRoutingNone    InboundRoutingState = "none"
	InboundRoutingRequest InboundRoutingState = "request"
	InboundRoutingActive  InboundRoutingState = "active"
	InboundRoutingError   InboundRoutingState = "error"
)

// ConnectionRecord identifies a peer relationship.
type ConnectionRecord struct {
	ConnectionID  string    `json:"connection_id"`
	State         string    `json:"state"`
	TheirLabel    string    `json:"their_label,omitempty"`
	MyDID         string    `json:"my_did,omitempty"`
	TheirDID      string    `json:"their_did,omitempty"`
	InvitationKey string    `json:"invitation_key,omitempty"`
	Endpoint      string    `json:"endpoint,omitempty"`
	RoutingKeys   []string  `json:"routing_keys,omitempty"`
	Created       time.Time `json:"created"`
	Updated       time.Time `json:"updated"`
}

// IsReady reports whether the connection can carry application messages.
func (c *ConnectionRecord) IsReady() bool {
	return c != nil && (c.State == StateActive || c.State == StateResponse)
}
