package connections

import (
	"encoding/json"

	"github.com/morezero/agent-dispatch/pkg/messaging"
	"github.com/morezero/agent-dispatch/pkg/msgtype"
)

const (
	protocolName    = "connections"
	protocolVersion = "1.0"
)

// Connection protocol message types (current family).
var (
	ConnectionInvitationType = msgtype.Build(msgtype.CurrentPrefix, protocolName, protocolVersion, "invitation")
	ConnectionRequestType    = msgtype.Build(msgtype.CurrentPrefix, protocolName, protocolVersion, "request")
)

// MessageTypes lists every connection protocol URI this package can decode.
func MessageTypes() map[string]messaging.Factory {
	types := make(map[string]messaging.Factory)
	for _, uri := range msgtype.Aliases(protocolName, protocolVersion, "invitation") {
		types[uri] = func() messaging.Message { return &ConnectionInvitation{} }
	}
	for _, uri := range msgtype.Aliases(protocolName, protocolVersion, "request") {
		types[uri] = func() messaging.Message { return &ConnectionRequest{} }
	}
	return types
}

// ConnectionInvitation is an out-of-band invitation to connect.
type ConnectionInvitation struct {
	messaging.Header
	Label         string   `json:"label,omitempty"`
	DID           string   `json:"did,omitempty"`
	RecipientKeys []string `json:"recipientKeys,omitempty"`
	Endpoint      string   `json:"serviceEndpoint,omitempty"`
	RoutingKeys   []string `json:"routingKeys,omitempty"`
	ImageURL      string   `json:"imageUrl,omitempty"`
}

// NewConnectionInvitation creates an invitation with a fresh id.
func NewConnectionInvitation() *ConnectionInvitation {
	return &ConnectionInvitation{Header: messaging.NewHeader(ConnectionInvitationType)}
}

// ConnectionRequest answers an invitation.
type ConnectionRequest struct {
	messaging.Header
	Label      string            `json:"label"`
	Connection *ConnectionDetail `json:"connection,omitempty"`
	ImageURL   string            `json:"imageUrl,omitempty"`
}

// ConnectionDetail carries the requester's DID and DID document.
type ConnectionDetail struct {
	DID    string          `json:"DID"`
	DIDDoc json.RawMessage `json:"DIDDoc,omitempty"`
}

// NewConnectionRequest creates a request with a fresh id.
func NewConnectionRequest(label string) *ConnectionRequest {
	return &ConnectionRequest{Header: messaging.NewHeader(ConnectionRequestType), Label: label}
}
