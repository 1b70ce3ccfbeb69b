// Package introduction implements the receiving end of the introduction service: an introducer
// forwards another party's invitation over an existing connection.
package introduction

import (
	"github.com/morezero/agent-dispatch/pkg/connections"
	"github.com/morezero/agent-dispatch/pkg/messaging"
	"github.com/morezero/agent-dispatch/pkg/msgtype"
)

const (
	protocolName          = "introduction-service"
	protocolVersion       = "0.1"
	nameForwardInvitation = "forward-invitation"
)

// ForwardInvitationType is the current-family URI of ForwardInvitation.
var ForwardInvitationType = msgtype.Build(msgtype.CurrentPrefix, protocolName, protocolVersion, nameForwardInvitation)

// MessageTypes lists the introduction URIs of both families.
func MessageTypes() map[string]messaging.Factory {
	types := make(map[string]messaging.Factory)
	for _, uri := range msgtype.Aliases(protocolName, protocolVersion, nameForwardInvitation) {
		types[uri] = func() messaging.Message { return &ForwardInvitation{} }
	}
	return types
}

// ForwardInvitation carries a connection invitation from a third party.
type ForwardInvitation struct {
	messaging.Header
	Invitation *connections.ConnectionInvitation `json:"invitation"`
	Message    string                            `json:"message,omitempty"`
}

// NewForwardInvitation creates a ForwardInvitation with a fresh id.
func NewForwardInvitation(invitation *connections.ConnectionInvitation, message string) *ForwardInvitation {
	return &ForwardInvitation{
		Header:     messaging.NewHeader(ForwardInvitationType),
		Invitation: invitation,
		Message:    message,
	}
}
