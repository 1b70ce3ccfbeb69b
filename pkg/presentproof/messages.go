// Package presentproof registers the present-proof 1.0 message schemas under both URI families.
// The agent decodes these messages but does not act on them.
package presentproof

import (
	"encoding/json"

	"github.com/morezero/agent-dispatch/pkg/messaging"
	"github.com/morezero/agent-dispatch/pkg/msgtype"
)

const (
	protocolName    = "present-proof"
	protocolVersion = "1.0"
)

// Message names.
const (
	NamePresentationProposal = "propose-presentation"
	NamePresentationRequest  = "request-presentation"
	NamePresentation         = "presentation"
	NamePresentationAck      = "ack"
	NamePresentationPreview  = "presentation-preview"
)

// Current-family URIs.
var (
	PresentationProposalType = msgtype.Build(msgtype.CurrentPrefix, protocolName, protocolVersion, NamePresentationProposal)
	PresentationRequestType  = msgtype.Build(msgtype.CurrentPrefix, protocolName, protocolVersion, NamePresentationRequest)
	PresentationType         = msgtype.Build(msgtype.CurrentPrefix, protocolName, protocolVersion, NamePresentation)
	PresentationAckType      = msgtype.Build(msgtype.CurrentPrefix, protocolName, protocolVersion, NamePresentationAck)
	PresentationPreviewType  = msgtype.Build(msgtype.CurrentPrefix, protocolName, protocolVersion, NamePresentationPreview)
)

// Attachment ids used in the request and presentation attachments.
const (
	AttachIDPresentationRequest = "libindy-request-presentation-0"
	AttachIDPresentation        = "libindy-presentation-0"
)

// MessageTypes lists the present-proof URIs of both families.
func MessageTypes() map[string]messaging.Factory {
	factories := map[string]messaging.Factory{
		NamePresentationProposal: func() messaging.Message { return &PresentationProposal{} },
		NamePresentationRequest:  func() messaging.Message { return &PresentationRequest{} },
		NamePresentation:         func() messaging.Message { return &Presentation{} },
		NamePresentationAck:      func() messaging.Message { return &PresentationAck{} },
	}
	types := make(map[string]messaging.Factory, 2*len(factories))
	for name, factory := range factories {
		for _, uri := range msgtype.Aliases(protocolName, protocolVersion, name) {
			types[uri] = factory
		}
	}
	return types
}

// Attachment is an ~attach decorator entry.
type Attachment struct {
	ID       string         `json:"@id"`
	MimeType string         `json:"mime-type,omitempty"`
	Data     AttachmentData `json:"data"`
}

// AttachmentData holds attachment content.
type AttachmentData struct {
	Base64 string          `json:"base64,omitempty"`
	JSON   json.RawMessage `json:"json,omitempty"`
}

// PresentationPreview is the inner object describing a proposed presentation.
type PresentationPreview struct {
	Type       string             `json:"@type"`
	Attributes []PreviewAttribute `json:"attributes"`
	Predicates []PreviewPredicate `json:"predicates"`
}

// PreviewAttribute is one attribute in a preview.
type PreviewAttribute struct {
	Name      string `json:"name"`
	CredDefID string `json:"cred_def_id,omitempty"`
	MimeType  string `json:"mime-type,omitempty"`
	Value     string `json:"value,omitempty"`
	Referent  string `json:"referent,omitempty"`
}

// PreviewPredicate is one predicate in a preview.
type PreviewPredicate struct {
	Name      string `json:"name"`
	CredDefID string `json:"cred_def_id,omitempty"`
	Predicate string `json:"predicate"`
	Threshold int    `json:"threshold"`
}

// PresentationProposal is sent by a prover to propose a presentation.
type PresentationProposal struct {
	messaging.Header
	Comment              string               `json:"comment,omitempty"`
	PresentationProposal *PresentationPreview `json:"presentation_proposal"`
}

// PresentationRequest is sent by a verifier.
type PresentationRequest struct {
	messaging.Header
	Comment     string       `json:"comment,omitempty"`
	Attachments []Attachment `json:"request_presentations~attach"`
}

// Presentation is the prover's answer to a request.
type Presentation struct {
	messaging.Header
	Comment     string       `json:"comment,omitempty"`
	Attachments []Attachment `json:"presentations~attach"`
}

// PresentationAck acknowledges a presentation.
type PresentationAck struct {
	messaging.Header
	Status string `json:"status,omitempty"`
}

// NewPresentationPreview creates an empty preview with its inner type set.
func NewPresentationPreview() *PresentationPreview {
	return &PresentationPreview{Type: PresentationPreviewType, Attributes: []PreviewAttribute{}, Predicates: []PreviewPredicate{}}
}
