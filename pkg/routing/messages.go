package routing

import (
	"github.com/morezero/agent-dispatch/pkg/messaging"
	"github.com/morezero/agent-dispatch/pkg/msgtype"
)

const (
	protocolName    = "routing"
	protocolVersion = "1.0"
)

const (
	nameRouteUpdateRequest  = "route-update-request"
	nameRouteUpdateResponse = "route-update-response"
	nameRouteQueryRequest   = "route-query-request"
	nameRouteQueryResponse  = "route-query-response"
)

// Routing protocol message types (current family).
var (
	RouteUpdateRequestType  = msgtype.Build(msgtype.CurrentPrefix, protocolName, protocolVersion, nameRouteUpdateRequest)
	RouteUpdateResponseType = msgtype.Build(msgtype.CurrentPrefix, protocolName, protocolVersion, nameRouteUpdateResponse)
	RouteQueryRequestType   = msgtype.Build(msgtype.CurrentPrefix, protocolName, protocolVersion, nameRouteQueryRequest)
	RouteQueryResponseType  = msgtype.Build(msgtype.CurrentPrefix, protocolName, protocolVersion, nameRouteQueryResponse)
)

// MessageTypes lists every routing URI, both families, with its factory.
func MessageTypes() map[string]messaging.Factory {
	factories := map[string]messaging.Factory{
		nameRouteUpdateRequest:  func() messaging.Message { return &RouteUpdateRequest{} },
		nameRouteUpdateResponse: func() messaging.Message { return &RouteUpdateResponse{} },
		nameRouteQueryRequest:   func() messaging.Message { return &RouteQueryRequest{} },
		nameRouteQueryResponse:  func() messaging.Message { return &RouteQueryResponse{} },
	}
	types := make(map[string]messaging.Factory, 2*len(factories))
	for name, factory := range factories {
		for _, uri := range aliases(name) {
			types[uri] = factory
		}
	}
	return types
}

// RouteUpdateRequest asks the mediator to apply a batch of route updates.
type RouteUpdateRequest struct {
	messaging.Header
	Updates []RouteUpdate `json:"updates"`
}

// NewRouteUpdateRequest creates a request with a fresh id.
func NewRouteUpdateRequest(updates []RouteUpdate) *RouteUpdateRequest {
	return &RouteUpdateRequest{Header: messaging.NewHeader(RouteUpdateRequestType), Updates: updates}
}

// RouteUpdateResponse reports the per-item outcome of a RouteUpdateRequest.
type RouteUpdateResponse struct {
	messaging.Header
	Updated []RouteUpdated `json:"updated"`
}

// NewRouteUpdateResponse creates a response. A nil slice is sent as an empty list.
func NewRouteUpdateResponse(updated []RouteUpdated) *RouteUpdateResponse {
	if updated == nil {
		updated = []RouteUpdated{}
	}
	return &RouteUpdateResponse{Header: messaging.NewHeader(RouteUpdateResponseType), Updated: updated}
}

// Paginate selects a window of query results.
type Paginate struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Paginated describes the window a query response covers.
type Paginated struct {
	Start     int `json:"start"`
	End       int `json:"end"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// RouteQueryRequest asks the mediator for the sender's routes.
type RouteQueryRequest struct {
	messaging.Header
	// Filter restricts results; only the "recipient_key" filter is recognised.
	Filter   map[string][]string `json:"filter,omitempty"`
	Paginate *Paginate           `json:"paginate,omitempty"`
}

// NewRouteQueryRequest creates a query with a fresh id.
func NewRouteQueryRequest() *RouteQueryRequest {
	return &RouteQueryRequest{Header: messaging.NewHeader(RouteQueryRequestType)}
}

// RouteQueryResult is one route as reported to the peer.
type RouteQueryResult struct {
	RecipientKey string `json:"recipient_key"`
}

// RouteQueryResponse lists the routes owned by the querying connection.
type RouteQueryResponse struct {
	messaging.Header
	Routes    []RouteQueryResult `json:"routes"`
	Paginated *Paginated         `json:"paginated,omitempty"`
}

// NewRouteQueryResponse creates a response. A nil slice is sent as an empty list.
func NewRouteQueryResponse(routes []RouteQueryResult) *RouteQueryResponse {
	if routes == nil {
		routes = []RouteQueryResult{}
	}
	return &RouteQueryResponse{Header: messaging.NewHeader(RouteQueryResponseType), Routes: routes}
}

func aliases(name string) []string {
	return msgtype.Aliases(protocolName, protocolVersion, name)
}
