// Package routing implements the mediator routing table: recipient keys a connection asks to have
// forwarded to it, the batch update and query operations over that table, and the handlers for
// the routing protocol messages.
package routing

import "time"

// Route update actions.
const (
	ActionCreate = "create"
	ActionDelete = "delete"
)

// Route update results.
const (
	ResultSuccess     = "success"
	ResultNoChange    = "no_change"
	ResultClientError = "client_error"
	ResultServerError = "server_error"
)

// Route maps a recipient key to the connection that owns it. A key has at most one owner.
type Route struct {
	RecipientKey string    `json:"recipient_key"`
	ConnectionID string    `json:"connection_id"`
	Created      time.Time `json:"created"`
}

// RouteUpdate is one requested mutation. Action is not validated when decoded.
type RouteUpdate struct {
	RecipientKey string `json:"recipient_key"`
	Action       string `json:"action"`
}

// RouteUpdated is the outcome of one RouteUpdate.
type RouteUpdated struct {
	RecipientKey string `json:"recipient_key"`
	Action       string `json:"action"`
	Result       string `json:"result"`
}

// Succeeded reports whether the update left the table in the requested state.
func (u RouteUpdated) Succeeded() bool {
	return u.Result == ResultSuccess || u.Result == ResultNoChange
}
