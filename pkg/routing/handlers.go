package routing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/agent-dispatch/pkg/connections"
	"github.com/morezero/agent-dispatch/pkg/dispatcher"
)

const handlersLogPrefix = "routing:handlers"

// InboundUpdater records the mediator-confirmed state of our own recipient keys.
type InboundUpdater interface {
	UpdateInbound(ctx context.Context, connectionID, recipientKey string, state connections.InboundRoutingState) error
}

// requireConnectionID checks readiness and returns the sender's connection id.
func requireConnectionID(rc *dispatcher.RequestContext) (string, error) {
	if err := dispatcher.RequireConnection(rc); err != nil {
		return "", err
	}
	id := rc.ConnectionID()
	if id == "" {
		return "", dispatcher.NewHandlerError(dispatcher.CodeNoActiveConnection, "connection record missing")
	}
	return id, nil
}

// RouteUpdateRequestHandler applies a batch of route updates for the sender and replies once.
type RouteUpdateRequestHandler struct {
	Routes *Manager
}

// Handle implements dispatcher.Handler.
func (h *RouteUpdateRequestHandler) Handle(ctx context.Context, rc *dispatcher.RequestContext, r dispatcher.Responder) error {
	connectionID, err := requireConnectionID(rc)
	if err != nil {
		return err
	}
	msg, ok := rc.Message.(*RouteUpdateRequest)
	if !ok {
		return dispatcher.UnexpectedMessage(RouteUpdateRequestType, rc.Message)
	}

	updated := h.Routes.ApplyUpdates(ctx, connectionID, msg.Updates)
	reply := NewRouteUpdateResponse(updated)
	reply.ReplyTo(msg)
	return r.Send(ctx, reply, nil)
}

// RouteQueryRequestHandler replies with the sender's routes.
type RouteQueryRequestHandler struct {
	Routes *Manager
}

// Handle implements dispatcher.Handler.
func (h *RouteQueryRequestHandler) Handle(ctx context.Context, rc *dispatcher.RequestContext, r dispatcher.Responder) error {
	connectionID, err := requireConnectionID(rc)
	if err != nil {
		return err
	}
	msg, ok := rc.Message.(*RouteQueryRequest)
	if !ok {
		return dispatcher.UnexpectedMessage(RouteQueryRequestType, rc.Message)
	}

	routes, err := h.Routes.QueryRoutes(ctx, connectionID)
	if err != nil {
		return err
	}
	routes = filterRoutes(routes, msg.Filter)

	results := make([]RouteQueryResult, 0, len(routes))
	for _, route := range routes {
		results = append(results, RouteQueryResult{RecipientKey: route.RecipientKey})
	}
	page, paginated := paginate(results, msg.Paginate)

	reply := NewRouteQueryResponse(page)
	reply.Paginated = paginated
	reply.ReplyTo(msg)
	return r.Send(ctx, reply, nil)
}

// filterRoutes keeps routes whose recipient key is listed under filter["recipient_key"].
func filterRoutes(routes []Route, filter map[string][]string) []Route {
	keys, ok := filter["recipient_key"]
	if !ok {
		return routes
	}
	wanted := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		wanted[k] = struct{}{}
	}
	out := make([]Route, 0, len(routes))
	for _, route := range routes {
		if _, ok := wanted[route.RecipientKey]; ok {
			out = append(out, route)
		}
	}
	return out
}

func paginate(results []RouteQueryResult, p *Paginate) ([]RouteQueryResult, *Paginated) {
	if p == nil {
		return results, nil
	}
	start := p.Offset
	if start < 0 {
		start = 0
	}
	if start > len(results) {
		start = len(results)
	}
	end := len(results)
	if p.Limit > 0 && p.Limit < end-start {
		end = start + p.Limit
	}
	return results[start:end], &Paginated{
		Start:     start,
		End:       end,
		Limit:     p.Limit,
		Remaining: len(results) - end,
	}
}

// RouteUpdateResponseHandler reconciles a mediator's acknowledgement of our route updates.
// Error results are data: they are recorded and logged, never returned.
type RouteUpdateResponseHandler struct {
	Connections InboundUpdater
}

// Handle implements dispatcher.Handler.
func (h *RouteUpdateResponseHandler) Handle(ctx context.Context, rc *dispatcher.RequestContext, _ dispatcher.Responder) error {
	connectionID, err := requireConnectionID(rc)
	if err != nil {
		return err
	}
	msg, ok := rc.Message.(*RouteUpdateResponse)
	if !ok {
		return dispatcher.UnexpectedMessage(RouteUpdateResponseType, rc.Message)
	}

	for _, updated := range msg.Updated {
		switch updated.Action {
		case ActionCreate:
			state := connections.InboundRoutingActive
			if !updated.Succeeded() {
				state = connections.InboundRoutingError
				slog.Warn(fmt.Sprintf("%s - Mediator rejected route create key=%s result=%s connection=%s",
					handlersLogPrefix, updated.RecipientKey, updated.Result, connectionID))
			}
			if err := h.Connections.UpdateInbound(ctx, connectionID, updated.RecipientKey, state); err != nil {
				return err
			}

		case ActionDelete:
			if !updated.Succeeded() {
				slog.Warn(fmt.Sprintf("%s - Mediator rejected route delete key=%s result=%s connection=%s",
					handlersLogPrefix, updated.RecipientKey, updated.Result, connectionID))
				continue
			}
			if err := h.Connections.UpdateInbound(ctx, connectionID, updated.RecipientKey, connections.InboundRoutingNone); err != nil {
				return err
			}

		default:
			slog.Warn(fmt.Sprintf("%s - Unsupported action in route update response action=%q key=%s result=%s",
				handlersLogPrefix, updated.Action, updated.RecipientKey, updated.Result))
		}
	}
	return nil
}

// RouteQueryResponseHandler logs the routes a mediator reports for us.
type RouteQueryResponseHandler struct{}

// Handle implements dispatcher.Handler.
func (h *RouteQueryResponseHandler) Handle(_ context.Context, rc *dispatcher.RequestContext, _ dispatcher.Responder) error {
	connectionID, err := requireConnectionID(rc)
	if err != nil {
		return err
	}
	msg, ok := rc.Message.(*RouteQueryResponse)
	if !ok {
		return dispatcher.UnexpectedMessage(RouteQueryResponseType, rc.Message)
	}

	slog.Info(fmt.Sprintf("%s - Mediator reports %d routes connection=%s", handlersLogPrefix, len(msg.Routes), connectionID))
	for _, route := range msg.Routes {
		slog.Debug(fmt.Sprintf("%s - route key=%s", handlersLogPrefix, route.RecipientKey))
	}
	return nil
}

// HandlerDeps holds the collaborators of the routing handlers.
type HandlerDeps struct {
	Routes      *Manager
	Connections InboundUpdater
}

// Register binds the four routing handlers to both URI families of their message types. The
// types must already be in the dispatcher's registry (see MessageTypes).
func Register(d *dispatcher.Dispatcher, deps HandlerDeps) error {
	if deps.Routes == nil || deps.Connections == nil {
		return fmt.Errorf("%s - routes and connections are required", handlersLogPrefix)
	}

	bindings := []struct {
		name    string
		handler dispatcher.Handler
	}{
		{nameRouteUpdateRequest, &RouteUpdateRequestHandler{Routes: deps.Routes}},
		{nameRouteQueryRequest, &RouteQueryRequestHandler{Routes: deps.Routes}},
		{nameRouteUpdateResponse, &RouteUpdateResponseHandler{Connections: deps.Connections}},
		{nameRouteQueryResponse, &RouteQueryResponseHandler{}},
	}
	for _, b := range bindings {
		if err := d.Register(b.handler, aliases(b.name)...); err != nil {
			return err
		}
	}
	return nil
}
