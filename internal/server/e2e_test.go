package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/agent-dispatch/pkg/connections"
	"github.com/morezero/agent-dispatch/pkg/dispatcher"
	"github.com/morezero/agent-dispatch/pkg/events"
	"github.com/morezero/agent-dispatch/pkg/introduction"
	"github.com/morezero/agent-dispatch/pkg/messaging"
	"github.com/morezero/agent-dispatch/pkg/msgtype"
	"github.com/morezero/agent-dispatch/pkg/routing"
	"github.com/morezero/agent-dispatch/pkg/transport"
)

const (
	e2eInbound  = "e2e.agent.inbound"
	e2eOutbound = "e2e.agent.outbound"
	e2eRemoved  = "e2e.agent.connection.removed"
	e2eChanged  = "e2e.agent.routes.changed"
)

// e2eEnv wires an agent to an embedded NATS server the way Run does.
type e2eEnv struct {
	nc       *comms.Conn
	agent    *Agent
	outbound chan *transport.OutboundEnvelope
	changed  chan *events.RoutesChangedEvent
}

func setupE2E(t *testing.T, settings dispatcher.Settings) *e2eEnv {
	t.Helper()

	ns, err := commsserver.NewServer(&commsserver.Options{
		Host:   "127.0.0.1",
		Port:   commsserver.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("%s - failed to create NATS server: %v", serverTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - NATS server failed to start", serverTestPrefix)
	}
	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", serverTestPrefix, err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	env := &e2eEnv{
		nc:       nc,
		agent:    testAgent(t, events.NewCommsPublisher(nc, &events.CommsPublisherOpts{Subject: e2eChanged})),
		outbound: make(chan *transport.OutboundEnvelope, 8),
		changed:  make(chan *events.RoutesChangedEvent, 8),
	}

	if _, err := nc.Subscribe(e2eOutbound, func(msg *comms.Msg) {
		var out transport.OutboundEnvelope
		if err := json.Unmarshal(msg.Data, &out); err == nil {
			env.outbound <- &out
		}
	}); err != nil {
		t.Fatalf("%s - subscribe outbound: %v", serverTestPrefix, err)
	}
	if _, err := nc.Subscribe(e2eChanged, func(msg *comms.Msg) {
		var ev events.RoutesChangedEvent
		if err := json.Unmarshal(msg.Data, &ev); err == nil {
			env.changed <- &ev
		}
	}); err != nil {
		t.Fatalf("%s - subscribe routes changed: %v", serverTestPrefix, err)
	}

	ctx := context.Background()
	inbound := transport.NewInbound(transport.InboundParams{
		Dispatcher: env.agent.Dispatcher,
		Forwarder:  transport.NewSender(nc, e2eOutbound),
		Settings:   settings,
		Lookup:     env.agent.Connections.Connection,
		Timeout:    5 * time.Second,
	})
	if _, err := inbound.Subscribe(ctx, nc, e2eInbound, "e2e"); err != nil {
		t.Fatalf("%s - subscribe inbound: %v", serverTestPrefix, err)
	}
	if _, err := transport.SubscribeConnectionRemoved(ctx, nc, e2eRemoved, env.agent.Routes, func(id string) {
		env.agent.Connections.RemoveConnection(id)
	}); err != nil {
		t.Fatalf("%s - subscribe removed: %v", serverTestPrefix, err)
	}
	return env
}

func (e *e2eEnv) send(t *testing.T, connectionID string, ready bool, msg messaging.Message) {
	t.Helper()
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("%s - marshal message: %v", serverTestPrefix, err)
	}
	data, _ := json.Marshal(transport.InboundEnvelope{
		ConnectionID:    connectionID,
		ConnectionReady: ready,
		SenderVerkey:    "sender-" + connectionID,
		Message:         raw,
	})
	if err := e.nc.Publish(e2eInbound, data); err != nil {
		t.Fatalf("%s - publish inbound: %v", serverTestPrefix, err)
	}
	e.nc.Flush()
}

func (e *e2eEnv) nextOutbound(t *testing.T) *transport.OutboundEnvelope {
	t.Helper()
	select {
	case out := <-e.outbound:
		return out
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timeout waiting for outbound message", serverTestPrefix)
		return nil
	}
}

func (e *e2eEnv) nextChanged(t *testing.T) *events.RoutesChangedEvent {
	t.Helper()
	select {
	case ev := <-e.changed:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timeout waiting for routes changed event", serverTestPrefix)
		return nil
	}
}

func TestE2E_RouteUpdateQueryAndRemoval(t *testing.T) {
	env := setupE2E(t, dispatcher.Settings{})

	update := routing.NewRouteUpdateRequest([]routing.RouteUpdate{
		{RecipientKey: "K1", Action: routing.ActionCreate},
		{RecipientKey: "K2", Action: routing.ActionCreate},
		{RecipientKey: "K3", Action: "rotate"},
	})
	update.Type = msgtype.Build(msgtype.LegacyPrefix, "routing", "1.0", "route-update-request")
	env.send(t, "conn-a", true, update)

	out := env.nextOutbound(t)
	if out.ConnectionID != "conn-a" || out.RecipientKeys[0] != "sender-conn-a" {
		t.Errorf("%s - reply addressed to %+v", serverTestPrefix, out)
	}
	var resp routing.RouteUpdateResponse
	if err := json.Unmarshal(out.Message, &resp); err != nil {
		t.Fatalf("%s - decode response: %v", serverTestPrefix, err)
	}
	wantResults := []string{routing.ResultSuccess, routing.ResultSuccess, routing.ResultClientError}
	for i, want := range wantResults {
		if resp.Updated[i].Result != want {
			t.Errorf("%s - updated[%d] = %s, want %s", serverTestPrefix, i, resp.Updated[i].Result, want)
		}
	}
	if ev := env.nextChanged(t); len(ev.Created) != 2 {
		t.Errorf("%s - created event = %+v", serverTestPrefix, ev)
	}

	// Another connection cannot take K1.
	env.send(t, "conn-b", true, routing.NewRouteUpdateRequest([]routing.RouteUpdate{{RecipientKey: "K1", Action: routing.ActionCreate}}))
	if err := json.Unmarshal(env.nextOutbound(t).Message, &resp); err != nil {
		t.Fatalf("%s - decode response: %v", serverTestPrefix, err)
	}
	if resp.Updated[0].Result != routing.ResultClientError {
		t.Errorf("%s - conflicting create = %s, want client_error", serverTestPrefix, resp.Updated[0].Result)
	}

	env.send(t, "conn-a", true, routing.NewRouteQueryRequest())
	var query routing.RouteQueryResponse
	if err := json.Unmarshal(env.nextOutbound(t).Message, &query); err != nil {
		t.Fatalf("%s - decode query: %v", serverTestPrefix, err)
	}
	if len(query.Routes) != 2 || query.Routes[0].RecipientKey != "K1" {
		t.Errorf("%s - routes = %+v", serverTestPrefix, query.Routes)
	}

	removed, _ := json.Marshal(transport.ConnectionRemoved{ConnectionID: "conn-a"})
	if err := env.nc.Publish(e2eRemoved, removed); err != nil {
		t.Fatalf("%s - publish removal: %v", serverTestPrefix, err)
	}
	env.nc.Flush()
	if ev := env.nextChanged(t); !ev.Removed || ev.ConnectionID != "conn-a" {
		t.Errorf("%s - removal event = %+v", serverTestPrefix, ev)
	}
}

func TestE2E_NotReadyGetsNoReply(t *testing.T) {
	env := setupE2E(t, dispatcher.Settings{})
	env.send(t, "conn-a", false, routing.NewRouteQueryRequest())

	select {
	case out := <-env.outbound:
		t.Errorf("%s - unexpected reply %+v", serverTestPrefix, out)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestE2E_ForwardInvitation(t *testing.T) {
	env := setupE2E(t, dispatcher.Settings{AcceptInvites: true})

	invitation := connections.NewConnectionInvitation()
	invitation.Label = "Faber"
	invitation.RecipientKeys = []string{"3Dn1SJNPaCXcvvJvSbsFWP2xaCjMom3can8CQNhWrTRx"}
	invitation.Endpoint = "http://localhost"
	env.send(t, "conn-intro", true, introduction.NewForwardInvitation(invitation, "Hello World"))

	out := env.nextOutbound(t)
	if out.ConnectionID == "" || out.ConnectionID == "conn-intro" || out.InReplyTo != "" {
		t.Errorf("%s - request should target the new connection, got %+v", serverTestPrefix, out)
	}
	var req connections.ConnectionRequest
	if err := json.Unmarshal(out.Message, &req); err != nil {
		t.Fatalf("%s - decode request: %v", serverTestPrefix, err)
	}
	if req.Label != "Mediator" {
		t.Errorf("%s - request label = %q, want Mediator", serverTestPrefix, req.Label)
	}
	rec, err := env.agent.Connections.Connection(out.ConnectionID)
	if err != nil || rec.State != connections.StateRequest {
		t.Errorf("%s - connection = %+v, %v", serverTestPrefix, rec, err)
	}
}
