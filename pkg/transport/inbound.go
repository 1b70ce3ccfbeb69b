package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/agent-dispatch/pkg/commsutil"
	"github.com/morezero/agent-dispatch/pkg/connections"
	"github.com/morezero/agent-dispatch/pkg/dispatcher"
)

const inboundLogPrefix = "transport:inbound"

// ConnectionLookup returns the stored record of a connection, or an error wrapping
// connections.ErrConnectionNotFound.
type ConnectionLookup func(connectionID string) (*connections.ConnectionRecord, error)

// Forwarder delivers the replies of one dispatch.
type Forwarder interface {
	Forward(ctx context.Context, inbound *InboundEnvelope, out []dispatcher.Outbound) error
}

// Inbound decodes inbound envelopes, dispatches them and forwards the replies.
type Inbound struct {
	dispatcher *dispatcher.Dispatcher
	forwarder  Forwarder
	settings   dispatcher.Settings
	lookup     ConnectionLookup
	timeout    time.Duration
}

// InboundParams holds parameters for NewInbound.
type InboundParams struct {
	Dispatcher *dispatcher.Dispatcher
	Forwarder  Forwarder
	Settings   dispatcher.Settings
	// Lookup is optional; without it the envelope's connection id is used as is.
	Lookup  ConnectionLookup
	Timeout time.Duration
}

// NewInbound creates an Inbound.
func NewInbound(params InboundParams) *Inbound {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Inbound{
		dispatcher: params.Dispatcher,
		forwarder:  params.Forwarder,
		settings:   params.Settings,
		lookup:     params.Lookup,
		timeout:    timeout,
	}
}

// Process handles one inbound envelope. Replies are forwarded only when the dispatch succeeds.
func (in *Inbound) Process(ctx context.Context, data []byte) error {
	var env InboundEnvelope
	if err := commsutil.DecodePayload(data, &env); err != nil {
		return fmt.Errorf("%s - failed to decode envelope: %w", inboundLogPrefix, err)
	}
	if len(env.Message) == 0 || string(env.Message) == "null" {
		return dispatcher.MissingField("message")
	}

	ctx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()

	// A known record that has not finished the exchange overrides the envelope's ready flag.
	rec := in.connection(&env)
	state := dispatcher.ConnectionState{
		Connection: rec,
		Ready:      env.ConnectionReady && (rec == nil || rec.IsReady()),
		Receipt:    env.Receipt(),
	}
	responder := dispatcher.NewRecordingResponder()
	if err := in.dispatcher.DispatchRaw(ctx, env.Message, state, in.settings, responder); err != nil {
		return err
	}
	return in.forwarder.Forward(ctx, &env, responder.Drain())
}

func (in *Inbound) connection(env *InboundEnvelope) *connections.ConnectionRecord {
	if env.ConnectionID == "" {
		return nil
	}
	if in.lookup != nil {
		rec, err := in.lookup(env.ConnectionID)
		if err == nil {
			return rec
		}
		if !errors.Is(err, connections.ErrConnectionNotFound) {
			slog.Warn(fmt.Sprintf("%s - connection lookup %s failed: %v", inboundLogPrefix, env.ConnectionID, err))
		}
	}
	state := connections.StateInit
	if env.ConnectionReady {
		state = connections.StateActive
	}
	return &connections.ConnectionRecord{ConnectionID: env.ConnectionID, State: state}
}

// processRecovered runs Process and turns a handler panic into an error.
func (in *Inbound) processRecovered(ctx context.Context, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s - handler panic: %v", inboundLogPrefix, r)
		}
	}()
	return in.Process(ctx, data)
}

// Subscribe processes inbound envelopes from subject. Subscribers sharing queue split the load.
func (in *Inbound) Subscribe(ctx context.Context, nc *comms.Conn, subject, queue string) (*comms.Subscription, error) {
	handle := func(msg *comms.Msg) {
		if err := in.processRecovered(ctx, msg.Data); err != nil {
			if he, ok := dispatcher.AsHandlerError(err); ok {
				slog.Warn(fmt.Sprintf("%s - message rejected: %s", inboundLogPrefix, he.Error()))
				return
			}
			slog.Error(fmt.Sprintf("%s - message failed: %v", inboundLogPrefix, err))
		}
	}

	var sub *comms.Subscription
	var err error
	if queue != "" {
		sub, err = nc.QueueSubscribe(subject, queue, handle)
	} else {
		sub, err = nc.Subscribe(subject, handle)
	}
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", inboundLogPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s queue=%q", inboundLogPrefix, subject, queue))
	return sub, nil
}

// RouteRemover drops the routes of a removed connection.
type RouteRemover interface {
	DeleteConnectionRoutes(ctx context.Context, connectionID string) (int, error)
}

// SubscribeConnectionRemoved deletes every route of a connection when its removal is announced.
// onRemoved, if set, runs after the routes are gone.
func SubscribeConnectionRemoved(ctx context.Context, nc *comms.Conn, subject string, routes RouteRemover, onRemoved func(connectionID string)) (*comms.Subscription, error) {
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		var removed ConnectionRemoved
		if err := commsutil.DecodePayload(msg.Data, &removed); err != nil || removed.ConnectionID == "" {
			slog.Error(fmt.Sprintf("%s - invalid connection removal notice: %v", inboundLogPrefix, err))
			return
		}
		if _, err := routes.DeleteConnectionRoutes(ctx, removed.ConnectionID); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to drop routes of %s: %v", inboundLogPrefix, removed.ConnectionID, err))
			return
		}
		if onRemoved != nil {
			onRemoved(removed.ConnectionID)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", inboundLogPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", inboundLogPrefix, subject))
	return sub, nil
}
