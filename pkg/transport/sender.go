package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/agent-dispatch/pkg/commsutil"
	"github.com/morezero/agent-dispatch/pkg/dispatcher"
)

const senderLogPrefix = "transport:sender"

// Sender publishes drained responder entries as outbound envelopes.
type Sender struct {
	nc      *comms.Conn
	subject string
}

// NewSender creates a Sender publishing to subject (AGENT_OUTBOUND_SUBJECT).
func NewSender(nc *comms.Conn, subject string) *Sender {
	if subject == "" {
		subject = commsutil.SubjectAgentOutbound
	}
	return &Sender{nc: nc, subject: subject}
}

// Forward publishes every outbound entry in order. An entry without a target answers the
// inbound sender on its own connection.
func (s *Sender) Forward(_ context.Context, inbound *InboundEnvelope, out []dispatcher.Outbound) error {
	for i, o := range out {
		env, err := outboundEnvelope(inbound, o)
		if err != nil {
			return err
		}
		data, err := commsutil.EncodePayload(env)
		if err != nil {
			return fmt.Errorf("%s - failed to encode envelope: %w", senderLogPrefix, err)
		}
		if err := s.nc.Publish(s.subject, data); err != nil {
			return fmt.Errorf("%s - publish %d/%d to %s: %w", senderLogPrefix, i+1, len(out), s.subject, err)
		}
		slog.Debug(fmt.Sprintf("%s - Sent %s to connection=%s", senderLogPrefix, o.Message.MessageType(), env.ConnectionID))
	}
	return nil
}

func outboundEnvelope(inbound *InboundEnvelope, o dispatcher.Outbound) (*OutboundEnvelope, error) {
	msg, err := json.Marshal(o.Message)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode %s: %w", senderLogPrefix, o.Message.MessageType(), err)
	}
	env := &OutboundEnvelope{ThreadID: o.Message.ThreadID(), Message: msg}

	if o.Target == nil {
		if inbound != nil {
			env.ConnectionID = inbound.ConnectionID
			env.InReplyTo = inbound.ConnectionID
			if inbound.SenderVerkey != "" {
				env.RecipientKeys = []string{inbound.SenderVerkey}
			}
		}
		return env, nil
	}

	env.ConnectionID = o.Target.ConnectionID
	env.Endpoint = o.Target.Endpoint
	env.RecipientKeys = o.Target.RecipientKeys
	env.RoutingKeys = o.Target.RoutingKeys
	return env, nil
}
