package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/agent-dispatch/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// Subject overrides the base routes-changed subject (ROUTES_CHANGED_SUBJECT).
	Subject string
}

// CommsPublisher publishes route change events to COMMS subjects.
type CommsPublisher struct {
	nc      *comms.Conn
	subject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	subject := commsutil.SubjectRoutesChanged
	if opts != nil && opts.Subject != "" {
		subject = opts.Subject
	}
	return &CommsPublisher{nc: nc, subject: subject}
}

// PublishRoutesChanged publishes the event to the per-connection subject and the base subject.
func (p *CommsPublisher) PublishRoutesChanged(_ context.Context, event *RoutesChangedEvent) error {
	if event.Empty() {
		return nil
	}
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	connSubject := commsutil.BuildRoutesChangedSubject(p.subject, event.ConnectionID)
	for _, subject := range []string{connSubject, p.subject} {
		if err := p.nc.Publish(subject, data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
			return fmt.Errorf("%s - publish %s: %w", commsPublisherLogPrefix, subject, err)
		}
	}

	slog.Debug(fmt.Sprintf("%s - Published routes changed connection=%s created=%d deleted=%d",
		commsPublisherLogPrefix, event.ConnectionID, len(event.Created), len(event.Deleted)))
	return nil
}
