package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/weaver/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// Subject overrides the base call subject (WEAVERD_EVENT_SUBJECT).
	Subject string
	// Service is stamped on events that carry no service name.
	Service string
}

// CommsPublisher publishes call events to COMMS subjects.
type CommsPublisher struct {
	nc      *comms.Conn
	subject string
	service string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	p := &CommsPublisher{nc: nc, subject: commsutil.SubjectCallEvent}
	if opts != nil {
		if opts.Subject != "" {
			p.subject = opts.Subject
		}
		p.service = opts.Service
	}
	return p
}

// PublishCall publishes event to the per-method subject and to the base
// subject.
func (p *CommsPublisher) PublishCall(_ context.Context, event *CallEvent) error {
	if event.Service == "" {
		event.Service = p.service
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	for _, subject := range []string{commsutil.BuildCallSubject(p.subject, event.Method), p.subject} {
		if err := p.nc.Publish(subject, data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
			return fmt.Errorf("%s - publish %s: %w", commsPublisherLogPrefix, subject, err)
		}
	}

	slog.Debug(fmt.Sprintf("%s - Published call event for %s (conn %s)", commsPublisherLogPrefix, event.Method, event.ConnID))
	return nil
}
