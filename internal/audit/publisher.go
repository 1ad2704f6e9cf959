package audit

import (
	"context"
	"log/slog"
	"time"

	id "presence/pkg/domain"
	"presence/pkg/requestcontext"
)

// Publisher accepts events from services and hands them to the worker via a
// buffered channel. Emission is fail-open: when the buffer is full the event
// is dropped with a warning rather than stalling the attendance path.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

func NewPublisher(buffer int, logger *slog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

// Emit enqueues an event, stamping it with request-scoped metadata from the
// context. Missing timestamps default to the request time.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.ID.IsNil() {
		event.ID = id.NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = requestcontext.UserAgent(ctx)
	}

	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"action", event.Action,
			"principal_id", event.PrincipalID,
		)
	}
}

// Events exposes the inbox to the worker.
func (p *Publisher) Events() <-chan Event {
	return p.inbox
}

// Drain gives the worker a bounded window to flush buffered events during
// shutdown.
func (p *Publisher) Drain(timeout time.Duration) {
	deadline := time.After(timeout)
	for {
		if len(p.inbox) == 0 {
			return
		}
		select {
		case <-deadline:
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}
