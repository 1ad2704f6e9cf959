package audit

import (
	"context"
	"log/slog"
)

// Worker consumes audit events from the publisher and persists them. Store
// and sink failures are logged and skipped; the trail is best-effort by
// design and must never block attendance operations.
type Worker struct {
	store  Store
	sink   Sink
	inbox  <-chan Event
	logger *slog.Logger
}

// NewWorker builds a worker. sink may be nil when Kafka is not configured.
func NewWorker(store Store, sink Sink, inbox <-chan Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, sink: sink, inbox: inbox, logger: logger}
}

// Run drains the inbox until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "audit append failed",
					"action", event.Action,
					"principal_id", event.PrincipalID,
					"error", err,
				)
				continue
			}
			if w.sink != nil {
				if err := w.sink.Publish(ctx, event); err != nil {
					w.logger.WarnContext(ctx, "audit sink publish failed",
						"action", event.Action,
						"error", err,
					)
				}
			}
		}
	}
}
