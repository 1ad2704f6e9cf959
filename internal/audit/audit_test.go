package audit

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "presence/pkg/domain"
	"presence/pkg/requestcontext"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestPublisherStampsEvents(t *testing.T) {
	p := NewPublisher(4, discardLogger())

	now := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithRequestID(ctx, "req-1")

	pid := id.NewPrincipalID()
	p.Emit(ctx, Event{PrincipalID: pid, Action: ActionCheckIn, Outcome: "success"})

	event := <-p.Events()
	assert.False(t, event.ID.IsNil())
	assert.Equal(t, now, event.Timestamp)
	assert.Equal(t, "req-1", event.RequestID)
	assert.Equal(t, pid, event.PrincipalID)
}

func TestPublisherDropsWhenFull(t *testing.T) {
	p := NewPublisher(1, discardLogger())
	ctx := context.Background()

	p.Emit(ctx, Event{Action: ActionCheckIn})
	p.Emit(ctx, Event{Action: ActionCheckOut}) // buffer full, dropped

	assert.Len(t, p.Events(), 1)
}

func TestWorkerPersistsEvents(t *testing.T) {
	store := NewInMemoryStore()
	p := NewPublisher(4, discardLogger())
	w := NewWorker(store, nil, p.Events(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	pid := id.NewPrincipalID()
	p.Emit(ctx, Event{PrincipalID: pid, Action: ActionCheckIn, Outcome: "success"})

	require.Eventually(t, func() bool {
		events, err := store.ListByPrincipal(context.Background(), pid)
		return err == nil && len(events) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
