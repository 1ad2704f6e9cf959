//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"presence/internal/attendance/models"
	identitymodels "presence/internal/identity/models"
	identitystore "presence/internal/identity/store"
	"presence/internal/platform/postgres"
	id "presence/pkg/domain"
	"presence/pkg/platform/sentinel"
	"presence/pkg/testutil/containers"
)

func setupPostgres(t *testing.T) (*Postgres, id.PrincipalID) {
	t.Helper()

	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	require.NoError(t, postgres.Migrate(ctx, pg.DB))

	principal, err := identitymodels.NewPrincipal(id.NewPrincipalID(), "worker@example.com", "Test Worker", "B-1001", "engineering", identitymodels.RoleMember, "hash", time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, identitystore.NewPostgres(pg.DB).Create(ctx, principal))

	return NewPostgres(pg.DB), principal.ID
}

func newTestEvent(t *testing.T, pid id.PrincipalID, date string, checkIn time.Time) *models.Event {
	t.Helper()
	confidence := 92
	event, err := models.NewEvent(id.NewEventID(), pid, checkIn, date, models.ClassificationOnTime, "Main Office", &confidence)
	require.NoError(t, err)
	return event
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	store, pid := setupPostgres(t)
	ctx := context.Background()

	checkIn := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)
	event := newTestEvent(t, pid, "2026-03-09", checkIn)
	require.NoError(t, store.Insert(ctx, event))

	found, err := store.FindByPrincipalAndDate(ctx, pid, "2026-03-09")
	require.NoError(t, err)
	require.Equal(t, event.ID, found.ID)
	require.True(t, found.CheckInTime.Equal(checkIn))
	require.Nil(t, found.CheckOutTime)
	require.Equal(t, "Main Office", found.Location)
	require.NotNil(t, found.Confidence)
	require.Equal(t, 92, *found.Confidence)

	_, err = store.FindByPrincipalAndDate(ctx, pid, "2026-03-10")
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresStore_UniquePerDay(t *testing.T) {
	store, pid := setupPostgres(t)
	ctx := context.Background()

	checkIn := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, newTestEvent(t, pid, "2026-03-09", checkIn)))

	err := store.Insert(ctx, newTestEvent(t, pid, "2026-03-09", checkIn.Add(time.Minute)))
	require.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestPostgresStore_ConcurrentInsertExactlyOneWins(t *testing.T) {
	store, pid := setupPostgres(t)
	ctx := context.Background()

	checkIn := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)

	const attempts = 8
	results := make([]error, attempts)
	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		slot := i
		g.Go(func() error {
			results[slot] = store.Insert(ctx, newTestEvent(t, pid, "2026-03-09", checkIn))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	won := 0
	for _, err := range results {
		if err == nil {
			won++
		} else {
			require.ErrorIs(t, err, sentinel.ErrConflict)
		}
	}
	require.Equal(t, 1, won)
}

func TestPostgresStore_SetCheckOut(t *testing.T) {
	store, pid := setupPostgres(t)
	ctx := context.Background()

	checkIn := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)
	event := newTestEvent(t, pid, "2026-03-09", checkIn)
	require.NoError(t, store.Insert(ctx, event))

	checkOut := checkIn.Add(8 * time.Hour)
	updated, err := store.SetCheckOut(ctx, event.ID, checkOut)
	require.NoError(t, err)
	require.NotNil(t, updated.CheckOutTime)
	require.True(t, updated.CheckOutTime.Equal(checkOut))

	// replaying the same instant stays a no-op
	again, err := store.SetCheckOut(ctx, event.ID, checkOut)
	require.NoError(t, err)
	require.True(t, again.CheckOutTime.Equal(checkOut))

	// a different instant is a second mutation and must conflict
	_, err = store.SetCheckOut(ctx, event.ID, checkOut.Add(time.Minute))
	require.ErrorIs(t, err, sentinel.ErrConflict)

	_, err = store.SetCheckOut(ctx, id.NewEventID(), checkOut)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresStore_ListByPrincipalRange(t *testing.T) {
	store, pid := setupPostgres(t)
	ctx := context.Background()

	for _, date := range []string{"2026-03-02", "2026-03-05", "2026-04-01"} {
		day, err := time.Parse(models.DateLayout, date)
		require.NoError(t, err)
		require.NoError(t, store.Insert(ctx, newTestEvent(t, pid, date, day.Add(9*time.Hour))))
	}

	events, err := store.ListByPrincipal(ctx, pid, "2026-03-01", "2026-03-31")
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "2026-03-05", events[0].Date)
	require.Equal(t, "2026-03-02", events[1].Date)

	all, err := store.ListAll(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
}
