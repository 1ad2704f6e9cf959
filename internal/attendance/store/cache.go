package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"presence/internal/attendance/models"
	id "presence/pkg/domain"
	"presence/pkg/platform/sentinel"
)

// todayTTL bounds staleness if an invalidation is lost. The cache only serves
// the hot "today" lookup on the mark path; history queries bypass it.
const todayTTL = 5 * time.Minute

// absentMarker is cached in place of an event for a principal with no record
// today, so repeated misses do not hammer the database.
const absentMarker = "absent"

// backend is the store the cache decorates. Satisfied by both Postgres and
// InMemory.
type backend interface {
	Insert(ctx context.Context, event *models.Event) error
	SetCheckOut(ctx context.Context, eventID id.EventID, checkOut time.Time) (*models.Event, error)
	FindByPrincipalAndDate(ctx context.Context, principalID id.PrincipalID, date string) (*models.Event, error)
	ListByPrincipal(ctx context.Context, principalID id.PrincipalID, from, to string) ([]*models.Event, error)
	ListAll(ctx context.Context, from, to string) ([]*models.Event, error)
}

// Cached is a read-through Redis decorator for the per-day lookup. Redis
// failures are logged and degrade to the backend; the cache is never load
// bearing for correctness.
type Cached struct {
	store  backend
	client *redis.Client
	logger *slog.Logger
}

func NewCached(store backend, client *redis.Client, logger *slog.Logger) *Cached {
	return &Cached{store: store, client: client, logger: logger}
}

func todayKey(principalID id.PrincipalID, date string) string {
	return fmt.Sprintf("attendance:today:%s:%s", principalID, date)
}

func (c *Cached) Insert(ctx context.Context, event *models.Event) error {
	if err := c.store.Insert(ctx, event); err != nil {
		return err
	}
	c.invalidate(ctx, todayKey(event.PrincipalID, event.Date))
	return nil
}

func (c *Cached) SetCheckOut(ctx context.Context, eventID id.EventID, checkOut time.Time) (*models.Event, error) {
	event, err := c.store.SetCheckOut(ctx, eventID, checkOut)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, todayKey(event.PrincipalID, event.Date))
	return event, nil
}

func (c *Cached) FindByPrincipalAndDate(ctx context.Context, principalID id.PrincipalID, date string) (*models.Event, error) {
	key := todayKey(principalID, date)

	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if raw == absentMarker {
			return nil, sentinel.ErrNotFound
		}
		var event models.Event
		if err := json.Unmarshal([]byte(raw), &event); err == nil {
			return &event, nil
		}
		c.logger.Warn("dropping undecodable cache entry", "key", key)
		c.invalidate(ctx, key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("attendance cache read failed", "key", key, "error", err)
	}

	event, err := c.store.FindByPrincipalAndDate(ctx, principalID, date)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			c.set(ctx, key, absentMarker)
		}
		return nil, err
	}

	if encoded, err := json.Marshal(event); err == nil {
		c.set(ctx, key, string(encoded))
	}
	return event, nil
}

func (c *Cached) ListByPrincipal(ctx context.Context, principalID id.PrincipalID, from, to string) ([]*models.Event, error) {
	return c.store.ListByPrincipal(ctx, principalID, from, to)
}

func (c *Cached) ListAll(ctx context.Context, from, to string) ([]*models.Event, error) {
	return c.store.ListAll(ctx, from, to)
}

func (c *Cached) set(ctx context.Context, key, value string) {
	if err := c.client.Set(ctx, key, value, todayTTL).Err(); err != nil {
		c.logger.Warn("attendance cache write failed", "key", key, "error", err)
	}
}

func (c *Cached) invalidate(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("attendance cache invalidation failed", "key", key, "error", err)
	}
}
