package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"presence/internal/attendance/models"
	id "presence/pkg/domain"
	"presence/pkg/platform/sentinel"
)

// InMemory keeps attendance events in memory for tests and development. It
// mirrors the postgres store's semantics, including the uniqueness
// constraint on (principal, date) and idempotent check-out updates.
type InMemory struct {
	mu     sync.RWMutex
	events map[id.EventID]*models.Event
	byDay  map[dayKey]id.EventID
}

type dayKey struct {
	principal id.PrincipalID
	date      string
}

func NewInMemory() *InMemory {
	return &InMemory{
		events: make(map[id.EventID]*models.Event),
		byDay:  make(map[dayKey]id.EventID),
	}
}

func (s *InMemory) Insert(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dayKey{principal: event.PrincipalID, date: event.Date}
	if _, taken := s.byDay[key]; taken {
		return sentinel.ErrConflict
	}

	copied := *event
	s.events[event.ID] = &copied
	s.byDay[key] = event.ID
	return nil
}

func (s *InMemory) SetCheckOut(_ context.Context, eventID id.EventID, checkOut time.Time) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if event.CheckOutTime != nil {
		// applying the same instant twice is a no-op; anything else is a
		// second mutation of an immutable record
		if event.CheckOutTime.Equal(checkOut) {
			copied := *event
			return &copied, nil
		}
		return nil, sentinel.ErrConflict
	}

	t := checkOut
	event.CheckOutTime = &t
	copied := *event
	return &copied, nil
}

func (s *InMemory) FindByPrincipalAndDate(_ context.Context, principalID id.PrincipalID, date string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eventID, ok := s.byDay[dayKey{principal: principalID, date: date}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *s.events[eventID]
	return &copied, nil
}

func (s *InMemory) ListByPrincipal(_ context.Context, principalID id.PrincipalID, from, to string) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Event
	for _, event := range s.events {
		if event.PrincipalID != principalID {
			continue
		}
		if inRange(event.Date, from, to) {
			copied := *event
			out = append(out, &copied)
		}
	}
	sortByDateDesc(out)
	return out, nil
}

func (s *InMemory) ListAll(_ context.Context, from, to string) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Event
	for _, event := range s.events {
		if inRange(event.Date, from, to) {
			copied := *event
			out = append(out, &copied)
		}
	}
	sortByDateDesc(out)
	return out, nil
}

// inRange relies on the lexicographic ordering of ISO dates. Empty bounds
// are open.
func inRange(date, from, to string) bool {
	if from != "" && date < from {
		return false
	}
	if to != "" && date > to {
		return false
	}
	return true
}

func sortByDateDesc(events []*models.Event) {
	sort.Slice(events, func(a, b int) bool {
		if events[a].Date != events[b].Date {
			return events[a].Date > events[b].Date
		}
		return events[a].CheckInTime.After(events[b].CheckInTime)
	})
}
