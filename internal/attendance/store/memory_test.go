package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"presence/internal/attendance/models"
	id "presence/pkg/domain"
	"presence/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemory
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemory()
}

func (s *InMemorySuite) event(pid id.PrincipalID, date string, checkIn time.Time) *models.Event {
	event, err := models.NewEvent(id.NewEventID(), pid, checkIn, date, models.ClassificationOnTime, "", nil)
	s.Require().NoError(err)
	return event
}

func (s *InMemorySuite) TestInsertAndFindByDay() {
	pid := id.NewPrincipalID()
	checkIn := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)
	event := s.event(pid, "2026-03-09", checkIn)

	s.Require().NoError(s.store.Insert(s.ctx, event))

	found, err := s.store.FindByPrincipalAndDate(s.ctx, pid, "2026-03-09")
	s.Require().NoError(err)
	s.Equal(event.ID, found.ID)
	s.True(found.CheckInTime.Equal(checkIn))
	s.Nil(found.CheckOutTime)
}

func (s *InMemorySuite) TestFindMissingDay() {
	_, err := s.store.FindByPrincipalAndDate(s.ctx, id.NewPrincipalID(), "2026-03-09")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestSecondInsertSameDayConflicts() {
	pid := id.NewPrincipalID()
	checkIn := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)

	s.Require().NoError(s.store.Insert(s.ctx, s.event(pid, "2026-03-09", checkIn)))

	err := s.store.Insert(s.ctx, s.event(pid, "2026-03-09", checkIn.Add(time.Minute)))
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *InMemorySuite) TestSameDayDifferentPrincipals() {
	checkIn := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)

	s.Require().NoError(s.store.Insert(s.ctx, s.event(id.NewPrincipalID(), "2026-03-09", checkIn)))
	s.Require().NoError(s.store.Insert(s.ctx, s.event(id.NewPrincipalID(), "2026-03-09", checkIn)))
}

func (s *InMemorySuite) TestConcurrentInsertSameDayExactlyOneWins() {
	pid := id.NewPrincipalID()
	checkIn := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)

	const attempts = 32
	errs := make([]error, attempts)

	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(slot int) {
			defer done.Done()
			event := s.event(pid, "2026-03-09", checkIn)
			start.Wait()
			errs[slot] = s.store.Insert(s.ctx, event)
		}(i)
	}
	start.Done()
	done.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			s.Require().ErrorIs(err, sentinel.ErrConflict)
		}
	}
	s.Equal(1, won)
}

func (s *InMemorySuite) TestSetCheckOut() {
	pid := id.NewPrincipalID()
	checkIn := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)
	event := s.event(pid, "2026-03-09", checkIn)
	s.Require().NoError(s.store.Insert(s.ctx, event))

	checkOut := checkIn.Add(8 * time.Hour)
	updated, err := s.store.SetCheckOut(s.ctx, event.ID, checkOut)
	s.Require().NoError(err)
	s.Require().NotNil(updated.CheckOutTime)
	s.True(updated.CheckOutTime.Equal(checkOut))
}

func (s *InMemorySuite) TestSetCheckOutIdempotentForSameInstant() {
	pid := id.NewPrincipalID()
	checkIn := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)
	event := s.event(pid, "2026-03-09", checkIn)
	s.Require().NoError(s.store.Insert(s.ctx, event))

	checkOut := checkIn.Add(8 * time.Hour)
	_, err := s.store.SetCheckOut(s.ctx, event.ID, checkOut)
	s.Require().NoError(err)

	again, err := s.store.SetCheckOut(s.ctx, event.ID, checkOut)
	s.Require().NoError(err)
	s.True(again.CheckOutTime.Equal(checkOut))

	_, err = s.store.SetCheckOut(s.ctx, event.ID, checkOut.Add(time.Minute))
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *InMemorySuite) TestSetCheckOutUnknownEvent() {
	_, err := s.store.SetCheckOut(s.ctx, id.NewEventID(), time.Now())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestListByPrincipalOrderedAndBounded() {
	pid := id.NewPrincipalID()
	other := id.NewPrincipalID()
	for _, date := range []string{"2026-03-02", "2026-03-05", "2026-03-09", "2026-04-01"} {
		checkIn, err := time.Parse(models.DateLayout, date)
		s.Require().NoError(err)
		s.Require().NoError(s.store.Insert(s.ctx, s.event(pid, date, checkIn.Add(9*time.Hour))))
	}
	s.Require().NoError(s.store.Insert(s.ctx, s.event(other, "2026-03-05", time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC))))

	events, err := s.store.ListByPrincipal(s.ctx, pid, "2026-03-01", "2026-03-31")
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal("2026-03-09", events[0].Date)
	s.Equal("2026-03-05", events[1].Date)
	s.Equal("2026-03-02", events[2].Date)
	for _, event := range events {
		s.Equal(pid, event.PrincipalID)
	}
}

func (s *InMemorySuite) TestListAllOpenBounds() {
	for day := 1; day <= 3; day++ {
		date := time.Date(2026, 3, day, 8, 0, 0, 0, time.UTC)
		s.Require().NoError(s.store.Insert(s.ctx, s.event(id.NewPrincipalID(), date.Format(models.DateLayout), date)))
	}

	events, err := s.store.ListAll(s.ctx, "", "")
	s.Require().NoError(err)
	s.Len(events, 3)

	events, err = s.store.ListAll(s.ctx, "2026-03-02", "")
	s.Require().NoError(err)
	s.Len(events, 2)
}

func (s *InMemorySuite) TestMutationsDoNotLeakSharedState() {
	pid := id.NewPrincipalID()
	checkIn := time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC)
	event := s.event(pid, "2026-03-09", checkIn)
	s.Require().NoError(s.store.Insert(s.ctx, event))

	found, err := s.store.FindByPrincipalAndDate(s.ctx, pid, "2026-03-09")
	s.Require().NoError(err)
	leak := found.CheckInTime.Add(time.Hour)
	found.CheckOutTime = &leak

	again, err := s.store.FindByPrincipalAndDate(s.ctx, pid, "2026-03-09")
	s.Require().NoError(err)
	s.Nil(again.CheckOutTime)
}
