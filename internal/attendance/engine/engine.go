// Package engine holds the attendance determination logic: given a
// principal's existing record for today (or none), decide whether this action
// is a check-in or a check-out and produce the mutation to persist.
//
// The engine is a pure decision. It never talks to storage; the caller
// supplies today's record and applies the returned mutation atomically. The
// store's uniqueness constraint on (principal, date) is the real guard
// against concurrent duplicate check-ins — the engine has no locking model,
// and its decision is only a fast path.
package engine

import (
	"errors"
	"time"

	"presence/internal/attendance/models"
	id "presence/pkg/domain"
)

var (
	// ErrAlreadyCompleted rejects a third action in one day.
	ErrAlreadyCompleted = errors.New("attendance already completed for today")

	// ErrInvalidState guards against corrupted records that carry a
	// check-out without a check-in. Should never occur in practice.
	ErrInvalidState = errors.New("attendance record has check-out without check-in")

	// ErrCheckOutNotAfterCheckIn enforces that the check-out instant is
	// strictly after the stored check-in instant.
	ErrCheckOutNotAfterCheckIn = errors.New("check-out instant must be after check-in instant")
)

// Rules parameterizes classification. The cutoff is inclusive: a check-in at
// exactly LateCutoffHour local time is late. Location fixes the timezone used
// for both the hour-of-day test and calendar date derivation.
type Rules struct {
	LateCutoffHour int
	Location       *time.Location
}

// DefaultRules matches the product default: 09:00 cutoff, UTC calendar.
func DefaultRules() Rules {
	return Rules{LateCutoffHour: 9, Location: time.UTC}
}

// Capture carries the successful recognition outcome for a check-in. The
// engine stores the confidence unmodified; it never recomputes it.
type Capture struct {
	Location   string
	Confidence *int
}

// Action distinguishes the two mutations the engine can produce.
type Action string

const (
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
)

// Mutation is the engine's decision: exactly one of Create or CheckOut is
// set, matching Action.
type Mutation struct {
	Action   Action
	Create   *models.Event
	CheckOut *CheckOutMutation
}

// CheckOutMutation updates an existing event with its check-out instant.
type CheckOutMutation struct {
	EventID id.EventID
	Time    time.Time
}

// Determine decides the action for a principal at the given instant.
//
//   - existing completed → ErrAlreadyCompleted
//   - existing without check-out → check-out mutation at now
//   - no record → check-in creation, late iff local hour >= cutoff
func (r Rules) Determine(principalID id.PrincipalID, now time.Time, existing *models.Event, capture Capture) (*Mutation, error) {
	if existing != nil {
		if existing.CheckInTime.IsZero() {
			return nil, ErrInvalidState
		}
		if existing.Completed() {
			return nil, ErrAlreadyCompleted
		}
		if !now.After(existing.CheckInTime) {
			return nil, ErrCheckOutNotAfterCheckIn
		}
		return &Mutation{
			Action: ActionCheckOut,
			CheckOut: &CheckOutMutation{
				EventID: existing.ID,
				Time:    now,
			},
		}, nil
	}

	classification := models.ClassificationOnTime
	if now.In(r.Location).Hour() >= r.LateCutoffHour {
		classification = models.ClassificationLate
	}

	event, err := models.NewEvent(
		id.NewEventID(),
		principalID,
		now,
		models.DateOf(now, r.Location),
		classification,
		capture.Location,
		capture.Confidence,
	)
	if err != nil {
		return nil, err
	}

	return &Mutation{
		Action: ActionCheckIn,
		Create: event,
	}, nil
}
