package models

import (
	"time"

	id "presence/pkg/domain"
	dErrors "presence/pkg/domain-errors"
)

// Classification of a day's attendance.
//
// Absent is derived-only: it is never written by the check-in path and only
// appears in monthly statistics as the count of days with no event.
type Classification string

const (
	ClassificationOnTime Classification = "on_time"
	ClassificationLate   Classification = "late"
	ClassificationAbsent Classification = "absent"
)

// DateLayout is the calendar-date encoding stored alongside each event. The
// date is redundant with CheckInTime but kept for query efficiency and the
// (principal, date) uniqueness constraint.
const DateLayout = "2006-01-02"

// DateOf derives the calendar date of an instant in the given timezone.
func DateOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// Event is one day's check-in/check-out record for a principal.
//
// Invariants:
//   - At most one event per (principal, date); enforced by the store's
//     uniqueness constraint, with the engine's decision as a fast path only
//   - CheckOutTime, when set, is strictly after CheckInTime
//   - Confidence, when set, lies in [0, 100]
//   - An event is created once on first check-in, mutated exactly once to
//     add the check-out instant, and never touched again
type Event struct {
	ID             id.EventID     `json:"id"`
	PrincipalID    id.PrincipalID `json:"principal_id"`
	CheckInTime    time.Time      `json:"check_in_time"`
	CheckOutTime   *time.Time     `json:"check_out_time,omitempty"`
	Date           string         `json:"date"`
	Classification Classification `json:"classification"`
	Location       string         `json:"location,omitempty"`
	Confidence     *int           `json:"confidence,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NewEvent validates and constructs a check-in event. The classification is
// decided by the engine; this constructor only guards data invariants.
func NewEvent(eventID id.EventID, principalID id.PrincipalID, checkIn time.Time, date string, classification Classification, location string, confidence *int) (*Event, error) {
	if principalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "principal id is required")
	}
	if checkIn.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "check-in time is required")
	}
	if date == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "date is required")
	}
	if classification != ClassificationOnTime && classification != ClassificationLate {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "classification %q cannot be persisted on check-in", classification)
	}
	if confidence != nil && (*confidence < 0 || *confidence > 100) {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "confidence %d outside [0,100]", *confidence)
	}

	return &Event{
		ID:             eventID,
		PrincipalID:    principalID,
		CheckInTime:    checkIn,
		Date:           date,
		Classification: classification,
		Location:       location,
		Confidence:     confidence,
		CreatedAt:      checkIn,
	}, nil
}

// Completed reports whether the day's attendance is finished (both check-in
// and check-out recorded).
func (e *Event) Completed() bool {
	return e.CheckOutTime != nil
}
