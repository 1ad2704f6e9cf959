package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence/internal/attendance/models"
	id "presence/pkg/domain"
)

var rules = DefaultRules()

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func existingEvent(pid id.PrincipalID, checkIn time.Time) *models.Event {
	return &models.Event{
		ID:             id.NewEventID(),
		PrincipalID:    pid,
		CheckInTime:    checkIn,
		Date:           models.DateOf(checkIn, time.UTC),
		Classification: models.ClassificationOnTime,
		CreatedAt:      checkIn,
	}
}

func TestDetermine_CheckInClassification(t *testing.T) {
	pid := id.NewPrincipalID()

	tests := []struct {
		name string
		now  time.Time
		want models.Classification
	}{
		{"hour 8 is on time", at(8, 59), models.ClassificationOnTime},
		{"hour 9 exactly is late (inclusive cutoff)", at(9, 0), models.ClassificationLate},
		{"hour 23 is late", at(23, 0), models.ClassificationLate},
		{"midnight is on time", at(0, 0), models.ClassificationOnTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := rules.Determine(pid, tt.now, nil, Capture{})
			require.NoError(t, err)
			require.Equal(t, ActionCheckIn, m.Action)
			require.NotNil(t, m.Create)
			assert.Nil(t, m.CheckOut)
			assert.Equal(t, tt.want, m.Create.Classification)
			assert.Equal(t, tt.now, m.Create.CheckInTime)
			assert.Equal(t, "2026-03-02", m.Create.Date)
			assert.Nil(t, m.Create.CheckOutTime)
		})
	}
}

func TestDetermine_CutoffRespectsTimezone(t *testing.T) {
	// 08:30 UTC is 10:30 in UTC+2: late there, on time in UTC.
	loc := time.FixedZone("UTC+2", 2*3600)
	tzRules := Rules{LateCutoffHour: 9, Location: loc}
	now := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

	m, err := tzRules.Determine(id.NewPrincipalID(), now, nil, Capture{})
	require.NoError(t, err)
	assert.Equal(t, models.ClassificationLate, m.Create.Classification)

	m, err = rules.Determine(id.NewPrincipalID(), now, nil, Capture{})
	require.NoError(t, err)
	assert.Equal(t, models.ClassificationOnTime, m.Create.Classification)
}

func TestDetermine_CheckInCarriesCapture(t *testing.T) {
	confidence := 93
	m, err := rules.Determine(id.NewPrincipalID(), at(8, 0), nil, Capture{
		Location:   "51.5074, -0.1278",
		Confidence: &confidence,
	})
	require.NoError(t, err)
	assert.Equal(t, "51.5074, -0.1278", m.Create.Location)
	require.NotNil(t, m.Create.Confidence)
	assert.Equal(t, 93, *m.Create.Confidence)
}

func TestDetermine_CheckInRejectsOutOfRangeConfidence(t *testing.T) {
	confidence := 101
	_, err := rules.Determine(id.NewPrincipalID(), at(8, 0), nil, Capture{Confidence: &confidence})
	require.Error(t, err)
}

func TestDetermine_CheckOut(t *testing.T) {
	pid := id.NewPrincipalID()
	existing := existingEvent(pid, at(8, 30))
	now := at(17, 0)

	m, err := rules.Determine(pid, now, existing, Capture{})
	require.NoError(t, err)
	require.Equal(t, ActionCheckOut, m.Action)
	require.NotNil(t, m.CheckOut)
	assert.Nil(t, m.Create)
	assert.Equal(t, existing.ID, m.CheckOut.EventID)
	assert.Equal(t, now, m.CheckOut.Time)
	assert.True(t, m.CheckOut.Time.After(existing.CheckInTime))
}

func TestDetermine_CheckOutMustBeAfterCheckIn(t *testing.T) {
	pid := id.NewPrincipalID()
	existing := existingEvent(pid, at(8, 30))

	_, err := rules.Determine(pid, at(8, 30), existing, Capture{})
	require.ErrorIs(t, err, ErrCheckOutNotAfterCheckIn)

	_, err = rules.Determine(pid, at(8, 0), existing, Capture{})
	require.ErrorIs(t, err, ErrCheckOutNotAfterCheckIn)
}

func TestDetermine_AlreadyCompleted(t *testing.T) {
	pid := id.NewPrincipalID()
	existing := existingEvent(pid, at(8, 30))
	checkOut := at(17, 0)
	existing.CheckOutTime = &checkOut

	_, err := rules.Determine(pid, at(18, 0), existing, Capture{})
	require.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestDetermine_InvalidState(t *testing.T) {
	pid := id.NewPrincipalID()
	checkOut := at(17, 0)
	corrupted := &models.Event{
		ID:           id.NewEventID(),
		PrincipalID:  pid,
		CheckOutTime: &checkOut,
	}

	_, err := rules.Determine(pid, at(18, 0), corrupted, Capture{})
	require.ErrorIs(t, err, ErrInvalidState)
}
