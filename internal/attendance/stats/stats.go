// Package stats aggregates attendance events into monthly figures.
package stats

import (
	"math"
	"time"

	"presence/internal/attendance/models"
)

// Monthly summarizes one principal's attendance for a calendar month.
//
// AbsentDays counts every day of the month without an event, including
// weekends and days that have not elapsed yet: there is no workday or
// holiday calendar. AttendancePercentage is rounded to the nearest integer.
type Monthly struct {
	TotalDays            int `json:"total_days"`
	PresentDays          int `json:"present_days"`
	LateDays             int `json:"late_days"`
	AbsentDays           int `json:"absent_days"`
	AttendancePercentage int `json:"attendance_percentage"`
}

// DaysInMonth returns the number of calendar days in the month, leap-aware.
func DaysInMonth(year int, month time.Month) int {
	// day 0 of the next month is the last day of this month
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ComputeMonthly derives the monthly summary from the principal's events for
// the target month. Pure and order-insensitive: identical input sets produce
// identical output regardless of ordering. Events outside the month are the
// caller's responsibility to exclude; classification absent is ignored since
// absence is derived, never stored.
func ComputeMonthly(events []*models.Event, year int, month time.Month) Monthly {
	return ComputeForDays(events, DaysInMonth(year, month))
}

// ComputeForDays aggregates over an explicit day count. A non-positive count
// cannot occur for real months but is guarded anyway: the percentage is 0
// rather than a division by zero.
func ComputeForDays(events []*models.Event, totalDays int) Monthly {
	var present, late int
	for _, e := range events {
		switch e.Classification {
		case models.ClassificationOnTime:
			present++
		case models.ClassificationLate:
			late++
		}
	}

	percentage := 0
	if totalDays > 0 {
		percentage = int(math.Round(100 * float64(present+late) / float64(totalDays)))
	}

	return Monthly{
		TotalDays:            totalDays,
		PresentDays:          present,
		LateDays:             late,
		AbsentDays:           totalDays - present - late,
		AttendancePercentage: percentage,
	}
}
