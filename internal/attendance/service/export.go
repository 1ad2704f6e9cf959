package service

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	dErrors "presence/pkg/domain-errors"
)

// ExportCSV streams the admin attendance listing as CSV. Same filters as
// AdminList; timestamps are RFC 3339 in the service timezone.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, from, to, unit string) error {
	records, err := s.AdminList(ctx, from, to, unit)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"date", "full_name", "email", "badge_code", "unit", "classification", "check_in_time", "check_out_time", "location", "confidence"}
	if err := cw.Write(header); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write csv header")
	}

	for _, record := range records {
		event := record.Event
		checkOut := ""
		if event.CheckOutTime != nil {
			checkOut = event.CheckOutTime.In(s.rules.Location).Format(time.RFC3339)
		}
		confidence := ""
		if event.Confidence != nil {
			confidence = strconv.Itoa(*event.Confidence)
		}
		row := []string{
			event.Date,
			record.Principal.FullName,
			record.Principal.Email,
			record.Principal.BadgeCode,
			record.Principal.Unit,
			string(event.Classification),
			event.CheckInTime.In(s.rules.Location).Format(time.RFC3339),
			checkOut,
			event.Location,
			confidence,
		}
		if err := cw.Write(row); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write csv row")
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to flush csv")
	}
	return nil
}
