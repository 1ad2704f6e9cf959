package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"presence/internal/attendance/models"
	id "presence/pkg/domain"
	"presence/pkg/platform/sentinel"
)

// uniqueViolation is the pq error code for unique constraint violations. The
// attendance_events table carries UNIQUE (principal_id, date); that
// constraint, not the engine, is what guarantees at most one event per
// principal per day under concurrency.
const uniqueViolation = "23505"

// Postgres persists attendance events in PostgreSQL. Pure I/O; classification
// and state transitions belong to the engine.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const eventColumns = `id, principal_id, check_in_time, check_out_time, date, classification, location, confidence, created_at`

func (s *Postgres) Insert(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO attendance_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID.String(), event.PrincipalID.String(), event.CheckInTime, event.CheckOutTime,
		event.Date, string(event.Classification), nullIfEmpty(event.Location), event.Confidence, event.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert attendance event: %w", err)
	}
	return nil
}

// SetCheckOut records the check-out instant. Replaying the same instant is a
// no-op so a retried request cannot fail; any other second write conflicts.
func (s *Postgres) SetCheckOut(ctx context.Context, eventID id.EventID, checkOut time.Time) (*models.Event, error) {
	query := `
		UPDATE attendance_events SET check_out_time = $2
		WHERE id = $1 AND (check_out_time IS NULL OR check_out_time = $2)
		RETURNING ` + eventColumns
	event, err := scanEvent(s.db.QueryRowContext(ctx, query, eventID.String(), checkOut))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.checkOutMiss(ctx, eventID)
		}
		return nil, fmt.Errorf("set check-out: %w", err)
	}
	return event, nil
}

// checkOutMiss disambiguates a zero-row update: the event either does not
// exist or already carries a different check-out instant.
func (s *Postgres) checkOutMiss(ctx context.Context, eventID id.EventID) error {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM attendance_events WHERE id = $1)`
	if err := s.db.QueryRowContext(ctx, query, eventID.String()).Scan(&exists); err != nil {
		return fmt.Errorf("set check-out: %w", err)
	}
	if exists {
		return sentinel.ErrConflict
	}
	return sentinel.ErrNotFound
}

func (s *Postgres) FindByPrincipalAndDate(ctx context.Context, principalID id.PrincipalID, date string) (*models.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM attendance_events
		WHERE principal_id = $1 AND date = $2
	`
	event, err := scanEvent(s.db.QueryRowContext(ctx, query, principalID.String(), date))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find attendance event: %w", err)
	}
	return event, nil
}

func (s *Postgres) ListByPrincipal(ctx context.Context, principalID id.PrincipalID, from, to string) ([]*models.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM attendance_events
		WHERE principal_id = $1
		  AND ($2 = '' OR date >= $2)
		  AND ($3 = '' OR date <= $3)
		ORDER BY date DESC, check_in_time DESC
	`
	return s.list(ctx, query, principalID.String(), from, to)
}

func (s *Postgres) ListAll(ctx context.Context, from, to string) ([]*models.Event, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM attendance_events
		WHERE ($1 = '' OR date >= $1)
		  AND ($2 = '' OR date <= $2)
		ORDER BY date DESC, check_in_time DESC
	`
	return s.list(ctx, query, from, to)
}

func (s *Postgres) list(ctx context.Context, query string, args ...any) ([]*models.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendance events: %w", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var (
		event             models.Event
		rawID             string
		rawPrincipal      string
		rawClassification string
		checkOut          sql.NullTime
		location          sql.NullString
		confidence        sql.NullInt64
	)
	err := row.Scan(&rawID, &rawPrincipal, &event.CheckInTime, &checkOut, &event.Date,
		&rawClassification, &location, &confidence, &event.CreatedAt)
	if err != nil {
		return nil, err
	}

	eventID, err := id.ParseEventID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse event id: %w", err)
	}
	principalID, err := id.ParsePrincipalID(rawPrincipal)
	if err != nil {
		return nil, fmt.Errorf("parse principal id: %w", err)
	}

	event.ID = eventID
	event.PrincipalID = principalID
	event.Classification = models.Classification(rawClassification)
	if checkOut.Valid {
		t := checkOut.Time
		event.CheckOutTime = &t
	}
	event.Location = location.String
	if confidence.Valid {
		c := int(confidence.Int64)
		event.Confidence = &c
	}
	return &event, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
