package audit

import (
	"context"
	"database/sql"
	"fmt"

	id "presence/pkg/domain"
)

// PostgresStore persists the audit trail in PostgreSQL. Pure I/O; event
// construction and metadata stamping happen in the publisher.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (id, occurred_at, principal_id, action, outcome, detail, request_id, client_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	var principalID any
	if !event.PrincipalID.IsNil() {
		principalID = event.PrincipalID.String()
	}
	_, err := s.db.ExecContext(ctx, query,
		event.ID.String(),
		event.Timestamp,
		principalID,
		event.Action,
		event.Outcome,
		event.Detail,
		event.RequestID,
		event.ClientIP,
		event.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByPrincipal(ctx context.Context, principalID id.PrincipalID) ([]Event, error) {
	query := `
		SELECT id, occurred_at, principal_id, action, outcome, detail, request_id, client_ip, user_agent
		FROM audit_events
		WHERE principal_id = $1
		ORDER BY occurred_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, principalID.String())
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			eventID string
			pid     sql.NullString
		)
		if err := rows.Scan(&eventID, &e.Timestamp, &pid, &e.Action, &e.Outcome, &e.Detail, &e.RequestID, &e.ClientIP, &e.UserAgent); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if e.ID, err = id.ParseEventID(eventID); err != nil {
			return nil, fmt.Errorf("parse audit event id: %w", err)
		}
		if pid.Valid {
			if e.PrincipalID, err = id.ParsePrincipalID(pid.String); err != nil {
				return nil, fmt.Errorf("parse audit principal id: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
