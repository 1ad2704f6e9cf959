// Package domain holds shared identifier types used across modules.
//
// IDs are distinct named UUID types so a PrincipalID can never be passed
// where an EventID is expected. Construct them via the Parse functions at
// trust boundaries; direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "presence/pkg/domain-errors"
)

// PrincipalID identifies an authenticated user of the system.
type PrincipalID uuid.UUID

// EventID identifies a single attendance event.
type EventID uuid.UUID

// NewPrincipalID generates a fresh principal identifier.
func NewPrincipalID() PrincipalID { return PrincipalID(uuid.New()) }

// NewEventID generates a fresh event identifier.
func NewEventID() EventID { return EventID(uuid.New()) }

func (id PrincipalID) String() string { return uuid.UUID(id).String() }
func (id PrincipalID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id EventID) String() string { return uuid.UUID(id).String() }
func (id EventID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets typed IDs serialize as plain UUID strings in JSON.
func (id PrincipalID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *PrincipalID) UnmarshalText(b []byte) error {
	parsed, err := ParsePrincipalID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id EventID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *EventID) UnmarshalText(b []byte) error {
	parsed, err := ParseEventID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParsePrincipalID constructs a PrincipalID from external input.
//
// Errors: CodeInvalidInput when the value is empty, malformed, or the nil
// UUID; no other errors are expected.
func ParsePrincipalID(s string) (PrincipalID, error) {
	u, err := parseUUID(s, "principal id")
	if err != nil {
		return PrincipalID{}, err
	}
	return PrincipalID(u), nil
}

// ParseEventID constructs an EventID from external input.
func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID(s, "event id")
	if err != nil {
		return EventID{}, err
	}
	return EventID(u), nil
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be empty", field)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be the nil UUID", field)
	}
	return u, nil
}
