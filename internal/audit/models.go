// Package audit captures an append-only trail of attendance and identity
// actions. Events are emitted from services, buffered in-process, and drained
// by a worker into a store and an optional Kafka sink.
package audit

import (
	"context"
	"time"

	id "presence/pkg/domain"
)

// Actions recorded in the trail.
const (
	ActionCheckIn             = "check_in"
	ActionCheckOut            = "check_out"
	ActionMarkRejected        = "mark_rejected"
	ActionPrincipalRegistered = "principal_registered"
	ActionPrincipalEnrolled   = "principal_enrolled"
	ActionLogin               = "login"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID          id.EventID     `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	PrincipalID id.PrincipalID `json:"principal_id"`
	Action      string         `json:"action"`
	Outcome     string         `json:"outcome"`
	Detail      string         `json:"detail,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	ClientIP    string         `json:"client_ip,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
}

// Store persists audit events. Append-only; there is no delete.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByPrincipal(ctx context.Context, principalID id.PrincipalID) ([]Event, error)
}

// Sink receives events after they are persisted, e.g. a Kafka topic for
// downstream compliance consumers. Sink failures are logged, never fatal.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
