package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"presence/internal/attendance/engine"
	attendancemetrics "presence/internal/attendance/metrics"
	"presence/internal/attendance/models"
	"presence/internal/attendance/stats"
	"presence/internal/audit"
	identitymodels "presence/internal/identity/models"
	"presence/internal/recognition"
	id "presence/pkg/domain"
	dErrors "presence/pkg/domain-errors"
	"presence/pkg/platform/sentinel"
	"presence/pkg/requestcontext"
)

// overviewConcurrency bounds the fan-out when computing the admin monthly
// overview across all principals.
const overviewConcurrency = 8

// EventStore is the persistence contract the attendance service depends on.
// Stores return sentinel errors; this service translates them into coded
// domain errors.
type EventStore interface {
	Insert(ctx context.Context, event *models.Event) error
	SetCheckOut(ctx context.Context, eventID id.EventID, checkOut time.Time) (*models.Event, error)
	FindByPrincipalAndDate(ctx context.Context, principalID id.PrincipalID, date string) (*models.Event, error)
	ListByPrincipal(ctx context.Context, principalID id.PrincipalID, from, to string) ([]*models.Event, error)
	ListAll(ctx context.Context, from, to string) ([]*models.Event, error)
}

// PrincipalDirectory resolves principals for enrollment checks and admin
// views. Implemented by the identity service.
type PrincipalDirectory interface {
	Get(ctx context.Context, pid id.PrincipalID) (*identitymodels.Principal, error)
	List(ctx context.Context) ([]*identitymodels.Principal, error)
}

// Service orchestrates the mark flow (recognition, engine decision, storage)
// and attendance queries.
type Service struct {
	events     EventStore
	principals PrincipalDirectory
	recognizer recognition.Provider
	rules      engine.Rules
	logger     *slog.Logger
	metrics    *attendancemetrics.Metrics
	auditor    *audit.Publisher
}

// Option configures the Service.
type Option func(*Service)

// WithMetrics sets the metrics collector.
func WithMetrics(m *attendancemetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAuditor sets the audit publisher.
func WithAuditor(a *audit.Publisher) Option {
	return func(s *Service) { s.auditor = a }
}

func New(events EventStore, principals PrincipalDirectory, recognizer recognition.Provider, rules engine.Rules, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		events:     events,
		principals: principals,
		recognizer: recognizer,
		rules:      rules,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MarkResult is the outcome of one mark attempt. Recognized=false is a normal
// outcome, not an error: the camera saw someone it could not verify and the
// caller should prompt a retry.
type MarkResult struct {
	Recognized bool          `json:"recognized"`
	Confidence int           `json:"confidence"`
	Message    string        `json:"message,omitempty"`
	Action     string        `json:"action,omitempty"`
	Event      *models.Event `json:"event,omitempty"`
}

// Mark runs one attendance action for the authenticated principal: verify the
// face, decide check-in versus check-out from today's record, and persist the
// mutation. The store's uniqueness constraint is the final arbiter under
// concurrency; a lost race surfaces as CodeConflict and is never retried.
//
// Errors: CodeForbidden before enrollment; CodeConflict when today's
// attendance is already completed or a concurrent mark won; CodeInternal for
// infrastructure faults.
func (s *Service) Mark(ctx context.Context, location string) (*MarkResult, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.MarkDuration.Observe(time.Since(start).Seconds())
		}
	}()

	pid := requestcontext.PrincipalID(ctx)
	if pid.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	principal, err := s.principals.Get(ctx, pid)
	if err != nil {
		return nil, err
	}
	if !principal.Enrolled {
		return nil, dErrors.New(dErrors.CodeForbidden, "face enrollment required before marking attendance")
	}

	verification, err := s.recognizer.Verify(ctx, pid)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "recognition unavailable")
	}
	if !verification.Success {
		if s.metrics != nil {
			s.metrics.RecognitionFailures.Inc()
		}
		s.emitAudit(ctx, pid, audit.ActionMarkRejected, "recognition_failed",
			fmt.Sprintf("confidence=%d", verification.Confidence))
		return &MarkResult{
			Recognized: false,
			Confidence: verification.Confidence,
			Message:    verification.Message,
		}, nil
	}

	now := requestcontext.Now(ctx)
	existing, err := s.todayRecord(ctx, pid, now)
	if err != nil {
		return nil, err
	}

	confidence := verification.Confidence
	mutation, err := s.rules.Determine(pid, now, existing, engine.Capture{
		Location:   location,
		Confidence: &confidence,
	})
	if err != nil {
		return nil, s.rejectMark(ctx, pid, err)
	}

	event, err := s.apply(ctx, mutation)
	if err != nil {
		return nil, err
	}

	s.recordMark(ctx, mutation.Action, event)
	return &MarkResult{
		Recognized: true,
		Confidence: verification.Confidence,
		Message:    verification.Message,
		Action:     string(mutation.Action),
		Event:      event,
	}, nil
}

// rejectMark translates an engine rejection into a coded error and audits it.
func (s *Service) rejectMark(ctx context.Context, pid id.PrincipalID, err error) error {
	if s.metrics != nil {
		s.metrics.MarkRejected.WithLabelValues(rejectionReason(err)).Inc()
	}
	s.emitAudit(ctx, pid, audit.ActionMarkRejected, "rejected", err.Error())

	switch {
	case errors.Is(err, engine.ErrAlreadyCompleted):
		return dErrors.New(dErrors.CodeConflict, "attendance already completed for today")
	case errors.Is(err, engine.ErrCheckOutNotAfterCheckIn):
		return dErrors.New(dErrors.CodeConflict, "check-out must be after check-in")
	case errors.Is(err, engine.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "attendance record is corrupted")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to determine attendance action")
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, engine.ErrAlreadyCompleted):
		return "already_completed"
	case errors.Is(err, engine.ErrCheckOutNotAfterCheckIn):
		return "check_out_not_after_check_in"
	case errors.Is(err, engine.ErrInvalidState):
		return "invalid_state"
	default:
		return "other"
	}
}

func (s *Service) apply(ctx context.Context, mutation *engine.Mutation) (*models.Event, error) {
	switch mutation.Action {
	case engine.ActionCheckIn:
		if err := s.events.Insert(ctx, mutation.Create); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				// a concurrent mark created today's record first
				if s.metrics != nil {
					s.metrics.MarkRejected.WithLabelValues("concurrent_mark").Inc()
				}
				return nil, dErrors.New(dErrors.CodeConflict, "attendance already marked for today")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record check-in")
		}
		return mutation.Create, nil

	case engine.ActionCheckOut:
		event, err := s.events.SetCheckOut(ctx, mutation.CheckOut.EventID, mutation.CheckOut.Time)
		if err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return nil, dErrors.New(dErrors.CodeConflict, "attendance already completed for today")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record check-out")
		}
		return event, nil

	default:
		return nil, dErrors.Newf(dErrors.CodeInternal, "unknown attendance action %q", mutation.Action)
	}
}

func (s *Service) recordMark(ctx context.Context, action engine.Action, event *models.Event) {
	switch action {
	case engine.ActionCheckIn:
		if s.metrics != nil {
			s.metrics.CheckIns.WithLabelValues(string(event.Classification)).Inc()
		}
		s.emitAudit(ctx, event.PrincipalID, audit.ActionCheckIn, "success", string(event.Classification))
	case engine.ActionCheckOut:
		if s.metrics != nil {
			s.metrics.CheckOuts.Inc()
		}
		s.emitAudit(ctx, event.PrincipalID, audit.ActionCheckOut, "success", "")
	}
}

// Today returns the authenticated principal's record for the current day, or
// nil when no attendance has been marked yet.
func (s *Service) Today(ctx context.Context) (*models.Event, error) {
	pid := requestcontext.PrincipalID(ctx)
	if pid.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return s.todayRecord(ctx, pid, requestcontext.Now(ctx))
}

func (s *Service) todayRecord(ctx context.Context, pid id.PrincipalID, now time.Time) (*models.Event, error) {
	event, err := s.events.FindByPrincipalAndDate(ctx, pid, models.DateOf(now, s.rules.Location))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load today's attendance")
	}
	return event, nil
}

// History lists the principal's events in the inclusive [from, to] date
// range, newest first. Empty bounds are open.
func (s *Service) History(ctx context.Context, pid id.PrincipalID, from, to string) ([]*models.Event, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	events, err := s.events.ListByPrincipal(ctx, pid, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list attendance history")
	}
	return events, nil
}

// MonthlyStats computes the principal's statistics for a calendar month.
func (s *Service) MonthlyStats(ctx context.Context, pid id.PrincipalID, year int, month time.Month) (*stats.Monthly, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.StatsDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if err := validateMonth(year, month); err != nil {
		return nil, err
	}

	from, to := monthBounds(year, month, s.rules.Location)
	events, err := s.events.ListByPrincipal(ctx, pid, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list attendance for month")
	}

	monthly := stats.ComputeMonthly(events, year, month)
	return &monthly, nil
}

// AdminRecord pairs an attendance event with its principal for admin views.
type AdminRecord struct {
	Event     *models.Event  `json:"event"`
	Principal AdminPrincipal `json:"principal"`
}

// AdminPrincipal is the principal summary embedded in admin listings.
type AdminPrincipal struct {
	ID        id.PrincipalID `json:"id"`
	FullName  string         `json:"full_name"`
	Email     string         `json:"email"`
	BadgeCode string         `json:"badge_code"`
	Unit      string         `json:"unit"`
}

// AdminList returns all events in the date range joined with their
// principals, optionally filtered by unit. Callers enforce the administrator
// gate.
func (s *Service) AdminList(ctx context.Context, from, to, unit string) ([]AdminRecord, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}

	events, err := s.events.ListAll(ctx, from, to)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list attendance events")
	}

	byID, err := s.principalIndex(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]AdminRecord, 0, len(events))
	for _, event := range events {
		principal, ok := byID[event.PrincipalID]
		if !ok {
			s.logger.Warn("attendance event references unknown principal",
				"event_id", event.ID, "principal_id", event.PrincipalID)
			continue
		}
		if unit != "" && principal.Unit != unit {
			continue
		}
		records = append(records, AdminRecord{Event: event, Principal: adminPrincipal(principal)})
	}
	return records, nil
}

// PrincipalMonthly is one row of the admin monthly overview.
type PrincipalMonthly struct {
	Principal AdminPrincipal `json:"principal"`
	Stats     stats.Monthly  `json:"stats"`
}

// AdminMonthlyOverview computes monthly statistics for every principal,
// bounded fan-out. Rows are ordered like the principal directory.
func (s *Service) AdminMonthlyOverview(ctx context.Context, year int, month time.Month) ([]PrincipalMonthly, error) {
	if err := validateMonth(year, month); err != nil {
		return nil, err
	}

	principals, err := s.principals.List(ctx)
	if err != nil {
		return nil, err
	}

	from, to := monthBounds(year, month, s.rules.Location)
	rows := make([]PrincipalMonthly, len(principals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(overviewConcurrency)
	for i, principal := range principals {
		g.Go(func() error {
			events, err := s.events.ListByPrincipal(gctx, principal.ID, from, to)
			if err != nil {
				return fmt.Errorf("list events for %s: %w", principal.ID, err)
			}
			rows[i] = PrincipalMonthly{
				Principal: adminPrincipal(principal),
				Stats:     stats.ComputeMonthly(events, year, month),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute monthly overview")
	}
	return rows, nil
}

func (s *Service) principalIndex(ctx context.Context) (map[id.PrincipalID]*identitymodels.Principal, error) {
	principals, err := s.principals.List(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[id.PrincipalID]*identitymodels.Principal, len(principals))
	for _, p := range principals {
		byID[p.ID] = p
	}
	return byID, nil
}

func adminPrincipal(p *identitymodels.Principal) AdminPrincipal {
	return AdminPrincipal{
		ID:        p.ID,
		FullName:  p.FullName,
		Email:     p.Email,
		BadgeCode: p.BadgeCode,
		Unit:      p.Unit,
	}
}

func (s *Service) emitAudit(ctx context.Context, pid id.PrincipalID, action, outcome, detail string) {
	if s.auditor == nil {
		return
	}
	s.auditor.Emit(ctx, audit.Event{
		PrincipalID: pid,
		Action:      action,
		Outcome:     outcome,
		Detail:      detail,
	})
}

func validateRange(from, to string) error {
	for _, bound := range []string{from, to} {
		if bound == "" {
			continue
		}
		if _, err := time.Parse(models.DateLayout, bound); err != nil {
			return dErrors.Newf(dErrors.CodeInvalidInput, "invalid date %q, expected YYYY-MM-DD", bound)
		}
	}
	if from != "" && to != "" && from > to {
		return dErrors.New(dErrors.CodeInvalidInput, "from must not be after to")
	}
	return nil
}

func validateMonth(year int, month time.Month) error {
	if month < time.January || month > time.December {
		return dErrors.Newf(dErrors.CodeInvalidInput, "invalid month %d", month)
	}
	if year < 2000 || year > 2200 {
		return dErrors.Newf(dErrors.CodeInvalidInput, "invalid year %d", year)
	}
	return nil
}

func monthBounds(year int, month time.Month, loc *time.Location) (string, string) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := time.Date(year, month, stats.DaysInMonth(year, month), 0, 0, 0, 0, loc)
	return first.Format(models.DateLayout), last.Format(models.DateLayout)
}
