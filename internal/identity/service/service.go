package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"presence/internal/audit"
	"presence/internal/identity/lockout"
	identitymetrics "presence/internal/identity/metrics"
	"presence/internal/identity/models"
	id "presence/pkg/domain"
	dErrors "presence/pkg/domain-errors"
	"presence/pkg/email"
	"presence/pkg/platform/sentinel"
	"presence/pkg/requestcontext"
)

// PrincipalStore is the persistence contract the identity service depends
// on. Stores return sentinel errors; this service translates them into coded
// domain errors.
type PrincipalStore interface {
	Create(ctx context.Context, p *models.Principal) error
	FindByID(ctx context.Context, pid id.PrincipalID) (*models.Principal, error)
	FindByEmail(ctx context.Context, email string) (*models.Principal, error)
	SetEnrolled(ctx context.Context, pid id.PrincipalID) (*models.Principal, error)
	List(ctx context.Context) ([]*models.Principal, error)
}

// TokenIssuer mints access tokens after a successful login.
type TokenIssuer interface {
	GenerateAccessToken(principalID id.PrincipalID, role string, expiresIn time.Duration) (string, error)
}

// Service orchestrates principal lifecycle and authentication.
type Service struct {
	principals PrincipalStore
	tokens     TokenIssuer
	tokenTTL   time.Duration
	logger     *slog.Logger
	metrics    *identitymetrics.Metrics
	auditor    *audit.Publisher
	lockouts   *lockout.Guard
}

// Option configures the Service.
type Option func(*Service)

// WithMetrics sets the metrics collector.
func WithMetrics(m *identitymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAuditor sets the audit publisher.
func WithAuditor(a *audit.Publisher) Option {
	return func(s *Service) { s.auditor = a }
}

// WithLockouts enables failed-login throttling.
func WithLockouts(g *lockout.Guard) Option {
	return func(s *Service) { s.lockouts = g }
}

func New(principals PrincipalStore, tokens TokenIssuer, tokenTTL time.Duration, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		principals: principals,
		tokens:     tokens,
		tokenTTL:   tokenTTL,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterParams carries self-registration input.
type RegisterParams struct {
	Email     string
	Password  string
	FullName  string
	BadgeCode string
	Unit      string
	Role      string
}

// Register creates a new principal with a bcrypt-hashed password.
//
// Errors: CodeInvalidInput for bad fields; CodeConflict when the email or
// badge code is already taken.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*models.Principal, error) {
	role, err := models.ParseRole(params.Role)
	if err != nil {
		return nil, err
	}
	if len(params.Password) < 8 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "password must be at least 8 characters")
	}
	if strings.TrimSpace(params.FullName) == "" {
		params.FullName = email.DeriveDisplayName(params.Email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	principal, err := models.NewPrincipal(
		id.NewPrincipalID(),
		params.Email, params.FullName, params.BadgeCode, params.Unit,
		role, string(hash), requestcontext.Now(ctx),
	)
	if err != nil {
		return nil, err
	}

	if err := s.principals.Create(ctx, principal); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email or badge code already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create principal")
	}

	if s.metrics != nil {
		s.metrics.PrincipalsRegistered.Inc()
	}
	s.emitAudit(ctx, principal.ID, audit.ActionPrincipalRegistered, "success", principal.Email)

	return principal, nil
}

// Login verifies credentials and returns an access token plus the principal.
//
// Errors: CodeUnauthorized for unknown email or wrong password (the two
// cases are deliberately indistinguishable to callers); CodeRateLimited when
// the email/IP pair is locked out after repeated failures.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.Principal, error) {
	lockKey := lockout.Key(email, requestcontext.ClientIP(ctx))
	if s.lockouts != nil {
		if retryAfter, locked := s.lockouts.Check(lockKey, requestcontext.Now(ctx)); locked {
			s.emitAudit(ctx, id.PrincipalID{}, audit.ActionLogin, "locked_out", email)
			return "", nil, dErrors.Newf(dErrors.CodeRateLimited,
				"too many failed attempts, retry in %ds", int(retryAfter.Seconds()))
		}
	}

	principal, err := s.principals.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.recordLoginFailure(ctx, lockKey)
			return "", nil, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
		}
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up principal")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(principal.PasswordHash), []byte(password)); err != nil {
		s.recordLoginFailure(ctx, lockKey)
		return "", nil, dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")
	}

	if s.lockouts != nil {
		s.lockouts.Clear(lockKey)
	}

	token, err := s.tokens.GenerateAccessToken(principal.ID, string(principal.Role), s.tokenTTL)
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	if s.metrics != nil {
		s.metrics.LoginsSucceeded.Inc()
	}
	s.emitAudit(ctx, principal.ID, audit.ActionLogin, "success", "")

	return token, principal, nil
}

// Get returns the principal for the given ID.
func (s *Service) Get(ctx context.Context, pid id.PrincipalID) (*models.Principal, error) {
	principal, err := s.principals.FindByID(ctx, pid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "principal not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up principal")
	}
	return principal, nil
}

// MarkEnrolled records that the principal completed face enrollment.
func (s *Service) MarkEnrolled(ctx context.Context, pid id.PrincipalID) (*models.Principal, error) {
	principal, err := s.principals.SetEnrolled(ctx, pid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "principal not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark enrolled")
	}
	s.emitAudit(ctx, pid, audit.ActionPrincipalEnrolled, "success", "")
	return principal, nil
}

// List returns all principals. Callers must enforce the administrator gate.
func (s *Service) List(ctx context.Context) ([]*models.Principal, error) {
	principals, err := s.principals.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list principals")
	}
	return principals, nil
}

func (s *Service) recordLoginFailure(ctx context.Context, lockKey string) {
	if s.metrics != nil {
		s.metrics.LoginsFailed.Inc()
	}
	if s.lockouts != nil {
		s.lockouts.RecordFailure(lockKey, requestcontext.Now(ctx))
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
