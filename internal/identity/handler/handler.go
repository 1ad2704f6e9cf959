package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"presence/internal/identity/models"
	"presence/internal/identity/service"
	"presence/internal/platform/middleware"
	id "presence/pkg/domain"
	dErrors "presence/pkg/domain-errors"
	"presence/pkg/platform/httputil"
	"presence/pkg/requestcontext"
)

// Service defines the identity operations the handler needs.
type Service interface {
	Register(ctx context.Context, params service.RegisterParams) (*models.Principal, error)
	Login(ctx context.Context, email, password string) (string, *models.Principal, error)
	Get(ctx context.Context, pid id.PrincipalID) (*models.Principal, error)
	MarkEnrolled(ctx context.Context, pid id.PrincipalID) (*models.Principal, error)
	List(ctx context.Context) ([]*models.Principal, error)
}

// Handler wires identity endpoints to the service.
type Handler struct {
	identity     Service
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

func New(identity Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		identity:     identity,
		logger:       logger,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the identity routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Use(middleware.ContentTypeJSON)

		r.Post("/signup", h.handleSignup)
		r.Post("/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
			r.Get("/me", h.handleMe)
			r.Post("/enroll", h.handleEnroll)
		})
	})

	r.Route("/admin/principals", func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Use(middleware.RequireRole(string(models.RoleAdministrator), h.logger))
		r.Get("/", h.handleListPrincipals)
	})
}

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FullName  string `json:"full_name"`
	BadgeCode string `json:"badge_code"`
	Unit      string `json:"unit"`
	Role      string `json:"role"`
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	principal, err := h.identity.Register(ctx, service.RegisterParams{
		Email:     req.Email,
		Password:  req.Password,
		FullName:  req.FullName,
		BadgeCode: req.BadgeCode,
		Unit:      req.Unit,
		Role:      req.Role,
	})
	if err != nil {
		h.logFailure(ctx, "signup failed", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, principal)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string            `json:"access_token"`
	TokenType   string            `json:"token_type"`
	Principal   *models.Principal `json:"principal"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	token, principal, err := h.identity.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.logFailure(ctx, "login failed", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		Principal:   principal,
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, err := h.identity.Get(ctx, requestcontext.PrincipalID(ctx))
	if err != nil {
		h.logFailure(ctx, "principal lookup failed", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, principal)
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, err := h.identity.MarkEnrolled(ctx, requestcontext.PrincipalID(ctx))
	if err != nil {
		h.logFailure(ctx, "enrollment failed", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, principal)
}

func (h *Handler) handleListPrincipals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principals, err := h.identity.List(ctx)
	if err != nil {
		h.logFailure(ctx, "principal listing failed", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"principals": principals})
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	attrs := []any{
		"error", err.Error(),
		"request_id", requestcontext.RequestID(ctx),
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
		return
	}
	h.logger.WarnContext(ctx, msg, attrs...)
}
