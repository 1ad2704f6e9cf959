package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"presence/internal/attendance/models"
	"presence/internal/attendance/service"
	"presence/internal/attendance/stats"
	identitymodels "presence/internal/identity/models"
	"presence/internal/platform/middleware"
	id "presence/pkg/domain"
	dErrors "presence/pkg/domain-errors"
	"presence/pkg/platform/httputil"
	"presence/pkg/requestcontext"
)

// Service defines the attendance operations the handler needs.
type Service interface {
	Mark(ctx context.Context, location string) (*service.MarkResult, error)
	Today(ctx context.Context) (*models.Event, error)
	History(ctx context.Context, pid id.PrincipalID, from, to string) ([]*models.Event, error)
	MonthlyStats(ctx context.Context, pid id.PrincipalID, year int, month time.Month) (*stats.Monthly, error)
	AdminList(ctx context.Context, from, to, unit string) ([]service.AdminRecord, error)
	AdminMonthlyOverview(ctx context.Context, year int, month time.Month) ([]service.PrincipalMonthly, error)
	ExportCSV(ctx context.Context, w io.Writer, from, to, unit string) error
}

// Handler wires attendance endpoints to the service.
type Handler struct {
	attendance   Service
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

func New(attendance Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		attendance:   attendance,
		logger:       logger,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the attendance routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/attendance", func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

		r.Post("/mark", h.handleMark)
		r.Get("/today", h.handleToday)
		r.Get("/history", h.handleHistory)
		r.Get("/stats", h.handleStats)
	})

	r.Route("/admin/attendance", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Use(middleware.RequireRole(string(identitymodels.RoleAdministrator), h.logger))

		r.Get("/", h.handleAdminList)
		r.Get("/overview", h.handleAdminOverview)
		r.Get("/export", h.handleAdminExport)
	})
}

type markRequest struct {
	Location string `json:"location"`
}

func (h *Handler) handleMark(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// body is optional; an empty mark carries no location
	var req markRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}

	result, err := h.attendance.Mark(ctx, req.Location)
	if err != nil {
		h.logFailure(ctx, "mark attendance failed", err)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if result.Recognized && result.Action == "check_in" {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, result)
}

type todayResponse struct {
	Date      string        `json:"date"`
	Event     *models.Event `json:"event"`
	Completed bool          `json:"completed"`
}

func (h *Handler) handleToday(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	event, err := h.attendance.Today(ctx)
	if err != nil {
		h.logFailure(ctx, "today lookup failed", err)
		httputil.WriteError(w, err)
		return
	}

	resp := todayResponse{Event: event}
	if event != nil {
		resp.Date = event.Date
		resp.Completed = event.Completed()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	events, err := h.attendance.History(ctx, requestcontext.PrincipalID(ctx),
		r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		h.logFailure(ctx, "history listing failed", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	year, month, err := monthParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	monthly, err := h.attendance.MonthlyStats(ctx, requestcontext.PrincipalID(ctx), year, month)
	if err != nil {
		h.logFailure(ctx, "stats computation failed", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, monthly)
}

func (h *Handler) handleAdminList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	records, err := h.attendance.AdminList(ctx, q.Get("from"), q.Get("to"), q.Get("unit"))
	if err != nil {
		h.logFailure(ctx, "admin listing failed", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (h *Handler) handleAdminOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	year, month, err := monthParams(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rows, err := h.attendance.AdminMonthlyOverview(ctx, year, month)
	if err != nil {
		h.logFailure(ctx, "admin overview failed", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"year":       year,
		"month":      int(month),
		"principals": rows,
	})
}

func (h *Handler) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="attendance.csv"`)

	if err := h.attendance.ExportCSV(ctx, w, q.Get("from"), q.Get("to"), q.Get("unit")); err != nil {
		// headers may already be written; log and best-effort the error body
		h.logFailure(ctx, "csv export failed", err)
		httputil.WriteError(w, err)
	}
}

// monthParams reads year/month query parameters, defaulting to the current
// month in the request's timeline.
func monthParams(r *http.Request) (int, time.Month, error) {
	now := requestcontext.Now(r.Context())
	year, month := now.Year(), now.Month()

	q := r.URL.Query()
	if raw := q.Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, dErrors.Newf(dErrors.CodeInvalidInput, "invalid year %q", raw)
		}
		year = parsed
	}
	if raw := q.Get("month"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return 0, 0, dErrors.Newf(dErrors.CodeInvalidInput, "invalid month %q", raw)
		}
		month = time.Month(parsed)
	}
	return year, month, nil
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
