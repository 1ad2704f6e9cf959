package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	attendancehandler "presence/internal/attendance/handler"
	identityhandler "presence/internal/identity/handler"
	"presence/internal/platform/metrics"
	"presence/internal/platform/middleware"
	"presence/internal/platform/postgres"
	redisplatform "presence/internal/platform/redis"
	"presence/pkg/platform/httputil"
)

// newRouter assembles the root router: global middleware, operational
// endpoints, and the domain handlers.
func newRouter(
	log *slog.Logger,
	m *metrics.Metrics,
	db *sql.DB,
	redisClient *redisplatform.Client,
	identity *identityhandler.Handler,
	attendance *attendancehandler.Handler,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Latency(m))

	r.Get("/health", healthHandler(db, redisClient))
	r.Handle("/metrics", promhttp.Handler())

	identity.Register(r)
	attendance.Register(r)

	return r
}

func healthHandler(db *sql.DB, redisClient *redisplatform.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := map[string]string{"postgres": "ok"}
		healthy := true

		if err := postgres.Health(ctx, db); err != nil {
			checks["postgres"] = err.Error()
			healthy = false
		}
		if redisClient != nil {
			checks["redis"] = "ok"
			if err := redisClient.Health(ctx); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			}
		}

		status := http.StatusOK
		state := "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{
			"status": state,
			"checks": checks,
		})
	}
}
