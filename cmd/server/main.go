package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"presence/internal/attendance/engine"
	attendancehandler "presence/internal/attendance/handler"
	attendancemetrics "presence/internal/attendance/metrics"
	attendanceservice "presence/internal/attendance/service"
	attendancestore "presence/internal/attendance/store"
	"presence/internal/audit"
	identityhandler "presence/internal/identity/handler"
	"presence/internal/identity/lockout"
	identitymetrics "presence/internal/identity/metrics"
	identityservice "presence/internal/identity/service"
	identitystore "presence/internal/identity/store"
	"presence/internal/jwttoken"
	"presence/internal/platform/config"
	"presence/internal/platform/httpserver"
	"presence/internal/platform/logger"
	"presence/internal/platform/metrics"
	"presence/internal/platform/postgres"
	redisplatform "presence/internal/platform/redis"
	"presence/internal/recognition"
	"presence/pkg/platform/circuit"
)

// main wires dependencies and supervises the server plus the audit worker.
// Business logic lives in the internal service packages.
func main() {
	_ = godotenv.Load()

	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditor := audit.NewPublisher(256, log)
	var sink audit.Sink
	kafkaSink, err := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}
	if kafkaSink != nil {
		sink = kafkaSink
		defer kafkaSink.Close()
	}
	worker := audit.NewWorker(audit.NewPostgresStore(db), sink, auditor.Events(), log)

	tokens := jwttoken.NewService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience)

	identitySvc := identityservice.New(
		identitystore.NewPostgres(db), tokens, cfg.JWT.AccessTokenTTL, log,
		identityservice.WithMetrics(identitymetrics.New()),
		identityservice.WithAuditor(auditor),
		identityservice.WithLockouts(lockout.New(lockout.DefaultConfig())),
	)

	var events attendanceservice.EventStore = attendancestore.NewPostgres(db)
	if redisClient != nil {
		events = attendancestore.NewCached(attendancestore.NewPostgres(db), redisClient.Client, log)
	}

	recognizer := recognition.NewGuarded(
		recognition.NewSimulated(cfg.Recognition.SuccessRate, time.Now().UnixNano()),
		circuit.New("recognition", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
		log,
	)

	attendanceSvc := attendanceservice.New(
		events, identitySvc, recognizer,
		engine.Rules{
			LateCutoffHour: cfg.Attendance.LateCutoffHour,
			Location:       cfg.Attendance.Location,
		},
		log,
		attendanceservice.WithMetrics(attendancemetrics.New()),
		attendanceservice.WithAuditor(auditor),
	)

	router := newRouter(log, metrics.New(), db, redisClient,
		identityhandler.New(identitySvc, log, tokens),
		attendancehandler.New(attendanceSvc, log, tokens),
	)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting presence server",
			"addr", cfg.Addr,
			"timezone", cfg.Attendance.Timezone,
			"late_cutoff_hour", cfg.Attendance.LateCutoffHour,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("audit worker: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		auditor.Drain(2 * time.Second)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
