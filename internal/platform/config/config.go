// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a development default; production must
// override at least the database URL and JWT signing key.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration for the attendance service.
type Config struct {
	Addr        string
	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
	JWT         JWTConfig
	Attendance  AttendanceConfig
	Recognition RecognitionConfig
}

// RedisConfig controls the optional Redis cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig controls the optional Kafka audit sink. Empty brokers disable it.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// JWTConfig configures access token signing and validation.
type JWTConfig struct {
	SigningKey     string
	Issuer         string
	Audience       string
	AccessTokenTTL time.Duration
}

// AttendanceConfig holds the classification rules.
//
// LateCutoffHour is inclusive: a check-in at exactly the cutoff hour is late.
// Timezone fixes the calendar-date policy explicitly; local server time is
// never used implicitly.
type AttendanceConfig struct {
	LateCutoffHour int
	Timezone       string
	Location       *time.Location
}

// RecognitionConfig tunes the simulated face verification step.
type RecognitionConfig struct {
	SuccessRate   float64
	MinConfidence int
}

// FromEnv builds a Config from environment variables, applying development
// defaults for anything unset.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:        envOr("PRESENCE_ADDR", ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: envOr("KAFKA_AUDIT_TOPIC", "presence.audit"),
		},
		JWT: JWTConfig{
			SigningKey:     envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:         envOr("JWT_ISSUER", "presence"),
			Audience:       envOr("JWT_AUDIENCE", "presence-api"),
			AccessTokenTTL: envDuration("JWT_ACCESS_TOKEN_TTL", 12*time.Hour),
		},
		Attendance: AttendanceConfig{
			LateCutoffHour: envInt("LATE_CUTOFF_HOUR", 9),
			Timezone:       envOr("ATTENDANCE_TIMEZONE", "UTC"),
		},
		Recognition: RecognitionConfig{
			SuccessRate:   envFloat("RECOGNITION_SUCCESS_RATE", 0.9),
			MinConfidence: envInt("RECOGNITION_MIN_CONFIDENCE", 0),
		},
	}

	if cfg.Attendance.LateCutoffHour < 0 || cfg.Attendance.LateCutoffHour > 23 {
		return Config{}, fmt.Errorf("LATE_CUTOFF_HOUR must be in [0,23], got %d", cfg.Attendance.LateCutoffHour)
	}

	loc, err := time.LoadLocation(cfg.Attendance.Timezone)
	if err != nil {
		return Config{}, fmt.Errorf("load timezone %q: %w", cfg.Attendance.Timezone, err)
	}
	cfg.Attendance.Location = loc

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
