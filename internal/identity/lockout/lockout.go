// Package lockout throttles credential guessing. Failed logins are counted
// per (identifier, client IP); crossing the threshold hard-locks that pair
// for a cooldown period. State is in-process: a restart clears it, which is
// an acceptable trade for this attack surface.
package lockout

import (
	"fmt"
	"sync"
	"time"
)

// Config tunes the guard.
type Config struct {
	// MaxFailures within Window triggers a lock.
	MaxFailures int
	// Window is the sliding interval failures are counted over.
	Window time.Duration
	// LockDuration is how long a locked pair stays blocked.
	LockDuration time.Duration
}

// DefaultConfig: 5 failures per 15 minutes, 15 minute lock.
func DefaultConfig() Config {
	return Config{
		MaxFailures:  5,
		Window:       15 * time.Minute,
		LockDuration: 15 * time.Minute,
	}
}

type entry struct {
	failures    int
	lastFailure time.Time
	lockedUntil time.Time
}

// Guard is a concurrency-safe failed-login tracker.
type Guard struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*entry
}

func New(cfg Config) *Guard {
	if cfg.MaxFailures <= 0 {
		cfg = DefaultConfig()
	}
	return &Guard{cfg: cfg, entries: make(map[string]*entry)}
}

// Key combines the login identifier with the client IP so an attacker
// rotating targets from one address and one target hit from many addresses
// are throttled independently.
func Key(identifier, ip string) string {
	return fmt.Sprintf("%s|%s", identifier, ip)
}

// Check reports whether the pair is currently locked and, if so, how long
// until another attempt is allowed.
func (g *Guard) Check(key string, now time.Time) (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[key]
	if !ok {
		return 0, false
	}
	if now.Before(e.lockedUntil) {
		return e.lockedUntil.Sub(now), true
	}
	return 0, false
}

// RecordFailure counts a failed attempt, locking the pair when the threshold
// is reached within the window.
func (g *Guard) RecordFailure(key string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[key]
	if !ok || now.Sub(e.lastFailure) > g.cfg.Window {
		e = &entry{}
		g.entries[key] = e
	}

	e.failures++
	e.lastFailure = now
	if e.failures >= g.cfg.MaxFailures {
		e.lockedUntil = now.Add(g.cfg.LockDuration)
		e.failures = 0
	}
}

// Clear forgets the pair after a successful login.
func (g *Guard) Clear(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.entries, key)
}
