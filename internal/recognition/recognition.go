// Package recognition isolates face verification behind a capability
// interface so a real model can replace the stub without touching the
// attendance engine.
package recognition

import (
	"context"
	"math/rand"
	"sync"

	id "presence/pkg/domain"
)

// Result is the outcome of one verification attempt. Confidence is a
// percentage in [0, 100].
type Result struct {
	Success    bool   `json:"success"`
	Confidence int    `json:"confidence"`
	Message    string `json:"message"`
}

// Provider verifies that the request's capture matches the principal.
type Provider interface {
	Verify(ctx context.Context, principalID id.PrincipalID) (Result, error)
}

// Simulated is the stub provider: no computer vision, just a biased coin.
// Success rate defaults to 0.9; successful matches score confidence in
// [80, 100), failures in [40, 70).
type Simulated struct {
	mu          sync.Mutex
	rng         *rand.Rand
	successRate float64
}

// NewSimulated builds the stub with the given success rate and seed. The rng
// is owned by the provider and guarded by a mutex since verifications can
// arrive concurrently.
func NewSimulated(successRate float64, seed int64) *Simulated {
	if successRate < 0 || successRate > 1 {
		successRate = 0.9
	}
	return &Simulated{
		rng:         rand.New(rand.NewSource(seed)),
		successRate: successRate,
	}
}

func (s *Simulated) Verify(_ context.Context, _ id.PrincipalID) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() < s.successRate {
		confidence := 80 + int(s.rng.Float64()*20)
		return Result{
			Success:    true,
			Confidence: confidence,
			Message:    "face recognized",
		}, nil
	}

	confidence := 40 + int(s.rng.Float64()*30)
	return Result{
		Success:    false,
		Confidence: confidence,
		Message:    "face not recognized, please try again",
	}, nil
}
