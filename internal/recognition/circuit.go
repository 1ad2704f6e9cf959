package recognition

import (
	"context"
	"errors"
	"log/slog"

	id "presence/pkg/domain"
	"presence/pkg/platform/circuit"
)

// ErrCircuitOpen is returned while the provider is considered down. Callers
// surface it as a temporary outage, distinct from a failed match.
var ErrCircuitOpen = errors.New("recognition provider circuit open")

// Guarded wraps a Provider with a circuit breaker. Provider errors trip the
// breaker; an unrecognized face is a normal outcome and does not count.
type Guarded struct {
	provider Provider
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewGuarded(provider Provider, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	return &Guarded{provider: provider, breaker: breaker, logger: logger}
}

func (g *Guarded) Verify(ctx context.Context, principalID id.PrincipalID) (Result, error) {
	if g.breaker.IsOpen() {
		// calls keep probing while open so consecutive successes can
		// close the circuit; failures surface as ErrCircuitOpen so the
		// caller reports an outage, not a failed match
		result, err := g.provider.Verify(ctx, principalID)
		if err != nil {
			g.breaker.RecordFailure()
			return Result{}, ErrCircuitOpen
		}
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.logger.Info("recognition circuit closed", "breaker", g.breaker.Name())
		}
		return result, nil
	}

	result, err := g.provider.Verify(ctx, principalID)
	if err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.Warn("recognition circuit opened", "breaker", g.breaker.Name(), "error", err)
		}
		return Result{}, err
	}
	g.breaker.RecordSuccess()
	return result, nil
}
