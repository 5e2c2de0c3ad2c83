package devicehealth

import (
	"context"
	"errors"
	"time"

	"github.com/mwhitt/trustrail/internal/circuitbreaker"
)

// ErrCircuitOpen is returned when the provider circuit is open.
var ErrCircuitOpen = errors.New("device health provider circuit open")

const breakerKey = "device_health"

// BreakerProvider wraps a Provider with a circuit breaker. After repeated
// provider failures the circuit opens and Fetch fails fast, so the scoring
// engine substitutes the neutral signal without waiting out the provider
// timeout on every request.
type BreakerProvider struct {
	inner Provider
	cb    *circuitbreaker.Breaker
}

// NewBreakerProvider wraps inner with a circuit that opens after threshold
// consecutive failures and probes again after openDuration.
func NewBreakerProvider(inner Provider, threshold int, openDuration time.Duration) *BreakerProvider {
	return &BreakerProvider{
		inner: inner,
		cb:    circuitbreaker.New(threshold, openDuration),
	}
}

func (p *BreakerProvider) Fetch(ctx context.Context, deviceID string, opts FetchOptions) (*Report, error) {
	if !p.cb.Allow(breakerKey) {
		return nil, ErrCircuitOpen
	}

	report, err := p.inner.Fetch(ctx, deviceID, opts)
	if err != nil {
		p.cb.RecordFailure(breakerKey)
		return nil, err
	}

	p.cb.RecordSuccess(breakerKey)
	return report, nil
}

// State exposes the circuit state, for health reporting.
func (p *BreakerProvider) State() circuitbreaker.State {
	return p.cb.State(breakerKey)
}
