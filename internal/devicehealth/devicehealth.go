// Package devicehealth defines the external device health capability
// consumed by the scoring engine, plus a Redis-backed cache decorator.
//
// The engine treats providers as best-effort: a timeout or error never
// fails a scoring request, it just substitutes the neutral default.
package devicehealth

import (
	"context"
	"time"
)

// Report is the provider's assessment of a device.
type Report struct {
	DeviceID  string    `json:"deviceId"`
	Score     float64   `json:"score"` // 0-100
	Attested  bool      `json:"attested"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// FetchOptions controls a single fetch.
type FetchOptions struct {
	// BypassCache forces a fresh fetch from the underlying provider even
	// when a cached report exists.
	BypassCache bool
}

// Provider fetches device health reports. Implementations must honor the
// caller's context deadline.
type Provider interface {
	Fetch(ctx context.Context, deviceID string, opts FetchOptions) (*Report, error)
}

// StaticProvider returns canned reports, for tests and demo mode.
type StaticProvider struct {
	Reports map[string]*Report
	// DefaultScore is returned for devices not in Reports.
	DefaultScore float64
}

// NewStaticProvider creates a provider that scores every device the same.
func NewStaticProvider(defaultScore float64) *StaticProvider {
	return &StaticProvider{Reports: make(map[string]*Report), DefaultScore: defaultScore}
}

func (p *StaticProvider) Fetch(ctx context.Context, deviceID string, _ FetchOptions) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r, ok := p.Reports[deviceID]; ok {
		cp := *r
		return &cp, nil
	}
	return &Report{
		DeviceID:  deviceID,
		Score:     p.DefaultScore,
		FetchedAt: time.Now(),
	}, nil
}
