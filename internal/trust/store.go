package trust

import (
	"context"
	"time"
)

// ProfileStore persists trust profiles. Profiles are upserted, never
// deleted; flags only ever accumulate.
type ProfileStore interface {
	// Get returns the profile, or (nil, nil) if the account has none yet.
	Get(ctx context.Context, accountID string) (*Profile, error)
	// Create inserts a fresh profile.
	Create(ctx context.Context, profile *Profile) error
	// UpdateScore stores the latest score, tier, and component breakdown.
	UpdateScore(ctx context.Context, accountID string, score float64, tier Tier, components map[string]float64, at time.Time) error
	// RecordPayment updates the transaction aggregates.
	RecordPayment(ctx context.Context, accountID string, amountCents int64, success bool) error
	// AddFlag appends a flag and sets the new risk point total.
	AddFlag(ctx context.Context, accountID string, flag *RiskFlag, riskPoints float64) error
}
