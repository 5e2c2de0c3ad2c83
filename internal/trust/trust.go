// Package trust implements the weighted multi-factor trust scoring engine.
//
// A TrustProfile is created lazily on an account's first scoring call and
// mutated by every scoring call, payment outcome, and risk flag. The score
// blends six named 0-100 signals: some computed deterministically from the
// audit trail and reference index, some supplied by the caller or an
// external provider. Identical stored state plus identical overrides always
// produce an identical result.
package trust

import (
	"fmt"
	"math"
	"time"
)

// Feature names. Every signal is a value in [0,100].
const (
	FeatureDeviceHealth    = "device_health"
	FeatureActivity        = "activity"
	FeatureSocialInfluence = "social_influence"
	FeatureFinancialTrust  = "financial_trust"
	FeatureSecurityScore   = "security_score"
	FeatureLongevity       = "longevity"
)

// featureOrder fixes the iteration order for deterministic aggregation.
var featureOrder = []string{
	FeatureDeviceHealth,
	FeatureActivity,
	FeatureSocialInfluence,
	FeatureFinancialTrust,
	FeatureSecurityScore,
	FeatureLongevity,
}

// NeutralSignal is substituted for any signal that has no override, no
// provider, and no internal source.
const NeutralSignal = 50.0

// Tier is the coarse trust classification derived from the score.
type Tier string

const (
	TierUnranked Tier = "unranked" // < 40
	TierBronze   Tier = "bronze"   // 40-59
	TierSilver   Tier = "silver"   // 60-74
	TierGold     Tier = "gold"     // 75-89
	TierPlatinum Tier = "platinum" // >= 90
)

// TierForScore maps a score to its tier. Pure and not a ratchet: a score
// drop lowers the tier.
func TierForScore(score float64) Tier {
	switch {
	case score >= 90:
		return TierPlatinum
	case score >= 75:
		return TierGold
	case score >= 60:
		return TierSilver
	case score >= 40:
		return TierBronze
	default:
		return TierUnranked
	}
}

// Weights is the scoring weight vector. It must sum to 1.0; the engine
// rejects anything else rather than silently normalizing.
type Weights struct {
	DeviceHealth    float64 `json:"deviceHealth"`
	Activity        float64 `json:"activity"`
	SocialInfluence float64 `json:"socialInfluence"`
	FinancialTrust  float64 `json:"financialTrust"`
	SecurityScore   float64 `json:"securityScore"`
	Longevity       float64 `json:"longevity"`
}

// DefaultWeights leans on financial behavior and security posture.
var DefaultWeights = Weights{
	DeviceHealth:    0.15,
	Activity:        0.15,
	SocialInfluence: 0.10,
	FinancialTrust:  0.30,
	SecurityScore:   0.20,
	Longevity:       0.10,
}

// weightEpsilon is the tolerance when checking that weights sum to 1.0.
const weightEpsilon = 1e-6

// Validate checks the weight vector.
func (w Weights) Validate() error {
	for name, v := range w.byFeature() {
		if v < 0 {
			return fmt.Errorf("weight %s is negative (%f)", name, v)
		}
	}
	sum := w.DeviceHealth + w.Activity + w.SocialInfluence + w.FinancialTrust + w.SecurityScore + w.Longevity
	if math.Abs(sum-1.0) > weightEpsilon {
		return fmt.Errorf("weights must sum to 1.0, got %g", sum)
	}
	return nil
}

func (w Weights) byFeature() map[string]float64 {
	return map[string]float64{
		FeatureDeviceHealth:    w.DeviceHealth,
		FeatureActivity:        w.Activity,
		FeatureSocialInfluence: w.SocialInfluence,
		FeatureFinancialTrust:  w.FinancialTrust,
		FeatureSecurityScore:   w.SecurityScore,
		FeatureLongevity:       w.Longevity,
	}
}

// RiskFlag is an accumulated mark against an account. Flags are never
// removed.
type RiskFlag struct {
	ID        string    `json:"id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// Profile is the mutable per-account trust aggregate. Created lazily,
// never deleted.
type Profile struct {
	AccountID       string             `json:"accountId"`
	Score           float64            `json:"score"`
	Tier            Tier               `json:"tier"`
	Components      map[string]float64 `json:"components"`
	TotalSpentCents int64              `json:"totalSpentCents"`
	Transactions    int                `json:"transactions"`
	Successes       int                `json:"successes"`
	Failures        int                `json:"failures"`
	RiskPoints      float64            `json:"riskPoints"` // 0-100
	Flags           []*RiskFlag        `json:"flags"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// SuccessRatio returns successes/transactions, or 0 with no transactions.
func (p *Profile) SuccessRatio() float64 {
	if p.Transactions == 0 {
		return 0
	}
	return float64(p.Successes) / float64(p.Transactions)
}

// AverageTransactionCents returns the mean transaction amount.
func (p *Profile) AverageTransactionCents() float64 {
	if p.Transactions == 0 {
		return 0
	}
	return float64(p.TotalSpentCents) / float64(p.Transactions)
}

// Recommendation suggests how an account can raise a weak signal.
type Recommendation struct {
	Feature       string  `json:"feature"`
	Message       string  `json:"message"`
	PotentialGain float64 `json:"potentialGain"` // estimated score points
}

// Result is the outcome of one scoring call.
type Result struct {
	AccountID       string             `json:"accountId"`
	Score           float64            `json:"score"`
	Tier            Tier               `json:"tier"`
	Components      map[string]float64 `json:"components"`
	Recommendations []Recommendation   `json:"recommendations"`
	CalculatedAt    time.Time          `json:"calculatedAt"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
