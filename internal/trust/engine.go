package trust

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/mwhitt/trustrail/internal/audit"
	"github.com/mwhitt/trustrail/internal/devicehealth"
	"github.com/mwhitt/trustrail/internal/idgen"
	"github.com/mwhitt/trustrail/internal/metrics"
	"github.com/mwhitt/trustrail/internal/syncutil"
	"github.com/mwhitt/trustrail/internal/traces"
	"github.com/mwhitt/trustrail/internal/validation"
)

// EventSource is the slice of the audit trail the engine reads.
type EventSource interface {
	CountSince(ctx context.Context, accountID string, since time.Time) (int, error)
	DistinctGateways(ctx context.Context, accountID string, eventType audit.EventType) ([]string, error)
}

// ReferenceSource is the slice of the reference index the engine reads.
type ReferenceSource interface {
	SharedReferenceCount(ctx context.Context, accountID string) (int, error)
}

// Config holds the scoring thresholds and the weight vector.
type Config struct {
	Weights Weights

	// financial_trust thresholds
	SpendThresholdCents  int64
	AvgTxnThresholdCents int64
	FailureThreshold     int
	RiskPointsThreshold  float64

	// Risk flag accumulator
	FlagRiskIncrement float64
	// FlagTTL, when positive, makes flags older than the TTL stop
	// contributing risk points. Zero (the default) means flags never
	// decay.
	FlagTTL time.Duration

	// security_score cross-lookup penalty
	SharedRefPenalty    float64
	SharedRefPenaltyCap float64

	// Recommendations are emitted for components below this value.
	ConcernThreshold float64

	// Budget for one external provider call.
	ProviderTimeout time.Duration

	// Activity window for the internal activity signal.
	ActivityWindow time.Duration
}

// DefaultConfig returns the shipped scoring configuration.
func DefaultConfig() Config {
	return Config{
		Weights:              DefaultWeights,
		SpendThresholdCents:  100_000, // $1,000
		AvgTxnThresholdCents: 5_000,   // $50
		FailureThreshold:     3,
		RiskPointsThreshold:  50,
		FlagRiskIncrement:    15,
		SharedRefPenalty:     10,
		SharedRefPenaltyCap:  30,
		ConcernThreshold:     60,
		ProviderTimeout:      2 * time.Second,
		ActivityWindow:       30 * 24 * time.Hour,
	}
}

// Validate checks the configuration. A bad weight vector is a startup
// error, never a per-request one.
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("scoring weights: %w", err)
	}
	if c.FlagRiskIncrement < 0 || c.FlagRiskIncrement > 100 {
		return fmt.Errorf("flag risk increment must be in [0,100], got %f", c.FlagRiskIncrement)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("provider timeout must be positive")
	}
	return nil
}

// Engine computes trust scores. Mutations on the same account are
// serialized through a per-account lock; the read-modify-write on risk
// points would otherwise race.
type Engine struct {
	cfg      Config
	profiles ProfileStore
	events   EventSource
	refs     ReferenceSource
	device   devicehealth.Provider // nil = no provider, neutral default
	locks    *syncutil.ContextShardedMutex
	now      func() time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithDeviceHealthProvider attaches an external device health provider.
func WithDeviceHealthProvider(p devicehealth.Provider) Option {
	return func(e *Engine) { e.device = p }
}

// WithClock overrides the engine's clock (for tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a scoring engine. The config must already be
// validated; NewEngine re-checks and fails loudly rather than scoring
// with a broken weight vector.
func NewEngine(cfg Config, profiles ProfileStore, events EventSource, refs ReferenceSource, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		profiles: profiles,
		events:   events,
		refs:     refs,
		locks:    syncutil.NewContextShardedMutex(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Overrides are caller-supplied feature values, each in [0,100].
type Overrides map[string]float64

func (o Overrides) validate() error {
	known := map[string]bool{
		FeatureDeviceHealth: true, FeatureActivity: true, FeatureSocialInfluence: true,
		FeatureFinancialTrust: true, FeatureSecurityScore: true, FeatureLongevity: true,
	}
	for name, v := range o {
		if !known[name] {
			return validation.ValidationErrors{{Field: name, Message: "unknown feature"}}
		}
		if v < 0 || v > 100 {
			return validation.ValidationErrors{{Field: name, Message: "must be in [0,100]"}}
		}
	}
	return nil
}

// getOrCreate loads the account's profile, creating it lazily.
func (e *Engine) getOrCreate(ctx context.Context, accountID string) (*Profile, error) {
	if !validation.IsValidAccountID(accountID) {
		return nil, validation.ValidationErrors{{Field: "accountId", Message: "must be a valid account handle (@name)"}}
	}

	p, err := e.profiles.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if p != nil {
		return p, nil
	}

	now := e.now().UTC()
	p = &Profile{
		AccountID:  accountID,
		Tier:       TierUnranked,
		Components: map[string]float64{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.profiles.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	// Re-read in case a concurrent caller created it first.
	created, err := e.profiles.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if created != nil {
		return created, nil
	}
	return p, nil
}

// CalculateScore resolves every feature, aggregates the weighted score,
// derives the tier, and updates the profile in place.
//
// The optional deviceID routes the device_health signal through the
// provider; it may be empty.
func (e *Engine) CalculateScore(ctx context.Context, accountID, deviceID string, overrides Overrides) (_ *Result, retErr error) {
	ctx, span := traces.StartSpan(ctx, "trust.CalculateScore", traces.Account(accountID))
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	if err := overrides.validate(); err != nil {
		return nil, err
	}

	unlock, err := e.locks.LockContext(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	timer := time.Now()
	profile, err := e.getOrCreate(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	components := make(map[string]float64, len(featureOrder))

	for _, feature := range featureOrder {
		if v, ok := overrides[feature]; ok {
			components[feature] = round2(v)
			continue
		}
		value, err := e.resolveFeature(ctx, feature, profile, deviceID, now)
		if err != nil {
			return nil, err
		}
		components[feature] = round2(value)
	}

	weights := e.cfg.Weights.byFeature()
	var weightedSum, weightTotal float64
	for _, feature := range featureOrder {
		weightedSum += components[feature] * weights[feature]
		weightTotal += weights[feature]
	}
	score := round2(clamp(weightedSum/weightTotal, 0, 100))
	tier := TierForScore(score)

	if err := e.profiles.UpdateScore(ctx, accountID, score, tier, components, now); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	metrics.ScoreCalculationsTotal.WithLabelValues(string(tier)).Inc()
	metrics.ScoringDuration.Observe(time.Since(timer).Seconds())
	span.SetAttributes(traces.Score(score), traces.Tier(string(tier)))

	return &Result{
		AccountID:       accountID,
		Score:           score,
		Tier:            tier,
		Components:      components,
		Recommendations: e.recommendations(components),
		CalculatedAt:    now,
	}, nil
}

// resolveFeature computes a single non-overridden feature value.
func (e *Engine) resolveFeature(ctx context.Context, feature string, profile *Profile, deviceID string, now time.Time) (float64, error) {
	switch feature {
	case FeatureFinancialTrust:
		return e.financialTrust(ctx, profile, now)
	case FeatureLongevity:
		return e.longevity(profile, now), nil
	case FeatureSecurityScore:
		return e.securityScore(ctx, profile, now)
	case FeatureActivity:
		return e.activity(ctx, profile.AccountID, now)
	case FeatureDeviceHealth:
		return e.deviceHealth(ctx, deviceID), nil
	case FeatureSocialInfluence:
		return NeutralSignal, nil
	default:
		return 0, fmt.Errorf("unknown feature %q", feature)
	}
}

// financialTrust starts at 50 and moves on transaction behavior.
func (e *Engine) financialTrust(ctx context.Context, p *Profile, now time.Time) (float64, error) {
	score := 50.0

	if p.Transactions > 10 {
		score += 20
	}
	if p.Transactions > 0 && p.SuccessRatio() > 0.95 {
		score += 20
	}
	if p.TotalSpentCents > e.cfg.SpendThresholdCents {
		score += 10
	}

	gateways, err := e.events.DistinctGateways(ctx, p.AccountID, audit.EventGatewayLink)
	if err != nil {
		return 0, fmt.Errorf("linked gateways: %w", err)
	}
	if len(gateways) >= 2 {
		score += 10
	}

	if p.AverageTransactionCents() > float64(e.cfg.AvgTxnThresholdCents) {
		score += 5
	}
	if p.Failures > e.cfg.FailureThreshold {
		score -= 15
	}
	if e.effectiveRiskPoints(p, now) > e.cfg.RiskPointsThreshold {
		score -= 25
	}
	if len(e.activeFlags(p, now)) > 0 {
		score -= 20
	}

	return clamp(score, 0, 100), nil
}

// longevity is banded on profile age in days.
func (e *Engine) longevity(p *Profile, now time.Time) float64 {
	days := int(now.Sub(p.CreatedAt).Hours() / 24)
	switch {
	case days >= 365:
		return 100
	case days >= 180:
		return 80
	case days >= 90:
		return 60
	case days >= 30:
		return 40
	case days >= 7:
		return 20
	default:
		return 10
	}
}

// securityScore is 100 minus accumulated risk points, minus a capped
// penalty for identifiers shared with other accounts.
func (e *Engine) securityScore(ctx context.Context, p *Profile, now time.Time) (float64, error) {
	score := 100 - e.effectiveRiskPoints(p, now)

	shared, err := e.refs.SharedReferenceCount(ctx, p.AccountID)
	if err != nil {
		return 0, fmt.Errorf("shared references: %w", err)
	}
	penalty := math.Min(float64(shared)*e.cfg.SharedRefPenalty, e.cfg.SharedRefPenaltyCap)
	score -= penalty

	return clamp(score, 0, 100), nil
}

// activity is log-scaled on event volume inside the activity window.
func (e *Engine) activity(ctx context.Context, accountID string, now time.Time) (float64, error) {
	n, err := e.events.CountSince(ctx, accountID, now.Add(-e.cfg.ActivityWindow))
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	return math.Min(100, 33.3*math.Log10(float64(n)+1)), nil
}

// deviceHealth asks the provider under a timeout. Any failure substitutes
// the neutral default: one flaky dependency must never fail scoring.
func (e *Engine) deviceHealth(ctx context.Context, deviceID string) float64 {
	if e.device == nil || deviceID == "" {
		return NeutralSignal
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()

	report, err := e.device.Fetch(ctx, deviceID, devicehealth.FetchOptions{})
	if err != nil {
		reason := "error"
		if ctx.Err() != nil {
			reason = "timeout"
		}
		metrics.ProviderFallbacksTotal.WithLabelValues(reason).Inc()
		return NeutralSignal
	}
	return clamp(report.Score, 0, 100)
}

// activeFlags filters out flags older than the configured TTL. With no
// TTL every flag stays active forever.
func (e *Engine) activeFlags(p *Profile, now time.Time) []*RiskFlag {
	if e.cfg.FlagTTL <= 0 {
		return p.Flags
	}
	live := make([]*RiskFlag, 0, len(p.Flags))
	for _, f := range p.Flags {
		if now.Sub(f.CreatedAt) < e.cfg.FlagTTL {
			live = append(live, f)
		}
	}
	return live
}

// ActiveFlags returns the profile's flags still inside the TTL, for
// callers enforcing policy on flag presence.
func (e *Engine) ActiveFlags(p *Profile) []*RiskFlag {
	if p == nil {
		return nil
	}
	return e.activeFlags(p, e.now())
}

// effectiveRiskPoints applies the optional flag TTL. With no TTL the
// stored accumulator is authoritative.
func (e *Engine) effectiveRiskPoints(p *Profile, now time.Time) float64 {
	if e.cfg.FlagTTL <= 0 {
		return p.RiskPoints
	}
	live := len(e.activeFlags(p, now))
	return math.Min(float64(live)*e.cfg.FlagRiskIncrement, 100)
}

var remediation = map[string]string{
	FeatureDeviceHealth:    "Verify a device in good standing to raise your device health signal",
	FeatureActivity:        "Regular account activity builds trust over time",
	FeatureSocialInfluence: "Connect verified social accounts to strengthen your profile",
	FeatureFinancialTrust:  "A longer record of successful payments raises financial trust",
	FeatureSecurityScore:   "Resolve outstanding risk flags and remove shared identifiers",
	FeatureLongevity:       "Account age improves this signal automatically",
}

// recommendations lists remediations for every concerning component.
func (e *Engine) recommendations(components map[string]float64) []Recommendation {
	weights := e.cfg.Weights.byFeature()
	recs := []Recommendation{}
	for _, feature := range featureOrder {
		value := components[feature]
		if value >= e.cfg.ConcernThreshold {
			continue
		}
		recs = append(recs, Recommendation{
			Feature:       feature,
			Message:       remediation[feature],
			PotentialGain: round2((100 - value) * weights[feature]),
		})
	}
	return recs
}

// RecordPaymentSuccess updates the transaction aggregates. The score is
// recomputed on the next CalculateScore call, not here.
func (e *Engine) RecordPaymentSuccess(ctx context.Context, accountID string, amountCents int64) error {
	if amountCents < 0 {
		return validation.ValidationErrors{{Field: "amountCents", Message: "must not be negative"}}
	}
	if _, err := e.getOrCreate(ctx, accountID); err != nil {
		return err
	}
	if err := e.profiles.RecordPayment(ctx, accountID, amountCents, true); err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	return nil
}

// RecordPaymentFailure updates the failure aggregates.
func (e *Engine) RecordPaymentFailure(ctx context.Context, accountID string) error {
	if _, err := e.getOrCreate(ctx, accountID); err != nil {
		return err
	}
	if err := e.profiles.RecordPayment(ctx, accountID, 0, false); err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	return nil
}

// AddRiskFlag appends a timestamped flag and bumps the risk accumulator,
// capped at 100.
func (e *Engine) AddRiskFlag(ctx context.Context, accountID, reason string) (*RiskFlag, error) {
	reason = validation.SanitizeString(reason, 500)
	if reason == "" {
		return nil, validation.ValidationErrors{{Field: "reason", Message: "is required"}}
	}

	unlock, err := e.locks.LockContext(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	profile, err := e.getOrCreate(ctx, accountID)
	if err != nil {
		return nil, err
	}

	flag := &RiskFlag{
		ID:        idgen.WithPrefix("flag_"),
		Reason:    reason,
		CreatedAt: e.now().UTC(),
	}
	points := math.Min(profile.RiskPoints+e.cfg.FlagRiskIncrement, 100)

	if err := e.profiles.AddFlag(ctx, accountID, flag, points); err != nil {
		return nil, fmt.Errorf("add flag: %w", err)
	}
	metrics.RiskFlagsTotal.Inc()
	return flag, nil
}

// Profile returns the stored profile, or (nil, nil) when the account has
// never been scored or flagged.
func (e *Engine) Profile(ctx context.Context, accountID string) (*Profile, error) {
	if !validation.IsValidAccountID(accountID) {
		return nil, validation.ValidationErrors{{Field: "accountId", Message: "must be a valid account handle (@name)"}}
	}
	return e.profiles.Get(ctx, accountID)
}
