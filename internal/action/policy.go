// Package action maps trust scores to enforcement decisions.
package action

import (
	"fmt"

	"github.com/mwhitt/trustrail/internal/trust"
)

// Action is an enforcement decision.
type Action string

const (
	ActionAllow    Action = "allow"
	ActionThrottle Action = "throttle"
	ActionBlock    Action = "block"
)

// Decision is the outcome of one policy evaluation.
type Decision struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
}

// Thresholds parameterize the policy.
type Thresholds struct {
	// BlockBelow blocks any score under this value.
	BlockBelow float64
	// AllowAtOrAbove allows any score at or over this value.
	AllowAtOrAbove float64
	// AllowTiers are tiers allowed regardless of the raw score.
	AllowTiers map[trust.Tier]bool
	// HighSeverityReasons are flag reasons that block on sight.
	HighSeverityReasons map[string]bool
}

// DefaultThresholds returns the shipped policy configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BlockBelow:     40,
		AllowAtOrAbove: 80,
		AllowTiers: map[trust.Tier]bool{
			trust.TierGold:     true,
			trust.TierPlatinum: true,
		},
		HighSeverityReasons: map[string]bool{
			"fraud_confirmed": true,
			"chargeback":      true,
			"stolen_card":     true,
		},
	}
}

// Policy evaluates enforcement decisions. Safe for concurrent use.
type Policy struct {
	t Thresholds
}

// NewPolicy validates the thresholds and builds a policy. Misordered
// thresholds are a configuration bug, rejected up front.
func NewPolicy(t Thresholds) (*Policy, error) {
	if t.BlockBelow < 0 || t.BlockBelow > 100 {
		return nil, fmt.Errorf("block threshold must be in [0,100], got %g", t.BlockBelow)
	}
	if t.AllowAtOrAbove < 0 || t.AllowAtOrAbove > 100 {
		return nil, fmt.Errorf("allow threshold must be in [0,100], got %g", t.AllowAtOrAbove)
	}
	if t.BlockBelow >= t.AllowAtOrAbove {
		return nil, fmt.Errorf("block threshold %g must be below allow threshold %g", t.BlockBelow, t.AllowAtOrAbove)
	}
	return &Policy{t: t}, nil
}

// Decide classifies an account. Block conditions win over allow
// conditions: a platinum account with a confirmed-fraud flag is blocked.
func (p *Policy) Decide(score float64, tier trust.Tier, flags []*trust.RiskFlag) Decision {
	for _, f := range flags {
		if p.t.HighSeverityReasons[f.Reason] {
			return Decision{
				Action: ActionBlock,
				Reason: fmt.Sprintf("high-severity flag: %s", f.Reason),
			}
		}
	}
	if score < p.t.BlockBelow {
		return Decision{
			Action: ActionBlock,
			Reason: fmt.Sprintf("score %.2f below block threshold %.0f", score, p.t.BlockBelow),
		}
	}
	if score >= p.t.AllowAtOrAbove {
		return Decision{
			Action: ActionAllow,
			Reason: fmt.Sprintf("score %.2f meets allow threshold %.0f", score, p.t.AllowAtOrAbove),
		}
	}
	if p.t.AllowTiers[tier] {
		return Decision{
			Action: ActionAllow,
			Reason: fmt.Sprintf("tier %s is trusted", tier),
		}
	}
	return Decision{
		Action: ActionThrottle,
		Reason: fmt.Sprintf("score %.2f in review band", score),
	}
}
