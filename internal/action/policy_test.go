package action

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwhitt/trustrail/internal/trust"
)

func TestNewPolicyValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Thresholds)
		wantErr bool
	}{
		{"defaults", nil, false},
		{"block above allow", func(th *Thresholds) { th.BlockBelow = 90 }, true},
		{"block equals allow", func(th *Thresholds) { th.BlockBelow = 80 }, true},
		{"block negative", func(th *Thresholds) { th.BlockBelow = -1 }, true},
		{"allow over 100", func(th *Thresholds) { th.AllowAtOrAbove = 101 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := DefaultThresholds()
			if tt.mutate != nil {
				tt.mutate(&th)
			}
			_, err := NewPolicy(th)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDecide(t *testing.T) {
	policy, err := NewPolicy(DefaultThresholds())
	require.NoError(t, err)

	fraudFlag := []*trust.RiskFlag{{ID: "flag_1", Reason: "fraud_confirmed", CreatedAt: time.Now()}}
	mildFlag := []*trust.RiskFlag{{ID: "flag_2", Reason: "velocity anomaly", CreatedAt: time.Now()}}

	tests := []struct {
		name  string
		score float64
		tier  trust.Tier
		flags []*trust.RiskFlag
		want  Action
	}{
		{"high score allows", 85, trust.TierGold, nil, ActionAllow},
		{"allow boundary", 80, trust.TierGold, nil, ActionAllow},
		{"just under allow but gold tier", 79.99, trust.TierGold, nil, ActionAllow},
		{"platinum tier allows", 78, trust.TierPlatinum, nil, ActionAllow},
		{"mid score silver throttles", 65, trust.TierSilver, nil, ActionThrottle},
		{"block boundary throttles", 40, trust.TierBronze, nil, ActionThrottle},
		{"under block threshold", 39.99, trust.TierUnranked, nil, ActionBlock},
		{"zero score blocks", 0, trust.TierUnranked, nil, ActionBlock},
		{"high severity flag blocks platinum", 95, trust.TierPlatinum, fraudFlag, ActionBlock},
		{"mild flag does not block", 85, trust.TierGold, mildFlag, ActionAllow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := policy.Decide(tt.score, tt.tier, tt.flags)
			assert.Equal(t, tt.want, d.Action)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestDecideCustomHighSeveritySet(t *testing.T) {
	th := DefaultThresholds()
	th.HighSeverityReasons = map[string]bool{"synthetic_identity": true}
	policy, err := NewPolicy(th)
	require.NoError(t, err)

	flags := []*trust.RiskFlag{{ID: "flag_1", Reason: "fraud_confirmed"}}
	d := policy.Decide(85, trust.TierGold, flags)
	assert.Equal(t, ActionAllow, d.Action)

	flags = []*trust.RiskFlag{{ID: "flag_2", Reason: "synthetic_identity"}}
	d = policy.Decide(85, trust.TierGold, flags)
	assert.Equal(t, ActionBlock, d.Action)
}
