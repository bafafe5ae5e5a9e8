package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/parity/internal/model"
)

func TestOverridePenaltyBP_ScalesByVolumeShare(t *testing.T) {
	overrides := []model.Override{
		{ID: "ov-1", EntityID: "e1", WeightBP: model.WeightMajorBP, CreatedAt: time.Now()},
	}
	volumes := map[string]int64{"e1": 50_000}

	// e1 holds half the volume, major weight: 5000 * 10000 / 10000 = 5000 bp
	got := OverridePenaltyBP(overrides, volumes, 100_000)
	assert.Equal(t, 5000, got)
}

func TestOverridePenaltyBP_MinorWeight(t *testing.T) {
	overrides := []model.Override{
		{ID: "ov-1", EntityID: "e1", WeightBP: model.WeightMinorBP, CreatedAt: time.Now()},
	}
	volumes := map[string]int64{"e1": 40_000}

	// 40% share at half weight: 4000 * 5000 / 10000 = 2000 bp
	assert.Equal(t, 2000, OverridePenaltyBP(overrides, volumes, 100_000))
}

func TestOverridePenaltyBP_CappedAt7000(t *testing.T) {
	overrides := []model.Override{
		{ID: "ov-1", EntityID: "e1", WeightBP: model.WeightMajorBP, CreatedAt: time.Now()},
	}
	volumes := map[string]int64{"e1": 100_000}

	assert.Equal(t, 7000, OverridePenaltyBP(overrides, volumes, 100_000))
}

func TestOverridePenaltyBP_OnlyLatestOverrideCounts(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	overrides := []model.Override{
		{ID: "ov-1", EntityID: "e1", WeightBP: model.WeightMajorBP, CreatedAt: base},
		{ID: "ov-2", EntityID: "e1", WeightBP: model.WeightRevertBP, CreatedAt: base.Add(time.Hour)},
	}
	volumes := map[string]int64{"e1": 100_000}

	// the revert supersedes the major override entirely
	assert.Equal(t, 0, OverridePenaltyBP(overrides, volumes, 100_000))
}

func TestOverridePenaltyBP_UnknownEntityOrZeroTotal(t *testing.T) {
	overrides := []model.Override{
		{ID: "ov-1", EntityID: "ghost", WeightBP: model.WeightMajorBP, CreatedAt: time.Now()},
	}

	assert.Equal(t, 0, OverridePenaltyBP(overrides, map[string]int64{"e1": 50_000}, 100_000))
	assert.Equal(t, 0, OverridePenaltyBP(overrides, nil, 0))
}

func TestFinalizeConfidence_Tiers(t *testing.T) {
	cases := []struct {
		name    string
		base    int
		penalty int
		recon   model.ReconciliationStatus
		want    model.Tier
		wantBP  int
		capped  bool
	}{
		{"high at threshold", 8500, 0, model.ReconOK, model.TierHigh, 8500, false},
		{"medium just below high", 8499, 0, model.ReconOK, model.TierMedium, 8499, false},
		{"medium at threshold", 7000, 0, model.ReconOK, model.TierMedium, 7000, false},
		{"low just below medium", 6999, 0, model.ReconOK, model.TierLow, 6999, false},
		{"penalty pulls below high", 9000, 2000, model.ReconOK, model.TierMedium, 7000, false},
		{"floors at zero", 3000, 7000, model.ReconOK, model.TierLow, 0, false},
		{"high capped without reconciliation", 9500, 0, model.ReconNotRun, model.TierMedium, 9500, true},
		{"high capped on failed overlap", 9500, 0, model.ReconFailedOverlap, model.TierMedium, 9500, true},
		{"medium never capped", 8000, 0, model.ReconNotRun, model.TierMedium, 8000, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := FinalizeConfidence(tc.base, tc.penalty, tc.recon)
			assert.Equal(t, tc.want, c.Tier)
			assert.Equal(t, tc.wantBP, c.FinalConfidenceBP)
			assert.Equal(t, tc.capped, c.TierCapped)
			assert.Equal(t, tc.penalty, c.OverridePenaltyBP)
		})
	}
}
