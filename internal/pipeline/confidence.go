package pipeline

import "github.com/sells-group/parity/internal/model"

const (
	// overridePenaltyCapBP is a hard ceiling: no combination of overrides
	// can zero out confidence entirely.
	overridePenaltyCapBP = 7000

	tierHighThresholdBP   = 8500
	tierMediumThresholdBP = 7000
)

// Confidence is the final scoring block of one pipeline run.
type Confidence struct {
	OverridePenaltyBP int
	FinalConfidenceBP int
	Tier              model.Tier
	TierCapped        bool
}

// OverridePenaltyBP folds analyst overrides into a capped penalty. Only the
// latest override per entity applies; each contributes its entity's share of
// non-transfer volume scaled by the override weight, in pure integer
// arithmetic.
func OverridePenaltyBP(overrides []model.Override, entityVolumes map[string]int64, nonTransferTotal int64) int {
	if nonTransferTotal <= 0 {
		return 0
	}

	penalty := 0
	for entityID, ov := range model.EffectiveOverrides(overrides) {
		vol := entityVolumes[entityID]
		if vol < 0 {
			vol = -vol
		}
		if vol == 0 {
			continue
		}
		shareBP := vol * bpScale / nonTransferTotal
		penalty += int(shareBP) * ov.WeightBP / bpScale
	}

	if penalty > overridePenaltyCapBP {
		penalty = overridePenaltyCapBP
	}
	return penalty
}

// FinalizeConfidence subtracts the override penalty and grades the result.
// A High tier is forced down to Medium whenever reconciliation did not
// validate: the system never asserts High without a reconciled accrual.
func FinalizeConfidence(baseAfterMonthsBP, overridePenaltyBP int, recon model.ReconciliationStatus) Confidence {
	final := baseAfterMonthsBP - overridePenaltyBP
	if final < 0 {
		final = 0
	}

	tier := model.TierLow
	switch {
	case final >= tierHighThresholdBP:
		tier = model.TierHigh
	case final >= tierMediumThresholdBP:
		tier = model.TierMedium
	}

	capped := false
	if tier == model.TierHigh && recon != model.ReconOK {
		tier = model.TierMedium
		capped = true
	}

	return Confidence{
		OverridePenaltyBP: overridePenaltyBP,
		FinalConfidenceBP: final,
		Tier:              tier,
		TierCapped:        capped,
	}
}
