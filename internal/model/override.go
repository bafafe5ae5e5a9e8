package model

import "time"

// Override weight basis points. Weights are stored as integers so the
// scoring path never touches floating point.
const (
	WeightRevertBP = 0
	WeightMinorBP  = 5000
	WeightMajorBP  = 10000
)

// Override is one append-only ledger entry recording an analyst correction
// to an entity's classification. Never updated or deleted; for a given
// entity the effective value is the entry with the latest created_at.
type Override struct {
	ID        string    `json:"id"`
	DealID    string    `json:"deal_id"`
	EntityID  string    `json:"entity_id"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	WeightBP  int       `json:"weight_bp"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// DeriveWeightBP computes the weight of a new override given the entity's
// currently effective role. A no-op transition is a revert and carries zero
// weight; a transition into or out of the revenue role set is major;
// anything else is minor.
func DeriveWeightBP(effective, newValue Role) int {
	if newValue == effective {
		return WeightRevertBP
	}
	if effective.IsRevenue() != newValue.IsRevenue() {
		return WeightMajorBP
	}
	return WeightMinorBP
}

// EffectiveOverrides resolves the latest override per entity. Ties on
// created_at break on id so concurrent appends still resolve identically
// everywhere.
func EffectiveOverrides(overrides []Override) map[string]Override {
	latest := make(map[string]Override, len(overrides))
	for _, ov := range overrides {
		cur, ok := latest[ov.EntityID]
		if !ok || ov.CreatedAt.After(cur.CreatedAt) ||
			(ov.CreatedAt.Equal(cur.CreatedAt) && ov.ID > cur.ID) {
			latest[ov.EntityID] = ov
		}
	}
	return latest
}

// SortOverridesByEntity orders the audit list embedded in snapshot payloads.
func SortOverridesByEntity(overrides []Override) {
	sortSlice(overrides, func(a, b Override) bool {
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// SortOverridesByID orders the ledger for the overrides content hash.
func SortOverridesByID(overrides []Override) {
	sortSlice(overrides, func(a, b Override) bool { return a.ID < b.ID })
}
