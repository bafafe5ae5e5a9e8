package model

import "sort"

// Entity is a deduplicated counterparty: one row per distinct normalized
// descriptor per deal. The id is a content hash of (deal_id, normalized
// name), so re-deriving entities from the same transactions always yields
// the same ids.
type Entity struct {
	EntityID       string `json:"entity_id"`
	DealID         string `json:"deal_id"`
	NormalizedName string `json:"normalized_name"`
	DisplayName    string `json:"display_name"` // fixed to the first occurrence
}

// SortEntities orders entities by entity_id.
func SortEntities(entities []Entity) {
	sortSlice(entities, func(a, b Entity) bool { return a.EntityID < b.EntityID })
}

// TxnEntityMapping links a transaction to its entity and classified role.
// Fully recomputed on every pipeline run.
type TxnEntityMapping struct {
	DealID      string `json:"deal_id"`
	TxnID       string `json:"txn_id"`
	EntityID    string `json:"entity_id"`
	Role        Role   `json:"role"`
	RoleVersion string `json:"role_version"`
}

// SortMappings orders mappings by txn_id.
func SortMappings(mappings []TxnEntityMapping) {
	sortSlice(mappings, func(a, b TxnEntityMapping) bool { return a.TxnID < b.TxnID })
}

func sortSlice[T any](s []T, less func(a, b T) bool) {
	sort.SliceStable(s, func(i, j int) bool { return less(s[i], s[j]) })
}
