package pipeline

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/sells-group/parity/internal/model"
)

// EntityID derives the deterministic counterparty identifier for a
// normalized descriptor within a deal.
func EntityID(dealID, normalizedName string) string {
	sum := sha256.Sum256([]byte(dealID + "|" + normalizedName))
	return hex.EncodeToString(sum[:])
}

// ResolveEntities collapses transactions into counterparties: one entity per
// distinct normalized descriptor per deal, no fuzzy matching, no cross-deal
// sharing. The display name is fixed to the first occurrence in canonical
// transaction order. Returns the entities sorted by id and the txn -> entity
// assignment.
func ResolveEntities(dealID string, txns []model.Transaction) ([]model.Entity, map[string]string) {
	byName := make(map[string]string)
	var entities []model.Entity
	assignment := make(map[string]string, len(txns))

	for i := range txns {
		t := &txns[i]
		name := t.NormalizedDescriptor
		id, ok := byName[name]
		if !ok {
			id = EntityID(dealID, name)
			byName[name] = id
			display := t.ParsedDescriptor
			if display == "" {
				display = t.RawDescriptor
			}
			if display == "" {
				display = name
			}
			entities = append(entities, model.Entity{
				EntityID:       id,
				DealID:         dealID,
				NormalizedName: name,
				DisplayName:    display,
			})
		}
		assignment[t.TxnID] = id
	}

	model.SortEntities(entities)
	return entities, assignment
}
