package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parity/internal/model"
)

func TestEntityID_Deterministic(t *testing.T) {
	a := EntityID("deal-1", "acme corp")
	b := EntityID("deal-1", "acme corp")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, EntityID("deal-2", "acme corp"))
	assert.NotEqual(t, a, EntityID("deal-1", "acme ltd"))
}

func TestResolveEntities_DeduplicatesByNormalizedName(t *testing.T) {
	t1 := txn("t1", "2026-01-05", "acc-a", 10_000, "ACME Corp")
	t1.NormalizedDescriptor = "acme corp"
	t2 := txn("t2", "2026-01-10", "acc-a", 20_000, "acme   CORP")
	t2.NormalizedDescriptor = "acme corp"
	t3 := txn("t3", "2026-01-15", "acc-a", -5_000, "Beta Supplies")
	t3.NormalizedDescriptor = "beta supplies"

	entities, assignment := ResolveEntities("deal-1", []model.Transaction{t1, t2, t3})
	require.Len(t, entities, 2)
	assert.Equal(t, assignment["t1"], assignment["t2"])
	assert.NotEqual(t, assignment["t1"], assignment["t3"])

	// display name is fixed to the first occurrence
	for _, e := range entities {
		if e.NormalizedName == "acme corp" {
			assert.Equal(t, "ACME Corp", e.DisplayName)
		}
	}
}

func TestResolveEntities_SortedByID(t *testing.T) {
	txns := []model.Transaction{
		txn("t1", "2026-01-05", "acc-a", 10_000, "zeta"),
		txn("t2", "2026-01-10", "acc-a", 20_000, "alpha"),
		txn("t3", "2026-01-15", "acc-a", 30_000, "mid"),
	}

	entities, _ := ResolveEntities("deal-1", txns)
	require.Len(t, entities, 3)
	assert.True(t, entities[0].EntityID < entities[1].EntityID)
	assert.True(t, entities[1].EntityID < entities[2].EntityID)
}
