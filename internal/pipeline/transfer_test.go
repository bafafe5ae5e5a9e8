package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parity/internal/model"
	"github.com/sells-group/parity/internal/version"
)

func txn(id, date, account string, cents int64, desc string) model.Transaction {
	return model.Transaction{
		TxnID:                id,
		DealID:               "deal-1",
		DocumentID:           "doc-1",
		Date:                 date,
		AccountID:            account,
		AmountCents:          cents,
		RawDescriptor:        desc,
		ParsedDescriptor:     desc,
		NormalizedDescriptor: desc,
	}
}

func TestMatchTransfers_PairsUniqueLegs(t *testing.T) {
	txns := []model.Transaction{
		txn("t-out", "2026-01-10", "acc-a", -50_000, "transfer to savings"),
		txn("t-in", "2026-01-11", "acc-b", 50_000, "transfer from checking"),
		txn("t-other", "2026-01-12", "acc-a", 12_345, "client payment"),
	}

	links := MatchTransfers(txns)
	require.Len(t, links, 1)
	assert.Equal(t, "t-out", links[0].TxnOutID)
	assert.Equal(t, "t-in", links[0].TxnInID)
	assert.Equal(t, int64(50_000), links[0].AbsAmountCents)
	assert.Equal(t, version.TransferRuleVersion, links[0].MatchRuleVersion)
	assert.Len(t, links[0].ID, 64)

	assert.True(t, txns[0].IsTransfer)
	assert.True(t, txns[1].IsTransfer)
	assert.False(t, txns[2].IsTransfer)
}

func TestMatchTransfers_AmbiguityLeavesAllUnmarked(t *testing.T) {
	txns := []model.Transaction{
		txn("t-out", "2026-01-10", "acc-a", -50_000, "outgoing"),
		txn("t-in-1", "2026-01-10", "acc-b", 50_000, "candidate one"),
		txn("t-in-2", "2026-01-11", "acc-c", 50_000, "candidate two"),
	}

	links := MatchTransfers(txns)
	assert.Empty(t, links)
	for i := range txns {
		assert.False(t, txns[i].IsTransfer, txns[i].TxnID)
	}
}

func TestMatchTransfers_DayWindow(t *testing.T) {
	within := []model.Transaction{
		txn("t-out", "2026-01-10", "acc-a", -50_000, "out"),
		txn("t-in", "2026-01-12", "acc-b", 50_000, "in"), // exactly 2 days
	}
	assert.Len(t, MatchTransfers(within), 1)

	beyond := []model.Transaction{
		txn("t-out", "2026-01-10", "acc-a", -50_000, "out"),
		txn("t-in", "2026-01-13", "acc-b", 50_000, "in"), // 3 days
	}
	assert.Empty(t, MatchTransfers(beyond))
}

func TestMatchTransfers_SameAccountNeverPairs(t *testing.T) {
	txns := []model.Transaction{
		txn("t-out", "2026-01-10", "acc-a", -50_000, "out"),
		txn("t-in", "2026-01-10", "acc-a", 50_000, "in"),
	}
	assert.Empty(t, MatchTransfers(txns))
}

func TestMatchTransfers_AmountMustMatchExactly(t *testing.T) {
	txns := []model.Transaction{
		txn("t-out", "2026-01-10", "acc-a", -50_000, "out"),
		txn("t-in", "2026-01-10", "acc-b", 49_999, "in"),
	}
	assert.Empty(t, MatchTransfers(txns))
}

func TestMatchTransfers_MultipleDisjointPairs(t *testing.T) {
	txns := []model.Transaction{
		txn("a-out", "2026-01-10", "acc-a", -10_000, "out one"),
		txn("a-in", "2026-01-10", "acc-b", 10_000, "in one"),
		txn("b-out", "2026-02-05", "acc-b", -99_900, "out two"),
		txn("b-in", "2026-02-06", "acc-c", 99_900, "in two"),
	}

	links := MatchTransfers(txns)
	require.Len(t, links, 2)
	// sorted by txn_out_id
	assert.Equal(t, "a-out", links[0].TxnOutID)
	assert.Equal(t, "b-out", links[1].TxnOutID)
}
