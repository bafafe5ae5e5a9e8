package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parity/internal/fault"
	"github.com/sells-group/parity/internal/model"
)

func TestService_Export_NoCompletedDocuments(t *testing.T) {
	svc, st := newTestService(t)
	deal := newTestDeal(t, st, nil)

	_, err := svc.Export(context.Background(), deal.ID, "analyst@example.com")
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindDocumentsNotReady))
}

func TestService_Export_GatesOnProcessingDocument(t *testing.T) {
	svc, st := newTestService(t)
	deal := newTestDeal(t, st, nil)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, csvUpload(deal.ID, "done.csv", validCSV))
	require.NoError(t, err)

	// A registered document that has not been processed yet.
	_, err = st.CreateDocument(ctx, &model.Document{
		DealID: deal.ID, FileName: "pending.csv", FileType: model.FileTypeCSV,
		CreatedBy: "analyst@example.com",
	})
	require.NoError(t, err)

	_, err = svc.Export(ctx, deal.ID, "analyst@example.com")
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindDocumentsNotReady))

	var f *fault.Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, fault.ActionWaitForDocs, f.NextAction)
}

func TestService_Export_ProducesRunAndSnapshot(t *testing.T) {
	svc, st := newTestService(t)
	deal := newTestDeal(t, st, &model.Accrual{
		RevenueCents: 150_000,
		PeriodStart:  "2025-01-01",
		PeriodEnd:    "2025-02-28",
	})
	ctx := context.Background()

	_, err := svc.Ingest(ctx, csvUpload(deal.ID, "jan.csv", validCSV))
	require.NoError(t, err)

	res, err := svc.Export(ctx, deal.ID, "analyst@example.com")
	require.NoError(t, err)
	assert.False(t, res.Reused)
	require.NotNil(t, res.Run)
	require.NotNil(t, res.Snapshot)

	assert.Equal(t, "LIVE_DRAFT", res.Run.State)
	assert.Equal(t, res.Run.ID, res.Snapshot.AnalysisRunID)
	assert.NotEmpty(t, res.Snapshot.FinancialStateHash)
	assert.NotEmpty(t, res.Snapshot.SHA256Hash)
	assert.Contains(t, res.Snapshot.CanonicalJSON, `"deal_id":"`+deal.ID+`"`)

	runs, err := st.ListRuns(ctx, deal.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestService_Export_ShortCircuitsWhenNothingChanged(t *testing.T) {
	svc, st := newTestService(t)
	deal := newTestDeal(t, st, nil)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, csvUpload(deal.ID, "jan.csv", validCSV))
	require.NoError(t, err)

	first, err := svc.Export(ctx, deal.ID, "analyst@example.com")
	require.NoError(t, err)
	require.False(t, first.Reused)

	second, err := svc.Export(ctx, deal.ID, "analyst@example.com")
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.Snapshot.ID, second.Snapshot.ID)

	// Still exactly one run recorded.
	runs, err := st.ListRuns(ctx, deal.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestService_Export_PersistsDerivedArtifacts(t *testing.T) {
	svc, st := newTestService(t)
	deal := newTestDeal(t, st, nil)
	ctx := context.Background()

	const transferCSV = `date,amount,description,account
2025-01-05,1000.00,ACME LLC INVOICE 42,acc-a
2025-01-10,-300.00,INTERNAL MOVE,acc-a
2025-01-11,300.00,INTERNAL MOVE,acc-b
`
	_, err := svc.Ingest(ctx, csvUpload(deal.ID, "jan.csv", transferCSV))
	require.NoError(t, err)

	res, err := svc.Export(ctx, deal.ID, "analyst@example.com")
	require.NoError(t, err)

	links, err := st.ListTransferLinks(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, deal.ID, links[0].DealID)
	assert.Equal(t, int64(30_000), links[0].AbsAmountCents)

	entities, err := st.ListEntities(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	for _, e := range entities {
		assert.Equal(t, deal.ID, e.DealID)
		assert.NotEmpty(t, e.DisplayName)
	}

	mappings, err := st.ListMappings(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, mappings, 3)
	transferLegs := 0
	for _, m := range mappings {
		if m.Role == model.RoleTransfer {
			transferLegs++
		}
	}
	assert.Equal(t, 2, transferLegs)

	// Every stored transaction carries exactly one mapping.
	txns, err := st.ListTransactions(ctx, deal.ID)
	require.NoError(t, err)
	assert.Len(t, mappings, len(txns))
	require.NotNil(t, res.Snapshot)
}

func TestService_Export_ReplacesDerivedArtifactsOnRerun(t *testing.T) {
	svc, st := newTestService(t)
	deal := newTestDeal(t, st, nil)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, csvUpload(deal.ID, "jan.csv", validCSV))
	require.NoError(t, err)
	_, err = svc.Export(ctx, deal.ID, "analyst@example.com")
	require.NoError(t, err)

	before, err := st.ListMappings(ctx, deal.ID)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	var acme model.Entity
	entities, err := st.ListEntities(ctx, deal.ID)
	require.NoError(t, err)
	for _, e := range entities {
		if e.NormalizedName == "acme llc invoice 42" {
			acme = e
		}
	}
	require.NotEmpty(t, acme.EntityID)

	_, err = st.InsertOverride(ctx, &model.Override{
		DealID:    deal.ID,
		EntityID:  acme.EntityID,
		Field:     "role",
		OldValue:  string(model.RoleRevenueOperational),
		NewValue:  string(model.RoleSupplier),
		WeightBP:  model.WeightMajorBP,
		CreatedBy: "analyst@example.com",
	})
	require.NoError(t, err)

	_, err = svc.Export(ctx, deal.ID, "analyst@example.com")
	require.NoError(t, err)

	after, err := st.ListMappings(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	// Exactly one mapping set per deal, replaced wholesale on each run.
	seen := make(map[string]bool, len(after))
	for _, m := range after {
		assert.False(t, seen[m.TxnID])
		seen[m.TxnID] = true
	}
}

func TestService_Export_OverrideInvalidatesShortCircuit(t *testing.T) {
	svc, st := newTestService(t)
	deal := newTestDeal(t, st, nil)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, csvUpload(deal.ID, "jan.csv", validCSV))
	require.NoError(t, err)

	first, err := svc.Export(ctx, deal.ID, "analyst@example.com")
	require.NoError(t, err)

	// Find an entity from the first snapshot and override its role.
	txns, err := st.ListTransactions(ctx, deal.ID)
	require.NoError(t, err)
	require.NotEmpty(t, txns)

	_, err = st.InsertOverride(ctx, &model.Override{
		DealID:    deal.ID,
		EntityID:  "entity-under-review",
		Field:     "role",
		OldValue:  string(model.RoleOther),
		NewValue:  string(model.RoleSupplier),
		WeightBP:  model.WeightMinorBP,
		CreatedBy: "analyst@example.com",
	})
	require.NoError(t, err)

	second, err := svc.Export(ctx, deal.ID, "analyst@example.com")
	require.NoError(t, err)
	assert.False(t, second.Reused)
	assert.NotEqual(t, first.Snapshot.ID, second.Snapshot.ID)

	runs, err := st.ListRuns(ctx, deal.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
}
