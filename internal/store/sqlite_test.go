package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/parity/internal/fault"
	"github.com/sells-group/parity/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "parity_test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func seedDeal(t *testing.T, s *SQLiteStore, accrual *model.Accrual) *model.Deal {
	t.Helper()
	deal, err := s.CreateDeal(context.Background(), &model.Deal{
		Name:      "Acme Acquisition",
		Currency:  "USD",
		Accrual:   accrual,
		CreatedBy: "analyst@example.com",
	})
	require.NoError(t, err)
	return deal
}

func seedDocument(t *testing.T, s *SQLiteStore, dealID string) *model.Document {
	t.Helper()
	doc, err := s.CreateDocument(context.Background(), &model.Document{
		DealID:    dealID,
		FileName:  "statement_jan.csv",
		FileType:  model.FileTypeCSV,
		CreatedBy: "analyst@example.com",
	})
	require.NoError(t, err)
	return doc
}

func TestSQLiteStore_ReplaceTransferLinks(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	deal := seedDeal(t, s, nil)
	first := []model.TransferLink{
		{ID: "link-a", DealID: deal.ID, TxnOutID: "t-out-a", TxnInID: "t-in-a", AbsAmountCents: 50_000, MatchRuleVersion: "v1_transfer_rule"},
		{ID: "link-b", DealID: deal.ID, TxnOutID: "t-out-b", TxnInID: "t-in-b", AbsAmountCents: 20_000, MatchRuleVersion: "v1_transfer_rule"},
	}
	require.NoError(t, s.ReplaceTransferLinks(ctx, deal.ID, first))

	got, err := s.ListTransferLinks(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "link-a", got[0].ID)
	assert.Equal(t, int64(50_000), got[0].AbsAmountCents)

	// a rerun replaces the whole set, stale links disappear
	second := []model.TransferLink{
		{ID: "link-c", DealID: deal.ID, TxnOutID: "t-out-c", TxnInID: "t-in-c", AbsAmountCents: 75_000, MatchRuleVersion: "v1_transfer_rule"},
	}
	require.NoError(t, s.ReplaceTransferLinks(ctx, deal.ID, second))

	got, err = s.ListTransferLinks(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "link-c", got[0].ID)

	// replacing with nothing clears the set
	require.NoError(t, s.ReplaceTransferLinks(ctx, deal.ID, nil))
	got, err = s.ListTransferLinks(ctx, deal.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStore_UpsertEntities_KeepsFirstDisplayName(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	deal := seedDeal(t, s, nil)
	require.NoError(t, s.UpsertEntities(ctx, []model.Entity{
		{EntityID: "e1", DealID: deal.ID, NormalizedName: "acme corp", DisplayName: "ACME Corp"},
		{EntityID: "e2", DealID: deal.ID, NormalizedName: "beta supplies", DisplayName: "Beta Supplies"},
	}))

	// re-upserting with a different display name keeps the original row
	require.NoError(t, s.UpsertEntities(ctx, []model.Entity{
		{EntityID: "e1", DealID: deal.ID, NormalizedName: "acme corp", DisplayName: "acme CORP LTD"},
	}))

	got, err := s.ListEntities(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e1", got[0].EntityID)
	assert.Equal(t, "ACME Corp", got[0].DisplayName)
	assert.Equal(t, "e2", got[1].EntityID)
}

func TestSQLiteStore_ReplaceMappings(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	deal := seedDeal(t, s, nil)
	require.NoError(t, s.ReplaceMappings(ctx, deal.ID, []model.TxnEntityMapping{
		{TxnID: "t1", DealID: deal.ID, EntityID: "e1", Role: model.RoleRevenueOperational, RoleVersion: "v1_rules"},
		{TxnID: "t2", DealID: deal.ID, EntityID: "e2", Role: model.RolePayroll, RoleVersion: "v1_rules"},
	}))

	got, err := s.ListMappings(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.RoleRevenueOperational, got[0].Role)

	// reclassification on the next run replaces the prior mapping rows
	require.NoError(t, s.ReplaceMappings(ctx, deal.ID, []model.TxnEntityMapping{
		{TxnID: "t1", DealID: deal.ID, EntityID: "e1", Role: model.RoleSupplier, RoleVersion: "v1_rules"},
	}))

	got, err = s.ListMappings(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.RoleSupplier, got[0].Role)
}

func TestSQLiteStore_DealRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)

	created := seedDeal(t, s, &model.Accrual{
		RevenueCents: 1_250_000_00,
		PeriodStart:  "2025-01-01",
		PeriodEnd:    "2025-12-31",
	})
	assert.NotEmpty(t, created.ID)

	got, err := s.GetDeal(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Acquisition", got.Name)
	assert.Equal(t, "USD", got.Currency)
	require.NotNil(t, got.Accrual)
	assert.Equal(t, int64(1_250_000_00), got.Accrual.RevenueCents)
	assert.Equal(t, "2025-01-01", got.Accrual.PeriodStart)
}

func TestSQLiteStore_DealWithoutAccrual(t *testing.T) {
	s := newTestSQLiteStore(t)

	created := seedDeal(t, s, nil)
	got, err := s.GetDeal(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Accrual)
}

func TestSQLiteStore_GetDeal_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	_, err := s.GetDeal(context.Background(), "missing")
	require.Error(t, err)
}

func TestSQLiteStore_DocumentLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	deal := seedDeal(t, s, nil)
	doc := seedDocument(t, s, deal.ID)
	assert.Equal(t, model.DocStatusProcessing, doc.Status)

	require.NoError(t, s.CompleteDocument(ctx, doc.ID, "ambiguous", false))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocStatusCompleted, got.Status)
	assert.Equal(t, "ambiguous", got.CurrencyDetection)

	// Terminal: a second transition must not succeed.
	err = s.CompleteDocument(ctx, doc.ID, "", false)
	require.Error(t, err)
	err = s.FailDocument(ctx, doc.ID, fault.New(fault.KindSchemaValidation, "PARSE_DONE", fault.ActionFixCSVHeader, "boom"))
	require.Error(t, err)
}

func TestSQLiteStore_FailDocument_SetsStructuredFields(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	deal := seedDeal(t, s, nil)
	doc := seedDocument(t, s, deal.ID)

	f := fault.New(fault.KindSchemaValidation, "SCHEMA_VALIDATED", fault.ActionFixCSVHeader, "missing required column: amount")
	require.NoError(t, s.FailDocument(ctx, doc.ID, f))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocStatusFailed, got.Status)
	assert.Equal(t, string(fault.KindSchemaValidation), got.ErrorType)
	assert.Equal(t, "missing required column: amount", got.ErrorMessage)
	assert.Equal(t, "SCHEMA_VALIDATED", got.ErrorStage)
	assert.Equal(t, fault.ActionFixCSVHeader, got.NextAction)
}

func TestSQLiteStore_InsertTransactions_Idempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	deal := seedDeal(t, s, nil)
	doc := seedDocument(t, s, deal.ID)

	txns := []model.Transaction{
		{
			TxnID: "aaa", DealID: deal.ID, DocumentID: doc.ID, Date: "2025-01-05",
			AmountCents: 10_000, RawDescriptor: "ACME LLC", ParsedDescriptor: "ACME LLC",
			NormalizedDescriptor: "acme llc", AccountID: "default",
		},
		{
			TxnID: "bbb", DealID: deal.ID, DocumentID: doc.ID, Date: "2025-01-06",
			AmountCents: -4_500, RawDescriptor: "GUSTO PAYROLL", ParsedDescriptor: "GUSTO PAYROLL",
			NormalizedDescriptor: "gusto payroll", AccountID: "default",
		},
	}

	n, err := s.InsertTransactions(ctx, txns)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Re-ingest: same content-derived keys, nothing inserted.
	n, err = s.InsertTransactions(ctx, txns)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	listed, err := s.ListTransactions(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "aaa", listed[0].TxnID)
	assert.Equal(t, int64(-4_500), listed[1].AmountCents)
}

func TestSQLiteStore_OverrideLedger(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	deal := seedDeal(t, s, nil)

	first, err := s.InsertOverride(ctx, &model.Override{
		DealID: deal.ID, EntityID: "e1", Field: "role",
		OldValue: "other", NewValue: "revenue_operational",
		WeightBP: model.WeightMajorBP, CreatedBy: "analyst@example.com",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	_, err = s.InsertOverride(ctx, &model.Override{
		DealID: deal.ID, EntityID: "e1", Field: "role",
		OldValue: "revenue_operational", NewValue: "supplier",
		WeightBP: model.WeightMajorBP, CreatedBy: "analyst@example.com",
	})
	require.NoError(t, err)

	listed, err := s.ListOverrides(ctx, deal.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "revenue_operational", listed[0].NewValue)
	assert.Equal(t, "supplier", listed[1].NewValue)
}

func TestSQLiteStore_InsertRun_RoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	deal := seedDeal(t, s, nil)

	reconBP := 9_800
	run, err := s.InsertRun(ctx, &model.AnalysisRun{
		DealID: deal.ID, State: "LIVE_DRAFT",
		SchemaVersion: "1.0.0", ConfigVersion: "1.0.0", RunTrigger: "export",
		NonTransferAbsTotalCents: 100_000, ClassifiedAbsTotalCents: 90_000,
		BankOperationalInflowCents: 60_000,
		CoverageBP:                 9_000, MissingMonthCount: 1, MissingMonthPenaltyBP: 1_000,
		OverridePenaltyBP: 500, ReconciliationStatus: model.ReconOK, ReconciliationBP: &reconBP,
		BaseConfidenceBP: 8_000, FinalConfidenceBP: 7_500, Tier: model.TierMedium,
		RawTransactionHash: "h1", TransferLinksHash: "h2", EntitiesHash: "h3", OverridesHash: "h4",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)

	runs, err := s.ListRuns(ctx, deal.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	require.NotNil(t, runs[0].ReconciliationBP)
	assert.Equal(t, 9_800, *runs[0].ReconciliationBP)
	assert.Equal(t, model.TierMedium, runs[0].Tier)
}

func seedRun(t *testing.T, s *SQLiteStore, dealID string) *model.AnalysisRun {
	t.Helper()
	run, err := s.InsertRun(context.Background(), &model.AnalysisRun{
		DealID: dealID, State: "LIVE_DRAFT",
		SchemaVersion: "1.0.0", ConfigVersion: "1.0.0", RunTrigger: "export",
		ReconciliationStatus: model.ReconNotRun, Tier: model.TierLow,
		RawTransactionHash: "h1", TransferLinksHash: "h2", EntitiesHash: "h3", OverridesHash: "h4",
	})
	require.NoError(t, err)
	return run
}

func TestSQLiteStore_InsertSnapshot_IdempotentOnHash(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	deal := seedDeal(t, s, nil)
	run := seedRun(t, s, deal.ID)

	snap := &model.Snapshot{
		DealID: deal.ID, AnalysisRunID: run.ID,
		SchemaVersion: "1.0.0", ConfigVersion: "1.0.0",
		FinancialStateHash: "fsh", SHA256Hash: "sha-1",
		CanonicalJSON: `{"deal_id":"x"}`, CreatedBy: "analyst@example.com",
	}

	first, err := s.InsertSnapshot(ctx, snap)
	require.NoError(t, err)

	second, err := s.InsertSnapshot(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	latest, err := s.GetLatestSnapshot(ctx, deal.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, first.ID, latest.ID)

	byHash, err := s.GetSnapshotByHash(ctx, "sha-1")
	require.NoError(t, err)
	require.NotNil(t, byHash)
	assert.Equal(t, `{"deal_id":"x"}`, byHash.CanonicalJSON)
}

func TestSQLiteStore_GetSnapshotByHash_NotFound(t *testing.T) {
	s := newTestSQLiteStore(t)

	sn, err := s.GetSnapshotByHash(context.Background(), "no-such-hash")
	require.NoError(t, err)
	assert.Nil(t, sn)
}

func TestSQLiteStore_GetLatestSnapshot_Empty(t *testing.T) {
	s := newTestSQLiteStore(t)
	deal := seedDeal(t, s, nil)

	sn, err := s.GetLatestSnapshot(context.Background(), deal.ID)
	require.NoError(t, err)
	assert.Nil(t, sn)
}

func TestSQLiteStore_SnapshotsAreImmutable(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	deal := seedDeal(t, s, nil)
	run := seedRun(t, s, deal.ID)

	snap, err := s.InsertSnapshot(ctx, &model.Snapshot{
		DealID: deal.ID, AnalysisRunID: run.ID,
		SchemaVersion: "1.0.0", ConfigVersion: "1.0.0",
		FinancialStateHash: "fsh", SHA256Hash: "sha-immutable",
		CanonicalJSON: `{}`, CreatedBy: "analyst@example.com",
	})
	require.NoError(t, err)

	_, err = s.db.ExecContext(ctx, `UPDATE snapshots SET canonical_json = '{"tampered":true}' WHERE id = ?`, snap.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "immutable")

	_, err = s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, snap.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "immutable")
}
