package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sells-group/parity/internal/fault"
	"github.com/sells-group/parity/internal/model"
	"github.com/sells-group/parity/internal/store"
)

const validCSV = `date,amount,description
2025-01-05,1000.00,ACME LLC INVOICE 42
2025-01-06,-250.00,GUSTO PAYROLL
2025-02-07,500.00,ACME LLC INVOICE 43
`

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest_test.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return New(st, nil), st
}

func newTestDeal(t *testing.T, st store.Store, accrual *model.Accrual) *model.Deal {
	t.Helper()
	deal, err := st.CreateDeal(context.Background(), &model.Deal{
		Name:      "Acme Acquisition",
		Currency:  "USD",
		Accrual:   accrual,
		CreatedBy: "analyst@example.com",
	})
	require.NoError(t, err)
	return deal
}

func csvUpload(dealID, name, body string) Upload {
	return Upload{
		DealID:    dealID,
		FileName:  name,
		FileType:  model.FileTypeCSV,
		FileBytes: []byte(body),
		CreatedBy: "analyst@example.com",
	}
}

func TestService_Ingest_ValidCSV(t *testing.T) {
	svc, st := newTestService(t)
	deal := newTestDeal(t, st, nil)

	doc, err := svc.Ingest(context.Background(), csvUpload(deal.ID, "jan.csv", validCSV))
	require.NoError(t, err)
	assert.Equal(t, model.DocStatusCompleted, doc.Status)
	assert.Empty(t, doc.ErrorType)

	txns, err := st.ListTransactions(context.Background(), deal.ID)
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, "2025-01-05", txns[0].Date)
	assert.Equal(t, int64(100_000), txns[0].AmountCents)
}

func TestService_Ingest_MissingColumnFailsDocument(t *testing.T) {
	svc, st := newTestService(t)
	deal := newTestDeal(t, st, nil)

	doc, err := svc.Ingest(context.Background(), csvUpload(deal.ID, "bad.csv",
		"date,description\n2025-01-05,ACME\n"))
	require.NoError(t, err)
	assert.Equal(t, model.DocStatusFailed, doc.Status)
	assert.Equal(t, string(fault.KindSchemaValidation), doc.ErrorType)
	assert.Equal(t, "SCHEMA_VALIDATED", doc.ErrorStage)
	assert.Equal(t, fault.ActionFixCSVHeader, doc.NextAction)
	assert.Contains(t, doc.ErrorMessage, "amount")
}

func TestService_Ingest_CurrencyMismatchFlagsDocument(t *testing.T) {
	svc, st := newTestService(t)
	deal := newTestDeal(t, st, nil) // deal currency USD

	doc, err := svc.Ingest(context.Background(), csvUpload(deal.ID, "eur.csv",
		"date,amount,description\n2025-01-05,EUR 1000.00,ACME\n"))
	require.NoError(t, err)
	assert.Equal(t, model.DocStatusFailed, doc.Status)
	assert.Equal(t, string(fault.KindCurrencyMismatch), doc.ErrorType)
	assert.True(t, doc.CurrencyMismatch)
}

func TestService_Ingest_EmptyFile(t *testing.T) {
	svc, st := newTestService(t)
	deal := newTestDeal(t, st, nil)

	doc, err := svc.Ingest(context.Background(), csvUpload(deal.ID, "empty.csv", ""))
	require.NoError(t, err)
	assert.Equal(t, model.DocStatusFailed, doc.Status)
	assert.Equal(t, string(fault.KindFileUpload), doc.ErrorType)
	assert.Equal(t, fault.ActionRetryUpload, doc.NextAction)
}

func TestService_Ingest_FailureIsolatedPerDocument(t *testing.T) {
	svc, st := newTestService(t)
	deal := newTestDeal(t, st, nil)
	ctx := context.Background()

	bad, err := svc.Ingest(ctx, csvUpload(deal.ID, "bad.csv", "not,a,statement\nx,y,z\n"))
	require.NoError(t, err)
	assert.Equal(t, model.DocStatusFailed, bad.Status)

	good, err := svc.Ingest(ctx, csvUpload(deal.ID, "good.csv", validCSV))
	require.NoError(t, err)
	assert.Equal(t, model.DocStatusCompleted, good.Status)
}

func TestService_Ingest_AmbiguousCurrencyDetection(t *testing.T) {
	svc, st := newTestService(t)
	deal := newTestDeal(t, st, nil)

	doc, err := svc.Ingest(context.Background(), csvUpload(deal.ID, "glyph.csv",
		"date,amount,description\n2025-01-05,$1000.00,ACME\n"))
	require.NoError(t, err)
	assert.Equal(t, model.DocStatusCompleted, doc.Status)
	assert.Equal(t, "ambiguous", doc.CurrencyDetection)
}

func TestService_IngestBatch_LeakFree(t *testing.T) {
	defer goleak.VerifyNone(t)

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest_test.db"))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Migrate(context.Background()))
	svc := New(st, nil)
	deal := newTestDeal(t, st, nil)

	uploads := []Upload{
		csvUpload(deal.ID, "a.csv", validCSV),
		csvUpload(deal.ID, "b.csv", "date,description\nbroken\n"),
		csvUpload(deal.ID, "c.csv", "date,amount,description\n2025-03-01,42.00,STRIPE PAYOUT\n"),
	}

	res, err := svc.IngestBatch(context.Background(), uploads, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Completed)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Documents, 3)
}
