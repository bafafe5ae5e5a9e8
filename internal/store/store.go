// Package store persists deals, documents, transactions, derived analysis
// artifacts, overrides, runs, and snapshots behind a single interface with
// SQLite and Postgres implementations.
package store

import (
	"context"

	"github.com/sells-group/parity/internal/fault"
	"github.com/sells-group/parity/internal/model"
)

// Store defines the persistence interface for the transaction analysis
// pipeline. Transactions, overrides, analysis runs, and snapshots are
// append-only; snapshots are additionally immutable at the storage level.
type Store interface {
	// Deals
	CreateDeal(ctx context.Context, deal *model.Deal) (*model.Deal, error)
	GetDeal(ctx context.Context, dealID string) (*model.Deal, error)

	// Documents
	CreateDocument(ctx context.Context, doc *model.Document) (*model.Document, error)
	GetDocument(ctx context.Context, documentID string) (*model.Document, error)
	ListDocuments(ctx context.Context, dealID string) ([]model.Document, error)
	CompleteDocument(ctx context.Context, documentID, currencyDetection string, currencyMismatch bool) error
	FailDocument(ctx context.Context, documentID string, f *fault.Fault) error

	// Transactions
	InsertTransactions(ctx context.Context, txns []model.Transaction) (int64, error)
	ListTransactions(ctx context.Context, dealID string) ([]model.Transaction, error)

	// Derived analysis artifacts. Links and mappings are fully recomputed on
	// every pipeline run, so each write replaces the deal's previous rows;
	// entities are content-addressed and keep their first display name.
	ReplaceTransferLinks(ctx context.Context, dealID string, links []model.TransferLink) error
	ListTransferLinks(ctx context.Context, dealID string) ([]model.TransferLink, error)
	UpsertEntities(ctx context.Context, entities []model.Entity) error
	ListEntities(ctx context.Context, dealID string) ([]model.Entity, error)
	ReplaceMappings(ctx context.Context, dealID string, mappings []model.TxnEntityMapping) error
	ListMappings(ctx context.Context, dealID string) ([]model.TxnEntityMapping, error)

	// Override ledger
	InsertOverride(ctx context.Context, o *model.Override) (*model.Override, error)
	ListOverrides(ctx context.Context, dealID string) ([]model.Override, error)

	// Analysis runs
	InsertRun(ctx context.Context, run *model.AnalysisRun) (*model.AnalysisRun, error)
	ListRuns(ctx context.Context, dealID string, limit int) ([]model.AnalysisRun, error)

	// Snapshots
	InsertSnapshot(ctx context.Context, s *model.Snapshot) (*model.Snapshot, error)
	GetSnapshot(ctx context.Context, snapshotID string) (*model.Snapshot, error)
	GetSnapshotByHash(ctx context.Context, sha256Hash string) (*model.Snapshot, error)
	GetLatestSnapshot(ctx context.Context, dealID string) (*model.Snapshot, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
