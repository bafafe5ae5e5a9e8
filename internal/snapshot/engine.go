// Package snapshot canonicalizes a completed analysis into the hashed,
// immutable, content-addressed audit record.
package snapshot

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parity/internal/canon"
	"github.com/sells-group/parity/internal/fault"
	"github.com/sells-group/parity/internal/model"
	"github.com/sells-group/parity/internal/pipeline"
	"github.com/sells-group/parity/internal/version"
)

// MetricsBlock is the metrics section of the canonical payload.
type MetricsBlock struct {
	CoverageBP            int                        `json:"coverage_bp"`
	MissingMonthCount     int                        `json:"missing_month_count"`
	MissingMonthPenaltyBP int                        `json:"missing_month_penalty_bp"`
	ReconciliationStatus  model.ReconciliationStatus `json:"reconciliation_status"`
	ReconciliationBP      *int                       `json:"reconciliation_bp"`
}

// ConfidenceBlock is the confidence section of the canonical payload.
type ConfidenceBlock struct {
	FinalConfidenceBP int        `json:"final_confidence_bp"`
	Tier              model.Tier `json:"tier"`
	TierCapped        bool       `json:"tier_capped"`
	OverridePenaltyBP int        `json:"override_penalty_bp"`
}

// statePayload is the outcome-only view: everything that defines the
// financial conclusion, excluding the override audit trail. It is the input
// to financial_state_hash, so two runs that reach the same conclusion via
// different override histories share that hash.
type statePayload struct {
	SchemaVersion      string                   `json:"schema_version"`
	ConfigVersion      string                   `json:"config_version"`
	DealID             string                   `json:"deal_id"`
	Currency           string                   `json:"currency"`
	RawTransactionHash string                   `json:"raw_transaction_hash"`
	Transactions       []model.Transaction      `json:"transactions"`
	TransferLinks      []model.TransferLink     `json:"transfer_links"`
	Entities           []model.Entity           `json:"entities"`
	TxnEntityMap       []model.TxnEntityMapping `json:"txn_entity_map"`
	Metrics            MetricsBlock             `json:"metrics"`
	Confidence         ConfidenceBlock          `json:"confidence"`
}

// Payload is the full canonical snapshot payload: the outcome view plus its
// own hash and the sorted override audit list. Its canonical JSON bytes are
// what sha256_hash addresses.
type Payload struct {
	statePayload
	FinancialStateHash string           `json:"financial_state_hash"`
	OverridesApplied   []model.Override `json:"overrides_applied"`
}

// Build assembles the canonical payload from a pipeline result. Every
// embedded list is re-sorted here; the payload never relies on caller
// ordering.
func Build(dealID, dealCurrency string, res *pipeline.Result, overrides []model.Override) (*Payload, error) {
	txns := make([]model.Transaction, len(res.Transactions))
	copy(txns, res.Transactions)
	model.SortTransactions(txns)

	links := make([]model.TransferLink, len(res.Links))
	copy(links, res.Links)
	model.SortTransferLinks(links)

	entities := make([]model.Entity, len(res.Entities))
	copy(entities, res.Entities)
	model.SortEntities(entities)

	mappings := make([]model.TxnEntityMapping, len(res.Mappings))
	copy(mappings, res.Mappings)
	model.SortMappings(mappings)

	applied := make([]model.Override, len(overrides))
	copy(applied, overrides)
	model.SortOverridesByEntity(applied)

	state := statePayload{
		SchemaVersion:      version.SchemaVersion,
		ConfigVersion:      version.ConfigVersion,
		DealID:             dealID,
		Currency:           dealCurrency,
		RawTransactionHash: res.Run.RawTransactionHash,
		Transactions:       txns,
		TransferLinks:      links,
		Entities:           entities,
		TxnEntityMap:       mappings,
		Metrics: MetricsBlock{
			CoverageBP:            res.Metrics.CoverageBP,
			MissingMonthCount:     res.Metrics.MissingMonthCount,
			MissingMonthPenaltyBP: res.Metrics.MissingMonthPenaltyBP,
			ReconciliationStatus:  res.Metrics.ReconciliationStatus,
			ReconciliationBP:      res.Metrics.ReconciliationBP,
		},
		Confidence: ConfidenceBlock{
			FinalConfidenceBP: res.Confidence.FinalConfidenceBP,
			Tier:              res.Confidence.Tier,
			TierCapped:        res.Confidence.TierCapped,
			OverridePenaltyBP: res.Confidence.OverridePenaltyBP,
		},
	}

	stateHash, err := canon.Hash(state)
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: hash financial state")
	}

	return &Payload{
		statePayload:       state,
		FinancialStateHash: stateHash,
		OverridesApplied:   applied,
	}, nil
}

// Canonicalize serializes the payload to its canonical JSON bytes and the
// provenance hash over those bytes.
func Canonicalize(p *Payload) (canonicalJSON string, sha string, err error) {
	b, err := canon.Marshal(p)
	if err != nil {
		return "", "", eris.Wrap(err, "snapshot: canonicalize payload")
	}
	return string(b), canon.HashBytes(b), nil
}

// Repo is the snapshot persistence contract the engine needs. Inserts are
// idempotent on sha256_hash; rows are immutable after creation.
type Repo interface {
	InsertSnapshot(ctx context.Context, s *model.Snapshot) (*model.Snapshot, error)
	GetSnapshotByHash(ctx context.Context, sha256Hash string) (*model.Snapshot, error)
}

// Export persists the payload content-addressed: when a snapshot with the
// same sha256_hash already exists it is returned unchanged rather than
// duplicated, so concurrent identical computations collapse to one row.
func Export(ctx context.Context, repo Repo, dealID, analysisRunID, createdBy string, p *Payload) (*model.Snapshot, error) {
	canonicalJSON, sha, err := Canonicalize(p)
	if err != nil {
		return nil, err
	}

	existing, err := repo.GetSnapshotByHash(ctx, sha)
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: lookup by hash")
	}
	if existing != nil {
		zap.L().Info("snapshot: export deduplicated",
			zap.String("deal_id", dealID),
			zap.String("sha256_hash", sha),
		)
		return existing, nil
	}

	stored, err := repo.InsertSnapshot(ctx, &model.Snapshot{
		DealID:             dealID,
		AnalysisRunID:      analysisRunID,
		SchemaVersion:      p.SchemaVersion,
		ConfigVersion:      p.ConfigVersion,
		FinancialStateHash: p.FinancialStateHash,
		SHA256Hash:         sha,
		CanonicalJSON:      canonicalJSON,
		CreatedBy:          createdBy,
		CreatedAt:          time.Now().UTC(),
	})
	if err != nil {
		return nil, fault.Wrap(err, fault.KindSnapshot, "SNAPSHOT_BUILD_DONE", fault.ActionRetryOrSupport, "snapshot insert failed")
	}

	zap.L().Info("snapshot: exported",
		zap.String("deal_id", dealID),
		zap.String("sha256_hash", sha),
		zap.String("financial_state_hash", p.FinancialStateHash),
	)
	return stored, nil
}
