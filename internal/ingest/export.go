package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parity/internal/fault"
	"github.com/sells-group/parity/internal/model"
	"github.com/sells-group/parity/internal/pipeline"
	"github.com/sells-group/parity/internal/snapshot"
)

const stageExport = "SNAPSHOT_BUILD_DONE"

// ExportResult is the outcome of one export request.
type ExportResult struct {
	Snapshot *model.Snapshot
	Run      *model.AnalysisRun // nil when an existing snapshot was reused
	Reused   bool
}

// Export gates on document readiness, short-circuits to the latest snapshot
// when nothing changed since it was taken, and otherwise runs the full
// pipeline, persists the analysis run with its derived links, entities, and
// mappings, and exports a content-addressed snapshot.
func (s *Service) Export(ctx context.Context, dealID, requestedBy string) (*ExportResult, error) {
	deal, err := s.store.GetDeal(ctx, dealID)
	if err != nil {
		return nil, eris.Wrapf(err, "export: load deal %s", dealID)
	}

	docs, err := s.store.ListDocuments(ctx, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "export: list documents")
	}
	var completed int
	for _, d := range docs {
		if d.Status == model.DocStatusProcessing {
			return nil, fault.New(fault.KindDocumentsNotReady, stageExport, fault.ActionWaitForDocs,
				"document "+d.ID+" is still processing")
		}
		if d.Status == model.DocStatusCompleted {
			completed++
		}
	}
	if completed == 0 {
		return nil, fault.New(fault.KindDocumentsNotReady, stageExport, fault.ActionWaitForDocs,
			"no completed documents for deal "+dealID)
	}

	overrides, err := s.store.ListOverrides(ctx, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "export: list overrides")
	}

	latest, err := s.store.GetLatestSnapshot(ctx, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "export: latest snapshot")
	}
	if latest != nil && snapshotCurrent(latest.CreatedAt, docs, overrides) {
		zap.L().Info("export: snapshot reused, no input changed",
			zap.String("deal_id", dealID),
			zap.String("snapshot_id", latest.ID),
		)
		return &ExportResult{Snapshot: latest, Reused: true}, nil
	}

	txns, err := s.store.ListTransactions(ctx, dealID)
	if err != nil {
		return nil, eris.Wrap(err, "export: list transactions")
	}

	res, err := pipeline.Run(pipeline.Input{
		DealID:       dealID,
		Transactions: txns,
		Overrides:    overrides,
		Accrual:      deal.Accrual,
		RunTrigger:   "export",
	})
	if err != nil {
		return nil, eris.Wrap(err, "export: pipeline run")
	}

	run, err := s.store.InsertRun(ctx, &res.Run)
	if err != nil {
		return nil, eris.Wrap(err, "export: insert analysis run")
	}

	if err := s.store.ReplaceTransferLinks(ctx, dealID, res.Links); err != nil {
		return nil, eris.Wrap(err, "export: persist transfer links")
	}
	if err := s.store.UpsertEntities(ctx, res.Entities); err != nil {
		return nil, eris.Wrap(err, "export: persist entities")
	}
	if err := s.store.ReplaceMappings(ctx, dealID, res.Mappings); err != nil {
		return nil, eris.Wrap(err, "export: persist txn entity mappings")
	}

	payload, err := snapshot.Build(dealID, deal.Currency, res, overrides)
	if err != nil {
		return nil, eris.Wrap(err, "export: build snapshot payload")
	}
	snap, err := snapshot.Export(ctx, s.store, dealID, run.ID, requestedBy, payload)
	if err != nil {
		return nil, err
	}

	zap.L().Info("export: done",
		zap.String("deal_id", dealID),
		zap.String("run_id", run.ID),
		zap.String("snapshot_id", snap.ID),
		zap.Int("final_confidence_bp", run.FinalConfidenceBP),
		zap.String("tier", string(run.Tier)),
	)
	return &ExportResult{Snapshot: snap, Run: run}, nil
}

// snapshotCurrent reports whether the snapshot postdates every completed
// document and every override, meaning a re-export could not change anything.
func snapshotCurrent(snapAt time.Time, docs []model.Document, overrides []model.Override) bool {
	for _, d := range docs {
		if d.Status == model.DocStatusCompleted && d.UpdatedAt.After(snapAt) {
			return false
		}
	}
	for _, o := range overrides {
		if o.CreatedAt.After(snapAt) {
			return false
		}
	}
	return true
}
