// Package ingest runs the document ingestion lifecycle and the export
// orchestration on top of the store and the deterministic pipeline.
package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/parity/internal/fault"
	"github.com/sells-group/parity/internal/model"
	"github.com/sells-group/parity/internal/ocr"
	"github.com/sells-group/parity/internal/parse"
	"github.com/sells-group/parity/internal/store"
)

// Processing stage ladder. Stage names land on failed documents and in logs
// so an analyst can see exactly where a file died.
const (
	StageFileReceived    = "FILE_RECEIVED"
	StageParseStart      = "PARSE_START"
	StageParseDone       = "PARSE_DONE"
	StageDBInsertStart   = "DB_INSERT_START"
	StageDBInsertDone    = "DB_INSERT_DONE"
	StageStatusCompleted = "STATUS_COMPLETED"
)

// Service ingests statement documents for a deal. A failed document never
// affects other documents of the same deal.
type Service struct {
	store     store.Store
	extractor ocr.Extractor
}

// New builds an ingestion service. extractor may be nil when PDF support is
// not needed.
func New(st store.Store, extractor ocr.Extractor) *Service {
	return &Service{store: st, extractor: extractor}
}

// Upload is one file handed to the ingestion service.
type Upload struct {
	DealID    string
	FileName  string
	FileType  model.FileType
	FileBytes []byte
	CreatedBy string
}

// Ingest registers the document and processes it synchronously. The returned
// document reflects the terminal status; the error is non-nil only when the
// document could not even be registered.
func (s *Service) Ingest(ctx context.Context, up Upload) (*model.Document, error) {
	doc, err := s.store.CreateDocument(ctx, &model.Document{
		DealID:    up.DealID,
		FileName:  up.FileName,
		FileType:  up.FileType,
		CreatedBy: up.CreatedBy,
	})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: register document")
	}
	zap.L().Info("ingest: document received",
		zap.String("document_id", doc.ID),
		zap.String("deal_id", doc.DealID),
		zap.String("file_name", doc.FileName),
		zap.String("stage", StageFileReceived),
	)

	if err := s.ProcessDocument(ctx, doc.ID, up.FileBytes); err != nil {
		// The document carries the structured failure; surface the final row.
		zap.L().Warn("ingest: document failed",
			zap.String("document_id", doc.ID),
			zap.Error(err),
		)
	}
	return s.store.GetDocument(ctx, doc.ID)
}

// ProcessDocument parses the file, bulk-inserts its canonical transactions,
// and transitions the document to completed. Any error marks the document
// failed with kind, message, stage, and next action, then returns that fault.
func (s *Service) ProcessDocument(ctx context.Context, documentID string, fileBytes []byte) error {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return eris.Wrapf(err, "ingest: load document %s", documentID)
	}
	deal, err := s.store.GetDeal(ctx, doc.DealID)
	if err != nil {
		return s.fail(ctx, documentID, fault.Wrap(err, fault.KindPipelineStage, StageParseStart, fault.ActionRetryOrSupport, "deal lookup failed"))
	}
	log := zap.L().With(
		zap.String("document_id", documentID),
		zap.String("deal_id", doc.DealID),
	)

	if len(fileBytes) == 0 {
		return s.fail(ctx, documentID, fault.New(fault.KindFileUpload, StageParseStart, fault.ActionRetryUpload, "file is empty"))
	}

	parser, err := parse.ForType(doc.FileType, s.extractor)
	if err != nil {
		return s.fail(ctx, documentID, fault.From(err, StageParseStart))
	}

	log.Info("ingest: parse start", zap.String("stage", StageParseStart))
	res, err := parser.Parse(ctx, fileBytes, doc.ID, doc.DealID, deal.Currency)
	if err != nil {
		return s.fail(ctx, documentID, fault.From(err, StageParseDone))
	}
	log.Info("ingest: parse done",
		zap.String("stage", StageParseDone),
		zap.Int("transactions", len(res.Transactions)),
		zap.String("raw_hash", res.RawHash),
		zap.String("currency_detection", res.CurrencyDetection),
	)

	log.Info("ingest: insert start", zap.String("stage", StageDBInsertStart))
	inserted, err := s.store.InsertTransactions(ctx, res.Transactions)
	if err != nil {
		return s.fail(ctx, documentID, fault.Wrap(err, fault.KindPipelineStage, StageDBInsertStart, fault.ActionRetryOrSupport, "transaction insert failed"))
	}
	log.Info("ingest: insert done",
		zap.String("stage", StageDBInsertDone),
		zap.Int64("inserted", inserted),
	)

	if err := s.store.CompleteDocument(ctx, documentID, res.CurrencyDetection, false); err != nil {
		return eris.Wrapf(err, "ingest: complete document %s", documentID)
	}
	log.Info("ingest: document completed", zap.String("stage", StageStatusCompleted))
	return nil
}

// fail marks the document failed with the fault's structured fields and
// returns the fault.
func (s *Service) fail(ctx context.Context, documentID string, f *fault.Fault) error {
	if err := s.store.FailDocument(ctx, documentID, f); err != nil {
		zap.L().Error("ingest: mark document failed",
			zap.String("document_id", documentID),
			zap.Error(err),
		)
	}
	return f
}
