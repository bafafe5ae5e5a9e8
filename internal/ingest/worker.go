package ingest

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/parity/internal/model"
)

// BatchResult counts terminal document states after a batch ingest.
type BatchResult struct {
	Completed int
	Failed    int
	Documents []model.Document
}

// IngestBatch processes uploads through a bounded worker pool. One failed
// document never stops the batch; per-document outcomes land on their rows.
func (s *Service) IngestBatch(ctx context.Context, uploads []Upload, concurrency int) (*BatchResult, error) {
	if concurrency <= 0 {
		concurrency = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var completed, failed atomic.Int64
	docs := make([]model.Document, len(uploads))

	for i, up := range uploads {
		g.Go(func() error {
			doc, err := s.Ingest(gctx, up)
			if err != nil {
				// Registration failure: nothing persisted to report on.
				failed.Add(1)
				zap.L().Error("ingest: batch upload failed",
					zap.String("file_name", up.FileName),
					zap.Error(err),
				)
				return nil
			}
			docs[i] = *doc
			if doc.Status == model.DocStatusCompleted {
				completed.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &BatchResult{
		Completed: int(completed.Load()),
		Failed:    int(failed.Load()),
		Documents: docs,
	}, nil
}
