package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pamin/idms/internal/core/domain"
	"github.com/pamin/idms/internal/core/ports"
)

// Rebuilder re-derives the vector index from documents already
// finalized in the ledger. Used after index loss or an embedding
// change; every update goes through the same single-writer lock as
// live runs.
type Rebuilder struct {
	ledger    ports.LedgerReader
	extractor ports.ContentExtractor
	index     ports.IndexWriter
	logger    *slog.Logger
}

func NewRebuilder(
	ledger ports.LedgerReader,
	extractor ports.ContentExtractor,
	index ports.IndexWriter,
	logger *slog.Logger,
) *Rebuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rebuilder{
		ledger:    ledger,
		extractor: extractor,
		index:     index,
		logger:    logger,
	}
}

// Rebuild walks processed ledger records, re-extracts each archived
// file and re-indexes it. Documents whose archive copy is missing or
// unreadable are skipped with a warning; the count of successfully
// indexed documents is returned.
func (r *Rebuilder) Rebuild(ctx context.Context) (int, error) {
	records, err := r.ledger.Records(ctx)
	if err != nil {
		return 0, fmt.Errorf("read ledger: %w", err)
	}

	rebuilt := 0
	for _, rec := range records {
		if rec.Status != domain.StatusProcessed {
			continue
		}
		if err := ctx.Err(); err != nil {
			return rebuilt, err
		}

		extraction, err := r.extractor.Extract(ctx, rec.Path)
		if err != nil {
			r.logger.Warn("rebuild: extraction failed, skipping",
				"doc_id", rec.DocID, "path", rec.Path, "error", err)
			continue
		}
		if extraction.Hash != rec.Hash {
			r.logger.Warn("rebuild: archived file hash drifted, skipping",
				"doc_id", rec.DocID, "path", rec.Path)
			continue
		}

		if err := r.index.Update(ctx, rec.DocID, extraction.Content); err != nil {
			if domain.IsKind(err, domain.ErrLockTimeout) {
				return rebuilt, err
			}
			r.logger.Warn("rebuild: index update failed, skipping",
				"doc_id", rec.DocID, "error", err)
			continue
		}
		rebuilt++
	}

	r.logger.Info("index rebuild complete", "documents", rebuilt)
	return rebuilt, nil
}
