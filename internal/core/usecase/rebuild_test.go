package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/pamin/idms/internal/core/domain"
)

type ledgerReaderFake struct {
	records []domain.MetadataRecord
	err     error
}

func (f *ledgerReaderFake) Records(context.Context) ([]domain.MetadataRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type pathExtractorFake struct {
	byPath map[string]domain.Extraction
}

func (f *pathExtractorFake) Extract(_ context.Context, path string) (domain.Extraction, error) {
	ext, ok := f.byPath[path]
	if !ok {
		return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "extract",
			errors.New("file not found"))
	}
	return ext, nil
}

func TestRebuildIndexesProcessedRecords(t *testing.T) {
	reader := &ledgerReaderFake{records: []domain.MetadataRecord{
		{DocID: "d1", Path: "/archive/a.pdf", Hash: "h1", Status: domain.StatusProcessed},
		{DocID: "d2", Path: "/review/b.pdf", Hash: "h2", Status: domain.StatusReview},
		{DocID: "d3", Path: "/archive/c.pdf", Hash: "h3", Status: domain.StatusProcessed},
	}}
	extractor := &pathExtractorFake{byPath: map[string]domain.Extraction{
		"/archive/a.pdf": {Hash: "h1", Content: "text a"},
		"/archive/c.pdf": {Hash: "h3", Content: "text c"},
	}}
	index := &indexFake{}

	r := NewRebuilder(reader, extractor, index, nil)
	count, err := r.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("rebuilt = %d, want 2 (review record skipped)", count)
	}
	if index.calls != 2 {
		t.Fatalf("index updates = %d, want 2", index.calls)
	}
}

func TestRebuildSkipsMissingArchives(t *testing.T) {
	reader := &ledgerReaderFake{records: []domain.MetadataRecord{
		{DocID: "d1", Path: "/archive/gone.pdf", Hash: "h1", Status: domain.StatusProcessed},
		{DocID: "d2", Path: "/archive/a.pdf", Hash: "h2", Status: domain.StatusProcessed},
	}}
	extractor := &pathExtractorFake{byPath: map[string]domain.Extraction{
		"/archive/a.pdf": {Hash: "h2", Content: "text"},
	}}
	index := &indexFake{}

	r := NewRebuilder(reader, extractor, index, nil)
	count, err := r.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("rebuilt = %d, want 1", count)
	}
}

func TestRebuildSkipsDriftedHashes(t *testing.T) {
	reader := &ledgerReaderFake{records: []domain.MetadataRecord{
		{DocID: "d1", Path: "/archive/a.pdf", Hash: "recorded", Status: domain.StatusProcessed},
	}}
	extractor := &pathExtractorFake{byPath: map[string]domain.Extraction{
		"/archive/a.pdf": {Hash: "different", Content: "text"},
	}}
	index := &indexFake{}

	r := NewRebuilder(reader, extractor, index, nil)
	count, err := r.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if count != 0 || index.calls != 0 {
		t.Fatalf("rebuilt = %d index calls = %d, want 0/0", count, index.calls)
	}
}

func TestRebuildStopsOnLockTimeout(t *testing.T) {
	reader := &ledgerReaderFake{records: []domain.MetadataRecord{
		{DocID: "d1", Path: "/archive/a.pdf", Hash: "h1", Status: domain.StatusProcessed},
		{DocID: "d2", Path: "/archive/b.pdf", Hash: "h2", Status: domain.StatusProcessed},
	}}
	extractor := &pathExtractorFake{byPath: map[string]domain.Extraction{
		"/archive/a.pdf": {Hash: "h1", Content: "text"},
		"/archive/b.pdf": {Hash: "h2", Content: "text"},
	}}
	index := &indexFake{err: domain.WrapError(domain.ErrLockTimeout, "index", errors.New("lock held"))}

	r := NewRebuilder(reader, extractor, index, nil)
	if _, err := r.Rebuild(context.Background()); !domain.IsKind(err, domain.ErrLockTimeout) {
		t.Fatalf("err = %v, want ErrLockTimeout kind", err)
	}
}

func TestRebuildLedgerErrorSurfaces(t *testing.T) {
	reader := &ledgerReaderFake{err: errors.New("workbook unreadable")}
	r := NewRebuilder(reader, &pathExtractorFake{}, &indexFake{}, nil)
	if _, err := r.Rebuild(context.Background()); err == nil {
		t.Fatal("expected error from unreadable ledger")
	}
}
