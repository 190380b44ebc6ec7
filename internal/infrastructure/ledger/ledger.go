// Package ledger is the primary durable metadata sink: an xlsx
// workbook with one row per document, upserted by doc_id. Saves go
// through a shadow file so a crash mid-write never corrupts the
// ledger.
package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pamin/idms/internal/core/domain"
)

const sheet = "Documents"

var header = []string{
	"doc_id", "timestamp", "orig_name", "new_name", "category", "entity",
	"doc_type", "confidence", "path", "status", "hash", "hash_valid",
	"pages_processed", "extraction_method", "ocr_used", "ocr_dpi",
	"ocr_engine_version", "extracted_text_length", "embedding_model",
	"signals_detected",
}

// requiredFields mirror the sink contract; a record missing any of
// them is rejected before touching the workbook.
var requiredFields = []string{
	"doc_id", "timestamp", "orig_name", "new_name", "category", "entity",
	"path", "status", "hash",
}

type Ledger struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Upsert writes or replaces the row keyed by rec.DocID.
func (l *Ledger) Upsert(ctx context.Context, rec domain.MetadataRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if missing := missingFields(rec); len(missing) > 0 {
		return domain.WrapError(domain.ErrInvalidInput, "ledger upsert",
			fmt.Errorf("missing metadata fields: %s", strings.Join(missing, ", ")))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.open()
	if err != nil {
		return err
	}
	defer f.Close()

	row, err := l.findRow(f, rec.DocID)
	if err != nil {
		return err
	}

	cell := fmt.Sprintf("A%d", row)
	if err := f.SetSheetRow(sheet, cell, &[]any{
		rec.DocID,
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.OrigName,
		rec.NewName,
		rec.Category,
		rec.Entity,
		rec.DocType,
		rec.Confidence,
		rec.Path,
		string(rec.Status),
		rec.Hash,
		rec.HashValid,
		rec.PagesProcessed,
		string(rec.ExtractionMethod),
		rec.OCRUsed,
		rec.OCRDPI,
		rec.OCREngineVersion,
		rec.TextLength,
		rec.EmbeddingModel,
		strings.Join(rec.Signals, "; "),
	}); err != nil {
		return domain.WrapError(domain.ErrSink, "ledger upsert", err)
	}

	return l.save(f)
}

// Records returns every row in the ledger, used by index rebuild.
func (l *Ledger) Records(ctx context.Context) ([]domain.MetadataRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		return nil, nil
	}

	f, err := excelize.OpenFile(l.path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSink, "ledger read", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSink, "ledger read", err)
	}

	var out []domain.MetadataRecord
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) == 0 || row[0] == "" {
			continue
		}
		out = append(out, decodeRow(row))
	}
	return out, nil
}

func (l *Ledger) open() (*excelize.File, error) {
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		f := excelize.NewFile()
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return nil, domain.WrapError(domain.ErrSink, "ledger init", err)
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return nil, domain.WrapError(domain.ErrSink, "ledger init", err)
		}
		return f, nil
	}

	f, err := excelize.OpenFile(l.path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrSink, "ledger open", err)
	}
	return f, nil
}

// findRow locates the existing row for docID, or the first free row.
func (l *Ledger) findRow(f *excelize.File, docID string) (int, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return 0, domain.WrapError(domain.ErrSink, "ledger scan", err)
	}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) > 0 && row[0] == docID {
			return i + 1, nil
		}
	}
	return len(rows) + 1, nil
}

// save writes the workbook through a plain file handle. SaveAs cannot
// target the shadow path because excelize validates the extension.
func (l *Ledger) save(f *excelize.File) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return domain.WrapError(domain.ErrSink, "ledger save", err)
	}
	shadow := l.path + ".tmp"
	w, err := os.Create(shadow)
	if err != nil {
		return domain.WrapError(domain.ErrSink, "ledger save", err)
	}
	if err := f.Write(w); err != nil {
		_ = w.Close()
		_ = os.Remove(shadow)
		return domain.WrapError(domain.ErrSink, "ledger save", err)
	}
	if err := w.Close(); err != nil {
		_ = os.Remove(shadow)
		return domain.WrapError(domain.ErrSink, "ledger save", err)
	}
	if err := os.Rename(shadow, l.path); err != nil {
		_ = os.Remove(shadow)
		return domain.WrapError(domain.ErrSink, "ledger save", err)
	}
	return nil
}

func missingFields(rec domain.MetadataRecord) []string {
	present := map[string]bool{
		"doc_id":    rec.DocID != "",
		"timestamp": !rec.Timestamp.IsZero(),
		"orig_name": rec.OrigName != "",
		"new_name":  rec.NewName != "",
		"category":  rec.Category != "",
		"entity":    rec.Entity != "",
		"path":      rec.Path != "",
		"status":    rec.Status != "",
		"hash":      rec.Hash != "",
	}
	var missing []string
	for _, field := range requiredFields {
		if !present[field] {
			missing = append(missing, field)
		}
	}
	return missing
}

func decodeRow(row []string) domain.MetadataRecord {
	get := func(i int) string {
		if i < len(row) {
			return row[i]
		}
		return ""
	}
	ts, _ := time.Parse(time.RFC3339, get(1))
	confidence, _ := strconv.ParseFloat(get(7), 64)
	hashValid, _ := strconv.ParseBool(strings.ToLower(get(11)))
	pages, _ := strconv.Atoi(get(12))
	ocrUsed, _ := strconv.ParseBool(strings.ToLower(get(14)))
	dpi, _ := strconv.Atoi(get(15))
	textLen, _ := strconv.Atoi(get(17))

	rec := domain.MetadataRecord{
		DocID:            get(0),
		Timestamp:        ts,
		OrigName:         get(2),
		NewName:          get(3),
		Category:         get(4),
		Entity:           get(5),
		DocType:          get(6),
		Confidence:       confidence,
		Path:             get(8),
		Status:           domain.ProcessingStatus(get(9)),
		Hash:             get(10),
		HashValid:        hashValid,
		PagesProcessed:   pages,
		ExtractionMethod: domain.ExtractionMethod(get(13)),
		OCRUsed:          ocrUsed,
		OCRDPI:           dpi,
		OCREngineVersion: get(16),
		TextLength:       textLen,
		EmbeddingModel:   get(18),
	}
	if signals := get(19); signals != "" {
		rec.Signals = strings.Split(signals, "; ")
	}
	return rec
}
