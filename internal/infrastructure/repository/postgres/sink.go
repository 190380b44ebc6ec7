// Package postgres is the optional authoritative relational sink.
// Every persistence attempt upserts the document row, infers
// invoice-like sub-records from the raw text and appends an audit
// event, all in one transaction.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pamin/idms/internal/core/domain"
)

type Sink struct {
	db *sql.DB
}

func NewSink(db *sql.DB) *Sink {
	return &Sink{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *Sink) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across cli/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026021701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id TEXT PRIMARY KEY,
	source_file TEXT NOT NULL,
	new_name TEXT NOT NULL,
	category TEXT NOT NULL,
	entity TEXT NOT NULL,
	doc_type TEXT,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	storage_path TEXT NOT NULL,
	status TEXT NOT NULL,
	file_hash TEXT NOT NULL,
	hash_valid BOOLEAN NOT NULL DEFAULT FALSE,
	extracted_text TEXT,
	extracted_text_length INTEGER NOT NULL DEFAULT 0,
	extraction_method TEXT,
	pages_processed INTEGER NOT NULL DEFAULT 0,
	ocr_used BOOLEAN NOT NULL DEFAULT FALSE,
	ocr_dpi INTEGER NOT NULL DEFAULT 0,
	ocr_engine_version TEXT,
	embedding_model TEXT,
	signals_detected JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS invoices (
	doc_id TEXT PRIMARY KEY REFERENCES documents(doc_id),
	invoice_number TEXT,
	invoice_date DATE,
	due_date DATE,
	currency TEXT,
	vendor TEXT,
	customer TEXT,
	net_amount DOUBLE PRECISION,
	vat_amount DOUBLE PRECISION,
	total_amount DOUBLE PRECISION,
	vat_reclaimable DOUBLE PRECISION,
	is_ar BOOLEAN NOT NULL DEFAULT FALSE,
	payment_status TEXT NOT NULL DEFAULT 'unpaid',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS ar_items (
	id BIGSERIAL PRIMARY KEY,
	doc_id TEXT NOT NULL REFERENCES documents(doc_id),
	counterparty TEXT,
	due_date DATE,
	total_amount DOUBLE PRECISION,
	amount_paid DOUBLE PRECISION NOT NULL DEFAULT 0,
	amount_outstanding DOUBLE PRECISION NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'open',
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS audit_events (
	id BIGSERIAL PRIMARY KEY,
	event_type TEXT NOT NULL,
	doc_id TEXT,
	severity TEXT NOT NULL DEFAULT 'info',
	details JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_ar_items_doc_id ON ar_items(doc_id);
CREATE INDEX IF NOT EXISTS idx_audit_events_doc_id ON audit_events(doc_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Persist runs the full upsert cascade for one metadata record.
func (s *Sink) Persist(ctx context.Context, rec domain.MetadataRecord, content string) error {
	if rec.DocID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "postgres persist", fmt.Errorf("doc_id is required"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WrapError(domain.ErrSink, "postgres persist", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := upsertDocument(ctx, tx, rec, content); err != nil {
		return domain.WrapError(domain.ErrSink, "postgres persist", err)
	}

	fields := InferInvoiceFields(rec, content)
	invoiceUpserted, arUpserted, err := upsertInvoiceAndAR(ctx, tx, rec.DocID, fields)
	if err != nil {
		return domain.WrapError(domain.ErrSink, "postgres persist", err)
	}

	if err := appendAuditEvent(ctx, tx, rec, invoiceUpserted, arUpserted); err != nil {
		return domain.WrapError(domain.ErrSink, "postgres persist", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapError(domain.ErrSink, "postgres persist", err)
	}
	return nil
}

func upsertDocument(ctx context.Context, tx *sql.Tx, rec domain.MetadataRecord, content string) error {
	signalsJSON, err := json.Marshal(rec.Signals)
	if err != nil {
		return fmt.Errorf("marshal signals: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO documents (
	doc_id, source_file, new_name, category, entity, doc_type, confidence,
	storage_path, status, file_hash, hash_valid, extracted_text,
	extracted_text_length, extraction_method, pages_processed,
	ocr_used, ocr_dpi, ocr_engine_version, embedding_model, signals_detected
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (doc_id) DO UPDATE SET
	source_file = EXCLUDED.source_file,
	new_name = EXCLUDED.new_name,
	category = EXCLUDED.category,
	entity = EXCLUDED.entity,
	doc_type = EXCLUDED.doc_type,
	confidence = EXCLUDED.confidence,
	storage_path = EXCLUDED.storage_path,
	status = EXCLUDED.status,
	file_hash = EXCLUDED.file_hash,
	hash_valid = EXCLUDED.hash_valid,
	extracted_text = EXCLUDED.extracted_text,
	extracted_text_length = EXCLUDED.extracted_text_length,
	extraction_method = EXCLUDED.extraction_method,
	pages_processed = EXCLUDED.pages_processed,
	ocr_used = EXCLUDED.ocr_used,
	ocr_dpi = EXCLUDED.ocr_dpi,
	ocr_engine_version = EXCLUDED.ocr_engine_version,
	embedding_model = EXCLUDED.embedding_model,
	signals_detected = EXCLUDED.signals_detected,
	updated_at = NOW()
`,
		rec.DocID, rec.OrigName, rec.NewName, rec.Category, rec.Entity, rec.DocType,
		rec.Confidence, rec.Path, string(rec.Status), rec.Hash, rec.HashValid, content,
		rec.TextLength, string(rec.ExtractionMethod), rec.PagesProcessed,
		rec.OCRUsed, rec.OCRDPI, rec.OCREngineVersion, rec.EmbeddingModel, signalsJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

func upsertInvoiceAndAR(ctx context.Context, tx *sql.Tx, docID string, fields InvoiceFields) (bool, bool, error) {
	if !fields.IsInvoiceLike {
		return false, false, nil
	}

	paymentStatus := "unpaid"
	if fields.IsAR {
		paymentStatus = "open"
	}

	_, err := tx.ExecContext(ctx, `
INSERT INTO invoices (
	doc_id, invoice_number, invoice_date, due_date, currency, vendor,
	customer, net_amount, vat_amount, total_amount, vat_reclaimable,
	is_ar, payment_status
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (doc_id) DO UPDATE SET
	invoice_number = EXCLUDED.invoice_number,
	invoice_date = EXCLUDED.invoice_date,
	due_date = EXCLUDED.due_date,
	currency = EXCLUDED.currency,
	vendor = EXCLUDED.vendor,
	customer = EXCLUDED.customer,
	net_amount = EXCLUDED.net_amount,
	vat_amount = EXCLUDED.vat_amount,
	total_amount = EXCLUDED.total_amount,
	vat_reclaimable = EXCLUDED.vat_reclaimable,
	is_ar = EXCLUDED.is_ar,
	payment_status = EXCLUDED.payment_status,
	updated_at = NOW()
`,
		docID, fields.InvoiceNumber, fields.InvoiceDate, fields.DueDate, fields.Currency,
		fields.Vendor, fields.Customer, fields.NetAmount, fields.VATAmount,
		fields.TotalAmount, fields.VATReclaimable, fields.IsAR, paymentStatus,
	)
	if err != nil {
		return false, false, fmt.Errorf("upsert invoice: %w", err)
	}

	if !fields.IsAR || fields.TotalAmount == nil {
		return true, false, nil
	}

	arStatus := "open"
	if fields.DueDate != nil && fields.DueDate.Before(time.Now().UTC().Truncate(24*time.Hour)) {
		arStatus = "overdue"
	}
	counterparty := fields.Customer
	if counterparty == "" {
		counterparty = fields.Vendor
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO ar_items (
	doc_id, counterparty, due_date, total_amount, amount_paid,
	amount_outstanding, status, metadata
) VALUES ($1,$2,$3,$4,0,$5,$6,$7)
`,
		docID, counterparty, fields.DueDate, *fields.TotalAmount,
		*fields.TotalAmount, arStatus, []byte(`{"source":"postgres_sink"}`),
	)
	if err != nil {
		return true, false, fmt.Errorf("insert ar item: %w", err)
	}
	return true, true, nil
}

func appendAuditEvent(ctx context.Context, tx *sql.Tx, rec domain.MetadataRecord, invoiceUpserted, arUpserted bool) error {
	details, err := json.Marshal(map[string]any{
		"source":           "postgres_sink",
		"doc_type":         rec.DocType,
		"invoice_upserted": invoiceUpserted,
		"ar_upserted":      arUpserted,
	})
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO audit_events (event_type, doc_id, severity, details)
VALUES ($1,$2,$3,$4)
`, "pipeline.persisted", rec.DocID, "info", details)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
