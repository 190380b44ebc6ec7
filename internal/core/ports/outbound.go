package ports

import (
	"context"
	"time"

	"github.com/pamin/idms/internal/core/domain"
)

// ContentExtractor recovers normalized text plus telemetry from a
// source file. When no text is recoverable it returns the partial
// telemetry it gathered alongside a domain.ErrExtraction-kinded error.
type ContentExtractor interface {
	Extract(ctx context.Context, filePath string) (domain.Extraction, error)
}

// TextClassifier derives entity, document type, category and
// confidence scores from extracted text.
type TextClassifier interface {
	Classify(ctx context.Context, text string) (domain.Classification, error)
}

// FilenameGenerator produces the canonical archive filename. Pure and
// deterministic; collision handling belongs to the Archiver.
type FilenameGenerator interface {
	Generate(docType, entity, detail, extension string, date *time.Time) string
}

// Archiver relocates a file with dual hash verification. The source is
// deleted only after the destination hash is confirmed equal to
// expectedHash.
type Archiver interface {
	Archive(ctx context.Context, source, destDir, expectedHash, destFilename string) (domain.ArchiveResult, error)
}

// IndexWriter appends a document embedding to the durable vector
// index under the global single-writer lock.
type IndexWriter interface {
	Update(ctx context.Context, docID, content string) error
}

// MetadataSink is the primary durable record store. Upsert is
// idempotent by DocID and rejects records missing required fields.
type MetadataSink interface {
	Upsert(ctx context.Context, rec domain.MetadataRecord) error
}

// RelationalSink is the optional authoritative store. It additionally
// infers invoice and accounts-receivable sub-records from raw text.
type RelationalSink interface {
	Persist(ctx context.Context, rec domain.MetadataRecord, content string) error
}

// VectorSink is the optional secondary chunk-level index. Failures are
// downgraded to warnings by the orchestrator.
type VectorSink interface {
	IndexDocument(ctx context.Context, docID, content string, rec domain.MetadataRecord) error
}

// SessionStore persists review session snapshots as full-state
// replacements.
type SessionStore interface {
	Load(ctx context.Context) (*domain.ReviewSession, error)
	Save(ctx context.Context, session *domain.ReviewSession) error
	Exists() bool
}

// AuditTrail appends to the hash-chained audit log.
type AuditTrail interface {
	Append(ctx context.Context, event domain.AuditEvent) error
}

// MessageQueue publishes/consumes document-arrival events for the
// worker.
type MessageQueue interface {
	PublishDocumentArrived(ctx context.Context, filePath string) error
	SubscribeDocumentArrived(ctx context.Context, handler func(context.Context, string) error) error
}

// Hasher computes the content-addressed identity of a physical file.
type Hasher interface {
	HashFile(path string) (string, error)
}

// LedgerReader lists finalized records, used by index rebuild.
type LedgerReader interface {
	Records(ctx context.Context) ([]domain.MetadataRecord, error)
}
