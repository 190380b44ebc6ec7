package domain

import "time"

// ExtractionMethod records how text was recovered from a source file.
type ExtractionMethod string

const (
	MethodPDFText ExtractionMethod = "pdf_text"
	MethodOCR     ExtractionMethod = "ocr"
	MethodFailed  ExtractionMethod = "failed"
)

// Extraction is the full output of the content extractor for one file,
// telemetry included. Immutable once produced for a given hash.
type Extraction struct {
	Hash             string           `json:"hash"`
	FileSizeBytes    int64            `json:"file_size_bytes"`
	PagesProcessed   int              `json:"pages_processed"`
	Content          string           `json:"content"`
	Method           ExtractionMethod `json:"extraction_method"`
	OCRUsed          bool             `json:"ocr_used"`
	OCRDPI           int              `json:"ocr_dpi"`
	OCREngineVersion string           `json:"ocr_engine_version"`
	TextLength       int              `json:"extracted_text_length"`
}

// Classification is derived purely from extracted text and recomputed
// on every run unless overridden by a reviewer.
type Classification struct {
	Entity           string   `json:"entity"`
	EntityConfidence float64  `json:"entity_confidence"`
	DocType          string   `json:"doc_type"`
	TypeConfidence   float64  `json:"type_confidence"`
	Confidence       float64  `json:"confidence"`
	Category         string   `json:"category"`
	Signals          []string `json:"signals_detected"`
}

const (
	EntityUnknown       = "Unknown"
	DocTypeGeneric      = "Document"
	DocTypeUnclassified = "Unclassified"
	CategoryUnsorted    = "00-uncategorized"
)

// Routing is the two-valued confidence-gated outcome.
type Routing string

const (
	RoutingAuto   Routing = "auto"
	RoutingReview Routing = "review"
)

// ProcessingStatus is persisted on the metadata record.
type ProcessingStatus string

const (
	StatusPreview   ProcessingStatus = "preview"
	StatusProcessed ProcessingStatus = "processed"
	StatusReview    ProcessingStatus = "review"
)

// Overrides carries reviewer corrections. Any present field replaces
// the classifier output verbatim; a manual edit is trusted at full
// confidence.
type Overrides struct {
	Category string `json:"category,omitempty"`
	DocType  string `json:"doc_type,omitempty"`
	Entity   string `json:"entity,omitempty"`
	Date     string `json:"date,omitempty"`
	DocID    string `json:"doc_id,omitempty"`
}

// MetadataRecord is the durable unit written to sinks, keyed by DocID.
// Sinks upsert by that key so re-running a document is idempotent.
type MetadataRecord struct {
	DocID            string           `json:"doc_id"`
	Timestamp        time.Time        `json:"timestamp"`
	OrigName         string           `json:"orig_name"`
	NewName          string           `json:"new_name"`
	Category         string           `json:"category"`
	Entity           string           `json:"entity"`
	DocType          string           `json:"doc_type"`
	Confidence       float64          `json:"confidence"`
	Path             string           `json:"path"`
	Status           ProcessingStatus `json:"status"`
	Hash             string           `json:"hash"`
	HashValid        bool             `json:"hash_valid"`
	PagesProcessed   int              `json:"pages_processed"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`
	OCRUsed          bool             `json:"ocr_used"`
	OCRDPI           int              `json:"ocr_dpi"`
	OCREngineVersion string           `json:"ocr_engine_version"`
	TextLength       int              `json:"extracted_text_length"`
	EmbeddingModel   string           `json:"embedding_model"`
	Signals          []string         `json:"signals_detected"`
}

// HashWellFormed reports whether h looks like a lowercase hex SHA-256
// digest. Recorded as an audit flag, never used for routing.
func HashWellFormed(h string) bool {
	if len(h) != 64 {
		return false
	}
	for _, c := range h {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
