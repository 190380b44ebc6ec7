package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pamin/idms/internal/core/domain"
	"github.com/pamin/idms/internal/core/ports"
)

const (
	// DefaultReviewThreshold gates routing: either confidence below it
	// sends the document to human review.
	DefaultReviewThreshold = 0.85

	defaultDetail = "Import"
)

// Settings is the orchestrator's slice of the process configuration,
// constructed once at startup and passed in. Core logic never reads
// the environment.
type Settings struct {
	InboxDir        string
	ReviewDir       string
	ArchiveDir      string
	ReviewThreshold float64
	EmbeddingModel  string
	BatchWorkers    int
}

// Pipeline sequences extraction, classification, routing, rename and
// persistence for one document at a time. The relational and vector
// sinks are optional; nil disables them and dry runs report them as
// inactive.
type Pipeline struct {
	settings Settings

	extractor  ports.ContentExtractor
	classifier ports.TextClassifier
	namer      ports.FilenameGenerator
	archiver   ports.Archiver
	index      ports.IndexWriter
	ledger     ports.MetadataSink
	relational ports.RelationalSink
	vector     ports.VectorSink
	audit      ports.AuditTrail
	logger     *slog.Logger

	newID func() string
	now   func() time.Time
}

type PipelineOption func(*Pipeline)

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

func WithIDGenerator(newID func() string) PipelineOption {
	return func(p *Pipeline) { p.newID = newID }
}

func NewPipeline(
	settings Settings,
	extractor ports.ContentExtractor,
	classifier ports.TextClassifier,
	namer ports.FilenameGenerator,
	archiver ports.Archiver,
	index ports.IndexWriter,
	ledger ports.MetadataSink,
	relational ports.RelationalSink,
	vector ports.VectorSink,
	audit ports.AuditTrail,
	logger *slog.Logger,
	opts ...PipelineOption,
) *Pipeline {
	if settings.ReviewThreshold <= 0 {
		settings.ReviewThreshold = DefaultReviewThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		settings:   settings,
		extractor:  extractor,
		classifier: classifier,
		namer:      namer,
		archiver:   archiver,
		index:      index,
		ledger:     ledger,
		relational: relational,
		vector:     vector,
		audit:      audit,
		logger:     logger,
		newID:      uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the full pipeline for one file. Step failures are
// returned as structured results, never raised; the only hard errors
// live inside the Result's status and message.
func (p *Pipeline) Process(ctx context.Context, filePath string, mode ports.Mode, overrides *domain.Overrides) domain.PipelineResult {
	execID := p.newID()
	origName := filepath.Base(filePath)
	p.appendAudit(ctx, execID, "pipeline.started", "", filePath, "", string(mode), "info", nil)

	extraction, err := p.extractor.Extract(ctx, filePath)
	if err != nil {
		// Local failure boundary: extraction failure aborts the run
		// with a structured result and a forced review routing.
		result := domain.PipelineResult{
			Status:    domain.ResultAborted,
			Message:   err.Error(),
			Hash:      extraction.Hash,
			Routing:   domain.RoutingReview,
			Telemetry: extraction,
		}
		p.appendAudit(ctx, execID, "pipeline.finished", "", filePath, extraction.Hash,
			string(domain.ResultAborted), "error", []string{err.Error()})
		return result
	}

	classification, err := p.classifier.Classify(ctx, extraction.Content)
	if err != nil {
		result := domain.PipelineResult{
			Status:    domain.ResultError,
			Message:   fmt.Sprintf("classification failed: %v", err),
			Hash:      extraction.Hash,
			Telemetry: extraction,
		}
		p.appendAudit(ctx, execID, "pipeline.finished", "", filePath, extraction.Hash,
			string(domain.ResultError), "error", []string{err.Error()})
		return result
	}

	var warnings []string

	docID := p.newID()
	if overrides != nil {
		if overrides.Category != "" {
			classification.Category = overrides.Category
		}
		if overrides.DocType != "" {
			classification.DocType = overrides.DocType
		}
		if overrides.Entity != "" {
			classification.Entity = overrides.Entity
		}
		if overrides.DocID != "" {
			docID = overrides.DocID
		}
		// A manual correction is trusted unconditionally.
		classification.Confidence = 1.0
	}

	routing := domain.RoutingAuto
	if classification.EntityConfidence < p.settings.ReviewThreshold ||
		classification.Confidence < p.settings.ReviewThreshold {
		routing = domain.RoutingReview
	}

	var datePtr *time.Time
	if overrides != nil && overrides.Date != "" {
		parsed, dateErr := time.Parse("2006-01-02", overrides.Date)
		if dateErr != nil {
			warnings = append(warnings, fmt.Sprintf("ignored unparsable override date %q", overrides.Date))
		} else {
			datePtr = &parsed
		}
	}
	newName := p.namer.Generate(classification.DocType, classification.Entity,
		defaultDetail, fileExtension(filePath), datePtr)

	metadata := p.assembleMetadata(docID, origName, newName, extraction, classification, routing, mode)

	if mode == ports.ModeDryRun {
		result := domain.PipelineResult{
			Status:           domain.ResultPreview,
			DocID:            docID,
			Hash:             extraction.Hash,
			Routing:          routing,
			Confidence:       classification.Confidence,
			EntityConfidence: classification.EntityConfidence,
			Telemetry:        extraction,
			Metadata:         &metadata,
			SideEffects:      p.proposedSideEffects(routing, metadata.Path),
			Warnings:         warnings,
		}
		p.appendAudit(ctx, execID, "pipeline.finished", docID, filePath, extraction.Hash,
			string(domain.ResultPreview), "info", nil)
		return result
	}

	// A file already in the holding area must not be re-routed there,
	// or a low-confidence document would loop forever.
	if routing == domain.RoutingReview && !p.inReviewDir(filePath) {
		if _, archErr := p.archiver.Archive(ctx, filePath, p.settings.ReviewDir, extraction.Hash, ""); archErr != nil {
			result := domain.PipelineResult{
				Status:    domain.ResultError,
				Message:   fmt.Sprintf("route to review: %v", archErr),
				DocID:     docID,
				Hash:      extraction.Hash,
				Routing:   routing,
				Telemetry: extraction,
			}
			p.appendAudit(ctx, execID, "pipeline.finished", docID, filePath, extraction.Hash,
				string(domain.ResultError), "error", []string{archErr.Error()})
			return result
		}
		result := domain.PipelineResult{
			Status:           domain.ResultReview,
			Message:          "Low confidence or entity mismatch, routed to review.",
			DocID:            docID,
			Hash:             extraction.Hash,
			Routing:          routing,
			Confidence:       classification.Confidence,
			EntityConfidence: classification.EntityConfidence,
			Telemetry:        extraction,
		}
		p.appendAudit(ctx, execID, "pipeline.finished", docID, filePath, extraction.Hash,
			string(domain.ResultReview), "info", nil)
		return result
	}

	return p.finalize(ctx, execID, filePath, extraction, classification, metadata, routing, warnings)
}

// finalize persists and archives in a fixed order: ledger first so a
// crash mid-finalization leaves a re-runnable state, archive last so
// the physical file only moves after every durable write landed.
func (p *Pipeline) finalize(
	ctx context.Context,
	execID, filePath string,
	extraction domain.Extraction,
	classification domain.Classification,
	metadata domain.MetadataRecord,
	routing domain.Routing,
	warnings []string,
) domain.PipelineResult {
	fail := func(step string, err error) domain.PipelineResult {
		p.appendAudit(ctx, execID, "pipeline.finished", metadata.DocID, filePath, extraction.Hash,
			string(domain.ResultError), "error", []string{err.Error()})
		return domain.PipelineResult{
			Status:           domain.ResultError,
			Message:          fmt.Sprintf("%s: %v", step, err),
			DocID:            metadata.DocID,
			Hash:             extraction.Hash,
			Routing:          routing,
			Confidence:       classification.Confidence,
			EntityConfidence: classification.EntityConfidence,
			Telemetry:        extraction,
		}
	}

	if err := p.ledger.Upsert(ctx, metadata); err != nil {
		return fail("ledger upsert", err)
	}

	if p.relational != nil {
		if err := p.relational.Persist(ctx, metadata, extraction.Content); err != nil {
			return fail("relational persist", err)
		}
	}

	if err := p.index.Update(ctx, metadata.DocID, extraction.Content); err != nil {
		return fail("vector index update", err)
	}

	if p.vector != nil {
		if err := p.vector.IndexDocument(ctx, metadata.DocID, extraction.Content, metadata); err != nil {
			// Best-effort secondary index: downgrade to a warning.
			warnings = append(warnings, fmt.Sprintf("vector sink: %v", err))
			p.logger.Warn("vector sink failed", "doc_id", metadata.DocID, "error", err)
		}
	}

	destDir := filepath.Join(p.settings.ArchiveDir, metadata.Category)
	archived, err := p.archiver.Archive(ctx, filePath, destDir, extraction.Hash, metadata.NewName)
	if err != nil {
		return fail("archive", err)
	}

	p.appendAudit(ctx, execID, "pipeline.finished", metadata.DocID, filePath, extraction.Hash,
		string(domain.ResultOK), "info", nil)
	return domain.PipelineResult{
		Status:           domain.ResultOK,
		DocID:            metadata.DocID,
		Hash:             archived.Hash,
		Routing:          routing,
		Confidence:       classification.Confidence,
		EntityConfidence: classification.EntityConfidence,
		Telemetry:        extraction,
		Metadata:         &metadata,
		Destination:      archived.Destination,
		Warnings:         warnings,
	}
}

func (p *Pipeline) assembleMetadata(
	docID, origName, newName string,
	extraction domain.Extraction,
	classification domain.Classification,
	routing domain.Routing,
	mode ports.Mode,
) domain.MetadataRecord {
	status := domain.StatusProcessed
	if mode == ports.ModeDryRun {
		status = domain.StatusPreview
	} else if routing == domain.RoutingReview {
		status = domain.StatusReview
	}

	return domain.MetadataRecord{
		DocID:            docID,
		Timestamp:        p.now(),
		OrigName:         origName,
		NewName:          newName,
		Category:         classification.Category,
		Entity:           classification.Entity,
		DocType:          classification.DocType,
		Confidence:       classification.Confidence,
		Path:             filepath.Join(p.settings.ArchiveDir, classification.Category, newName),
		Status:           status,
		Hash:             extraction.Hash,
		HashValid:        domain.HashWellFormed(extraction.Hash),
		PagesProcessed:   extraction.PagesProcessed,
		ExtractionMethod: extraction.Method,
		OCRUsed:          extraction.OCRUsed,
		OCRDPI:           extraction.OCRDPI,
		OCREngineVersion: extraction.OCREngineVersion,
		TextLength:       extraction.TextLength,
		EmbeddingModel:   p.settings.EmbeddingModel,
		Signals:          classification.Signals,
	}
}

// proposedSideEffects enumerates what a live run would touch, tagged
// with which optional sinks are active in this configuration.
func (p *Pipeline) proposedSideEffects(routing domain.Routing, destination string) []domain.SideEffect {
	return []domain.SideEffect{
		{Step: "Ledger", Action: fmt.Sprintf("Upsert row (simulated - %s)", routing), Enabled: true},
		{Step: "Relational Store", Action: "Upsert document + invoice inference (simulated)", Enabled: p.relational != nil},
		{Step: "Vector Index", Action: "Atomic index update (simulated)", Enabled: true},
		{Step: "Vector Sink", Action: "Chunk upsert (simulated)", Enabled: p.vector != nil},
		{Step: "Archiver", Action: "Move file (simulated)", Destination: destination, Enabled: true},
	}
}

// inReviewDir resolves both sides to absolute form so a relative
// ReviewDir still matches absolute file paths, such as those published
// through the queue.
func (p *Pipeline) inReviewDir(filePath string) bool {
	review, err := filepath.Abs(p.settings.ReviewDir)
	if err != nil || p.settings.ReviewDir == "" {
		return false
	}
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return false
	}
	dir := filepath.Dir(abs)
	return dir == review || strings.HasPrefix(dir, review+string(filepath.Separator))
}

func (p *Pipeline) appendAudit(ctx context.Context, execID, eventType, docID, file, hash, outcome, severity string, errs []string) {
	if p.audit == nil {
		return
	}
	event := domain.AuditEvent{
		ExecutionID: execID,
		EventType:   eventType,
		DocID:       docID,
		Timestamp:   p.now(),
		File:        file,
		FileHash:    hash,
		Outcome:     outcome,
		Severity:    severity,
		Errors:      errs,
	}
	if err := p.audit.Append(ctx, event); err != nil {
		p.logger.Warn("audit append failed", "event_type", eventType, "error", err)
	}
}

func fileExtension(filePath string) string {
	ext := strings.TrimPrefix(filepath.Ext(filePath), ".")
	if ext == "" {
		return "pdf"
	}
	return strings.ToLower(ext)
}
