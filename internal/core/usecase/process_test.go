package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pamin/idms/internal/core/domain"
	"github.com/pamin/idms/internal/core/ports"
)

type stepLog struct {
	mu    sync.Mutex
	steps []string
}

func (l *stepLog) record(step string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, step)
}

func (l *stepLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.steps...)
}

type extractorFake struct {
	ext domain.Extraction
	err error
}

func (f *extractorFake) Extract(context.Context, string) (domain.Extraction, error) {
	if f.err != nil {
		return f.ext, f.err
	}
	return f.ext, nil
}

type classifierFake struct {
	mu    sync.Mutex
	cls   domain.Classification
	err   error
	calls int
}

func (f *classifierFake) Classify(context.Context, string) (domain.Classification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.Classification{}, f.err
	}
	return f.cls, nil
}

func (f *classifierFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type namerFake struct {
	mu                           sync.Mutex
	docType, entity, detail, ext string
	date                         *time.Time
}

func (f *namerFake) Generate(docType, entity, detail, extension string, date *time.Time) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docType, f.entity, f.detail, f.ext, f.date = docType, entity, detail, extension, date
	return "2026-02-17_" + docType + "_" + entity + "_" + detail + "." + extension
}

type archiverFake struct {
	log   *stepLog
	err   error
	calls []struct {
		source, destDir, hash, destFilename string
	}
}

func (f *archiverFake) Archive(_ context.Context, source, destDir, expectedHash, destFilename string) (domain.ArchiveResult, error) {
	if f.log != nil {
		f.log.record("archive")
	}
	f.calls = append(f.calls, struct {
		source, destDir, hash, destFilename string
	}{source, destDir, expectedHash, destFilename})
	if f.err != nil {
		return domain.ArchiveResult{}, f.err
	}
	name := destFilename
	if name == "" {
		name = filepath.Base(source)
	}
	return domain.ArchiveResult{Destination: filepath.Join(destDir, name), Hash: expectedHash}, nil
}

type indexFake struct {
	log   *stepLog
	err   error
	calls int
}

func (f *indexFake) Update(context.Context, string, string) error {
	if f.log != nil {
		f.log.record("index")
	}
	f.calls++
	return f.err
}

type ledgerFake struct {
	log     *stepLog
	err     error
	records []domain.MetadataRecord
}

func (f *ledgerFake) Upsert(_ context.Context, rec domain.MetadataRecord) error {
	if f.log != nil {
		f.log.record("ledger")
	}
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

type relationalFake struct {
	log   *stepLog
	err   error
	calls int
}

func (f *relationalFake) Persist(context.Context, domain.MetadataRecord, string) error {
	if f.log != nil {
		f.log.record("relational")
	}
	f.calls++
	return f.err
}

type vectorFake struct {
	log   *stepLog
	err   error
	calls int
}

func (f *vectorFake) IndexDocument(context.Context, string, string, domain.MetadataRecord) error {
	if f.log != nil {
		f.log.record("vector")
	}
	f.calls++
	return f.err
}

type auditFake struct {
	events []domain.AuditEvent
}

func (f *auditFake) Append(_ context.Context, event domain.AuditEvent) error {
	f.events = append(f.events, event)
	return nil
}

func goodExtraction() domain.Extraction {
	return domain.Extraction{
		Hash:           strings.Repeat("ab", 32),
		FileSizeBytes:  1024,
		PagesProcessed: 2,
		Content:        "American Express invoice VAT line items",
		Method:         domain.MethodPDFText,
		TextLength:     39,
	}
}

func confidentClassification() domain.Classification {
	return domain.Classification{
		Entity:           "Amex",
		EntityConfidence: 0.98,
		DocType:          "Invoice",
		TypeConfidence:   0.85,
		Confidence:       0.92,
		Category:         "05-financial",
		Signals:          []string{"invoice"},
	}
}

type deps struct {
	log        *stepLog
	extractor  *extractorFake
	classifier *classifierFake
	namer      *namerFake
	archiver   *archiverFake
	index      *indexFake
	ledger     *ledgerFake
	relational *relationalFake
	vector     *vectorFake
	audit      *auditFake
}

func newDeps() *deps {
	log := &stepLog{}
	return &deps{
		log:        log,
		extractor:  &extractorFake{ext: goodExtraction()},
		classifier: &classifierFake{cls: confidentClassification()},
		namer:      &namerFake{},
		archiver:   &archiverFake{log: log},
		index:      &indexFake{log: log},
		ledger:     &ledgerFake{log: log},
		relational: &relationalFake{log: log},
		vector:     &vectorFake{log: log},
		audit:      &auditFake{},
	}
}

func newPipeline(d *deps, settings Settings) *Pipeline {
	var counter atomic.Int64
	return NewPipeline(
		settings,
		d.extractor,
		d.classifier,
		d.namer,
		d.archiver,
		d.index,
		d.ledger,
		d.relational,
		d.vector,
		d.audit,
		nil,
		WithClock(func() time.Time { return time.Date(2026, 2, 17, 9, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string {
			return "id-" + strconv.FormatInt(counter.Add(1), 10)
		}),
	)
}

func testSettings() Settings {
	return Settings{
		InboxDir:       "/inbox",
		ReviewDir:      "/inbox/review",
		ArchiveDir:     "/archive",
		EmbeddingModel: "hash-fold-v1",
	}
}

func TestProcessLiveAutoFinalizesInOrder(t *testing.T) {
	d := newDeps()
	p := newPipeline(d, testSettings())

	result := p.Process(context.Background(), "/inbox/statement.pdf", ports.ModeLive, nil)
	if result.Status != domain.ResultOK {
		t.Fatalf("status = %q (%s), want success", result.Status, result.Message)
	}

	wantOrder := []string{"ledger", "relational", "index", "vector", "archive"}
	if got := d.log.list(); !equalStrings(got, wantOrder) {
		t.Fatalf("step order = %v, want %v", got, wantOrder)
	}

	if result.Routing != domain.RoutingAuto {
		t.Fatalf("routing = %q, want auto", result.Routing)
	}
	if result.Metadata == nil {
		t.Fatal("metadata missing from result")
	}
	if result.Metadata.Status != domain.StatusProcessed {
		t.Fatalf("metadata status = %q, want processed", result.Metadata.Status)
	}
	if !result.Metadata.HashValid {
		t.Fatalf("hash_valid = false for well-formed hash")
	}
	if result.Metadata.EmbeddingModel != "hash-fold-v1" {
		t.Fatalf("embedding model = %q", result.Metadata.EmbeddingModel)
	}

	wantDest := filepath.Join("/archive", "05-financial", "2026-02-17_Invoice_Amex_Import.pdf")
	if result.Destination != wantDest {
		t.Fatalf("destination = %q, want %q", result.Destination, wantDest)
	}

	last := d.archiver.calls[len(d.archiver.calls)-1]
	if last.destFilename != "2026-02-17_Invoice_Amex_Import.pdf" {
		t.Fatalf("archive dest filename = %q", last.destFilename)
	}
	if d.namer.detail != "Import" || d.namer.ext != "pdf" {
		t.Fatalf("namer args = detail %q ext %q", d.namer.detail, d.namer.ext)
	}
}

func TestRoutingThresholdBoundary(t *testing.T) {
	cases := []struct {
		name       string
		entityConf float64
		combined   float64
		want       domain.Routing
	}{
		{"both at boundary", 0.85, 0.85, domain.RoutingAuto},
		{"both high", 0.98, 0.92, domain.RoutingAuto},
		{"entity below", 0.84, 0.95, domain.RoutingReview},
		{"combined below", 0.98, 0.84, domain.RoutingReview},
		{"both below", 0.1, 0.1, domain.RoutingReview},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := newDeps()
			d.classifier.cls.EntityConfidence = tc.entityConf
			d.classifier.cls.Confidence = tc.combined
			p := newPipeline(d, testSettings())

			result := p.Process(context.Background(), "/inbox/doc.pdf", ports.ModeDryRun, nil)
			if result.Routing != tc.want {
				t.Fatalf("routing = %q, want %q", result.Routing, tc.want)
			}
		})
	}
}

func TestProcessExtractionFailureAborts(t *testing.T) {
	d := newDeps()
	d.extractor.ext = domain.Extraction{Hash: strings.Repeat("cd", 32), Method: domain.MethodFailed}
	d.extractor.err = domain.WrapError(domain.ErrExtraction, "extract",
		errors.New("no text found via PDF stripping or OCR"))
	p := newPipeline(d, testSettings())

	result := p.Process(context.Background(), "/inbox/blank.pdf", ports.ModeLive, nil)
	if result.Status != domain.ResultAborted {
		t.Fatalf("status = %q, want aborted", result.Status)
	}
	if result.Routing != domain.RoutingReview {
		t.Fatalf("routing = %q, want forced review", result.Routing)
	}
	if result.Hash != strings.Repeat("cd", 32) {
		t.Fatalf("partial hash not carried: %q", result.Hash)
	}
	if result.Telemetry.TextLength != 0 {
		t.Fatalf("text length = %d, want 0", result.Telemetry.TextLength)
	}
	if got := d.classifier.callCount(); got != 0 {
		t.Fatalf("classifier called %d times after extraction failure", got)
	}
	if len(d.log.list()) != 0 {
		t.Fatalf("side effects ran after abort: %v", d.log.list())
	}
}

func TestProcessClassifierErrorPropagates(t *testing.T) {
	d := newDeps()
	d.classifier.err = domain.WrapError(domain.ErrClassification, "classify", errors.New("bad input"))
	p := newPipeline(d, testSettings())

	result := p.Process(context.Background(), "/inbox/doc.pdf", ports.ModeLive, nil)
	if result.Status != domain.ResultError {
		t.Fatalf("status = %q, want error", result.Status)
	}
	if len(d.log.list()) != 0 {
		t.Fatalf("side effects ran after classifier failure: %v", d.log.list())
	}
}

func TestDryRunTouchesNoSink(t *testing.T) {
	d := newDeps()
	d.classifier.cls.EntityConfidence = 0.1 // review routing must not archive either
	p := newPipeline(d, testSettings())

	result := p.Process(context.Background(), "/inbox/doc.pdf", ports.ModeDryRun, nil)
	if result.Status != domain.ResultPreview {
		t.Fatalf("status = %q, want dry-run-preview", result.Status)
	}
	if len(d.log.list()) != 0 {
		t.Fatalf("dry run performed side effects: %v", d.log.list())
	}
	if result.Metadata == nil || result.Metadata.Status != domain.StatusPreview {
		t.Fatalf("metadata = %+v, want preview status", result.Metadata)
	}
	if len(result.SideEffects) == 0 {
		t.Fatal("dry run did not enumerate side effects")
	}
	for _, se := range result.SideEffects {
		if !se.Enabled {
			t.Fatalf("side effect %q disabled with all sinks configured", se.Step)
		}
	}
}

func TestDryRunFlagsDisabledOptionalSinks(t *testing.T) {
	d := newDeps()
	p := NewPipeline(testSettings(), d.extractor, d.classifier, d.namer, d.archiver,
		d.index, d.ledger, nil, nil, d.audit, nil)

	result := p.Process(context.Background(), "/inbox/doc.pdf", ports.ModeDryRun, nil)
	var sawRelational, sawVector bool
	for _, se := range result.SideEffects {
		switch se.Step {
		case "Relational Store":
			sawRelational = true
			if se.Enabled {
				t.Fatal("relational side effect enabled with nil sink")
			}
		case "Vector Sink":
			sawVector = true
			if se.Enabled {
				t.Fatal("vector side effect enabled with nil sink")
			}
		}
	}
	if !sawRelational || !sawVector {
		t.Fatalf("side effects missing optional sinks: %+v", result.SideEffects)
	}
}

func TestLowConfidenceRoutesToReview(t *testing.T) {
	d := newDeps()
	d.classifier.cls.EntityConfidence = 0.5
	p := newPipeline(d, testSettings())

	result := p.Process(context.Background(), "/inbox/doc.pdf", ports.ModeLive, nil)
	if result.Status != domain.ResultReview {
		t.Fatalf("status = %q, want review", result.Status)
	}
	if len(d.archiver.calls) != 1 {
		t.Fatalf("archiver calls = %d, want 1", len(d.archiver.calls))
	}
	call := d.archiver.calls[0]
	if call.destDir != "/inbox/review" {
		t.Fatalf("review destination = %q", call.destDir)
	}
	if call.destFilename != "" {
		t.Fatalf("review move renamed the file to %q", call.destFilename)
	}
	if got := d.log.list(); !equalStrings(got, []string{"archive"}) {
		t.Fatalf("steps = %v, want archive only", got)
	}
}

func TestAlreadyInReviewFallsThroughToFinalize(t *testing.T) {
	d := newDeps()
	d.classifier.cls.EntityConfidence = 0.5
	p := newPipeline(d, testSettings())

	result := p.Process(context.Background(), "/inbox/review/doc.pdf", ports.ModeLive, nil)
	if result.Status != domain.ResultOK {
		t.Fatalf("status = %q (%s), want success for in-review file", result.Status, result.Message)
	}
	if result.Metadata.Status != domain.StatusReview {
		t.Fatalf("metadata status = %q, want review", result.Metadata.Status)
	}
	if got := d.log.list(); got[0] != "ledger" {
		t.Fatalf("in-review file skipped finalization: %v", got)
	}
}

func TestAbsolutePathMatchesRelativeReviewDir(t *testing.T) {
	t.Chdir(t.TempDir())

	d := newDeps()
	d.classifier.cls.EntityConfidence = 0.5
	settings := testSettings()
	settings.ReviewDir = "data/inbox/review"
	p := newPipeline(d, settings)

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	filePath := filepath.Join(cwd, "data", "inbox", "review", "doc.pdf")

	result := p.Process(context.Background(), filePath, ports.ModeLive, nil)
	if result.Status != domain.ResultOK {
		t.Fatalf("status = %q (%s), want fall-through for in-review file", result.Status, result.Message)
	}
	for _, call := range d.archiver.calls {
		if call.destDir == settings.ReviewDir {
			t.Fatalf("file re-routed back into the review directory: %+v", call)
		}
	}
	if got := d.log.list(); got[0] != "ledger" {
		t.Fatalf("in-review file skipped finalization: %v", got)
	}
}

func TestOverridesForceConfidenceAndReuseDocID(t *testing.T) {
	d := newDeps()
	d.classifier.cls.Confidence = 0.3
	d.classifier.cls.Category = "00-uncategorized"
	p := newPipeline(d, testSettings())

	overrides := &domain.Overrides{Category: "05-financial", DocID: "doc-keep"}
	result := p.Process(context.Background(), "/inbox/review/doc.pdf", ports.ModeLive, overrides)

	if result.Status != domain.ResultOK {
		t.Fatalf("status = %q (%s), want success", result.Status, result.Message)
	}
	if result.DocID != "doc-keep" {
		t.Fatalf("doc_id = %q, want reused override id", result.DocID)
	}
	if result.Confidence != 1.0 {
		t.Fatalf("confidence = %v, want forced 1.0", result.Confidence)
	}
	if result.Metadata.Category != "05-financial" {
		t.Fatalf("category = %q, want override applied", result.Metadata.Category)
	}
}

func TestLedgerFailureStopsBeforeArchive(t *testing.T) {
	d := newDeps()
	d.ledger.err = domain.WrapError(domain.ErrSink, "ledger", errors.New("disk full"))
	p := newPipeline(d, testSettings())

	result := p.Process(context.Background(), "/inbox/doc.pdf", ports.ModeLive, nil)
	if result.Status != domain.ResultError {
		t.Fatalf("status = %q, want error", result.Status)
	}
	if result.DocID == "" {
		t.Fatal("error result missing partial doc_id")
	}
	if got := d.log.list(); !equalStrings(got, []string{"ledger"}) {
		t.Fatalf("steps after ledger failure = %v", got)
	}
}

func TestRelationalFailureIsFatal(t *testing.T) {
	d := newDeps()
	d.relational.err = domain.WrapError(domain.ErrSink, "postgres", errors.New("connection refused"))
	p := newPipeline(d, testSettings())

	result := p.Process(context.Background(), "/inbox/doc.pdf", ports.ModeLive, nil)
	if result.Status != domain.ResultError {
		t.Fatalf("status = %q, want error", result.Status)
	}
	if got := d.log.list(); !equalStrings(got, []string{"ledger", "relational"}) {
		t.Fatalf("steps = %v", got)
	}
}

func TestVectorSinkFailureIsWarningOnly(t *testing.T) {
	d := newDeps()
	d.vector.err = errors.New("qdrant unreachable")
	p := newPipeline(d, testSettings())

	result := p.Process(context.Background(), "/inbox/doc.pdf", ports.ModeLive, nil)
	if result.Status != domain.ResultOK {
		t.Fatalf("status = %q (%s), want success despite vector failure", result.Status, result.Message)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "qdrant unreachable") {
		t.Fatalf("warnings = %v", result.Warnings)
	}
	if got := d.log.list(); got[len(got)-1] != "archive" {
		t.Fatalf("archive skipped after vector warning: %v", got)
	}
}

func TestIndexFailureIsFatal(t *testing.T) {
	d := newDeps()
	d.index.err = domain.WrapError(domain.ErrLockTimeout, "index", errors.New("lock held"))
	p := newPipeline(d, testSettings())

	result := p.Process(context.Background(), "/inbox/doc.pdf", ports.ModeLive, nil)
	if result.Status != domain.ResultError {
		t.Fatalf("status = %q, want error on lock timeout", result.Status)
	}
	if len(d.archiver.calls) != 0 {
		t.Fatal("archive ran after index failure")
	}
}

func TestProcessAppendsAuditEvents(t *testing.T) {
	d := newDeps()
	p := newPipeline(d, testSettings())

	p.Process(context.Background(), "/inbox/doc.pdf", ports.ModeLive, nil)
	if len(d.audit.events) != 2 {
		t.Fatalf("audit events = %d, want started + finished", len(d.audit.events))
	}
	if d.audit.events[0].EventType != "pipeline.started" {
		t.Fatalf("first event = %q", d.audit.events[0].EventType)
	}
	if d.audit.events[1].Outcome != string(domain.ResultOK) {
		t.Fatalf("final outcome = %q", d.audit.events[1].Outcome)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
