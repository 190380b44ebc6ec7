package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pamin/idms/internal/core/domain"
	"github.com/pamin/idms/internal/core/ports"
)

// Review drives the human-review session state machine over the
// holding directory. Sessions are snapshots; every save is a
// full-state replace.
type Review struct {
	reviewDir string
	store     ports.SessionStore
	hasher    ports.Hasher
	runner    ports.PipelineRunner
	logger    *slog.Logger

	newID func() string
	now   func() time.Time
}

func NewReview(
	reviewDir string,
	store ports.SessionStore,
	hasher ports.Hasher,
	runner ports.PipelineRunner,
	logger *slog.Logger,
) *Review {
	if logger == nil {
		logger = slog.Default()
	}
	return &Review{
		reviewDir: reviewDir,
		store:     store,
		hasher:    hasher,
		runner:    runner,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Initialize scans the holding directory and builds a fresh session
// with every pending document hashed up front. An empty directory is
// the empty state, not an error.
func (r *Review) Initialize(ctx context.Context) (domain.SessionCheck, error) {
	files, err := listPDFs(r.reviewDir)
	if err != nil {
		return domain.SessionCheck{}, fmt.Errorf("scan review dir: %w", err)
	}
	if len(files) == 0 {
		return domain.SessionCheck{
			State:   domain.SessionEmpty,
			Message: "No documents found in review folder.",
		}, nil
	}

	pending := make([]domain.PendingDocument, 0, len(files))
	for _, file := range files {
		hash, err := r.hasher.HashFile(file)
		if err != nil {
			return domain.SessionCheck{}, fmt.Errorf("hash %s: %w", file, err)
		}
		pending = append(pending, domain.PendingDocument{
			DocID:    r.newID(),
			Hash:     hash,
			FilePath: file,
			OrigName: filepath.Base(file),
		})
	}

	session := &domain.ReviewSession{
		Active:          true,
		CurrentDoc:      &pending[0],
		RemainingDocs:   pending,
		ProcessedDocIDs: []string{},
		StartedAt:       r.now(),
	}
	if err := r.store.Save(ctx, session); err != nil {
		return domain.SessionCheck{}, fmt.Errorf("save session: %w", err)
	}

	return domain.SessionCheck{State: domain.SessionActive, Session: session}, nil
}

// Validate re-checks every pending document against the filesystem.
// A missing file or a drifted hash flips the session to corrupted;
// corruption is a state, not an error.
func (r *Review) Validate(ctx context.Context) (domain.SessionCheck, error) {
	if !r.store.Exists() {
		return domain.SessionCheck{State: domain.SessionNone}, nil
	}

	session, err := r.store.Load(ctx)
	if err != nil {
		if domain.IsKind(err, domain.ErrSessionCorrupted) {
			return domain.SessionCheck{
				State:   domain.SessionCorrupted,
				Message: "Malformed JSON in session file.",
			}, nil
		}
		return domain.SessionCheck{}, err
	}
	if session == nil {
		return domain.SessionCheck{State: domain.SessionNone}, nil
	}

	for _, doc := range session.RemainingDocs {
		hash, err := r.hasher.HashFile(doc.FilePath)
		if err != nil {
			return domain.SessionCheck{
				State:   domain.SessionCorrupted,
				Message: fmt.Sprintf("File missing: %s", doc.FilePath),
			}, nil
		}
		if hash != doc.Hash {
			return domain.SessionCheck{
				State:   domain.SessionCorrupted,
				Message: fmt.Sprintf("Hash drift detected for: %s", doc.FilePath),
			}, nil
		}
	}

	return domain.SessionCheck{State: domain.SessionOK, Session: session}, nil
}

// Apply re-runs the live pipeline for each mapped filename with the
// reviewer's category override. Missing files are skipped with a
// warning; processed documents are moved off the session's pending
// queue.
func (r *Review) Apply(ctx context.Context, mapping map[string]string) ([]domain.PipelineResult, error) {
	if len(mapping) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "review.Apply",
			fmt.Errorf("empty mapping"))
	}

	session, err := r.store.Load(ctx)
	if err != nil && !domain.IsKind(err, domain.ErrSessionCorrupted) {
		return nil, err
	}

	var results []domain.PipelineResult
	resolved := map[string]bool{}

	for _, filename := range sortedKeys(mapping) {
		category := mapping[filename]
		filePath := filepath.Join(r.reviewDir, filename)

		overrides := &domain.Overrides{Category: category}
		if session != nil {
			if doc := findPending(session, filename); doc != nil {
				overrides.DocID = doc.DocID
			}
		}

		result := r.runner.Process(ctx, filePath, ports.ModeLive, overrides)
		if result.Failed() {
			r.logger.Warn("review apply failed", "file", filename, "message", result.Message)
		} else {
			resolved[filename] = true
		}
		results = append(results, result)
	}

	if session != nil && len(resolved) > 0 {
		r.advanceSession(session, resolved)
		if err := r.store.Save(ctx, session); err != nil {
			return results, fmt.Errorf("save session: %w", err)
		}
	}
	return results, nil
}

// advanceSession drops resolved documents from the pending queue and
// records their ids as processed.
func (r *Review) advanceSession(session *domain.ReviewSession, resolved map[string]bool) {
	remaining := session.RemainingDocs[:0]
	for _, doc := range session.RemainingDocs {
		if resolved[doc.OrigName] {
			session.ProcessedDocIDs = append(session.ProcessedDocIDs, doc.DocID)
			continue
		}
		remaining = append(remaining, doc)
	}
	session.RemainingDocs = remaining

	if len(remaining) == 0 {
		session.Active = false
		session.CurrentDoc = nil
		return
	}
	session.CurrentDoc = &remaining[0]
}

func findPending(session *domain.ReviewSession, origName string) *domain.PendingDocument {
	for i := range session.RemainingDocs {
		if session.RemainingDocs[i].OrigName == origName {
			return &session.RemainingDocs[i]
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
