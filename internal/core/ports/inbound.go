package ports

import (
	"context"

	"github.com/pamin/idms/internal/core/domain"
)

// Mode selects between a simulated and a live pipeline run.
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModeLive   Mode = "live"
)

// PipelineRunner is the inbound contract for single-file and batch
// processing.
type PipelineRunner interface {
	Process(ctx context.Context, filePath string, mode Mode, overrides *domain.Overrides) domain.PipelineResult
	ProcessInbox(ctx context.Context, mode Mode) ([]domain.PipelineResult, error)
}

// ReviewManager drives the human-review session state machine.
type ReviewManager interface {
	Initialize(ctx context.Context) (domain.SessionCheck, error)
	Validate(ctx context.Context) (domain.SessionCheck, error)
	Apply(ctx context.Context, mapping map[string]string) ([]domain.PipelineResult, error)
}

// IndexRebuilder re-derives the vector index from archived documents.
type IndexRebuilder interface {
	Rebuild(ctx context.Context) (int, error)
}
