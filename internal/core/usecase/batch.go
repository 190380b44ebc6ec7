package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pamin/idms/internal/core/domain"
	"github.com/pamin/idms/internal/core/ports"
)

const defaultBatchWorkers = 4

// ProcessInbox runs the pipeline over every eligible file in the inbox.
// Files are processed independently; one document's failure shows up in
// its own result and never aborts the batch. The returned error covers
// only the inbox scan itself.
func (p *Pipeline) ProcessInbox(ctx context.Context, mode ports.Mode) ([]domain.PipelineResult, error) {
	files, err := listPDFs(p.settings.InboxDir)
	if err != nil {
		return nil, fmt.Errorf("scan inbox: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}

	workers := p.settings.BatchWorkers
	if workers <= 0 {
		workers = defaultBatchWorkers
	}

	results := make([]domain.PipelineResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, file := range files {
		g.Go(func() error {
			results[i] = p.Process(gctx, file, mode, nil)
			return nil
		})
	}
	// Workers never return errors; Wait is for completion only.
	_ = g.Wait()

	for _, r := range results {
		if r.Failed() {
			p.logger.Warn("batch document failed", "status", r.Status, "message", r.Message)
		}
	}
	return results, nil
}

// listPDFs returns the directory's PDF files sorted by name, so batch
// order is stable across runs.
func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
