// Package vectorindex maintains the durable local vector index. All
// mutations happen under a marker-file single-writer lock and land via
// an atomic shadow-file swap, so readers never observe a partially
// written index.
package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type entry struct {
	DocID     string    `json:"doc_id"`
	Vector    []float64 `json:"vector"`
	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updated_at"`
}

type indexFile struct {
	Model   string  `json:"model"`
	Entries []entry `json:"entries"`
}

type Writer struct {
	indexPath    string
	lock         *markerLock
	model        string
	dims         int
	now          func() time.Time
	lockObserver func(time.Duration)
}

type Option func(*Writer)

// WithClock fixes the timestamp source for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

func WithDims(dims int) Option {
	return func(w *Writer) { w.dims = dims }
}

// WithLockObserver reports how long each Update waited for the writer
// lock, successful or not.
func WithLockObserver(observe func(time.Duration)) Option {
	return func(w *Writer) { w.lockObserver = observe }
}

func NewWriter(indexPath, lockPath, model string, lockTimeout time.Duration, opts ...Option) *Writer {
	w := &Writer{
		indexPath: indexPath,
		lock:      newMarkerLock(lockPath, lockTimeout),
		model:     model,
		dims:      DefaultDims,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Update upserts the document's embedding. Lock timeout is a hard
// failure; there is no partial mutation on any path.
func (w *Writer) Update(ctx context.Context, docID, content string) error {
	waitStart := time.Now()
	release, err := w.lock.acquire(ctx)
	if w.lockObserver != nil {
		w.lockObserver(time.Since(waitStart))
	}
	if err != nil {
		return err
	}
	defer release()

	idx, err := w.load()
	if err != nil {
		return err
	}

	e := entry{
		DocID:     docID,
		Vector:    Embed(content, w.dims),
		Model:     w.model,
		UpdatedAt: w.now().UTC(),
	}

	replaced := false
	for i := range idx.Entries {
		if idx.Entries[i].DocID == docID {
			idx.Entries[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		idx.Entries = append(idx.Entries, e)
	}
	idx.Model = w.model

	return w.swapIn(idx)
}

// Contains reports whether a doc_id is present, reading without the
// writer lock; the atomic swap keeps reads consistent.
func (w *Writer) Contains(docID string) (bool, error) {
	idx, err := w.load()
	if err != nil {
		return false, err
	}
	for _, e := range idx.Entries {
		if e.DocID == docID {
			return true, nil
		}
	}
	return false, nil
}

func (w *Writer) Len() (int, error) {
	idx, err := w.load()
	if err != nil {
		return 0, err
	}
	return len(idx.Entries), nil
}

func (w *Writer) load() (indexFile, error) {
	raw, err := os.ReadFile(w.indexPath)
	if os.IsNotExist(err) {
		return indexFile{Model: w.model}, nil
	}
	if err != nil {
		return indexFile{}, fmt.Errorf("read index: %w", err)
	}

	var idx indexFile
	if err := json.Unmarshal(raw, &idx); err != nil {
		return indexFile{}, fmt.Errorf("decode index: %w", err)
	}
	return idx, nil
}

// swapIn writes the updated index to a shadow path and renames it over
// the live file in one step.
func (w *Writer) swapIn(idx indexFile) error {
	if err := os.MkdirAll(filepath.Dir(w.indexPath), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	raw, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	shadow := w.indexPath + ".tmp"
	if err := os.WriteFile(shadow, raw, 0o644); err != nil {
		return fmt.Errorf("write shadow index: %w", err)
	}
	if err := os.Rename(shadow, w.indexPath); err != nil {
		_ = os.Remove(shadow)
		return fmt.Errorf("swap index: %w", err)
	}
	return nil
}
