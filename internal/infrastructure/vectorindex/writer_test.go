package vectorindex

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pamin/idms/internal/core/domain"
)

func newTestWriter(t *testing.T, timeout time.Duration) (*Writer, string, string) {
	t.Helper()
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "index.json")
	lockPath := filepath.Join(dir, "index.lock")
	w := NewWriter(indexPath, lockPath, "hash-fold (v1)", timeout)
	return w, indexPath, lockPath
}

func TestUpdateInsertsAndUpserts(t *testing.T) {
	w, _, lockPath := newTestWriter(t, time.Second)
	ctx := context.Background()

	if err := w.Update(ctx, "doc-1", "invoice text"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := w.Update(ctx, "doc-2", "certificate text"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := w.Update(ctx, "doc-1", "revised invoice text"); err != nil {
		t.Fatalf("Update() upsert error = %v", err)
	}

	n, err := w.Len()
	if err != nil {
		t.Fatalf("Len() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("index has %d entries, want 2", n)
	}
	ok, err := w.Contains("doc-1")
	if err != nil || !ok {
		t.Fatalf("Contains(doc-1) = %v, %v", ok, err)
	}

	// Lock released on the happy path.
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatalf("lock marker still present after update")
	}
}

func TestUpdateLeavesNoShadowFile(t *testing.T) {
	w, indexPath, _ := newTestWriter(t, time.Second)

	if err := w.Update(context.Background(), "doc-1", "text"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, err := os.Stat(indexPath + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("shadow file left behind")
	}
	if _, err := os.Stat(indexPath); err != nil {
		t.Fatalf("live index missing: %v", err)
	}
}

func TestLockTimeoutIsHardFailure(t *testing.T) {
	w, _, lockPath := newTestWriter(t, 700*time.Millisecond)

	// Simulate another writer that never releases.
	if err := os.WriteFile(lockPath, []byte("424242"), 0o644); err != nil {
		t.Fatalf("plant lock marker: %v", err)
	}

	start := time.Now()
	err := w.Update(context.Background(), "doc-1", "text")
	if err == nil {
		t.Fatalf("expected lock timeout")
	}
	if !domain.IsKind(err, domain.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if time.Since(start) < 700*time.Millisecond {
		t.Fatalf("timed out before the configured bound")
	}

	// No partial mutation.
	if n, _ := w.Len(); n != 0 {
		t.Fatalf("index mutated despite lock timeout")
	}
}

func TestLockClearsMidWait(t *testing.T) {
	w, _, lockPath := newTestWriter(t, 5*time.Second)

	if err := os.WriteFile(lockPath, []byte("424242"), 0o644); err != nil {
		t.Fatalf("plant lock marker: %v", err)
	}
	go func() {
		time.Sleep(800 * time.Millisecond)
		_ = os.Remove(lockPath)
	}()

	if err := w.Update(context.Background(), "doc-1", "text"); err != nil {
		t.Fatalf("Update() after lock cleared: %v", err)
	}
}

func TestEmbedDeterministicAndNormalized(t *testing.T) {
	a := Embed("Invoice number 42 from Amex", DefaultDims)
	b := Embed("Invoice number 42 from Amex", DefaultDims)

	var norm float64
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding not deterministic at dim %d", i)
		}
		norm += a[i] * a[i]
	}
	if math.Abs(norm-1.0) > 1e-9 {
		t.Fatalf("embedding norm = %v, want 1", norm)
	}
}

func TestEmbedEmptyTextIsZeroVector(t *testing.T) {
	v := Embed("", DefaultDims)
	for i, x := range v {
		if x != 0 {
			t.Fatalf("dim %d = %v, want 0", i, x)
		}
	}
}
