// Package archive relocates files with dual hash verification. The
// protocol is the integrity-critical path of the whole system: a file
// must never exist at neither location, and the source is deleted only
// after byte-identical confirmation at the destination.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pamin/idms/internal/core/domain"
	"github.com/pamin/idms/internal/hashing"
)

type Archiver struct{}

func New() *Archiver {
	return &Archiver{}
}

// Archive copies source into destDir under destFilename (source
// basename when empty), verifies the copy's hash against expectedHash
// and only then removes the source. A post-copy mismatch deletes the
// copy and leaves the source untouched.
func (a *Archiver) Archive(ctx context.Context, source, destDir, expectedHash, destFilename string) (domain.ArchiveResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ArchiveResult{}, err
	}
	if _, err := os.Stat(source); err != nil {
		return domain.ArchiveResult{}, domain.WrapError(domain.ErrIntegrity, "archive", fmt.Errorf("source not found: %s", source))
	}

	// The file may have changed between classification and archival;
	// trust nothing but the hash.
	preHash, err := hashing.SHA256File(source)
	if err != nil {
		return domain.ArchiveResult{}, domain.WrapError(domain.ErrIntegrity, "archive", err)
	}
	if preHash != expectedHash {
		return domain.ArchiveResult{}, domain.WrapError(domain.ErrIntegrity, "archive",
			fmt.Errorf("pre-move hash mismatch for %s", source))
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("create destination dir: %w", err)
	}

	name := destFilename
	if name == "" {
		name = filepath.Base(source)
	}
	destPath, err := collisionFreePath(destDir, name)
	if err != nil {
		return domain.ArchiveResult{}, err
	}

	if err := copyPreserving(source, destPath); err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("copy to destination: %w", err)
	}

	postHash, err := hashing.SHA256File(destPath)
	if err != nil {
		_ = os.Remove(destPath)
		return domain.ArchiveResult{}, domain.WrapError(domain.ErrIntegrity, "archive", err)
	}
	if postHash != expectedHash {
		// Rollback: remove the bad copy, keep the source.
		_ = os.Remove(destPath)
		return domain.ArchiveResult{}, domain.WrapError(domain.ErrIntegrity, "archive",
			fmt.Errorf("post-move hash mismatch at %s, rollback complete", destPath))
	}

	if err := os.Remove(source); err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("remove source after verification: %w", err)
	}

	return domain.ArchiveResult{Destination: destPath, Hash: postHash}, nil
}

// collisionFreePath appends " (1)", " (2)", ... before the extension
// until the name is free. Existing archives are never overwritten.
func collisionFreePath(destDir, name string) (string, error) {
	path := filepath.Join(destDir, name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path, nil
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for counter := 1; ; counter++ {
		candidate := filepath.Join(destDir, fmt.Sprintf("%s (%d)%s", base, counter, ext))
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if counter > 10000 {
			return "", fmt.Errorf("no free destination name for %s", name)
		}
	}
}

// copyPreserving copies contents and carries over mode and
// modification time, the closest portable equivalent of a
// metadata-preserving copy.
func copyPreserving(source, dest string) error {
	info, err := os.Stat(source)
	if err != nil {
		return err
	}

	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dest)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		_ = os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return err
	}

	return os.Chtimes(dest, info.ModTime(), info.ModTime())
}
