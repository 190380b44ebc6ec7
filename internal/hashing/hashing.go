// Package hashing provides the content-addressed identity check used
// across the pipeline: a file is what its SHA-256 says it is.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// SHA256File streams the file through SHA-256 and returns the
// lowercase hex digest.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for hashing: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SHA256 adapts SHA256File to the ports.Hasher contract.
type SHA256 struct{}

func (SHA256) HashFile(path string) (string, error) {
	return SHA256File(path)
}
