// Package audit appends pipeline events to a tamper-evident JSONL log.
// Every entry records the hash of the previous entry, so truncation or
// in-place edits break the chain and are caught by VerifyChain.
package audit

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pamin/idms/internal/core/domain"
)

// Genesis anchors the first entry of the chain.
const Genesis = "GENESIS"

// chainedEntry is the on-disk line: the event in canonical field order
// followed by its own hash.
type chainedEntry struct {
	domain.AuditEvent
	EntryHash string `json:"entry_hash"`
}

// Trail implements ports.AuditTrail on a single append-only file.
type Trail struct {
	path string

	mu       sync.Mutex
	lastHash string
	loaded   bool
}

func NewTrail(path string) *Trail {
	return &Trail{path: path}
}

// Append chains event onto the log. The caller's PreviousEntryHash is
// ignored; the trail owns the chain.
func (t *Trail) Append(_ context.Context, event domain.AuditEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.loaded {
		last, err := t.tailHash()
		if err != nil {
			return err
		}
		t.lastHash = last
		t.loaded = true
	}

	event.PreviousEntryHash = t.lastHash
	if event.Errors == nil {
		event.Errors = []string{}
	}

	canonical, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	entryHash := hashHex(canonical)

	line, err := json.Marshal(chainedEntry{AuditEvent: event, EntryHash: entryHash})
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}

	t.lastHash = entryHash
	return nil
}

// VerifyChain recomputes every entry hash and checks the links. It
// returns the number of verified entries, or a
// domain.ErrIntegrity-kinded error naming the first broken line.
func (t *Trail) VerifyChain(_ context.Context) (int, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	expected := Genesis
	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry chainedEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return count, domain.WrapError(domain.ErrIntegrity, "audit.VerifyChain",
				fmt.Errorf("line %d: malformed entry: %w", lineNo, err))
		}
		if entry.PreviousEntryHash != expected {
			return count, domain.WrapError(domain.ErrIntegrity, "audit.VerifyChain",
				fmt.Errorf("line %d: chain broken", lineNo))
		}

		canonical, err := json.Marshal(entry.AuditEvent)
		if err != nil {
			return count, fmt.Errorf("line %d: re-marshal: %w", lineNo, err)
		}
		if hashHex(canonical) != entry.EntryHash {
			return count, domain.WrapError(domain.ErrIntegrity, "audit.VerifyChain",
				fmt.Errorf("line %d: entry hash mismatch", lineNo))
		}

		expected = entry.EntryHash
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("scan audit log: %w", err)
	}
	return count, nil
}

// tailHash returns the entry_hash of the last line, or Genesis for a
// missing or empty log.
func (t *Trail) tailHash() (string, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Genesis, nil
		}
		return "", fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	last := Genesis
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry chainedEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return "", domain.WrapError(domain.ErrIntegrity, "audit.tail",
				fmt.Errorf("malformed trailing entry: %w", err))
		}
		last = entry.EntryHash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan audit log: %w", err)
	}
	return last, nil
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
