package domain

import "time"

// SessionState is the review session lifecycle:
// no_session -> active -> {ok, corrupted, empty}.
type SessionState string

const (
	SessionNone      SessionState = "no_session"
	SessionActive    SessionState = "active"
	SessionOK        SessionState = "ok"
	SessionCorrupted SessionState = "corrupted"
	SessionEmpty     SessionState = "empty"
)

// PendingDocument is one file awaiting human disposition, with the
// hash recorded at session creation time.
type PendingDocument struct {
	DocID    string `json:"doc_id"`
	Hash     string `json:"hash"`
	FilePath string `json:"file_path"`
	OrigName string `json:"orig_name"`
}

// ReviewSession tracks a batch of documents in the holding area.
// Save/reload is a full-state replace, never incremental.
type ReviewSession struct {
	Active          bool              `json:"active"`
	CurrentDoc      *PendingDocument  `json:"current_doc"`
	RemainingDocs   []PendingDocument `json:"remaining_docs"`
	ProcessedDocIDs []string          `json:"processed_doc_ids"`
	StartedAt       time.Time         `json:"started_at"`
}

// SessionCheck is the outcome of validating a session against the
// filesystem. Corruption is a state, not an error.
type SessionCheck struct {
	State   SessionState   `json:"status"`
	Message string         `json:"message,omitempty"`
	Session *ReviewSession `json:"session,omitempty"`
}
