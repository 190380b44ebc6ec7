package domain

import "time"

// AuditEvent is one entry in the hash-chained audit trail. Field order
// is part of the canonical encoding and must not change.
type AuditEvent struct {
	ExecutionID       string    `json:"execution_id"`
	EventType         string    `json:"event_type"`
	DocID             string    `json:"doc_id"`
	Timestamp         time.Time `json:"timestamp"`
	File              string    `json:"file"`
	FileHash          string    `json:"file_hash"`
	Outcome           string    `json:"outcome"`
	Severity          string    `json:"severity"`
	Errors            []string  `json:"errors"`
	PreviousEntryHash string    `json:"previous_entry_hash"`
}
