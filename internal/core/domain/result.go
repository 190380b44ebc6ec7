package domain

// ResultStatus is the terminal state of one pipeline run.
type ResultStatus string

const (
	ResultOK      ResultStatus = "success"
	ResultPreview ResultStatus = "dry-run-preview"
	ResultReview  ResultStatus = "review"
	ResultAborted ResultStatus = "aborted"
	ResultError   ResultStatus = "error"
)

// SideEffect describes one mutation a live run would perform. Dry runs
// enumerate these instead of executing them.
type SideEffect struct {
	Step        string `json:"step"`
	Action      string `json:"action"`
	Destination string `json:"destination,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// ArchiveResult is the archiver's confirmation after dual-hash
// verification.
type ArchiveResult struct {
	Destination string `json:"destination"`
	Hash        string `json:"hash"`
}

// PipelineResult aggregates one run of the pipeline. Step-level
// failures surface here as structured status+message, never as panics.
// Warnings carry non-fatal diagnostics from best-effort sinks.
type PipelineResult struct {
	Status           ResultStatus    `json:"status"`
	Message          string          `json:"message,omitempty"`
	DocID            string          `json:"doc_id,omitempty"`
	Hash             string          `json:"hash,omitempty"`
	Routing          Routing         `json:"routing_decision,omitempty"`
	Confidence       float64         `json:"confidence"`
	EntityConfidence float64         `json:"entity_confidence"`
	Telemetry        Extraction      `json:"telemetry"`
	Metadata         *MetadataRecord `json:"metadata,omitempty"`
	Destination      string          `json:"destination,omitempty"`
	SideEffects      []SideEffect    `json:"proposed_side_effects,omitempty"`
	Warnings         []string        `json:"warnings,omitempty"`
}

// Failed reports whether the run stopped before finalization.
func (r PipelineResult) Failed() bool {
	return r.Status == ResultAborted || r.Status == ResultError
}
