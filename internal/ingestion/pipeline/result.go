package pipeline

import (
	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/ingestion/tracker"
	"github.com/yungbote/evidence-backend/internal/platform/errkind"
)

// Status is the terminal outcome of one item.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusRejected  Status = "rejected"
	StatusError     Status = "error"
)

const (
	ReasonUnsupportedType     = "unsupported_file_type"
	ReasonMissingCaseID       = "missing_case_id"
	ReasonNoContent           = "no_extractable_content"
	ReasonDuplicateEvidenceID = "already_processed_evidence_id"
	ReasonDuplicateHash       = "already_processed_hash"
	ReasonDuplicateOrigin     = "already_processed_origin"
	ReasonConcurrentProcessed = "concurrent_processed"
	ReasonConcurrentCreated   = "concurrent_created"
	ReasonCancelled           = "cancelled"
)

// Result is the per-item contract returned to batch drivers and the API.
// Which fields are set depends on Status.
type Result struct {
	Status    Status `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Reference string `json:"reference"`
	JobID     string `json:"job_id"`

	CaseID     string `json:"case_id,omitempty"`
	RecordID   string `json:"record_id,omitempty"`
	EvidenceID string `json:"evidence_id,omitempty"`
	FileHash   string `json:"file_hash,omitempty"`

	ChunksIndexed      int      `json:"chunks_indexed,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	Summary            string   `json:"summary,omitempty"`
	FallbackEmbeddings int      `json:"fallback_embeddings,omitempty"`

	SizeBytes  int64 `json:"size_bytes,omitempty"`
	LimitBytes int64 `json:"limit_bytes,omitempty"`

	ErrorKind errkind.Kind `json:"error_kind,omitempty"`
	Error     string       `json:"error,omitempty"`

	Job *tracker.Summary `json:"job,omitempty"`
}

func (r Result) OK() bool {
	return r.Status == StatusCompleted || r.Status == StatusSkipped
}

// ErrorResult is the result for an item that never reached the pipeline,
// e.g. a batch driver's timeout or recovered panic.
func ErrorResult(ref evidence.Reference, err error) Result {
	return Result{
		Status:    StatusError,
		Reference: ref.String(),
		ErrorKind: errkind.Classify(err),
		Error:     err.Error(),
	}
}
