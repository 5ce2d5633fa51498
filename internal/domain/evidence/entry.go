package evidence

import "time"

const (
	EntryKindChunk   = "chunk"
	EntryKindSummary = "summary"
)

// IndexEntry is one row in the vector index. Filterable fields are
// denormalized from the unit and its analysis.
type IndexEntry struct {
	ChunkID  string `json:"chunk_id"`
	RecordID string `json:"record_id"`
	CaseID   string `json:"case_id"`
	Kind     string `json:"kind"`

	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`

	Sender     string     `json:"sender,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	Confidence float64    `json:"confidence"`
	Location   Location   `json:"location"`

	IsFallbackEmbedding bool `json:"is_fallback_embedding"`
}

// SummaryChunkID is the stable id of a record's summary document.
func SummaryChunkID(recordID string) string { return recordID + ":summary" }

// EntryFilter narrows index queries and deletes within one case.
type EntryFilter struct {
	RecordID      string
	Kind          string
	Sender        string
	From          *time.Time
	To            *time.Time
	Tags          []string
	MinConfidence float64
	FallbackOnly  bool
}

// Match is one scored search hit.
type Match struct {
	ChunkID string     `json:"chunk_id"`
	Score   float64    `json:"score"`
	Entry   IndexEntry `json:"entry"`
}
