package evidence

import "time"

// Location points back into the origin file.
type Location struct {
	File      string   `json:"file"`
	LineStart int      `json:"line_start,omitempty"`
	LineEnd   int      `json:"line_end,omitempty"`
	Page      int      `json:"page,omitempty"`
	StartSec  *float64 `json:"start_sec,omitempty"`
	EndSec    *float64 `json:"end_sec,omitempty"`
}

// ParsedUnit is one normalized piece of content produced by a parser.
// Timestamp is nil when the source format carries no reliable time.
type ParsedUnit struct {
	Content   string         `json:"content"`
	Sender    string         `json:"sender,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	Location  Location       `json:"location"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func PtrFloat(v float64) *float64 { return &v }
