package evidence

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Record is the durable metadata row for one ingested evidentiary file.
// Natural keys (evidence id, case+hash, origin) are unique so that concurrent
// runners racing on the same item collide in the store instead of duplicating.
type Record struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID string    `gorm:"column:case_id;not null;index;uniqueIndex:idx_evidence_case_hash,priority:1,where:file_hash <> ''" json:"case_id"`

	// Issued by the upload surface before the file lands in storage. Optional.
	EvidenceID *string `gorm:"column:evidence_id;uniqueIndex" json:"evidence_id,omitempty"`

	FileName    string `gorm:"column:file_name;not null" json:"file_name"`
	ContentType string `gorm:"column:content_type" json:"content_type"`
	SizeBytes   int64  `gorm:"column:size_bytes" json:"size_bytes"`
	FileHash    string `gorm:"column:file_hash;index;uniqueIndex:idx_evidence_case_hash,priority:2,where:file_hash <> ''" json:"file_hash"`
	OriginRef   string `gorm:"column:origin_ref;uniqueIndex:idx_evidence_origin,where:origin_ref <> ''" json:"origin_ref"`

	// pending|completed|failed
	Status string `gorm:"column:status;not null;index" json:"status"`

	Summary            string         `gorm:"column:summary;type:text" json:"summary"`
	Tags               datatypes.JSON `gorm:"column:tags" json:"tags"`
	FirstChunkID       string         `gorm:"column:first_chunk_id" json:"first_chunk_id,omitempty"`
	ChunkCount         int            `gorm:"column:chunk_count" json:"chunk_count"`
	FallbackEmbeddings int            `gorm:"column:fallback_embeddings" json:"fallback_embeddings"`
	LastError          string         `gorm:"column:last_error" json:"last_error,omitempty"`

	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (Record) TableName() string { return "evidence_record" }

func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	return nil
}

func (r *Record) Completed() bool { return r != nil && r.Status == StatusCompleted }

// TagList decodes the JSON tag column.
func (r *Record) TagList() []string {
	if r == nil || len(r.Tags) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(r.Tags, &out); err != nil {
		return nil
	}
	return out
}

func TagsJSON(tags []string) datatypes.JSON {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return datatypes.JSON(b)
}

// Clone returns a deep copy, used for pre-update snapshots.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.EvidenceID != nil {
		id := *r.EvidenceID
		cp.EvidenceID = &id
	}
	if r.Tags != nil {
		cp.Tags = append(datatypes.JSON(nil), r.Tags...)
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
