// Package ingesttest provides in-memory stand-ins for the stores and
// capabilities the ingestion pipeline and consistency manager depend on,
// with hooks for injecting faults.
package ingesttest

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	evrepo "github.com/yungbote/evidence-backend/internal/data/repos/evidence"
	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/platform/dbctx"
)

var ErrInjected = errors.New("injected failure")

// Records is an in-memory evrepo.RecordRepo enforcing the same natural key
// uniqueness as the Postgres schema.
type Records struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*evidence.Record

	// Fail<Op> make the next calls of that operation fail while non-nil.
	FailSave                error
	FailUpdateConditionally error
	FailUpdate              error
	FailRestore             error
	FailDelete              error
	FailDeleteByCase        error
	FailGet                 error

	// BeforeUpdateConditionally runs with the lock released, letting a test
	// complete the row from "another runner" first.
	BeforeUpdateConditionally func(id uuid.UUID)

	calls map[string]int
}

var _ evrepo.RecordRepo = (*Records)(nil)

func NewRecords() *Records {
	return &Records{rows: map[uuid.UUID]*evidence.Record{}, calls: map[string]int{}}
}

func (r *Records) count(op string) {
	r.calls[op]++
}

// Calls reports how many times op was invoked.
func (r *Records) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *Records) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// All returns copies of every row ordered by creation.
func (r *Records) All() []*evidence.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*evidence.Record, 0, len(r.rows))
	for _, rec := range r.rows {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Put stores rec as-is, bypassing uniqueness checks.
func (r *Records) Put(rec *evidence.Record) *evidence.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := rec.Clone()
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.Status == "" {
		cp.Status = evidence.StatusPending
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.rows[cp.ID] = cp
	return cp.Clone()
}

func (r *Records) Get(_ dbctx.Context, id uuid.UUID) (*evidence.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("Get")
	if r.FailGet != nil {
		return nil, r.FailGet
	}
	rec, ok := r.rows[id]
	if !ok {
		return nil, evrepo.ErrNotFound
	}
	return rec.Clone(), nil
}

func (r *Records) GetByEvidenceID(_ dbctx.Context, evidenceID string) (*evidence.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec := r.find(func(x *evidence.Record) bool {
		return x.EvidenceID != nil && *x.EvidenceID == evidenceID
	}); rec != nil {
		return rec.Clone(), nil
	}
	return nil, evrepo.ErrNotFound
}

func (r *Records) ListByCase(_ dbctx.Context, caseID string) ([]*evidence.Record, error) {
	var out []*evidence.Record
	for _, rec := range r.All() {
		if rec.CaseID == caseID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *Records) find(match func(*evidence.Record) bool) *evidence.Record {
	for _, rec := range r.rows {
		if match(rec) {
			return rec
		}
	}
	return nil
}

func (r *Records) completed(match func(*evidence.Record) bool) (*evidence.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("Check")
	if rec := r.find(func(x *evidence.Record) bool { return x.Completed() && match(x) }); rec != nil {
		return rec.Clone(), nil
	}
	return nil, nil
}

func (r *Records) CheckByEvidenceID(_ dbctx.Context, evidenceID string) (*evidence.Record, error) {
	if evidenceID == "" {
		return nil, nil
	}
	return r.completed(func(x *evidence.Record) bool { return x.EvidenceID != nil && *x.EvidenceID == evidenceID })
}

func (r *Records) CheckByHash(_ dbctx.Context, caseID, fileHash string) (*evidence.Record, error) {
	if fileHash == "" {
		return nil, nil
	}
	return r.completed(func(x *evidence.Record) bool { return x.CaseID == caseID && x.FileHash == fileHash })
}

func (r *Records) CheckByOrigin(_ dbctx.Context, originRef string) (*evidence.Record, error) {
	if originRef == "" {
		return nil, nil
	}
	return r.completed(func(x *evidence.Record) bool { return x.OriginRef == originRef })
}

func (r *Records) conflict(rec *evidence.Record) *evidence.Record {
	return r.find(func(x *evidence.Record) bool {
		switch {
		case rec.EvidenceID != nil && *rec.EvidenceID != "" && x.EvidenceID != nil && *x.EvidenceID == *rec.EvidenceID:
			return true
		case rec.FileHash != "" && x.CaseID == rec.CaseID && x.FileHash == rec.FileHash:
			return true
		case rec.OriginRef != "" && x.OriginRef == rec.OriginRef:
			return true
		}
		return x.ID == rec.ID
	})
}

func (r *Records) SaveIfAbsent(_ dbctx.Context, rec *evidence.Record) (*evidence.Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("SaveIfAbsent")
	if r.FailSave != nil {
		return nil, false, r.FailSave
	}
	if rec == nil {
		return nil, false, errors.New("record required")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if existing := r.conflict(rec); existing != nil {
		return existing.Clone(), false, nil
	}
	if rec.Status == "" {
		rec.Status = evidence.StatusPending
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	r.rows[rec.ID] = rec.Clone()
	return rec.Clone(), true, nil
}

func (r *Records) UpdateConditionally(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	if hook := r.BeforeUpdateConditionally; hook != nil {
		hook(id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("UpdateConditionally")
	if r.FailUpdateConditionally != nil {
		return false, r.FailUpdateConditionally
	}
	rec, ok := r.rows[id]
	if !ok || rec.Completed() || len(updates) == 0 {
		return false, nil
	}
	if updates["status"] == evidence.StatusCompleted {
		if _, set := updates["completed_at"]; !set {
			updates["completed_at"] = time.Now().UTC()
		}
	}
	apply(rec, updates)
	return true, nil
}

func (r *Records) Update(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) (*evidence.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("Update")
	if r.FailUpdate != nil {
		return nil, r.FailUpdate
	}
	rec, ok := r.rows[id]
	if !ok {
		return nil, evrepo.ErrNotFound
	}
	apply(rec, updates)
	return rec.Clone(), nil
}

func (r *Records) Restore(_ dbctx.Context, rec *evidence.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("Restore")
	if r.FailRestore != nil {
		return r.FailRestore
	}
	if rec == nil || rec.ID == uuid.Nil {
		return errors.New("restore: record with id required")
	}
	r.rows[rec.ID] = rec.Clone()
	return nil
}

func (r *Records) Delete(_ dbctx.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("Delete")
	if r.FailDelete != nil {
		return false, r.FailDelete
	}
	_, ok := r.rows[id]
	delete(r.rows, id)
	return ok, nil
}

func (r *Records) DeleteIfNotCompleted(_ dbctx.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("DeleteIfNotCompleted")
	if r.FailDelete != nil {
		return false, r.FailDelete
	}
	rec, ok := r.rows[id]
	if !ok || rec.Completed() {
		return false, nil
	}
	delete(r.rows, id)
	return true, nil
}

func (r *Records) DeleteByCase(_ dbctx.Context, caseID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count("DeleteByCase")
	if r.FailDeleteByCase != nil {
		return 0, r.FailDeleteByCase
	}
	var n int64
	for id, rec := range r.rows {
		if rec.CaseID == caseID {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func apply(rec *evidence.Record, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "status":
			rec.Status, _ = v.(string)
		case "summary":
			rec.Summary, _ = v.(string)
		case "tags":
			switch t := v.(type) {
			case datatypes.JSON:
				rec.Tags = t
			case []string:
				rec.Tags = evidence.TagsJSON(t)
			}
		case "first_chunk_id":
			rec.FirstChunkID, _ = v.(string)
		case "chunk_count":
			rec.ChunkCount, _ = v.(int)
		case "fallback_embeddings":
			rec.FallbackEmbeddings, _ = v.(int)
		case "last_error":
			rec.LastError, _ = v.(string)
		case "file_name":
			rec.FileName, _ = v.(string)
		case "content_type":
			rec.ContentType, _ = v.(string)
		case "file_hash":
			rec.FileHash, _ = v.(string)
		case "origin_ref":
			rec.OriginRef, _ = v.(string)
		case "size_bytes":
			rec.SizeBytes, _ = v.(int64)
		case "completed_at":
			switch t := v.(type) {
			case time.Time:
				rec.CompletedAt = &t
			case *time.Time:
				rec.CompletedAt = t
			}
		}
	}
	rec.UpdatedAt = time.Now().UTC()
}
