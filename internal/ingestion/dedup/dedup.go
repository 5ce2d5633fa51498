// Package dedup answers "has this natural key already been completed?" for
// the pipeline. Answers come from the metadata store; positive answers are
// cached in Redis because completion is terminal.
package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	evrepo "github.com/yungbote/evidence-backend/internal/data/repos/evidence"
	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/platform/dbctx"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

const (
	keyPrefix  = "evidence:dedup:"
	DefaultTTL = 7 * 24 * time.Hour
)

// cachedRecord is the slice of a completed record a duplicate result needs.
type cachedRecord struct {
	ID         uuid.UUID `json:"id"`
	CaseID     string    `json:"case_id"`
	EvidenceID *string   `json:"evidence_id,omitempty"`
	FileName   string    `json:"file_name"`
	FileHash   string    `json:"file_hash"`
	OriginRef  string    `json:"origin_ref"`
}

func (c cachedRecord) record() *evidence.Record {
	return &evidence.Record{
		ID:         c.ID,
		CaseID:     c.CaseID,
		EvidenceID: c.EvidenceID,
		FileName:   c.FileName,
		FileHash:   c.FileHash,
		OriginRef:  c.OriginRef,
		Status:     evidence.StatusCompleted,
	}
}

type Index struct {
	repo evrepo.RecordRepo
	rdb  *goredis.Client
	ttl  time.Duration
	log  *logger.Logger
}

// New builds the index. rdb may be nil, in which case every lookup goes to
// the store.
func New(log *logger.Logger, repo evrepo.RecordRepo, rdb *goredis.Client, ttl time.Duration) *Index {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Index{repo: repo, rdb: rdb, ttl: ttl, log: log.With("component", "DuplicateIndex")}
}

func evidenceKey(id string) string       { return keyPrefix + "eid:" + id }
func hashKey(caseID, hash string) string { return keyPrefix + "hash:" + caseID + ":" + hash }
func originKey(origin string) string     { return keyPrefix + "origin:" + origin }
func caseKey(caseID string) string       { return keyPrefix + "case:" + caseID }

func (x *Index) CompletedByEvidenceID(ctx context.Context, evidenceID string) (*evidence.Record, error) {
	if evidenceID == "" {
		return nil, nil
	}
	return x.lookup(ctx, evidenceKey(evidenceID), func(dbc dbctx.Context) (*evidence.Record, error) {
		return x.repo.CheckByEvidenceID(dbc, evidenceID)
	})
}

// CompletedByHash is scoped to one case: identical content in another case
// is a separate piece of evidence.
func (x *Index) CompletedByHash(ctx context.Context, caseID, fileHash string) (*evidence.Record, error) {
	if fileHash == "" {
		return nil, nil
	}
	return x.lookup(ctx, hashKey(caseID, fileHash), func(dbc dbctx.Context) (*evidence.Record, error) {
		return x.repo.CheckByHash(dbc, caseID, fileHash)
	})
}

func (x *Index) CompletedByOrigin(ctx context.Context, originRef string) (*evidence.Record, error) {
	if originRef == "" {
		return nil, nil
	}
	return x.lookup(ctx, originKey(originRef), func(dbc dbctx.Context) (*evidence.Record, error) {
		return x.repo.CheckByOrigin(dbc, originRef)
	})
}

func (x *Index) lookup(ctx context.Context, key string, load func(dbctx.Context) (*evidence.Record, error)) (*evidence.Record, error) {
	if rec, ok := x.cached(ctx, key); ok {
		return rec, nil
	}
	rec, err := load(dbctx.Context{Ctx: ctx})
	if err != nil {
		return nil, err
	}
	if rec.Completed() {
		x.Remember(ctx, rec)
	}
	return rec, nil
}

func (x *Index) cached(ctx context.Context, key string) (*evidence.Record, bool) {
	if x.rdb == nil {
		return nil, false
	}
	raw, err := x.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			x.log.Warn("dedup cache read failed, falling back to store", "key", key, "error", err)
		}
		return nil, false
	}
	var c cachedRecord
	if err := json.Unmarshal(raw, &c); err != nil || c.ID == uuid.Nil {
		x.log.Warn("dedup cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	return c.record(), true
}

func recordKeys(rec *evidence.Record) []string {
	var keys []string
	if rec.EvidenceID != nil && *rec.EvidenceID != "" {
		keys = append(keys, evidenceKey(*rec.EvidenceID))
	}
	if rec.FileHash != "" {
		keys = append(keys, hashKey(rec.CaseID, rec.FileHash))
	}
	if rec.OriginRef != "" {
		keys = append(keys, originKey(rec.OriginRef))
	}
	return keys
}

// Remember caches every natural key of a completed record.
func (x *Index) Remember(ctx context.Context, rec *evidence.Record) {
	if x.rdb == nil || !rec.Completed() {
		return
	}
	payload, err := json.Marshal(cachedRecord{
		ID:         rec.ID,
		CaseID:     rec.CaseID,
		EvidenceID: rec.EvidenceID,
		FileName:   rec.FileName,
		FileHash:   rec.FileHash,
		OriginRef:  rec.OriginRef,
	})
	if err != nil {
		return
	}
	keys := recordKeys(rec)
	pipe := x.rdb.TxPipeline()
	for _, k := range keys {
		pipe.Set(ctx, k, payload, x.ttl)
		pipe.SAdd(ctx, caseKey(rec.CaseID), k)
	}
	pipe.Expire(ctx, caseKey(rec.CaseID), x.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		x.log.Warn("dedup cache write failed", "record_id", rec.ID, "error", err)
	}
}

// RecordDeleted evicts the record's keys so the file can be ingested again.
func (x *Index) RecordDeleted(ctx context.Context, rec *evidence.Record) {
	if x.rdb == nil || rec == nil {
		return
	}
	keys := recordKeys(rec)
	if len(keys) == 0 {
		return
	}
	pipe := x.rdb.TxPipeline()
	pipe.Del(ctx, keys...)
	members := make([]interface{}, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	pipe.SRem(ctx, caseKey(rec.CaseID), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		x.log.Warn("dedup cache evict failed", "record_id", rec.ID, "error", err)
	}
}

// CaseCleared evicts every cached key of the case.
func (x *Index) CaseCleared(ctx context.Context, caseID string) {
	if x.rdb == nil {
		return
	}
	ck := caseKey(caseID)
	keys, err := x.rdb.SMembers(ctx, ck).Result()
	if err != nil {
		x.log.Warn("dedup cache case lookup failed", "case_id", caseID, "error", err)
		return
	}
	if err := x.rdb.Del(ctx, append(keys, ck)...).Err(); err != nil {
		x.log.Warn("dedup cache case evict failed", "case_id", caseID, "error", err)
	}
}
