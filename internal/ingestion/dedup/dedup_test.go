package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/ingestion/ingesttest"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

func completedRecord(records *ingesttest.Records, caseID string) *evidence.Record {
	eid := "ev-" + caseID
	return records.Put(&evidence.Record{
		CaseID:     caseID,
		EvidenceID: &eid,
		FileName:   "chat.txt",
		FileHash:   "abc123",
		OriginRef:  "gs://b/" + caseID + "/chat.txt",
		Status:     evidence.StatusCompleted,
	})
}

func TestLookupsWithoutCache(t *testing.T) {
	records := ingesttest.NewRecords()
	rec := completedRecord(records, "case1")
	records.Put(&evidence.Record{CaseID: "case1", FileHash: "pending-hash", Status: evidence.StatusPending})
	x := New(logger.Nop(), records, nil, 0)
	ctx := context.Background()

	got, err := x.CompletedByEvidenceID(ctx, "ev-case1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)

	got, err = x.CompletedByHash(ctx, "case1", "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)

	got, err = x.CompletedByHash(ctx, "case2", "abc123")
	require.NoError(t, err)
	assert.Nil(t, got, "hash dedup is per case")

	got, err = x.CompletedByHash(ctx, "case1", "pending-hash")
	require.NoError(t, err)
	assert.Nil(t, got, "pending records never count as duplicates")

	got, err = x.CompletedByOrigin(ctx, "gs://b/case1/chat.txt")
	require.NoError(t, err)
	require.NotNil(t, got)

	got, err = x.CompletedByEvidenceID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheServesAndEvicts(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	records := ingesttest.NewRecords()
	rec := completedRecord(records, "case1")
	x := New(logger.Nop(), records, rdb, time.Hour)
	ctx := context.Background()

	_, err := x.CompletedByHash(ctx, "case1", "abc123")
	require.NoError(t, err)
	assert.True(t, mr.Exists(hashKey("case1", "abc123")))
	assert.True(t, mr.Exists(evidenceKey("ev-case1")))
	assert.True(t, mr.Exists(originKey(rec.OriginRef)))

	checks := records.Calls("Check")
	got, err := x.CompletedByOrigin(ctx, rec.OriginRef)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)
	assert.True(t, got.Completed())
	assert.Equal(t, checks, records.Calls("Check"), "second lookup served from cache")

	x.RecordDeleted(ctx, rec)
	assert.False(t, mr.Exists(hashKey("case1", "abc123")))
	assert.False(t, mr.Exists(originKey(rec.OriginRef)))

	x.Remember(ctx, rec)
	x.CaseCleared(ctx, "case1")
	assert.False(t, mr.Exists(evidenceKey("ev-case1")))
	assert.False(t, mr.Exists(caseKey("case1")))
}

func TestRedisFailureFallsBackToStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	records := ingesttest.NewRecords()
	rec := completedRecord(records, "case1")
	x := New(logger.Nop(), records, rdb, time.Hour)

	mr.Close()

	got, err := x.CompletedByHash(context.Background(), "case1", "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)
}
