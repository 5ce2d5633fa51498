package app

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
	"github.com/yungbote/evidence-backend/internal/platform/qdrant"
)

func TestResolveVectorIndexConfigErrors(t *testing.T) {
	orig := newQdrantIndex
	t.Cleanup(func() { newQdrantIndex = orig })
	newQdrantIndex = func(*logger.Logger, qdrant.Config) (*qdrant.Index, error) {
		t.Fatalf("index must not be dialed for an invalid config")
		return nil, nil
	}

	cases := []struct {
		name string
		vc   VectorConfig
		want string
	}{
		{"missing url", VectorConfig{VectorDim: 4}, "missing_qdrant_url"},
		{"relative url", VectorConfig{URL: "qdrant:6333", VectorDim: 4}, "invalid_qdrant_url"},
		{"missing dim", VectorConfig{URL: "http://qdrant:6333"}, "missing_qdrant_vector_dim"},
		{"negative dim", VectorConfig{URL: "http://qdrant:6333", VectorDim: -1}, "invalid_qdrant_vector_dim"},
		{"bad distance", VectorConfig{URL: "http://qdrant:6333", VectorDim: 4, Distance: "Hamming"}, "invalid_qdrant_distance"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolveVectorIndex(logger.Nop(), Config{Vector: tc.vc})
			if got := backendErrorCode(err); got != tc.want {
				t.Fatalf("code: want=%q got=%q (err=%v)", tc.want, got, err)
			}
		})
	}
}

func TestResolveVectorIndexConnectFailure(t *testing.T) {
	orig := newQdrantIndex
	t.Cleanup(func() { newQdrantIndex = orig })
	want := errors.New("dial tcp: connection refused")
	newQdrantIndex = func(*logger.Logger, qdrant.Config) (*qdrant.Index, error) { return nil, want }

	_, err := resolveVectorIndex(logger.Nop(), Config{Vector: VectorConfig{URL: "http://qdrant:6333", VectorDim: 4}})
	if backendErrorCode(err) != codeConnectFailed {
		t.Fatalf("want connect_failed, got=%v", err)
	}
	if !errors.Is(err, want) {
		t.Fatalf("cause should be preserved: %v", err)
	}
}

// Runs against a live Qdrant when EVIDENCE_RUN_QDRANT_SMOKE=true.
func TestVectorIndexSmokeAddSearchClear(t *testing.T) {
	if ok, _ := strconv.ParseBool(os.Getenv("EVIDENCE_RUN_QDRANT_SMOKE")); !ok {
		t.Skip("set EVIDENCE_RUN_QDRANT_SMOKE=true to run the qdrant smoke test")
	}
	cfg := defaultConfig()
	applyEnv(&cfg)
	cfg.Vector.VectorDim = 4

	idx, err := resolveVectorIndex(logger.Nop(), cfg)
	if err != nil {
		t.Fatalf("resolveVectorIndex: %v", err)
	}
	ctx := context.Background()
	caseID := "smoke-" + uuid.NewString()[:8]
	t.Cleanup(func() { _, _ = idx.DeleteCollection(ctx, caseID) })

	ts := time.Now().UTC()
	entry := evidence.IndexEntry{
		ChunkID:   uuid.NewString(),
		RecordID:  uuid.NewString(),
		CaseID:    caseID,
		Kind:      evidence.EntryKindChunk,
		Content:   "smoke",
		Embedding: []float32{1, 0, 0, 0},
		Timestamp: &ts,
	}
	if err := idx.AddEntry(ctx, entry); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	matches, err := idx.Search(ctx, caseID, entry.Embedding, 3, map[string]any{"record_id": entry.RecordID})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].ChunkID != entry.ChunkID {
		t.Fatalf("matches: %+v", matches)
	}
}
