package app

import (
	"context"
	"time"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/observability"
)

// evidenceIndex is what the manager, the search endpoint and the readiness
// probe need from the vector index.
type evidenceIndex interface {
	AddEntry(ctx context.Context, entry evidence.IndexEntry) error
	DeleteEntries(ctx context.Context, caseID string, chunkIDs []string) error
	DeleteByFilter(ctx context.Context, caseID string, filter map[string]any) (int, error)
	DeleteCollection(ctx context.Context, caseID string) (bool, error)
	Search(ctx context.Context, caseID string, vector []float32, topK int, filter map[string]any) ([]evidence.Match, error)
	Ready(ctx context.Context) error
}

type instrumentedIndex struct {
	inner   evidenceIndex
	metrics *observability.Metrics
}

func instrumentIndex(inner evidenceIndex) evidenceIndex {
	if inner == nil {
		return nil
	}
	return &instrumentedIndex{inner: inner, metrics: observability.Current()}
}

func (s *instrumentedIndex) AddEntry(ctx context.Context, entry evidence.IndexEntry) error {
	start := time.Now()
	err := s.inner.AddEntry(ctx, entry)
	s.observe("add_entry", err, time.Since(start))
	return err
}

func (s *instrumentedIndex) DeleteEntries(ctx context.Context, caseID string, chunkIDs []string) error {
	start := time.Now()
	err := s.inner.DeleteEntries(ctx, caseID, chunkIDs)
	s.observe("delete_entries", err, time.Since(start))
	return err
}

func (s *instrumentedIndex) DeleteByFilter(ctx context.Context, caseID string, filter map[string]any) (int, error) {
	start := time.Now()
	n, err := s.inner.DeleteByFilter(ctx, caseID, filter)
	s.observe("delete_by_filter", err, time.Since(start))
	return n, err
}

func (s *instrumentedIndex) DeleteCollection(ctx context.Context, caseID string) (bool, error) {
	start := time.Now()
	ok, err := s.inner.DeleteCollection(ctx, caseID)
	s.observe("delete_collection", err, time.Since(start))
	return ok, err
}

func (s *instrumentedIndex) Search(ctx context.Context, caseID string, vector []float32, topK int, filter map[string]any) ([]evidence.Match, error) {
	start := time.Now()
	out, err := s.inner.Search(ctx, caseID, vector, topK, filter)
	s.observe("search", err, time.Since(start))
	return out, err
}

func (s *instrumentedIndex) Ready(ctx context.Context) error {
	return s.inner.Ready(ctx)
}

func (s *instrumentedIndex) observe(operation string, err error, dur time.Duration) {
	if s == nil || s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveVectorOp(operation, status, dur)
}
