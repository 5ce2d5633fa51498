package ingesttest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
)

// Index is an in-memory vector index with one collection per case.
type Index struct {
	mu   sync.Mutex
	cols map[string]map[string]evidence.IndexEntry

	// FailAdd, when set, is consulted before every AddEntry.
	FailAdd            func(entry evidence.IndexEntry) error
	FailDeleteEntries  error
	FailDeleteByFilter error
	FailDeleteColl     error

	adds int
}

func NewIndex() *Index {
	return &Index{cols: map[string]map[string]evidence.IndexEntry{}}
}

// FailAfter makes AddEntry fail once n entries have been written.
func (x *Index) FailAfter(n int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	start := x.adds
	x.FailAdd = func(evidence.IndexEntry) error {
		if x.adds-start >= n {
			return fmt.Errorf("add entry: %w", ErrInjected)
		}
		return nil
	}
}

func (x *Index) AddEntry(_ context.Context, entry evidence.IndexEntry) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.FailAdd != nil {
		if err := x.FailAdd(entry); err != nil {
			return err
		}
	}
	col, ok := x.cols[entry.CaseID]
	if !ok {
		col = map[string]evidence.IndexEntry{}
		x.cols[entry.CaseID] = col
	}
	col[entry.ChunkID] = entry
	x.adds++
	return nil
}

func (x *Index) DeleteEntries(_ context.Context, caseID string, chunkIDs []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.FailDeleteEntries != nil {
		return x.FailDeleteEntries
	}
	for _, id := range chunkIDs {
		delete(x.cols[caseID], id)
	}
	return nil
}

func (x *Index) DeleteByFilter(_ context.Context, caseID string, filter map[string]any) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.FailDeleteByFilter != nil {
		return 0, x.FailDeleteByFilter
	}
	n := 0
	for id, e := range x.cols[caseID] {
		if matches(e, filter) {
			delete(x.cols[caseID], id)
			n++
		}
	}
	return n, nil
}

func (x *Index) DeleteCollection(_ context.Context, caseID string) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.FailDeleteColl != nil {
		return false, x.FailDeleteColl
	}
	_, ok := x.cols[caseID]
	delete(x.cols, caseID)
	return ok, nil
}

// Search ranks by cosine similarity.
func (x *Index) Search(_ context.Context, caseID string, vector []float32, topK int, filter map[string]any) ([]evidence.Match, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []evidence.Match
	for id, e := range x.cols[caseID] {
		if !matches(e, filter) {
			continue
		}
		out = append(out, evidence.Match{ChunkID: id, Score: cosine(vector, e.Embedding), Entry: e})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Entries returns the entries of a case, optionally only one record's.
func (x *Index) Entries(caseID, recordID string) []evidence.IndexEntry {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []evidence.IndexEntry
	for _, e := range x.cols[caseID] {
		if recordID == "" || e.RecordID == recordID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkID < out[j].ChunkID })
	return out
}

func (x *Index) HasCollection(caseID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.cols[caseID]
	return ok
}

// matches supports plain equality on record_id, case_id, kind and sender.
func matches(e evidence.IndexEntry, filter map[string]any) bool {
	for k, v := range filter {
		var got string
		switch k {
		case "record_id":
			got = e.RecordID
		case "case_id":
			got = e.CaseID
		case "kind":
			got = e.Kind
		case "sender":
			got = e.Sender
		default:
			continue
		}
		if s, ok := v.(string); ok && s != got {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
