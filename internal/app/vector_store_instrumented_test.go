package app

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
)

func TestInstrumentIndexPassThrough(t *testing.T) {
	inner := &fakeInstrumentedInner{}
	idx := instrumentIndex(inner)
	if idx == nil {
		t.Fatalf("instrumentIndex: expected non-nil wrapper")
	}
	ctx := context.Background()

	if err := idx.AddEntry(ctx, evidence.IndexEntry{ChunkID: "c1", CaseID: "case"}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := idx.DeleteEntries(ctx, "case", []string{"c1"}); err != nil {
		t.Fatalf("DeleteEntries: %v", err)
	}
	if n, err := idx.DeleteByFilter(ctx, "case", map[string]any{"record_id": "r"}); err != nil || n != 2 {
		t.Fatalf("DeleteByFilter: n=%d err=%v", n, err)
	}
	if _, err := idx.DeleteCollection(ctx, "case"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	if got, err := idx.Search(ctx, "case", []float32{1}, 3, nil); err != nil || len(got) != 1 {
		t.Fatalf("Search: got=%v err=%v", got, err)
	}

	if inner.calls != 5 {
		t.Fatalf("calls: want=5 got=%d", inner.calls)
	}
}

func TestInstrumentIndexErrorPassThrough(t *testing.T) {
	want := errors.New("delete failed")
	idx := instrumentIndex(&fakeInstrumentedInner{deleteErr: want})

	if err := idx.DeleteEntries(context.Background(), "case", []string{"c1"}); !errors.Is(err, want) {
		t.Fatalf("DeleteEntries: expected %v, got=%v", want, err)
	}
}

func TestInstrumentIndexNil(t *testing.T) {
	if instrumentIndex(nil) != nil {
		t.Fatalf("nil inner should stay nil")
	}
}

type fakeInstrumentedInner struct {
	calls     int
	deleteErr error
}

func (f *fakeInstrumentedInner) AddEntry(context.Context, evidence.IndexEntry) error {
	f.calls++
	return nil
}

func (f *fakeInstrumentedInner) DeleteEntries(context.Context, string, []string) error {
	f.calls++
	return f.deleteErr
}

func (f *fakeInstrumentedInner) DeleteByFilter(context.Context, string, map[string]any) (int, error) {
	f.calls++
	return 2, nil
}

func (f *fakeInstrumentedInner) DeleteCollection(context.Context, string) (bool, error) {
	f.calls++
	return true, nil
}

func (f *fakeInstrumentedInner) Search(context.Context, string, []float32, int, map[string]any) ([]evidence.Match, error) {
	f.calls++
	return []evidence.Match{{ChunkID: "c1", Score: 0.9}}, nil
}

func (f *fakeInstrumentedInner) Ready(context.Context) error { return nil }
