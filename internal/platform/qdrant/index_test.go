package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

func TestIndexAddEntryCreatesCollectionThenUpserts(t *testing.T) {
	var calls []string
	var upsert map[string]any
	col := "/collections/" + newTestIndex(t, nil).CollectionName("case 42")
	s := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodGet && r.URL.Path == col:
			return statusResponse(t, http.StatusNotFound, "Not found: Collection doesn't exist!"), nil
		case r.Method == http.MethodPut && r.URL.Path == col:
			return okResponse(t, true), nil
		case r.Method == http.MethodPut && r.URL.Path == col+"/points":
			if r.URL.RawQuery != "wait=true" {
				t.Fatalf("query: want=%q got=%q", "wait=true", r.URL.RawQuery)
			}
			if err := json.NewDecoder(r.Body).Decode(&upsert); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			return okResponse(t, map[string]any{"status": "acknowledged"}), nil
		}
		t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		return nil, nil
	})

	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	entry := evidence.IndexEntry{
		ChunkID:             "chunk-1",
		RecordID:            "rec-1",
		CaseID:              "case 42",
		Content:             "I will take the kids",
		Embedding:           []float32{0.1, 0.2, 0.3},
		Sender:              "Alice",
		Timestamp:           &ts,
		Tags:                []string{"custody"},
		Confidence:          0.5,
		Location:            evidence.Location{File: "chat.txt", LineStart: 3, LineEnd: 4},
		IsFallbackEmbedding: true,
	}
	if err := s.AddEntry(context.Background(), entry); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if len(calls) != 3 {
		t.Fatalf("calls: want=3 got=%v", calls)
	}

	points := upsert["points"].([]any)
	point := points[0].(map[string]any)
	if point["id"] != s.PointID("case 42", "chunk-1") {
		t.Fatalf("point id: got=%v", point["id"])
	}
	payload := point["payload"].(map[string]any)
	if payload[PayloadChunkID] != "chunk-1" || payload[PayloadRecordID] != "rec-1" {
		t.Fatalf("payload ids: got=%v", payload)
	}
	if payload[PayloadFallback] != true {
		t.Fatalf("fallback flag: want=true got=%v", payload[PayloadFallback])
	}
	if payload[PayloadTimeUnix] != float64(ts.Unix()) {
		t.Fatalf("timestamp_unix: want=%v got=%v", float64(ts.Unix()), payload[PayloadTimeUnix])
	}

	// Second write reuses the ensured collection.
	calls = nil
	entry.ChunkID = "chunk-2"
	if err := s.AddEntry(context.Background(), entry); err != nil {
		t.Fatalf("AddEntry second: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("second write calls: want=1 got=%v", calls)
	}
}

func TestIndexAddEntryDimensionMismatch(t *testing.T) {
	s := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	err := s.AddEntry(context.Background(), evidence.IndexEntry{ChunkID: "c", CaseID: "k", Embedding: []float32{1}})
	var opE *OperationError
	if !errors.As(err, &opE) || opE.Code != OperationErrorValidation {
		t.Fatalf("want validation OperationError got=%v", err)
	}
}

func TestIndexDeleteByFilterCountsThenDeletes(t *testing.T) {
	var deleteBody map[string]any
	col := "/collections/" + newTestIndex(t, nil).CollectionName("case42")
	s := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		switch r.URL.Path {
		case col + "/points/count":
			return okResponse(t, map[string]any{"count": 5}), nil
		case col + "/points/delete":
			_ = json.NewDecoder(r.Body).Decode(&deleteBody)
			return okResponse(t, map[string]any{"status": "completed"}), nil
		}
		t.Fatalf("unexpected path %s", r.URL.Path)
		return nil, nil
	})

	n, err := s.DeleteByFilter(context.Background(), "case42", map[string]any{PayloadRecordID: "rec-1"})
	if err != nil {
		t.Fatalf("DeleteByFilter: %v", err)
	}
	if n != 5 {
		t.Fatalf("count: want=5 got=%d", n)
	}
	filter, ok := deleteBody["filter"].(map[string]any)
	if !ok {
		t.Fatalf("delete body filter missing: %v", deleteBody)
	}
	if cond := findConditionByKey(filter["must"].([]any), PayloadRecordID); cond == nil {
		t.Fatalf("record_id condition missing: %v", filter)
	}
}

func TestIndexMissingCollectionIsNoop(t *testing.T) {
	s := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		return statusResponse(t, http.StatusNotFound, "Not found"), nil
	})
	ctx := context.Background()

	if n, err := s.DeleteByFilter(ctx, "gone", map[string]any{PayloadKind: "chunk"}); err != nil || n != 0 {
		t.Fatalf("DeleteByFilter: want=0,nil got=%d,%v", n, err)
	}
	if dropped, err := s.DeleteCollection(ctx, "gone"); err != nil || dropped {
		t.Fatalf("DeleteCollection: want=false,nil got=%v,%v", dropped, err)
	}
	if err := s.DeleteEntries(ctx, "gone", []string{"a", "a", ""}); err != nil {
		t.Fatalf("DeleteEntries: %v", err)
	}
	matches, err := s.Search(ctx, "gone", []float32{1, 0, 0}, 5, nil)
	if err != nil || len(matches) != 0 {
		t.Fatalf("Search: want empty got=%v err=%v", matches, err)
	}
}

func TestIndexSearchDecodesPayload(t *testing.T) {
	var body map[string]any
	s := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		return okResponse(t, []map[string]any{
			{"id": "p-2", "score": 0.4, "payload": map[string]any{PayloadChunkID: "c2", PayloadContent: "two"}},
			{"id": "p-1", "score": 0.9, "payload": map[string]any{
				PayloadChunkID:   "c1",
				PayloadContent:   "one",
				PayloadSender:    "Bob",
				PayloadTags:      []any{"threat"},
				PayloadTimestamp: "2024-03-01T09:30:00Z",
				PayloadPage:      2,
			}},
		}), nil
	})

	matches, err := s.Search(context.Background(), "case42", []float32{1, 0, 0}, 2, map[string]any{PayloadSender: "Bob"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 || matches[0].ChunkID != "c1" {
		t.Fatalf("order: got=%v", matches)
	}
	top := matches[0].Entry
	if top.Sender != "Bob" || len(top.Tags) != 1 || top.Timestamp == nil || top.Location.Page != 2 {
		t.Fatalf("decoded entry: got=%+v", top)
	}
	if body["filter"] == nil {
		t.Fatalf("filter not sent")
	}
}

func TestCollectionNameSanitizes(t *testing.T) {
	s := newTestIndex(t, nil)
	got := s.CollectionName("acme/case 7")
	if !strings.HasPrefix(got, "evidence_acme_case_7_") || len(got) != len("evidence_acme_case_7_")+12 {
		t.Fatalf("CollectionName: want evidence_acme_case_7_<12 hex> got=%q", got)
	}
	if again := s.CollectionName("  acme/case 7 "); again != got {
		t.Fatalf("CollectionName not stable: %q vs %q", got, again)
	}
}

func TestCollectionNameKeepsCasesApart(t *testing.T) {
	s := newTestIndex(t, nil)
	pairs := [][2]string{
		{"smith.v.jones", "smith_v_jones"},
		{"acme/case 7", "acme case-7"},
		{"a/b", "a_b"},
	}
	for _, p := range pairs {
		if a, b := s.CollectionName(p[0]), s.CollectionName(p[1]); a == b {
			t.Fatalf("CollectionName(%q) == CollectionName(%q) == %q", p[0], p[1], a)
		}
	}
}

func TestDeleteCollectionTargetsOnlyItsCase(t *testing.T) {
	var deleted []string
	s := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		deleted = append(deleted, r.URL.Path)
		return okResponse(t, true), nil
	})
	if _, err := s.DeleteCollection(context.Background(), "smith.v.jones"); err != nil {
		t.Fatalf("DeleteCollection: %v", err)
	}
	other := "/collections/" + s.CollectionName("smith_v_jones")
	if len(deleted) != 1 || deleted[0] == other {
		t.Fatalf("deleted paths: got=%v must not include %q", deleted, other)
	}
}

func TestAddEntryRecreatesDroppedCollection(t *testing.T) {
	var calls []string
	upserts := 0
	var col string
	s := newTestIndex(t, func(r *http.Request) (*http.Response, error) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodGet && r.URL.Path == col:
			return statusResponse(t, http.StatusNotFound, "Not found"), nil
		case r.Method == http.MethodPut && r.URL.Path == col:
			return okResponse(t, true), nil
		case r.Method == http.MethodPut && r.URL.Path == col+"/points":
			upserts++
			if upserts == 1 {
				return statusResponse(t, http.StatusNotFound, "Not found: Collection doesn't exist!"), nil
			}
			return okResponse(t, map[string]any{"status": "acknowledged"}), nil
		}
		t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		return nil, nil
	})
	col = "/collections/" + s.CollectionName("case42")
	// Cached as ensured, but dropped elsewhere since.
	s.ensured.Store(s.CollectionName("case42"), struct{}{})

	entry := evidence.IndexEntry{ChunkID: "c1", CaseID: "case42", Embedding: []float32{1, 0, 0}}
	if err := s.AddEntry(context.Background(), entry); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	want := []string{
		"PUT " + col + "/points",
		"GET " + col,
		"PUT " + col,
		"PUT " + col + "/points",
	}
	if fmt.Sprint(calls) != fmt.Sprint(want) {
		t.Fatalf("calls: want=%v got=%v", want, calls)
	}
}

func TestClassifyHTTPCallErrorTransport(t *testing.T) {
	err := classifyHTTPCallError("search", "transport", fmt.Errorf("boom"))
	var opE *OperationError
	if !errors.As(err, &opE) || opE.Code != OperationErrorTransportFailed {
		t.Fatalf("want transport_failed got=%v", err)
	}
}

func newTestIndex(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *Index {
	t.Helper()
	return &Index{
		log:     logger.Nop(),
		cfg:     Config{CollectionPrefix: "evidence", VectorDim: 3, Distance: "Cosine"},
		baseURL: "http://qdrant.local",
		http:    &http.Client{Transport: roundTripFunc(roundTrip)},
	}
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"result": result, "status": "ok", "time": 0.001})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

func statusResponse(t *testing.T, code int, msg string) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(map[string]any{"status": map[string]any{"error": msg}, "time": 0.0})
	return &http.Response{
		StatusCode: code,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
