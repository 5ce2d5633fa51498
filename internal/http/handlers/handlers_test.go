package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/evidence-backend/internal/consistency"
	evrepo "github.com/yungbote/evidence-backend/internal/data/repos/evidence"
	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/ingestion/pipeline"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

type fakeTxLog struct {
	txs       []consistency.Transaction
	lastLimit int
}

func (f *fakeTxLog) Transactions(limit int) []consistency.Transaction {
	f.lastLimit = limit
	if limit < len(f.txs) {
		return f.txs[:limit]
	}
	return f.txs
}

func (f *fakeTxLog) Transaction(id string) (consistency.Transaction, bool) {
	for _, tx := range f.txs {
		if tx.ID == id {
			return tx, true
		}
	}
	return consistency.Transaction{}, false
}

type fakeCaseStore struct {
	clearCase       string
	clearCollection bool
	clearErr        error
	deleteErr       error
	reindexErr      error
}

func (f *fakeCaseStore) ClearCaseData(_ context.Context, caseID string, deleteCollection bool) (consistency.ClearResult, error) {
	f.clearCase, f.clearCollection = caseID, deleteCollection
	return consistency.ClearResult{CaseID: caseID, MetadataDeleted: 2}, f.clearErr
}

func (f *fakeCaseStore) DeleteWithIndex(_ context.Context, caseID string, recordID uuid.UUID) (consistency.DeleteResult, error) {
	if f.deleteErr != nil {
		return consistency.DeleteResult{}, f.deleteErr
	}
	return consistency.DeleteResult{CaseID: caseID, RecordID: recordID.String(), MetadataDeleted: true, IndexDeleted: true}, nil
}

func (f *fakeCaseStore) Reindex(_ context.Context, recordID uuid.UUID) (*evidence.Record, error) {
	if f.reindexErr != nil {
		return nil, f.reindexErr
	}
	return &evidence.Record{ID: recordID, CaseID: "case-1"}, nil
}

type fakeRunner struct {
	got []evidence.Reference
}

func (f *fakeRunner) Run(_ context.Context, refs []evidence.Reference) []pipeline.Result {
	f.got = refs
	out := make([]pipeline.Result, len(refs))
	for i, ref := range refs {
		out[i] = pipeline.Result{Status: pipeline.StatusCompleted, Reference: ref.String()}
	}
	out[len(out)-1].Status = pipeline.StatusSkipped
	return out
}

type fakeSearcher struct {
	caseID string
	topK   int
	filter map[string]any
	err    error
}

func (f *fakeSearcher) Search(_ context.Context, caseID string, _ []float32, topK int, filter map[string]any) ([]evidence.Match, error) {
	f.caseID, f.topK, f.filter = caseID, topK, filter
	if f.err != nil {
		return nil, f.err
	}
	return []evidence.Match{{ChunkID: "c1", Score: 0.9}}, nil
}

type fixedEmbedder struct{ fallback bool }

func (e fixedEmbedder) Embed(context.Context, string) ([]float32, bool) {
	return []float32{1, 0, 0, 0}, e.fallback
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func serve(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestTransactionListLimit(t *testing.T) {
	log := &fakeTxLog{txs: []consistency.Transaction{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	r := newEngine()
	h := NewTransactionHandler(log)
	r.GET("/v1/transactions", h.List)
	r.GET("/v1/transactions/:tx_id", h.Get)

	cases := []struct {
		target    string
		wantCode  int
		wantLimit int
		wantCount float64
	}{
		{"/v1/transactions", http.StatusOK, defaultTxLimit, 3},
		{"/v1/transactions?limit=2", http.StatusOK, 2, 2},
		{"/v1/transactions?limit=99999", http.StatusOK, maxTxLimit, 3},
		{"/v1/transactions?limit=0", http.StatusBadRequest, 0, 0},
		{"/v1/transactions?limit=abc", http.StatusBadRequest, 0, 0},
	}
	for _, tc := range cases {
		log.lastLimit = 0
		rec := serve(r, http.MethodGet, tc.target, "")
		if rec.Code != tc.wantCode {
			t.Fatalf("%s: want=%d got=%d", tc.target, tc.wantCode, rec.Code)
		}
		if tc.wantCode != http.StatusOK {
			continue
		}
		if log.lastLimit != tc.wantLimit {
			t.Fatalf("%s limit: want=%d got=%d", tc.target, tc.wantLimit, log.lastLimit)
		}
		if got := decode(t, rec)["count"]; got != tc.wantCount {
			t.Fatalf("%s count: want=%v got=%v", tc.target, tc.wantCount, got)
		}
	}

	if rec := serve(r, http.MethodGet, "/v1/transactions/b", ""); rec.Code != http.StatusOK {
		t.Fatalf("get known tx: want=200 got=%d", rec.Code)
	}
	if rec := serve(r, http.MethodGet, "/v1/transactions/zzz", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get unknown tx: want=404 got=%d", rec.Code)
	}
}

func TestClearCaseKeepCollection(t *testing.T) {
	store := &fakeCaseStore{}
	r := newEngine()
	h := NewCaseHandler(logger.Nop(), store)
	r.DELETE("/v1/cases/:case_id", h.ClearCase)

	if rec := serve(r, http.MethodDelete, "/v1/cases/case-9", ""); rec.Code != http.StatusOK {
		t.Fatalf("clear: want=200 got=%d", rec.Code)
	}
	if store.clearCase != "case-9" || !store.clearCollection {
		t.Fatalf("clear args: case=%q collection=%v", store.clearCase, store.clearCollection)
	}

	serve(r, http.MethodDelete, "/v1/cases/case-9?keep_collection=true", "")
	if store.clearCollection {
		t.Fatalf("keep_collection=true should not delete the collection")
	}

	store.clearErr = errors.New("index unavailable")
	rec := serve(r, http.MethodDelete, "/v1/cases/case-9", "")
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("partial clear: want=%d got=%d", http.StatusMultiStatus, rec.Code)
	}
	if _, ok := decode(t, rec)["result"]; !ok {
		t.Fatalf("partial clear should still carry the result")
	}
}

func TestDeleteRecordStatuses(t *testing.T) {
	id := uuid.New()
	cases := []struct {
		name     string
		target   string
		err      error
		wantCode int
	}{
		{"ok", "/v1/cases/case-1/records/" + id.String(), nil, http.StatusOK},
		{"bad id", "/v1/cases/case-1/records/nope", nil, http.StatusBadRequest},
		{"missing", "/v1/cases/case-1/records/" + id.String(), &consistency.Error{Operation: consistency.OpDeleteWithIndex, Cause: evrepo.ErrNotFound}, http.StatusNotFound},
		{"other case", "/v1/cases/case-2/records/" + id.String(), &consistency.Error{Operation: consistency.OpDeleteWithIndex, Cause: consistency.ErrCaseMismatch}, http.StatusNotFound},
		{"store down", "/v1/cases/case-1/records/" + id.String(), &consistency.Error{Operation: consistency.OpDeleteWithIndex, Cause: errors.New("db down")}, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newEngine()
			h := NewCaseHandler(logger.Nop(), &fakeCaseStore{deleteErr: tc.err})
			r.DELETE("/v1/cases/:case_id/records/:record_id", h.DeleteRecord)
			if rec := serve(r, http.MethodDelete, tc.target, ""); rec.Code != tc.wantCode {
				t.Fatalf("want=%d got=%d body=%s", tc.wantCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestReindex(t *testing.T) {
	r := newEngine()
	store := &fakeCaseStore{}
	h := NewCaseHandler(logger.Nop(), store)
	r.POST("/v1/records/:record_id/reindex", h.Reindex)

	if rec := serve(r, http.MethodPost, "/v1/records/"+uuid.NewString()+"/reindex", ""); rec.Code != http.StatusOK {
		t.Fatalf("reindex: want=200 got=%d", rec.Code)
	}
	store.reindexErr = &consistency.Error{Operation: consistency.OpReindex, Cause: evrepo.ErrNotFound}
	if rec := serve(r, http.MethodPost, "/v1/records/"+uuid.NewString()+"/reindex", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("reindex unknown: want=404 got=%d", rec.Code)
	}
}

func TestIngestValidatesAndRuns(t *testing.T) {
	runner := &fakeRunner{}
	r := newEngine()
	r.POST("/v1/ingest", NewIngestHandler(runner).Ingest)

	bad := []string{
		`not json`,
		`{"references":[]}`,
		`{"references":[{"bucket":"b"}]}`,
	}
	for _, body := range bad {
		if rec := serve(r, http.MethodPost, "/v1/ingest", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: want=400 got=%d", body, rec.Code)
		}
	}
	if runner.got != nil {
		t.Fatalf("runner should not run for invalid requests")
	}

	rec := serve(r, http.MethodPost, "/v1/ingest",
		`{"references":[{"bucket":"ev","key":"cases/c1/a.txt"},{"bucket":"ev","key":"cases/c1/b.txt"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if len(runner.got) != 2 || runner.got[1].Key != "cases/c1/b.txt" {
		t.Fatalf("runner refs: %+v", runner.got)
	}
	body := decode(t, rec)
	tally := body["tally"].(map[string]any)
	if tally["completed"] != float64(1) || tally["skipped"] != float64(1) {
		t.Fatalf("tally: %+v", tally)
	}
	if got := len(body["results"].([]any)); got != 2 {
		t.Fatalf("results: want=2 got=%d", got)
	}
}

func TestSearchBuildsFilter(t *testing.T) {
	idx := &fakeSearcher{}
	r := newEngine()
	r.GET("/v1/cases/:case_id/search", NewSearchHandler(idx, fixedEmbedder{}).Search)

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := serve(r, http.MethodGet,
		"/v1/cases/case-1/search?q=pickup&top_k=5&sender=Alex&tag=threat&tag=custody&from="+from.Format(time.RFC3339)+"&min_confidence=0.5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("search: want=200 got=%d body=%s", rec.Code, rec.Body.String())
	}
	if idx.caseID != "case-1" || idx.topK != 5 {
		t.Fatalf("search args: case=%q topK=%d", idx.caseID, idx.topK)
	}
	if idx.filter["sender"] != "Alex" {
		t.Fatalf("sender filter missing: %+v", idx.filter)
	}
	if _, ok := idx.filter["timestamp_unix"]; !ok {
		t.Fatalf("time range filter missing: %+v", idx.filter)
	}
	if decode(t, rec)["fallback_query"] != false {
		t.Fatalf("fallback_query should be false")
	}

	for _, target := range []string{
		"/v1/cases/case-1/search",
		"/v1/cases/case-1/search?q=x&top_k=-1",
		"/v1/cases/case-1/search?q=x&from=yesterday",
		"/v1/cases/case-1/search?q=x&min_confidence=2",
	} {
		if rec := serve(r, http.MethodGet, target, ""); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: want=400 got=%d", target, rec.Code)
		}
	}
}

func TestReadyReportsFailingCheck(t *testing.T) {
	r := newEngine()
	h := NewHealthHandler(map[string]Check{
		"metadata": func(context.Context) error { return nil },
		"vector":   func(context.Context) error { return errors.New("connection refused") },
	})
	r.GET("/healthz", h.HealthCheck)
	r.GET("/readyz", h.Ready)

	if rec := serve(r, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: code=%d body=%q", rec.Code, rec.Body.String())
	}
	rec := serve(r, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz: want=503 got=%d", rec.Code)
	}
	checks := decode(t, rec)["checks"].(map[string]any)
	if checks["metadata"] != "ok" || checks["vector"] != "connection refused" {
		t.Fatalf("checks: %+v", checks)
	}
}
