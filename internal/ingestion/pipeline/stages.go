package pipeline

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/evidence-backend/internal/consistency"
	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/ingestion/analysis"
	"github.com/yungbote/evidence-backend/internal/ingestion/hasher"
	"github.com/yungbote/evidence-backend/internal/ingestion/parser"
	"github.com/yungbote/evidence-backend/internal/ingestion/tracker"
	"github.com/yungbote/evidence-backend/internal/observability"
	"github.com/yungbote/evidence-backend/internal/platform/errkind"
)

// run is the state of one Process call. It is never shared.
type run struct {
	o   *Orchestrator
	ref evidence.Reference
	tr  *tracker.Tracker

	parser    parser.Parser
	tmpDir    string
	localPath string
	size      int64

	caseID     string
	evidenceID string
	fileHash   string

	units      []evidence.ParsedUnit
	analyses   []evidence.AnalysisResult
	categories []string
	persons    []evidence.Person
	rels       []evidence.Relationship
	fallbacks  int

	tx       *consistency.IngestTx
	chunkIDs []string
	summary  string
	record   *evidence.Record
}

func (r *run) result(status Status, reason string) Result {
	return Result{
		Status:     status,
		Reason:     reason,
		Reference:  r.ref.String(),
		CaseID:     r.caseID,
		EvidenceID: r.evidenceID,
		FileHash:   r.fileHash,
		SizeBytes:  r.size,
	}
}

func (r *run) stop(status Status, reason string) *Result {
	res := r.result(status, reason)
	return &res
}

func (r *run) route(context.Context) (*Result, error) {
	ext := r.ref.Ext()
	p, ok := r.o.deps.Parsers.Route(ext)
	if !ok {
		r.tr.Info("no parser for file type", "ext", ext)
		return r.stop(StatusSkipped, ReasonUnsupportedType), nil
	}
	r.parser = p
	r.tr.Set("parser", p.Name())
	return nil, nil
}

func (r *run) download(ctx context.Context) (*Result, error) {
	dir, err := os.MkdirTemp(r.o.opts.TempDir, "evidence_*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	r.tmpDir = dir
	ext := filepath.Ext(r.ref.FileName())
	if ext == "" {
		ext = ".bin"
	}
	r.localPath = filepath.Join(dir, "original"+strings.ToLower(ext))

	n, err := r.o.deps.Storage.Download(ctx, r.ref.Bucket, r.ref.Key, r.localPath)
	if err != nil {
		return nil, errkind.Wrap(errkind.Infrastructure, "download "+r.ref.String(), err)
	}
	r.size = n
	if fi, err := os.Stat(r.localPath); err == nil {
		r.size = fi.Size()
	}
	r.tr.Set("size_bytes", r.size)
	return nil, nil
}

func (r *run) validate(context.Context) (*Result, error) {
	v := r.o.deps.Guard.Check(r.parser.Name(), r.size)
	if v == nil {
		return nil, nil
	}
	r.tr.Warn("file rejected by cost guard", "reason", v.Reason, "size_bytes", v.SizeBytes, "limit_bytes", v.LimitBytes)
	res := r.stop(StatusRejected, v.Reason)
	res.LimitBytes = v.LimitBytes
	return res, nil
}

func (r *run) identify(context.Context) (*Result, error) {
	r.caseID = strings.TrimSpace(r.o.deps.Cases.CaseID(r.ref.Key, r.ref.Bucket))
	r.evidenceID = strings.TrimSpace(r.o.deps.Cases.EvidenceID(r.ref.Key))
	if r.caseID == "" {
		r.tr.Warn("no case id in reference")
		return r.stop(StatusRejected, ReasonMissingCaseID), nil
	}
	r.tr.SetCaseID(r.caseID)
	if r.evidenceID != "" {
		r.tr.Set("evidence_id", r.evidenceID)
	}
	return nil, nil
}

func (r *run) hash(context.Context) (*Result, error) {
	h, err := hasher.File(r.localPath)
	if err != nil {
		return nil, errkind.Wrap(errkind.Infrastructure, "hash", err)
	}
	r.fileHash = h
	r.tr.Set("file_hash", h)
	return nil, nil
}

// dedup checks the natural keys strongest first. Only completed records
// short-circuit; a pending one is taken over at claim time.
func (r *run) dedup(ctx context.Context) (*Result, error) {
	d := r.o.deps.Dedup
	checks := []struct {
		reason string
		find   func() (*evidence.Record, error)
	}{
		{ReasonDuplicateEvidenceID, func() (*evidence.Record, error) { return d.CompletedByEvidenceID(ctx, r.evidenceID) }},
		{ReasonDuplicateHash, func() (*evidence.Record, error) { return d.CompletedByHash(ctx, r.caseID, r.fileHash) }},
		{ReasonDuplicateOrigin, func() (*evidence.Record, error) { return d.CompletedByOrigin(ctx, r.ref.Origin()) }},
	}
	for _, c := range checks {
		rec, err := c.find()
		if err != nil {
			return nil, errkind.Wrap(errkind.Infrastructure, "dedup", err)
		}
		if rec.Completed() {
			r.tr.Info("already processed", "reason", c.reason, "record_id", rec.ID)
			res := r.stop(StatusSkipped, c.reason)
			res.RecordID = rec.ID.String()
			return res, nil
		}
	}
	return nil, nil
}

func (r *run) parse(ctx context.Context) (*Result, error) {
	src := parser.Source{
		Bucket:      r.ref.Bucket,
		Key:         r.ref.Key,
		FileName:    r.ref.FileName(),
		ContentType: contentType(r.ref),
		SizeBytes:   r.size,
	}
	units, err := r.parser.Parse(ctx, r.localPath, src)
	if errors.Is(err, parser.ErrNoContent) || (err == nil && len(units) == 0) {
		r.tr.Warn("parser produced no content", "parser", r.parser.Name())
		return r.stop(StatusRejected, ReasonNoContent), nil
	}
	if err != nil {
		return nil, errkind.Wrap(errkind.Dependency, "parse "+r.parser.Name(), err)
	}
	r.units = units
	r.tr.Set("units", len(units))
	return nil, nil
}

// analyze tags every unit, then extracts persons best-effort.
func (r *run) analyze(context.Context) (*Result, error) {
	r.analyses = make([]evidence.AnalysisResult, len(r.units))
	for i, u := range r.units {
		r.analyses[i].Tags = r.o.deps.Tagger.Tag(u.Content)
	}
	r.categories = analysis.UnionCategories(r.analyses)
	r.tr.Set("categories", r.categories)

	if r.o.deps.Persons != nil {
		if err := r.extractPersons(); err != nil {
			r.tr.Error(err, false)
		}
	}
	return nil, nil
}

func (r *run) extractPersons() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errkind.New(errkind.Dependency, "extract persons", fmt.Errorf("panic: %v", p))
		}
	}()
	r.persons, r.rels = r.o.deps.Persons.Extract(r.units)
	r.tr.Set("persons", len(r.persons))
	return nil
}

// embed fans the units out over the shared pool. Fallback vectors are kept
// but counted.
func (r *run) embed(ctx context.Context) (*Result, error) {
	n := len(r.units)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		panicked error
	)
	for i := range r.units {
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					mu.Lock()
					panicked = fmt.Errorf("embedding unit %d: panic: %v", i, p)
					mu.Unlock()
				}
			}()
			vec, fallback := r.o.deps.Embedder.Embed(ctx, r.units[i].Content)
			r.analyses[i].Embedding = vec
			r.analyses[i].IsFallbackEmbedding = fallback
		}
		if err := r.o.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
	if panicked != nil {
		return nil, errkind.Wrap(errkind.Dependency, "embed", panicked)
	}

	for i := range r.analyses {
		if len(r.analyses[i].Embedding) == 0 {
			return nil, errkind.New(errkind.Dependency, "embed", fmt.Errorf("unit %d: empty vector", i))
		}
		if r.analyses[i].IsFallbackEmbedding {
			r.fallbacks++
			observability.Current().IncFallbackEmbedding()
		}
	}
	if r.fallbacks > 0 {
		r.tr.Warn("fallback embeddings used, search quality degraded for these chunks", "fallback", r.fallbacks, "units", n)
	}
	r.tr.Set("fallback_embeddings", r.fallbacks)
	return nil, nil
}

// index claims the record, then writes one entry per unit. The claim comes
// first so no entry is ever queryable without its record.
func (r *run) index(ctx context.Context) (*Result, error) {
	rec := &evidence.Record{
		CaseID:      r.caseID,
		FileName:    r.ref.FileName(),
		ContentType: contentType(r.ref),
		SizeBytes:   r.size,
		FileHash:    r.fileHash,
		OriginRef:   r.ref.Origin(),
	}
	if r.evidenceID != "" {
		eid := r.evidenceID
		rec.EvidenceID = &eid
	}
	tx, err := r.o.deps.Persist.BeginIngest(ctx, rec)
	if err != nil {
		if consistency.IsLostRace(err) {
			return r.raceLost(err), nil
		}
		return nil, err
	}
	r.tx = tx
	r.tr.Set("record_id", tx.RecordID().String())
	r.tr.Set("tx_id", tx.TxID())

	entries := make([]evidence.IndexEntry, len(r.units))
	for i, u := range r.units {
		a := r.analyses[i]
		entries[i] = evidence.IndexEntry{
			ChunkID:             uuid.NewString(),
			Kind:                evidence.EntryKindChunk,
			Content:             u.Content,
			Embedding:           a.Embedding,
			Sender:              u.Sender,
			Timestamp:           u.Timestamp,
			Tags:                a.Categories(),
			Confidence:          a.MaxConfidence(),
			Location:            u.Location,
			IsFallbackEmbedding: a.IsFallbackEmbedding,
		}
	}
	if err := tx.IndexEntries(ctx, entries); err != nil {
		return nil, err
	}
	r.chunkIDs = tx.WrittenChunkIDs()
	r.tr.Info("entries indexed", "chunks", len(r.chunkIDs))
	return nil, nil
}

// summarize never fails the item: any summarizer problem falls back to the
// templated summary.
func (r *run) summarize(ctx context.Context) (*Result, error) {
	in := analysis.SummaryInput{FileName: r.ref.FileName(), Units: r.units, Categories: r.categories}
	if s := r.o.deps.Summarizer; s != nil {
		text, err := s.Summarize(ctx, in)
		if err != nil {
			r.tr.Error(err, false)
		}
		r.summary = strings.TrimSpace(text)
	}
	if r.summary == "" {
		r.summary = analysis.TemplateSummary(in)
		r.tr.Set("summary_fallback", true)
	}
	return nil, nil
}

// finalize completes the record conditionally. Losing that race to another
// run is a skip. Only the winner writes the summary entry and the graph.
func (r *run) finalize(ctx context.Context) (*Result, error) {
	updates := map[string]interface{}{
		"summary":             r.summary,
		"tags":                evidence.TagsJSON(r.categories),
		"chunk_count":         len(r.units),
		"fallback_embeddings": r.fallbacks,
	}
	if len(r.chunkIDs) > 0 {
		updates["first_chunk_id"] = r.chunkIDs[0]
	}
	rec, err := r.tx.Finalize(ctx, updates)
	if err != nil {
		if consistency.IsLostRace(err) {
			return r.raceLost(err), nil
		}
		return nil, err
	}
	r.record = rec
	r.o.deps.Dedup.Remember(ctx, rec)

	// The record is completed from here on; nothing below may fail the item.
	r.enrich("index summary", func() error {
		return r.o.deps.Persist.IndexSummary(ctx, rec)
	})
	if g := r.o.deps.Graph; g != nil && len(r.persons) > 0 {
		r.enrich("graph save", func() error {
			return g.UpsertRecord(ctx, r.caseID, rec.ID.String(), r.persons, r.rels)
		})
	}
	return nil, nil
}

// enrich runs a post-completion write, recording failures and panics as
// non-fatal dependency errors.
func (r *run) enrich(op string, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			r.o.log.Error("enrichment panic recovered", "op", op, "panic", p)
			r.tr.Error(errkind.New(errkind.Dependency, op, fmt.Errorf("panic: %v", p)), false)
		}
	}()
	if err := fn(); err != nil {
		r.tr.Error(errkind.Wrap(errkind.Dependency, op, err), false)
	}
}

func (r *run) complete(context.Context) (*Result, error) {
	res := r.stop(StatusCompleted, "")
	res.RecordID = r.record.ID.String()
	res.ChunksIndexed = len(r.units)
	res.Tags = append([]string(nil), r.categories...)
	res.Summary = r.summary
	res.FallbackEmbeddings = r.fallbacks
	r.tr.Info("evidence ingested", "record_id", res.RecordID, "chunks", res.ChunksIndexed)
	return res, nil
}

// raceLost reports another run completing the same natural key first. The
// reason follows whether the key was an issued evidence id.
func (r *run) raceLost(err error) *Result {
	reason := ReasonConcurrentCreated
	if r.evidenceID != "" {
		reason = ReasonConcurrentProcessed
	}
	r.tx = nil
	r.tr.Info("record completed by a concurrent run", "reason", reason)
	res := r.stop(StatusSkipped, reason)
	var cerr *consistency.Error
	if errors.As(err, &cerr) {
		res.RecordID = cerr.RecordID
	}
	return res
}

func contentType(ref evidence.Reference) string {
	ext := ref.Ext()
	if ext == "" {
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension("." + ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
