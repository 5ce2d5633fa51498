// Package pipeline drives one evidence file from its storage reference to a
// completed, indexed record. Every outcome, including a panic inside a
// capability, comes back as a Result; nothing escapes Process.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/panjf2000/ants/v2"

	"github.com/yungbote/evidence-backend/internal/consistency"
	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/ingestion/analysis"
	"github.com/yungbote/evidence-backend/internal/ingestion/caseref"
	"github.com/yungbote/evidence-backend/internal/ingestion/costguard"
	"github.com/yungbote/evidence-backend/internal/ingestion/parser"
	"github.com/yungbote/evidence-backend/internal/ingestion/tracker"
	"github.com/yungbote/evidence-backend/internal/observability"
	"github.com/yungbote/evidence-backend/internal/platform/ctxutil"
	"github.com/yungbote/evidence-backend/internal/platform/errkind"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

type ObjectStorage interface {
	Download(ctx context.Context, bucket, key, localPath string) (int64, error)
}

// DuplicateIndex answers whether a completed record already owns a natural
// key. A nil record means no.
type DuplicateIndex interface {
	CompletedByEvidenceID(ctx context.Context, evidenceID string) (*evidence.Record, error)
	CompletedByHash(ctx context.Context, caseID, fileHash string) (*evidence.Record, error)
	CompletedByOrigin(ctx context.Context, originRef string) (*evidence.Record, error)
	Remember(ctx context.Context, rec *evidence.Record)
}

type Tagger interface {
	Tag(content string) []evidence.Tag
}

type PersonExtractor interface {
	Extract(units []evidence.ParsedUnit) ([]evidence.Person, []evidence.Relationship)
}

type GraphStore interface {
	UpsertRecord(ctx context.Context, caseID, recordID string, persons []evidence.Person, rels []evidence.Relationship) error
}

type Summarizer interface {
	Summarize(ctx context.Context, in analysis.SummaryInput) (string, error)
}

// Embedder returns a vector for text; the bool marks a fallback vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, bool)
}

// Persister opens the ingest saga and writes the record-level summary entry
// once a record is completed. *consistency.Manager implements it.
type Persister interface {
	BeginIngest(ctx context.Context, rec *evidence.Record) (*consistency.IngestTx, error)
	IndexSummary(ctx context.Context, rec *evidence.Record) error
}

// Deps are the capabilities the orchestrator drives. Persons, Graph and
// Summarizer are optional.
type Deps struct {
	Storage    ObjectStorage
	Parsers    *parser.Registry
	Guard      *costguard.Guard
	Cases      caseref.Resolver
	Dedup      DuplicateIndex
	Tagger     Tagger
	Persons    PersonExtractor
	Graph      GraphStore
	Summarizer Summarizer
	Embedder   Embedder
	Persist    Persister
}

type Options struct {
	// EmbedConcurrency bounds concurrent embedding calls across all items
	// sharing this orchestrator. Defaults to NumCPU.
	EmbedConcurrency int
	// TempDir is where downloads are materialized; "" uses os.TempDir.
	TempDir string
}

type Orchestrator struct {
	log  *logger.Logger
	deps Deps
	opts Options
	pool *ants.Pool
}

func New(log *logger.Logger, deps Deps, opts Options) (*Orchestrator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	switch {
	case deps.Storage == nil:
		return nil, fmt.Errorf("object storage required")
	case deps.Parsers == nil:
		return nil, fmt.Errorf("parser registry required")
	case deps.Dedup == nil:
		return nil, fmt.Errorf("duplicate index required")
	case deps.Tagger == nil:
		return nil, fmt.Errorf("tagger required")
	case deps.Embedder == nil:
		return nil, fmt.Errorf("embedder required")
	case deps.Persist == nil:
		return nil, fmt.Errorf("persister required")
	}
	if deps.Guard == nil {
		deps.Guard = costguard.New(0, costguard.Defaults())
	}
	if deps.Cases.CaseID == nil || deps.Cases.EvidenceID == nil {
		d := caseref.Default()
		if deps.Cases.CaseID == nil {
			deps.Cases.CaseID = d.CaseID
		}
		if deps.Cases.EvidenceID == nil {
			deps.Cases.EvidenceID = d.EvidenceID
		}
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = runtime.NumCPU()
	}
	plog := log.With("component", "PipelineOrchestrator")
	pool, err := ants.NewPool(opts.EmbedConcurrency, ants.WithPanicHandler(func(p interface{}) {
		plog.Error("embedding worker panic", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("embedding pool: %w", err)
	}
	return &Orchestrator{log: plog, deps: deps, opts: opts, pool: pool}, nil
}

// Close releases the embedding pool. Process must not be called afterwards.
func (o *Orchestrator) Close() {
	if o != nil && o.pool != nil {
		o.pool.Release()
	}
}

type step struct {
	stage tracker.Stage
	run   func(ctx context.Context) (*Result, error)
}

// Process runs one item through every stage. A stage either continues,
// ends the item early with a Result (skip/reject), or fails it.
func (o *Orchestrator) Process(ctx context.Context, ref evidence.Reference) (res Result) {
	ctx = ctxutil.Default(ctx)
	tr, ctx := tracker.New(ctx, o.log, ref.String())
	r := &run{o: o, ref: ref, tr: tr}

	defer func() {
		if p := recover(); p != nil {
			err := errkind.New(errkind.Infrastructure, "pipeline", fmt.Errorf("panic in stage %s: %v", tr.Stage(), p))
			o.log.Error("pipeline panic recovered", "reference", ref.String(), "stage", string(tr.Stage()), "panic", p, "stack", string(debug.Stack()))
			res = r.failed(ctx, err)
		}
		r.cleanup()
		res = r.finish(res)
	}()

	steps := []step{
		{tracker.StageRoute, r.route},
		{tracker.StageDownload, r.download},
		{tracker.StageValidate, r.validate},
		{tracker.StageIdentify, r.identify},
		{tracker.StageHash, r.hash},
		{tracker.StageDedup, r.dedup},
		{tracker.StageParse, r.parse},
		{tracker.StageAnalyze, r.analyze},
		{tracker.StageEmbed, r.embed},
		{tracker.StageIndex, r.index},
		{tracker.StageSummarize, r.summarize},
		{tracker.StageFinalize, r.finalize},
		{tracker.StageComplete, r.complete},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return r.failed(ctx, err)
		}
		sctx, end := tr.Begin(ctx, s.stage)
		out, err := s.run(sctx)
		end(err)
		if err != nil {
			return r.failed(ctx, err)
		}
		if out != nil {
			return *out
		}
	}
	// complete always returns a result.
	return r.failed(ctx, errors.New("pipeline ended without a result"))
}

// failed turns err into an error result, releasing any open ingest claim.
func (r *run) failed(ctx context.Context, err error) Result {
	if r.tx != nil {
		if aerr := r.tx.Abort(ctx, err); aerr != nil && !errors.Is(aerr, consistency.ErrTxClosed) {
			r.tr.Warn("ingest transaction rolled back", "tx_id", r.tx.TxID(), "error", aerr)
		}
	}
	kind := r.tr.Error(err, true)
	res := r.result(StatusError, "")
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		res.Reason = ReasonCancelled
	}
	res.ErrorKind = kind
	res.Error = err.Error()
	return res
}

func (r *run) finish(res Result) Result {
	res.JobID = r.tr.JobID()
	res.Reference = r.ref.String()
	if res.CaseID == "" {
		res.CaseID = r.caseID
	}
	sum := r.tr.Finish(string(res.Status))
	res.Job = &sum
	observability.Current().IncItem(string(res.Status), res.Reason)
	return res
}

func (r *run) cleanup() {
	if r.tmpDir == "" {
		return
	}
	if err := os.RemoveAll(r.tmpDir); err != nil {
		r.o.log.Warn("temp dir cleanup failed", "dir", r.tmpDir, "error", err)
	}
}
