// Package tracker records what happened to one ingestion job: stage
// timings, log lines, classified errors and a final summary. A Tracker is
// owned by a single pipeline run and is not safe for concurrent use.
package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/evidence-backend/internal/observability"
	"github.com/yungbote/evidence-backend/internal/platform/errkind"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

type Stage string

const (
	StageStart     Stage = "start"
	StageRoute     Stage = "route"
	StageDownload  Stage = "download"
	StageValidate  Stage = "validate"
	StageIdentify  Stage = "identify_case"
	StageHash      Stage = "hash"
	StageDedup     Stage = "dedup"
	StageParse     Stage = "parse"
	StageAnalyze   Stage = "analyze"
	StageEmbed     Stage = "embed"
	StageIndex     Stage = "index"
	StageSummarize Stage = "summarize"
	StageFinalize  Stage = "finalize"
	StageComplete  Stage = "complete"
)

type LogLine struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Stage   Stage          `json:"stage"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

type ErrorEntry struct {
	Kind    errkind.Kind `json:"kind"`
	Stage   Stage        `json:"stage"`
	Message string       `json:"message"`
	Fatal   bool         `json:"fatal"`
}

type StageTiming struct {
	Stage      Stage   `json:"stage"`
	DurationMS float64 `json:"duration_ms"`
	OK         bool    `json:"ok"`
}

// Summary is the job report attached to every pipeline result.
type Summary struct {
	JobID      string         `json:"job_id"`
	Reference  string         `json:"reference"`
	CaseID     string         `json:"case_id,omitempty"`
	FinalStage Stage          `json:"final_stage"`
	DurationMS float64        `json:"duration_ms"`
	Stages     []StageTiming  `json:"stages"`
	Errors     []ErrorEntry   `json:"errors,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	LogLines   int            `json:"log_lines"`
}

type Tracker struct {
	jobID     string
	reference string
	caseID    string
	stage     Stage
	started   time.Time

	metadata map[string]any
	logs     []LogLine
	errors   []ErrorEntry
	timings  []StageTiming

	log  *logger.Logger
	span trace.Span
}

// New starts a job and its root span. The returned context carries the span.
func New(ctx context.Context, log *logger.Logger, reference string) (*Tracker, context.Context) {
	id := uuid.NewString()
	ctx, span := observability.Tracer().Start(ctx, "ingest.job",
		trace.WithAttributes(
			attribute.String("job.id", id),
			attribute.String("job.reference", reference),
		))
	return &Tracker{
		jobID:     id,
		reference: reference,
		stage:     StageStart,
		started:   time.Now(),
		metadata:  map[string]any{},
		log:       log.With("job_id", id, "reference", reference),
		span:      span,
	}, ctx
}

func (t *Tracker) JobID() string     { return t.jobID }
func (t *Tracker) Reference() string { return t.reference }
func (t *Tracker) Stage() Stage      { return t.stage }
func (t *Tracker) CaseID() string    { return t.caseID }

func (t *Tracker) SetCaseID(caseID string) {
	t.caseID = caseID
	t.log = t.log.With("case_id", caseID)
	t.span.SetAttributes(attribute.String("job.case_id", caseID))
}

// Set records a metadata key on the job.
func (t *Tracker) Set(key string, value any) {
	t.metadata[key] = value
}

func (t *Tracker) Get(key string) (any, bool) {
	v, ok := t.metadata[key]
	return v, ok
}

// Begin enters stage s. The returned func ends the stage; pass the stage's
// error, or nil.
func (t *Tracker) Begin(ctx context.Context, s Stage) (context.Context, func(err error)) {
	t.stage = s
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "ingest."+string(s))
	t.Debug("stage started")
	return ctx, func(err error) {
		d := time.Since(start)
		t.timings = append(t.timings, StageTiming{
			Stage:      s,
			DurationMS: float64(d.Microseconds()) / 1000,
			OK:         err == nil,
		})
		observability.Current().ObserveStage(string(s), d)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func (t *Tracker) record(level, msg string, kv []any) {
	line := LogLine{Time: time.Now().UTC(), Level: level, Stage: t.stage, Message: msg}
	if len(kv) > 0 {
		line.Fields = map[string]any{}
		for i := 0; i+1 < len(kv); i += 2 {
			if k, ok := kv[i].(string); ok {
				line.Fields[k] = kv[i+1]
			}
		}
	}
	t.logs = append(t.logs, line)
}

func (t *Tracker) Debug(msg string, kv ...any) {
	t.record("debug", msg, kv)
	t.log.Debug(msg, append([]any{"stage", string(t.stage)}, kv...)...)
}

func (t *Tracker) Info(msg string, kv ...any) {
	t.record("info", msg, kv)
	t.log.Info(msg, append([]any{"stage", string(t.stage)}, kv...)...)
}

func (t *Tracker) Warn(msg string, kv ...any) {
	t.record("warn", msg, kv)
	t.log.Warn(msg, append([]any{"stage", string(t.stage)}, kv...)...)
}

// Error classifies err and records it against the current stage.
// Non-fatal errors are enrichment failures the job continued past.
func (t *Tracker) Error(err error, fatal bool) errkind.Kind {
	if err == nil {
		return ""
	}
	kind := errkind.Classify(err)
	t.errors = append(t.errors, ErrorEntry{Kind: kind, Stage: t.stage, Message: err.Error(), Fatal: fatal})
	t.record("error", err.Error(), []any{"kind", string(kind), "fatal", fatal})
	t.log.Error("stage error", "stage", string(t.stage), "kind", string(kind), "fatal", fatal, "error", err)
	if fatal {
		t.span.RecordError(err)
		t.span.SetStatus(codes.Error, err.Error())
	}
	return kind
}

func (t *Tracker) Logs() []LogLine {
	out := make([]LogLine, len(t.logs))
	copy(out, t.logs)
	return out
}

func (t *Tracker) Errors() []ErrorEntry {
	out := make([]ErrorEntry, len(t.errors))
	copy(out, t.errors)
	return out
}

func (t *Tracker) Summary() Summary {
	md := make(map[string]any, len(t.metadata))
	for k, v := range t.metadata {
		md[k] = v
	}
	stages := make([]StageTiming, len(t.timings))
	copy(stages, t.timings)
	return Summary{
		JobID:      t.jobID,
		Reference:  t.reference,
		CaseID:     t.caseID,
		FinalStage: t.stage,
		DurationMS: float64(time.Since(t.started).Microseconds()) / 1000,
		Stages:     stages,
		Errors:     t.Errors(),
		Metadata:   md,
		LogLines:   len(t.logs),
	}
}

// Finish ends the root span with the terminal status.
func (t *Tracker) Finish(status string) Summary {
	t.span.SetAttributes(attribute.String("job.status", status))
	t.span.End()
	s := t.Summary()
	t.log.Info("job finished", "status", status, "duration_ms", s.DurationMS, "errors", len(s.Errors))
	return s
}
