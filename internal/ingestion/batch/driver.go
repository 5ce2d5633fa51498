// Package batch runs many references through the pipeline concurrently and
// always returns one result per reference, in input order.
package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/ingestion/pipeline"
	"github.com/yungbote/evidence-backend/internal/platform/errkind"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

const (
	DefaultConcurrency = 4
	DefaultItemTimeout = 15 * time.Minute
)

type Processor interface {
	Process(ctx context.Context, ref evidence.Reference) pipeline.Result
}

type Options struct {
	Concurrency int
	ItemTimeout time.Duration
}

type Driver struct {
	log  *logger.Logger
	proc Processor
	opts Options
}

func New(log *logger.Logger, proc Processor, opts Options) *Driver {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = DefaultItemTimeout
	}
	return &Driver{log: log.With("component", "BatchDriver"), proc: proc, opts: opts}
}

// Run never fails as a whole. Items are isolated from each other: one
// item's error, timeout or panic only shapes its own result.
func (d *Driver) Run(ctx context.Context, refs []evidence.Reference) []pipeline.Result {
	out := make([]pipeline.Result, len(refs))
	if len(refs) == 0 {
		return out
	}
	started := time.Now()

	// Plain group: a failing item must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(d.opts.Concurrency)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			out[i] = d.one(ctx, ref)
			return nil
		})
	}
	_ = g.Wait()

	counts := Tally(out)
	d.log.Info("batch finished",
		"items", len(refs),
		"completed", counts[pipeline.StatusCompleted],
		"skipped", counts[pipeline.StatusSkipped],
		"rejected", counts[pipeline.StatusRejected],
		"error", counts[pipeline.StatusError],
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return out
}

func (d *Driver) one(ctx context.Context, ref evidence.Reference) (res pipeline.Result) {
	defer func() {
		if p := recover(); p != nil {
			d.log.Error("item panic recovered", "reference", ref.String(), "panic", p, "stack", string(debug.Stack()))
			res = pipeline.ErrorResult(ref, errkind.New(errkind.Infrastructure, "batch item", fmt.Errorf("panic: %v", p)))
		}
	}()
	if err := ctx.Err(); err != nil {
		res = pipeline.ErrorResult(ref, err)
		res.Reason = pipeline.ReasonCancelled
		return res
	}
	ictx, cancel := context.WithTimeout(ctx, d.opts.ItemTimeout)
	defer cancel()
	return d.proc.Process(ictx, ref)
}

// Tally counts results by status.
func Tally(results []pipeline.Result) map[pipeline.Status]int {
	out := map[pipeline.Status]int{}
	for _, r := range results {
		out[r.Status]++
	}
	return out
}
