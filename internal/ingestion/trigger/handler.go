// Package trigger turns storage-event notifications into pipeline batches.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/ingestion/pipeline"
	"github.com/yungbote/evidence-backend/internal/platform/errkind"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
	"github.com/yungbote/evidence-backend/internal/platform/retry"
)

var ErrMalformed = errors.New("malformed storage event")

// Notification is one object event, in the shape GCS notifications use.
type Notification struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// Event is either a single notification or a batch under "records".
type Event struct {
	Notification
	Records []Notification `json:"records,omitempty"`
}

// Decode parses an event into references. Any unusable entry makes the
// whole event malformed.
func Decode(value []byte) ([]evidence.Reference, error) {
	var ev Event
	if err := json.Unmarshal(value, &ev); err != nil {
		return nil, errkind.New(errkind.Validation, "decode event", fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	items := ev.Records
	if len(items) == 0 {
		items = []Notification{ev.Notification}
	}
	refs := make([]evidence.Reference, 0, len(items))
	for i, n := range items {
		bucket, name := strings.TrimSpace(n.Bucket), strings.TrimLeft(strings.TrimSpace(n.Name), "/")
		if bucket == "" || name == "" || strings.HasSuffix(name, "/") {
			return nil, errkind.New(errkind.Validation, "decode event", fmt.Errorf("%w: record %d needs bucket and object name", ErrMalformed, i))
		}
		refs = append(refs, evidence.Reference{Bucket: bucket, Key: name})
	}
	return refs, nil
}

type Runner interface {
	Run(ctx context.Context, refs []evidence.Reference) []pipeline.Result
}

// Publisher receives every item result. *kafkax.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, key string, value any) error
}

type Handler struct {
	log    *logger.Logger
	runner Runner
	pub    Publisher
	policy retry.Policy
}

// New builds a handler. pub may be nil.
func New(log *logger.Logger, runner Runner, pub Publisher) *Handler {
	return &Handler{
		log:    log.With("component", "StorageTrigger"),
		runner: runner,
		pub:    pub,
		policy: retry.Policy{
			MaxAttempts:    4,
			InitialDelay:   200 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
		},
	}
}

// WithPublishPolicy sets the backoff for each result publish.
func (h *Handler) WithPublishPolicy(p retry.Policy) *Handler {
	h.policy = p
	return h
}

// Handle decodes value and runs the batch. The error is ErrMalformed or a
// publish failure; per-item failures live in the results.
func (h *Handler) Handle(ctx context.Context, value []byte) ([]pipeline.Result, error) {
	refs, err := Decode(value)
	if err != nil {
		return nil, err
	}
	results := h.runner.Run(ctx, refs)
	return results, h.publish(ctx, results)
}

func (h *Handler) publish(ctx context.Context, results []pipeline.Result) error {
	if h.pub == nil {
		return nil
	}
	var errs []error
	for _, r := range results {
		err := retry.Do(ctx, "publish result", h.policy, h.log, nil, func(ctx context.Context) error {
			return h.pub.Publish(ctx, r.Reference, r)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleMessage adapts Handle to the kafka consumer loop. A malformed event
// is logged and acknowledged. A publish that still fails after its retries
// is returned, so the consumer handles the event again without committing
// it; dedup turns the re-run into skips that are published in turn.
func (h *Handler) HandleMessage(ctx context.Context, key, value []byte) error {
	results, err := h.Handle(ctx, value)
	if errors.Is(err, ErrMalformed) {
		h.log.Error("dropping malformed storage event", "key", string(key), "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	h.log.Info("storage event processed", "key", string(key), "items", len(results))
	return nil
}
