package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/ingestion/pipeline"
	"github.com/yungbote/evidence-backend/internal/platform/errkind"
	"github.com/yungbote/evidence-backend/internal/platform/kafkax"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
	"github.com/yungbote/evidence-backend/internal/platform/retry"
)

var fastPolicy = retry.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

func TestDecode(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  []evidence.Reference
	}{
		{"single", `{"bucket":"bucket1","name":"case42/chat.txt"}`, []evidence.Reference{{Bucket: "bucket1", Key: "case42/chat.txt"}}},
		{"leading slash", `{"bucket":"b","name":"/case42/a.pdf"}`, []evidence.Reference{{Bucket: "b", Key: "case42/a.pdf"}}},
		{
			"batch",
			`{"records":[{"bucket":"b","name":"c/1.txt"},{"bucket":"b","name":"c/2.txt"}]}`,
			[]evidence.Reference{{Bucket: "b", Key: "c/1.txt"}, {Bucket: "b", Key: "c/2.txt"}},
		},
	}
	for _, tc := range cases {
		got, err := Decode([]byte(tc.value))
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, v := range []string{
		`not json`,
		`{}`,
		`{"bucket":"b"}`,
		`{"bucket":"b","name":"folder/"}`,
		`{"records":[{"bucket":"b","name":"ok.txt"},{"name":"x.txt"}]}`,
	} {
		_, err := Decode([]byte(v))
		assert.ErrorIs(t, err, ErrMalformed, v)
		assert.Equal(t, errkind.Validation, errkind.Classify(err), v)
	}
}

type fakeRunner struct {
	got [][]evidence.Reference
}

func (f *fakeRunner) Run(_ context.Context, refs []evidence.Reference) []pipeline.Result {
	f.got = append(f.got, refs)
	out := make([]pipeline.Result, len(refs))
	for i, r := range refs {
		out[i] = pipeline.Result{Status: pipeline.StatusCompleted, Reference: r.String()}
	}
	return out
}

type fakeWriter struct {
	mu    sync.Mutex
	msgs  []kafka.Message
	err   error
	fails int
	calls int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.err != nil {
		return w.err
	}
	if w.fails > 0 {
		w.fails--
		return errors.New("broker unavailable")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestHandleMessagePublishesResults(t *testing.T) {
	runner := &fakeRunner{}
	w := &fakeWriter{}
	h := New(logger.Nop(), runner, kafkax.NewProducerWithWriter(logger.Nop(), "results", w))

	err := h.HandleMessage(context.Background(), []byte("k"), []byte(`{"records":[{"bucket":"b","name":"c/1.txt"},{"bucket":"b","name":"c/2.txt"}]}`))
	require.NoError(t, err)
	require.Len(t, runner.got, 1)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "b/c/1.txt", string(w.msgs[0].Key))

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &res))
	assert.Equal(t, pipeline.StatusCompleted, res.Status)
	assert.Equal(t, "b/c/2.txt", res.Reference)
}

func TestHandleMessageDropsMalformed(t *testing.T) {
	runner := &fakeRunner{}
	h := New(logger.Nop(), runner, nil)
	assert.NoError(t, h.HandleMessage(context.Background(), nil, []byte(`{"bucket":""}`)))
	assert.Empty(t, runner.got)

	_, err := h.Handle(context.Background(), []byte(`{"bucket":""}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestHandleMessageRetriesPublish(t *testing.T) {
	runner := &fakeRunner{}
	w := &fakeWriter{fails: 1}
	h := New(logger.Nop(), runner, kafkax.NewProducerWithWriter(logger.Nop(), "results", w)).WithPublishPolicy(fastPolicy)

	require.NoError(t, h.HandleMessage(context.Background(), nil, []byte(`{"bucket":"b","name":"c/1.txt"}`)))
	assert.Len(t, runner.got, 1)
	assert.Equal(t, 2, w.calls)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "b/c/1.txt", string(w.msgs[0].Key))
}

func TestHandleMessageReturnsExhaustedPublishFailure(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	h := New(logger.Nop(), &fakeRunner{}, kafkax.NewProducerWithWriter(logger.Nop(), "results", w)).WithPublishPolicy(fastPolicy)
	err := h.HandleMessage(context.Background(), nil, []byte(`{"bucket":"b","name":"c/1.txt"}`))
	require.Error(t, err)
	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, 2, w.calls)
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		f.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestConsumerRerunsEventUntilResultsPublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeReader{
		cancel: cancel,
		msgs:   []kafka.Message{{Offset: 7, Value: []byte(`{"bucket":"b","name":"c/1.txt"}`)}},
	}
	runner := &fakeRunner{}
	// The first pass spends both attempts; the second pass lands on its retry.
	w := &fakeWriter{fails: 3}
	h := New(logger.Nop(), runner, kafkax.NewProducerWithWriter(logger.Nop(), "results", w)).WithPublishPolicy(fastPolicy)
	c := kafkax.NewConsumerWithReader(logger.Nop(), "evidence", r, h.HandleMessage).
		WithBackoff(retry.Policy{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1})

	require.NoError(t, c.Start(ctx))
	assert.Len(t, runner.got, 2)
	assert.Equal(t, 4, w.calls)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []int64{7}, r.committed)
}
