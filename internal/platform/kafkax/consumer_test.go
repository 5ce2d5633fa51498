package kafkax

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/evidence-backend/internal/platform/logger"
	"github.com/yungbote/evidence-backend/internal/platform/retry"
)

var fastBackoff = retry.Policy{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
	closed    bool
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

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func TestConsumerRetriesFailedMessageBeforeCommitting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeReader{
		cancel: cancel,
		msgs: []kafka.Message{
			{Offset: 1, Value: []byte(`ok`)},
			{Offset: 2, Value: []byte(`flaky`)},
			{Offset: 3, Value: []byte(`ok`)},
		},
	}
	var seen []string
	failures := 2
	c := NewConsumerWithReader(logger.Nop(), "t", r, func(_ context.Context, _ []byte, v []byte) error {
		seen = append(seen, string(v))
		if string(v) == "flaky" && failures > 0 {
			failures--
			return errors.New("boom")
		}
		return nil
	}).WithBackoff(fastBackoff)

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, []string{"ok", "flaky", "flaky", "flaky", "ok"}, seen)
	assert.Equal(t, []int64{1, 2, 3}, r.committed)
	assert.True(t, r.closed)
}

func TestConsumerNeverCommitsPastFailingMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeReader{
		cancel: cancel,
		msgs: []kafka.Message{
			{Offset: 1, Value: []byte(`ok`)},
			{Offset: 2, Value: []byte(`fail`)},
			{Offset: 3, Value: []byte(`ok`)},
		},
	}
	attempts := 0
	c := NewConsumerWithReader(logger.Nop(), "t", r, func(_ context.Context, _ []byte, v []byte) error {
		if string(v) != "fail" {
			return nil
		}
		attempts++
		if attempts == 3 {
			cancel()
		}
		return errors.New("boom")
	}).WithBackoff(fastBackoff)

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int64{1}, r.committed)
	assert.Len(t, r.msgs, 1, "later messages are left for the next session")
	assert.True(t, r.closed)
}

type fakeWriter struct{ msgs []kafka.Message }

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}
func (f *fakeWriter) Close() error { return nil }

func TestProducerPublishesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(logger.Nop(), "results", w)
	require.NoError(t, p.Publish(context.Background(), "case-1", map[string]string{"status": "completed"}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "case-1", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"status":"completed"}`, string(w.msgs[0].Value))
}

func TestDecodeJSON(t *testing.T) {
	type ev struct {
		Bucket string `json:"bucket"`
	}
	v, err := DecodeJSON[ev]([]byte(`{"bucket":"b"}`))
	require.NoError(t, err)
	assert.Equal(t, "b", v.Bucket)
	_, err = DecodeJSON[ev]([]byte(`{`))
	require.Error(t, err)
}
