package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/evidence-backend/internal/platform/errkind"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL, MaxAttempts: 2, Timeout: 5 * time.Second}, srv.Client())
	require.NoError(t, err)
	return c
}

func TestEmbedOrdersByIndex(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var req embedRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, []string{"a", " "}, req.Input)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0.5]},{"index":0,"embedding":[0.25,0.75]}]}`))
	})

	out, err := c.Embed(context.Background(), []string{"a", "  "})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []float32{0.25, 0.75}, out[0])
	assert.Equal(t, []float32{0.5}, out[1])
}

func TestEmbedMissingIndexIsDependencyError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	})
	_, err := c.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, errkind.Dependency, errkind.Classify(err))
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad"}`))
	})
	_, err := c.GenerateText(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, errkind.Dependency, errkind.Classify(err))
}

func TestGenerateTextRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":" Summary here. "}]}]}`))
	})
	text, err := c.GenerateText(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "Summary here.", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(logger.Nop(), Config{}, nil)
	require.Error(t, err)
}

func TestStatusErrorTemporary(t *testing.T) {
	assert.True(t, (&StatusError{Code: http.StatusTooManyRequests}).Temporary())
	assert.True(t, (&StatusError{Code: http.StatusBadGateway}).Temporary())
	assert.False(t, (&StatusError{Code: http.StatusUnauthorized}).Temporary())
}

func TestGenerateTextRefusal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output":[],"refusal":"no"}`))
	})
	_, err := c.GenerateText(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model refused")
}
