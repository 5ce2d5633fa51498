package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"golang.org/x/time/rate"

	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

const DefaultDimension = 1536

// EmbedClient is satisfied by openai.Client.
type EmbedClient interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Embedder produces one vector per text. When the provider is missing or
// fails, a deterministic placeholder is returned and flagged so search
// quality for that chunk can be audited.
type Embedder struct {
	client  EmbedClient
	limiter *rate.Limiter
	dim     int
	log     *logger.Logger
}

// NewEmbedder builds an embedder. rps <= 0 disables rate limiting.
func NewEmbedder(log *logger.Logger, client EmbedClient, dim int, rps float64) *Embedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		burst := int(math.Ceil(rps))
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Embedder{client: client, limiter: lim, dim: dim, log: log.With("component", "Embedder")}
}

func (e *Embedder) Dimension() int { return e.dim }

// Embed returns the vector and whether it is a fallback.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, bool) {
	if e.client == nil {
		return FallbackVector(text, e.dim), true
	}
	if err := e.limiter.Wait(ctx); err != nil {
		e.log.Warn("embedding rate limiter wait failed", "error", err)
		return FallbackVector(text, e.dim), true
	}
	vecs, err := e.client.Embed(ctx, []string{text})
	if err != nil {
		e.log.Warn("embedding provider failed, using fallback", "error", err)
		return FallbackVector(text, e.dim), true
	}
	if len(vecs) != 1 || len(vecs[0]) != e.dim {
		got := 0
		if len(vecs) == 1 {
			got = len(vecs[0])
		}
		e.log.Warn("embedding dimension mismatch, using fallback", "want", e.dim, "got", got)
		return FallbackVector(text, e.dim), true
	}
	return vecs[0], false
}

// FallbackVector derives a unit-length vector from the SHA-256 of text.
// Equal text always maps to the same vector.
func FallbackVector(text string, dim int) []float32 {
	if dim <= 0 {
		dim = DefaultDimension
	}
	out := make([]float32, dim)
	seed := sha256.Sum256([]byte(text))
	block := seed
	var norm float64
	for i := 0; i < dim; i++ {
		j := i % 8
		if i > 0 && j == 0 {
			block = sha256.Sum256(block[:])
		}
		u := binary.BigEndian.Uint32(block[j*4 : j*4+4])
		v := float64(u)/float64(math.MaxUint32)*2 - 1
		out[i] = float32(v)
		norm += v * v
	}
	if norm == 0 {
		out[0] = 1
		return out
	}
	inv := 1 / math.Sqrt(norm)
	for i := range out {
		out[i] = float32(float64(out[i]) * inv)
	}
	return out
}
