package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/evidence-backend/internal/platform/errkind"
)

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedReply struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input, in input order. Blank inputs are sent
// as a single space since the API rejects empty strings.
func (c *restClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	req := embedRequest{Model: c.cfg.EmbedModel, Input: make([]string, len(inputs))}
	for i, s := range inputs {
		if s = strings.TrimSpace(s); s == "" {
			s = " "
		}
		req.Input[i] = s
	}

	var reply embedReply
	if err := c.call(ctx, "/v1/embeddings", req, &reply); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(inputs))
	for _, d := range reply.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			continue
		}
		v := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float32(x)
		}
		vectors[d.Index] = v
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, errkind.New(errkind.Dependency, "openai.embed",
				fmt.Errorf("no vector for input %d (sent %d, got %d)", i, len(inputs), len(reply.Data)))
		}
	}
	return vectors, nil
}
