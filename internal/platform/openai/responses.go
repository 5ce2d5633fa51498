package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/yungbote/evidence-backend/internal/platform/errkind"
)

type turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseRequest struct {
	Model       string  `json:"model"`
	Input       []turn  `json:"input"`
	Temperature float64 `json:"temperature,omitempty"`
}

type outputPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type outputItem struct {
	Type    string       `json:"type"`
	Role    string       `json:"role,omitempty"`
	Content []outputPart `json:"content,omitempty"`
}

type responseReply struct {
	Output  []outputItem `json:"output"`
	Refusal string       `json:"refusal,omitempty"`
}

// text concatenates the assistant's output_text parts.
func (r responseReply) text() string {
	var b strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, p := range item.Content {
			if p.Type == "output_text" {
				b.WriteString(p.Text)
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func (c *restClient) GenerateText(ctx context.Context, system string, user string) (string, error) {
	req := responseRequest{
		Model:       c.cfg.SummaryModel,
		Input:       []turn{{Role: "system", Content: system}, {Role: "user", Content: user}},
		Temperature: 0.2,
	}
	var reply responseReply
	if err := c.call(ctx, "/v1/responses", req, &reply); err != nil {
		return "", err
	}
	if reply.Refusal != "" {
		return "", errkind.New(errkind.Dependency, "openai.generate", errors.New("model refused: "+reply.Refusal))
	}
	out := reply.text()
	if out == "" {
		return "", errkind.New(errkind.Dependency, "openai.generate", errors.New("reply carried no output text"))
	}
	return out, nil
}
