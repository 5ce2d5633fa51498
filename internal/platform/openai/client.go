// Package openai is a thin REST client for the two OpenAI endpoints the
// ingestion pipeline calls: embeddings and text responses.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/evidence-backend/internal/platform/errkind"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
	"github.com/yungbote/evidence-backend/internal/platform/retry"
)

const (
	defaultBaseURL      = "https://api.openai.com"
	defaultEmbedModel   = "text-embedding-3-small"
	defaultSummaryModel = "gpt-4o-mini"

	maxErrorBody = 512
)

type Client interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	GenerateText(ctx context.Context, system string, user string) (string, error)
}

type Config struct {
	APIKey       string
	BaseURL      string
	EmbedModel   string
	SummaryModel string
	Timeout      time.Duration
	MaxAttempts  int
}

func (c Config) normalized() Config {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.EmbedModel == "" {
		c.EmbedModel = defaultEmbedModel
	}
	if c.SummaryModel == "" {
		c.SummaryModel = defaultSummaryModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	return c
}

type restClient struct {
	log    *logger.Logger
	cfg    Config
	hc     *http.Client
	policy retry.Policy
}

// NewClient builds a Client. hc may be nil; a client with cfg.Timeout is
// created in that case.
func NewClient(log *logger.Logger, cfg Config, hc *http.Client) (Client, error) {
	if log == nil {
		return nil, errors.New("logger required")
	}
	cfg = cfg.normalized()
	if cfg.APIKey == "" {
		return nil, errors.New("missing OPENAI_API_KEY")
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &restClient{
		log: log.With("service", "OpenAIClient"),
		cfg: cfg,
		hc:  hc,
		policy: retry.Policy{
			MaxAttempts:    cfg.MaxAttempts,
			InitialDelay:   time.Second,
			MaxDelay:       10 * time.Second,
			Multiplier:     2,
			JitterFraction: 0.2,
		},
	}, nil
}

// StatusError is a non-2xx reply. Only 429 and 5xx are retried.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openai %s: status %d: %s", e.Endpoint, e.Code, e.Body)
}

func (e *StatusError) ErrorKind() errkind.Kind { return errkind.Dependency }

func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// call POSTs payload to endpoint and decodes the reply into dst, retrying
// transient failures under the client's policy.
func (c *restClient) call(ctx context.Context, endpoint string, payload, dst any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("openai %s: encode: %w", endpoint, err)
	}
	return retry.Do(ctx, "openai"+endpoint, c.policy, c.log, nil, func(ctx context.Context) error {
		raw, err := c.post(ctx, endpoint, body)
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return retry.Permanent(err)
		}
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return retry.Permanent(errkind.New(errkind.Dependency, "openai"+endpoint, fmt.Errorf("decode reply: %w", err)))
		}
		return nil
	})
}

func (c *restClient) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errkind.Wrap(errkind.Dependency, "openai"+endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.Wrap(errkind.Dependency, "openai"+endpoint, err)
	}
	if resp.StatusCode/100 != 2 {
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
