package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/platform/errkind"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

var ErrSummarizerUnavailable = errors.New("summarizer not configured")

const summarySystemPrompt = `You summarise evidence submitted to a family-law case file.
Write three to five neutral, factual sentences. Name who communicated, the time span covered,
and the notable subjects. Do not speculate, give legal advice, or quote more than a few words.`

// TextGenerator is satisfied by openai.Client.
type TextGenerator interface {
	GenerateText(ctx context.Context, system string, user string) (string, error)
}

type SummaryInput struct {
	FileName   string
	Units      []evidence.ParsedUnit
	Categories []string
}

type Summarizer struct {
	gen      TextGenerator
	log      *logger.Logger
	maxChars int
}

func NewSummarizer(log *logger.Logger, gen TextGenerator) *Summarizer {
	return &Summarizer{gen: gen, log: log.With("component", "Summarizer"), maxChars: 12000}
}

// Summarize asks the model for a summary. Callers fall back to
// TemplateSummary on error.
func (s *Summarizer) Summarize(ctx context.Context, in SummaryInput) (string, error) {
	if s == nil || s.gen == nil {
		return "", errkind.Wrap(errkind.Dependency, "summarize", ErrSummarizerUnavailable)
	}
	out, err := s.gen.GenerateText(ctx, summarySystemPrompt, s.prompt(in))
	if err != nil {
		return "", errkind.Wrap(errkind.Dependency, "summarize", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errkind.Wrap(errkind.Dependency, "summarize", errors.New("empty summary"))
	}
	return out, nil
}

func (s *Summarizer) prompt(in SummaryInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", in.FileName)
	if len(in.Categories) > 0 {
		fmt.Fprintf(&b, "Detected subjects: %s\n", strings.Join(in.Categories, ", "))
	}
	b.WriteString("Content:\n")
	for _, u := range in.Units {
		line := u.Content
		if u.Sender != "" {
			line = u.Sender + ": " + line
		}
		if u.Timestamp != nil {
			line = "[" + u.Timestamp.Format("2006-01-02 15:04") + "] " + line
		}
		if b.Len()+len(line) > s.maxChars {
			b.WriteString("...\n")
			break
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// TemplateSummary is the deterministic summary used when the model is
// unavailable.
func TemplateSummary(in SummaryInput) string {
	noun := "content units"
	if len(in.Units) == 1 {
		noun = "content unit"
	}
	s := fmt.Sprintf("%s: %d %s", in.FileName, len(in.Units), noun)
	if len(in.Categories) > 0 {
		s += " with detected categories: " + strings.Join(in.Categories, ", ")
	} else {
		s += " with no flagged categories"
	}
	return s + "."
}
