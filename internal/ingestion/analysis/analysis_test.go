package analysis

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/platform/errkind"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

func TestTaggerCategoriesAndConfidence(t *testing.T) {
	tg := NewTagger(nil)

	tags := tg.Tag("You will regret this. Watch your back, or else.")
	require.Len(t, tags, 1)
	assert.Equal(t, CategoryThreat, tags[0].Category)
	assert.Equal(t, 1.0, tags[0].Confidence)
	assert.Len(t, tags[0].Keywords, 3)

	tags = tg.Tag("My lawyer filed for custody")
	cats := evidence.AnalysisResult{Tags: tags}.Categories()
	assert.Equal(t, []string{CategoryCustody, CategoryLegalProcess}, cats)
	assert.Equal(t, 0.5, tags[0].Confidence)
	assert.Equal(t, 0.75, tags[1].Confidence)

	assert.Empty(t, tg.Tag("see you tomorrow"))
	// "hit" must not match inside "white".
	assert.Empty(t, tg.Tag("the white car"))
}

func TestUnionCategories(t *testing.T) {
	got := UnionCategories([]evidence.AnalysisResult{
		{Tags: []evidence.Tag{{Category: "threat"}, {Category: "financial"}}},
		{Tags: []evidence.Tag{{Category: "financial"}, {Category: "custody"}}},
		{},
	})
	assert.Equal(t, []string{"threat", "financial", "custody"}, got)
}

func TestPersonExtractor(t *testing.T) {
	units := []evidence.ParsedUnit{
		{Sender: "Alex", Content: "Tell Jordan Smith I said hi"},
		{Sender: "Sam", Content: "Please Alex stop"},
		{Sender: "Alex", Content: "no"},
	}
	persons, rels := PersonExtractor{}.Extract(units)

	byName := map[string]evidence.Person{}
	for _, p := range persons {
		byName[p.Name] = p
	}
	require.Contains(t, byName, "Alex")
	assert.True(t, byName["Alex"].AsSender)
	assert.Equal(t, 3, byName["Alex"].Mentions)
	require.Contains(t, byName, "Jordan Smith")
	assert.False(t, byName["Jordan Smith"].AsSender)
	assert.NotContains(t, byName, "Please")
	assert.Equal(t, "Alex", persons[0].Name)

	assert.Equal(t, []evidence.Relationship{
		{From: "Alex", To: "Jordan Smith", Count: 1},
		{From: "Sam", To: "Alex", Count: 1},
	}, rels)
}

type genFunc func(ctx context.Context, system, user string) (string, error)

func (f genFunc) GenerateText(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

func TestSummarizer(t *testing.T) {
	in := SummaryInput{
		FileName:   "chat.txt",
		Units:      []evidence.ParsedUnit{{Sender: "Alex", Content: "pay me"}},
		Categories: []string{"financial"},
	}

	var prompt string
	s := NewSummarizer(logger.Nop(), genFunc(func(_ context.Context, _ string, user string) (string, error) {
		prompt = user
		return "  Alex asked for money.  ", nil
	}))
	out, err := s.Summarize(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Alex asked for money.", out)
	assert.Contains(t, prompt, "Alex: pay me")
	assert.Contains(t, prompt, "Detected subjects: financial")

	failing := NewSummarizer(logger.Nop(), genFunc(func(context.Context, string, string) (string, error) {
		return "", errors.New("503")
	}))
	_, err = failing.Summarize(context.Background(), in)
	assert.Equal(t, errkind.Dependency, errkind.Classify(err))

	_, err = NewSummarizer(logger.Nop(), nil).Summarize(context.Background(), in)
	assert.ErrorIs(t, err, ErrSummarizerUnavailable)

	assert.Equal(t, "chat.txt: 1 content unit with detected categories: financial.", TemplateSummary(in))
	assert.Equal(t, "x.pdf: 0 content units with no flagged categories.", TemplateSummary(SummaryInput{FileName: "x.pdf"}))
}

type embedFunc func(ctx context.Context, inputs []string) ([][]float32, error)

func (f embedFunc) Embed(ctx context.Context, inputs []string) ([][]float32, error) { return f(ctx, inputs) }

func TestEmbedderFallback(t *testing.T) {
	e := NewEmbedder(logger.Nop(), embedFunc(func(_ context.Context, in []string) ([][]float32, error) {
		if in[0] == "bad" {
			return nil, errors.New("provider down")
		}
		return [][]float32{{1, 0, 0, 0}}, nil
	}), 4, 0)

	vec, fallback := e.Embed(context.Background(), "good")
	assert.False(t, fallback)
	assert.Equal(t, []float32{1, 0, 0, 0}, vec)

	vec, fallback = e.Embed(context.Background(), "bad")
	assert.True(t, fallback)
	assert.Equal(t, FallbackVector("bad", 4), vec)

	wrongDim := NewEmbedder(logger.Nop(), embedFunc(func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1, 2}}, nil
	}), 4, 0)
	_, fallback = wrongDim.Embed(context.Background(), "x")
	assert.True(t, fallback)

	_, fallback = NewEmbedder(logger.Nop(), nil, 4, 0).Embed(context.Background(), "x")
	assert.True(t, fallback)
}

func TestFallbackVectorDeterministicUnitLength(t *testing.T) {
	a := FallbackVector("hello", 64)
	b := FallbackVector("hello", 64)
	c := FallbackVector("hello!", 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-4)
}
