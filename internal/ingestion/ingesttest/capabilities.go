package ingesttest

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/ingestion/analysis"
	"github.com/yungbote/evidence-backend/internal/ingestion/parser"
)

// Storage serves objects from memory.
type Storage struct {
	mu      sync.Mutex
	objects map[string][]byte

	Fail      error
	downloads int
}

func NewStorage() *Storage {
	return &Storage{objects: map[string][]byte{}}
}

func (s *Storage) Put(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = data
}

func (s *Storage) Downloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads
}

func (s *Storage) Download(_ context.Context, bucket, key, localPath string) (int64, error) {
	s.mu.Lock()
	s.downloads++
	data, ok := s.objects[bucket+"/"+key]
	fail := s.Fail
	s.mu.Unlock()
	if fail != nil {
		return 0, fail
	}
	if !ok {
		return 0, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	if err := os.WriteFile(localPath, data, 0o600); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// Embedder returns deterministic vectors of Dim length. Texts matched by
// FailWhen get a flagged fallback vector.
type Embedder struct {
	Dim      int
	FailWhen func(text string) bool

	mu    sync.Mutex
	calls int
}

func (e *Embedder) dim() int {
	if e.Dim <= 0 {
		return 8
	}
	return e.Dim
}

func (e *Embedder) Embed(_ context.Context, text string) ([]float32, bool) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.FailWhen != nil && e.FailWhen(text) {
		return analysis.FallbackVector(text, e.dim()), true
	}
	v := analysis.FallbackVector("real:"+text, e.dim())
	return v, false
}

func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Summarizer returns Text, or Err when set.
type Summarizer struct {
	Text string
	Err  error
}

func (s *Summarizer) Summarize(_ context.Context, in analysis.SummaryInput) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	if s.Text != "" {
		return s.Text, nil
	}
	return "summary of " + in.FileName, nil
}

// Graph records person-graph writes.
type Graph struct {
	mu sync.Mutex

	Err          error
	Panic        any
	Upserts      map[string][]evidence.Person
	DeletedCases []string
	DeletedRecs  []string
}

func NewGraph() *Graph {
	return &Graph{Upserts: map[string][]evidence.Person{}}
}

func (g *Graph) UpsertRecord(_ context.Context, _ string, recordID string, persons []evidence.Person, _ []evidence.Relationship) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Panic != nil {
		panic(g.Panic)
	}
	if g.Err != nil {
		return g.Err
	}
	g.Upserts[recordID] = persons
	return nil
}

func (g *Graph) DeleteRecord(_ context.Context, recordID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.DeletedRecs = append(g.DeletedRecs, recordID)
	delete(g.Upserts, recordID)
	return g.Err
}

func (g *Graph) DeleteCase(_ context.Context, caseID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.DeletedCases = append(g.DeletedCases, caseID)
	return g.Err
}

// Parser yields fixed units for its extensions.
type Parser struct {
	Kind  string
	Exts  []string
	Units []evidence.ParsedUnit
	Err   error
	// Panic makes Parse panic with this value.
	Panic any
}

var _ parser.Parser = (*Parser)(nil)

func (p *Parser) Name() string {
	if p.Kind == "" {
		return "chat"
	}
	return p.Kind
}

func (p *Parser) Kinds() []string {
	if len(p.Exts) == 0 {
		return []string{"txt"}
	}
	return p.Exts
}

func (p *Parser) Parse(_ context.Context, _ string, src parser.Source) ([]evidence.ParsedUnit, error) {
	if p.Panic != nil {
		panic(p.Panic)
	}
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([]evidence.ParsedUnit, len(p.Units))
	copy(out, p.Units)
	for i := range out {
		if out[i].Location.File == "" {
			out[i].Location.File = src.FileName
		}
	}
	return out, nil
}

// ThreeUnits is a chat whose messages tag as three distinct categories.
func ThreeUnits() []evidence.ParsedUnit {
	return []evidence.ParsedUnit{
		{Sender: "Alex", Content: "You will regret this", Location: evidence.Location{LineStart: 1, LineEnd: 1}},
		{Sender: "Sam", Content: "Send the child support money", Location: evidence.Location{LineStart: 2, LineEnd: 2}},
		{Sender: "Alex", Content: "My lawyer will see you in court", Location: evidence.Location{LineStart: 3, LineEnd: 3}},
	}
}
