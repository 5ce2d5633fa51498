// Package parser turns a downloaded evidence file into ordered ParsedUnits.
// Parsers are selected by file extension through a Registry.
package parser

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
)

var ErrNoContent = errors.New("parser: no extractable content")

// Source describes where the local file came from. Parsers that hand work
// to a cloud API by URI (video) need the bucket and key.
type Source struct {
	Bucket      string
	Key         string
	FileName    string
	ContentType string
	SizeBytes   int64
}

func (s Source) GCSURI() string {
	if s.Bucket == "" || s.Key == "" {
		return ""
	}
	return "gs://" + s.Bucket + "/" + strings.TrimLeft(s.Key, "/")
}

type Parser interface {
	// Name is the parser's content kind; the cost guard keys limits on it.
	Name() string
	// Kinds lists the lower-case extensions (no dot) the parser accepts.
	Kinds() []string
	Parse(ctx context.Context, path string, src Source) ([]evidence.ParsedUnit, error)
}

type Registry struct {
	mu    sync.RWMutex
	byExt map[string]Parser
}

func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{byExt: map[string]Parser{}}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// Register adds p for each of its kinds; a later registration for the same
// extension replaces the earlier one.
func (r *Registry) Register(p Parser) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range p.Kinds() {
		r.byExt[normalizeExt(k)] = p
	}
}

func (r *Registry) Route(ext string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byExt[normalizeExt(ext)]
	return p, ok
}

func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
