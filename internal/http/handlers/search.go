package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/http/response"
	"github.com/yungbote/evidence-backend/internal/platform/qdrant"
)

const (
	defaultTopK = 10
	maxTopK     = 100
)

// Searcher is satisfied by *qdrant.Index.
type Searcher interface {
	Search(ctx context.Context, caseID string, vector []float32, topK int, filter map[string]any) ([]evidence.Match, error)
}

type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, bool)
}

type SearchHandler struct {
	index    Searcher
	embedder QueryEmbedder
}

func NewSearchHandler(index Searcher, embedder QueryEmbedder) *SearchHandler {
	return &SearchHandler{index: index, embedder: embedder}
}

// GET /v1/cases/:case_id/search?q=...&top_k=&record_id=&kind=&sender=&tag=&from=&to=&min_confidence=
func (h *SearchHandler) Search(c *gin.Context) {
	caseID := strings.TrimSpace(c.Param("case_id"))
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_query", errors.New("q is required"))
		return
	}
	topK := defaultTopK
	if raw := c.Query("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_top_k", errors.New("top_k must be a positive integer"))
			return
		}
		topK = min(n, maxTopK)
	}
	filter, err := parseEntryFilter(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_filter", err)
		return
	}

	vec, fallback := h.embedder.Embed(c.Request.Context(), q)
	matches, err := h.index.Search(c.Request.Context(), caseID, vec, topK, qdrant.EntryFilterMap(filter))
	if err != nil {
		response.RespondKind(c, err)
		return
	}
	response.RespondOK(c, gin.H{"matches": matches, "fallback_query": fallback})
}

func parseEntryFilter(c *gin.Context) (evidence.EntryFilter, error) {
	f := evidence.EntryFilter{
		RecordID: c.Query("record_id"),
		Kind:     c.Query("kind"),
		Sender:   c.Query("sender"),
		Tags:     c.QueryArray("tag"),
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, errors.New(p.name + " must be RFC3339")
		}
		*p.dst = &t
	}
	if raw := c.Query("min_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			return f, errors.New("min_confidence must be within [0,1]")
		}
		f.MinConfidence = v
	}
	f.FallbackOnly, _ = strconv.ParseBool(c.Query("fallback_only"))
	return f, nil
}
