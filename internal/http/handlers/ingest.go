package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/http/response"
	"github.com/yungbote/evidence-backend/internal/ingestion/batch"
	"github.com/yungbote/evidence-backend/internal/ingestion/pipeline"
)

const maxIngestReferences = 500

// BatchRunner is satisfied by *batch.Driver.
type BatchRunner interface {
	Run(ctx context.Context, refs []evidence.Reference) []pipeline.Result
}

type IngestRequest struct {
	References []evidence.Reference `json:"references"`
}

type IngestHandler struct {
	runner BatchRunner
}

func NewIngestHandler(runner BatchRunner) *IngestHandler {
	return &IngestHandler{runner: runner}
}

// POST /v1/ingest
//
// Runs the batch synchronously. Per-item failures are reported in the
// results, so the response is 200 whenever the request itself is valid.
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if len(req.References) == 0 {
		response.RespondError(c, http.StatusBadRequest, "no_references", errors.New("references must not be empty"))
		return
	}
	if len(req.References) > maxIngestReferences {
		response.RespondError(c, http.StatusBadRequest, "too_many_references",
			fmt.Errorf("at most %d references per request", maxIngestReferences))
		return
	}
	for i, ref := range req.References {
		if strings.TrimSpace(ref.Bucket) == "" || strings.TrimSpace(ref.Key) == "" {
			response.RespondError(c, http.StatusBadRequest, "invalid_reference",
				fmt.Errorf("references[%d]: bucket and key are required", i))
			return
		}
	}

	results := h.runner.Run(c.Request.Context(), req.References)
	response.RespondOK(c, gin.H{"results": results, "tally": batch.Tally(results)})
}
