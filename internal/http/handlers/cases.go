package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/evidence-backend/internal/consistency"
	evrepo "github.com/yungbote/evidence-backend/internal/data/repos/evidence"
	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/http/response"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

// CaseStore is the multi-store surface operators may drive directly.
// *consistency.Manager implements it.
type CaseStore interface {
	ClearCaseData(ctx context.Context, caseID string, deleteCollection bool) (consistency.ClearResult, error)
	DeleteWithIndex(ctx context.Context, caseID string, recordID uuid.UUID) (consistency.DeleteResult, error)
	Reindex(ctx context.Context, recordID uuid.UUID) (*evidence.Record, error)
}

type CaseHandler struct {
	log   *logger.Logger
	store CaseStore
}

func NewCaseHandler(log *logger.Logger, store CaseStore) *CaseHandler {
	return &CaseHandler{log: log.With("handler", "CaseHandler"), store: store}
}

// DELETE /v1/cases/:case_id?keep_collection=true
func (h *CaseHandler) ClearCase(c *gin.Context) {
	caseID := strings.TrimSpace(c.Param("case_id"))
	if caseID == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_case_id", errors.New("case id required"))
		return
	}
	keep, _ := strconv.ParseBool(c.DefaultQuery("keep_collection", "false"))

	res, err := h.store.ClearCaseData(c.Request.Context(), caseID, !keep)
	if err != nil {
		h.log.Warn("clear case failed", "case_id", caseID, "error", err)
		// Partial clears still report what was removed.
		c.JSON(http.StatusMultiStatus, gin.H{"result": res, "error": err.Error()})
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}

// DELETE /v1/cases/:case_id/records/:record_id
func (h *CaseHandler) DeleteRecord(c *gin.Context) {
	caseID := strings.TrimSpace(c.Param("case_id"))
	recordID, err := uuid.Parse(c.Param("record_id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_record_id", err)
		return
	}
	res, err := h.store.DeleteWithIndex(c.Request.Context(), caseID, recordID)
	if err != nil {
		switch {
		case errors.Is(err, evrepo.ErrNotFound), errors.Is(err, consistency.ErrCaseMismatch):
			response.RespondError(c, http.StatusNotFound, "record_not_found", err)
		default:
			response.RespondKind(c, err)
		}
		return
	}
	response.RespondOK(c, gin.H{"result": res})
}

// POST /v1/records/:record_id/reindex
func (h *CaseHandler) Reindex(c *gin.Context) {
	recordID, err := uuid.Parse(c.Param("record_id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_record_id", err)
		return
	}
	rec, err := h.store.Reindex(c.Request.Context(), recordID)
	if err != nil {
		if errors.Is(err, evrepo.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "record_not_found", err)
			return
		}
		response.RespondKind(c, err)
		return
	}
	response.RespondOK(c, gin.H{"record": rec})
}
