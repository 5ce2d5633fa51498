package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/evidence-backend/internal/consistency"
	"github.com/yungbote/evidence-backend/internal/http/response"
)

const (
	defaultTxLimit = 50
	maxTxLimit     = 1000
)

type TransactionLog interface {
	Transactions(limit int) []consistency.Transaction
	Transaction(id string) (consistency.Transaction, bool)
}

type TransactionHandler struct {
	txs TransactionLog
}

func NewTransactionHandler(txs TransactionLog) *TransactionHandler {
	return &TransactionHandler{txs: txs}
}

// GET /v1/transactions?limit=N
func (h *TransactionHandler) List(c *gin.Context) {
	limit := defaultTxLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = min(n, maxTxLimit)
	}
	txs := h.txs.Transactions(limit)
	response.RespondOK(c, gin.H{"transactions": txs, "count": len(txs)})
}

// GET /v1/transactions/:tx_id
func (h *TransactionHandler) Get(c *gin.Context) {
	tx, ok := h.txs.Transaction(c.Param("tx_id"))
	if !ok {
		response.RespondError(c, http.StatusNotFound, "transaction_not_found", fmt.Errorf("transaction %q not in log", c.Param("tx_id")))
		return
	}
	response.RespondOK(c, gin.H{"transaction": tx})
}
