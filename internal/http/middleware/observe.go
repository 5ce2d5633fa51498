package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/evidence-backend/internal/observability"
	"github.com/yungbote/evidence-backend/internal/platform/ctxutil"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

// Route params worth carrying into the access log.
var loggedParams = []string{"case_id", "record_id", "tx_id"}

// Observe times each request once and feeds both the API metrics and the
// access log. Either sink may be nil.
func Observe(log *logger.Logger, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		if m != nil {
			m.ObserveAPI(c.Request.Method, route, strconv.Itoa(status), elapsed)
		}
		if log == nil {
			return
		}

		kv := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
		}
		if route == "unknown" {
			kv = append(kv, "path", c.Request.URL.Path)
		}
		for _, p := range loggedParams {
			if v := c.Param(p); v != "" {
				kv = append(kv, p, v)
			}
		}
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			kv = append(kv, "trace_id", td.TraceID)
		}

		switch {
		case status >= 500:
			log.Error("request failed", kv...)
		case status >= 400:
			log.Warn("request rejected", kv...)
		case route == "/healthz" || route == "/readyz" || route == "/metrics":
			log.Debug("probe", kv...)
		default:
			log.Info("request served", kv...)
		}
	}
}
