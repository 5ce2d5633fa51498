package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/evidence-backend/internal/platform/ctxutil"
)

const TraceHeader = "X-Trace-Id"

// TraceID tags every request with a trace id: the caller's X-Trace-Id, the
// active otel trace, or a fresh uuid, in that order. Pipeline jobs started
// from the request inherit it through ctxutil.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := resolveTraceID(c.Request.Context(), c.GetHeader(TraceHeader))
		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{TraceID: id}))
		c.Header(TraceHeader, id)
		c.Next()
	}
}

func resolveTraceID(ctx context.Context, header string) string {
	if h := strings.TrimSpace(header); h != "" {
		return h
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return uuid.NewString()
}
