package http

import (
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/evidence-backend/internal/http/handlers"
	"github.com/yungbote/evidence-backend/internal/observability"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

func TestRouterOpsEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := observability.NewMetrics()
	r := NewRouter(RouterConfig{
		ServiceName:   "evidence-test",
		Log:           logger.Nop(),
		Metrics:       m,
		HealthHandler: httpH.NewHealthHandler(nil),
	})

	req := httptest.NewRequest(nethttp.MethodGet, "/healthz", nil)
	req.Header.Set("X-Trace-Id", "trace-abc")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("healthz: want=200 got=%d", rec.Code)
	}
	if got := rec.Header().Get("X-Trace-Id"); got != "trace-abc" {
		t.Fatalf("trace header: want=trace-abc got=%q", got)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/metrics", nil))
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("metrics: want=200 got=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "evidence_api_requests_total") {
		t.Fatalf("metrics body missing api counter:\n%s", rec.Body.String())
	}

	req = httptest.NewRequest(nethttp.MethodGet, "/v1/nothing", nil)
	req.Header.Set("X-Trace-Id", "trace-404")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != nethttp.StatusNotFound {
		t.Fatalf("unknown route: want=404 got=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"trace_id":"trace-404"`) {
		t.Fatalf("error body should echo trace id: %s", rec.Body.String())
	}
}

func TestRouterSkipsUnconfiguredHandlers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(RouterConfig{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodPost, "/v1/ingest", strings.NewReader("{}")))
	if rec.Code != nethttp.StatusNotFound {
		t.Fatalf("ingest without handler: want=404 got=%d", rec.Code)
	}
}
