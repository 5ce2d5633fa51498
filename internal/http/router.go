package http

import (
	"errors"
	nethttp "net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/evidence-backend/internal/http/handlers"
	httpMW "github.com/yungbote/evidence-backend/internal/http/middleware"
	"github.com/yungbote/evidence-backend/internal/http/response"
	"github.com/yungbote/evidence-backend/internal/observability"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

type RouterConfig struct {
	ServiceName string
	Log         *logger.Logger
	Metrics     *observability.Metrics

	HealthHandler      *httpH.HealthHandler
	TransactionHandler *httpH.TransactionHandler
	CaseHandler        *httpH.CaseHandler
	IngestHandler      *httpH.IngestHandler
	SearchHandler      *httpH.SearchHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.TraceID(), httpMW.Observe(cfg.Log, cfg.Metrics))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	v1 := r.Group("/v1")
	{
		if cfg.TransactionHandler != nil {
			v1.GET("/transactions", cfg.TransactionHandler.List)
			v1.GET("/transactions/:tx_id", cfg.TransactionHandler.Get)
		}

		if cfg.CaseHandler != nil {
			v1.DELETE("/cases/:case_id", cfg.CaseHandler.ClearCase)
			v1.DELETE("/cases/:case_id/records/:record_id", cfg.CaseHandler.DeleteRecord)
			v1.POST("/records/:record_id/reindex", cfg.CaseHandler.Reindex)
		}

		if cfg.IngestHandler != nil {
			v1.POST("/ingest", cfg.IngestHandler.Ingest)
		}

		if cfg.SearchHandler != nil {
			v1.GET("/cases/:case_id/search", cfg.SearchHandler.Search)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		response.RespondError(c, nethttp.StatusNotFound, "not_found", errors.New("route not found"))
	})
	return r
}
