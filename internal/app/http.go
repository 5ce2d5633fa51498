package app

import (
	"context"

	"gorm.io/gorm"

	httpx "github.com/yungbote/evidence-backend/internal/http"
	httpH "github.com/yungbote/evidence-backend/internal/http/handlers"
	"github.com/yungbote/evidence-backend/internal/observability"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

type Handlers struct {
	Health      *httpH.HealthHandler
	Transaction *httpH.TransactionHandler
	Case        *httpH.CaseHandler
	Ingest      *httpH.IngestHandler
	Search      *httpH.SearchHandler
}

func wireHandlers(log *logger.Logger, clients Clients, services Services) Handlers {
	log.Info("Wiring handlers...")
	checks := map[string]httpH.Check{
		"metadata": func(ctx context.Context) error { return pingDB(ctx, clients.Metadata.DB()) },
		"vector":   clients.Index.Ready,
	}
	if clients.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return clients.Redis.Ping(ctx).Err() }
	}
	return Handlers{
		Health:      httpH.NewHealthHandler(checks),
		Transaction: httpH.NewTransactionHandler(services.Consistency),
		Case:        httpH.NewCaseHandler(log, services.Consistency),
		Ingest:      httpH.NewIngestHandler(services.Batch),
		Search:      httpH.NewSearchHandler(clients.Index, services.Embedder),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers) *httpx.Server {
	return httpx.NewServer(cfg.HTTPAddr, httpx.RouterConfig{
		ServiceName:        cfg.ServiceName,
		Log:                log,
		Metrics:            observability.Current(),
		HealthHandler:      handlers.Health,
		TransactionHandler: handlers.Transaction,
		CaseHandler:        handlers.Case,
		IngestHandler:      handlers.Ingest,
		SearchHandler:      handlers.Search,
	})
}

func pingDB(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
