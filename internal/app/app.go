package app

import (
	"context"
	"fmt"
	"os"
	"time"

	httpx "github.com/yungbote/evidence-backend/internal/http"
	"github.com/yungbote/evidence-backend/internal/observability"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	Server   *httpx.Server

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
	done         chan struct{}
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})
	observability.Init(log)

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	reposet := wireRepos(clients.Metadata.DB(), log)
	serviceset, err := wireServices(log, cfg, clients, reposet)
	if err != nil {
		serviceset.Close()
		clients.Close()
		log.Sync()
		return nil, err
	}
	handlerset := wireHandlers(log, clients, serviceset)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Server:       wireServer(log, cfg, handlerset),
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background loops: the storage-event consumer and the
// metrics collectors.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})

	m := observability.Current()
	m.StartDBCollector(ctx, a.Log, a.Clients.Metadata.DB())
	m.StartRedisCollector(ctx, a.Log, a.Clients.Redis)
	m.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)

	consumer := a.Services.Consumer
	go func() {
		defer close(a.done)
		if consumer == nil {
			return
		}
		if err := consumer.Start(ctx); err != nil {
			a.Log.Error("storage event consumer stopped", "error", err)
		}
	}()
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Ops server listening", "addr", a.Server.Addr())
	return a.Server.Run()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Log.Warn("ops server shutdown", "error", err)
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
		select {
		case <-a.done:
		case <-shutdownCtx.Done():
			a.Log.Warn("consumer did not stop before shutdown deadline")
		}
	}
	a.Services.Close()
	a.Clients.Close()
	if a.otelShutdown != nil {
		if err := a.otelShutdown(shutdownCtx); err != nil {
			a.Log.Warn("otel shutdown", "error", err)
		}
	}
	a.Log.Sync()
}
