package observability

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/evidence-backend/internal/platform/envutil"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

// Metrics owns every collector the ingestion service exports. All methods
// are safe on a nil receiver so callers never branch on whether metrics are
// enabled.
type Metrics struct {
	registry *prometheus.Registry

	items              *prometheus.CounterVec
	stageSeconds       *prometheus.HistogramVec
	fallbackEmbeddings prometheus.Counter
	sagas              *prometheus.CounterVec
	compensations      *prometheus.CounterVec
	storeRetries       *prometheus.CounterVec
	vectorOpSeconds    *prometheus.HistogramVec
	apiRequests        *prometheus.CounterVec
	apiLatency         *prometheus.HistogramVec
	dbStats            *prometheus.GaugeVec
	redisUp            prometheus.Gauge
	redisPing          prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", true)
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide collectors once. It returns nil when metrics
// are disabled.
func Init(log *logger.Logger) *Metrics {
	initOnce.Do(func() {
		if !Enabled() {
			return
		}
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

// NewMetrics registers a fresh collector set on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_pipeline_items_total",
			Help: "Evidence items processed, by terminal status and reason.",
		}, []string{"status", "reason"}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evidence_pipeline_stage_seconds",
			Help:    "Time spent in each pipeline stage.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"stage"}),
		fallbackEmbeddings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evidence_fallback_embeddings_total",
			Help: "Units embedded with the deterministic fallback vector.",
		}),
		sagas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_saga_total",
			Help: "Cross-store operations, by operation and outcome.",
		}, []string{"operation", "status"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_saga_compensations_total",
			Help: "Compensation actions executed after a failed cross-store operation.",
		}, []string{"action", "result"}),
		storeRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_store_retries_total",
			Help: "Retried store calls, by store and operation.",
		}, []string{"store", "op"}),
		vectorOpSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evidence_vector_index_op_seconds",
			Help:    "Vector index call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "status"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evidence_api_requests_total",
			Help: "Ops API requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evidence_api_request_seconds",
			Help:    "Ops API request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		dbStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "evidence_db_pool",
			Help: "database/sql pool statistics for the metadata store.",
		}, []string{"stat"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evidence_redis_up",
			Help: "1 when the dedup cache answered its last ping.",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "evidence_redis_ping_seconds",
			Help: "Latency of the last dedup cache ping.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.items, m.stageSeconds, m.fallbackEmbeddings, m.sagas, m.compensations,
		m.storeRetries, m.vectorOpSeconds, m.apiRequests, m.apiLatency,
		m.dbStats, m.redisUp, m.redisPing,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// StartServer serves /metrics on a dedicated listener until ctx ends.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) IncItem(status, reason string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(status, reason).Inc()
}

func (m *Metrics) ObserveStage(stage string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageSeconds.WithLabelValues(stage).Observe(dur.Seconds())
}

func (m *Metrics) IncFallbackEmbedding() {
	if m == nil {
		return
	}
	m.fallbackEmbeddings.Inc()
}

func (m *Metrics) IncSaga(operation, status string) {
	if m == nil {
		return
	}
	m.sagas.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) IncCompensation(action, result string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(action, result).Inc()
}

func (m *Metrics) IncStoreRetry(store, op string) {
	if m == nil {
		return
	}
	m.storeRetries.WithLabelValues(store, op).Inc()
}

func (m *Metrics) ObserveVectorOp(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.vectorOpSeconds.WithLabelValues(op, status).Observe(dur.Seconds())
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func scrapeInterval() time.Duration {
	return envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 15*time.Second)
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(scrapeInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.dbStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
				m.dbStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.dbStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.dbStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.dbStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *goredis.Client) {
	if m == nil || rdb == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(scrapeInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
