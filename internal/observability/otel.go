package observability

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/evidence-backend/internal/platform/envutil"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

const instrumentationName = "github.com/yungbote/evidence-backend"

// OtelConfig names the service on exported spans. Exporter settings come
// from the standard OTEL_* variables.
type OtelConfig struct {
	ServiceName string
	Environment string
	Version     string
}

type exporterSettings struct {
	enabled     bool
	endpoint    string
	insecure    bool
	headers     map[string]string
	sampleRatio float64
}

func exporterSettingsFromEnv() exporterSettings {
	return exporterSettings{
		enabled:     envutil.Bool("OTEL_ENABLED", false),
		endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
		headers:     parseHeaders(envutil.List("OTEL_EXPORTER_OTLP_HEADERS", nil)),
		sampleRatio: clampRatio(envutil.Float("OTEL_SAMPLER_RATIO", 0.1)),
	}
}

// InitOTel installs the global tracer provider and returns its shutdown, or
// nil when tracing is disabled. Stage spans opened through Tracer() are
// no-ops until this runs.
func InitOTel(ctx context.Context, log *logger.Logger, cfg OtelConfig) func(context.Context) error {
	if log == nil {
		log = logger.Nop()
	}
	s := exporterSettingsFromEnv()
	if !s.enabled {
		return nil
	}

	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "evidence-ingestor"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(name),
		semconv.ServiceVersionKey.String(strings.TrimSpace(cfg.Version)),
		attribute.String("deployment.environment", strings.TrimSpace(cfg.Environment)),
	))
	if err != nil {
		log.Warn("otel resource incomplete", "error", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.sampleRatio))),
		sdktrace.WithResource(res),
	}
	if exp, err := newSpanExporter(ctx, s); err != nil {
		log.Warn("otel exporter unavailable; spans are sampled but dropped", "error", err)
	} else {
		opts = append(opts, sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(5*time.Second)))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	log.Info("otel tracing enabled", "service", name, "endpoint", s.endpoint, "sample_ratio", s.sampleRatio)
	return tp.Shutdown
}

// newSpanExporter ships to OTLP/HTTP when an endpoint is set and to stdout
// otherwise.
func newSpanExporter(ctx context.Context, s exporterSettings) (sdktrace.SpanExporter, error) {
	if s.endpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(s.endpoint)}
	if s.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(s.headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(s.headers))
	}
	return otlptracehttp.New(ctx, opts...)
}

func parseHeaders(pairs []string) map[string]string {
	var out map[string]string
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		if out == nil {
			out = map[string]string{}
		}
		out[k] = v
	}
	return out
}

func clampRatio(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// Tracer is the tracer every ingestion stage opens spans from.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
