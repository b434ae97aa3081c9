// Package observability wires OpenTelemetry tracing to an OTLP collector.
// Spans from the embedding pipeline are emitted through Genkit's tracer
// provider, so the exporter is registered there rather than on a global
// provider of our own.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/neo-2022/regart-memory/internal/config"
)

// ServiceName tags exported spans in the APM backend.
const ServiceName = "regart-memory"

// noopShutdown is returned when tracing is disabled or unavailable.
func noopShutdown(context.Context) error { return nil }

// Setup registers an OTLP HTTP exporter when tracing is enabled. The
// returned shutdown function flushes pending spans. Exporter failures
// disable tracing with a warning; they never fail startup.
func Setup(ctx context.Context, cfg config.TracingConfig, logger *slog.Logger) (shutdown func(context.Context) error, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	endpoint := cfg.OTLPEndpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	// Genkit's tracer provider reads the service identity from the
	// standard OTEL environment variables.
	_ = os.Setenv("OTEL_SERVICE_NAME", ServiceName)
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("otlp exporter unavailable, tracing disabled", "endpoint", endpoint, "error", err)
		return noopShutdown, nil
	}

	tracing.TracerProvider().RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter))
	logger.Debug("tracing enabled", "endpoint", endpoint, "environment", cfg.Environment)

	return tracing.TracerProvider().Shutdown, nil
}
