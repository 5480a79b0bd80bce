package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/fanflow/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

// NewTracer exports spans over OTLP when enabled, and otherwise returns a tracer that
// records nothing. A failing exporter setup disables tracing instead of stopping startup.
// nolint:ireturn
func NewTracer(ctx context.Context, logger *slog.Logger, enabled bool, serviceName string) trace.Tracer {
	if !enabled {
		return otelhelper.NoopTracer()
	}

	tracer, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		logger.WarnContext(ctx, "Tracing disabled", "error", err)

		return otelhelper.NoopTracer()
	}

	return tracer
}
