package tracer

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"themeforge/pkg/config"
)

func TestSetupDisabledInstallsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())

	if _, ok := otel.GetTracerProvider().(noop.TracerProvider); !ok {
		t.Errorf("expected noop provider, got %T", otel.GetTracerProvider())
	}
}

func TestSetupExporters(t *testing.T) {
	for _, exporter := range []string{"stdout", "stderr", "noop", ""} {
		t.Run(exporter, func(t *testing.T) {
			shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: true, Exporter: exporter})
			if err != nil {
				t.Fatalf("Setup(%q): %v", exporter, err)
			}
			if err := shutdown(context.Background()); err != nil {
				t.Fatalf("shutdown: %v", err)
			}
		})
	}
	otel.SetTracerProvider(noop.NewTracerProvider())
}

func TestSetupUnsupportedExporter(t *testing.T) {
	if _, err := Setup(context.Background(), config.TracingConfig{Enabled: true, Exporter: "jaeger"}); err == nil {
		t.Fatal("expected error for unsupported exporter")
	}
}

func TestSpanHelpers(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.span",
		trace.WithAttributes(StringAttr("component", "test"), IntAttr("messages", 2)))
	defer span.End()

	if ctx == nil {
		t.Fatal("expected context")
	}
	RecordError(span, errors.New("boom"))
	SetOK(span)
}
