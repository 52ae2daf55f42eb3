package tracer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"pplx-mcp/internal/infra/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())

	if _, ok := otel.GetTracerProvider().(noop.TracerProvider); !ok {
		t.Errorf("expected noop provider, got %T", otel.GetTracerProvider())
	}
}

func TestSetupNoopExporters(t *testing.T) {
	for _, exp := range []string{"noop", ""} {
		shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: exp})
		if err != nil {
			t.Fatalf("Setup(%q): %v", exp, err)
		}
		if _, ok := otel.GetTracerProvider().(noop.TracerProvider); !ok {
			t.Errorf("exporter %q: expected noop provider, got %T", exp, otel.GetTracerProvider())
		}
		_ = shutdown(context.Background())
	}
}

func TestSetupStdoutWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "stdout"},
		WithWriter(&buf), WithService("pplx-mcp-test", "9.9.9"))
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	_, span := StartSpan(context.Background(), "perplexity.search")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "perplexity.search") {
		t.Errorf("exported spans should name the span, got: %s", out)
	}
	if !strings.Contains(out, "pplx-mcp-test") || !strings.Contains(out, "9.9.9") {
		t.Errorf("exported spans should carry the service resource, got: %s", out)
	}
}

func TestNewExporter(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.TracerConfig
		wantNil bool
		wantErr bool
	}{
		{"disabled ignores exporter", config.TracerConfig{Enabled: false, Exporter: "bogus"}, true, false},
		{"noop", config.TracerConfig{Enabled: true, Exporter: "noop"}, true, false},
		{"empty", config.TracerConfig{Enabled: true}, true, false},
		{"stdout", config.TracerConfig{Enabled: true, Exporter: "stdout"}, false, false},
		{"unknown", config.TracerConfig{Enabled: true, Exporter: "zipkin"}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp, err := newExporter(tt.cfg, &bytes.Buffer{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if (exp == nil) != tt.wantNil {
				t.Errorf("exporter = %v, wantNil %v", exp, tt.wantNil)
			}
		})
	}
}

func TestSetupUnsupportedExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "invalid"})
	if err == nil {
		t.Error("expected error for unsupported exporter")
	}
}

func TestSpanHelpers(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	defer otel.SetTracerProvider(noop.NewTracerProvider())

	_, ok := StartSpan(context.Background(), "ok-span")
	ok.SetAttributes(StringAttr("tool", "web_search"), IntAttr("max_tokens", 10), Float64Attr("temperature", 0.7))
	SetOK(ok)
	ok.End()

	_, bad := StartSpan(context.Background(), "bad-span")
	RecordError(bad, errors.New("boom"))
	bad.End()

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("ok-span status = %v", spans[0].Status().Code)
	}
	if len(spans[0].Attributes()) != 3 {
		t.Errorf("ok-span attributes = %v", spans[0].Attributes())
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "boom" {
		t.Errorf("bad-span status = %+v", spans[1].Status())
	}
}
