package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpanRecordsAttributesAndEvents(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	p := NewWithTracerProvider(tp, "test")

	ctx, span := p.StartSpan(context.Background(), "workflow.run", RunIDKey.String("run-1"))
	AddEvent(ctx, "spec.loaded")
	SetError(ctx, errors.New("engine exited"))
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "workflow.run" {
		t.Errorf("Expected span name workflow.run, got %s", s.Name())
	}
	if s.Status().Code != codes.Error {
		t.Errorf("Expected error status, got %v", s.Status().Code)
	}

	found := false
	for _, attr := range s.Attributes() {
		if attr.Key == RunIDKey && attr.Value.AsString() == "run-1" {
			found = true
		}
	}
	if !found {
		t.Error("Expected run id attribute on span")
	}

	var names []string
	for _, e := range s.Events() {
		names = append(names, e.Name)
	}
	if len(names) < 1 || names[0] != "spec.loaded" {
		t.Errorf("Expected spec.loaded event first, got %v", names)
	}
}

func TestNilProviderIsSafe(t *testing.T) {
	var p *Provider
	ctx, span := p.StartSpan(context.Background(), "noop")
	span.End()
	AddEvent(ctx, "ignored")
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected nil error from nil provider, got %v", err)
	}
}

func TestInitTracerDisabled(t *testing.T) {
	p, err := InitTracer(context.Background(), Config{ServiceName: "wfrunner"})
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	_, span := p.StartSpan(context.Background(), "local")
	span.End()
	if err := p.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
