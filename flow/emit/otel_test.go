package emit

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value.AsInterface()
	}
	return m
}

func newTestTracerProvider() (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	return tp, exporter
}

func TestOTelEmitterEmitCreatesSpan(t *testing.T) {
	tp, exporter := newTestTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(tp.Tracer("test"))
	emitter.Emit(Event{
		Type:     NodeStart,
		FlowID:   "flow-001",
		NodeID:   "fetch",
		NodeType: "tool",
		Data:     map[string]any{"tokens": 150},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	span := spans[0]
	if span.Name != "node-start" {
		t.Errorf("span name = %q, want node-start", span.Name)
	}

	attrs := attributeMap(span.Attributes)
	if attrs["flowengine.flow_id"] != "flow-001" {
		t.Errorf("flow_id attribute = %v, want flow-001", attrs["flowengine.flow_id"])
	}
	if attrs["flowengine.node_id"] != "fetch" {
		t.Errorf("node_id attribute = %v, want fetch", attrs["flowengine.node_id"])
	}
	if attrs["flowengine.data.tokens"] != int64(150) {
		t.Errorf("data.tokens attribute = %v, want 150", attrs["flowengine.data.tokens"])
	}
}

func TestOTelEmitterRecordsError(t *testing.T) {
	tp, exporter := newTestTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(tp.Tracer("test"))
	emitter.Emit(Event{Type: NodeError, NodeID: "fetch", Err: errors.New("boom")})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("status code = %v, want Error", spans[0].Status.Code)
	}
	if len(spans[0].Events) == 0 {
		t.Error("expected recorded error event on span")
	}
}

func TestOTelEmitterEmitBatch(t *testing.T) {
	tp, exporter := newTestTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	emitter := NewOTelEmitter(tp.Tracer("test"))
	events := []Event{
		{Type: NodeStart, NodeID: "a"},
		{Type: NodeComplete, NodeID: "a"},
	}
	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch: %v", err)
	}
	if len(exporter.GetSpans()) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(exporter.GetSpans()))
	}
}

func TestOTelEmitterFlushNoopWithoutSDKProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	otel.SetTracerProvider(otel.GetTracerProvider())
	emitter := NewOTelEmitter(otel.Tracer("test"))
	if err := emitter.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}
