package observe

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// withTestTracer swaps in an in-memory tracer provider for the duration of
// the test and returns its exporter.
func withTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID outside a span = %q, want empty", got)
	}

	withTestTracer(t)
	ctx, span := StartSpan(context.Background(), "turn")
	defer span.End()

	cid := CorrelationID(ctx)
	if len(cid) != 32 {
		t.Fatalf("correlation ID %q, want 32 hex chars", cid)
	}
	for _, c := range cid {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("correlation ID %q contains non-hex %q", cid, c)
		}
	}
}

func TestCorrelationIDDistinctPerSpan(t *testing.T) {
	withTestTracer(t)

	seen := make(map[string]struct{}, 64)
	for range 64 {
		ctx, span := StartSpan(context.Background(), "turn")
		cid := CorrelationID(ctx)
		span.End()
		if _, dup := seen[cid]; dup {
			t.Fatalf("correlation ID %s repeated", cid)
		}
		seen[cid] = struct{}{}
	}
}

func TestStartSpanRecordsName(t *testing.T) {
	exp := withTestTracer(t)

	_, span := StartSpan(context.Background(), "stt.transcribe")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "stt.transcribe" {
		t.Errorf("span name = %q, want stt.transcribe", spans[0].Name)
	}
}

func TestLoggerTagsSpanContext(t *testing.T) {
	withTestTracer(t)

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	// Outside a span the logger adds nothing.
	Logger(context.Background()).Info("idle")
	if bytes.Contains(buf.Bytes(), []byte("trace_id")) {
		t.Errorf("untraced log carries trace_id: %s", buf.String())
	}

	buf.Reset()
	ctx, span := StartSpan(context.Background(), "turn")
	defer span.End()
	Logger(ctx).Info("turn done")

	if !bytes.Contains(buf.Bytes(), []byte("trace_id=")) {
		t.Errorf("traced log missing trace_id: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("span_id=")) {
		t.Errorf("traced log missing span_id: %s", buf.String())
	}
}
