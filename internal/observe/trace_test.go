package observe

import (
	"bytes"
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTracer installs an in-memory tracer provider as the global one for the
// duration of the test.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
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
	useTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("without span = %q, want empty", got)
	}

	ctx, span := StartSpan(context.Background(), "gateway.decision")
	defer span.End()
	cid := CorrelationID(ctx)
	if _, err := hex.DecodeString(cid); err != nil || len(cid) != 32 {
		t.Errorf("with span = %q, want 32 hex chars", cid)
	}

	ctx2, span2 := StartSpan(context.Background(), "gateway.decision")
	defer span2.End()
	if CorrelationID(ctx2) == cid {
		t.Error("two root spans share a trace id")
	}
}

func TestStartSpan_ChildSharesTrace(t *testing.T) {
	exp := useTracer(t)

	ctx, parent := StartSpan(context.Background(), "HTTP POST /v1/sessions")
	childCtx, child := StartSpan(ctx, "gateway.stt")
	child.End()
	parent.End()

	if CorrelationID(childCtx) != CorrelationID(ctx) {
		t.Error("child span started a new trace")
	}
	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if spans[0].Name != "gateway.stt" || spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Errorf("child = %q with parent %v", spans[0].Name, spans[0].Parent.SpanID())
	}
}

func TestWithTrace(t *testing.T) {
	useTracer(t)
	spanCtx, span := StartSpan(context.Background(), "ws")
	defer span.End()

	tests := []struct {
		name     string
		ctx      context.Context
		wantAttr bool
	}{
		{name: "active span", ctx: spanCtx, wantAttr: true},
		{name: "no span", ctx: context.Background(), wantAttr: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			base := slog.New(slog.NewTextHandler(&buf, nil)).With("session_id", "s-1")

			WithTrace(tt.ctx, base).Info("answer recorded")

			out := buf.String()
			if !strings.Contains(out, "session_id=s-1") {
				t.Errorf("base attributes lost: %s", out)
			}
			if got := strings.Contains(out, "trace_id=") && strings.Contains(out, "span_id="); got != tt.wantAttr {
				t.Errorf("trace attributes present = %v, want %v: %s", got, tt.wantAttr, out)
			}
		})
	}
}

func TestLogger_UsesDefault(t *testing.T) {
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	Logger(context.Background()).Info("ready")
	if !strings.Contains(buf.String(), "msg=ready") {
		t.Errorf("default logger not used: %q", buf.String())
	}
}
