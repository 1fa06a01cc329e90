package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerFallsBackToNoop(t *testing.T) {
	if Logger(context.Background()) != noopLogger {
		t.Fatalf("expected noop logger for empty context")
	}
}

func TestLoggerOrPrefersInjectedLogger(t *testing.T) {
	fallback := zap.NewExample()
	injected := zap.NewExample().Named("request")

	if got := LoggerOr(context.Background(), fallback); got != fallback {
		t.Fatalf("expected fallback logger without injection")
	}
	ctx := WithLogger(context.Background(), injected)
	if got := LoggerOr(ctx, fallback); got != injected {
		t.Fatalf("expected injected logger")
	}
}

func TestTraceRoundTrip(t *testing.T) {
	ctx := WithTrace(context.Background(), TraceInfo{TraceID: "abc", Sampled: true})
	info, ok := Trace(ctx)
	if !ok || info.TraceID != "abc" || !info.Sampled {
		t.Fatalf("unexpected trace info: %+v ok=%v", info, ok)
	}
	if _, ok := Trace(context.Background()); ok {
		t.Fatalf("expected no trace on empty context")
	}
}
