package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/requestctx"
)

func TestRecoveryMiddlewareWritesJSONError(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core)

	handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestRequestLoggerMiddlewareLogsStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	handler := InjectLoggerMiddleware(logger)(RequestLoggerMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/v1/checkout/shipping", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion log, got %d", len(entries))
	}
	if entries[0].Level != zap.WarnLevel {
		t.Fatalf("expected warn level for 4xx, got %s", entries[0].Level)
	}
	if status := entries[0].ContextMap()["status"]; status != int64(http.StatusUnprocessableEntity) {
		t.Fatalf("expected status field 422, got %v", status)
	}
}

func TestTraceMiddlewareStoresTraceInfo(t *testing.T) {
	var got requestctx.TraceInfo
	handler := TraceMiddleware("merch-prod")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.ProjectID != "merch-prod" {
		t.Fatalf("expected project id, got %+v", got)
	}
	if got.TraceID != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected trace id from header, got %s", got.TraceID)
	}
}

func TestParseCloudTraceContextRejectsGarbage(t *testing.T) {
	for _, header := range []string{"", "abc", "zz/1", "105445aa7843bc8bf206b12000100000/x"} {
		if _, ok := parseCloudTraceContext(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}

func TestEventLoggerLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := EventLogger(zap.New(core))

	log(context.Background(), "cart.persist_failed", map[string]any{"cartID": "u1"})
	log(context.Background(), "order.finalized", map[string]any{"orderNumber": "BM-1"})

	if logs.FilterMessage("cart.persist_failed").FilterField(zap.String("cartID", "u1")).Len() != 1 {
		t.Fatalf("expected failure event with fields")
	}
	if entry := logs.FilterMessage("cart.persist_failed").All()[0]; entry.Level != zap.WarnLevel {
		t.Fatalf("expected warn level, got %s", entry.Level)
	}
	if entry := logs.FilterMessage("order.finalized").All()[0]; entry.Level != zap.InfoLevel {
		t.Fatalf("expected info level, got %s", entry.Level)
	}
}
