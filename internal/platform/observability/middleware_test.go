package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"finitefield.org/route-planner/internal/platform/requestctx"
)

func TestRequestLoggerRecordsRouteStatusAndUser(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	r := chi.NewRouter()
	r.Use(InjectLoggerMiddleware(logger))
	r.Use(RequestLoggerMiddleware)
	r.Get("/plans/{planID}", func(w http.ResponseWriter, req *http.Request) {
		NoteUser(req, "42")
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/plans/abc", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for 404, got %s", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["route"] != "/plans/{planID}" {
		t.Fatalf("expected route pattern, got %v", fields["route"])
	}
	if fields["user_id"] != "42" {
		t.Fatalf("expected user id 42, got %v", fields["user_id"])
	}
	if fields["status"] != int64(http.StatusNotFound) {
		t.Fatalf("unexpected status field %v", fields["status"])
	}
}

func TestRecoveryMiddlewareWritesJSON(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestSanitizeStringDropsControlCharacters(t *testing.T) {
	if got := SanitizeAddress("Main St\r\nInjected"); got != "Main StInjected" {
		t.Fatalf("unexpected sanitized value %q", got)
	}
}

func TestEventLoggerAddsRequestUser(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	events := EventLogger(zap.New(core).Named("audit"))

	ctx := requestctx.WithUserID(context.Background(), "42")
	events(ctx, "plan.viewed", map[string]any{"plan_id": "p1"})
	events(ctx, "auth.logout", map[string]any{"user_id": "7"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	first := entries[0].ContextMap()
	if first["user_id"] != "42" || first["plan_id"] != "p1" || first["event"] != "plan.viewed" {
		t.Fatalf("unexpected fields %v", first)
	}
	if got := entries[1].ContextMap()["user_id"]; got != "7" {
		t.Fatalf("explicit user_id should win, got %v", got)
	}
}
