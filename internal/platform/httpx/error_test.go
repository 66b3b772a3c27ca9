package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"finitefield.org/route-planner/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc"})
	rr := httptest.NewRecorder()

	WriteError(ctx, rr, NewError("too_few_addresses", "At least two addresses are required.", http.StatusBadRequest))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "At least two addresses are required." {
		t.Fatalf("unexpected error message %v", body["error"])
	}
	if body["code"] != "too_few_addresses" {
		t.Fatalf("unexpected code %v", body["code"])
	}
	if body["trace_id"] != "abc" {
		t.Fatalf("expected trace id from context, got %v", body["trace_id"])
	}
}

func TestNewErrorSanitizesMessage(t *testing.T) {
	err := NewError("x", "line one\nline two", 0)
	if err.Status != http.StatusInternalServerError {
		t.Fatalf("expected default status 500, got %d", err.Status)
	}
	if strings.Contains(err.Message, "\n") {
		t.Fatalf("expected newlines stripped, got %q", err.Message)
	}
}

func TestWithDetailsCopiesAndMerges(t *testing.T) {
	details := map[string]any{"limit_per_minute": 5}
	err := NewError("rate_limited", "Slow down.", http.StatusTooManyRequests).WithDetails(details)
	details["limit_per_minute"] = 99

	payload := err.Payload(context.Background())
	if payload["limit_per_minute"] != 5 {
		t.Fatalf("expected copied detail, got %v", payload["limit_per_minute"])
	}
	if payload["code"] != "rate_limited" {
		t.Fatalf("unexpected code %v", payload["code"])
	}
}
