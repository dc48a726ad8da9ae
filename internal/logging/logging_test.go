package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNewJSONWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json", Writer: &buf})

	l.With(String("vehicle", "veh-1")).Info(context.Background(), "impact",
		Float("angle_deg", 1.5),
		Duration("flight", 2*time.Second),
		Err(errors.New("boom")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "impact" || rec["vehicle"] != "veh-1" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["angle_deg"].(float64) != 1.5 {
		t.Fatalf("angle_deg = %v, want 1.5", rec["angle_deg"])
	}
	if rec["error"] != "boom" {
		t.Fatalf("error = %v, want boom", rec["error"])
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Writer: &buf})
	l.Debug(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at info level: %q", buf.String())
	}
}

func TestEnsureRunIDIsStable(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	if id == "" {
		t.Fatalf("expected run id")
	}
	ctx2, id2 := EnsureRunID(ctx)
	if id2 != id || RunIDFromContext(ctx2) != id {
		t.Fatalf("run id changed: %q -> %q", id, id2)
	}
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx, id := EnsureRequestID(ctx)
	if id != "req-1" {
		t.Fatalf("EnsureRequestID replaced existing id: %q", id)
	}
	_, l := WithRequestLogger(ctx, nil)
	if l == nil {
		t.Fatalf("expected logger")
	}
	if LoggerFromContext(ContextWithLogger(ctx, l)) == nil {
		t.Fatalf("logger not stored on context")
	}
}
