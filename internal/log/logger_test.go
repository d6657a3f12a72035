package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{Level: slog.LevelDebug, Component: component, JSON: true, Output: buf})
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, ComponentMachine)
	logger.Info("hello")
	logger.WithComponent(ComponentStorage).Info("switched")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0][FieldComponent] != ComponentMachine {
		t.Errorf("first line component = %v", lines[0][FieldComponent])
	}
	if lines[1][FieldComponent] != ComponentStorage {
		t.Errorf("second line component = %v", lines[1][FieldComponent])
	}
	if strings.Count(buf.String(), `"component"`) != 2 {
		t.Errorf("component attribute repeated: %s", buf.String())
	}
}

func TestLogFieldsToSliceSorted(t *testing.T) {
	fields := NewFields().
		WithOperation(OpDispense).
		WithMachineEvent("gumball_dispensed", "red", 5, 20).
		WithError(errors.New("boom"))

	slice := fields.ToSlice()
	if len(slice) != 2*len(fields) {
		t.Fatalf("unexpected slice length %d", len(slice))
	}
	var keys []string
	for i := 0; i < len(slice); i += 2 {
		keys = append(keys, slice[i].(string))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
	if fields[FieldItem] != "red" || fields[FieldBalanceCents] != int64(20) {
		t.Errorf("machine fields missing: %v", fields)
	}
}

func TestMiddlewareInjectsLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, ComponentHTTP)

	handler := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "inside")
		}),
	))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/balance", nil))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0][FieldRequestID] != "req-1" {
		t.Fatalf("expected request id in log, got %s", buf.String())
	}
}

func TestFromContextDefault(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Fatalf("expected fallback logger, got %+v", l)
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf, ComponentHTTP))
	req := httptest.NewRequest(http.MethodPost, "/coins", nil)

	sl.LogHTTPEnd(context.Background(), req, 200, 3, "1.2.3.4")
	sl.LogHTTPEnd(context.Background(), req, 429, 1, "1.2.3.4")
	sl.LogHTTPEnd(context.Background(), req, 500, 1, "1.2.3.4")
	sl.LogMachineEvent(context.Background(), OpInsertCoin, "coin_rejected", "penny", 0, 0, "unknown coin: penny")

	lines := decodeLines(t, &buf)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	for i, want := range []string{"INFO", "WARN", "ERROR", "INFO"} {
		if lines[i]["level"] != want {
			t.Errorf("line %d level = %v, want %s", i, lines[i]["level"], want)
		}
	}
	if lines[3][FieldReason] != "unknown coin: penny" {
		t.Errorf("reason missing: %v", lines[3])
	}
}
