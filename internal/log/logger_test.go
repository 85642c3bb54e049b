package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/on-cure/oncare/internal/errors"
)

func newJSONLogger(buf *bytes.Buffer, level Level) *Logger {
	return New(Config{Level: level, Format: FormatJSON, Output: buf})
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v\nOutput: %s", err, buf.String())
	}
	return entry
}

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	if buf.Len() > 0 {
		t.Errorf("expected no output for debug/info at warn level, got: %s", buf.String())
	}

	logger.Warn("warn message")
	if buf.Len() == 0 {
		t.Error("expected output for warn message")
	}
}

func TestServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Format: FormatJSON, Output: &buf, ServiceName: "oncare", ServiceVersion: "1.2.3"})

	logger.Info("hello", "key", 42)

	entry := decodeEntry(t, &buf)
	if entry["service"] != "oncare" || entry["version"] != "1.2.3" {
		t.Errorf("missing service attributes: %v", entry)
	}
	if entry["key"] != float64(42) {
		t.Errorf("key = %v, want 42", entry["key"])
	}
}

func TestTextFormatOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Format: FormatText, Output: &buf})

	logger.WithComponent("session").Info("state changed", "state", "authenticated")

	output := buf.String()
	for _, want := range []string{"state changed", "component=session", "state=authenticated", "INFO"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got: %s", want, output)
		}
	}
}

func TestWithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelInfo)

	logger.WithGroup("api").Info("request", "path", "/api/auth/session")

	entry := decodeEntry(t, &buf)
	group, ok := entry["api"].(map[string]any)
	if !ok {
		t.Fatalf("expected api group, got %v", entry)
	}
	if group["path"] != "/api/auth/session" {
		t.Errorf("path = %v", group["path"])
	}
}

func TestWithError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  string
		wantCause bool
	}{
		{
			name: "plain error",
			err:  fmt.Errorf("boom"),
		},
		{
			name:      "coded error",
			err:       errors.Unauthorized(fmt.Errorf("401")),
			wantCode:  string(errors.ErrCodeUnauthorized),
			wantCause: true,
		},
		{
			name:     "wrapped coded error",
			err:      fmt.Errorf("login: %w", errors.NotAuthenticated()),
			wantCode: string(errors.ErrCodeNotAuthenticated),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			newJSONLogger(&buf, LevelInfo).WithError(tt.err).Info("failed")

			entry := decodeEntry(t, &buf)
			if _, ok := entry["error"]; !ok {
				t.Error("expected error attribute")
			}
			code, _ := entry["error_code"].(string)
			if code != tt.wantCode {
				t.Errorf("error_code = %q, want %q", code, tt.wantCode)
			}
			if _, ok := entry["cause"]; ok != tt.wantCause {
				t.Errorf("cause present = %v, want %v", ok, tt.wantCause)
			}
		})
	}
}

func TestWithErrorNil(t *testing.T) {
	logger := Discard()
	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the receiver")
	}
}

func TestWithContextTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelInfo)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.WithContext(ctx).Info("traced")
	entry := decodeEntry(t, &buf)
	if entry["trace_id"] != traceID.String() || entry["span_id"] != spanID.String() {
		t.Errorf("trace attributes missing: %v", entry)
	}

	if logger.WithContext(context.Background()) != logger {
		t.Error("WithContext without a span should return the receiver")
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := newJSONLogger(&buf, LevelInfo)

	logger.LogError(context.Background(), "logout failed", nil)
	if buf.Len() != 0 {
		t.Fatalf("nil error should not log, got %s", buf.String())
	}

	err := errors.NetworkFailure("http://localhost:8080", fmt.Errorf("connection refused"))
	logger.LogError(context.Background(), "logout failed", err)

	entry := decodeEntry(t, &buf)
	if entry["msg"] != "logout failed" || entry["level"] != "ERROR" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["error_code"] != string(errors.ErrCodeNetwork) {
		t.Errorf("error_code = %v", entry["error_code"])
	}
	if _, ok := entry["suggestions"]; !ok {
		t.Error("expected suggestions")
	}
}
