package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// captureLogOutput captures log output for testing by temporarily
// redirecting the logger to write to a buffer
func captureLogOutput(f func()) string {
	var buf bytes.Buffer

	oldLogger := defaultLogger

	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	defaultLogger = slog.New(handler)

	f()

	defaultLogger = oldLogger

	return buf.String()
}

func TestGetLogger(t *testing.T) {
	logger := GetLogger()
	if logger == nil {
		t.Fatal("GetLogger() returned nil")
	}
}

func TestWithRunID(t *testing.T) {
	ctx := context.Background()
	ctx = WithRunID(ctx, "run-123")

	if got := GetRunID(ctx); got != "run-123" {
		t.Errorf("GetRunID() = %q, want %q", got, "run-123")
	}
}

func TestGetRunID(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{
			name: "context with run ID",
			ctx:  WithRunID(context.Background(), "abc"),
			want: "abc",
		},
		{
			name: "context without run ID",
			ctx:  context.Background(),
			want: "",
		},
		{
			name: "context with wrong value type",
			ctx:  context.WithValue(context.Background(), RunIDKey, 42),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetRunID(tt.ctx); got != tt.want {
				t.Errorf("GetRunID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoggerFromContext(t *testing.T) {
	output := captureLogOutput(func() {
		ctx := WithRunID(context.Background(), "run-xyz")
		LoggerFromContext(ctx).Info("hello")
	})

	if !strings.Contains(output, "run-xyz") {
		t.Errorf("expected run_id in output, got %q", output)
	}
}

func TestLoggingFunctions(t *testing.T) {
	tests := []struct {
		name    string
		logFunc func()
		wantMsg string
	}{
		{
			name:    "Debug",
			logFunc: func() { Debug("debug message", "key", "value") },
			wantMsg: "debug message",
		},
		{
			name:    "Info",
			logFunc: func() { Info("info message") },
			wantMsg: "info message",
		},
		{
			name:    "Warn",
			logFunc: func() { Warn("warn message") },
			wantMsg: "warn message",
		},
		{
			name:    "Error",
			logFunc: func() { Error("error message") },
			wantMsg: "error message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := captureLogOutput(tt.logFunc)
			if !strings.Contains(output, tt.wantMsg) {
				t.Errorf("expected %q in output, got %q", tt.wantMsg, output)
			}
		})
	}
}

func TestContextLoggingFunctions(t *testing.T) {
	ctx := WithRunID(context.Background(), "ctx-run")

	output := captureLogOutput(func() {
		InfoContext(ctx, "ctx info")
		WarnContext(ctx, "ctx warn")
		ErrorContext(ctx, "ctx error")
		DebugContext(ctx, "ctx debug")
	})

	for _, want := range []string{"ctx info", "ctx warn", "ctx error", "ctx debug", "ctx-run"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got %q", want, output)
		}
	}
}

func TestConfigFallback(t *testing.T) {
	output := captureLogOutput(func() {
		ConfigFallback("engine.version", "not-a-version", "latest")
	})

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(output)), &entry); err != nil {
		t.Fatalf("output not JSON: %v", err)
	}
	if entry["msg"] != "config_fallback" {
		t.Errorf("msg = %v, want config_fallback", entry["msg"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
	if entry["given"] != "not-a-version" || entry["used"] != "latest" {
		t.Errorf("unexpected fields: %v", entry)
	}
}

func TestEngineDownload(t *testing.T) {
	output := captureLogOutput(func() {
		EngineDownload("https://example.com/engine.zip", "v1.2.3", 2, "size", "10 MB")
	})

	for _, want := range []string{"engine_download", "v1.2.3", `"attempt":2`, "10 MB"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got %q", want, output)
		}
	}
}

func TestRunEvent(t *testing.T) {
	output := captureLogOutput(func() {
		RunEvent("finished", "run-1", 0, 1500*time.Millisecond)
	})

	for _, want := range []string{"run_event", "finished", `"duration_ms":1500`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got %q", want, output)
		}
	}
}

func TestProcessKill(t *testing.T) {
	t.Run("success is info", func(t *testing.T) {
		output := captureLogOutput(func() {
			ProcessKill("fabric-engine", 4242, nil)
		})
		if !strings.Contains(output, `"level":"INFO"`) {
			t.Errorf("expected INFO level, got %q", output)
		}
	})

	t.Run("failure is warn and non-fatal", func(t *testing.T) {
		output := captureLogOutput(func() {
			ProcessKill("fabric-engine", 4242, errors.New("operation not permitted"))
		})
		if !strings.Contains(output, `"level":"WARN"`) {
			t.Errorf("expected WARN level, got %q", output)
		}
		if !strings.Contains(output, "operation not permitted") {
			t.Errorf("expected error detail, got %q", output)
		}
	})
}
