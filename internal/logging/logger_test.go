package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/capitan"

	"github.com/linuxmatters/corti/internal/events"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"warn", "warn", slog.LevelWarn},
		{"warning", "warning", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "sections", 10)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(out, "msg=shown") || !strings.Contains(out, "sections=10") {
		t.Errorf("output = %q", out)
	}
}

func TestOpenLogFile(t *testing.T) {
	f, err := OpenLogFile("")
	if f != nil || err != nil {
		t.Fatalf("OpenLogFile(\"\") = %v, %v", f, err)
	}

	path := filepath.Join(t.TempDir(), "logs", "corti.log")
	f, err = OpenLogFile(path)
	if err != nil {
		t.Fatal(err)
	}
	NewLogger("info", f).Info("first")
	f.Close()

	f, err = OpenLogFile(path)
	if err != nil {
		t.Fatal(err)
	}
	NewLogger("info", f).Info("second")
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "first") || !strings.Contains(string(data), "second") {
		t.Errorf("log file not appended: %q", data)
	}
}

// syncBuffer guards a buffer written from capitan's delivery goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestBridgeLogsEvents(t *testing.T) {
	var buf syncBuffer
	stop := Bridge(NewLogger("info", &buf))
	defer stop()

	runID := "bridge-test-run"
	capitan.Error(context.Background(), events.StageFailed,
		events.RunIDKey.Field(runID),
		events.StageKey.Field("cochlea"),
		events.ErrorKey.Field("numerical instability"),
	)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), runID) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	out := buf.String()
	for _, want := range []string{"level=ERROR", string(events.StageFailed), "run=" + runID, "stage=cochlea"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q: %q", want, out)
		}
	}
}
