package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mikanlink/pkg/config"
	"mikanlink/pkg/mikan"
)

func restoreDefault(t *testing.T) {
	prev := slog.Default()
	prevTrace := EnableTrace
	t.Cleanup(func() {
		slog.SetDefault(prev)
		EnableTrace = prevTrace
	})
}

func TestInit(t *testing.T) {
	restoreDefault(t)
	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "logs", "server.log")

	if err := os.MkdirAll(filepath.Dir(serverLog), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(serverLog, []byte("previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.LogConfig{
		Server: config.LogSettings{Path: serverLog, Level: "DEBUG"},
	}

	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	slog.Info("hello from test", "answer", 42)
	cleanup()

	old, err := os.ReadFile(serverLog + ".old")
	if err != nil {
		t.Fatalf("rotated log missing: %v", err)
	}
	if string(old) != "previous run\n" {
		t.Errorf("unexpected rotated content %q", old)
	}

	content, err := os.ReadFile(serverLog)
	if err != nil {
		t.Fatalf("server log missing: %v", err)
	}
	if !strings.Contains(string(content), "hello from test") {
		t.Errorf("server log missing message: %q", content)
	}
	if !strings.Contains(Recent.LastLine(), "answer=42") {
		t.Errorf("capture missed last line: %q", Recent.LastLine())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMikanLevel(t *testing.T) {
	tests := []struct {
		in   mikan.LogLevel
		want slog.Level
	}{
		{mikan.LogTrace, LevelTrace},
		{mikan.LogDebug, slog.LevelDebug},
		{mikan.LogInfo, slog.LevelInfo},
		{mikan.LogWarning, slog.LevelWarn},
		{mikan.LogError, slog.LevelError},
		{mikan.LogFatal, slog.LevelError},
	}
	for _, tt := range tests {
		if got := MikanLevel(tt.in); got != tt.want {
			t.Errorf("MikanLevel(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMikanLogCallback(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: LevelTrace})))

	EnableTrace = false
	MikanLogCallback(mikan.LogTrace, "hidden")
	MikanLogCallback(mikan.LogWarning, "socket slow")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("trace line should be dropped when tracing is off")
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "component=mikan") {
		t.Errorf("unexpected output %q", out)
	}

	EnableTrace = true
	MikanLogCallback(mikan.LogTrace, "visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("trace line missing when tracing is on")
	}
}

func TestTrace(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: LevelTrace}))

	EnableTrace = false
	Trace(logger, "quiet")
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}

	EnableTrace = true
	Trace(logger, "loud", "k", "v")
	if !strings.Contains(buf.String(), "loud") {
		t.Errorf("expected trace output, got %q", buf.String())
	}
}
