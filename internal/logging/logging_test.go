package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in).Level(); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "info", "json").Info("ad created", "ad_id", "a1")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected json output, got %q: %v", buf.String(), err)
	}
	if rec["ad_id"] != "a1" || rec["msg"] != "ad created" {
		t.Fatalf("unexpected record %v", rec)
	}

	buf.Reset()
	logger := newLogger(&buf, "warn", "text")
	logger.Info("hidden")
	logger.Warn("shown", "component", "market")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "component=market") {
		t.Fatalf("unexpected text output %q", out)
	}
}
