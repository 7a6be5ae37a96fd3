package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, level Level, f Formatter) (Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	return NewLogger(WithLevel(level), WithFormatter(f), WithOutput(NewWriterOutput(buf))), buf
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(t, WarnLevel, &TextFormatter{})
	l.Info("hidden")
	l.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered: %q", out)
	}
	if !strings.Contains(out, "WARN  shown") {
		t.Fatalf("warn missing: %q", out)
	}
}

func TestWithFieldsJSON(t *testing.T) {
	l, buf := newBufferLogger(t, DebugLevel, &JSONFormatter{})
	l.With(Component("broker"), Domain("realtime")).Warn("publish failed", Org("org-1"), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	want := map[string]string{
		"component": "broker",
		"domain":    "realtime",
		"org":       "org-1",
		"error":     "boom",
		"level":     "WARN",
		"msg":       "publish failed",
	}
	for k, v := range want {
		if m[k] != v {
			t.Fatalf("%s = %v, want %s", k, m[k], v)
		}
	}
}

func TestSetLevelPropagatesToChildren(t *testing.T) {
	l, buf := newBufferLogger(t, ErrorLevel, &TextFormatter{})
	child := l.WithComponent("stream")
	child.Info("before")
	l.SetLevel(DebugLevel)
	child.Info("after")
	if strings.Contains(buf.String(), "before") || !strings.Contains(buf.String(), "after") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestRedaction(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewLogger(WithFormatter(&TextFormatter{}), WithOutput(NewWriterOutput(buf)), WithRedactedKeys("token"))
	l.Info("auth", Str("token", "secret"))
	if strings.Contains(buf.String(), "secret") || !strings.Contains(buf.String(), "token=[REDACTED]") {
		t.Fatalf("token not redacted: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		err  bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"loud", InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.err {
			t.Fatalf("ParseLevel(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestApplyConfigRejectsUnknownFormat(t *testing.T) {
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := ApplyConfig(&Config{Level: "debug", Format: "json", Output: "null"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
}
