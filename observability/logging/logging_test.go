package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupWriterEmitsServiceFields(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWriter(&buf, "pegd", "test", "debug")
	logger.Debug("hello", "k", "v")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line["service"] != "pegd" || line["env"] != "test" {
		t.Fatalf("unexpected service fields: %v", line)
	}
	if line["severity"] != "DEBUG" || line["message"] != "hello" {
		t.Fatalf("unexpected level or message: %v", line)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMaskField(t *testing.T) {
	attr := MaskField("dsn", "postgres://peg:hunter2@db:5432/history?sslmode=disable")
	got := attr.Value.String()
	if strings.Contains(got, "hunter2") || !strings.Contains(got, "db:5432") {
		t.Fatalf("dsn not masked: %s", got)
	}
	if MaskField("dsn", "file:peg-history.db").Value.String() != RedactedValue {
		t.Fatal("expected opaque dsn to be fully redacted")
	}
	if MaskField("height", "12").Value.String() != "12" {
		t.Fatal("non-sensitive field should pass through")
	}
}
