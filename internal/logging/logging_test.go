package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWithWriterJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", "json")
	log.Info("dropped")
	log.Warn("kept", "source", "alibaba")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected a single warn line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("json handler output: %v", err)
	}
	if entry["msg"] != "kept" || entry["source"] != "alibaba" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWithWriter(&buf, "debug", "text").Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("debug level should emit debug records")
	}
}
