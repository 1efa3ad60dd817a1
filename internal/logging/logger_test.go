package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Config{}) })

	l := Component("planner")
	l.Debug().Int("plans", 5).Msg("ranked")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "planner" {
		t.Errorf("Expected component 'planner', got %v", entry["component"])
	}
	if entry["message"] != "ranked" {
		t.Errorf("Expected message 'ranked', got %v", entry["message"])
	}
	if entry["level"] != "debug" {
		t.Errorf("Expected level 'debug', got %v", entry["level"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Output: &buf})
	t.Cleanup(func() { Init(Config{}) })

	Info().Msg("hidden")
	Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Expected info message to be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("Expected warn message to be written")
	}
}
