package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewFiltersByLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	var buf bytes.Buffer
	log := New("warn", &buf)

	log.Info().Msg("hidden")
	log.Warn().Int64("device_id", 7).Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %s", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal(lines[0], &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["message"] != "shown" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["service"] != "nmsd" {
		t.Errorf("service = %v", entry["service"])
	}
	if entry["device_id"] != float64(7) {
		t.Errorf("device_id = %v", entry["device_id"])
	}
}

func TestNewUnknownLevelDefaultsToInfo(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	New("loud", &bytes.Buffer{})
	if got := zerolog.GlobalLevel(); got != zerolog.InfoLevel {
		t.Errorf("level = %v, want info", got)
	}
}
