package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNew_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: DEBUG, Format: JSON, Output: &buf, Service: "reservations"})

	log.Component("sweeper").Info("sweep finished", "expired", 3)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if line[SERVICE] != "reservations" {
		t.Errorf("expected service attr, got %v", line[SERVICE])
	}
	if line[COMPONENT] != "sweeper" {
		t.Errorf("expected component attr, got %v", line[COMPONENT])
	}
	if line["expired"] != float64(3) {
		t.Errorf("expected expired=3, got %v", line["expired"])
	}
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: WARN, Output: &buf})

	log.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %s", buf.String())
	}

	log.Warn("kept")
	if buf.Len() == 0 {
		t.Errorf("warn should be written at warn level")
	}
}
