package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"log/slog"
	"testing"
)

func TestSetupEmitsStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOptions("arcadeswapd", "test", Options{Level: "debug", Output: &buf})
	logger.Debug("swap applied", slog.String("operation", "buy"))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["message"] != "swap applied" || line["severity"] != "DEBUG" {
		t.Fatalf("unexpected line: %v", line)
	}
	if line["service"] != "arcadeswapd" || line["env"] != "test" || line["operation"] != "buy" {
		t.Fatalf("missing attributes: %v", line)
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("timestamp key missing: %v", line)
	}
}

func TestStdLoggerBridged(t *testing.T) {
	var buf bytes.Buffer
	SetupWithOptions("arcadeswapd", "", Options{Output: &buf})
	log.Printf("legacy %d", 7)
	if !bytes.Contains(buf.Bytes(), []byte(`"message":"legacy 7"`)) {
		t.Fatalf("std log not bridged: %s", buf.String())
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithOptions("arcadeswapd", "", Options{Level: "warn", Output: &buf})
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line should be filtered: %s", buf.String())
	}
	if ParseLevel("bogus") != slog.LevelInfo {
		t.Fatalf("unknown level should default to info")
	}
}

func TestMaskField(t *testing.T) {
	if got := MaskField("adminToken", "s3cret").Value.String(); got != RedactedValue {
		t.Fatalf("token not redacted: %s", got)
	}
	if got := MaskField("gameId", "7").Value.String(); got != "7" {
		t.Fatalf("allowlisted key redacted: %s", got)
	}
	if got := MaskValue(""); got != "" {
		t.Fatalf("empty values stay empty, got %q", got)
	}
}
