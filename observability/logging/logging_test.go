package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerRenamesAndRedacts(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf))
	logger.Info("trade filled", "route", "curve", "authorization", "Bearer abc")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line["message"] != "trade filled" || line["severity"] != "INFO" {
		t.Fatalf("unexpected line: %v", line)
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("missing timestamp: %v", line)
	}
	if line["authorization"] != RedactedValue {
		t.Fatalf("authorization not redacted: %v", line)
	}
	if line["route"] != "curve" {
		t.Fatalf("route altered: %v", line)
	}
}
