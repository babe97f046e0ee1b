package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"gravitywell/core/events"
)

func TestEventLoggerWritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	eventLogger{logger: logger}.Emit(events.ZapDeposited{
		LPMinted:     uint256.NewInt(10),
		NativeAdded:  uint256.NewInt(20),
		ForeignAdded: uint256.NewInt(30),
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "engine event", line["msg"])
	require.Equal(t, events.TypeZapDeposited, line["type"])
	require.Len(t, line, 3+1+3)
}
