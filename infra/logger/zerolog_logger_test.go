package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	require.NotNil(t, l)
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Infow("info", map[string]any{"tender_id": "t1"})
	l.Warnf("warn")
	l.Errorf("error")
}

func TestZerologLoggerStructuredFields(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("LOG_LEVEL", "info")
	var buf bytes.Buffer
	l := NewZerologLoggerTo(&buf, "tender-manager")
	l.Debugw("hidden", map[string]any{"k": 1})
	l.Infow("tender awarded", map[string]any{"tender_id": "t1", "carrier_id": "c9"})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "tender-manager", rec["component"])
	assert.Equal(t, "t1", rec["tender_id"])
	assert.Equal(t, "c9", rec["carrier_id"])
	assert.Equal(t, "tender awarded", rec["message"])
}

func TestConfigureOverridesEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("LOG_LEVEL", "error")
	Configure("debug", "json")
	t.Cleanup(func() { Configure("", "") })

	var buf bytes.Buffer
	l := NewZerologLoggerTo(&buf, "api")
	l.Debugw("visible", map[string]any{"k": 1})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "debug", rec["level"])
	assert.Equal(t, "visible", rec["message"])
}
