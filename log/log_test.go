package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"err":   "err",
		"ERROR": "err",
		"warn":  "warn",
		"log":   "log",
		"info":  "log",
		"debug": "debug",
		"trace": "trace",
	}
	for in, want := range cases {
		lvl, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, LevelString(lvl), in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestModuleGating(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitLoggerTo(&buf, "trace", true))
	defer OnlyModules(EnabledModules())

	OnlyModules([]string{TrapModule})
	Debug(TrapModule, "visible")
	Debug(MemoryModule, "hidden")
	Warn(MemoryModule, "warnings are never gated")

	out := buf.String()
	assert.Contains(t, out, "visible")
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "warnings are never gated")
	assert.True(t, TraceEnabled(TrapModule))
	assert.False(t, TraceEnabled(InstrModule))

	EnableModules(" all ,")
	assert.Len(t, EnabledModules(), len(knownModules))
	DisableModule(InstrModule)
	assert.NotContains(t, EnabledModules(), InstrModule)
}

func TestJSONRecordCarriesModule(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitLoggerTo(&buf, "log", true))

	Info(ResourceModule, "loaded", "id", 3)
	line := strings.TrimSpace(buf.String())
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "rsrc", rec["mod"])
	assert.Equal(t, float64(3), rec["id"])

	buf.Reset()
	Debug(ResourceModule, "below threshold")
	assert.Empty(t, buf.String())
}
