package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("trace")
	require.NoError(t, err)
	assert.Equal(t, LevelTrace, lvl)

	lvl, err = ParseLevel("Warning")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestModuleFiltering(t *testing.T) {
	var buf bytes.Buffer
	prev := Root()
	defer SetDefault(prev)
	SetDefault(NewLogger(NewTerminalHandlerWithLevel(&buf, LevelTrace, false)))

	DisableModule(RegAllocMonitoring)
	Debug(RegAllocMonitoring, "hidden", "v", 1)
	assert.Empty(t, buf.String())

	EnableModule(RegAllocMonitoring)
	defer DisableModule(RegAllocMonitoring)
	Debug(RegAllocMonitoring, "spill", "value", 7, "slot", 2)
	out := buf.String()
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "spill")
	assert.Contains(t, out, "module=regalloc")
	assert.Contains(t, out, "value=7")
}

func TestEnableModulesAll(t *testing.T) {
	defer func() {
		for _, m := range KnownModules() {
			DisableModule(m)
		}
	}()
	EnableModules("all")
	for _, m := range KnownModules() {
		assert.True(t, IsModuleEnabled(m), m)
	}
}
