package script

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-capability/internal/converter"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScriptConverter(t *testing.T) {
	src := `
function convert(msg, state)
  local v = msg.data.presentValue
  if v == nil then return nil end
  local actions = {single = 1, double = 2, hold = 0}
  return {action = util.lookup(actions, v), previous = state.action}
end
`
	c, err := NewEngine(newTestLogger(), 0).Compile(Spec{
		Cluster: "genMultistateInput",
		Types:   []string{converter.TypeAttributeReport},
		Code:    src,
	})
	require.NoError(t, err)
	assert.True(t, c.Matches("genMultistateInput", converter.TypeAttributeReport))

	msg := &converter.Message{Cluster: "genMultistateInput", Type: converter.TypeAttributeReport,
		Data: map[string]any{"presentValue": uint64(2)}, Endpoint: 1}
	patch, err := c.Convert(msg, &converter.Meta{State: converter.State{"action": "single"}})
	require.NoError(t, err)
	assert.Equal(t, converter.State{"action": "double", "previous": "single"}, patch)

	msg.Data = map[string]any{}
	patch, err = c.Convert(msg, &converter.Meta{})
	require.NoError(t, err)
	assert.Nil(t, patch)
}

func TestScriptHelpers(t *testing.T) {
	src := `
function convert(msg, state)
  return {alarm = util.bit(msg.data.status, 3), t = util.round(msg.data.raw / 100, 1)}
end
`
	c, err := NewEngine(newTestLogger(), 0).Compile(Spec{Cluster: "x", Types: []string{"raw"}, Code: src})
	require.NoError(t, err)
	patch, err := c.Convert(&converter.Message{Cluster: "x", Type: "raw",
		Data: map[string]any{"status": uint64(9), "raw": int64(2157)}}, nil)
	require.NoError(t, err)
	assert.Equal(t, converter.State{"alarm": true, "t": 21.6}, patch)
}

func TestScriptSandbox(t *testing.T) {
	src := `
function convert(msg, state)
  return {os = os == nil, io = io == nil, req = require == nil}
end
`
	c, err := NewEngine(newTestLogger(), 0).Compile(Spec{Cluster: "x", Types: []string{"raw"}, Code: src})
	require.NoError(t, err)
	patch, err := c.Convert(&converter.Message{Cluster: "x", Type: "raw"}, nil)
	require.NoError(t, err)
	assert.Equal(t, converter.State{"os": true, "io": true, "req": true}, patch)
}

func TestCompileErrors(t *testing.T) {
	e := NewEngine(newTestLogger(), 0)
	_, err := e.Compile(Spec{Cluster: "x", Types: []string{"raw"}, Code: "function convert("})
	assert.Error(t, err)
	_, err = e.Compile(Spec{Cluster: "x", Types: []string{"raw"}, Code: "x = 1"})
	assert.ErrorContains(t, err, "no convert function")
	_, err = e.Compile(Spec{Code: "function convert() end"})
	assert.Error(t, err)
}

func TestScriptRuntimeErrorAndTimeout(t *testing.T) {
	e := NewEngine(newTestLogger(), 50*time.Millisecond)
	c, err := e.Compile(Spec{Cluster: "x", Types: []string{"raw"}, Code: `
function convert(msg, state)
  if msg.data.spin then while true do end end
  error("boom")
end
`})
	require.NoError(t, err)
	_, err = c.Convert(&converter.Message{Cluster: "x", Type: "raw", Data: map[string]any{}}, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "boom"))

	_, err = c.Convert(&converter.Message{Cluster: "x", Type: "raw", Data: map[string]any{"spin": true}}, nil)
	assert.Error(t, err)
}
