package definition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/converter/convertertest"
)

func TestRawOperationKeys(t *testing.T) {
	def, err := Assemble(twoGangSpec(t), standardSnapshot(t), newTestLogger())
	require.NoError(t, err)
	assert.Subset(t, def.Keys(), []string{KeyRead, KeyWrite, KeyCommand})
	for _, w := range def.Warnings {
		assert.NotContains(t, w, `"read"`, "raw keys have no exposes and are not flagged")
	}

	dev := convertertest.NewDevice("0x00158d0001", 1, 2, 3)
	ctx := context.Background()

	patch, err := def.Set(ctx, dev, nil, KeyRead, map[string]any{"cluster": "genBasic", "attributes": []any{"swBuildId"}})
	require.NoError(t, err)
	assert.Nil(t, patch)

	_, err = def.Set(ctx, dev, nil, KeyWrite, map[string]any{"cluster": "genOnOff", "payload": map[string]any{"onTime": 10}, "endpoint": 3})
	require.NoError(t, err)

	_, err = def.Set(ctx, dev, nil, KeyCommand, map[string]any{"cluster": "genIdentify", "command": "identify", "payload": map[string]any{"identifytime": 5}})
	require.NoError(t, err)

	calls := dev.Rec.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, convertertest.Call{Endpoint: 1, Op: "read", Cluster: "genBasic", Attrs: []string{"swBuildId"}}, calls[0])
	assert.Equal(t, uint8(3), calls[1].Endpoint)
	assert.Equal(t, "write", calls[1].Op)
	assert.Equal(t, map[string]any{"onTime": 10.0}, calls[1].Values)
	assert.Equal(t, "identify", calls[2].Command)
}

func TestRawOperationErrors(t *testing.T) {
	def, err := Assemble(twoGangSpec(t), standardSnapshot(t), newTestLogger())
	require.NoError(t, err)
	dev := convertertest.NewDevice("0x00158d0001", 1, 2, 3)
	ctx := context.Background()

	for name, tc := range map[string]struct {
		key   string
		value any
	}{
		"not an object":     {KeyRead, "genBasic"},
		"no cluster":        {KeyRead, map[string]any{"attributes": []any{"swBuildId"}}},
		"no attributes":     {KeyRead, map[string]any{"cluster": "genBasic"}},
		"unknown attribute": {KeyRead, map[string]any{"cluster": "genBasic", "attributes": []any{"nope"}}},
		"empty payload":     {KeyWrite, map[string]any{"cluster": "genOnOff"}},
		"unknown cluster":   {KeyWrite, map[string]any{"cluster": "nope", "payload": map[string]any{"a": 1}}},
		"unknown command":   {KeyCommand, map[string]any{"cluster": "genOnOff", "command": "explode"}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := def.Set(ctx, dev, nil, tc.key, tc.value)
			var de *converter.ValueDomainError
			assert.ErrorAs(t, err, &de)
		})
	}

	_, err = def.Set(ctx, dev, nil, KeyRead, map[string]any{"cluster": "genBasic", "attributes": []any{"swBuildId"}, "endpoint": 9})
	assert.ErrorIs(t, err, converter.ErrUnknownEndpoint)
	assert.Empty(t, dev.Rec.Calls())
}
