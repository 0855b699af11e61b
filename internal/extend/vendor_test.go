package extend

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-capability/internal/converter"
)

// Captured from lumi.sensor_magnet.aq2 genBasic 0xFF01.
var lumiPayload = []byte{
	0x01, 0x21, 0xEF, 0x0B, // 1: uint16 3055
	0x03, 0x28, 0x1F, // 3: int8 31
	0x04, 0x21, 0x2D, 0x5A, // 4: uint16 23085
	0x05, 0x21, 0x02, 0x00, // 5: uint16 2
	0x06, 0x24, 0x02, 0x00, 0x00, 0x00, 0x00, // 6: uint40 2
	0x64, 0x10, 0x01, // 100: bool true
}

func TestDecodeLumiTLV(t *testing.T) {
	got, err := DecodeLumiTLV(lumiPayload)
	require.NoError(t, err)
	assert.Equal(t, map[int]any{
		1:   uint64(3055),
		3:   int64(31),
		4:   uint64(23085),
		5:   uint64(2),
		6:   uint64(2),
		100: true,
	}, got)

	got, err = DecodeLumiTLV([]byte{0x01})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = DecodeLumiTLV([]byte{0x01, 0x21, 0xEF})
	assert.Error(t, err)
}

func TestLumiTLVBuilder(t *testing.T) {
	b, err := LumiTLV(LumiTLVConfig{Values: []TagValue{
		{Tag: 1, Name: "battery", Unit: "%", Transform: "lumi_battery"},
		{Tag: 5, Name: "power_outage_count", Transform: "minus_one", Category: "diagnostic"},
		{Tag: 100, Name: "contact", Kind: "binary", Transform: "bool_invert"},
	}})
	require.NoError(t, err)
	require.Len(t, b.Exposes, 3)
	assert.Empty(t, b.Outbound)

	msg := report("genBasic", 1, map[string]any{"lumiSpecific": string(lumiPayload)})
	got := convert(t, b, msg, &converter.Meta{})
	assert.Equal(t, converter.State{"battery": 100, "power_outage_count": int64(1), "contact": false}, got)

	other := report("genBasic", 1, map[string]any{"modelId": "lumi.sensor_magnet.aq2"})
	assert.Empty(t, convert(t, b, other, &converter.Meta{}))
}

func TestLumiTLVInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		values []TagValue
	}{
		{"empty", nil},
		{"no name", []TagValue{{Tag: 1}}},
		{"duplicate tag", []TagValue{{Tag: 1, Name: "a"}, {Tag: 1, Name: "b"}}},
		{"unknown transform", []TagValue{{Tag: 1, Name: "a", Transform: "times_pi"}}},
		{"unknown kind", []TagValue{{Tag: 1, Name: "a", Kind: "color"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LumiTLV(LumiTLVConfig{Values: tt.values})
			var ice *InvalidBuilderConfigError
			assert.True(t, errors.As(err, &ice), "got %v", err)
		})
	}
}

func TestDecodeTuyaDPs(t *testing.T) {
	payload := []byte{
		0x00, 0x02, // seq
		0x0A, 0x00, 0x00, 0x03, 0xDE, 0xAD, 0xBE, // 10 raw
		0x0B, 0x01, 0x00, 0x01, 0x00, // 11 bool false
		0x0C, 0x02, 0x00, 0x04, 0x00, 0x00, 0x03, 0xE8, // 12 value 1000
		0x0D, 0x03, 0x00, 0x05, 'h', 'e', 'l', 'l', 'o', // 13 string
		0x0E, 0x04, 0x00, 0x01, 0x02, // 14 enum 2
		0x0F, 0x05, 0x00, 0x02, 0x01, 0x02, // 15 bitmap 0x0102
		0x10, 0x02, 0x00, 0x04, 0xFF, 0xFF, 0xFF, 0xF6, // 16 value -10
	}
	got, err := DecodeTuyaDPs(payload)
	require.NoError(t, err)
	assert.Equal(t, map[int]any{
		10: []byte{0xDE, 0xAD, 0xBE},
		11: false,
		12: int64(1000),
		13: "hello",
		14: int64(2),
		15: int64(0x0102),
		16: int64(-10),
	}, got)

	for _, in := range [][]byte{nil, {}, {0x00, 0x01}} {
		got, err := DecodeTuyaDPs(in)
		require.NoError(t, err)
		assert.Empty(t, got)
	}

	_, err = DecodeTuyaDPs([]byte{0x00, 0x01, 0x02, 0x02, 0x00, 0x04, 0x00})
	assert.Error(t, err)
}

func TestTuyaDPBuilder(t *testing.T) {
	b, err := TuyaDP(TuyaDPConfig{Values: []TagValue{
		{Tag: 1, Name: "occupancy", Kind: "binary"},
		{Tag: 2, Name: "temperature", Unit: "°C", Transform: "divide_10"},
	}})
	require.NoError(t, err)

	raw := []byte{
		0x00, 0x01,
		0x01, 0x01, 0x00, 0x01, 0x01,
		0x02, 0x02, 0x00, 0x04, 0x00, 0x00, 0x00, 0xFA,
	}
	msg := &converter.Message{Cluster: "manuSpecificTuya", Type: converter.CommandType("dataReport"), Endpoint: 1, Raw: raw}
	got := convert(t, b, msg, &converter.Meta{})
	assert.Equal(t, converter.State{"occupancy": true, "temperature": 25.0}, got)
}

func TestTuyaDPBuilderEndpoints(t *testing.T) {
	b, err := TuyaDP(TuyaDPConfig{Values: []TagValue{
		{Tag: 1, Name: "state", Kind: "binary", Endpoint: "l1"},
		{Tag: 2, Name: "state", Kind: "binary", Endpoint: "l2"},
	}})
	require.NoError(t, err)

	var props []string
	for _, e := range b.Exposes {
		props = append(props, e.Properties()...)
	}
	assert.Equal(t, []string{"state_l1", "state_l2"}, props)
	assert.Equal(t, "l2", b.Exposes[1].Endpoint)

	raw := []byte{
		0x00, 0x07,
		0x01, 0x01, 0x00, 0x01, 0x00,
		0x02, 0x01, 0x00, 0x01, 0x01,
	}
	msg := &converter.Message{Cluster: "manuSpecificTuya", Type: converter.CommandType("dataReport"), Endpoint: 1, Raw: raw}
	meta := &converter.Meta{Endpoints: converter.EndpointMap{"l1": 1, "l2": 1}}
	assert.Equal(t, converter.State{"state_l1": false, "state_l2": true}, convert(t, b, msg, meta))

	_, err = TuyaDP(TuyaDPConfig{Values: []TagValue{{Tag: 1, Name: "state", Endpoint: converter.DefaultEndpoint}}})
	var ie *InvalidBuilderConfigError
	assert.ErrorAs(t, err, &ie)
}

func TestTransforms(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"lumi_battery", uint64(3055), 100},
		{"lumi_battery", uint64(2925), 50},
		{"lumi_battery", uint64(2700), 0},
		{"minus_one", uint64(2), int64(1)},
		{"lumi_trigger", uint64(0x0001000A), int64(9)},
		{"bool_invert", true, false},
		{"bool_invert", uint64(0), true},
		{"divide_100", int64(12345), 123.45},
		{"divide_10", "n/a", "n/a"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, transforms[tt.name](tt.in), "%s(%v)", tt.name, tt.in)
	}
	assert.Contains(t, Transforms(), "lumi_trigger")
	assert.NotContains(t, Transforms(), "")
}
