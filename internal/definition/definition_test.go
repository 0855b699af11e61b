package definition

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/converter/convertertest"
	"zigbee-capability/internal/exposes"
	"zigbee-capability/internal/extend"
	"zigbee-capability/internal/zcl"
	"zigbee-capability/internal/zcl/clusters"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func standardSnapshot(t *testing.T) *zcl.Snapshot {
	t.Helper()
	reg := zcl.NewRegistry()
	require.NoError(t, clusters.RegisterAll(reg))
	return reg.Freeze()
}

// must returns a checker for a builder call: must(t)(extend.OnOff(...)).
func must(t *testing.T) func(extend.Bundle, error) extend.Bundle {
	return func(b extend.Bundle, err error) extend.Bundle {
		t.Helper()
		require.NoError(t, err)
		return b
	}
}

func twoGangSpec(t *testing.T) Spec {
	return Spec{
		Identity:  Identity{Model: "QBKG03LM", Vendor: "Aqara", ZigbeeModels: []string{"lumi.ctrl_neutral2"}},
		Endpoints: converter.EndpointMap{"left": 2, "right": 3},
		Bundles: []extend.Bundle{
			must(t)(extend.OnOff(extend.OnOffConfig{Endpoints: []string{"left", "right"}})),
			must(t)(extend.Temperature(extend.SensorConfig{})),
		},
	}
}

func TestAssembleRoutesByEndpoint(t *testing.T) {
	def, err := Assemble(twoGangSpec(t), standardSnapshot(t), newTestLogger())
	require.NoError(t, err)

	dev := convertertest.NewDevice("0x00158d0001", 1, 2, 3)
	patch, err := def.Convert(&converter.Message{
		Cluster: "genOnOff", Type: converter.TypeAttributeReport, Endpoint: 3,
		Data: map[string]any{"onOff": true}, LinkQuality: 87,
	}, dev, nil)
	require.NoError(t, err)
	assert.Equal(t, converter.State{"state_right": "ON", "linkquality": 87}, patch)

	patch, err = def.Set(context.Background(), dev, nil, "state_left", "ON")
	require.NoError(t, err)
	assert.Equal(t, converter.State{"state_left": "ON"}, patch)
	assert.Equal(t, []string{"command genOnOff@2"}, dev.Rec.Ops())
}

func TestConvertAliasedEndpoints(t *testing.T) {
	spec := Spec{
		Identity:  Identity{Model: "alias"},
		Endpoints: converter.EndpointMap{"t1": 1, "c1": 1},
		Bundles: []extend.Bundle{
			must(t)(extend.Numeric(extend.NumericConfig{
				AttrConfig: extend.AttrConfig{Name: "on_level", Cluster: "genLevelCtrl", Attribute: "onLevel", Endpoints: []string{"t1"}},
			})),
			must(t)(extend.Numeric(extend.NumericConfig{
				AttrConfig: extend.AttrConfig{Name: "transition", Cluster: "genLevelCtrl", Attribute: "onOffTransitionTime", Endpoints: []string{"c1"}},
			})),
		},
	}
	def, err := Assemble(spec, standardSnapshot(t), newTestLogger())
	require.NoError(t, err)

	dev := convertertest.NewDevice("0x00158d0002", 1)
	for i := 0; i < 50; i++ {
		patch, err := def.Convert(&converter.Message{
			Cluster: "genLevelCtrl", Type: converter.TypeAttributeReport, Endpoint: 1,
			Data: map[string]any{"onLevel": uint64(100), "onOffTransitionTime": uint64(5)},
		}, dev, nil)
		require.NoError(t, err)
		require.Equal(t, 100.0, patch["on_level_t1"])
		require.Equal(t, 5.0, patch["transition_c1"])
	}
}

func TestAssembleAddsLinkQuality(t *testing.T) {
	def, err := Assemble(twoGangSpec(t), standardSnapshot(t), newTestLogger())
	require.NoError(t, err)
	last := def.Exposes[len(def.Exposes)-1]
	assert.Equal(t, LinkQualityKey, last.Property)
}

func TestReassemblyIsIdentical(t *testing.T) {
	snap := standardSnapshot(t)
	a, err := Assemble(twoGangSpec(t), snap, newTestLogger())
	require.NoError(t, err)
	b, err := Assemble(twoGangSpec(t), snap, newTestLogger())
	require.NoError(t, err)

	assert.Equal(t, a.Exposes, b.Exposes)
	assert.Equal(t, a.Configure, b.Configure)
	assert.Equal(t, a.Keys(), b.Keys())
	assert.Equal(t, a.Clusters(), b.Clusters())
	assert.Equal(t, a.Warnings, b.Warnings)
}

func TestMergeRejectsDuplicateOwnership(t *testing.T) {
	tests := []struct {
		name    string
		bundles []extend.Bundle
		kind    string
	}{
		{
			name: "expose",
			bundles: []extend.Bundle{
				{Exposes: []*exposes.Expose{exposes.Battery()}},
				{Exposes: []*exposes.Expose{exposes.Battery()}},
			},
			kind: "expose",
		},
		{
			name: "outbound",
			bundles: []extend.Bundle{
				{Outbound: []converter.Outbound{{Keys: []string{"state"}}}},
				{Outbound: []converter.Outbound{{Keys: []string{"state"}}}},
			},
			kind: "outbound",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(tt.bundles...)
			var de *DuplicateCapabilityOwnershipError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.kind, de.Kind)
		})
	}
}

func TestMergeAllowsSharedInbound(t *testing.T) {
	in := converter.Inbound{Cluster: "genBasic", Types: []string{converter.TypeReadResponse}}
	out, err := Merge(extend.Bundle{Inbound: []converter.Inbound{in}}, extend.Bundle{Inbound: []converter.Inbound{in}, OTA: true})
	require.NoError(t, err)
	assert.Len(t, out.Inbound, 2)
	assert.True(t, out.OTA)
}

func TestMergeSameEndpointTwiceFails(t *testing.T) {
	_, err := Merge(
		must(t)(extend.OnOff(extend.OnOffConfig{Endpoints: []string{"l1"}})),
		must(t)(extend.OnOff(extend.OnOffConfig{Endpoints: []string{"l1"}})),
	)
	var de *DuplicateCapabilityOwnershipError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "l1", de.Endpoint)
}

func TestConvertIsolatesFailingConverters(t *testing.T) {
	typ := converter.TypeAttributeReport
	spec := Spec{
		Identity: Identity{Model: "iso"},
		Inbound: []converter.Inbound{
			{Cluster: "genBasic", Types: []string{typ}, Convert: func(*converter.Message, *converter.Meta) (converter.State, error) {
				return converter.State{"a": 1, "b": 1}, nil
			}},
			{Cluster: "genBasic", Types: []string{typ}, Convert: func(*converter.Message, *converter.Meta) (converter.State, error) {
				return converter.State{"a": "lost"}, errors.New("bad payload")
			}},
			{Cluster: "genBasic", Types: []string{typ}, Convert: func(*converter.Message, *converter.Meta) (converter.State, error) {
				panic("index out of range")
			}},
			{Cluster: "genBasic", Types: []string{typ}, Convert: func(*converter.Message, *converter.Meta) (converter.State, error) {
				return converter.State{"b": 2}, nil
			}},
		},
	}
	def, err := Assemble(spec, standardSnapshot(t), newTestLogger())
	require.NoError(t, err)

	patch, err := def.Convert(&converter.Message{Cluster: "genBasic", Type: typ, LinkQuality: 10}, convertertest.NewDevice("0x01", 1), nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "bad payload")
	assert.ErrorContains(t, err, "panic")
	assert.Equal(t, converter.State{"a": 1, "b": 2, "linkquality": 10}, patch)
}

func TestConvertNoMatch(t *testing.T) {
	def, err := Assemble(twoGangSpec(t), standardSnapshot(t), newTestLogger())
	require.NoError(t, err)
	patch, err := def.Convert(&converter.Message{Cluster: "genIdentify", Type: converter.TypeAttributeReport}, nil, nil)
	assert.NoError(t, err)
	assert.Nil(t, patch)
}

func TestSetErrors(t *testing.T) {
	ro, err := extend.Numeric(extend.NumericConfig{
		AttrConfig: extend.AttrConfig{Name: "level", Cluster: "genLevelCtrl", Attribute: "currentLevel", ReadOnly: true},
	})
	require.NoError(t, err)
	spec := Spec{
		Identity: Identity{Model: "errs"},
		Bundles:  []extend.Bundle{ro},
		Outbound: []converter.Outbound{{Keys: []string{"effect"}, Set: func(context.Context, converter.Endpoint, string, any, *converter.Meta) (converter.State, error) {
			return nil, nil
		}}},
	}
	def, err := Assemble(spec, standardSnapshot(t), newTestLogger())
	require.NoError(t, err)
	dev := convertertest.NewDevice("0x01", 1)
	ctx := context.Background()

	_, err = def.Set(ctx, dev, nil, "nope", 1)
	assert.ErrorIs(t, err, converter.ErrUnsupportedKey)
	_, err = def.Set(ctx, dev, nil, "level", 1)
	assert.ErrorIs(t, err, converter.ErrReadOnly)
	assert.ErrorIs(t, def.Get(ctx, dev, nil, "effect"), converter.ErrNoGet)
	require.NoError(t, def.Get(ctx, dev, nil, "level"))
	assert.Equal(t, []string{"read genLevelCtrl@1"}, dev.Rec.Ops())

	assert.Contains(t, def.Warnings, `outbound key "effect" has no expose`)
}

func TestAssembleUnknownEndpoint(t *testing.T) {
	spec := twoGangSpec(t)
	spec.Endpoints = converter.EndpointMap{"left": 2}
	_, err := Assemble(spec, standardSnapshot(t), newTestLogger())
	var ue *UnknownEndpointError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "right", ue.Endpoint)
}

func TestAssembleUnknownClusterMember(t *testing.T) {
	b, err := extend.Numeric(extend.NumericConfig{
		AttrConfig: extend.AttrConfig{Name: "x", Cluster: "genLevelCtrl", Attribute: "warpFactor"},
	})
	require.NoError(t, err)
	_, err = Assemble(Spec{Identity: Identity{Model: "bad"}, Bundles: []extend.Bundle{b}}, standardSnapshot(t), newTestLogger())
	var ue *zcl.UnknownClusterMemberError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "warpFactor", ue.Member)
}

func TestAssembleFlagsSettableExposeWithoutOwner(t *testing.T) {
	spec := Spec{
		Identity: Identity{Model: "flag"},
		Exposes:  []*exposes.Expose{exposes.NewNumeric("calibration", exposes.AccessAll)},
	}
	def, err := Assemble(spec, standardSnapshot(t), newTestLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{`expose "calibration" is settable but no outbound converter owns it`}, def.Warnings)
}
