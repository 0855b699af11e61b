package exposes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithEndpointSuffixesProperty(t *testing.T) {
	e := NewNumeric("power", AccessStateGet).WithEndpoint("l2")
	assert.Equal(t, "power_l2", e.Property)
	assert.Equal(t, "l2", e.Endpoint)
	assert.Equal(t, "power", e.Name)
}

func TestSwitchFeaturesInheritEndpoint(t *testing.T) {
	s := Switch().WithEndpoint("left")
	require.Len(t, s.Features, 1)
	assert.Equal(t, "state_left", s.Features[0].Property)
	assert.Equal(t, []string{"state_left"}, s.Properties())
}

func TestCompositeFeaturesStayUnsuffixed(t *testing.T) {
	c := NewComposite("schedule", "schedule", AccessAll).
		WithFeature(NewNumeric("morning", AccessAll)).
		WithEndpoint("l1")
	assert.Equal(t, "schedule_l1", c.Property)
	assert.Equal(t, "morning", c.Features[0].Property)
	assert.Equal(t, []string{"schedule_l1"}, c.Properties())
}

func TestLightFeatures(t *testing.T) {
	l := Light(true, &[2]float64{153, 500})
	assert.Equal(t, []string{"state", "brightness", "color_temp"}, l.Properties())
	assert.Equal(t, 500.0, *l.Features[2].ValueMax)
}

func TestValidateCategory(t *testing.T) {
	assert.NoError(t, Battery().Validate())
	assert.NoError(t, PowerOnBehavior().Validate())
	assert.Error(t, NewNumeric("x", AccessState).WithCategory(CategoryConfig).Validate())
	assert.Error(t, NewNumeric("x", AccessAll).WithCategory(CategoryDiagnostic).Validate())
}

func TestCloneIsDeep(t *testing.T) {
	orig := Switch()
	cp := orig.Clone()
	cp.WithEndpoint("x")
	assert.Equal(t, "state", orig.Features[0].Property)
}

func TestJSONShape(t *testing.T) {
	b, err := json.Marshal(Battery())
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "numeric", m["type"])
	assert.Equal(t, "battery", m["property"])
	assert.Equal(t, float64(5), m["access"])
	assert.Equal(t, float64(100), m["value_max"])
	assert.Equal(t, "diagnostic", m["category"])
}

func TestLabelFromName(t *testing.T) {
	assert.Equal(t, "Battery low", labelFromName("battery_low"))
	assert.Equal(t, "Power on behavior", labelFromName("power_on_behavior"))
}
