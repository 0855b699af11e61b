package definition

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/converter/convertertest"
	"zigbee-capability/internal/extend"
	"zigbee-capability/internal/script"
	"zigbee-capability/internal/zcl"
	"zigbee-capability/internal/zcl/clusters"
)

const aqaraFile = `
clusters:
  - id: 0xFCC0
    name: manuSpecificLumi
    manufacturer_code: 0x115F
    attributes:
      - {id: 0x0009, name: mode, type: 0x20, access: 3}
      - {id: 0x00F7, name: lumiSpecific, type: 0x41, access: 5}
definitions:
  - model: WXKG02LM
    vendor: Aqara
    description: Wireless double rocker
    zigbee_model: [lumi.remote.b286acn01]
    endpoints: {left: 1, right: 2}
    extend:
      - type: battery
        options: {voltage: true}
      - type: enum
        options:
          name: operation_mode
          cluster: manuSpecificLumi
          attribute: mode
          manufacturer_code: 0x115F
          lookup: {event: 0, command: 1}
    scripts:
      - cluster: genMultistateInput
        types: [attributeReport]
        code: |
          function convert(msg, state)
            local actions = {single = 1, double = 2}
            local a = util.lookup(actions, msg.data.presentValue)
            if a == nil then return nil end
            return {action = a .. "_" .. msg.endpoint_name}
          end
  - model: BROKEN
    zigbee_model: [broken]
    extend:
      - type: numeric
        options: {name: x, cluster: genLevelCtrl, attribute: onLevel, value_min: 9, value_max: 1}
`

const sensorFile = `
definitions:
  - model: WSDCGQ11LM
    vendor: Aqara
    zigbee_model: [lumi.weather]
    extend:
      - type: temperature
      - type: humidity
      - type: pressure
      - type: battery
  - model: GHOST
    zigbee_model: [ghost]
    endpoints: {l1: 1}
    extend:
      - type: on_off
        options: {endpoints: [l1, l2]}
`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func newRegistry(t *testing.T) *zcl.Registry {
	t.Helper()
	reg := zcl.NewRegistry()
	require.NoError(t, clusters.RegisterAll(reg))
	return reg
}

func TestLoadDir(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"aqara.yaml":  aqaraFile,
		"sensors.yml": sensorFile,
		"notes.txt":   "ignored",
	})
	logger := newTestLogger()
	db, snap, err := LoadDir(dir, newRegistry(t), script.NewEngine(logger, 0), logger)

	require.Error(t, err)
	var ie *extend.InvalidBuilderConfigError
	assert.ErrorAs(t, err, &ie)
	var ue *UnknownEndpointError
	assert.ErrorAs(t, err, &ue)

	require.Equal(t, 2, db.Len())
	_, rerr := snap.ResolveAttribute("manuSpecificLumi", "mode")
	assert.NoError(t, rerr)

	def, ferr := db.Find(DeviceInfo{ModelID: "lumi.remote.b286acn01"})
	require.NoError(t, ferr)
	assert.Equal(t, "WXKG02LM", def.Model)

	dev := convertertest.NewDevice("0x00158d0002", 1, 2)
	patch, cerr := def.Convert(&converter.Message{
		Cluster: "genMultistateInput", Type: converter.TypeAttributeReport, Endpoint: 2,
		Data: map[string]any{"presentValue": uint64(2)}, LinkQuality: 120,
	}, dev, nil)
	require.NoError(t, cerr)
	assert.Equal(t, converter.State{"action": "double_right", "linkquality": 120}, patch)

	_, serr := def.Set(context.Background(), dev, nil, "operation_mode", "command")
	require.NoError(t, serr)
	calls := dev.Rec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, uint16(0x115F), calls[0].Options.ManufacturerCode)
	assert.Equal(t, map[string]any{"mode": 1}, calls[0].Values)

	_, ferr = db.Find(DeviceInfo{ModelID: "broken"})
	assert.ErrorIs(t, ferr, ErrNoMatch)
	_, ferr = db.Find(DeviceInfo{ModelID: "lumi.weather"})
	assert.NoError(t, ferr)
}

func TestLoadDirEmpty(t *testing.T) {
	logger := newTestLogger()
	db, snap, err := LoadDir(filepath.Join(t.TempDir(), "missing"), newRegistry(t), script.NewEngine(logger, 0), logger)
	require.NoError(t, err)
	assert.Equal(t, 0, db.Len())
	assert.NotNil(t, snap)
}

func TestLoadDirConflictingClusterDropsFile(t *testing.T) {
	conflict := `
clusters:
  - id: 0x0006
    name: genOnOff
    attributes:
      - {id: 0, name: onOff, type: 0x20, access: 1}
definitions:
  - model: X
    zigbee_model: [x]
    extend: [{type: on_off}]
`
	dir := writeFiles(t, map[string]string{"bad.yaml": conflict})
	logger := newTestLogger()
	db, _, err := LoadDir(dir, newRegistry(t), script.NewEngine(logger, 0), logger)
	var de *zcl.DuplicateClusterError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 0, db.Len())
}

func TestLoadDirConflictingVendorClusterKeepsOtherFiles(t *testing.T) {
	conflict := `
clusters:
  - id: 0xFCC0
    name: manuSpecificLumi
    manufacturer_code: 0x115F
    attributes:
      - {id: 0x0009, name: mode, type: 0x20, access: 3}
      - {id: 0x00F7, name: diag, type: 0x41, access: 1}
definitions:
  - model: Y
    zigbee_model: [y]
    extend: [{type: on_off}]
`
	dir := writeFiles(t, map[string]string{"lumi.yaml": conflict, "sensors.yaml": sensorFile})
	logger := newTestLogger()
	db, snap, err := LoadDir(dir, newRegistry(t), script.NewEngine(logger, 0), logger)
	var de *zcl.DuplicateClusterError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "manuSpecificLumi", de.Name)

	_, ferr := db.Find(DeviceInfo{ModelID: "y"})
	assert.ErrorIs(t, ferr, ErrNoMatch)
	_, ferr = db.Find(DeviceInfo{ModelID: "lumi.weather"})
	assert.NoError(t, ferr)
	_, rerr := snap.ResolveAttribute("manuSpecificLumi", "diag")
	assert.Error(t, rerr)
}

func TestLoadDirRejectsUnknownField(t *testing.T) {
	dir := writeFiles(t, map[string]string{"typo.yaml": "definitions:\n  - model: X\n    extends: []\n"})
	logger := newTestLogger()
	db, _, err := LoadDir(dir, newRegistry(t), script.NewEngine(logger, 0), logger)
	assert.ErrorContains(t, err, "extends")
	assert.Equal(t, 0, db.Len())
}

func TestLoadShippedDevices(t *testing.T) {
	logger := newTestLogger()
	db, _, err := LoadDir(filepath.Join("..", "..", "devices"), newRegistry(t), script.NewEngine(logger, 0), logger)
	require.NoError(t, err)
	require.Positive(t, db.Len())

	def, err := db.Find(DeviceInfo{ModelID: "TRADFRI bulb E27 WS clear 950lm"})
	require.NoError(t, err)
	assert.Equal(t, "LED1545G12", def.Model)

	def, err = db.Find(DeviceInfo{ModelID: "TS0601", ManufacturerName: "_TZE200_ga1maeof"})
	require.NoError(t, err)
	assert.Equal(t, "TS0601_soil", def.Model)
}
