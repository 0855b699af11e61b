// Package clusters holds the standard ZCL cluster tables.
package clusters

import "zigbee-capability/internal/zcl"

// All returns the standard cluster definitions.
func All() []zcl.ClusterDef {
	return []zcl.ClusterDef{
		GenBasic,
		GenPowerCfg,
		GenIdentify,
		GenOnOff,
		GenLevelCtrl,
		GenMultistateInput,
		GenOta,
		LightingColorCtrl,
		MsIlluminanceMeasurement,
		MsTemperatureMeasurement,
		MsPressureMeasurement,
		MsRelativeHumidity,
		MsOccupancySensing,
		SsIasZone,
		SeMetering,
		HaElectricalMeasurement,
		GenBasicLumi,
		ManuSpecificLumi,
		ManuSpecificTuya,
	}
}

// RegisterAll adds the standard definitions to r.
func RegisterAll(r *zcl.Registry) error {
	return r.RegisterAll(All())
}
