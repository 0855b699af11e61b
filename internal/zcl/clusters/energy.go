package clusters

import "zigbee-capability/internal/zcl"

var SeMetering = zcl.ClusterDef{
	ID:   0x0702,
	Name: "seMetering",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "currentSummDelivered", Type: zcl.TypeUint48, Access: rp},
		{ID: 0x0001, Name: "currentSummReceived", Type: zcl.TypeUint48, Access: rp},
		{ID: 0x0300, Name: "unitOfMeasure", Type: zcl.TypeEnum8, Access: rd},
		{ID: 0x0301, Name: "multiplier", Type: zcl.TypeUint24, Access: rd},
		{ID: 0x0302, Name: "divisor", Type: zcl.TypeUint24, Access: rd},
		{ID: 0x0400, Name: "instantaneousDemand", Type: zcl.TypeInt24, Access: rp},
	},
}

var HaElectricalMeasurement = zcl.ClusterDef{
	ID:   0x0B04,
	Name: "haElectricalMeasurement",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0300, Name: "acFrequency", Type: zcl.TypeUint16, Access: rp},
		{ID: 0x0505, Name: "rmsVoltage", Type: zcl.TypeUint16, Access: rp},
		{ID: 0x0508, Name: "rmsCurrent", Type: zcl.TypeUint16, Access: rp},
		{ID: 0x050B, Name: "activePower", Type: zcl.TypeInt16, Access: rp},
		{ID: 0x0510, Name: "powerFactor", Type: zcl.TypeInt8, Access: rp},
		{ID: 0x0600, Name: "acVoltageMultiplier", Type: zcl.TypeUint16, Access: rd},
		{ID: 0x0601, Name: "acVoltageDivisor", Type: zcl.TypeUint16, Access: rd},
		{ID: 0x0602, Name: "acCurrentMultiplier", Type: zcl.TypeUint16, Access: rd},
		{ID: 0x0603, Name: "acCurrentDivisor", Type: zcl.TypeUint16, Access: rd},
		{ID: 0x0604, Name: "acPowerMultiplier", Type: zcl.TypeUint16, Access: rd},
		{ID: 0x0605, Name: "acPowerDivisor", Type: zcl.TypeUint16, Access: rd},
	},
}
