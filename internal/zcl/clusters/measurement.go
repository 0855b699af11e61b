package clusters

import "zigbee-capability/internal/zcl"

var MsIlluminanceMeasurement = zcl.ClusterDef{
	ID:   0x0400,
	Name: "msIlluminanceMeasurement",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "measuredValue", Type: zcl.TypeUint16, Access: rp},
		{ID: 0x0001, Name: "minMeasuredValue", Type: zcl.TypeUint16, Access: rd},
		{ID: 0x0002, Name: "maxMeasuredValue", Type: zcl.TypeUint16, Access: rd},
	},
}

var MsTemperatureMeasurement = zcl.ClusterDef{
	ID:   0x0402,
	Name: "msTemperatureMeasurement",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "measuredValue", Type: zcl.TypeInt16, Access: rp},
		{ID: 0x0001, Name: "minMeasuredValue", Type: zcl.TypeInt16, Access: rd},
		{ID: 0x0002, Name: "maxMeasuredValue", Type: zcl.TypeInt16, Access: rd},
	},
}

var MsPressureMeasurement = zcl.ClusterDef{
	ID:   0x0403,
	Name: "msPressureMeasurement",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "measuredValue", Type: zcl.TypeInt16, Access: rp},
	},
}

var MsRelativeHumidity = zcl.ClusterDef{
	ID:   0x0405,
	Name: "msRelativeHumidity",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "measuredValue", Type: zcl.TypeUint16, Access: rp},
	},
}

var MsOccupancySensing = zcl.ClusterDef{
	ID:   0x0406,
	Name: "msOccupancySensing",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "occupancy", Type: zcl.TypeBitmap8, Access: rp},
		{ID: 0x0010, Name: "pirOToUDelay", Type: zcl.TypeUint16, Access: rw},
	},
}
