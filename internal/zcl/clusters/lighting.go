package clusters

import "zigbee-capability/internal/zcl"

var LightingColorCtrl = zcl.ClusterDef{
	ID:   0x0300,
	Name: "lightingColorCtrl",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "currentHue", Type: zcl.TypeUint8, Access: rp},
		{ID: 0x0001, Name: "currentSaturation", Type: zcl.TypeUint8, Access: rp},
		{ID: 0x0003, Name: "currentX", Type: zcl.TypeUint16, Access: rp},
		{ID: 0x0004, Name: "currentY", Type: zcl.TypeUint16, Access: rp},
		{ID: 0x0007, Name: "colorTemperature", Type: zcl.TypeUint16, Access: rp},
		{ID: 0x0008, Name: "colorMode", Type: zcl.TypeEnum8, Access: rd},
		{ID: 0x400B, Name: "colorTempPhysicalMin", Type: zcl.TypeUint16, Access: rd},
		{ID: 0x400C, Name: "colorTempPhysicalMax", Type: zcl.TypeUint16, Access: rd},
		{ID: 0x4010, Name: "startUpColorTemperature", Type: zcl.TypeUint16, Access: rw},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x07, Name: "moveToColor", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "colorx", Type: zcl.TypeUint16},
			{Name: "colory", Type: zcl.TypeUint16},
			{Name: "transtime", Type: zcl.TypeUint16},
		}},
		{ID: 0x0A, Name: "moveToColorTemp", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "colortemp", Type: zcl.TypeUint16},
			{Name: "transtime", Type: zcl.TypeUint16},
		}},
	},
}
