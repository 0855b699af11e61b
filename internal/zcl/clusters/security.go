package clusters

import "zigbee-capability/internal/zcl"

var SsIasZone = zcl.ClusterDef{
	ID:   0x0500,
	Name: "ssIasZone",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "zoneState", Type: zcl.TypeEnum8, Access: rd},
		{ID: 0x0001, Name: "zoneType", Type: zcl.TypeEnum16, Access: rd},
		{ID: 0x0002, Name: "zoneStatus", Type: zcl.TypeBitmap16, Access: rp},
		{ID: 0x0010, Name: "iasCieAddr", Type: zcl.TypeEUI64, Access: rw},
		{ID: 0x0011, Name: "zoneId", Type: zcl.TypeUint8, Access: rd},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "enrollRsp", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "enrollrspcode", Type: zcl.TypeEnum8},
			{Name: "zoneid", Type: zcl.TypeUint8},
		}},
		{ID: 0x00, Name: "statusChangeNotification", Direction: zcl.DirectionToClient, Params: []zcl.ParamDef{
			{Name: "zonestatus", Type: zcl.TypeBitmap16},
			{Name: "extendedstatus", Type: zcl.TypeBitmap8},
		}},
		{ID: 0x01, Name: "enrollReq", Direction: zcl.DirectionToClient, Params: []zcl.ParamDef{
			{Name: "zonetype", Type: zcl.TypeEnum16},
			{Name: "manucode", Type: zcl.TypeUint16},
		}},
	},
}
