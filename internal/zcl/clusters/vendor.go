package clusters

import "zigbee-capability/internal/zcl"

// Manufacturer codes.
const (
	ManufacturerLumi uint16 = 0x115F
	ManufacturerTuya uint16 = 0x1002
)

// GenBasicLumi carries the TLV status record Aqara devices append to
// genBasic.
var GenBasicLumi = zcl.ClusterDef{
	ID:               0x0000,
	Name:             "genBasic",
	ManufacturerCode: ManufacturerLumi,
	Attributes: []zcl.AttributeDef{
		{ID: 0xFF01, Name: "lumiSpecific", Type: zcl.TypeCharStr, Access: rp},
		{ID: 0xFF02, Name: "lumiStruct", Type: zcl.TypeOctetStr, Access: rp},
	},
}

var ManuSpecificLumi = zcl.ClusterDef{
	ID:               0xFCC0,
	Name:             "manuSpecificLumi",
	ManufacturerCode: ManufacturerLumi,
	Attributes: []zcl.AttributeDef{
		{ID: 0x0009, Name: "mode", Type: zcl.TypeUint8, Access: rw},
		{ID: 0x00F7, Name: "lumiSpecific", Type: zcl.TypeOctetStr, Access: rp},
	},
}

// ManuSpecificTuya is the Tuya datapoint cluster. Its command payloads are
// datapoint records and are delivered raw.
var ManuSpecificTuya = zcl.ClusterDef{
	ID:   0xEF00,
	Name: "manuSpecificTuya",
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "dataRequest", Direction: zcl.DirectionToServer},
		{ID: 0x03, Name: "dataQuery", Direction: zcl.DirectionToServer},
		{ID: 0x01, Name: "dataResponse", Direction: zcl.DirectionToClient},
		{ID: 0x02, Name: "dataReport", Direction: zcl.DirectionToClient},
	},
}
