package clusters

import "zigbee-capability/internal/zcl"

const (
	rd  = zcl.AccessRead
	rw  = zcl.AccessRead | zcl.AccessWrite
	rp  = zcl.AccessRead | zcl.AccessReport
	rwp = zcl.AccessRead | zcl.AccessWrite | zcl.AccessReport
)

var GenBasic = zcl.ClusterDef{
	ID:   0x0000,
	Name: "genBasic",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "zclVersion", Type: zcl.TypeUint8, Access: rd},
		{ID: 0x0001, Name: "appVersion", Type: zcl.TypeUint8, Access: rd},
		{ID: 0x0002, Name: "stackVersion", Type: zcl.TypeUint8, Access: rd},
		{ID: 0x0003, Name: "hwVersion", Type: zcl.TypeUint8, Access: rd},
		{ID: 0x0004, Name: "manufacturerName", Type: zcl.TypeCharStr, Access: rd},
		{ID: 0x0005, Name: "modelId", Type: zcl.TypeCharStr, Access: rd},
		{ID: 0x0006, Name: "dateCode", Type: zcl.TypeCharStr, Access: rd},
		{ID: 0x0007, Name: "powerSource", Type: zcl.TypeEnum8, Access: rd},
		{ID: 0x4000, Name: "swBuildId", Type: zcl.TypeCharStr, Access: rd},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "resetFactDefault", Direction: zcl.DirectionToServer},
	},
}

var GenPowerCfg = zcl.ClusterDef{
	ID:   0x0001,
	Name: "genPowerCfg",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "mainsVoltage", Type: zcl.TypeUint16, Access: rd},
		{ID: 0x0020, Name: "batteryVoltage", Type: zcl.TypeUint8, Access: rp},
		{ID: 0x0021, Name: "batteryPercentageRemaining", Type: zcl.TypeUint8, Access: rp},
		{ID: 0x0035, Name: "batteryAlarmMask", Type: zcl.TypeBitmap8, Access: rw},
		{ID: 0x003E, Name: "batteryAlarmState", Type: zcl.TypeBitmap32, Access: rp},
	},
}

var GenIdentify = zcl.ClusterDef{
	ID:   0x0003,
	Name: "genIdentify",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "identifyTime", Type: zcl.TypeUint16, Access: rw},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "identify", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "identifytime", Type: zcl.TypeUint16},
		}},
	},
}

var GenOnOff = zcl.ClusterDef{
	ID:   0x0006,
	Name: "genOnOff",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "onOff", Type: zcl.TypeBool, Access: rp},
		{ID: 0x4000, Name: "globalSceneCtrl", Type: zcl.TypeBool, Access: rd},
		{ID: 0x4001, Name: "onTime", Type: zcl.TypeUint16, Access: rw},
		{ID: 0x4002, Name: "offWaitTime", Type: zcl.TypeUint16, Access: rw},
		{ID: 0x4003, Name: "startUpOnOff", Type: zcl.TypeEnum8, Access: rw},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "off", Direction: zcl.DirectionToServer},
		{ID: 0x01, Name: "on", Direction: zcl.DirectionToServer},
		{ID: 0x02, Name: "toggle", Direction: zcl.DirectionToServer},
	},
}

var GenLevelCtrl = zcl.ClusterDef{
	ID:   0x0008,
	Name: "genLevelCtrl",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "currentLevel", Type: zcl.TypeUint8, Access: rp},
		{ID: 0x0001, Name: "remainingTime", Type: zcl.TypeUint16, Access: rd},
		{ID: 0x000F, Name: "options", Type: zcl.TypeBitmap8, Access: rw},
		{ID: 0x0010, Name: "onOffTransitionTime", Type: zcl.TypeUint16, Access: rw},
		{ID: 0x0011, Name: "onLevel", Type: zcl.TypeUint8, Access: rw},
		{ID: 0x4000, Name: "startUpCurrentLevel", Type: zcl.TypeUint8, Access: rw},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "moveToLevel", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "level", Type: zcl.TypeUint8},
			{Name: "transtime", Type: zcl.TypeUint16},
		}},
		{ID: 0x04, Name: "moveToLevelWithOnOff", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "level", Type: zcl.TypeUint8},
			{Name: "transtime", Type: zcl.TypeUint16},
		}},
		{ID: 0x07, Name: "stopWithOnOff", Direction: zcl.DirectionToServer},
	},
}

var GenMultistateInput = zcl.ClusterDef{
	ID:   0x0012,
	Name: "genMultistateInput",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0055, Name: "presentValue", Type: zcl.TypeUint16, Access: rwp},
	},
}

var GenOta = zcl.ClusterDef{
	ID:   0x0019,
	Name: "genOta",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "upgradeServerId", Type: zcl.TypeEUI64, Access: rd},
		{ID: 0x0002, Name: "currentFileVersion", Type: zcl.TypeUint32, Access: rd},
		{ID: 0x0006, Name: "imageUpgradeStatus", Type: zcl.TypeEnum8, Access: rd},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x01, Name: "queryNextImageRequest", Direction: zcl.DirectionToClient, Params: []zcl.ParamDef{
			{Name: "fieldControl", Type: zcl.TypeUint8},
			{Name: "manufacturerCode", Type: zcl.TypeUint16},
			{Name: "imageType", Type: zcl.TypeUint16},
			{Name: "fileVersion", Type: zcl.TypeUint32},
		}},
		{ID: 0x02, Name: "queryNextImageResponse", Direction: zcl.DirectionToServer, Params: []zcl.ParamDef{
			{Name: "status", Type: zcl.TypeUint8},
		}},
	},
}
