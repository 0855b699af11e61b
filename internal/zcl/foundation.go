package zcl

import "fmt"

// Foundation ZCL command IDs (global, not cluster-specific).
const (
	FoundationReadAttributes         uint8 = 0x00
	FoundationReadAttributesResponse uint8 = 0x01
	FoundationWriteAttributes        uint8 = 0x02
	FoundationWriteAttributesResp    uint8 = 0x04
	FoundationConfigReporting        uint8 = 0x06
	FoundationConfigReportingResp    uint8 = 0x07
	FoundationReportAttributes       uint8 = 0x0A
	FoundationDefaultResponse        uint8 = 0x0B
)

// ZCL status codes
const (
	StatusSuccess         uint8 = 0x00
	StatusFailure         uint8 = 0x01
	StatusUnsupportedAttr uint8 = 0x86
	StatusInvalidValue    uint8 = 0x87
	StatusReadOnly        uint8 = 0x88
	StatusNotFound        uint8 = 0x8B
	StatusUnreportable    uint8 = 0x8C
	StatusInvalidDataType uint8 = 0x8D
	StatusTimeout         uint8 = 0x94
)

var statusNames = map[uint8]string{
	StatusSuccess:         "SUCCESS",
	StatusFailure:         "FAILURE",
	StatusUnsupportedAttr: "UNSUPPORTED_ATTRIBUTE",
	StatusInvalidValue:    "INVALID_VALUE",
	StatusReadOnly:        "READ_ONLY",
	StatusNotFound:        "NOT_FOUND",
	StatusUnreportable:    "UNREPORTABLE_ATTRIBUTE",
	StatusInvalidDataType: "INVALID_DATA_TYPE",
	StatusTimeout:         "TIMEOUT",
}

// StatusName returns the ZCL name of a status code.
func StatusName(status uint8) string {
	if n, ok := statusNames[status]; ok {
		return n
	}
	return fmt.Sprintf("0x%02X", status)
}

// Reporting interval presets in seconds.
const (
	RepIntervalSecond uint16 = 1
	RepIntervalMinute uint16 = 60
	RepIntervalHour   uint16 = 3600
	RepIntervalMax    uint16 = 65000
)
