package ncp

import (
	"encoding/binary"
	"fmt"

	"zigbee-capability/internal/zcl"
)

// ParseReadResponse parses the payload of a ZCL Read Attributes Response:
// repeated [attr id:2][status:1] followed by [type:1][value] on success.
func ParseReadResponse(data []byte) ([]AttributeResponse, error) {
	var out []AttributeResponse
	for len(data) > 0 {
		if len(data) < 3 {
			return out, fmt.Errorf("ncp: read response record truncated at %d bytes", len(data))
		}
		r := AttributeResponse{AttrID: binary.LittleEndian.Uint16(data), Status: data[2]}
		data = data[3:]
		if r.Status != zcl.StatusSuccess {
			out = append(out, r)
			continue
		}
		var err error
		r.DataType, r.Value, data, err = typedValue(r.AttrID, data)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ParseReport parses the payload of a ZCL Report Attributes command:
// repeated [attr id:2][type:1][value].
func ParseReport(data []byte) ([]AttributeRecord, error) {
	var out []AttributeRecord
	for len(data) > 0 {
		if len(data) < 3 {
			return out, fmt.Errorf("ncp: report record truncated at %d bytes", len(data))
		}
		id := binary.LittleEndian.Uint16(data)
		typ, val, rest, err := typedValue(id, data[2:])
		if err != nil {
			return out, err
		}
		out = append(out, AttributeRecord{AttrID: id, DataType: typ, Value: val})
		data = rest
	}
	return out, nil
}

// typedValue splits [type][value] off data, using the codec to find the
// value boundary. The returned value keeps its wire encoding.
func typedValue(attr uint16, data []byte) (uint8, []byte, []byte, error) {
	if len(data) < 1 {
		return 0, nil, nil, fmt.Errorf("ncp: attribute 0x%04X: missing data type", attr)
	}
	typ := data[0]
	_, n, err := zcl.DecodeValue(typ, data[1:])
	if err != nil {
		return 0, nil, nil, fmt.Errorf("ncp: attribute 0x%04X: %w", attr, err)
	}
	val := append([]byte(nil), data[1:1+n]...)
	return typ, val, data[1+n:], nil
}
