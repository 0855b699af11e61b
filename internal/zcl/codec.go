package zcl

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ZCL data type IDs
const (
	TypeNoData    uint8 = 0x00
	TypeBool      uint8 = 0x10
	TypeBitmap8   uint8 = 0x18
	TypeBitmap16  uint8 = 0x19
	TypeBitmap24  uint8 = 0x1A
	TypeBitmap32  uint8 = 0x1B
	TypeUint8     uint8 = 0x20
	TypeUint16    uint8 = 0x21
	TypeUint24    uint8 = 0x22
	TypeUint32    uint8 = 0x23
	TypeUint40    uint8 = 0x24
	TypeUint48    uint8 = 0x25
	TypeUint56    uint8 = 0x26
	TypeUint64    uint8 = 0x27
	TypeInt8      uint8 = 0x28
	TypeInt16     uint8 = 0x29
	TypeInt24     uint8 = 0x2A
	TypeInt32     uint8 = 0x2B
	TypeInt48     uint8 = 0x2D
	TypeInt64     uint8 = 0x2F
	TypeEnum8     uint8 = 0x30
	TypeEnum16    uint8 = 0x31
	TypeFloat32   uint8 = 0x39
	TypeFloat64   uint8 = 0x3A
	TypeOctetStr  uint8 = 0x41
	TypeCharStr   uint8 = 0x42
	TypeUTC       uint8 = 0xE2
	TypeClusterID uint8 = 0xE8
	TypeAttrID    uint8 = 0xE9
	TypeEUI64     uint8 = 0xF0
)

type typeInfo struct {
	name   string
	size   int // -1 for length-prefixed
	signed bool
}

var typeTable = map[uint8]typeInfo{
	TypeNoData:    {"nodata", 0, false},
	TypeBool:      {"bool", 1, false},
	TypeBitmap8:   {"map8", 1, false},
	TypeBitmap16:  {"map16", 2, false},
	TypeBitmap24:  {"map24", 3, false},
	TypeBitmap32:  {"map32", 4, false},
	TypeUint8:     {"uint8", 1, false},
	TypeUint16:    {"uint16", 2, false},
	TypeUint24:    {"uint24", 3, false},
	TypeUint32:    {"uint32", 4, false},
	TypeUint40:    {"uint40", 5, false},
	TypeUint48:    {"uint48", 6, false},
	TypeUint56:    {"uint56", 7, false},
	TypeUint64:    {"uint64", 8, false},
	TypeInt8:      {"int8", 1, true},
	TypeInt16:     {"int16", 2, true},
	TypeInt24:     {"int24", 3, true},
	TypeInt32:     {"int32", 4, true},
	TypeInt48:     {"int48", 6, true},
	TypeInt64:     {"int64", 8, true},
	TypeEnum8:     {"enum8", 1, false},
	TypeEnum16:    {"enum16", 2, false},
	TypeFloat32:   {"single", 4, false},
	TypeFloat64:   {"double", 8, false},
	TypeOctetStr:  {"octstr", -1, false},
	TypeCharStr:   {"string", -1, false},
	TypeUTC:       {"UTC", 4, false},
	TypeClusterID: {"clusterId", 2, false},
	TypeAttrID:    {"attribId", 2, false},
	TypeEUI64:     {"EUI64", 8, false},
}

// TypeName returns a human-readable name for a ZCL type.
func TypeName(typeID uint8) string {
	if ti, ok := typeTable[typeID]; ok {
		return ti.name
	}
	return fmt.Sprintf("0x%02X", typeID)
}

// TypeSize returns the fixed size in bytes of a ZCL type, or -1 for variable-length types.
func TypeSize(typeID uint8) int {
	if ti, ok := typeTable[typeID]; ok {
		return ti.size
	}
	return -1
}

// IsAnalog reports whether a type is analog in the ZCL sense: integers and
// floats carry a reportable change, discrete types do not.
func IsAnalog(typeID uint8) bool {
	switch {
	case typeID >= TypeUint8 && typeID <= TypeInt64:
		return true
	case typeID == TypeFloat32 || typeID == TypeFloat64:
		return true
	}
	return false
}

// DecodeValue decodes a ZCL typed value from raw bytes, returning the Go
// value and bytes consumed. Unsigned integers decode to uint64, signed to
// int64, so converters can treat every width uniformly.
func DecodeValue(typeID uint8, data []byte) (any, int, error) {
	ti, ok := typeTable[typeID]
	if !ok {
		return nil, 0, fmt.Errorf("zcl: unsupported type 0x%02X", typeID)
	}
	switch typeID {
	case TypeNoData:
		return nil, 0, nil
	case TypeOctetStr, TypeCharStr:
		if len(data) < 1 {
			return nil, 0, fmt.Errorf("zcl: no length byte for %s", ti.name)
		}
		n := int(data[0])
		if n == 0xFF {
			return nil, 1, nil
		}
		if len(data) < 1+n {
			return nil, 0, fmt.Errorf("zcl: %s truncated: need %d, have %d", ti.name, n, len(data)-1)
		}
		if typeID == TypeCharStr {
			return string(data[1 : 1+n]), 1 + n, nil
		}
		return append([]byte(nil), data[1:1+n]...), 1 + n, nil
	}

	if len(data) < ti.size {
		return nil, 0, fmt.Errorf("zcl: not enough data for type 0x%02X: need %d, have %d", typeID, ti.size, len(data))
	}
	switch typeID {
	case TypeBool:
		return data[0] != 0, 1, nil
	case TypeFloat32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), 4, nil
	case TypeFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), 8, nil
	case TypeEUI64:
		var addr [8]byte
		copy(addr[:], data[:8])
		return addr, 8, nil
	}

	var u uint64
	for i := ti.size - 1; i >= 0; i-- {
		u = u<<8 | uint64(data[i])
	}
	if ti.signed {
		shift := 64 - 8*ti.size
		return int64(u<<shift) >> shift, ti.size, nil
	}
	return u, ti.size, nil
}

// EncodeValue encodes a Go value into ZCL wire format. A value that does
// not fit the type fails with a *ValueError.
func EncodeValue(typeID uint8, val any) ([]byte, error) {
	ti, ok := typeTable[typeID]
	if !ok {
		return nil, fmt.Errorf("zcl: unsupported type 0x%02X", typeID)
	}
	switch typeID {
	case TypeNoData:
		return nil, nil
	case TypeBool:
		v, ok := toBool(val)
		if !ok {
			return nil, &ValueError{Type: ti.name, Value: val, Reason: fmt.Sprintf("cannot convert %T", val)}
		}
		if v {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case TypeFloat32:
		v, ok := toFloat64(val)
		if !ok {
			return nil, &ValueError{Type: ti.name, Value: val, Reason: fmt.Sprintf("cannot convert %T", val)}
		}
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(v))), nil
	case TypeFloat64:
		v, ok := toFloat64(val)
		if !ok {
			return nil, &ValueError{Type: ti.name, Value: val, Reason: fmt.Sprintf("cannot convert %T", val)}
		}
		return binary.LittleEndian.AppendUint64(nil, math.Float64bits(v)), nil
	case TypeEUI64:
		switch a := val.(type) {
		case [8]byte:
			return append([]byte(nil), a[:]...), nil
		case []byte:
			if len(a) != 8 {
				return nil, &ValueError{Type: ti.name, Value: val, Reason: fmt.Sprintf("need 8 bytes, got %d", len(a))}
			}
			return append([]byte(nil), a...), nil
		}
		return nil, &ValueError{Type: ti.name, Value: val, Reason: fmt.Sprintf("cannot convert %T", val)}
	case TypeCharStr, TypeOctetStr:
		var b []byte
		switch s := val.(type) {
		case string:
			b = []byte(s)
		case []byte:
			b = s
		default:
			return nil, &ValueError{Type: ti.name, Value: val, Reason: fmt.Sprintf("cannot convert %T", val)}
		}
		if len(b) > 254 {
			return nil, &ValueError{Type: ti.name, Value: val, Reason: fmt.Sprintf("length %d exceeds 254", len(b))}
		}
		return append([]byte{byte(len(b))}, b...), nil
	}

	bits := uint(8 * ti.size)
	var u uint64
	if ti.signed {
		v, ok := toInt64(val)
		if !ok {
			return nil, &ValueError{Type: ti.name, Value: val, Reason: fmt.Sprintf("cannot convert %T", val)}
		}
		lo, hi := -(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1
		if v < lo || v > hi {
			return nil, &ValueError{Type: ti.name, Value: val, Reason: fmt.Sprintf("out of range %d..%d", lo, hi)}
		}
		u = uint64(v)
	} else {
		v, ok := toUint64(val)
		if !ok {
			return nil, &ValueError{Type: ti.name, Value: val, Reason: fmt.Sprintf("cannot convert %T", val)}
		}
		if bits < 64 && v > uint64(1)<<bits-1 {
			return nil, &ValueError{Type: ti.name, Value: val, Reason: fmt.Sprintf("exceeds maximum %d", uint64(1)<<bits-1)}
		}
		u = v
	}
	buf := make([]byte, ti.size)
	for i := range buf {
		buf[i] = byte(u >> (8 * i))
	}
	return buf, nil
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case float64:
		return b != 0, true
	case int:
		return b != 0, true
	case uint64:
		return b != 0, true
	}
	return false, false
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case uint:
		return uint64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	if i, ok := toInt64(v); ok && i >= 0 {
		return uint64(i), true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	if u, ok := toUint64(v); ok {
		return float64(u), true
	}
	return 0, false
}

// ToFloat64 converts any decoded numeric attribute value to float64.
func ToFloat64(v any) (float64, bool) {
	return toFloat64(v)
}
