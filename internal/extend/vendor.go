package extend

import (
	"encoding/binary"
	"fmt"
	"sort"

	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/exposes"
	"zigbee-capability/internal/zcl"
)

// TagValue maps one tagged field of a vendor structure to a read-only key.
// Endpoint scopes the key to a logical endpoint (state_l2), for multi-gang
// devices that report every gang through one physical endpoint.
type TagValue struct {
	Tag       int    `yaml:"tag"`
	Name      string `yaml:"name"`
	Endpoint  string `yaml:"endpoint"`
	Kind      string `yaml:"kind"` // numeric (default), binary or text
	Unit      string `yaml:"unit"`
	Transform string `yaml:"transform"`
	Category  string `yaml:"category"`
}

// LumiTLVConfig decodes the Xiaomi tag/type/value structure carried in a
// string attribute, by default genBasic.lumiSpecific (0xFF01).
type LumiTLVConfig struct {
	Cluster   string     `yaml:"cluster"`
	Attribute string     `yaml:"attribute"`
	Values    []TagValue `yaml:"values"`
}

// LumiTLV builds read-only keys from a Xiaomi TLV attribute.
func LumiTLV(c LumiTLVConfig) (Bundle, error) {
	cluster, attr := c.Cluster, c.Attribute
	if cluster == "" {
		cluster = "genBasic"
	}
	if attr == "" {
		attr = "lumiSpecific"
	}
	b, err := tagBundle("xiaomi_tlv", c.Values)
	if err != nil {
		return Bundle{}, err
	}
	values := c.Values
	b.Inbound = append(b.Inbound, converter.Inbound{
		Cluster: cluster,
		Types:   []string{converter.TypeAttributeReport, converter.TypeReadResponse},
		Convert: func(msg *converter.Message, _ *converter.Meta) (converter.State, error) {
			var raw []byte
			switch v := msg.Data[attr].(type) {
			case nil:
				return nil, nil
			case []byte:
				raw = v
			case string:
				raw = []byte(v)
			default:
				return nil, fmt.Errorf("xiaomi_tlv: %s.%s is %T, want bytes", cluster, attr, v)
			}
			tags, err := DecodeLumiTLV(raw)
			if err != nil {
				return nil, err
			}
			return tagPatch(tags, values), nil
		},
	})
	b.Refs = attrRefs(cluster, attr)
	return b, nil
}

// TuyaDPConfig decodes data points reported on the Tuya private cluster.
type TuyaDPConfig struct {
	Values []TagValue `yaml:"values"`
}

const tuyaCluster = "manuSpecificTuya"

// TuyaDP builds read-only keys from Tuya data point reports.
func TuyaDP(c TuyaDPConfig) (Bundle, error) {
	b, err := tagBundle("tuya_dp", c.Values)
	if err != nil {
		return Bundle{}, err
	}
	values := c.Values
	b.Inbound = append(b.Inbound, converter.Inbound{
		Cluster: tuyaCluster,
		Types:   []string{converter.CommandType("dataReport"), converter.CommandType("dataResponse")},
		Convert: func(msg *converter.Message, _ *converter.Meta) (converter.State, error) {
			dps, err := DecodeTuyaDPs(msg.Raw)
			if err != nil {
				return nil, err
			}
			return tagPatch(dps, values), nil
		},
	})
	b.Refs = []Ref{
		{Cluster: tuyaCluster, Member: "dataReport", Command: true},
		{Cluster: tuyaCluster, Member: "dataResponse", Command: true},
	}
	return b, nil
}

func tagBundle(builder string, values []TagValue) (Bundle, error) {
	if len(values) == 0 {
		return Bundle{}, invalid(builder, "values is empty")
	}
	var b Bundle
	tags := make(map[int]bool, len(values))
	for _, v := range values {
		if v.Name == "" {
			return Bundle{}, invalid(builder, "tag %d: name is required", v.Tag)
		}
		if tags[v.Tag] {
			return Bundle{}, invalid(builder, "duplicate tag %d", v.Tag)
		}
		tags[v.Tag] = true
		if _, ok := transforms[v.Transform]; !ok && v.Transform != "" {
			return Bundle{}, invalid(builder, "unknown transform %q", v.Transform)
		}

		var e *exposes.Expose
		switch v.Kind {
		case "", exposes.TypeNumeric:
			e = exposes.NewNumeric(v.Name, exposes.AccessState)
		case exposes.TypeBinary:
			e = exposes.NewBinary(v.Name, exposes.AccessState, true, false)
		case exposes.TypeText:
			e = exposes.NewText(v.Name, exposes.AccessState)
		default:
			return Bundle{}, invalid(builder, "tag %d: unknown kind %q", v.Tag, v.Kind)
		}
		if v.Unit != "" {
			e.WithUnit(v.Unit)
		}
		if v.Endpoint != "" {
			if _, err := endpointList(builder, []string{v.Endpoint}); err != nil {
				return Bundle{}, err
			}
			scoped(e, v.Endpoint)
		}
		switch v.Category {
		case "":
		case exposes.CategoryConfig, exposes.CategoryDiagnostic:
			e.WithCategory(v.Category)
		default:
			return Bundle{}, invalid(builder, "unknown category %q", v.Category)
		}
		b.Exposes = append(b.Exposes, e)
	}
	return b, nil
}

func tagPatch(decoded map[int]any, values []TagValue) converter.State {
	patch := converter.State{}
	for _, v := range values {
		raw, ok := decoded[v.Tag]
		if !ok {
			continue
		}
		if fn := transforms[v.Transform]; fn != nil {
			raw = fn(raw)
		}
		patch[converter.EndpointKey(v.Name, v.Endpoint)] = raw
	}
	if len(patch) == 0 {
		return nil
	}
	return patch
}

// DecodeLumiTLV parses the Xiaomi structure: repeated
// [tag:uint8][zcl type:uint8][value]. A trailing partial header is ignored.
func DecodeLumiTLV(data []byte) (map[int]any, error) {
	result := make(map[int]any)
	pos := 0
	for pos+2 <= len(data) {
		tag := int(data[pos])
		typeID := data[pos+1]
		pos += 2

		val, n, err := zcl.DecodeValue(typeID, data[pos:])
		if err != nil {
			return result, fmt.Errorf("xiaomi_tlv: tag %d type 0x%02X at offset %d: %w", tag, typeID, pos, err)
		}
		result[tag] = val
		pos += n
	}
	return result, nil
}

// Tuya data point types.
const (
	tuyaRaw    = 0
	tuyaBool   = 1
	tuyaValue  = 2
	tuyaString = 3
	tuyaEnum   = 4
	tuyaBitmap = 5
)

// DecodeTuyaDPs parses a Tuya cluster payload:
// seq(2 BE) then repeated [dp(1) type(1) len(2 BE) data(len)].
func DecodeTuyaDPs(data []byte) (map[int]any, error) {
	result := make(map[int]any)
	if len(data) < 2 {
		return result, nil
	}
	pos := 2
	for pos+4 <= len(data) {
		dp := int(data[pos])
		typ := data[pos+1]
		n := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		pos += 4
		if pos+n > len(data) {
			return result, fmt.Errorf("tuya_dp: dp %d needs %d bytes at offset %d, have %d", dp, n, pos, len(data)-pos)
		}
		payload := data[pos : pos+n]
		pos += n

		switch typ {
		case tuyaBool:
			if n >= 1 {
				result[dp] = payload[0] != 0
			}
		case tuyaValue:
			if n >= 4 {
				result[dp] = int64(int32(binary.BigEndian.Uint32(payload[:4])))
			}
		case tuyaString:
			result[dp] = string(payload)
		case tuyaEnum:
			if n >= 1 {
				result[dp] = int64(payload[0])
			}
		case tuyaBitmap:
			var v uint32
			for _, b := range payload {
				v = v<<8 | uint32(b)
			}
			result[dp] = int64(v)
		default:
			result[dp] = append([]byte(nil), payload...)
		}
	}
	return result, nil
}

var transforms = map[string]func(any) any{
	"":             nil,
	"lumi_battery": lumiBattery,
	"minus_one":    minusOne,
	"lumi_trigger": lumiTrigger,
	"bool_invert":  boolInvert,
	"divide_10":    divideBy(10),
	"divide_100":   divideBy(100),
}

// Transforms returns the names accepted in TagValue.Transform.
func Transforms() []string {
	names := make([]string, 0, len(transforms))
	for n := range transforms {
		if n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

func divideBy(n float64) func(any) any {
	return func(v any) any {
		f, ok := numberOf(v)
		if !ok {
			return v
		}
		return f / n
	}
}

// lumiBattery maps millivolts to percent: 2850 mV is empty, 3000 mV is full.
func lumiBattery(v any) any {
	mv, ok := numberOf(v)
	if !ok {
		return v
	}
	const lo, hi = 2850, 3000
	pct := (mv - lo) / (hi - lo) * 100
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	return int(pct)
}

func minusOne(v any) any {
	n, ok := toInt(v)
	if !ok {
		return v
	}
	return n - 1
}

// lumiTrigger keeps the low 16 bits of the trigger counter and drops the
// initial press.
func lumiTrigger(v any) any {
	n, ok := toInt(v)
	if !ok {
		return v
	}
	return n&0xFFFF - 1
}

func boolInvert(v any) any {
	if b, ok := v.(bool); ok {
		return !b
	}
	if n, ok := toInt(v); ok {
		return n == 0
	}
	return v
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	}
	f, ok := numberOf(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}
