package extend

import (
	"bytes"
	"sort"

	"gopkg.in/yaml.v3"
)

// Spec is a builder invocation as written in a definition file:
//
//	- type: numeric
//	  options:
//	    name: brightness_limit
//	    cluster: genLevelCtrl
//	    ...
type Spec struct {
	Type    string    `yaml:"type"`
	Options yaml.Node `yaml:"options"`
}

type buildFunc func(decode func(any) error) (Bundle, error)

func typed[C any](fn func(C) (Bundle, error)) buildFunc {
	return func(decode func(any) error) (Bundle, error) {
		var c C
		if err := decode(&c); err != nil {
			return Bundle{}, err
		}
		return fn(c)
	}
}

func bare(fn func() (Bundle, error)) buildFunc {
	return typed(func(struct{}) (Bundle, error) { return fn() })
}

var builders = map[string]buildFunc{
	"binary":         typed(Binary),
	"enum":           typed(Enum),
	"numeric":        typed(Numeric),
	"composite":      typed(Composite),
	"ias_zone":       typed(IASZone),
	"electricity":    typed(Electricity),
	"on_off":         typed(OnOff),
	"light":          typed(Light),
	"battery":        typed(Battery),
	"temperature":    typed(Temperature),
	"humidity":       typed(Humidity),
	"pressure":       typed(Pressure),
	"illuminance":    typed(Illuminance),
	"occupancy":      typed(Occupancy),
	"action":         typed(Action),
	"identify":       bare(Identify),
	"ota":            bare(OTA),
	"custom_cluster": typed(CustomCluster),
	"xiaomi_tlv":     typed(LumiTLV),
	"tuya_dp":        typed(TuyaDP),
}

// Builders returns the names accepted in Spec.Type.
func Builders() []string {
	names := make([]string, 0, len(builders))
	for n := range builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build evaluates a builder spec. Unknown builder types and unknown options
// fail with *InvalidBuilderConfigError.
func Build(spec Spec) (Bundle, error) {
	fn, ok := builders[spec.Type]
	if !ok {
		return Bundle{}, invalid(spec.Type, "unknown builder type")
	}
	return fn(func(v any) error {
		if spec.Options.Kind == 0 {
			return nil
		}
		data, err := yaml.Marshal(&spec.Options)
		if err != nil {
			return invalid(spec.Type, "%v", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil {
			return invalid(spec.Type, "%v", err)
		}
		return nil
	})
}

// BuildAll evaluates specs in order and returns the bundles.
func BuildAll(specs []Spec) ([]Bundle, error) {
	out := make([]Bundle, 0, len(specs))
	for _, s := range specs {
		b, err := Build(s)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

