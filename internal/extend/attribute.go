package extend

import (
	"context"
	"fmt"
	"math"

	"zigbee-capability/internal/commission"
	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/exposes"
)

// AttrConfig is shared by builders that map one cluster attribute to one
// semantic key.
type AttrConfig struct {
	Name             string           `yaml:"name"`
	Cluster          string           `yaml:"cluster"`
	Attribute        string           `yaml:"attribute"`
	Description      string           `yaml:"description"`
	ReadOnly         bool             `yaml:"read_only"`
	Category         string           `yaml:"category"`
	Endpoints        []string         `yaml:"endpoints"`
	ManufacturerCode uint16           `yaml:"manufacturer_code"`
	Reporting        *ReportingConfig `yaml:"reporting"`
}

func (c *AttrConfig) validate(builder string) error {
	switch {
	case c.Name == "":
		return invalid(builder, "name is required")
	case c.Cluster == "":
		return invalid(builder, "cluster is required")
	case c.Attribute == "":
		return invalid(builder, "attribute is required")
	}
	switch c.Category {
	case "", exposes.CategoryConfig, exposes.CategoryDiagnostic:
	default:
		return invalid(builder, "unknown category %q", c.Category)
	}
	return c.Reporting.validate(builder)
}

func (c *AttrConfig) access() uint8 {
	if c.ReadOnly {
		return exposes.AccessStateGet
	}
	return exposes.AccessAll
}

type decodeFunc func(raw any) (any, bool)

// encodeFunc validates a set value and returns the wire value and the
// optimistic state value.
type encodeFunc func(key string, value any) (wire any, state any, err error)

// attributeBundle expands a single-attribute capability over the configured
// endpoints.
func attributeBundle(builder string, c *AttrConfig, newExpose func() *exposes.Expose, decode decodeFunc, encode encodeFunc) (Bundle, error) {
	if err := c.validate(builder); err != nil {
		return Bundle{}, err
	}
	eps, err := endpointList(builder, c.Endpoints)
	if err != nil {
		return Bundle{}, err
	}

	var b Bundle
	opts := options(c.ManufacturerCode)
	cluster, attr := c.Cluster, c.Attribute
	for _, ep := range eps {
		e := newExpose().WithDescription(c.Description)
		if c.Category != "" {
			e.WithCategory(c.Category)
		}
		scoped(e, ep)
		if err := e.Validate(); err != nil {
			return Bundle{}, invalid(builder, "%v", err)
		}
		key := e.Property
		b.Exposes = append(b.Exposes, e)

		b.Inbound = append(b.Inbound, converter.Inbound{
			Cluster:  cluster,
			Types:    []string{converter.TypeAttributeReport, converter.TypeReadResponse},
			Endpoint: ep,
			Convert: func(msg *converter.Message, _ *converter.Meta) (converter.State, error) {
				raw, ok := msg.Data[attr]
				if !ok {
					return nil, nil
				}
				v, ok := decode(raw)
				if !ok {
					return nil, fmt.Errorf("%s: unexpected %s.%s value %v", key, cluster, attr, raw)
				}
				return converter.State{key: v}, nil
			},
		})

		out := converter.Outbound{
			Keys:     []string{key},
			Endpoint: ep,
			Get: func(ctx context.Context, e converter.Endpoint, _ string, _ *converter.Meta) error {
				return converter.Transport("read", cluster, e.Read(ctx, cluster, []string{attr}, opts))
			},
		}
		if !c.ReadOnly {
			out.Set = func(ctx context.Context, e converter.Endpoint, key string, value any, _ *converter.Meta) (converter.State, error) {
				wire, state, err := encode(key, value)
				if err != nil {
					return nil, err
				}
				if err := e.Write(ctx, cluster, map[string]any{attr: wire}, opts); err != nil {
					return nil, converter.Transport("write", cluster, err)
				}
				return converter.State{key: state}, nil
			}
		}
		b.Outbound = append(b.Outbound, out)

		if c.Reporting != nil {
			for _, s := range commission.BindAndReport(ep, cluster, c.Reporting.item(attr)) {
				b.Configure = append(b.Configure, s.WithOptions(opts))
			}
		}
	}
	b.Refs = attrRefs(cluster, attr)
	return b, nil
}

// BinaryConfig maps an attribute to a two-valued semantic key.
type BinaryConfig struct {
	AttrConfig `yaml:",inline"`
	ValueOn    any `yaml:"value_on"`  // default "ON"
	ValueOff   any `yaml:"value_off"` // default "OFF"
	WireOn     any `yaml:"wire_on"`   // default 1
	WireOff    any `yaml:"wire_off"`  // default 0
}

// Binary builds a two-valued capability. Set values other than ValueOn and
// ValueOff are rejected.
func Binary(c BinaryConfig) (Bundle, error) {
	on, off := orDefault(c.ValueOn, "ON"), orDefault(c.ValueOff, "OFF")
	wireOn, wireOff := orDefault(c.WireOn, 1), orDefault(c.WireOff, 0)
	if equalValue(on, off) || equalValue(wireOn, wireOff) {
		return Bundle{}, invalid("binary", "on and off values must differ")
	}
	return attributeBundle("binary", &c.AttrConfig,
		func() *exposes.Expose { return exposes.NewBinary(c.Name, c.access(), on, off) },
		func(raw any) (any, bool) {
			if equalValue(raw, wireOn) {
				return on, true
			}
			return off, true
		},
		func(key string, value any) (any, any, error) {
			switch {
			case equalValue(value, on):
				return wireOn, on, nil
			case equalValue(value, off):
				return wireOff, off, nil
			}
			return nil, nil, &converter.ValueDomainError{Key: key, Value: value, Reason: fmt.Sprintf("expected %v or %v", on, off)}
		})
}

// EnumConfig maps an attribute to a named value set.
type EnumConfig struct {
	AttrConfig `yaml:",inline"`
	Lookup     map[string]int `yaml:"lookup"`
}

// Enum builds an enumerated capability.
func Enum(c EnumConfig) (Bundle, error) {
	if len(c.Lookup) == 0 {
		return Bundle{}, invalid("enum", "lookup is empty")
	}
	seen := make(map[int]string, len(c.Lookup))
	for name, v := range c.Lookup {
		if prev, ok := seen[v]; ok {
			return Bundle{}, invalid("enum", "%q and %q share value %d", prev, name, v)
		}
		seen[v] = name
	}
	values := converter.SortedKeys(c.Lookup)
	return attributeBundle("enum", &c.AttrConfig,
		func() *exposes.Expose { return exposes.NewEnum(c.Name, c.access(), values) },
		func(raw any) (any, bool) { return converter.LookupKey(c.Lookup, raw) },
		func(key string, value any) (any, any, error) {
			v, err := converter.LookupValue(key, c.Lookup, value)
			return v, value, err
		})
}

// NumericConfig maps an attribute to a scaled numeric key. The wire value is
// the semantic value multiplied by Scale.
type NumericConfig struct {
	AttrConfig `yaml:",inline"`
	Unit       string   `yaml:"unit"`
	ValueMin   *float64 `yaml:"value_min"`
	ValueMax   *float64 `yaml:"value_max"`
	ValueStep  *float64 `yaml:"value_step"`
	Scale      *float64 `yaml:"scale"`
	Precision  *int     `yaml:"precision"`
}

func (c *NumericConfig) validate() error {
	if c.ValueMin != nil && c.ValueMax != nil && *c.ValueMin > *c.ValueMax {
		return invalid("numeric", "value_min %v > value_max %v", *c.ValueMin, *c.ValueMax)
	}
	if c.ValueStep != nil && *c.ValueStep <= 0 {
		return invalid("numeric", "value_step must be positive")
	}
	if c.Scale != nil && (*c.Scale <= 0 || math.IsInf(*c.Scale, 0) || math.IsNaN(*c.Scale)) {
		return invalid("numeric", "scale must be positive")
	}
	if c.Precision != nil && *c.Precision < 0 {
		return invalid("numeric", "precision must not be negative")
	}
	return nil
}

// Numeric builds a numeric capability. Set values outside
// [ValueMin, ValueMax] fail with a *converter.ValueDomainError before any
// write is issued.
func Numeric(c NumericConfig) (Bundle, error) {
	if err := c.validate(); err != nil {
		return Bundle{}, err
	}
	scale := 1.0
	if c.Scale != nil {
		scale = *c.Scale
	}
	return attributeBundle("numeric", &c.AttrConfig,
		func() *exposes.Expose {
			e := exposes.NewNumeric(c.Name, c.access()).WithUnit(c.Unit)
			if c.ValueMin != nil {
				e.WithValueMin(*c.ValueMin)
			}
			if c.ValueMax != nil {
				e.WithValueMax(*c.ValueMax)
			}
			if c.ValueStep != nil {
				e.WithValueStep(*c.ValueStep)
			}
			return e
		},
		func(raw any) (any, bool) {
			f, ok := numberOf(raw)
			if !ok {
				return nil, false
			}
			f /= scale
			if c.Precision != nil {
				f = converter.Round(f, *c.Precision)
			}
			return f, true
		},
		func(key string, value any) (any, any, error) {
			f, err := checkRange(key, value, c.ValueMin, c.ValueMax)
			if err != nil {
				return nil, nil, err
			}
			return math.Round(f * scale), value, nil
		})
}

// checkRange validates a numeric set value against an optional domain.
func checkRange(key string, value any, lo, hi *float64) (float64, error) {
	f, ok := numberOf(value)
	if !ok || math.IsNaN(f) {
		return 0, &converter.ValueDomainError{Key: key, Value: value, Reason: "not a number"}
	}
	if lo != nil && f < *lo {
		return 0, &converter.ValueDomainError{Key: key, Value: value, Reason: fmt.Sprintf("below minimum %v", *lo)}
	}
	if hi != nil && f > *hi {
		return 0, &converter.ValueDomainError{Key: key, Value: value, Reason: fmt.Sprintf("above maximum %v", *hi)}
	}
	return f, nil
}

// numberOf converts a value to float64, refusing strings and booleans.
func numberOf(v any) (float64, bool) {
	switch v.(type) {
	case string, bool, nil:
		return 0, false
	}
	return converter.ToFloat(v)
}

func equalValue(a, b any) bool {
	fa, okA := numberOrBool(a)
	fb, okB := numberOrBool(b)
	if okA && okB {
		return fa == fb
	}
	if okA != okB {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func numberOrBool(v any) (float64, bool) {
	if _, ok := v.(string); ok || v == nil {
		return 0, false
	}
	return converter.ToFloat(v)
}

func orDefault(v, def any) any {
	if v == nil {
		return def
	}
	return v
}

func ptr[T any](v T) *T { return &v }
