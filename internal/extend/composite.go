package extend

import (
	"context"
	"fmt"

	"zigbee-capability/internal/commission"
	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/exposes"
)

// CompositeField is one member of a record-valued capability.
type CompositeField struct {
	Name      string   `yaml:"name"`
	Attribute string   `yaml:"attribute"`
	Unit      string   `yaml:"unit"`
	ValueMin  *float64 `yaml:"value_min"`
	ValueMax  *float64 `yaml:"value_max"`
}

// CompositeConfig maps several attributes of one cluster to a single
// record-valued key. With Ascending set, field values must be strictly
// increasing in declaration order.
type CompositeConfig struct {
	Name             string           `yaml:"name"`
	Cluster          string           `yaml:"cluster"`
	Description      string           `yaml:"description"`
	Fields           []CompositeField `yaml:"fields"`
	Ascending        bool             `yaml:"ascending"`
	Endpoints        []string         `yaml:"endpoints"`
	ManufacturerCode uint16           `yaml:"manufacturer_code"`
	Reporting        *ReportingConfig `yaml:"reporting"`
}

func (c *CompositeConfig) validate() error {
	if c.Name == "" || c.Cluster == "" {
		return invalid("composite", "name and cluster are required")
	}
	if len(c.Fields) < 2 {
		return invalid("composite", "at least two fields are required")
	}
	seen := make(map[string]bool)
	for _, f := range c.Fields {
		if f.Name == "" || f.Attribute == "" {
			return invalid("composite", "field name and attribute are required")
		}
		if seen[f.Name] || seen["@"+f.Attribute] {
			return invalid("composite", "duplicate field %q", f.Name)
		}
		seen[f.Name], seen["@"+f.Attribute] = true, true
		if f.ValueMin != nil && f.ValueMax != nil && *f.ValueMin > *f.ValueMax {
			return invalid("composite", "field %q: value_min > value_max", f.Name)
		}
	}
	return c.Reporting.validate("composite")
}

// Composite builds a record-valued capability. A set validates every field
// and the ordering constraint before issuing a single write for all
// attributes; any violation rejects the whole record.
func Composite(c CompositeConfig) (Bundle, error) {
	if err := c.validate(); err != nil {
		return Bundle{}, err
	}
	eps, err := endpointList("composite", c.Endpoints)
	if err != nil {
		return Bundle{}, err
	}

	attrs := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		attrs[i] = f.Attribute
	}
	opts := options(c.ManufacturerCode)
	cluster := c.Cluster

	var b Bundle
	for _, ep := range eps {
		e := exposes.NewComposite(c.Name, c.Name, exposes.AccessAll).WithDescription(c.Description)
		for _, f := range c.Fields {
			fe := exposes.NewNumeric(f.Name, exposes.AccessAll).WithUnit(f.Unit)
			if f.ValueMin != nil {
				fe.WithValueMin(*f.ValueMin)
			}
			if f.ValueMax != nil {
				fe.WithValueMax(*f.ValueMax)
			}
			e.WithFeature(fe)
		}
		scoped(e, ep)
		key := e.Property
		b.Exposes = append(b.Exposes, e)

		b.Inbound = append(b.Inbound, converter.Inbound{
			Cluster:  cluster,
			Types:    []string{converter.TypeAttributeReport, converter.TypeReadResponse},
			Endpoint: ep,
			Convert: func(msg *converter.Message, meta *converter.Meta) (converter.State, error) {
				var record map[string]any
				for _, f := range c.Fields {
					raw, ok := msg.Data[f.Attribute]
					if !ok {
						continue
					}
					v, ok := numberOf(raw)
					if !ok {
						return nil, fmt.Errorf("%s: unexpected %s value %v", key, f.Attribute, raw)
					}
					if record == nil {
						record = priorRecord(meta, key)
					}
					record[f.Name] = v
				}
				if record == nil {
					return nil, nil
				}
				return converter.State{key: record}, nil
			},
		})

		b.Outbound = append(b.Outbound, converter.Outbound{
			Keys:     []string{key},
			Endpoint: ep,
			Set: func(ctx context.Context, e converter.Endpoint, key string, value any, _ *converter.Meta) (converter.State, error) {
				record, values, err := c.encode(key, value)
				if err != nil {
					return nil, err
				}
				if err := e.Write(ctx, cluster, values, opts); err != nil {
					return nil, converter.Transport("write", cluster, err)
				}
				return converter.State{key: record}, nil
			},
			Get: func(ctx context.Context, e converter.Endpoint, _ string, _ *converter.Meta) error {
				return converter.Transport("read", cluster, e.Read(ctx, cluster, attrs, opts))
			},
		})

		if c.Reporting != nil {
			items := make([]converter.Reporting, len(attrs))
			for i, a := range attrs {
				items[i] = c.Reporting.item(a)
			}
			for _, s := range commission.BindAndReport(ep, cluster, items...) {
				b.Configure = append(b.Configure, s.WithOptions(opts))
			}
		}
	}
	b.Refs = attrRefs(cluster, attrs...)
	return b, nil
}

// encode validates a full record and returns it along with the attribute
// write payload.
func (c *CompositeConfig) encode(key string, value any) (map[string]any, map[string]any, error) {
	in, ok := asRecord(value)
	if !ok {
		return nil, nil, &converter.ValueDomainError{Key: key, Value: value, Reason: "expected an object"}
	}
	if len(in) != len(c.Fields) {
		return nil, nil, &converter.ValueDomainError{Key: key, Value: value, Reason: fmt.Sprintf("expected exactly %d fields", len(c.Fields))}
	}
	record := make(map[string]any, len(c.Fields))
	values := make(map[string]any, len(c.Fields))
	var prev *float64
	var prevName string
	for _, f := range c.Fields {
		raw, ok := in[f.Name]
		if !ok {
			return nil, nil, &converter.ValueDomainError{Key: key, Value: value, Reason: fmt.Sprintf("missing field %q", f.Name)}
		}
		v, err := checkRange(key+"."+f.Name, raw, f.ValueMin, f.ValueMax)
		if err != nil {
			return nil, nil, err
		}
		if c.Ascending && prev != nil && v <= *prev {
			return nil, nil, &converter.ValueDomainError{Key: key, Value: value, Reason: fmt.Sprintf("%s must be greater than %s", f.Name, prevName)}
		}
		prev, prevName = ptr(v), f.Name
		record[f.Name] = v
		values[f.Attribute] = v
	}
	return record, values, nil
}

func asRecord(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case converter.State:
		return m, true
	}
	return nil, false
}

func priorRecord(meta *converter.Meta, key string) map[string]any {
	record := make(map[string]any)
	if meta == nil {
		return record
	}
	if prev, ok := asRecord(meta.State[key]); ok {
		for k, v := range prev {
			record[k] = v
		}
	}
	return record
}
