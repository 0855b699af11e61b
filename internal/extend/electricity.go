package extend

import (
	"context"
	"fmt"

	"zigbee-capability/internal/commission"
	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/exposes"
	"zigbee-capability/internal/zcl"
)

// MeterField maps one raw measurement attribute to a semantic key. The
// semantic value is raw * multiplier / divisor. When MultiplierAttribute or
// DivisorAttribute name an attribute the device has reported, its value
// replaces the static factor.
type MeterField struct {
	Key                 string           `yaml:"key"`
	Cluster             string           `yaml:"cluster"`
	Attribute           string           `yaml:"attribute"`
	Unit                string           `yaml:"unit"`
	Multiplier          float64          `yaml:"multiplier"`
	Divisor             float64          `yaml:"divisor"`
	MultiplierAttribute string           `yaml:"multiplier_attribute"`
	DivisorAttribute    string           `yaml:"divisor_attribute"`
	Precision           *int             `yaml:"precision"`
	Reporting           *ReportingConfig `yaml:"reporting"`
}

// ElectricityConfig configures a metering capability. A nil Fields list
// selects the standard power, voltage, current and energy fields.
type ElectricityConfig struct {
	Fields    []MeterField `yaml:"fields"`
	Exclude   []string     `yaml:"exclude"`
	Endpoints []string     `yaml:"endpoints"`
}

const (
	electricalCluster = "haElectricalMeasurement"
	meteringCluster   = "seMetering"
)

// StandardMeterFields returns the default electricity fields.
func StandardMeterFields() []MeterField {
	rep := func(change float64) *ReportingConfig {
		return &ReportingConfig{Min: Interval(zcl.RepIntervalSecond * 10), Max: Interval(zcl.RepIntervalMax), Change: change}
	}
	return []MeterField{
		{Key: "power", Cluster: electricalCluster, Attribute: "activePower", Unit: "W",
			MultiplierAttribute: "acPowerMultiplier", DivisorAttribute: "acPowerDivisor", Precision: ptr(2), Reporting: rep(5)},
		{Key: "voltage", Cluster: electricalCluster, Attribute: "rmsVoltage", Unit: "V",
			MultiplierAttribute: "acVoltageMultiplier", DivisorAttribute: "acVoltageDivisor", Precision: ptr(2), Reporting: rep(5)},
		{Key: "current", Cluster: electricalCluster, Attribute: "rmsCurrent", Unit: "A",
			MultiplierAttribute: "acCurrentMultiplier", DivisorAttribute: "acCurrentDivisor", Precision: ptr(3), Reporting: rep(50)},
		{Key: "energy", Cluster: meteringCluster, Attribute: "currentSummDelivered", Unit: "kWh",
			MultiplierAttribute: "multiplier", DivisorAttribute: "divisor", Precision: ptr(2), Reporting: rep(0)},
	}
}

func (c *ElectricityConfig) fields() ([]MeterField, error) {
	fields := c.Fields
	if fields == nil {
		fields = StandardMeterFields()
	}
	excluded := make(map[string]bool, len(c.Exclude))
	for _, k := range c.Exclude {
		excluded[k] = true
	}
	var out []MeterField
	seen := make(map[string]bool)
	for _, f := range fields {
		if excluded[f.Key] {
			continue
		}
		if f.Key == "" || f.Cluster == "" || f.Attribute == "" {
			return nil, invalid("electricity", "key, cluster and attribute are required")
		}
		if seen[f.Key] {
			return nil, invalid("electricity", "duplicate key %q", f.Key)
		}
		seen[f.Key] = true
		if f.Multiplier < 0 || f.Divisor < 0 {
			return nil, invalid("electricity", "%s: negative multiplier or divisor", f.Key)
		}
		if f.Multiplier == 0 {
			f.Multiplier = 1
		}
		if f.Divisor == 0 {
			f.Divisor = 1
		}
		if f.Precision != nil && *f.Precision < 0 {
			return nil, invalid("electricity", "%s: negative precision", f.Key)
		}
		if err := f.Reporting.validate("electricity"); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, invalid("electricity", "no fields")
	}
	return out, nil
}

// Electricity builds a metering capability. Each message yields only the
// keys whose attributes it carries.
func Electricity(c ElectricityConfig) (Bundle, error) {
	fields, err := c.fields()
	if err != nil {
		return Bundle{}, err
	}
	eps, err := endpointList("electricity", c.Endpoints)
	if err != nil {
		return Bundle{}, err
	}

	var clusters []string
	byCluster := make(map[string][]MeterField)
	for _, f := range fields {
		if _, ok := byCluster[f.Cluster]; !ok {
			clusters = append(clusters, f.Cluster)
		}
		byCluster[f.Cluster] = append(byCluster[f.Cluster], f)
	}

	var b Bundle
	for _, ep := range eps {
		for _, f := range fields {
			e := scoped(meterExpose(f), ep)
			b.Exposes = append(b.Exposes, e)
			cluster, attr := f.Cluster, f.Attribute
			b.Outbound = append(b.Outbound, converter.Outbound{
				Keys:     []string{e.Property},
				Endpoint: ep,
				Get: func(ctx context.Context, e converter.Endpoint, _ string, _ *converter.Meta) error {
					return converter.Transport("read", cluster, e.Read(ctx, cluster, []string{attr}, converter.Options{}))
				},
			})
		}

		for _, cluster := range clusters {
			cf := byCluster[cluster]
			b.Inbound = append(b.Inbound, converter.Inbound{
				Cluster:  cluster,
				Types:    []string{converter.TypeAttributeReport, converter.TypeReadResponse},
				Endpoint: ep,
				Convert: func(msg *converter.Message, meta *converter.Meta) (converter.State, error) {
					var patch converter.State
					for _, f := range cf {
						raw, ok := msg.Data[f.Attribute]
						if !ok {
							continue
						}
						v, ok := numberOf(raw)
						if !ok {
							return nil, fmt.Errorf("%s: unexpected %s value %v", f.Key, f.Attribute, raw)
						}
						mult, div := f.factors(msg, meta)
						precision := -1
						if f.Precision != nil {
							precision = *f.Precision
						}
						v = meta.Calibrate(f.Key, v*mult/div, precision)
						if patch == nil {
							patch = make(converter.State)
						}
						patch[converter.EndpointKey(f.Key, ep)] = v
					}
					return patch, nil
				},
			})

			var items []converter.Reporting
			var factors, attrs []string
			for _, f := range cf {
				attrs = append(attrs, f.Attribute)
				if f.Reporting != nil {
					items = append(items, f.Reporting.item(f.Attribute))
				}
				for _, a := range []string{f.MultiplierAttribute, f.DivisorAttribute} {
					if a != "" {
						factors = append(factors, a)
					}
				}
			}
			b.Configure = append(b.Configure, commission.Bind(ep, cluster))
			if len(items) > 0 {
				b.Configure = append(b.Configure, commission.Report(ep, cluster, items...))
			}
			if len(factors) > 0 {
				b.Configure = append(b.Configure, commission.Read(ep, cluster, factors...))
			}
			b.Configure = append(b.Configure, commission.Read(ep, cluster, attrs...))
		}
	}
	for _, f := range fields {
		b.Refs = append(b.Refs, attrRefs(f.Cluster, f.Attribute)...)
		for _, a := range []string{f.MultiplierAttribute, f.DivisorAttribute} {
			if a != "" {
				b.Refs = append(b.Refs, Ref{Cluster: f.Cluster, Member: a})
			}
		}
	}
	return b, nil
}

func (f *MeterField) factors(msg *converter.Message, meta *converter.Meta) (float64, float64) {
	mult, div := f.Multiplier, f.Divisor
	lookup := func(attr string) (float64, bool) {
		if attr == "" {
			return 0, false
		}
		if raw, ok := msg.Data[attr]; ok {
			return numberOf(raw)
		}
		if meta == nil || meta.Device == nil {
			return 0, false
		}
		raw, ok := meta.Device.Attribute(msg.Endpoint, f.Cluster, attr)
		if !ok {
			return 0, false
		}
		return numberOf(raw)
	}
	if v, ok := lookup(f.MultiplierAttribute); ok && v > 0 {
		mult = v
	}
	if v, ok := lookup(f.DivisorAttribute); ok && v > 0 {
		div = v
	}
	return mult, div
}

func meterExpose(f MeterField) *exposes.Expose {
	var e *exposes.Expose
	switch f.Key {
	case "power":
		e = exposes.Power()
	case "voltage":
		e = exposes.Voltage()
	case "current":
		e = exposes.Current()
	case "energy":
		e = exposes.Energy()
	default:
		e = exposes.NewNumeric(f.Key, exposes.AccessStateGet)
	}
	if f.Unit != "" {
		e.WithUnit(f.Unit)
	}
	return e
}
