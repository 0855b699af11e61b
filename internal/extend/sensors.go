package extend

import (
	"context"
	"fmt"
	"math"

	"zigbee-capability/internal/commission"
	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/exposes"
	"zigbee-capability/internal/zcl"
)

// SensorConfig configures a measurement preset.
type SensorConfig struct {
	Endpoints []string         `yaml:"endpoints"`
	Reporting *ReportingConfig `yaml:"reporting"`
}

type measurementSpec struct {
	builder   string
	cluster   string
	attribute string
	expose    func() *exposes.Expose
	transform func(raw float64) any
	// precision rounds float results after the builder-named calibration
	// options are applied.
	precision int
	reporting ReportingConfig
}

func measurement(spec measurementSpec, c SensorConfig) (Bundle, error) {
	rep := c.Reporting
	if rep == nil {
		rep = &spec.reporting
	}
	if err := rep.validate(spec.builder); err != nil {
		return Bundle{}, err
	}
	eps, err := endpointList(spec.builder, c.Endpoints)
	if err != nil {
		return Bundle{}, err
	}
	cluster, attr := spec.cluster, spec.attribute

	var b Bundle
	for _, ep := range eps {
		e := scoped(spec.expose(), ep)
		key := e.Property
		b.Exposes = append(b.Exposes, e)
		b.Inbound = append(b.Inbound, converter.Inbound{
			Cluster:  cluster,
			Types:    []string{converter.TypeAttributeReport, converter.TypeReadResponse},
			Endpoint: ep,
			Convert: func(msg *converter.Message, meta *converter.Meta) (converter.State, error) {
				raw, ok := msg.Data[attr]
				if !ok {
					return nil, nil
				}
				v, ok := numberOf(raw)
				if !ok {
					return nil, fmt.Errorf("%s: unexpected %s value %v", key, attr, raw)
				}
				out := spec.transform(v)
				if f, ok := out.(float64); ok {
					out = meta.Calibrate(spec.builder, f, spec.precision)
				}
				return converter.State{key: out}, nil
			},
		})
		b.Outbound = append(b.Outbound, converter.Outbound{
			Keys:     []string{key},
			Endpoint: ep,
			Get: func(ctx context.Context, e converter.Endpoint, _ string, _ *converter.Meta) error {
				return converter.Transport("read", cluster, e.Read(ctx, cluster, []string{attr}, converter.Options{}))
			},
		})
		b.Configure = append(b.Configure, commission.BindAndReport(ep, cluster, rep.item(attr))...)
		b.Configure = append(b.Configure, commission.Read(ep, cluster, attr))
	}
	b.Refs = attrRefs(cluster, attr)
	return b, nil
}

func defaultSensorReporting(change float64) ReportingConfig {
	return ReportingConfig{Min: Interval(10), Max: Interval(zcl.RepIntervalHour), Change: change}
}

// Temperature builds a temperature sensor in °C.
func Temperature(c SensorConfig) (Bundle, error) {
	return measurement(measurementSpec{
		builder: "temperature", cluster: "msTemperatureMeasurement", attribute: "measuredValue",
		expose:    exposes.Temperature,
		transform: func(v float64) any { return v / 100 },
		precision: 2,
		reporting: defaultSensorReporting(10),
	}, c)
}

// Humidity builds a relative humidity sensor in %.
func Humidity(c SensorConfig) (Bundle, error) {
	return measurement(measurementSpec{
		builder: "humidity", cluster: "msRelativeHumidity", attribute: "measuredValue",
		expose:    exposes.Humidity,
		transform: func(v float64) any { return v / 100 },
		precision: 2,
		reporting: defaultSensorReporting(100),
	}, c)
}

// Pressure builds an atmospheric pressure sensor in hPa.
func Pressure(c SensorConfig) (Bundle, error) {
	return measurement(measurementSpec{
		builder: "pressure", cluster: "msPressureMeasurement", attribute: "measuredValue",
		expose:    exposes.Pressure,
		transform: func(v float64) any { return v },
		precision: 1,
		reporting: defaultSensorReporting(1),
	}, c)
}

// Illuminance builds an illuminance sensor. The attribute is
// 10000*log10(lux)+1.
func Illuminance(c SensorConfig) (Bundle, error) {
	return measurement(measurementSpec{
		builder: "illuminance", cluster: "msIlluminanceMeasurement", attribute: "measuredValue",
		expose: exposes.Illuminance,
		transform: func(v float64) any {
			if v <= 0 {
				return 0.0
			}
			return math.Round(math.Pow(10, (v-1)/10000))
		},
		reporting: defaultSensorReporting(500),
	}, c)
}

// Occupancy builds an occupancy sensor from msOccupancySensing bit 0.
func Occupancy(c SensorConfig) (Bundle, error) {
	return measurement(measurementSpec{
		builder: "occupancy", cluster: "msOccupancySensing", attribute: "occupancy",
		expose:    exposes.Occupancy,
		transform: func(v float64) any { return uint64(v)&1 == 1 },
		reporting: ReportingConfig{Min: 0, Max: Interval(zcl.RepIntervalHour)},
	}, c)
}

// BatteryConfig configures the battery capability.
type BatteryConfig struct {
	// Percentage exposes battery; defaults to true.
	Percentage *bool `yaml:"percentage"`
	Voltage    bool  `yaml:"voltage"`
	Low        bool  `yaml:"low"`
	// DontDividePercentage is for devices that report 0-100 instead of
	// 0-200.
	DontDividePercentage bool `yaml:"dont_divide_percentage"`
	// FixPowerSource repairs devices that announce themselves as mains
	// powered.
	FixPowerSource bool             `yaml:"fix_power_source"`
	Reporting      *ReportingConfig `yaml:"reporting"`
}

const powerCfgCluster = "genPowerCfg"

// Battery builds the battery capability from genPowerCfg.
func Battery(c BatteryConfig) (Bundle, error) {
	percentage := boolOr(c.Percentage, true)
	if !percentage && !c.Voltage && !c.Low {
		return Bundle{}, invalid("battery", "nothing to expose")
	}
	rep := c.Reporting
	if rep == nil {
		rep = &ReportingConfig{Min: Interval(zcl.RepIntervalHour), Max: Interval(zcl.RepIntervalMax), Change: 10}
	}
	if err := rep.validate("battery"); err != nil {
		return Bundle{}, err
	}

	var b Bundle
	var attrs []string
	var items []converter.Reporting
	if percentage {
		b.Exposes = append(b.Exposes, exposes.Battery())
		attrs = append(attrs, "batteryPercentageRemaining")
		items = append(items, rep.item("batteryPercentageRemaining"))
	}
	if c.Voltage {
		b.Exposes = append(b.Exposes, exposes.BatteryVoltage())
		attrs = append(attrs, "batteryVoltage")
		items = append(items, rep.item("batteryVoltage"))
	}
	if c.Low {
		b.Exposes = append(b.Exposes, exposes.BatteryLow())
		attrs = append(attrs, "batteryAlarmState")
	}

	b.Inbound = append(b.Inbound, converter.Inbound{
		Cluster: powerCfgCluster,
		Types:   []string{converter.TypeAttributeReport, converter.TypeReadResponse},
		Convert: func(msg *converter.Message, _ *converter.Meta) (converter.State, error) {
			patch := converter.State{}
			if raw, ok := msg.Data["batteryPercentageRemaining"]; ok && percentage {
				v, ok := numberOf(raw)
				// 0xFF means invalid.
				if ok && v != 255 {
					if !c.DontDividePercentage {
						v /= 2
					}
					patch["battery"] = math.Max(0, math.Min(100, math.Round(v)))
				}
			}
			if raw, ok := msg.Data["batteryVoltage"]; ok && c.Voltage {
				if v, ok := numberOf(raw); ok && v != 255 {
					patch["voltage"] = v * 100
				}
			}
			if raw, ok := msg.Data["batteryAlarmState"]; ok && c.Low {
				if v, ok := numberOf(raw); ok {
					patch["battery_low"] = v != 0
				}
			}
			if len(patch) == 0 {
				return nil, nil
			}
			return patch, nil
		},
	})

	readKeys := map[string]string{"battery": "batteryPercentageRemaining", "voltage": "batteryVoltage"}
	var keys []string
	for _, e := range b.Exposes {
		if _, ok := readKeys[e.Property]; ok {
			keys = append(keys, e.Property)
		}
	}
	if len(keys) > 0 {
		b.Outbound = append(b.Outbound, converter.Outbound{
			Keys: keys,
			Get: func(ctx context.Context, e converter.Endpoint, key string, _ *converter.Meta) error {
				return converter.Transport("read", powerCfgCluster, e.Read(ctx, powerCfgCluster, []string{readKeys[key]}, converter.Options{}))
			},
		})
	}

	if len(items) > 0 {
		b.Configure = append(b.Configure, commission.BindAndReport("", powerCfgCluster, items...)...)
	}
	b.Configure = append(b.Configure, commission.Read("", powerCfgCluster, attrs...))
	if c.FixPowerSource {
		b.Configure = append(b.Configure, commission.RepairPowerSource(converter.PowerSourceBattery))
	}
	b.Refs = attrRefs(powerCfgCluster, attrs...)
	return b, nil
}

// ActionConfig maps attribute values and received commands to the action
// key. With PostfixEndpoint the action value carries the source endpoint
// name, e.g. "single_left"; Endpoints lists those names.
type ActionConfig struct {
	Cluster         string         `yaml:"cluster"`
	Attribute       string         `yaml:"attribute"`
	Lookup          map[string]int `yaml:"lookup"`
	Commands        []string       `yaml:"commands"`
	PostfixEndpoint bool           `yaml:"postfix_endpoint"`
	Endpoints       []string       `yaml:"endpoints"`
}

// Action builds a stateless event capability.
func Action(c ActionConfig) (Bundle, error) {
	if c.Cluster == "" {
		return Bundle{}, invalid("action", "cluster is required")
	}
	if (c.Attribute == "") != (len(c.Lookup) == 0) {
		return Bundle{}, invalid("action", "attribute and lookup must be given together")
	}
	if c.Attribute == "" && len(c.Commands) == 0 {
		return Bundle{}, invalid("action", "no attribute or commands")
	}
	if c.PostfixEndpoint {
		if _, err := endpointList("action", c.Endpoints); err != nil || c.Endpoints == nil {
			return Bundle{}, invalid("action", "postfix_endpoint needs endpoints")
		}
	}

	base := append(converter.SortedKeys(c.Lookup), c.Commands...)
	values := base
	if c.PostfixEndpoint {
		values = nil
		for _, ep := range c.Endpoints {
			for _, v := range base {
				values = append(values, v+"_"+ep)
			}
		}
	}

	postfix := func(v string, msg *converter.Message, meta *converter.Meta) string {
		if !c.PostfixEndpoint {
			return v
		}
		for _, name := range c.Endpoints {
			if meta.FromEndpoint(msg, name) {
				return v + "_" + name
			}
		}
		return v
	}

	var b Bundle
	b.Exposes = append(b.Exposes, exposes.Action(values))
	if c.Attribute != "" {
		attr := c.Attribute
		b.Inbound = append(b.Inbound, converter.Inbound{
			Cluster: c.Cluster,
			Types:   []string{converter.TypeAttributeReport, converter.TypeReadResponse},
			Convert: func(msg *converter.Message, meta *converter.Meta) (converter.State, error) {
				raw, ok := msg.Data[attr]
				if !ok {
					return nil, nil
				}
				name, ok := converter.LookupKey(c.Lookup, raw)
				if !ok {
					return nil, fmt.Errorf("action: unknown %s value %v", attr, raw)
				}
				return converter.State{"action": postfix(name, msg, meta)}, nil
			},
		})
		b.Refs = append(b.Refs, attrRefs(c.Cluster, attr)...)
	}
	for _, cmd := range c.Commands {
		b.Inbound = append(b.Inbound, converter.Inbound{
			Cluster: c.Cluster,
			Types:   []string{converter.CommandType(cmd)},
			Convert: func(msg *converter.Message, meta *converter.Meta) (converter.State, error) {
				return converter.State{"action": postfix(cmd, msg, meta)}, nil
			},
		})
		b.Refs = append(b.Refs, Ref{Cluster: c.Cluster, Member: cmd, Command: true})
	}
	if len(c.Commands) > 0 {
		if c.Endpoints == nil {
			b.Configure = append(b.Configure, commission.Bind("", c.Cluster))
		}
		for _, ep := range c.Endpoints {
			b.Configure = append(b.Configure, commission.Bind(ep, c.Cluster))
		}
	}
	return b, nil
}

// Identify builds a set-only capability that makes the device blink.
func Identify() (Bundle, error) {
	e := exposes.NewEnum("identify", exposes.AccessSet, []string{"identify"}).
		WithDescription("Initiate device identification").WithCategory(exposes.CategoryConfig)
	return Bundle{
		Exposes: []*exposes.Expose{e},
		Outbound: []converter.Outbound{{
			Keys: []string{"identify"},
			Set: func(ctx context.Context, ep converter.Endpoint, key string, value any, _ *converter.Meta) (converter.State, error) {
				if value != "identify" {
					return nil, &converter.ValueDomainError{Key: key, Value: value, Reason: "expected identify"}
				}
				if err := ep.Command(ctx, "genIdentify", "identify", map[string]any{"identifytime": 3}, converter.Options{}); err != nil {
					return nil, converter.Transport("command", "genIdentify", err)
				}
				return nil, nil
			},
		}},
		Refs: []Ref{{Cluster: "genIdentify", Member: "identify", Command: true}},
	}, nil
}

// OTA marks the device as supporting over-the-air updates.
func OTA() (Bundle, error) {
	return Bundle{OTA: true, Refs: attrRefs("genOta", "currentFileVersion")}, nil
}

// CustomCluster declares a cluster definition the device needs.
func CustomCluster(def zcl.ClusterDef) (Bundle, error) {
	if def.Name == "" {
		return Bundle{}, invalid("custom_cluster", "name is required")
	}
	return Bundle{Clusters: []zcl.ClusterDef{*def.DeepCopy()}}, nil
}
