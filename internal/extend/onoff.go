package extend

import (
	"context"
	"fmt"
	"strings"

	"zigbee-capability/internal/commission"
	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/exposes"
	"zigbee-capability/internal/zcl"
)

// startUpOnOff values.
var powerOnBehaviorLookup = map[string]int{"off": 0, "on": 1, "toggle": 2, "previous": 255}

const (
	onOffCluster = "genOnOff"
	levelCluster = "genLevelCtrl"
	colorCluster = "lightingColorCtrl"
)

// OnOffConfig configures a switch capability per endpoint.
type OnOffConfig struct {
	Endpoints []string `yaml:"endpoints"`
	// PowerOnBehavior exposes startUpOnOff; defaults to true.
	PowerOnBehavior *bool `yaml:"power_on_behavior"`
	// RestoreState writes startUpOnOff=previous during commissioning so the
	// relay returns to its last state after a power cut.
	RestoreState bool `yaml:"restore_state"`
	// ConfigureReporting binds genOnOff and configures onOff reporting;
	// defaults to true.
	ConfigureReporting *bool `yaml:"configure_reporting"`
}

// OnOff builds an on/off switch capability. With several endpoints every
// key is endpoint-qualified.
func OnOff(c OnOffConfig) (Bundle, error) {
	eps, err := endpointList("on_off", c.Endpoints)
	if err != nil {
		return Bundle{}, err
	}
	var b Bundle
	for _, ep := range eps {
		sw := scoped(exposes.Switch(), ep)
		b.Exposes = append(b.Exposes, sw)
		b.add(onOffPart(ep, sw.Features[0].Property, boolOr(c.PowerOnBehavior, true), c.RestoreState, boolOr(c.ConfigureReporting, true)))
	}
	b.Refs = append(b.Refs, onOffRefs()...)
	return b, nil
}

func onOffRefs() []Ref {
	return append(attrRefs(onOffCluster, "onOff", "startUpOnOff"),
		Ref{Cluster: onOffCluster, Member: "on", Command: true},
		Ref{Cluster: onOffCluster, Member: "off", Command: true},
		Ref{Cluster: onOffCluster, Member: "toggle", Command: true},
	)
}

// onOffPart returns the state and power-on behavior converters for one
// endpoint. Its exposes only cover power_on_behavior; the caller owns the
// switch or light container.
func onOffPart(ep, stateKey string, powerOn, restore, reporting bool) Bundle {
	var b Bundle
	powerKey := ""
	if powerOn {
		pe := scoped(exposes.PowerOnBehavior(), ep)
		powerKey = pe.Property
		b.Exposes = append(b.Exposes, pe)
	}

	b.Inbound = append(b.Inbound, converter.Inbound{
		Cluster:  onOffCluster,
		Types:    []string{converter.TypeAttributeReport, converter.TypeReadResponse},
		Endpoint: ep,
		Convert: func(msg *converter.Message, _ *converter.Meta) (converter.State, error) {
			patch := converter.State{}
			if raw, ok := msg.Data["onOff"]; ok {
				patch[stateKey] = onOffString(equalValue(raw, 1))
			}
			if raw, ok := msg.Data["startUpOnOff"]; ok && powerKey != "" {
				if name, ok := converter.LookupKey(powerOnBehaviorLookup, raw); ok {
					patch[powerKey] = name
				}
			}
			if len(patch) == 0 {
				return nil, nil
			}
			return patch, nil
		},
	})

	b.Outbound = append(b.Outbound, converter.Outbound{
		Keys:     []string{stateKey},
		Endpoint: ep,
		Set: func(ctx context.Context, e converter.Endpoint, key string, value any, meta *converter.Meta) (converter.State, error) {
			cmd, err := onOffCommand(key, value)
			if err != nil {
				return nil, err
			}
			if err := e.Command(ctx, onOffCluster, cmd, nil, converter.Options{}); err != nil {
				return nil, converter.Transport("command", onOffCluster, err)
			}
			switch cmd {
			case "on":
				return converter.State{key: "ON"}, nil
			case "off":
				return converter.State{key: "OFF"}, nil
			}
			if meta != nil {
				if prev, ok := meta.State[key].(string); ok {
					return converter.State{key: onOffString(prev != "ON")}, nil
				}
			}
			return nil, nil
		},
		Get: func(ctx context.Context, e converter.Endpoint, _ string, _ *converter.Meta) error {
			return converter.Transport("read", onOffCluster, e.Read(ctx, onOffCluster, []string{"onOff"}, converter.Options{}))
		},
	})

	if powerKey != "" {
		b.Outbound = append(b.Outbound, converter.Outbound{
			Keys:     []string{powerKey},
			Endpoint: ep,
			Set: func(ctx context.Context, e converter.Endpoint, key string, value any, _ *converter.Meta) (converter.State, error) {
				s, _ := value.(string)
				v, err := converter.LookupValue(key, powerOnBehaviorLookup, strings.ToLower(s))
				if err != nil {
					return nil, err
				}
				if err := e.Write(ctx, onOffCluster, map[string]any{"startUpOnOff": v}, converter.Options{}); err != nil {
					return nil, converter.Transport("write", onOffCluster, err)
				}
				return converter.State{key: strings.ToLower(s)}, nil
			},
			Get: func(ctx context.Context, e converter.Endpoint, _ string, _ *converter.Meta) error {
				return converter.Transport("read", onOffCluster, e.Read(ctx, onOffCluster, []string{"startUpOnOff"}, converter.Options{}))
			},
		})
	}

	if reporting {
		b.Configure = append(b.Configure, commission.BindAndReport(ep, onOffCluster,
			converter.Reporting{Attribute: "onOff", Min: 0, Max: zcl.RepIntervalHour})...)
	}
	if restore {
		b.Configure = append(b.Configure, commission.Write(ep, onOffCluster,
			map[string]any{"startUpOnOff": powerOnBehaviorLookup["previous"]}))
	}
	b.Configure = append(b.Configure, commission.Read(ep, onOffCluster, "onOff"))
	return b
}

func onOffCommand(key string, value any) (string, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return "on", nil
		}
		return "off", nil
	case string:
		switch strings.ToUpper(v) {
		case "ON":
			return "on", nil
		case "OFF":
			return "off", nil
		case "TOGGLE":
			return "toggle", nil
		}
	}
	return "", &converter.ValueDomainError{Key: key, Value: value, Reason: "expected ON, OFF or TOGGLE"}
}

func onOffString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// LightConfig configures a dimmable light per endpoint. A two-element
// ColorTempRange (mireds) enables colour temperature.
type LightConfig struct {
	Endpoints       []string  `yaml:"endpoints"`
	ColorTempRange  []float64 `yaml:"color_temp_range"`
	PowerOnBehavior *bool     `yaml:"power_on_behavior"`
	RestoreState    bool      `yaml:"restore_state"`
}

// Light builds a light capability with state, brightness and optional
// colour temperature.
func Light(c LightConfig) (Bundle, error) {
	var ct *[2]float64
	if c.ColorTempRange != nil {
		if len(c.ColorTempRange) != 2 || c.ColorTempRange[0] >= c.ColorTempRange[1] || c.ColorTempRange[0] <= 0 {
			return Bundle{}, invalid("light", "color_temp_range must be [min, max] with 0 < min < max")
		}
		ct = &[2]float64{c.ColorTempRange[0], c.ColorTempRange[1]}
	}
	eps, err := endpointList("light", c.Endpoints)
	if err != nil {
		return Bundle{}, err
	}

	var b Bundle
	for _, ep := range eps {
		l := scoped(exposes.Light(true, ct), ep)
		b.Exposes = append(b.Exposes, l)
		keys := make(map[string]string)
		for _, f := range l.Features {
			keys[f.Name] = f.Property
		}
		b.add(onOffPart(ep, keys["state"], boolOr(c.PowerOnBehavior, true), c.RestoreState, true))
		b.add(levelPart(ep, keys["brightness"], keys["state"]))
		if ct != nil {
			b.add(colorTempPart(ep, keys["color_temp"], *ct))
		}
	}
	b.Refs = append(b.Refs, onOffRefs()...)
	b.Refs = append(b.Refs, attrRefs(levelCluster, "currentLevel")...)
	b.Refs = append(b.Refs, Ref{Cluster: levelCluster, Member: "moveToLevelWithOnOff", Command: true})
	if ct != nil {
		b.Refs = append(b.Refs, attrRefs(colorCluster, "colorTemperature")...)
		b.Refs = append(b.Refs, Ref{Cluster: colorCluster, Member: "moveToColorTemp", Command: true})
	}
	return b, nil
}

func levelPart(ep, key, stateKey string) Bundle {
	lo, hi := 0.0, 254.0
	var b Bundle
	b.Inbound = append(b.Inbound, converter.Inbound{
		Cluster:  levelCluster,
		Types:    []string{converter.TypeAttributeReport, converter.TypeReadResponse},
		Endpoint: ep,
		Convert: func(msg *converter.Message, _ *converter.Meta) (converter.State, error) {
			raw, ok := msg.Data["currentLevel"]
			if !ok {
				return nil, nil
			}
			v, ok := numberOf(raw)
			if !ok {
				return nil, fmt.Errorf("%s: unexpected currentLevel %v", key, raw)
			}
			return converter.State{key: v}, nil
		},
	})
	b.Outbound = append(b.Outbound, converter.Outbound{
		Keys:     []string{key},
		Endpoint: ep,
		Set: func(ctx context.Context, e converter.Endpoint, key string, value any, _ *converter.Meta) (converter.State, error) {
			v, err := checkRange(key, value, &lo, &hi)
			if err != nil {
				return nil, err
			}
			level := int(v + 0.5)
			params := map[string]any{"level": level, "transtime": 0}
			if err := e.Command(ctx, levelCluster, "moveToLevelWithOnOff", params, converter.Options{}); err != nil {
				return nil, converter.Transport("command", levelCluster, err)
			}
			return converter.State{key: float64(level), stateKey: onOffString(level > 0)}, nil
		},
		Get: func(ctx context.Context, e converter.Endpoint, _ string, _ *converter.Meta) error {
			return converter.Transport("read", levelCluster, e.Read(ctx, levelCluster, []string{"currentLevel"}, converter.Options{}))
		},
	})
	b.Configure = append(b.Configure, commission.BindAndReport(ep, levelCluster,
		converter.Reporting{Attribute: "currentLevel", Min: 0, Max: zcl.RepIntervalHour, Change: 1})...)
	b.Configure = append(b.Configure, commission.Read(ep, levelCluster, "currentLevel"))
	return b
}

func colorTempPart(ep, key string, rng [2]float64) Bundle {
	var b Bundle
	b.Inbound = append(b.Inbound, converter.Inbound{
		Cluster:  colorCluster,
		Types:    []string{converter.TypeAttributeReport, converter.TypeReadResponse},
		Endpoint: ep,
		Convert: func(msg *converter.Message, _ *converter.Meta) (converter.State, error) {
			raw, ok := msg.Data["colorTemperature"]
			if !ok {
				return nil, nil
			}
			v, ok := numberOf(raw)
			if !ok {
				return nil, fmt.Errorf("%s: unexpected colorTemperature %v", key, raw)
			}
			return converter.State{key: v}, nil
		},
	})
	b.Outbound = append(b.Outbound, converter.Outbound{
		Keys:     []string{key},
		Endpoint: ep,
		Set: func(ctx context.Context, e converter.Endpoint, key string, value any, _ *converter.Meta) (converter.State, error) {
			v, err := checkRange(key, value, &rng[0], &rng[1])
			if err != nil {
				return nil, err
			}
			mired := int(v + 0.5)
			params := map[string]any{"colortemp": mired, "transtime": 0}
			if err := e.Command(ctx, colorCluster, "moveToColorTemp", params, converter.Options{}); err != nil {
				return nil, converter.Transport("command", colorCluster, err)
			}
			return converter.State{key: float64(mired)}, nil
		},
		Get: func(ctx context.Context, e converter.Endpoint, _ string, _ *converter.Meta) error {
			return converter.Transport("read", colorCluster, e.Read(ctx, colorCluster, []string{"colorTemperature"}, converter.Options{}))
		},
	})
	b.Configure = append(b.Configure, commission.BindAndReport(ep, colorCluster,
		converter.Reporting{Attribute: "colorTemperature", Min: 0, Max: zcl.RepIntervalHour, Change: 1})...)
	b.Configure = append(b.Configure, commission.Read(ep, colorCluster, "colorTemperature"))
	return b
}
