package extend

import (
	"context"
	"fmt"

	"zigbee-capability/internal/commission"
	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/exposes"
)

// ZoneBit maps one zone status bit to a boolean key.
type ZoneBit struct {
	Bit    uint   `yaml:"bit"`
	Name   string `yaml:"name"`
	Invert bool   `yaml:"invert"`
}

// Standard zone status bits.
var (
	ZoneAlarm1     = ZoneBit{Bit: 0, Name: "alarm_1"}
	ZoneAlarm2     = ZoneBit{Bit: 1, Name: "alarm_2"}
	ZoneTamper     = ZoneBit{Bit: 2, Name: "tamper"}
	ZoneBatteryLow = ZoneBit{Bit: 3, Name: "battery_low"}
	ZoneTrouble    = ZoneBit{Bit: 6, Name: "trouble"}
)

var zoneTypes = map[string][]ZoneBit{
	"contact":    {{Bit: 0, Name: "contact", Invert: true}, ZoneTamper, ZoneBatteryLow},
	"water_leak": {{Bit: 0, Name: "water_leak"}, ZoneTamper, ZoneBatteryLow},
	"occupancy":  {{Bit: 0, Name: "occupancy"}, ZoneTamper, ZoneBatteryLow},
	"smoke":      {{Bit: 0, Name: "smoke"}, ZoneTamper, ZoneBatteryLow},
	"generic":    {ZoneAlarm1, ZoneAlarm2, ZoneTamper, ZoneBatteryLow},
}

// IASZoneConfig maps the zone status bitmap to boolean keys. When Bits is
// nil the bits of ZoneType are used.
type IASZoneConfig struct {
	ZoneType  string    `yaml:"zone_type"`
	Bits      []ZoneBit `yaml:"bits"`
	Endpoints []string  `yaml:"endpoints"`
}

const (
	iasCluster   = "ssIasZone"
	iasAttribute = "zoneStatus"
	iasCommand   = "statusChangeNotification"
	iasParam     = "zonestatus"
)

// IASZone builds an alarm capability from the zone status bitmap. Bits not
// declared in the config are ignored.
func IASZone(c IASZoneConfig) (Bundle, error) {
	bits := c.Bits
	if bits == nil {
		var ok bool
		if bits, ok = zoneTypes[c.ZoneType]; !ok {
			return Bundle{}, invalid("ias_zone", "unknown zone_type %q and no bits given", c.ZoneType)
		}
	}
	if len(bits) == 0 {
		return Bundle{}, invalid("ias_zone", "no bits")
	}
	seen := make(map[string]bool)
	for _, zb := range bits {
		if zb.Bit > 15 {
			return Bundle{}, invalid("ias_zone", "bit %d out of range", zb.Bit)
		}
		if zb.Name == "" || seen[zb.Name] {
			return Bundle{}, invalid("ias_zone", "missing or duplicate name for bit %d", zb.Bit)
		}
		seen[zb.Name] = true
	}
	eps, err := endpointList("ias_zone", c.Endpoints)
	if err != nil {
		return Bundle{}, err
	}

	var b Bundle
	for _, ep := range eps {
		keys := make([]string, len(bits))
		for i, zb := range bits {
			e := scoped(zoneExpose(zb.Name), ep)
			keys[i] = e.Property
			b.Exposes = append(b.Exposes, e)
		}

		decode := func(raw any) (converter.State, error) {
			f, ok := numberOf(raw)
			if !ok || f < 0 {
				return nil, fmt.Errorf("ias zone: unexpected zone status %v", raw)
			}
			status := uint64(f)
			patch := make(converter.State, len(bits))
			for i, zb := range bits {
				set := status>>zb.Bit&1 == 1
				patch[keys[i]] = set != zb.Invert
			}
			return patch, nil
		}

		b.Inbound = append(b.Inbound,
			converter.Inbound{
				Cluster:  iasCluster,
				Types:    []string{converter.CommandType(iasCommand)},
				Endpoint: ep,
				Convert: func(msg *converter.Message, _ *converter.Meta) (converter.State, error) {
					raw, ok := msg.Data[iasParam]
					if !ok {
						return nil, nil
					}
					return decode(raw)
				},
			},
			converter.Inbound{
				Cluster:  iasCluster,
				Types:    []string{converter.TypeAttributeReport, converter.TypeReadResponse},
				Endpoint: ep,
				Convert: func(msg *converter.Message, _ *converter.Meta) (converter.State, error) {
					raw, ok := msg.Data[iasAttribute]
					if !ok {
						return nil, nil
					}
					return decode(raw)
				},
			},
		)

		b.Outbound = append(b.Outbound, converter.Outbound{
			Keys:     keys,
			Endpoint: ep,
			Get: func(ctx context.Context, e converter.Endpoint, _ string, _ *converter.Meta) error {
				return converter.Transport("read", iasCluster, e.Read(ctx, iasCluster, []string{iasAttribute}, converter.Options{}))
			},
		})
		b.Configure = append(b.Configure, commission.Read(ep, iasCluster, iasAttribute))
	}
	b.Refs = append(attrRefs(iasCluster, iasAttribute), Ref{Cluster: iasCluster, Member: iasCommand, Command: true})
	return b, nil
}

func zoneExpose(name string) *exposes.Expose {
	switch name {
	case "contact":
		return exposes.Contact()
	case "tamper":
		return exposes.Tamper()
	case "battery_low":
		return exposes.BatteryLow()
	case "water_leak":
		return exposes.WaterLeak()
	case "occupancy":
		return exposes.Occupancy()
	}
	return exposes.NewBinary(name, exposes.AccessState, true, false)
}
