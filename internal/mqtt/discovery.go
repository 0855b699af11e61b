//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"

	"zigbee-capability/internal/definition"
	"zigbee-capability/internal/exposes"
	"zigbee-capability/internal/store"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/sensor/zigbee_00158D.../temperature/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	StateTopic          string   `json:"state_topic"`
	CommandTopic        string   `json:"command_topic,omitempty"`
	AvailabilityTopic   string   `json:"availability_topic"`
	ValueTemplate       string   `json:"value_template,omitempty"`
	UnitOfMeasurement   string   `json:"unit_of_measurement,omitempty"`
	DeviceClass         string   `json:"device_class,omitempty"`
	StateClass          string   `json:"state_class,omitempty"`
	EntityCategory      string   `json:"entity_category,omitempty"`
	PayloadOn           any      `json:"payload_on,omitempty"`
	PayloadOff          any      `json:"payload_off,omitempty"`
	Options             []string `json:"options,omitempty"`
	Min                 *float64 `json:"min,omitempty"`
	Max                 *float64 `json:"max,omitempty"`
	Step                *float64 `json:"step,omitempty"`
	Brightness          bool     `json:"brightness,omitempty"`
	BrightnessScale     int      `json:"brightness_scale,omitempty"`
	MinMireds           *float64 `json:"min_mireds,omitempty"`
	MaxMireds           *float64 `json:"max_mireds,omitempty"`
	SupportedColorModes []string `json:"supported_color_modes,omitempty"`
	Schema              string   `json:"schema,omitempty"`
	Device              haDevice `json:"device"`
}

// deviceDisplayName returns a display name for the device.
func deviceDisplayName(dev *store.Device) string {
	if dev.FriendlyName != "" {
		return dev.FriendlyName
	}
	if dev.ManufacturerName != "" && dev.ModelID != "" {
		return dev.ManufacturerName + " " + dev.ModelID
	}
	if dev.ModelID != "" {
		return dev.ModelID
	}
	return dev.IEEEAddress
}

// deviceIdentifier returns the unique identifier for HA device registry.
func deviceIdentifier(dev *store.Device) string {
	return "zigbee_" + dev.IEEEAddress
}

// deviceTopicName returns the topic name for a device (friendly name or IEEE).
func deviceTopicName(dev *store.Device) string {
	if dev.FriendlyName != "" {
		// Sanitize: lowercase and keep only safe chars for MQTT topics.
		name := strings.ToLower(dev.FriendlyName)
		name = strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
				return r
			}
			return '_'
		}, name)
		return name
	}
	return dev.IEEEAddress
}

// sensorClasses maps well-known numeric properties to HA device classes.
var sensorClasses = map[string]string{
	"temperature": "temperature",
	"humidity":    "humidity",
	"pressure":    "pressure",
	"illuminance": "illuminance",
	"battery":     "battery",
	"voltage":     "voltage",
	"power":       "power",
	"current":     "current",
	"energy":      "energy",
	"co2":         "carbon_dioxide",
	"pm25":        "pm25",
}

// binaryClasses maps well-known binary properties to HA device classes.
var binaryClasses = map[string]string{
	"contact":     "door",
	"occupancy":   "occupancy",
	"water_leak":  "moisture",
	"smoke":       "smoke",
	"tamper":      "tamper",
	"battery_low": "battery",
	"gas":         "gas",
	"vibration":   "vibration",
}

type discoveryContext struct {
	dev        *store.Device
	prefix     string
	nodeID     string
	name       string
	stateTopic string
	avail      string
	haDev      haDevice
}

func (c *discoveryContext) topic(component, objectID string) string {
	return fmt.Sprintf("homeassistant/%s/%s/%s/config", component, c.nodeID, objectID)
}

func (c *discoveryContext) base(objectID, suffix string) haDiscovery {
	name := c.name
	if suffix != "" {
		name += " " + suffix
	}
	return haDiscovery{
		Name:              name,
		UniqueID:          c.nodeID + "_" + objectID,
		StateTopic:        c.stateTopic,
		AvailabilityTopic: c.avail,
		Device:            c.haDev,
	}
}

// setTopic is the per-key command topic taking a raw value.
func (c *discoveryContext) setTopic(property string) string {
	return c.prefix + "/" + deviceTopicName(c.dev) + "/set/" + property
}

// buildDiscovery generates HA discovery messages for a device from the
// exposes of its definition.
func buildDiscovery(dev *store.Device, def *definition.Definition, prefix string) []discoveryMsg {
	if !dev.Interviewed || def == nil {
		return nil
	}

	ctx := &discoveryContext{
		dev:        dev,
		prefix:     prefix,
		nodeID:     deviceIdentifier(dev),
		name:       deviceDisplayName(dev),
		stateTopic: prefix + "/" + deviceTopicName(dev),
		avail:      prefix + "/bridge/state",
		haDev: haDevice{
			Identifiers:  []string{deviceIdentifier(dev)},
			Manufacturer: def.Vendor,
			Model:        def.Model,
			Name:         deviceDisplayName(dev),
		},
	}
	if def.Description != "" {
		ctx.haDev.Model = def.Description + " (" + def.Model + ")"
	}

	var msgs []discoveryMsg
	for _, e := range def.Exposes {
		switch e.Type {
		case exposes.TypeLight:
			msgs = append(msgs, buildLight(ctx, e))
		case exposes.TypeSwitch:
			for _, f := range e.Features {
				if m, ok := buildEntry(ctx, f); ok {
					m.Topic = ctx.topic("switch", f.Property)
					msgs = append(msgs, m)
				}
			}
		case exposes.TypeComposite:
			// Record-valued entries have no HA entity.
		default:
			if m, ok := buildEntry(ctx, e); ok {
				msgs = append(msgs, m)
			}
		}
	}
	return msgs
}

// buildEntry maps one leaf expose to an HA component: read-only values
// become sensors, settable ones switches, numbers, selects or texts.
func buildEntry(ctx *discoveryContext, e *exposes.Expose) (discoveryMsg, bool) {
	if e.Property == "" || e.Access&exposes.AccessState == 0 {
		return discoveryMsg{}, false
	}
	settable := e.Access&exposes.AccessSet != 0
	payload := ctx.base(e.Property, e.Label)
	payload.ValueTemplate = fmt.Sprintf("{{ value_json.%s }}", e.Property)
	payload.EntityCategory = e.Category
	if e.Category == exposes.CategoryConfig && !settable {
		payload.EntityCategory = exposes.CategoryDiagnostic
	}

	var component string
	switch e.Type {
	case exposes.TypeBinary:
		payload.PayloadOn, payload.PayloadOff = e.ValueOn, e.ValueOff
		if settable {
			component = "switch"
			payload.CommandTopic = ctx.setTopic(e.Property)
		} else {
			component = "binary_sensor"
			payload.DeviceClass = binaryClasses[e.Name]
		}
	case exposes.TypeNumeric:
		payload.UnitOfMeasurement = e.Unit
		if settable {
			component = "number"
			payload.CommandTopic = ctx.setTopic(e.Property)
			payload.Min, payload.Max, payload.Step = e.ValueMin, e.ValueMax, e.ValueStep
		} else {
			component = "sensor"
			payload.DeviceClass = sensorClasses[e.Name]
			payload.StateClass = "measurement"
		}
	case exposes.TypeEnum:
		if settable {
			component = "select"
			payload.CommandTopic = ctx.setTopic(e.Property)
			payload.Options = e.Values
		} else {
			component = "sensor"
		}
	case exposes.TypeText:
		if settable {
			component = "text"
			payload.CommandTopic = ctx.setTopic(e.Property)
		} else {
			component = "sensor"
		}
	default:
		return discoveryMsg{}, false
	}
	return discoveryMsg{Topic: ctx.topic(component, e.Property), Payload: mustJSON(payload)}, true
}

// buildLight uses the JSON schema. Endpoint-scoped lights read and command
// the endpoint view topic, whose keys carry no endpoint suffix.
func buildLight(ctx *discoveryContext, e *exposes.Expose) discoveryMsg {
	objectID := "light"
	stateTopic := ctx.stateTopic
	if e.Endpoint != "" {
		objectID += "_" + e.Endpoint
		stateTopic += "/" + e.Endpoint
	}
	payload := ctx.base(objectID, e.Endpoint)
	payload.StateTopic = stateTopic
	payload.CommandTopic = stateTopic + "/set"
	payload.Schema = "json"

	modes := []string{}
	for _, f := range e.Features {
		switch f.Name {
		case "brightness":
			payload.Brightness = true
			payload.BrightnessScale = 254
		case "color_temp":
			payload.MinMireds, payload.MaxMireds = f.ValueMin, f.ValueMax
			modes = append(modes, "color_temp")
		}
	}
	if payload.Brightness && len(modes) == 0 {
		modes = append(modes, "brightness")
	}
	if len(modes) == 0 {
		modes = append(modes, "onoff")
	}
	payload.SupportedColorModes = modes
	return discoveryMsg{Topic: ctx.topic("light", objectID), Payload: mustJSON(payload)}
}

// removeDiscovery returns empty retained messages for previously published
// discovery topics.
func removeDiscovery(topics []string) []discoveryMsg {
	msgs := make([]discoveryMsg, 0, len(topics))
	for _, t := range topics {
		msgs = append(msgs, discoveryMsg{Topic: t, Payload: nil})
	}
	return msgs
}

// endpointView extracts the keys of one endpoint with the "_<endpoint>"
// suffix stripped.
func endpointView(state map[string]any, endpoint string) map[string]any {
	suffix := "_" + endpoint
	view := make(map[string]any)
	for k, v := range state {
		if base, ok := strings.CutSuffix(k, suffix); ok && base != "" {
			view[base] = v
		}
	}
	if lq, ok := state[definition.LinkQualityKey]; ok && len(view) > 0 {
		view[definition.LinkQualityKey] = lq
	}
	return view
}

// endpointLights returns the endpoints that have an endpoint-scoped light.
func endpointLights(def *definition.Definition) []string {
	var out []string
	for _, e := range def.Exposes {
		if e.Type == exposes.TypeLight && e.Endpoint != "" {
			out = append(out, e.Endpoint)
		}
	}
	return out
}
