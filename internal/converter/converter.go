// Package converter defines the contracts that translate between cluster
// messages and semantic device state.
package converter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Message types an inbound converter can match.
const (
	TypeAttributeReport = "attributeReport"
	TypeReadResponse    = "readResponse"
	TypeRaw             = "raw"
)

// CommandType returns the message type tag for a received cluster command,
// e.g. "commandStatusChangeNotification".
func CommandType(command string) string {
	if command == "" {
		return "command"
	}
	return "command" + strings.ToUpper(command[:1]) + command[1:]
}

// DefaultEndpoint is the implicit endpoint name used when a builder is not
// given an endpoint list.
const DefaultEndpoint = "default"

// Message is a decoded inbound cluster message.
type Message struct {
	Cluster     string
	Type        string
	Data        map[string]any // attribute or command parameter name -> decoded value
	Endpoint    uint8
	Sequence    uint8
	LinkQuality uint8
	Raw         []byte
}

// State is a flat semantic state patch.
type State map[string]any

// Merge copies every key of patch into s, later values winning.
func (s State) Merge(patch State) {
	for k, v := range patch {
		s[k] = v
	}
}

// Clone returns a shallow copy.
func (s State) Clone() State {
	cp := make(State, len(s))
	for k, v := range s {
		cp[k] = v
	}
	return cp
}

// EndpointMap maps logical endpoint names to numeric endpoint IDs.
type EndpointMap map[string]uint8

// Name returns the logical name of a numeric endpoint, or "" when unmapped.
// Several names may alias one endpoint; the alphabetically first is returned.
func (m EndpointMap) Name(id uint8) string {
	var out string
	for name, ep := range m {
		if ep == id && (out == "" || name < out) {
			out = name
		}
	}
	return out
}

// Is reports whether the logical endpoint name maps to id.
func (m EndpointMap) Is(name string, id uint8) bool {
	ep, ok := m[name]
	return ok && ep == id
}

// Options qualify a protocol operation.
type Options struct {
	ManufacturerCode       uint16
	DisableDefaultResponse bool
}

// Reporting is one attribute reporting configuration.
type Reporting struct {
	Attribute string
	Min       uint16
	Max       uint16
	Change    float64
}

// Endpoint is the transport view of one device endpoint. Clusters, attributes
// and commands are addressed by registry name. All calls are network round
// trips and may fail with a transport error.
type Endpoint interface {
	ID() uint8
	Read(ctx context.Context, cluster string, attributes []string, opts Options) error
	Write(ctx context.Context, cluster string, values map[string]any, opts Options) error
	Command(ctx context.Context, cluster, command string, params map[string]any, opts Options) error
	Bind(ctx context.Context, cluster string) error
	ConfigureReporting(ctx context.Context, cluster string, items []Reporting, opts Options) error
}

// Power sources.
const (
	PowerSourceUnknown = "Unknown"
	PowerSourceMains   = "Mains (single phase)"
	PowerSourceBattery = "Battery"
	PowerSourceDC      = "DC Source"
)

// Device is the transport view of a paired device.
type Device interface {
	IEEEAddress() string
	ModelID() string
	ManufacturerName() string
	Endpoint(id uint8) (Endpoint, bool)
	Endpoints() []uint8
	PowerSource() string
	SetPowerSource(ps string)
	// Attribute returns the last value received for an attribute.
	Attribute(ep uint8, cluster, attribute string) (any, bool)
	// Options returns the per-device converter options, such as
	// temperature_calibration.
	Options() map[string]any
	// Save persists device metadata.
	Save(ctx context.Context) error
}

// Meta is the context handed to converters.
type Meta struct {
	Device    Device
	State     State // last known state; read-only to converters
	Endpoints EndpointMap
	// Options are the definition's options overlaid with the device's.
	Options map[string]any
	Logger  *slog.Logger
}

// EndpointName returns the logical name of the message's source endpoint,
// or "" when it is not in the endpoint map.
func (m *Meta) EndpointName(msg *Message) string {
	if m == nil || m.Endpoints == nil {
		return ""
	}
	return m.Endpoints.Name(msg.Endpoint)
}

// Calibrate applies the options' calibration and precision for key to v.
func (m *Meta) Calibrate(key string, v float64, precision int) float64 {
	var opts map[string]any
	if m != nil {
		opts = m.Options
	}
	return Calibrate(opts, key, v, precision)
}

// FromEndpoint reports whether msg came from the logical endpoint name. An
// empty name matches every endpoint.
func (m *Meta) FromEndpoint(msg *Message, name string) bool {
	if name == "" {
		return true
	}
	return m != nil && m.Endpoints.Is(name, msg.Endpoint)
}

// InboundFunc decodes a message into a patch. A nil patch means the message
// was not relevant.
type InboundFunc func(msg *Message, meta *Meta) (State, error)

// Inbound decodes matching cluster messages into state patches.
type Inbound struct {
	Cluster string
	Types   []string
	// Endpoint restricts the converter to messages from one logical
	// endpoint. Empty matches any endpoint.
	Endpoint string
	Convert  InboundFunc
}

// Matches reports whether the converter handles msg.
func (c *Inbound) Matches(cluster, typ string) bool {
	if c.Cluster != cluster {
		return false
	}
	for _, t := range c.Types {
		if t == typ {
			return true
		}
	}
	return false
}

// SetFunc encodes a semantic value into protocol actions on ep and returns
// the optimistic state patch.
type SetFunc func(ctx context.Context, ep Endpoint, key string, value any, meta *Meta) (State, error)

// GetFunc issues the read for key. The value arrives later as an inbound
// read response.
type GetFunc func(ctx context.Context, ep Endpoint, key string, meta *Meta) error

// Outbound owns a set of semantic keys and turns set/get requests into
// protocol actions. A nil Set marks the keys read-only.
type Outbound struct {
	Keys     []string
	Endpoint string // logical endpoint the actions target, empty for default
	Set      SetFunc
	Get      GetFunc
}

// ResolveEndpoint maps a logical endpoint name to the device endpoint. The
// default endpoint is the map's "default" entry if present, otherwise the
// device's lowest endpoint.
func ResolveEndpoint(dev Device, endpoints EndpointMap, name string) (Endpoint, error) {
	var id uint8
	if name != "" && name != DefaultEndpoint {
		v, ok := endpoints[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEndpoint, name)
		}
		id = v
	} else if v, ok := endpoints[DefaultEndpoint]; ok {
		id = v
	} else {
		ids := dev.Endpoints()
		if len(ids) == 0 {
			return nil, ErrUnknownEndpoint
		}
		id = ids[0]
	}
	ep, ok := dev.Endpoint(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEndpoint, id)
	}
	return ep, nil
}
