// Package convertertest provides recording fakes of the transport
// interfaces for converter, builder and commissioning tests.
package convertertest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"zigbee-capability/internal/converter"
)

// Call is one recorded protocol action.
type Call struct {
	Endpoint  uint8
	Op        string // read, write, command, bind, configureReporting
	Cluster   string
	Command   string
	Values    map[string]any
	Attrs     []string
	Reporting []converter.Reporting
	Options   converter.Options
}

// Recorder collects calls from every endpoint of a device and lets tests
// inject failures.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	fail  map[string]error // "op:cluster" or "op:cluster@ep"
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.fail[fmt.Sprintf("%s:%s@%d", c.Op, c.Cluster, c.Endpoint)]; ok {
		return err
	}
	if err, ok := r.fail[c.Op+":"+c.Cluster]; ok {
		return err
	}
	r.calls = append(r.calls, c)
	return nil
}

// Fail makes every op on cluster return err. Use "op:cluster@ep" as key to
// restrict to one endpoint.
func (r *Recorder) Fail(key string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail == nil {
		r.fail = make(map[string]error)
	}
	r.fail[key] = err
}

// Calls returns the successful calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Ops returns the successful calls as "op cluster@ep" strings.
func (r *Recorder) Ops() []string {
	var out []string
	for _, c := range r.Calls() {
		out = append(out, fmt.Sprintf("%s %s@%d", c.Op, c.Cluster, c.Endpoint))
	}
	return out
}

// Endpoint is a fake converter.Endpoint.
type Endpoint struct {
	EP  uint8
	Rec *Recorder
}

func (e *Endpoint) ID() uint8 { return e.EP }

func (e *Endpoint) Read(_ context.Context, cluster string, attrs []string, opts converter.Options) error {
	return e.Rec.record(Call{Endpoint: e.EP, Op: "read", Cluster: cluster, Attrs: attrs, Options: opts})
}

func (e *Endpoint) Write(_ context.Context, cluster string, values map[string]any, opts converter.Options) error {
	return e.Rec.record(Call{Endpoint: e.EP, Op: "write", Cluster: cluster, Values: values, Options: opts})
}

func (e *Endpoint) Command(_ context.Context, cluster, command string, params map[string]any, opts converter.Options) error {
	return e.Rec.record(Call{Endpoint: e.EP, Op: "command", Cluster: cluster, Command: command, Values: params, Options: opts})
}

func (e *Endpoint) Bind(_ context.Context, cluster string) error {
	return e.Rec.record(Call{Endpoint: e.EP, Op: "bind", Cluster: cluster})
}

func (e *Endpoint) ConfigureReporting(_ context.Context, cluster string, items []converter.Reporting, opts converter.Options) error {
	return e.Rec.record(Call{Endpoint: e.EP, Op: "configureReporting", Cluster: cluster, Reporting: items, Options: opts})
}

// Device is a fake converter.Device.
type Device struct {
	IEEE      string
	Model     string
	Vendor    string
	Power     string
	Rec       *Recorder
	SaveErr   error
	Saves     int
	// Cache is the attribute cache, keyed by "ep/cluster/attribute".
	Cache     map[string]any
	Settings  map[string]any
	endpoints map[uint8]*Endpoint
}

// NewDevice creates a fake device with the given endpoint IDs.
func NewDevice(ieee string, eps ...uint8) *Device {
	d := &Device{
		IEEE:      ieee,
		Power:     converter.PowerSourceUnknown,
		Rec:       &Recorder{},
		Cache:     make(map[string]any),
		endpoints: make(map[uint8]*Endpoint),
	}
	for _, ep := range eps {
		d.endpoints[ep] = &Endpoint{EP: ep, Rec: d.Rec}
	}
	return d
}

func (d *Device) IEEEAddress() string      { return d.IEEE }
func (d *Device) ModelID() string          { return d.Model }
func (d *Device) ManufacturerName() string { return d.Vendor }
func (d *Device) PowerSource() string      { return d.Power }
func (d *Device) SetPowerSource(ps string) { d.Power = ps }
func (d *Device) Options() map[string]any  { return d.Settings }

func (d *Device) Endpoint(id uint8) (converter.Endpoint, bool) {
	ep, ok := d.endpoints[id]
	if !ok {
		return nil, false
	}
	return ep, true
}

func (d *Device) Endpoints() []uint8 {
	ids := make([]uint8, 0, len(d.endpoints))
	for id := range d.endpoints {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (d *Device) Save(context.Context) error {
	if d.SaveErr != nil {
		return d.SaveErr
	}
	d.Saves++
	return nil
}

func (d *Device) Attribute(ep uint8, cluster, attribute string) (any, bool) {
	v, ok := d.Cache[fmt.Sprintf("%d/%s/%s", ep, cluster, attribute)]
	return v, ok
}

// SetAttribute stores a value in the attribute cache.
func (d *Device) SetAttribute(ep uint8, cluster, attribute string, v any) {
	d.Cache[fmt.Sprintf("%d/%s/%s", ep, cluster, attribute)] = v
}
