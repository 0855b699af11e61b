// Package ncptest provides an in-memory NCP for tests.
package ncptest

import (
	"context"
	"fmt"
	"sync"

	"zigbee-capability/internal/ncp"
	"zigbee-capability/internal/zcl"
)

// Call records one request sent to the fake.
type Call struct {
	Op        string // bind, read, write, command, report, leave
	Addr      uint16
	EP        uint8
	ClusterID uint16
	AttrIDs   []uint16
	CommandID uint8
	Payload   []byte
	Options   ncp.FrameOptions
}

func (c Call) String() string {
	return fmt.Sprintf("%s 0x%04X/%d 0x%04X", c.Op, c.Addr, c.EP, c.ClusterID)
}

type attrKey struct {
	addr    uint16
	ep      uint8
	cluster uint16
	attr    uint16
}

// Fake is an ncp.NCP backed by maps. Reads are answered from attributes
// set with SetAttribute; unknown attributes answer UNSUPPORTED_ATTRIBUTE.
type Fake struct {
	mu          sync.Mutex
	IEEE        [8]byte
	endpoints   map[uint16][]uint8
	descriptors map[uint16]map[uint8]*ncp.SimpleDescriptor
	attrs       map[attrKey]ncp.AttributeResponse
	fail        map[string]error
	calls       []Call

	onJoined   func(ncp.DeviceJoinedEvent)
	onLeft     func(ncp.DeviceLeftEvent)
	onAnnounce func(ncp.DeviceAnnounceEvent)
	onReport   func(ncp.AttributeReportEvent)
	onCommand  func(ncp.ClusterCommandEvent)
}

var _ ncp.NCP = (*Fake)(nil)

// New creates an empty fake.
func New() *Fake {
	return &Fake{
		IEEE:        [8]byte{0x00, 0x12, 0x4B, 0x00, 0x00, 0x00, 0x00, 0x01},
		endpoints:   make(map[uint16][]uint8),
		descriptors: make(map[uint16]map[uint8]*ncp.SimpleDescriptor),
		attrs:       make(map[attrKey]ncp.AttributeResponse),
		fail:        make(map[string]error),
	}
}

// AddEndpoint declares an endpoint of the device at addr.
func (f *Fake) AddEndpoint(addr uint16, ep uint8, in, out []uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endpoints[addr] = append(f.endpoints[addr], ep)
	if f.descriptors[addr] == nil {
		f.descriptors[addr] = make(map[uint8]*ncp.SimpleDescriptor)
	}
	f.descriptors[addr][ep] = &ncp.SimpleDescriptor{Endpoint: ep, ProfileID: 0x0104, InClusters: in, OutClusters: out}
}

// SetAttribute stores an attribute value answered by reads.
func (f *Fake) SetAttribute(addr uint16, ep uint8, cluster, attr uint16, typ uint8, value any) error {
	raw, err := zcl.EncodeValue(typ, value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attrs[attrKey{addr, ep, cluster, attr}] = ncp.AttributeResponse{AttrID: attr, DataType: typ, Value: raw}
	return nil
}

// Fail makes every op request on cluster return err. Use cluster 0xFFFF
// for ZDO operations without a cluster.
func (f *Fake) Fail(op string, cluster uint16, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[failKey(op, cluster)] = err
}

func failKey(op string, cluster uint16) string {
	return fmt.Sprintf("%s/0x%04X", op, cluster)
}

// Calls returns the recorded requests.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns the recorded requests of one op.
func (f *Fake) CallsOf(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears the recorded requests.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *Fake) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.fail[failKey(c.Op, c.ClusterID)]
}

func (f *Fake) Start(ctx context.Context) error                      { return ctx.Err() }
func (f *Fake) PermitJoin(ctx context.Context, duration uint8) error { return ctx.Err() }
func (f *Fake) GetLocalIEEE(ctx context.Context) ([8]byte, error)    { return f.IEEE, ctx.Err() }
func (f *Fake) Close() error                                         { return nil }

func (f *Fake) ActiveEndpoints(ctx context.Context, addr uint16) ([]uint8, error) {
	if err := f.record(Call{Op: "active_ep", Addr: addr, ClusterID: 0xFFFF}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	eps, ok := f.endpoints[addr]
	if !ok {
		return nil, fmt.Errorf("ncptest: no device at 0x%04X", addr)
	}
	return append([]uint8(nil), eps...), nil
}

func (f *Fake) SimpleDescriptor(ctx context.Context, addr uint16, ep uint8) (*ncp.SimpleDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sd, ok := f.descriptors[addr][ep]
	if !ok {
		return nil, fmt.Errorf("ncptest: no endpoint %d at 0x%04X", ep, addr)
	}
	cp := *sd
	return &cp, nil
}

func (f *Fake) Bind(ctx context.Context, req ncp.BindRequest) error {
	return f.record(Call{Op: "bind", Addr: req.TargetShortAddr, EP: req.SrcEP, ClusterID: req.ClusterID})
}

func (f *Fake) MgmtLeave(ctx context.Context, addr uint16, _ [8]byte) error {
	return f.record(Call{Op: "leave", Addr: addr, ClusterID: 0xFFFF})
}

func (f *Fake) ReadAttributes(ctx context.Context, req ncp.ReadAttributesRequest) ([]ncp.AttributeResponse, error) {
	if err := f.record(Call{Op: "read", Addr: req.DstAddr, EP: req.DstEP, ClusterID: req.ClusterID, AttrIDs: req.AttrIDs, Options: req.FrameOptions}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ncp.AttributeResponse, 0, len(req.AttrIDs))
	for _, id := range req.AttrIDs {
		r, ok := f.attrs[attrKey{req.DstAddr, req.DstEP, req.ClusterID, id}]
		if !ok {
			r = ncp.AttributeResponse{AttrID: id, Status: zcl.StatusUnsupportedAttr}
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *Fake) WriteAttributes(ctx context.Context, req ncp.WriteAttributesRequest) error {
	ids := make([]uint16, len(req.Records))
	for i, r := range req.Records {
		ids[i] = r.AttrID
	}
	if err := f.record(Call{Op: "write", Addr: req.DstAddr, EP: req.DstEP, ClusterID: req.ClusterID, AttrIDs: ids, Options: req.FrameOptions}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range req.Records {
		f.attrs[attrKey{req.DstAddr, req.DstEP, req.ClusterID, r.AttrID}] = ncp.AttributeResponse{AttrID: r.AttrID, DataType: r.DataType, Value: r.Value}
	}
	return nil
}

func (f *Fake) SendCommand(ctx context.Context, req ncp.ClusterCommandRequest) error {
	return f.record(Call{Op: "command", Addr: req.DstAddr, EP: req.DstEP, ClusterID: req.ClusterID, CommandID: req.CommandID, Payload: req.Payload, Options: req.FrameOptions})
}

func (f *Fake) ConfigureReporting(ctx context.Context, req ncp.ConfigureReportingRequest) error {
	ids := make([]uint16, len(req.Records))
	for i, r := range req.Records {
		ids[i] = r.AttrID
	}
	return f.record(Call{Op: "report", Addr: req.DstAddr, EP: req.DstEP, ClusterID: req.ClusterID, AttrIDs: ids, Options: req.FrameOptions})
}

func (f *Fake) OnDeviceJoined(h func(ncp.DeviceJoinedEvent))       { f.onJoined = h }
func (f *Fake) OnDeviceLeft(h func(ncp.DeviceLeftEvent))           { f.onLeft = h }
func (f *Fake) OnDeviceAnnounce(h func(ncp.DeviceAnnounceEvent))   { f.onAnnounce = h }
func (f *Fake) OnAttributeReport(h func(ncp.AttributeReportEvent)) { f.onReport = h }
func (f *Fake) OnClusterCommand(h func(ncp.ClusterCommandEvent))   { f.onCommand = h }

// Join delivers a join indication.
func (f *Fake) Join(addr uint16, ieee [8]byte) {
	if f.onJoined != nil {
		f.onJoined(ncp.DeviceJoinedEvent{ShortAddr: addr, IEEEAddr: ieee})
	}
}

// Leave delivers a leave indication.
func (f *Fake) Leave(addr uint16, ieee [8]byte) {
	if f.onLeft != nil {
		f.onLeft(ncp.DeviceLeftEvent{ShortAddr: addr, IEEEAddr: ieee})
	}
}

// Announce delivers a device announce indication.
func (f *Fake) Announce(addr uint16, ieee [8]byte) {
	if f.onAnnounce != nil {
		f.onAnnounce(ncp.DeviceAnnounceEvent{ShortAddr: addr, IEEEAddr: ieee})
	}
}

// ReportFrame parses a Report Attributes payload and delivers it.
func (f *Fake) ReportFrame(addr uint16, ep uint8, cluster uint16, lqi uint8, payload []byte) error {
	recs, err := ncp.ParseReport(payload)
	if err != nil {
		return err
	}
	if f.onReport != nil {
		f.onReport(ncp.AttributeReportEvent{SrcAddr: addr, SrcEP: ep, ClusterID: cluster, Records: recs, LQI: lqi})
	}
	return nil
}

// Command delivers a received cluster command.
func (f *Fake) Command(evt ncp.ClusterCommandEvent) {
	if f.onCommand != nil {
		f.onCommand(evt)
	}
}
