package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/ncp"
	"zigbee-capability/internal/store"
	"zigbee-capability/internal/zcl"
)

// device adapts a stored device record to converter.Device. It holds a copy
// of the record; Save writes the metadata converters may change back.
type device struct {
	dm   *DeviceManager
	mu   sync.Mutex
	rec  *store.Device
	ieee [8]byte
}

var _ converter.Device = (*device)(nil)

func (dm *DeviceManager) adapt(rec *store.Device) (*device, error) {
	ieee, err := ParseIEEE(rec.IEEEAddress)
	if err != nil {
		return nil, err
	}
	return &device{dm: dm, rec: rec, ieee: ieee}, nil
}

func (d *device) IEEEAddress() string      { return d.rec.IEEEAddress }
func (d *device) ModelID() string          { return d.rec.ModelID }
func (d *device) ManufacturerName() string { return d.rec.ManufacturerName }

func (d *device) Endpoints() []uint8 {
	ids := make([]uint8, len(d.rec.Endpoints))
	for i, ep := range d.rec.Endpoints {
		ids[i] = ep.ID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (d *device) Endpoint(id uint8) (converter.Endpoint, bool) {
	for _, ep := range d.rec.Endpoints {
		if ep.ID == id {
			return &endpoint{dev: d, id: id}, true
		}
	}
	return nil, false
}

func (d *device) PowerSource() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rec.PowerSource == "" {
		return converter.PowerSourceUnknown
	}
	return d.rec.PowerSource
}

func (d *device) SetPowerSource(ps string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rec.PowerSource = ps
}

func (d *device) Attribute(ep uint8, cluster, attribute string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.rec.Attributes[store.AttributeKey(ep, cluster, attribute)]
	return v, ok
}

func (d *device) Options() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rec.Options
}

func (d *device) cache(ep uint8, cluster string, values map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rec.Attributes == nil {
		d.rec.Attributes = make(map[string]any)
	}
	for attr, v := range values {
		d.rec.Attributes[store.AttributeKey(ep, cluster, attr)] = v
	}
}

func (d *device) Save(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ps := d.PowerSource()
	return d.dm.coord.Store().UpdateDevice(d.rec.IEEEAddress, func(rec *store.Device) error {
		rec.PowerSource = ps
		return nil
	})
}

// endpoint adapts one device endpoint to converter.Endpoint, resolving
// names through the registry snapshot and encoding values with the codec.
type endpoint struct {
	dev *device
	id  uint8
}

var _ converter.Endpoint = (*endpoint)(nil)

func (e *endpoint) ID() uint8 { return e.id }

func (e *endpoint) snap() *zcl.Snapshot { return e.dev.dm.coord.Snapshot() }

func (e *endpoint) nwk() ncp.NCP { return e.dev.dm.coord.ncp }

func frameOptions(opts converter.Options, mfr uint16) ncp.FrameOptions {
	if opts.ManufacturerCode != 0 {
		mfr = opts.ManufacturerCode
	}
	return ncp.FrameOptions{ManufacturerCode: mfr, DisableDefaultResponse: opts.DisableDefaultResponse}
}

// resolveAttrs resolves attribute names of one cluster. All attributes of a
// frame must share a manufacturer code.
func (e *endpoint) resolveAttrs(cluster string, names []string) ([]zcl.AttributeRef, error) {
	refs := make([]zcl.AttributeRef, 0, len(names))
	for _, name := range names {
		ref, err := e.snap().ResolveAttribute(cluster, name)
		if err != nil {
			return nil, err
		}
		if len(refs) > 0 && ref.ManufacturerCode() != refs[0].ManufacturerCode() {
			return nil, fmt.Errorf("%s: attributes %s and %s have different manufacturer codes", cluster, refs[0].Attribute.Name, name)
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%s: no attributes", cluster)
	}
	return refs, nil
}

// Read issues a read and routes the response through the device's
// definition as a readResponse message.
func (e *endpoint) Read(ctx context.Context, cluster string, attributes []string, opts converter.Options) error {
	refs, err := e.resolveAttrs(cluster, attributes)
	if err != nil {
		return err
	}
	ids := make([]uint16, len(refs))
	for i, r := range refs {
		ids[i] = r.Attribute.ID
	}
	c := refs[0].Cluster
	resp, err := e.nwk().ReadAttributes(ctx, ncp.ReadAttributesRequest{
		DstAddr:      e.dev.rec.ShortAddress,
		DstEP:        e.id,
		ClusterID:    c.ID,
		AttrIDs:      ids,
		FrameOptions: frameOptions(opts, c.ManufacturerCode),
	})
	if err != nil {
		return err
	}

	data := make(map[string]any, len(resp))
	var errs []error
	for _, r := range resp {
		name := attrName(e.snap(), c.ID, c.ManufacturerCode, r.AttrID)
		if r.Status != zcl.StatusSuccess {
			errs = append(errs, fmt.Errorf("%s.%s: %s", cluster, name, zcl.StatusName(r.Status)))
			continue
		}
		v, _, err := zcl.DecodeValue(r.DataType, r.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", cluster, name, err))
			continue
		}
		data[name] = v
	}
	if len(data) > 0 {
		e.dev.dm.dispatch(e.dev, &converter.Message{
			Cluster:  c.Name,
			Type:     converter.TypeReadResponse,
			Data:     data,
			Endpoint: e.id,
		})
	}
	return errors.Join(errs...)
}

func (e *endpoint) Write(ctx context.Context, cluster string, values map[string]any, opts converter.Options) error {
	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	sort.Strings(names)
	refs, err := e.resolveAttrs(cluster, names)
	if err != nil {
		return err
	}
	records := make([]ncp.WriteRecord, len(refs))
	for i, r := range refs {
		raw, err := zcl.EncodeValue(r.Attribute.Type, values[r.Attribute.Name])
		if err != nil {
			return encodeError(cluster+"."+r.Attribute.Name, values[r.Attribute.Name], err)
		}
		records[i] = ncp.WriteRecord{AttrID: r.Attribute.ID, DataType: r.Attribute.Type, Value: raw}
	}
	c := refs[0].Cluster
	return e.nwk().WriteAttributes(ctx, ncp.WriteAttributesRequest{
		DstAddr:      e.dev.rec.ShortAddress,
		DstEP:        e.id,
		ClusterID:    c.ID,
		Records:      records,
		FrameOptions: frameOptions(opts, c.ManufacturerCode),
	})
}

func (e *endpoint) Command(ctx context.Context, cluster, command string, params map[string]any, opts converter.Options) error {
	ref, err := e.snap().ResolveCommand(cluster, command)
	if err != nil {
		return err
	}
	var payload []byte
	for _, p := range ref.Command.Params {
		v, ok := params[p.Name]
		if !ok {
			return fmt.Errorf("%s.%s: missing parameter %q", cluster, command, p.Name)
		}
		raw, err := zcl.EncodeValue(p.Type, v)
		if err != nil {
			return encodeError(cluster+"."+command+"."+p.Name, v, err)
		}
		payload = append(payload, raw...)
	}
	return e.nwk().SendCommand(ctx, ncp.ClusterCommandRequest{
		DstAddr:      e.dev.rec.ShortAddress,
		DstEP:        e.id,
		ClusterID:    ref.Cluster.ID,
		CommandID:    ref.Command.ID,
		Payload:      payload,
		FrameOptions: frameOptions(opts, ref.Cluster.ManufacturerCode),
	})
}

// Bind binds the cluster to the coordinator's first endpoint.
func (e *endpoint) Bind(ctx context.Context, cluster string) error {
	c, err := e.snap().Cluster(cluster)
	if err != nil {
		return err
	}
	return e.nwk().Bind(ctx, ncp.BindRequest{
		TargetShortAddr: e.dev.rec.ShortAddress,
		SrcIEEE:         e.dev.ieee,
		SrcEP:           e.id,
		ClusterID:       c.ID,
		DstIEEE:         e.dev.dm.coord.LocalIEEE(),
		DstEP:           1,
	})
}

func (e *endpoint) ConfigureReporting(ctx context.Context, cluster string, items []converter.Reporting, opts converter.Options) error {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Attribute
	}
	refs, err := e.resolveAttrs(cluster, names)
	if err != nil {
		return err
	}
	records := make([]ncp.ReportingRecord, len(refs))
	for i, r := range refs {
		change, err := reportableChange(r.Attribute.Type, items[i].Change)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", cluster, r.Attribute.Name, err)
		}
		records[i] = ncp.ReportingRecord{
			AttrID:       r.Attribute.ID,
			DataType:     r.Attribute.Type,
			MinInterval:  items[i].Min,
			MaxInterval:  items[i].Max,
			ReportChange: change,
		}
	}
	c := refs[0].Cluster
	return e.nwk().ConfigureReporting(ctx, ncp.ConfigureReportingRequest{
		DstAddr:      e.dev.rec.ShortAddress,
		DstEP:        e.id,
		ClusterID:    c.ID,
		Records:      records,
		FrameOptions: frameOptions(opts, c.ManufacturerCode),
	})
}

// reportableChange encodes the change threshold for analog types. Discrete
// types carry no threshold.
func reportableChange(typ uint8, change float64) ([]byte, error) {
	if !zcl.IsAnalog(typ) {
		return nil, nil
	}
	if typ == zcl.TypeFloat32 || typ == zcl.TypeFloat64 {
		return zcl.EncodeValue(typ, change)
	}
	return zcl.EncodeValue(typ, math.Round(change))
}

func attrName(snap *zcl.Snapshot, clusterID, mfr, attrID uint16) string {
	if ref, ok := snap.AttributeByID(clusterID, mfr, attrID); ok {
		return ref.Attribute.Name
	}
	return fmt.Sprintf("0x%04X", attrID)
}

// encodeError reports a value the wire type cannot carry as a domain error,
// so callers can tell it apart from a failed send.
func encodeError(field string, value any, err error) error {
	var ve *zcl.ValueError
	if errors.As(err, &ve) {
		return &converter.ValueDomainError{Key: field, Value: value, Reason: ve.Type + ": " + ve.Reason}
	}
	return fmt.Errorf("%s: %w", field, err)
}
