package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"zigbee-capability/internal/commission"
	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/definition"
	"zigbee-capability/internal/ncp"
	"zigbee-capability/internal/store"
	"zigbee-capability/internal/zcl"
)

// ErrUnsupported is returned for operations on a device that matched no
// definition.
var ErrUnsupported = errors.New("coordinator: device has no definition")

type interviewEntry struct {
	cancel context.CancelFunc
	gen    uint64
}

// DeviceManager handles device lifecycle (join, leave, interview,
// commissioning) and routes messages through device definitions.
type DeviceManager struct {
	coord  *Coordinator
	logger *slog.Logger

	// Interview cancellation: tracks active interview cancel funcs by IEEE.
	interviewMu      sync.Mutex
	interviewCancels map[string]interviewEntry
	interviewGen     atomic.Uint64
	interviewWg      sync.WaitGroup

	// Debounce duplicate announce events.
	lastJoinMu sync.Mutex
	lastJoin   map[string]time.Time

	// In-memory short address -> IEEE index for fast lookup.
	addrMu    sync.RWMutex
	addrIndex map[uint16]string
}

// NewDeviceManager creates a new device manager.
func NewDeviceManager(coord *Coordinator) *DeviceManager {
	return &DeviceManager{
		coord:            coord,
		logger:           coord.logger.With("component", "device_manager"),
		interviewCancels: make(map[string]interviewEntry),
		lastJoin:         make(map[string]time.Time),
		addrIndex:        make(map[uint16]string),
	}
}

// CancelAllInterviews cancels all running interview goroutines and waits for them.
func (dm *DeviceManager) CancelAllInterviews() {
	dm.interviewMu.Lock()
	for ieee, entry := range dm.interviewCancels {
		entry.cancel()
		delete(dm.interviewCancels, ieee)
	}
	dm.interviewMu.Unlock()
	dm.interviewWg.Wait()
}

// Wait blocks until running interviews finish.
func (dm *DeviceManager) Wait() {
	dm.interviewWg.Wait()
}

func (dm *DeviceManager) updateAddrIndex(ieee string, shortAddr uint16) {
	dm.addrMu.Lock()
	dm.addrIndex[shortAddr] = ieee
	dm.addrMu.Unlock()
}

func (dm *DeviceManager) removeFromAddrIndex(ieee string) {
	dm.addrMu.Lock()
	for addr, stored := range dm.addrIndex {
		if stored == ieee {
			delete(dm.addrIndex, addr)
			break
		}
	}
	dm.addrMu.Unlock()
}

func (dm *DeviceManager) lookupIEEE(shortAddr uint16) string {
	dm.addrMu.RLock()
	defer dm.addrMu.RUnlock()
	return dm.addrIndex[shortAddr]
}

// deviceName returns a human-readable display name for a device.
func deviceName(dev *store.Device) string {
	if dev == nil {
		return ""
	}
	if dev.FriendlyName != "" {
		return dev.FriendlyName
	}
	if dev.Definition != "" {
		return dev.Definition
	}
	return strings.TrimSpace(dev.ManufacturerName + " " + dev.ModelID)
}

// RebuildAddrIndex loads all devices from store and populates the index.
func (dm *DeviceManager) RebuildAddrIndex() {
	devices, err := dm.coord.Store().ListDevices()
	if err != nil {
		dm.logger.Error("rebuild addr index", "err", err)
		return
	}
	dm.addrMu.Lock()
	clear(dm.addrIndex)
	for _, d := range devices {
		dm.addrIndex[d.ShortAddress] = d.IEEEAddress
	}
	dm.addrMu.Unlock()
}

// lookupOrRebuild looks up an IEEE address by short address, rebuilding the
// index from the store on a miss.
func (dm *DeviceManager) lookupOrRebuild(shortAddr uint16) string {
	if ieee := dm.lookupIEEE(shortAddr); ieee != "" {
		return ieee
	}

	dm.addrMu.Lock()
	defer dm.addrMu.Unlock()
	if ieee := dm.addrIndex[shortAddr]; ieee != "" {
		return ieee
	}
	devices, err := dm.coord.Store().ListDevices()
	if err != nil {
		dm.logger.Error("rebuild addr index for lookup", "err", err)
		return ""
	}
	clear(dm.addrIndex)
	var ieee string
	for _, d := range devices {
		dm.addrIndex[d.ShortAddress] = d.IEEEAddress
		if d.ShortAddress == shortAddr {
			ieee = d.IEEEAddress
		}
	}
	return ieee
}

// HandleJoin processes a device join event. The interview starts on the
// announce that follows key exchange, not here.
func (dm *DeviceManager) HandleJoin(evt ncp.DeviceJoinedEvent) {
	ieee := FormatIEEE(evt.IEEEAddr)
	dm.updateAddrIndex(ieee, evt.ShortAddr)

	now := time.Now()
	dev, err := dm.coord.Store().GetDevice(ieee)
	if err != nil {
		dev = &store.Device{IEEEAddress: ieee, JoinedAt: now}
	}
	dev.ShortAddress = evt.ShortAddr
	dev.LastSeen = now

	dm.logger.Info("device joined", "ieee", ieee, "short", fmt.Sprintf("0x%04X", evt.ShortAddr), "name", deviceName(dev))
	if err := dm.coord.Store().SaveDevice(dev); err != nil {
		dm.logger.Error("save device", "err", err, "ieee", ieee)
		return
	}
	dm.coord.Events().Emit(deviceEvent(EventDeviceJoined, ieee, map[string]any{"short_addr": evt.ShortAddr}))
}

func (dm *DeviceManager) cancelInterview(ieee string) {
	dm.interviewMu.Lock()
	if entry, ok := dm.interviewCancels[ieee]; ok {
		entry.cancel()
		delete(dm.interviewCancels, ieee)
	}
	dm.interviewMu.Unlock()
}

// HandleLeave processes a device leave event: cancels interview, removes from
// address index, deletes from store, and emits EventDeviceLeft.
func (dm *DeviceManager) HandleLeave(evt ncp.DeviceLeftEvent) {
	ieee := FormatIEEE(evt.IEEEAddr)
	dev, _ := dm.coord.Store().GetDevice(ieee)
	name := deviceName(dev)
	dm.logger.Info("device left", "ieee", ieee, "name", name)

	dm.cancelInterview(ieee)
	dm.lastJoinMu.Lock()
	delete(dm.lastJoin, ieee)
	dm.lastJoinMu.Unlock()
	dm.removeFromAddrIndex(ieee)

	if err := dm.coord.Store().DeleteDevice(ieee); err != nil {
		dm.logger.Error("delete device on leave", "err", err, "ieee", ieee)
	}
	dm.coord.Events().Emit(deviceEvent(EventDeviceLeft, ieee, nil))
}

// HandleAnnounce processes a device announce event. A new device is
// interviewed; a known device is recommissioned when configured to.
func (dm *DeviceManager) HandleAnnounce(evt ncp.DeviceAnnounceEvent) {
	ieee := FormatIEEE(evt.IEEEAddr)
	dm.updateAddrIndex(ieee, evt.ShortAddr)

	dev, err := dm.coord.Store().GetDevice(ieee)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			dm.logger.Error("get device on announce", "err", err, "ieee", ieee)
			return
		}
		dev = &store.Device{IEEEAddress: ieee, JoinedAt: time.Now()}
	}
	dev.ShortAddress = evt.ShortAddr
	dev.LastSeen = time.Now()
	if err := dm.coord.Store().SaveDevice(dev); err != nil {
		dm.logger.Error("save device on announce", "err", err)
		return
	}
	dm.logger.Info("device announce", "ieee", ieee, "short", fmt.Sprintf("0x%04X", evt.ShortAddr), "name", deviceName(dev))
	dm.coord.Events().Emit(deviceEvent(EventDeviceAnnounce, ieee, map[string]any{"short_addr": evt.ShortAddr}))

	dm.interviewMu.Lock()
	_, interviewing := dm.interviewCancels[ieee]
	dm.interviewMu.Unlock()
	if interviewing {
		dm.logger.Info("announce during interview, address updated", "ieee", ieee)
		return
	}

	dm.lastJoinMu.Lock()
	if last, ok := dm.lastJoin[ieee]; ok && time.Since(last) < 3*time.Second {
		dm.lastJoinMu.Unlock()
		dm.logger.Debug("duplicate announce, interview already started", "ieee", ieee)
		return
	}
	dm.lastJoin[ieee] = time.Now()
	if len(dm.lastJoin) > 50 {
		for k, t := range dm.lastJoin {
			if time.Since(t) > time.Minute {
				delete(dm.lastJoin, k)
			}
		}
	}
	dm.lastJoinMu.Unlock()

	switch {
	case !dev.Interviewed:
		dm.start(ieee, dm.interview)
	case dev.Definition != "" && dm.coord.config.ReconfigureOnAnnounce:
		dm.start(ieee, func(ctx context.Context, ieee string) {
			if _, err := dm.reconfigure(ctx, ieee); err != nil {
				dm.logger.Warn("reconfigure on announce", "ieee", ieee, "err", err)
			}
		})
	}
}

// start runs job in the background under the commissioning timeout,
// replacing any job already running for the device.
func (dm *DeviceManager) start(ieee string, job func(ctx context.Context, ieee string)) {
	gen := dm.interviewGen.Add(1)
	ctx, cancel := context.WithTimeout(dm.coord.Context(), dm.coord.config.CommissionTimeout)

	dm.interviewMu.Lock()
	if prev, ok := dm.interviewCancels[ieee]; ok {
		prev.cancel()
	}
	dm.interviewCancels[ieee] = interviewEntry{cancel: cancel, gen: gen}
	dm.interviewMu.Unlock()

	dm.interviewWg.Add(1)
	go func() {
		defer func() {
			cancel()
			dm.interviewMu.Lock()
			if entry, ok := dm.interviewCancels[ieee]; ok && entry.gen == gen {
				delete(dm.interviewCancels, ieee)
			}
			dm.interviewMu.Unlock()
			dm.interviewWg.Done()
		}()
		job(ctx, ieee)
	}()
}

// Interview queries a device for its endpoints and identity, matches it to a
// definition and commissions it. It blocks until done.
func (dm *DeviceManager) Interview(ctx context.Context, ieee string) error {
	ctx, cancel := context.WithTimeout(ctx, dm.coord.config.CommissionTimeout)
	defer cancel()
	return dm.runInterview(ctx, ieee)
}

func (dm *DeviceManager) interview(ctx context.Context, ieee string) {
	if err := dm.runInterview(ctx, ieee); err != nil {
		dm.logger.Error("interview failed", "ieee", ieee, "err", err)
	}
}

// runInterview retries endpoint discovery up to three times, re-reading the
// device from store each time to pick up short address changes.
func (dm *DeviceManager) runInterview(ctx context.Context, ieee string) error {
	const maxRetries = 3
	var dev *store.Device
	var epIDs []uint8
	for attempt := 1; ; attempt++ {
		var err error
		dev, err = dm.coord.Store().GetDevice(ieee)
		if err != nil {
			return fmt.Errorf("interview: %w", err)
		}
		dm.logger.Info("starting interview", "ieee", ieee, "short", fmt.Sprintf("0x%04X", dev.ShortAddress), "attempt", attempt)

		epIDs, err = dm.coord.ncp.ActiveEndpoints(ctx, dev.ShortAddress)
		if err == nil {
			break
		}
		dm.logger.Warn("interview: active EP failed", "err", err, "ieee", ieee, "attempt", attempt)
		if ctx.Err() != nil || attempt == maxRetries {
			return fmt.Errorf("interview: active endpoints: %w", err)
		}
		delay := 5*time.Second + time.Duration(rand.IntN(3001))*time.Millisecond
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	dev.Endpoints = make([]store.Endpoint, 0, len(epIDs))
	for _, ep := range epIDs {
		sd, err := dm.coord.ncp.SimpleDescriptor(ctx, dev.ShortAddress, ep)
		if err != nil {
			dm.logger.Warn("interview: simple desc", "err", err, "ieee", ieee, "ep", ep)
			continue
		}
		dev.Endpoints = append(dev.Endpoints, store.Endpoint{
			ID:          ep,
			ProfileID:   sd.ProfileID,
			DeviceID:    sd.DeviceID,
			InClusters:  sd.InClusters,
			OutClusters: sd.OutClusters,
		})
	}
	if len(dev.Endpoints) == 0 {
		return fmt.Errorf("interview: no endpoint descriptors for %s", ieee)
	}
	dm.readBasicAttributes(ctx, dev)

	info := dm.deviceInfo(dev)
	def, err := dm.coord.Definitions().Find(info)
	if err != nil {
		def, err = dm.generate(info)
	}
	if err == nil {
		dev.Definition = def.Model
		dev.Generated = def.Generated
	}
	dev.Interviewed = true
	if saveErr := dm.coord.Store().SaveDevice(dev); saveErr != nil {
		return fmt.Errorf("interview: save: %w", saveErr)
	}
	dm.coord.Events().Emit(deviceEvent(EventDeviceInterview, ieee, map[string]any{
		"model_id":   dev.ModelID,
		"definition": dev.Definition,
		"supported":  def != nil,
		"generated":  dev.Generated,
	}))
	if err != nil {
		dm.logger.Warn("unsupported device", "ieee", ieee, "model", info.ModelID, "manufacturer", info.ManufacturerName)
		return nil
	}
	dm.logger.Info("interview complete", "ieee", ieee, "name", deviceName(dev), "endpoints", len(dev.Endpoints))

	_, err = dm.commission(ctx, dev, def)
	return err
}

const (
	attrManufacturerName uint16 = 0x0004
	attrModelID          uint16 = 0x0005
	attrPowerSource      uint16 = 0x0007
)

func (dm *DeviceManager) readBasicAttributes(ctx context.Context, dev *store.Device) {
	ep := dev.Endpoints[0].ID
	for _, e := range dev.Endpoints {
		if hasCluster(e.InClusters, 0x0000) {
			ep = e.ID
			break
		}
	}
	results, err := dm.coord.ncp.ReadAttributes(ctx, ncp.ReadAttributesRequest{
		DstAddr:   dev.ShortAddress,
		DstEP:     ep,
		ClusterID: 0x0000,
		AttrIDs:   []uint16{attrManufacturerName, attrModelID, attrPowerSource},
	})
	if err != nil {
		dm.logger.Warn("read basic attributes", "err", err, "ieee", dev.IEEEAddress)
		return
	}
	for _, r := range results {
		if r.Status != zcl.StatusSuccess {
			continue
		}
		val, _, err := zcl.DecodeValue(r.DataType, r.Value)
		if err != nil {
			continue
		}
		switch r.AttrID {
		case attrManufacturerName:
			if s, ok := val.(string); ok {
				dev.ManufacturerName = strings.TrimRight(s, "\x00")
			}
		case attrModelID:
			if s, ok := val.(string); ok {
				dev.ModelID = strings.TrimRight(s, "\x00")
			}
		case attrPowerSource:
			if n, ok := val.(uint64); ok && dev.PowerSource == "" {
				dev.PowerSource = powerSourceName(n)
			}
		}
	}
}

// powerSourceName maps genBasic.powerSource; bit 7 flags a secondary
// battery and is ignored.
func powerSourceName(v uint64) string {
	switch v & 0x7F {
	case 0x01, 0x02:
		return converter.PowerSourceMains
	case 0x03:
		return converter.PowerSourceBattery
	case 0x04:
		return converter.PowerSourceDC
	}
	return converter.PowerSourceUnknown
}

func hasCluster(list []uint16, id uint16) bool {
	for _, c := range list {
		if c == id {
			return true
		}
	}
	return false
}

func (dm *DeviceManager) deviceInfo(dev *store.Device) definition.DeviceInfo {
	snap := dm.coord.Snapshot()
	info := definition.DeviceInfo{ModelID: dev.ModelID, ManufacturerName: dev.ManufacturerName}
	for _, ep := range dev.Endpoints {
		ei := definition.EndpointInfo{ID: ep.ID}
		for _, c := range ep.InClusters {
			ei.InputClusters = append(ei.InputClusters, snap.ClusterName(c, zcl.NoManufacturer))
		}
		for _, c := range ep.OutClusters {
			ei.OutputClusters = append(ei.OutputClusters, snap.ClusterName(c, zcl.NoManufacturer))
		}
		info.Endpoints = append(info.Endpoints, ei)
	}
	return info
}

// generate builds a definition from the clusters of a device no known
// definition matched and adds it to the database.
func (dm *DeviceManager) generate(info definition.DeviceInfo) (*definition.Definition, error) {
	def, err := definition.Generate(info, dm.coord.Snapshot(), dm.coord.logger)
	if err != nil {
		return nil, err
	}
	if err := dm.coord.Definitions().Add(def); err != nil {
		// A concurrent interview of the same model added it first.
		if existing, ferr := dm.coord.Definitions().Find(info); ferr == nil {
			return existing, nil
		}
		return nil, err
	}
	dm.logger.Info("generated definition", "model", def.Model, "exposes", len(def.Exposes))
	return def, nil
}

// RestoreGenerated regenerates the definitions of stored devices that were
// matched by generation, which are not kept across restarts.
func (dm *DeviceManager) RestoreGenerated() {
	devices, err := dm.coord.Store().ListDevices()
	if err != nil {
		dm.logger.Error("restore generated definitions", "err", err)
		return
	}
	for _, d := range devices {
		if !d.Generated || dm.coord.Definitions().ByModel(d.Definition) != nil {
			continue
		}
		if _, err := dm.generate(dm.deviceInfo(d)); err != nil {
			dm.logger.Warn("restore generated definition", "ieee", d.IEEEAddress, "model", d.ModelID, "err", err)
		}
	}
}

// commission runs the definition's configure steps and records the
// outcome on the device.
func (dm *DeviceManager) commission(ctx context.Context, rec *store.Device, def *definition.Definition) (*commission.Result, error) {
	dev, err := dm.adapt(rec)
	if err != nil {
		return nil, err
	}
	res := dm.coord.driver.Run(ctx, dev, def.Endpoints, def.Configure)

	summary := &store.Commission{
		At:        time.Now(),
		Succeeded: res.Count(commission.StatusSucceeded),
		Failed:    res.Count(commission.StatusFailed),
		Skipped:   res.Count(commission.StatusSkipped),
	}
	for _, sr := range res.Steps {
		if sr.Err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", sr.Step, sr.Err))
		}
	}
	if err := dm.coord.Store().UpdateDevice(rec.IEEEAddress, func(d *store.Device) error {
		d.Commission = summary
		return nil
	}); err != nil {
		dm.logger.Error("save commission result", "ieee", rec.IEEEAddress, "err", err)
	}

	dm.logger.Info("commissioning finished", "ieee", rec.IEEEAddress, "name", deviceName(rec),
		"succeeded", summary.Succeeded, "failed", summary.Failed, "skipped", summary.Skipped)
	dm.coord.Events().Emit(deviceEvent(EventDeviceCommission, rec.IEEEAddress, summary))
	return res, res.Err()
}

// Reconfigure re-runs the full commissioning sequence of a device. The
// returned error is a *commission.PartialFailureError when steps failed.
func (dm *DeviceManager) Reconfigure(ctx context.Context, ieee string) (*commission.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, dm.coord.config.CommissionTimeout)
	defer cancel()
	return dm.reconfigure(ctx, ieee)
}

func (dm *DeviceManager) reconfigure(ctx context.Context, ieee string) (*commission.Result, error) {
	rec, def, err := dm.lookup(ieee)
	if err != nil {
		return nil, err
	}
	return dm.commission(ctx, rec, def)
}

func (dm *DeviceManager) lookup(ieee string) (*store.Device, *definition.Definition, error) {
	rec, err := dm.coord.Store().GetDevice(ieee)
	if err != nil {
		return nil, nil, err
	}
	def := dm.coord.Definitions().ByModel(rec.Definition)
	if rec.Definition == "" || def == nil {
		return rec, nil, fmt.Errorf("%w: %s", ErrUnsupported, ieee)
	}
	return rec, def, nil
}

// Definition returns the definition a device was matched to.
func (dm *DeviceManager) Definition(ieee string) (*definition.Definition, error) {
	_, def, err := dm.lookup(ieee)
	return def, err
}

// HandleAttributeReport decodes an attribute report and routes it through
// the device's definition.
func (dm *DeviceManager) HandleAttributeReport(evt ncp.AttributeReportEvent) {
	ieee := dm.lookupOrRebuild(evt.SrcAddr)
	if ieee == "" {
		dm.logger.Debug("report from unknown device", "short", fmt.Sprintf("0x%04X", evt.SrcAddr))
		return
	}
	snap := dm.coord.Snapshot()
	cluster := snap.ClusterName(evt.ClusterID, evt.ManufacturerCode)
	data := make(map[string]any, len(evt.Records))
	for _, r := range evt.Records {
		name := attrName(snap, evt.ClusterID, evt.ManufacturerCode, r.AttrID)
		v, _, err := zcl.DecodeValue(r.DataType, r.Value)
		if err != nil {
			dm.logger.Warn("decode attribute", "ieee", ieee, "cluster", cluster, "attr", name, "err", err)
			continue
		}
		data[name] = v
	}
	dm.logger.Debug("attribute report", "ieee", ieee, "cluster", cluster, "data", data)
	dm.handle(ieee, &converter.Message{
		Cluster:     cluster,
		Type:        converter.TypeAttributeReport,
		Data:        data,
		Endpoint:    evt.SrcEP,
		Sequence:    evt.Sequence,
		LinkQuality: evt.LQI,
	}, evt.RSSI)
}

// HandleClusterCommand decodes a received cluster command by its registry
// parameters. Unknown commands are routed as raw messages.
func (dm *DeviceManager) HandleClusterCommand(evt ncp.ClusterCommandEvent) {
	ieee := dm.lookupOrRebuild(evt.SrcAddr)
	if ieee == "" {
		dm.logger.Debug("command from unknown device", "short", fmt.Sprintf("0x%04X", evt.SrcAddr))
		return
	}
	snap := dm.coord.Snapshot()
	dir := zcl.DirectionToServer
	if evt.ServerToClient {
		dir = zcl.DirectionToClient
	}
	msg := &converter.Message{
		Cluster:     snap.ClusterName(evt.ClusterID, evt.ManufacturerCode),
		Type:        converter.TypeRaw,
		Data:        map[string]any{},
		Endpoint:    evt.SrcEP,
		Sequence:    evt.Sequence,
		LinkQuality: evt.LQI,
		Raw:         evt.Payload,
	}
	if ref, ok := snap.CommandByID(evt.ClusterID, evt.ManufacturerCode, evt.CommandID, dir); ok {
		msg.Cluster = ref.Cluster.Name
		msg.Type = converter.CommandType(ref.Command.Name)
		payload := evt.Payload
		for _, p := range ref.Command.Params {
			v, n, err := zcl.DecodeValue(p.Type, payload)
			if err != nil {
				dm.logger.Warn("decode command parameter", "ieee", ieee, "cluster", msg.Cluster,
					"command", ref.Command.Name, "param", p.Name, "err", err)
				break
			}
			msg.Data[p.Name] = v
			payload = payload[n:]
		}
	}
	dm.handle(ieee, msg, evt.RSSI)
}

func (dm *DeviceManager) handle(ieee string, msg *converter.Message, rssi int8) {
	now := time.Now()
	var rec *store.Device
	err := dm.coord.Store().UpdateDevice(ieee, func(d *store.Device) error {
		d.LastSeen = now
		if msg.LinkQuality > 0 {
			d.LQI = msg.LinkQuality
			d.RSSI = rssi
		}
		cacheAttributes(d, msg)
		cp := *d
		rec = &cp
		return nil
	})
	if err != nil {
		dm.logger.Error("update device on message", "ieee", ieee, "err", err)
		return
	}
	dev, err := dm.adapt(rec)
	if err != nil {
		dm.logger.Error("adapt device", "ieee", ieee, "err", err)
		return
	}
	dm.convert(dev, msg)
}

func isAttributeMessage(msg *converter.Message) bool {
	return msg.Type == converter.TypeAttributeReport || msg.Type == converter.TypeReadResponse
}

func cacheAttributes(d *store.Device, msg *converter.Message) {
	if !isAttributeMessage(msg) {
		return
	}
	if d.Attributes == nil {
		d.Attributes = make(map[string]any)
	}
	for attr, v := range msg.Data {
		d.Attributes[store.AttributeKey(msg.Endpoint, msg.Cluster, attr)] = v
	}
}

// dispatch routes a message produced by an outbound read of dev.
func (dm *DeviceManager) dispatch(dev *device, msg *converter.Message) {
	if isAttributeMessage(msg) {
		dev.cache(msg.Endpoint, msg.Cluster, msg.Data)
		if err := dm.coord.Store().UpdateDevice(dev.IEEEAddress(), func(d *store.Device) error {
			cacheAttributes(d, msg)
			return nil
		}); err != nil {
			dm.logger.Error("cache read response", "ieee", dev.IEEEAddress(), "err", err)
		}
	}
	dm.convert(dev, msg)
}

// convert runs the definition's inbound converters and publishes the patch.
func (dm *DeviceManager) convert(dev *device, msg *converter.Message) {
	ieee := dev.IEEEAddress()
	def := dm.coord.Definitions().ByModel(dev.rec.Definition)
	if dev.rec.Definition == "" || def == nil {
		return
	}
	state, err := dm.coord.Store().GetState(ieee)
	if err != nil {
		dm.logger.Error("load state", "ieee", ieee, "err", err)
		return
	}
	patch, err := def.Convert(msg, dev, state)
	if err != nil {
		dm.coord.Events().Emit(deviceEvent(EventConvertError, ieee,
			map[string]any{"cluster": msg.Cluster, "type": msg.Type, "error": err.Error()}))
	}
	dm.publish(dev.rec, patch)
}

func (dm *DeviceManager) publish(rec *store.Device, patch converter.State) {
	if len(patch) == 0 {
		return
	}
	state, err := dm.coord.Store().MergeState(rec.IEEEAddress, patch)
	if err != nil {
		dm.logger.Error("save state", "ieee", rec.IEEEAddress, "err", err)
		return
	}
	dm.coord.Events().Emit(deviceEvent(EventStateUpdate, rec.IEEEAddress,
		StateUpdate{IEEE: rec.IEEEAddress, Name: deviceName(rec), Patch: patch, State: state}))
}

// StateUpdate is the payload of EventStateUpdate.
type StateUpdate struct {
	IEEE  string          `json:"ieee"`
	Name  string          `json:"name"`
	Patch converter.State `json:"patch"`
	State map[string]any  `json:"state"`
}

// Set routes a semantic set to the owning outbound converter and publishes
// the optimistic patch it returns.
func (dm *DeviceManager) Set(ctx context.Context, ieee, key string, value any) (converter.State, error) {
	rec, def, err := dm.lookup(ieee)
	if err != nil {
		return nil, err
	}
	dev, err := dm.adapt(rec)
	if err != nil {
		return nil, err
	}
	state, err := dm.coord.Store().GetState(ieee)
	if err != nil {
		return nil, err
	}
	patch, err := def.Set(ctx, dev, state, key, value)
	if err != nil {
		return nil, err
	}
	dm.publish(rec, patch)
	return patch, nil
}

// SetState applies several keys in sorted order. Every key is attempted;
// errors are joined.
func (dm *DeviceManager) SetState(ctx context.Context, ieee string, values map[string]any) (converter.State, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := converter.State{}
	var errs []error
	for _, k := range keys {
		patch, err := dm.Set(ctx, ieee, k, values[k])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
			continue
		}
		out.Merge(patch)
	}
	return out, errors.Join(errs...)
}

// Get issues the read for key. The value arrives as a state update.
func (dm *DeviceManager) Get(ctx context.Context, ieee, key string) error {
	rec, def, err := dm.lookup(ieee)
	if err != nil {
		return err
	}
	dev, err := dm.adapt(rec)
	if err != nil {
		return err
	}
	state, err := dm.coord.Store().GetState(ieee)
	if err != nil {
		return err
	}
	return def.Get(ctx, dev, state, key)
}

// State returns the last known state of a device.
func (dm *DeviceManager) State(ieee string) (map[string]any, error) {
	if _, err := dm.coord.Store().GetDevice(ieee); err != nil {
		return nil, err
	}
	return dm.coord.Store().GetState(ieee)
}

// Resolve finds a device by IEEE address (with or without colons) or
// friendly name.
func (dm *DeviceManager) Resolve(id string) (*store.Device, error) {
	if addr, err := ParseIEEE(strings.TrimPrefix(strings.ToLower(id), "0x")); err == nil {
		if dev, err := dm.coord.Store().GetDevice(FormatIEEE(addr)); err == nil {
			return dev, nil
		}
	}
	devices, err := dm.coord.Store().ListDevices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.FriendlyName == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device %q: %w", id, store.ErrNotFound)
}

// Rename sets a device's friendly name. Names must be unique.
func (dm *DeviceManager) Rename(ieee, name string) error {
	if name != "" {
		if other, err := dm.Resolve(name); err == nil && other.IEEEAddress != ieee {
			return fmt.Errorf("friendly name %q already used by %s", name, other.IEEEAddress)
		}
	}
	return dm.coord.Store().UpdateDevice(ieee, func(d *store.Device) error {
		d.FriendlyName = name
		return nil
	})
}

// SetOptions merges per-device converter options, such as
// temperature_calibration, into the device record. A nil value removes the
// option. The options apply to messages converted afterwards.
func (dm *DeviceManager) SetOptions(ieee string, opts map[string]any) (map[string]any, error) {
	var out map[string]any
	err := dm.coord.Store().UpdateDevice(ieee, func(d *store.Device) error {
		if d.Options == nil {
			d.Options = make(map[string]any, len(opts))
		}
		for k, v := range opts {
			if v == nil {
				delete(d.Options, k)
				continue
			}
			d.Options[k] = v
		}
		out = d.Options
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveDevice sends a ZDO leave request, cancels any in-progress interview,
// removes from addr index, and deletes from store.
func (dm *DeviceManager) RemoveDevice(ieee string) error {
	dm.cancelInterview(ieee)

	if dev, err := dm.coord.Store().GetDevice(ieee); err == nil {
		if addr, parseErr := ParseIEEE(ieee); parseErr == nil {
			ctx, cancel := context.WithTimeout(dm.coord.Context(), 10*time.Second)
			defer cancel()
			if leaveErr := dm.coord.ncp.MgmtLeave(ctx, dev.ShortAddress, addr); leaveErr != nil {
				dm.logger.Warn("mgmt leave request failed", "ieee", ieee, "name", deviceName(dev), "err", leaveErr)
			} else {
				dm.logger.Info("device removed from network", "ieee", ieee, "name", deviceName(dev))
			}
		}
	}

	dm.removeFromAddrIndex(ieee)
	return dm.coord.Store().DeleteDevice(ieee)
}

// ListDevices returns all known devices.
func (dm *DeviceManager) ListDevices() ([]*store.Device, error) {
	return dm.coord.Store().ListDevices()
}

// GetDevice returns a device by IEEE address.
func (dm *DeviceManager) GetDevice(ieee string) (*store.Device, error) {
	return dm.coord.Store().GetDevice(ieee)
}
