// Package coordinator adapts an NCP backend to the capability engine: it
// interviews joining devices, matches them to definitions, commissions
// them and routes inbound reports and outbound set/get requests through
// their converters.
package coordinator

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zigbee-capability/internal/commission"
	"zigbee-capability/internal/definition"
	"zigbee-capability/internal/ncp"
	"zigbee-capability/internal/store"
	"zigbee-capability/internal/zcl"
)

// Config holds coordinator configuration.
type Config struct {
	// CommissionTimeout bounds one interview plus commissioning run.
	CommissionTimeout time.Duration
	// ReconfigureOnAnnounce re-runs commissioning when a known device
	// announces itself again, for devices that lose their bindings on
	// power loss.
	ReconfigureOnAnnounce bool
}

// DefaultCommissionTimeout is used when Config.CommissionTimeout is zero.
const DefaultCommissionTimeout = 3 * time.Minute

// ParseIEEE parses "DD:DD:DD:DD:DD:DD:DD:DD" or "DDDDDDDDDDDDDDDD" into [8]byte.
func ParseIEEE(s string) ([8]byte, error) {
	var result [8]byte
	s = strings.ReplaceAll(s, ":", "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return result, fmt.Errorf("parse ieee address: %w", err)
	}
	if len(b) != 8 {
		return result, fmt.Errorf("ieee address must be 8 bytes, got %d", len(b))
	}
	copy(result[:], b)
	return result, nil
}

// FormatIEEE formats an address the way devices are keyed in the store.
func FormatIEEE(addr [8]byte) string {
	return fmt.Sprintf("%016X", addr)
}

// Coordinator manages paired devices via an NCP backend.
type Coordinator struct {
	ncp       ncp.NCP
	store     store.Store
	snap      *zcl.Snapshot
	db        *definition.DB
	driver    *commission.Driver
	events    *EventBus
	devices   *DeviceManager
	logger    *slog.Logger
	config    Config
	localIEEE [8]byte // coordinator's own IEEE address, cached at Start
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a Coordinator. The snapshot and definition DB are the output
// of the definition loader; the DB only grows by definitions generated for
// devices it does not match.
func New(backend ncp.NCP, st store.Store, snap *zcl.Snapshot, db *definition.DB, events *EventBus, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.CommissionTimeout <= 0 {
		cfg.CommissionTimeout = DefaultCommissionTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		ncp:    backend,
		store:  st,
		snap:   snap,
		db:     db,
		driver: commission.NewDriver(logger),
		events: events,
		logger: logger.With("component", "coordinator"),
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}
	c.devices = NewDeviceManager(c)
	c.devices.RebuildAddrIndex()
	c.devices.RestoreGenerated()
	c.registerIndicationHandlers()
	return c
}

// Context returns the coordinator's context, which is cancelled on Stop().
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Start brings up the NCP and caches the coordinator address used as the
// binding destination.
func (c *Coordinator) Start(ctx context.Context) error {
	c.logger.Info("starting NCP...")
	if err := c.ncp.Start(ctx); err != nil {
		return fmt.Errorf("ncp start: %w", err)
	}
	ieee, err := c.ncp.GetLocalIEEE(ctx)
	if err != nil {
		return fmt.Errorf("get coordinator IEEE: %w", err)
	}
	c.localIEEE = ieee
	c.logger.Info("coordinator started", "ieee", FormatIEEE(ieee), "definitions", c.db.Len())
	c.events.Emit(Event{Type: EventNetworkState, Data: "started"})
	return nil
}

// LocalIEEE returns the coordinator's own IEEE address.
func (c *Coordinator) LocalIEEE() [8]byte {
	return c.localIEEE
}

// Stop cancels the coordinator context and waits for in-progress interviews.
func (c *Coordinator) Stop() {
	c.cancel()
	c.devices.CancelAllInterviews()
}

// PermitJoin opens or closes the network for device joining.
func (c *Coordinator) PermitJoin(ctx context.Context, duration uint8) error {
	if err := c.ncp.PermitJoin(ctx, duration); err != nil {
		return fmt.Errorf("permit join: %w", err)
	}
	c.logger.Info("permit join", "duration", duration)
	c.events.Emit(Event{Type: EventPermitJoin, Data: map[string]any{"duration": duration}})
	return nil
}

// Store returns the store.
func (c *Coordinator) Store() store.Store {
	return c.store
}

// Snapshot returns the frozen cluster registry.
func (c *Coordinator) Snapshot() *zcl.Snapshot {
	return c.snap
}

// Definitions returns the definition database.
func (c *Coordinator) Definitions() *definition.DB {
	return c.db
}

// Events returns the event bus.
func (c *Coordinator) Events() *EventBus {
	return c.events
}

// Devices returns the device manager.
func (c *Coordinator) Devices() *DeviceManager {
	return c.devices
}

func (c *Coordinator) registerIndicationHandlers() {
	c.ncp.OnDeviceJoined(func(evt ncp.DeviceJoinedEvent) {
		c.devices.HandleJoin(evt)
	})
	c.ncp.OnDeviceLeft(func(evt ncp.DeviceLeftEvent) {
		c.devices.HandleLeave(evt)
	})
	c.ncp.OnDeviceAnnounce(func(evt ncp.DeviceAnnounceEvent) {
		c.devices.HandleAnnounce(evt)
	})
	c.ncp.OnAttributeReport(func(evt ncp.AttributeReportEvent) {
		c.devices.HandleAttributeReport(evt)
	})
	c.ncp.OnClusterCommand(func(evt ncp.ClusterCommandEvent) {
		c.devices.HandleClusterCommand(evt)
	})
}
