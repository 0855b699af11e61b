// Package ncp defines the transport interface to a Zigbee network
// co-processor. Backends register themselves by type name and are opened
// from configuration.
package ncp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// NCP is the abstract interface for a Zigbee NCP device.
type NCP interface {
	// Start brings the backend up on an already formed network.
	Start(ctx context.Context) error
	PermitJoin(ctx context.Context, duration uint8) error
	GetLocalIEEE(ctx context.Context) ([8]byte, error)

	// ZDO
	ActiveEndpoints(ctx context.Context, shortAddr uint16) ([]uint8, error)
	SimpleDescriptor(ctx context.Context, shortAddr uint16, endpoint uint8) (*SimpleDescriptor, error)
	Bind(ctx context.Context, req BindRequest) error
	MgmtLeave(ctx context.Context, shortAddr uint16, ieeeAddr [8]byte) error

	// ZCL
	ReadAttributes(ctx context.Context, req ReadAttributesRequest) ([]AttributeResponse, error)
	WriteAttributes(ctx context.Context, req WriteAttributesRequest) error
	SendCommand(ctx context.Context, req ClusterCommandRequest) error
	ConfigureReporting(ctx context.Context, req ConfigureReportingRequest) error

	// Indication callbacks
	OnDeviceJoined(handler func(DeviceJoinedEvent))
	OnDeviceLeft(handler func(DeviceLeftEvent))
	OnDeviceAnnounce(handler func(DeviceAnnounceEvent))
	OnAttributeReport(handler func(AttributeReportEvent))
	OnClusterCommand(handler func(ClusterCommandEvent))

	Close() error
}

// Config selects and parameterises a backend.
type Config struct {
	Type string `yaml:"type"`
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// Factory opens a backend.
type Factory func(cfg Config, logger *slog.Logger) (NCP, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Factory)
)

// Register makes a backend available under name. It panics on a duplicate
// name, like database/sql drivers.
func Register(name string, f Factory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if _, dup := backends[name]; dup {
		panic("ncp: Register called twice for backend " + name)
	}
	backends[name] = f
}

// Backends returns the registered backend names, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open opens the backend named by cfg.Type.
func Open(cfg Config, logger *slog.Logger) (NCP, error) {
	backendsMu.RLock()
	f, ok := backends[cfg.Type]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ncp: unknown backend %q (available: %v)", cfg.Type, Backends())
	}
	return f(cfg, logger.With("component", "ncp", "backend", cfg.Type))
}

// SimpleDescriptor describes an endpoint.
type SimpleDescriptor struct {
	Endpoint    uint8
	ProfileID   uint16
	DeviceID    uint16
	InClusters  []uint16
	OutClusters []uint16
}

// BindRequest is a ZDO bind request.
type BindRequest struct {
	TargetShortAddr uint16
	SrcIEEE         [8]byte
	SrcEP           uint8
	ClusterID       uint16
	DstIEEE         [8]byte
	DstEP           uint8
}

// FrameOptions qualify a ZCL request frame.
type FrameOptions struct {
	ManufacturerCode       uint16
	DisableDefaultResponse bool
}

// ReadAttributesRequest specifies which attributes to read.
type ReadAttributesRequest struct {
	DstAddr   uint16
	DstEP     uint8
	ClusterID uint16
	AttrIDs   []uint16
	FrameOptions
}

// AttributeResponse holds a single attribute read result.
type AttributeResponse struct {
	AttrID   uint16
	Status   uint8
	DataType uint8
	Value    []byte
}

// WriteAttributesRequest specifies attributes to write.
type WriteAttributesRequest struct {
	DstAddr   uint16
	DstEP     uint8
	ClusterID uint16
	Records   []WriteRecord
	FrameOptions
}

// WriteRecord is a single attribute write.
type WriteRecord struct {
	AttrID   uint16
	DataType uint8
	Value    []byte
}

// ClusterCommandRequest sends a cluster-specific command.
type ClusterCommandRequest struct {
	DstAddr   uint16
	DstEP     uint8
	ClusterID uint16
	CommandID uint8
	Payload   []byte
	FrameOptions
}

// ConfigureReportingRequest sets up attribute reporting.
type ConfigureReportingRequest struct {
	DstAddr   uint16
	DstEP     uint8
	ClusterID uint16
	Records   []ReportingRecord
	FrameOptions
}

// ReportingRecord is one attribute reporting configuration. ReportChange is
// the encoded reportable change and is empty for discrete types.
type ReportingRecord struct {
	AttrID       uint16
	DataType     uint8
	MinInterval  uint16
	MaxInterval  uint16
	ReportChange []byte
}

// DeviceJoinedEvent is emitted when a device joins the network.
type DeviceJoinedEvent struct {
	ShortAddr uint16
	IEEEAddr  [8]byte
}

// DeviceLeftEvent is emitted when a device leaves.
type DeviceLeftEvent struct {
	ShortAddr uint16
	IEEEAddr  [8]byte
}

// DeviceAnnounceEvent is emitted on device announce.
type DeviceAnnounceEvent struct {
	ShortAddr  uint16
	IEEEAddr   [8]byte
	Capability uint8
}

// AttributeRecord is one attribute of a report frame.
type AttributeRecord struct {
	AttrID   uint16
	DataType uint8
	Value    []byte
}

// AttributeReportEvent is emitted for unsolicited attribute reports. One
// frame may carry several attributes.
type AttributeReportEvent struct {
	SrcAddr          uint16
	SrcEP            uint8
	ClusterID        uint16
	ManufacturerCode uint16
	Sequence         uint8
	Records          []AttributeRecord
	LQI              uint8
	RSSI             int8
}

// ClusterCommandEvent is emitted for incoming cluster-specific commands.
// ServerToClient reports the ZCL frame direction bit: set for responses and
// notifications a cluster server sends, clear for commands a client device
// (a remote, a switch) sends.
type ClusterCommandEvent struct {
	SrcAddr          uint16
	SrcEP            uint8
	ClusterID        uint16
	ManufacturerCode uint16
	Sequence         uint8
	CommandID        uint8
	ServerToClient   bool
	Payload          []byte
	LQI              uint8
	RSSI             int8
}
