package ncp

import (
	"context"
	"errors"
	"log/slog"
)

// ErrOffline is returned for every network request of the offline backend.
var ErrOffline = errors.New("ncp: offline backend has no radio")

// OfflineBackend is the name of the built-in backend without a radio. It
// serves stored devices and definitions; every request fails with
// ErrOffline and no indications are ever raised.
const OfflineBackend = "offline"

func init() {
	Register(OfflineBackend, func(_ Config, logger *slog.Logger) (NCP, error) {
		logger.Warn("no radio attached, network requests will fail")
		return offline{}, nil
	})
}

type offline struct{}

func (offline) Start(ctx context.Context) error { return ctx.Err() }

func (offline) PermitJoin(context.Context, uint8) error { return ErrOffline }

func (offline) GetLocalIEEE(ctx context.Context) ([8]byte, error) { return [8]byte{}, ctx.Err() }

func (offline) ActiveEndpoints(context.Context, uint16) ([]uint8, error) { return nil, ErrOffline }

func (offline) SimpleDescriptor(context.Context, uint16, uint8) (*SimpleDescriptor, error) {
	return nil, ErrOffline
}

func (offline) Bind(context.Context, BindRequest) error           { return ErrOffline }
func (offline) MgmtLeave(context.Context, uint16, [8]byte) error { return ErrOffline }

func (offline) ReadAttributes(context.Context, ReadAttributesRequest) ([]AttributeResponse, error) {
	return nil, ErrOffline
}

func (offline) WriteAttributes(context.Context, WriteAttributesRequest) error       { return ErrOffline }
func (offline) SendCommand(context.Context, ClusterCommandRequest) error            { return ErrOffline }
func (offline) ConfigureReporting(context.Context, ConfigureReportingRequest) error { return ErrOffline }

func (offline) OnDeviceJoined(func(DeviceJoinedEvent))       {}
func (offline) OnDeviceLeft(func(DeviceLeftEvent))           {}
func (offline) OnDeviceAnnounce(func(DeviceAnnounceEvent))   {}
func (offline) OnAttributeReport(func(AttributeReportEvent)) {}
func (offline) OnClusterCommand(func(ClusterCommandEvent))   {}

func (offline) Close() error { return nil }
