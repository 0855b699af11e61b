// Package web serves the JSON API and the WebSocket event stream.
package web

import (
	"log/slog"
	"net/http"
	"sync"

	"zigbee-capability/internal/coordinator"
	"zigbee-capability/internal/store"
)

// ServerOption configures the web server.
type ServerOption func(*Server)

// WithAPIKey enables API key authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithAllowedOrigins sets allowed WebSocket origin patterns.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithDevicesDir sets the definitions directory. Images under its img/
// subdirectory are served at /devices/img/.
func WithDevicesDir(dir string) ServerOption {
	return func(s *Server) {
		s.devicesDir = dir
	}
}

// WithVersion sets the application version string.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// Server is the HTTP server for the API.
type Server struct {
	coord          *coordinator.Coordinator
	wsHub          *WSHub
	logger         *slog.Logger
	mux            *http.ServeMux
	handler        http.Handler
	apiKey         string
	allowedOrigins []string
	devicesDir     string
	images         *imageIndex
	version        string
	wg             sync.WaitGroup
	unsubEvents    func()
}

// DeviceView is a device record enriched with its definition and state.
type DeviceView struct {
	*store.Device
	Supported   bool           `json:"supported"`
	Vendor      string         `json:"vendor,omitempty"`
	Description string         `json:"description,omitempty"`
	LQIQuality  string         `json:"lqi_quality,omitempty"` // "good", "fair", "poor"
	PhotoURL    string         `json:"photo_url,omitempty"`
	State       map[string]any `json:"state,omitempty"`
}

// NewServer creates a new web server. Every coordinator event is fanned
// out to WebSocket clients, each applying its own filter.
func NewServer(coord *coordinator.Coordinator, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	s := &Server{
		coord:  coord,
		logger: logger.With("component", "web"),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.images = newImageIndex(s.devicesDir)

	s.wsHub = NewWSHub(s.logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.wsHub.Run()
	}()
	s.unsubEvents = coord.Events().Subscribe(coordinator.Filter{}, s.wsHub.Broadcast)

	s.routes()
	s.handler = chain(s.mux, originCheck(s.allowedOrigins), apiKeyAuth(s.apiKey))
	return s, nil
}

// Stop gracefully shuts down the WebSocket hub and waits for goroutines.
func (s *Server) Stop() {
	if s.unsubEvents != nil {
		s.unsubEvents()
	}
	s.wsHub.Stop()
	s.wg.Wait()
}

func (s *Server) routes() {
	if s.images != nil {
		s.mux.Handle("GET /devices/img/", s.images.handler())
	}

	// Devices
	s.mux.HandleFunc("GET /api/devices", s.handleAPIListDevices)
	s.mux.HandleFunc("GET /api/devices/{ieee}", s.handleAPIGetDevice)
	s.mux.HandleFunc("PATCH /api/devices/{ieee}", s.handleAPIRenameDevice)
	s.mux.HandleFunc("DELETE /api/devices/{ieee}", s.handleAPIDeleteDevice)
	s.mux.HandleFunc("PUT /api/devices/{ieee}/options", s.handleAPIDeviceOptions)
	s.mux.HandleFunc("GET /api/devices/{ieee}/state", s.handleAPIDeviceState)
	s.mux.HandleFunc("POST /api/devices/{ieee}/set", s.handleAPISetState)
	s.mux.HandleFunc("POST /api/devices/{ieee}/get", s.handleAPIGetState)
	s.mux.HandleFunc("POST /api/devices/{ieee}/reconfigure", s.handleAPIReconfigure)

	// Definitions
	s.mux.HandleFunc("GET /api/definitions", s.handleAPIListDefinitions)
	s.mux.HandleFunc("GET /api/definitions/{model}", s.handleAPIGetDefinition)

	// Network
	s.mux.HandleFunc("POST /api/network/permit-join", s.handleAPIPermitJoin)
	s.mux.HandleFunc("GET /api/clusters", s.handleAPIListClusters)
	s.mux.HandleFunc("GET /api/version", s.handleAPIVersion)

	// WebSocket
	s.mux.HandleFunc("GET /ws", s.handleWS)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// enrichDevice creates a DeviceView from a store.Device.
func (s *Server) enrichDevice(dev *store.Device) DeviceView {
	v := DeviceView{Device: dev, LQIQuality: lqiQuality(dev.LQI)}

	if dev.Definition != "" {
		if def := s.coord.Definitions().ByModel(dev.Definition); def != nil {
			v.Supported = true
			v.Vendor = def.Vendor
			v.Description = def.Description
		}
		v.PhotoURL = s.images.URL(dev.Definition)
	}

	state, err := s.coord.Store().GetState(dev.IEEEAddress)
	if err != nil {
		s.logger.Debug("device state", "ieee", dev.IEEEAddress, "err", err)
	} else if len(state) > 0 {
		v.State = state
	}
	return v
}

// lqiQuality grades a link quality in thirds of its range; 0 is unknown.
func lqiQuality(lqi uint8) string {
	switch {
	case lqi == 0:
		return ""
	case lqi >= 171:
		return "good"
	case lqi >= 85:
		return "fair"
	default:
		return "poor"
	}
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}
