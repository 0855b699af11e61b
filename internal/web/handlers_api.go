package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"zigbee-capability/internal/commission"
	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/coordinator"
	"zigbee-capability/internal/definition"
	"zigbee-capability/internal/exposes"
	"zigbee-capability/internal/store"
)

func (s *Server) handleAPIListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.coord.Devices().ListDevices()
	if err != nil {
		s.logger.Error("list devices", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	views := make([]DeviceView, 0, len(devices))
	for _, dev := range devices {
		views = append(views, s.enrichDevice(dev))
	}
	s.writeJSON(w, http.StatusOK, views)
}

// resolveDevice looks up the {ieee} path value, which may also be a
// friendly name. It writes the error response and returns nil on failure.
func (s *Server) resolveDevice(w http.ResponseWriter, r *http.Request) *store.Device {
	dev, err := s.coord.Devices().Resolve(r.PathValue("ieee"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
		} else {
			s.logger.Error("resolve device", "err", err, "id", r.PathValue("ieee"))
			s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return nil
	}
	return dev
}

func (s *Server) handleAPIGetDevice(w http.ResponseWriter, r *http.Request) {
	dev := s.resolveDevice(w, r)
	if dev == nil {
		return
	}
	s.writeJSON(w, http.StatusOK, s.enrichDevice(dev))
}

type renameDeviceRequest struct {
	FriendlyName string `json:"friendly_name"`
}

func (s *Server) handleAPIRenameDevice(w http.ResponseWriter, r *http.Request) {
	dev := s.resolveDevice(w, r)
	if dev == nil {
		return
	}

	var req renameDeviceRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := s.coord.Devices().Rename(dev.IEEEAddress, req.FriendlyName); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not found"})
			return
		}
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "friendly_name": req.FriendlyName})
}

func (s *Server) handleAPIDeviceOptions(w http.ResponseWriter, r *http.Request) {
	dev := s.resolveDevice(w, r)
	if dev == nil {
		return
	}
	var req map[string]any
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	opts, err := s.coord.Devices().SetOptions(dev.IEEEAddress, req)
	if err != nil {
		s.writeError(w, "set options", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"options": opts})
}

func (s *Server) handleAPIDeleteDevice(w http.ResponseWriter, r *http.Request) {
	dev := s.resolveDevice(w, r)
	if dev == nil {
		return
	}
	if err := s.coord.Devices().RemoveDevice(dev.IEEEAddress); err != nil {
		s.logger.Error("delete device", "err", err, "ieee", dev.IEEEAddress)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIDeviceState(w http.ResponseWriter, r *http.Request) {
	dev := s.resolveDevice(w, r)
	if dev == nil {
		return
	}
	state, err := s.coord.Devices().State(dev.IEEEAddress)
	if err != nil {
		s.writeError(w, "device state", err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

// decodeValues reads a JSON object of state keys. Numbers are kept as
// json.Number so integer values survive unchanged.
func decodeValues(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errors.New("no keys")
	}
	for k, v := range values {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				values[k] = i
			} else if f, err := n.Float64(); err == nil {
				values[k] = f
			}
		}
	}
	return values, nil
}

func (s *Server) handleAPISetState(w http.ResponseWriter, r *http.Request) {
	dev := s.resolveDevice(w, r)
	if dev == nil {
		return
	}
	values, err := decodeValues(w, r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	patch, err := s.coord.Devices().SetState(r.Context(), dev.IEEEAddress, values)
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("set state", "err", err, "ieee", dev.IEEEAddress)
		}
		s.writeJSON(w, status, map[string]any{"error": err.Error(), "state": patch})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "state": patch})
}

func (s *Server) handleAPIGetState(w http.ResponseWriter, r *http.Request) {
	dev := s.resolveDevice(w, r)
	if dev == nil {
		return
	}
	values, err := decodeValues(w, r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		if err := s.coord.Devices().Get(r.Context(), dev.IEEEAddress, k); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.writeError(w, "get state", err)
		return
	}
	// Values arrive asynchronously as state updates.
	s.writeJSON(w, http.StatusAccepted, map[string]any{"status": "ok", "keys": keys})
}

type stepView struct {
	Step     string `json:"step"`
	Endpoint uint8  `json:"endpoint,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

type commissionView struct {
	Complete  bool       `json:"complete"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Skipped   int        `json:"skipped"`
	Steps     []stepView `json:"steps"`
}

func newCommissionView(res *commission.Result) commissionView {
	v := commissionView{
		Succeeded: res.Count(commission.StatusSucceeded),
		Failed:    res.Count(commission.StatusFailed),
		Skipped:   res.Count(commission.StatusSkipped),
		Steps:     make([]stepView, 0, len(res.Steps)),
	}
	v.Complete = v.Failed == 0 && v.Skipped == 0
	for _, sr := range res.Steps {
		sv := stepView{Step: sr.Step.String(), Endpoint: sr.Endpoint, Status: string(sr.Status)}
		if sr.Err != nil {
			sv.Error = sr.Err.Error()
		}
		v.Steps = append(v.Steps, sv)
	}
	return v
}

func (s *Server) handleAPIReconfigure(w http.ResponseWriter, r *http.Request) {
	dev := s.resolveDevice(w, r)
	if dev == nil {
		return
	}
	res, err := s.coord.Devices().Reconfigure(r.Context(), dev.IEEEAddress)
	if res == nil {
		s.writeError(w, "reconfigure", err)
		return
	}
	status := http.StatusOK
	var pf *commission.PartialFailureError
	if errors.As(err, &pf) {
		status = http.StatusMultiStatus
	}
	s.writeJSON(w, status, newCommissionView(res))
}

type definitionView struct {
	definition.Identity
	OTA       bool              `json:"ota,omitempty"`
	Generated bool              `json:"generated,omitempty"`
	Exposes   []*exposes.Expose `json:"exposes"`
	Warnings  []string          `json:"warnings,omitempty"`
}

func newDefinitionView(def *definition.Definition) definitionView {
	return definitionView{
		Identity:  def.Identity,
		OTA:       def.OTA,
		Generated: def.Generated,
		Exposes:   def.Exposes,
		Warnings:  def.Warnings,
	}
}

func (s *Server) handleAPIListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs := s.coord.Definitions().All()
	views := make([]definitionView, 0, len(defs))
	for _, def := range defs {
		views = append(views, newDefinitionView(def))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIGetDefinition(w http.ResponseWriter, r *http.Request) {
	def := s.coord.Definitions().ByModel(r.PathValue("model"))
	if def == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "definition not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, newDefinitionView(def))
}

type permitJoinRequest struct {
	Duration uint8 `json:"duration"`
}

func (s *Server) handleAPIPermitJoin(w http.ResponseWriter, r *http.Request) {
	var req permitJoinRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := s.coord.PermitJoin(r.Context(), req.Duration); err != nil {
		s.logger.Error("permit join", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"duration": fmt.Sprintf("%d", req.Duration),
	})
}

func (s *Server) handleAPIListClusters(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.coord.Snapshot().Names())
}

// errorStatus maps capability errors to HTTP status codes.
func errorStatus(err error) int {
	var domain *converter.ValueDomainError
	var transport *converter.TransportError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, coordinator.ErrUnsupported):
		return http.StatusConflict
	case errors.Is(err, converter.ErrUnsupportedKey),
		errors.Is(err, converter.ErrReadOnly),
		errors.Is(err, converter.ErrNoGet),
		errors.Is(err, converter.ErrUnknownEndpoint),
		errors.As(err, &domain):
		return http.StatusBadRequest
	case errors.As(err, &transport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err with its mapped status. Internal errors are logged
// and not exposed.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(op, "err", err)
		s.writeJSON(w, status, map[string]string{"error": "internal server error"})
		return
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
