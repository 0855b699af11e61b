package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"zigbee-capability/internal/coordinator"
	"zigbee-capability/internal/definition"
	"zigbee-capability/internal/extend"
	"zigbee-capability/internal/ncp/ncptest"
	"zigbee-capability/internal/store"
	"zigbee-capability/internal/zcl"
	"zigbee-capability/internal/zcl/clusters"
)

const (
	plugIEEE  = "00158D00012A3B4C"
	plugShort = uint16(0x1234)
)

var plugAddr = [8]byte{0x00, 0x15, 0x8D, 0x00, 0x01, 0x2A, 0x3B, 0x4C}

type testEnv struct {
	srv   *Server
	coord *coordinator.Coordinator
	db    *store.BoltStore
	fake  *ncptest.Fake
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func plugDefinitions(t *testing.T, snap *zcl.Snapshot) *definition.DB {
	t.Helper()
	noPowerOn := false
	onOff, err := extend.OnOff(extend.OnOffConfig{PowerOnBehavior: &noPowerOn})
	if err != nil {
		t.Fatal(err)
	}
	def, err := definition.Assemble(definition.Spec{
		Identity: definition.Identity{
			Model:        "TP-1",
			Vendor:       "TestCo",
			Description:  "Smart plug",
			ZigbeeModels: []string{"test.plug"},
		},
		Bundles: []extend.Bundle{onOff},
	}, snap, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	db := definition.NewDB()
	if err := db.Add(def); err != nil {
		t.Fatal(err)
	}
	return db
}

func setupTestServer(t *testing.T, apiKey string) *testEnv {
	t.Helper()
	logger := testLogger()
	reg := zcl.NewRegistry()
	if err := clusters.RegisterAll(reg); err != nil {
		t.Fatal(err)
	}
	snap := reg.Freeze()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.NewBoltStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	fake := ncptest.New()
	events := coordinator.NewEventBus(logger)
	coord := coordinator.New(fake, db, snap, plugDefinitions(t, snap), events, coordinator.Config{
		CommissionTimeout: 5 * time.Second,
	}, logger)
	if err := coord.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(coord.Stop)

	var opts []ServerOption
	if apiKey != "" {
		opts = append(opts, WithAPIKey(apiKey))
	}
	srv, err := NewServer(coord, logger, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{srv: srv, coord: coord, db: db, fake: fake}
}

// pairPlug runs a plug through announce, interview and commissioning.
func (e *testEnv) pairPlug(t *testing.T) {
	t.Helper()
	e.fake.AddEndpoint(plugShort, 1, []uint16{0x0000, 0x0006}, nil)
	for _, a := range []struct {
		cluster, attr uint16
		typ           uint8
		value         any
	}{
		{0x0000, 0x0004, zcl.TypeCharStr, "TestCo"},
		{0x0000, 0x0005, zcl.TypeCharStr, "test.plug"},
		{0x0000, 0x0007, zcl.TypeEnum8, 1},
		{0x0006, 0x0000, zcl.TypeBool, true},
	} {
		if err := e.fake.SetAttribute(plugShort, 1, a.cluster, a.attr, a.typ, a.value); err != nil {
			t.Fatal(err)
		}
	}
	e.fake.Join(plugShort, plugAddr)
	e.fake.Announce(plugShort, plugAddr)
	e.coord.Devices().Wait()
}

func seedDevice(t *testing.T, db *store.BoltStore, ieee string, short uint16) {
	t.Helper()
	if err := db.SaveDevice(&store.Device{
		IEEEAddress:      ieee,
		ShortAddress:     short,
		ManufacturerName: "Other",
		ModelID:          "other.sensor",
		Interviewed:      true,
	}); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w
}

func TestAPIListDevices(t *testing.T) {
	env := setupTestServer(t, "")
	env.pairPlug(t)
	seedDevice(t, env.db, "00158D00012A3B4D", 0x1235)

	w := env.do(t, "GET", "/api/devices", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var devices []DeviceView
	if err := json.NewDecoder(w.Body).Decode(&devices); err != nil {
		t.Fatal(err)
	}
	if len(devices) != 2 {
		t.Fatalf("device count = %d, want 2", len(devices))
	}
	for _, d := range devices {
		switch d.IEEEAddress {
		case plugIEEE:
			if !d.Supported || d.Vendor != "TestCo" || d.Description != "Smart plug" {
				t.Errorf("plug view = %+v", d)
			}
			if d.State["state"] != "ON" {
				t.Errorf("plug state = %v", d.State)
			}
		default:
			if d.Supported {
				t.Errorf("unknown device reported as supported")
			}
		}
	}
}

func TestAPIGetDevice(t *testing.T) {
	env := setupTestServer(t, "")
	env.pairPlug(t)

	w := env.do(t, "GET", "/api/devices/0x00158d00012a3b4c", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var dev DeviceView
	if err := json.NewDecoder(w.Body).Decode(&dev); err != nil {
		t.Fatal(err)
	}
	if dev.IEEEAddress != plugIEEE {
		t.Errorf("ieee = %q", dev.IEEEAddress)
	}
	if dev.Definition != "TP-1" {
		t.Errorf("definition = %q, want TP-1", dev.Definition)
	}
}

func TestAPIGetDeviceNotFound(t *testing.T) {
	env := setupTestServer(t, "")

	w := env.do(t, "GET", "/api/devices/FFFFFFFFFFFFFFFF", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAPIDeleteDevice(t *testing.T) {
	env := setupTestServer(t, "")
	env.pairPlug(t)

	w := env.do(t, "DELETE", "/api/devices/"+plugIEEE, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	if _, err := env.db.GetDevice(plugIEEE); err == nil {
		t.Error("expected device to be deleted")
	}
	if n := len(env.fake.CallsOf("leave")); n != 1 {
		t.Errorf("leave requests = %d, want 1", n)
	}
}

func TestAPIDeviceState(t *testing.T) {
	env := setupTestServer(t, "")
	env.pairPlug(t)

	w := env.do(t, "GET", "/api/devices/"+plugIEEE+"/state", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var state map[string]any
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatal(err)
	}
	if state["state"] != "ON" {
		t.Errorf("state = %v, want ON", state["state"])
	}
}

func TestAPISetState(t *testing.T) {
	env := setupTestServer(t, "")
	env.pairPlug(t)
	env.fake.Reset()

	w := env.do(t, "POST", "/api/devices/"+plugIEEE+"/set", `{"state": "OFF"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}

	cmds := env.fake.CallsOf("command")
	if len(cmds) != 1 {
		t.Fatalf("commands = %d, want 1", len(cmds))
	}
	if cmds[0].ClusterID != 0x0006 || cmds[0].CommandID != 0x00 {
		t.Errorf("command = %s id %d, want genOnOff off", cmds[0], cmds[0].CommandID)
	}

	state, err := env.db.GetState(plugIEEE)
	if err != nil {
		t.Fatal(err)
	}
	if state["state"] != "OFF" {
		t.Errorf("stored state = %v, want OFF", state["state"])
	}
}

func TestAPISetStateErrors(t *testing.T) {
	env := setupTestServer(t, "")
	env.pairPlug(t)
	seedDevice(t, env.db, "00158D00012A3B4D", 0x1235)

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown key", "/api/devices/" + plugIEEE + "/set", `{"color": "red"}`, http.StatusBadRequest},
		{"invalid value", "/api/devices/" + plugIEEE + "/set", `{"state": "BLUE"}`, http.StatusBadRequest},
		{"empty body", "/api/devices/" + plugIEEE + "/set", `{}`, http.StatusBadRequest},
		{"not json", "/api/devices/" + plugIEEE + "/set", `state=ON`, http.StatusBadRequest},
		{"unsupported device", "/api/devices/00158D00012A3B4D/set", `{"state": "ON"}`, http.StatusConflict},
		{"unknown device", "/api/devices/FFFFFFFFFFFFFFFF/set", `{"state": "ON"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAPISetStateTransportError(t *testing.T) {
	env := setupTestServer(t, "")
	env.pairPlug(t)
	env.fake.Fail("command", 0x0006, errors.New("no ack"))

	w := env.do(t, "POST", "/api/devices/"+plugIEEE+"/set", `{"state": "OFF"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusBadGateway, w.Body.String())
	}
}

func TestAPIGetStateIssuesRead(t *testing.T) {
	env := setupTestServer(t, "")
	env.pairPlug(t)
	env.fake.Reset()

	w := env.do(t, "POST", "/api/devices/"+plugIEEE+"/get", `{"state": ""}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusAccepted, w.Body.String())
	}
	reads := env.fake.CallsOf("read")
	if len(reads) != 1 || reads[0].ClusterID != 0x0006 {
		t.Errorf("reads = %v, want one genOnOff read", reads)
	}
}

func TestAPIReconfigure(t *testing.T) {
	env := setupTestServer(t, "")
	env.pairPlug(t)

	w := env.do(t, "POST", "/api/devices/"+plugIEEE+"/reconfigure", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp commissionView
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Complete || resp.Failed != 0 || len(resp.Steps) == 0 {
		t.Errorf("result = %+v, want complete", resp)
	}
}

func TestAPIReconfigurePartialFailure(t *testing.T) {
	env := setupTestServer(t, "")
	env.pairPlug(t)
	env.fake.Fail("bind", 0x0006, errors.New("no ack"))

	w := env.do(t, "POST", "/api/devices/"+plugIEEE+"/reconfigure", "")
	if w.Code != http.StatusMultiStatus {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusMultiStatus, w.Body.String())
	}
	var resp commissionView
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Complete || resp.Failed != 1 || resp.Skipped != 1 {
		t.Errorf("result = %+v, want 1 failed 1 skipped", resp)
	}
	for _, s := range resp.Steps {
		if s.Status == "failed" && s.Error == "" {
			t.Errorf("failed step %q has no error", s.Step)
		}
	}
}

func TestAPIDefinitions(t *testing.T) {
	env := setupTestServer(t, "")

	w := env.do(t, "GET", "/api/definitions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var defs []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&defs); err != nil {
		t.Fatal(err)
	}
	if len(defs) != 1 || defs[0]["model"] != "TP-1" {
		t.Fatalf("definitions = %v", defs)
	}

	w = env.do(t, "GET", "/api/definitions/TP-1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var def struct {
		Exposes []struct {
			Type string `json:"type"`
		} `json:"exposes"`
	}
	if err := json.NewDecoder(w.Body).Decode(&def); err != nil {
		t.Fatal(err)
	}
	if len(def.Exposes) == 0 || def.Exposes[0].Type != "switch" {
		t.Errorf("exposes = %+v, want a switch first", def.Exposes)
	}

	w = env.do(t, "GET", "/api/definitions/NOPE", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown model: status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAPIPermitJoin(t *testing.T) {
	env := setupTestServer(t, "")

	w := env.do(t, "POST", "/api/network/permit-join", `{"duration": 60}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["duration"] != "60" {
		t.Errorf("duration = %q, want 60", resp["duration"])
	}
}

func TestAPIListClusters(t *testing.T) {
	env := setupTestServer(t, "")

	w := env.do(t, "GET", "/api/clusters", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var names []string
	if err := json.NewDecoder(w.Body).Decode(&names); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, n := range names {
		if n == "genOnOff" {
			found = true
		}
	}
	if !found {
		t.Error("genOnOff missing from cluster list")
	}
}

func TestAuthMiddlewareHeader(t *testing.T) {
	env := setupTestServer(t, "secret-key")

	req := httptest.NewRequest("GET", "/api/devices", nil)
	req.Header.Set("X-API-Key", "secret-key")
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("correct header key: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAuthMiddlewareQueryParam(t *testing.T) {
	env := setupTestServer(t, "secret-key")

	w := env.do(t, "GET", "/api/devices?api_key=secret-key", "")
	if w.Code != http.StatusOK {
		t.Errorf("correct query key: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAuthMiddlewareMissing(t *testing.T) {
	env := setupTestServer(t, "secret-key")

	w := env.do(t, "GET", "/api/devices", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing key: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddlewareWrongKey(t *testing.T) {
	env := setupTestServer(t, "secret-key")

	req := httptest.NewRequest("GET", "/api/devices", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAPIRenameDevice(t *testing.T) {
	env := setupTestServer(t, "")
	env.pairPlug(t)

	w := env.do(t, "PATCH", "/api/devices/"+plugIEEE, `{"friendly_name": "Kitchen Plug"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}

	dev, err := env.db.GetDevice(plugIEEE)
	if err != nil {
		t.Fatal(err)
	}
	if dev.FriendlyName != "Kitchen Plug" {
		t.Errorf("stored friendly_name = %q, want Kitchen Plug", dev.FriendlyName)
	}

	// The friendly name now resolves in paths.
	w = env.do(t, "GET", "/api/devices/Kitchen%20Plug/state", "")
	if w.Code != http.StatusOK {
		t.Errorf("by name: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAPIRenameDeviceConflict(t *testing.T) {
	env := setupTestServer(t, "")
	env.pairPlug(t)
	seedDevice(t, env.db, "00158D00012A3B4D", 0x1235)

	if w := env.do(t, "PATCH", "/api/devices/"+plugIEEE, `{"friendly_name": "Desk"}`); w.Code != http.StatusOK {
		t.Fatalf("first rename: status = %d", w.Code)
	}
	w := env.do(t, "PATCH", "/api/devices/00158D00012A3B4D", `{"friendly_name": "Desk"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestAPIRenameDeviceNotFound(t *testing.T) {
	env := setupTestServer(t, "")

	w := env.do(t, "PATCH", "/api/devices/FFFFFFFFFFFFFFFF", `{"friendly_name": "Test"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAPIDeviceOptions(t *testing.T) {
	env := setupTestServer(t, "")
	env.pairPlug(t)

	w := env.do(t, "PUT", "/api/devices/"+plugIEEE+"/options", `{"power_calibration": 5, "power_precision": 1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	w = env.do(t, "PUT", "/api/devices/"+plugIEEE+"/options", `{"power_precision": null}`)
	if w.Code != http.StatusOK {
		t.Fatalf("clear: status = %d", w.Code)
	}

	dev, err := env.db.GetDevice(plugIEEE)
	if err != nil {
		t.Fatal(err)
	}
	if len(dev.Options) != 1 || dev.Options["power_calibration"] != 5.0 {
		t.Errorf("stored options = %v, want only power_calibration=5", dev.Options)
	}

	if w := env.do(t, "PUT", "/api/devices/FFFFFFFFFFFFFFFF/options", `{}`); w.Code != http.StatusNotFound {
		t.Errorf("unknown device: status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if w := env.do(t, "PUT", "/api/devices/"+plugIEEE+"/options", `[1]`); w.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", store.ErrNotFound, http.StatusNotFound},
		{"unsupported", coordinator.ErrUnsupported, http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorStatus(tt.err); got != tt.want {
				t.Errorf("errorStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
