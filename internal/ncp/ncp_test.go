package ncp

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
)

func TestParseReadResponse(t *testing.T) {
	data := []byte{
		0x05, 0x00, 0x00, 0x42, 0x04, 'l', 'u', 'm', 'i', // modelId "lumi"
		0x07, 0x00, 0x86, // powerSource: unsupported attribute
		0x00, 0x00, 0x00, 0x20, 0x03, // zclVersion uint8 3
	}
	got, err := ParseReadResponse(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("records = %d, want 3", len(got))
	}
	if got[0].AttrID != 0x0005 || got[0].DataType != 0x42 || !bytes.Equal(got[0].Value, []byte{0x04, 'l', 'u', 'm', 'i'}) {
		t.Errorf("record 0 = %+v", got[0])
	}
	if got[1].Status != 0x86 || got[1].Value != nil {
		t.Errorf("record 1 = %+v", got[1])
	}
	if got[2].AttrID != 0 || !bytes.Equal(got[2].Value, []byte{0x03}) {
		t.Errorf("record 2 = %+v", got[2])
	}
}

func TestParseReadResponseTruncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short header", []byte{0x05, 0x00}},
		{"missing type", []byte{0x05, 0x00, 0x00}},
		{"short value", []byte{0x00, 0x00, 0x00, 0x21, 0x01}},
		{"short string", []byte{0x05, 0x00, 0x00, 0x42, 0x04, 'l'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseReadResponse(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseReport(t *testing.T) {
	data := []byte{
		0x00, 0x00, 0x29, 0x34, 0x08, // measuredValue int16 2100
		0x01, 0xFF, 0x42, 0x02, 0x01, 0x21, // 0xFF01 string
	}
	got, err := ParseReport(data)
	if err != nil {
		t.Fatal(err)
	}
	want := []AttributeRecord{
		{AttrID: 0x0000, DataType: 0x29, Value: []byte{0x34, 0x08}},
		{AttrID: 0xFF01, DataType: 0x42, Value: []byte{0x02, 0x01, 0x21}},
	}
	if len(got) != len(want) {
		t.Fatalf("records = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].AttrID != want[i].AttrID || got[i].DataType != want[i].DataType || !bytes.Equal(got[i].Value, want[i].Value) {
			t.Errorf("record %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if _, err := ParseReport([]byte{0x00, 0x00, 0x99, 0x01}); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestBackendRegistry(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	var opened Config
	Register("test-backend", func(cfg Config, _ *slog.Logger) (NCP, error) {
		opened = cfg
		return nil, nil
	})

	if _, err := Open(Config{Type: "test-backend", Port: "/dev/null"}, logger); err != nil {
		t.Fatal(err)
	}
	if opened.Port != "/dev/null" {
		t.Errorf("factory got %+v", opened)
	}
	if _, err := Open(Config{Type: "missing"}, logger); err == nil {
		t.Error("expected error for unknown backend")
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("duplicate Register did not panic")
			}
		}()
		Register("test-backend", nil)
	}()
}

func TestOfflineBackend(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	backend, err := Open(Config{Type: OfflineBackend}, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()

	ctx := context.Background()
	if err := backend.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := backend.PermitJoin(ctx, 60); !errors.Is(err, ErrOffline) {
		t.Errorf("PermitJoin err = %v, want ErrOffline", err)
	}
	if _, err := backend.ReadAttributes(ctx, ReadAttributesRequest{DstAddr: 0x1234}); !errors.Is(err, ErrOffline) {
		t.Errorf("ReadAttributes err = %v, want ErrOffline", err)
	}
}
