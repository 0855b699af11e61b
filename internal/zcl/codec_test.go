package zcl

import (
	"bytes"
	"errors"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	tests := []struct {
		typ  uint8
		in   any
		want any
		wire []byte
	}{
		{TypeBool, true, true, []byte{0x01}},
		{TypeUint8, 200, uint64(200), []byte{0xC8}},
		{TypeUint16, 0x1234, uint64(0x1234), []byte{0x34, 0x12}},
		{TypeUint24, 0x010203, uint64(0x010203), []byte{0x03, 0x02, 0x01}},
		{TypeUint48, uint64(0x0102030405), uint64(0x0102030405), []byte{0x05, 0x04, 0x03, 0x02, 0x01, 0x00}},
		{TypeInt8, -5, int64(-5), []byte{0xFB}},
		{TypeInt16, -2000, int64(-2000), []byte{0x30, 0xF8}},
		{TypeInt24, -1, int64(-1), []byte{0xFF, 0xFF, 0xFF}},
		{TypeEnum8, 255, uint64(255), []byte{0xFF}},
		{TypeBitmap16, 0x0009, uint64(9), []byte{0x09, 0x00}},
		{TypeUint64, uint64(1) << 63, uint64(1) << 63, []byte{0, 0, 0, 0, 0, 0, 0, 0x80}},
		{TypeInt48, -2, int64(-2), []byte{0xFE, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{TypeInt64, int64(-1) << 62, int64(-1) << 62, []byte{0, 0, 0, 0, 0, 0, 0, 0xC0}},
		{TypeFloat32, 21.5, 21.5, []byte{0x00, 0x00, 0xAC, 0x41}},
		{TypeFloat64, 0.5, 0.5, []byte{0, 0, 0, 0, 0, 0, 0xE0, 0x3F}},
		{TypeCharStr, "lumi", "lumi", []byte{0x04, 'l', 'u', 'm', 'i'}},
	}
	for _, tt := range tests {
		t.Run(TypeName(tt.typ), func(t *testing.T) {
			wire, err := EncodeValue(tt.typ, tt.in)
			if err != nil {
				t.Fatalf("EncodeValue: %v", err)
			}
			if !bytes.Equal(wire, tt.wire) {
				t.Errorf("wire = % X, want % X", wire, tt.wire)
			}
			got, n, err := DecodeValue(tt.typ, wire)
			if err != nil {
				t.Fatalf("DecodeValue: %v", err)
			}
			if n != len(wire) {
				t.Errorf("consumed = %d, want %d", n, len(wire))
			}
			if got != tt.want {
				t.Errorf("decoded = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestEncodeOverflow(t *testing.T) {
	tests := []struct {
		typ uint8
		val any
	}{
		{TypeUint8, 256},
		{TypeUint8, -1},
		{TypeInt8, 128},
		{TypeInt24, 8388608},
		{TypeUint24, 0x1000000},
		{TypeUint16, 1.5},
	}
	for _, tt := range tests {
		_, err := EncodeValue(tt.typ, tt.val)
		var ve *ValueError
		if !errors.As(err, &ve) {
			t.Errorf("EncodeValue(%s, %v): err = %v, want *ValueError", TypeName(tt.typ), tt.val, err)
			continue
		}
		if ve.Type != TypeName(tt.typ) {
			t.Errorf("ValueError.Type = %q, want %q", ve.Type, TypeName(tt.typ))
		}
	}
}

func TestDecodeNotEnoughData(t *testing.T) {
	if _, _, err := DecodeValue(TypeUint16, []byte{0x01}); err == nil {
		t.Error("expected error for short uint16")
	}
	if _, _, err := DecodeValue(TypeCharStr, []byte{0x05, 'a'}); err == nil {
		t.Error("expected error for truncated string")
	}
}

func TestDecodeInvalidString(t *testing.T) {
	v, n, err := DecodeValue(TypeCharStr, []byte{0xFF})
	if err != nil {
		t.Fatal(err)
	}
	if v != nil || n != 1 {
		t.Errorf("got (%v, %d), want (nil, 1)", v, n)
	}
}

func TestUnsupportedType(t *testing.T) {
	_, err := EncodeValue(0x99, 1)
	if err == nil {
		t.Error("expected error for unsupported type")
	}
	var ve *ValueError
	if errors.As(err, &ve) {
		t.Error("unsupported type is not a value error")
	}
	if TypeName(0x99) != "0x99" {
		t.Errorf("TypeName = %q", TypeName(0x99))
	}
}

func TestIsAnalog(t *testing.T) {
	for _, typ := range []uint8{TypeUint8, TypeUint48, TypeInt16, TypeInt64, TypeFloat32} {
		if !IsAnalog(typ) {
			t.Errorf("IsAnalog(%s) = false", TypeName(typ))
		}
	}
	for _, typ := range []uint8{TypeBool, TypeBitmap8, TypeEnum8, TypeCharStr} {
		if IsAnalog(typ) {
			t.Errorf("IsAnalog(%s) = true", TypeName(typ))
		}
	}
}
