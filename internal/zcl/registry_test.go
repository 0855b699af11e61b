package zcl

import (
	"errors"
	"sync"
	"testing"
)

func onOffDef() ClusterDef {
	return ClusterDef{
		ID:   0x0006,
		Name: "genOnOff",
		Attributes: []AttributeDef{
			{ID: 0x0000, Name: "onOff", Type: TypeBool, Access: AccessRead | AccessReport},
			{ID: 0x4003, Name: "startUpOnOff", Type: TypeEnum8, Access: AccessRead | AccessWrite},
		},
		Commands: []CommandDef{
			{ID: 0x00, Name: "off", Direction: DirectionToServer},
			{ID: 0x01, Name: "on", Direction: DirectionToServer},
		},
	}
}

func TestRegisterIdempotent(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(onOffDef()); err != nil {
		t.Fatal(err)
	}
	// Same layout, different member order.
	again := onOffDef()
	again.Attributes[0], again.Attributes[1] = again.Attributes[1], again.Attributes[0]
	if err := r.Register(again); err != nil {
		t.Fatalf("identical re-register: %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestRegisterConflict(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(onOffDef()); err != nil {
		t.Fatal(err)
	}
	bad := onOffDef()
	bad.Attributes[1].Type = TypeUint8
	err := r.Register(bad)
	var dup *DuplicateClusterError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want DuplicateClusterError", err)
	}
	if dup.Name != "genOnOff" {
		t.Errorf("Name = %q", dup.Name)
	}
}

func TestRegisterDuplicateMemberName(t *testing.T) {
	def := onOffDef()
	def.Attributes = append(def.Attributes, AttributeDef{ID: 0x9999, Name: "onOff", Type: TypeBool})
	var dup *DuplicateClusterError
	if err := NewRegistry().Register(def); !errors.As(err, &dup) {
		t.Fatalf("err = %v, want DuplicateClusterError", err)
	}
}

func TestVendorVariant(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(onOffDef()); err != nil {
		t.Fatal(err)
	}
	vendor := ClusterDef{
		ID:               0x0006,
		Name:             "genOnOff",
		ManufacturerCode: 0x115F,
		Attributes: []AttributeDef{
			{ID: 0x00F0, Name: "lumiOperationMode", Type: TypeUint8, Access: AccessRead | AccessWrite},
		},
	}
	if err := r.Register(vendor); err != nil {
		t.Fatalf("vendor variant: %v", err)
	}
	s := r.Freeze()

	ref, err := s.ResolveAttribute("genOnOff", "onOff")
	if err != nil {
		t.Fatal(err)
	}
	if ref.ManufacturerCode() != NoManufacturer {
		t.Errorf("base attr mfr = 0x%04X", ref.ManufacturerCode())
	}
	ref, err = s.ResolveAttribute("genOnOff", "lumiOperationMode")
	if err != nil {
		t.Fatal(err)
	}
	if ref.ManufacturerCode() != 0x115F || ref.Attribute.ID != 0x00F0 {
		t.Errorf("vendor attr = %+v mfr 0x%04X", ref.Attribute, ref.ManufacturerCode())
	}
	if c := s.ClusterByID(0x0006, 0x1234); c == nil || c.ManufacturerCode != NoManufacturer {
		t.Error("ClusterByID should fall back to the standard definition")
	}
}

func TestFreezeRejectsRegister(t *testing.T) {
	r := NewRegistry()
	r.Freeze()
	if err := r.Register(onOffDef()); !errors.Is(err, ErrRegistryFrozen) {
		t.Errorf("err = %v, want ErrRegistryFrozen", err)
	}
}

func TestResolveUnknown(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(onOffDef())
	s := r.Freeze()

	tests := []struct {
		cluster, member, kind string
		command               bool
	}{
		{"genFoo", "onOff", "cluster", false},
		{"genOnOff", "brightness", "attribute", false},
		{"genOnOff", "blink", "command", true},
	}
	for _, tt := range tests {
		var err error
		if tt.command {
			_, err = s.ResolveCommand(tt.cluster, tt.member)
		} else {
			_, err = s.ResolveAttribute(tt.cluster, tt.member)
		}
		var unk *UnknownClusterMemberError
		if !errors.As(err, &unk) {
			t.Errorf("%s.%s: err = %v, want UnknownClusterMemberError", tt.cluster, tt.member, err)
			continue
		}
		if unk.Kind != tt.kind {
			t.Errorf("%s.%s: Kind = %q, want %q", tt.cluster, tt.member, unk.Kind, tt.kind)
		}
	}
}

func TestSnapshotConcurrentReads(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(onOffDef())
	s := r.Freeze()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := s.ResolveCommand("genOnOff", "on"); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestLookupByID(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(onOffDef())
	_ = r.Register(ClusterDef{
		ID: 0x0006, Name: "genOnOff", ManufacturerCode: 0x115F,
		Attributes: []AttributeDef{{ID: 0x00F0, Name: "lumiMode", Type: TypeUint8, Access: AccessRead}},
	})
	_ = r.Register(ClusterDef{
		ID: 0xFCC0, Name: "manuSpecificLumi", ManufacturerCode: 0x115F,
		Attributes: []AttributeDef{{ID: 0x0009, Name: "mode", Type: TypeUint8, Access: AccessRead}},
	})
	s := r.Freeze()

	tests := []struct {
		cluster, mfr, attr uint16
		want               string
		ok                 bool
	}{
		{0x0006, 0, 0x0000, "onOff", true},
		{0x0006, 0x115F, 0x0000, "onOff", true},
		// Vendor attribute reported without a manufacturer code.
		{0x0006, 0, 0x00F0, "lumiMode", true},
		// Vendor-only cluster reported without a manufacturer code.
		{0xFCC0, 0, 0x0009, "mode", true},
		{0x0006, 0, 0x1234, "", false},
		{0x0300, 0, 0x0000, "", false},
	}
	for _, tt := range tests {
		ref, ok := s.AttributeByID(tt.cluster, tt.mfr, tt.attr)
		if ok != tt.ok {
			t.Errorf("AttributeByID(0x%04X, 0x%04X, 0x%04X) ok = %v, want %v", tt.cluster, tt.mfr, tt.attr, ok, tt.ok)
			continue
		}
		if ok && ref.Attribute.Name != tt.want {
			t.Errorf("AttributeByID(0x%04X, 0x%04X, 0x%04X) = %s, want %s", tt.cluster, tt.mfr, tt.attr, ref.Attribute.Name, tt.want)
		}
	}

	if ref, ok := s.CommandByID(0x0006, 0, 0x01, DirectionToServer); !ok || ref.Command.Name != "on" {
		t.Errorf("CommandByID on = %+v, %v", ref.Command, ok)
	}
	if _, ok := s.CommandByID(0x0006, 0, 0x01, DirectionToClient); ok {
		t.Error("CommandByID matched wrong direction")
	}
	if got := s.ClusterName(0xFCC0, 0); got != "manuSpecificLumi" {
		t.Errorf("ClusterName = %q", got)
	}
	if got := s.ClusterName(0xABCD, 0); got != "0xABCD" {
		t.Errorf("ClusterName unknown = %q", got)
	}
}
