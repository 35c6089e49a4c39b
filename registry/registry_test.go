package registry

import (
	"testing"

	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/dictionary"
	"github.com/edsworks/eds-runtime/errors"
)

// buildTelemetry assembles a small flight-style dictionary: a header
// container, an axis-indexed voltage array, a packet with a crc trailer,
// and a command packet derived from it.
//
// Format indices in declaration order:
//
//	1 u8   2 u16   3 i16   4 axis   5 volts   6 Header
//	7 frames   8 Packet   9 CmdPacket
func buildTelemetry(t *testing.T, mission, app uint16) *dictionary.AppDictionary {
	t.Helper()
	b := dictionary.NewBuilder("telemetry", mission, app)

	u8, err := b.AddUnsignedInt("u8", 8, dictionary.ByteOrderBig)
	if err != nil {
		t.Fatalf("AddUnsignedInt: %v", err)
	}
	u16, err := b.AddUnsignedInt("u16", 16, dictionary.ByteOrderBig)
	if err != nil {
		t.Fatalf("AddUnsignedInt: %v", err)
	}
	i16, err := b.AddSignedInt("i16", 16, dictionary.ByteOrderLittle)
	if err != nil {
		t.Fatalf("AddSignedInt: %v", err)
	}
	axis, err := b.AddUnsignedInt("axis", 8, dictionary.ByteOrderBig)
	if err != nil {
		t.Fatalf("AddUnsignedInt: %v", err)
	}
	if err := b.AddEnumLabels(axis, []dictionary.EnumLabel{{Name: "X", Value: 0}, {Name: "Y", Value: 1}, {Name: "Z", Value: 2}}); err != nil {
		t.Fatalf("AddEnumLabels: %v", err)
	}
	volts, err := b.AddIndexedArray("volts_t", u16, axis, 3)
	if err != nil {
		t.Fatalf("AddIndexedArray: %v", err)
	}
	hdr, err := b.Container("Header").
		Member("sync", u16).
		Member("fc", u8).
		Padding(8).
		Build()
	if err != nil {
		t.Fatalf("build Header: %v", err)
	}
	if _, err := b.AddArray("frames", hdr, 2); err != nil {
		t.Fatalf("AddArray: %v", err)
	}
	packet, err := b.Container("Packet").
		Member("hdr", hdr).
		Member("volts", volts).
		Member("temp", i16).
		Trailer().
		ErrorControl("crc", u16, dictionary.ErrCtlCRC16CCITT).
		Build()
	if err != nil {
		t.Fatalf("build Packet: %v", err)
	}
	if _, err := b.Derive("CmdPacket", packet).
		Member("arg", u16).
		Constrain("hdr.fc", 1).
		Build(); err != nil {
		t.Fatalf("build CmdPacket: %v", err)
	}
	d, err := b.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return d
}

func mountTelemetry(t *testing.T, app uint16) (*Registry, *dictionary.AppDictionary) {
	t.Helper()
	d := buildTelemetry(t, app, app)
	r := New()
	if _, err := r.Register(d); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return r, d
}

func TestRegisterAndResolve(t *testing.T) {
	d := buildTelemetry(t, 9, 5)
	r := New()

	app, err := r.Register(d)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if app != 5 {
		t.Fatalf("Register app = %d, want 5", app)
	}
	got, err := r.Dictionary(5)
	if err != nil {
		t.Fatalf("Dictionary: %v", err)
	}
	if got != d {
		t.Error("Dictionary returned a different object")
	}
	if apps := r.Apps(); len(apps) != 1 || apps[0] != 5 {
		t.Errorf("Apps = %v, want [5]", apps)
	}

	e, err := r.Resolve(d.HandleFor(1))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if e.Name != "u8" {
		t.Errorf("entry name = %q, want u8", e.Name)
	}
}

func TestResolveIgnoresCpuNumber(t *testing.T) {
	r, _ := mountTelemetry(t, 5)

	a, err := r.Resolve(edsruntime.MakeTypeHandle(0, 5, 2))
	if err != nil {
		t.Fatalf("Resolve cpu 0: %v", err)
	}
	b, err := r.Resolve(edsruntime.MakeTypeHandle(7, 5, 2))
	if err != nil {
		t.Fatalf("Resolve cpu 7: %v", err)
	}
	if a != b {
		t.Error("same handle with different cpu numbers resolved different entries")
	}
}

func TestResolveFailures(t *testing.T) {
	r, _ := mountTelemetry(t, 5)

	tests := []struct {
		name   string
		handle edsruntime.TypeHandle
		kind   errors.Kind
	}{
		{"zero_handle", 0, errors.KindInvalidHandle},
		{"zero_format", edsruntime.MakeTypeHandle(0, 5, 0), errors.KindInvalidHandle},
		{"unmounted_app", edsruntime.MakeTypeHandle(0, 6, 1), errors.KindInvalidAppIndex},
		{"format_out_of_range", edsruntime.MakeTypeHandle(0, 5, 999), errors.KindInvalidFormatIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(tt.handle)
			if err == nil {
				t.Fatal("Resolve succeeded")
			}
			if !errors.IsKind(err, tt.kind) {
				t.Errorf("error kind = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestRegisterRejections(t *testing.T) {
	t.Run("nil_dictionary", func(t *testing.T) {
		if _, err := New().Register(nil); !errors.IsKind(err, errors.KindInvalidInput) {
			t.Errorf("error = %v, want invalid_input", err)
		}
	})

	t.Run("zero_app_index", func(t *testing.T) {
		d := &dictionary.AppDictionary{Name: "raw"}
		if _, err := New().Register(d); !errors.IsKind(err, errors.KindInvalidAppIndex) {
			t.Errorf("error = %v, want invalid_app_index", err)
		}
	})

	t.Run("app_index_too_large", func(t *testing.T) {
		d := &dictionary.AppDictionary{Name: "raw", AppIndex: edsruntime.MaxAppIndex + 1}
		if _, err := New().Register(d); !errors.IsKind(err, errors.KindInvalidAppIndex) {
			t.Errorf("error = %v, want invalid_app_index", err)
		}
	})

	t.Run("unsealed", func(t *testing.T) {
		d := &dictionary.AppDictionary{Name: "raw", AppIndex: 3}
		if _, err := New().Register(d); !errors.IsKind(err, errors.KindRegistration) {
			t.Errorf("error = %v, want registration", err)
		}
	})

	t.Run("occupied_slot", func(t *testing.T) {
		r := New()
		if _, err := r.Register(buildTelemetry(t, 1, 5)); err != nil {
			t.Fatalf("first Register: %v", err)
		}
		_, err := r.Register(buildTelemetry(t, 2, 5))
		if !errors.IsKind(err, errors.KindRegistration) {
			t.Errorf("error = %v, want registration", err)
		}
	})

	t.Run("duplicate_mission_index", func(t *testing.T) {
		r := New()
		if _, err := r.Register(buildTelemetry(t, 9, 5)); err != nil {
			t.Fatalf("first Register: %v", err)
		}
		_, err := r.Register(buildTelemetry(t, 9, 6))
		if !errors.IsKind(err, errors.KindRegistration) {
			t.Errorf("error = %v, want registration", err)
		}
	})

	t.Run("tampered_tables", func(t *testing.T) {
		d := buildTelemetry(t, 4, 5)
		e, ok := d.Entry(1)
		if !ok {
			t.Fatal("entry 1 missing")
		}
		e.Size.Bits++
		_, err := New().Register(d)
		if !errors.IsKind(err, errors.KindRegistration) {
			t.Errorf("error = %v, want registration", err)
		}
		if !errors.IsChecksumMismatch(err) {
			t.Errorf("error = %v, want wrapped checksum_mismatch", err)
		}
	})
}

func TestUnregister(t *testing.T) {
	r, d := mountTelemetry(t, 5)

	if err := r.Unregister(5); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, err := r.Resolve(d.HandleFor(1)); !errors.IsKind(err, errors.KindInvalidAppIndex) {
		t.Errorf("Resolve after Unregister = %v, want invalid_app_index", err)
	}
	if apps := r.Apps(); len(apps) != 0 {
		t.Errorf("Apps = %v, want empty", apps)
	}

	if err := r.Unregister(5); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("double Unregister = %v, want not_found", err)
	}
	if err := r.Unregister(0); !errors.IsKind(err, errors.KindInvalidAppIndex) {
		t.Errorf("Unregister(0) = %v, want invalid_app_index", err)
	}

	if _, err := r.Register(d); err != nil {
		t.Fatalf("re-Register after Unregister: %v", err)
	}
}

func TestTypeInfoSnapshotSurvivesUnregister(t *testing.T) {
	r, d := mountTelemetry(t, 5)

	info, err := r.TypeInfo(d.HandleFor(8))
	if err != nil {
		t.Fatalf("TypeInfo: %v", err)
	}
	if err := r.Unregister(5); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if info.ElemType != dictionary.BasicContainer || info.Size.Bytes != 14 {
		t.Errorf("info changed after unregister: %+v", info)
	}
	if _, err := r.TypeInfo(d.HandleFor(8)); err == nil {
		t.Error("TypeInfo resolved through an unmounted slot")
	}
}

func TestTypeInfoPointScenario(t *testing.T) {
	b := dictionary.NewBuilder("demo", 1, 5)
	i16, err := b.AddSignedInt("int16_le", 16, dictionary.ByteOrderLittle)
	if err != nil {
		t.Fatalf("AddSignedInt: %v", err)
	}
	if _, err := b.AddUnsignedInt("uint8", 8, dictionary.ByteOrderBig); err != nil {
		t.Fatalf("AddUnsignedInt: %v", err)
	}
	if _, err := b.Container("Point").Member("x", i16).Member("y", i16).Build(); err != nil {
		t.Fatalf("build Point: %v", err)
	}
	d, err := b.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	r := New()
	if _, err := r.Register(d); err != nil {
		t.Fatalf("Register: %v", err)
	}

	info, err := r.TypeInfo(edsruntime.MakeTypeHandle(0, 5, 3))
	if err != nil {
		t.Fatalf("TypeInfo: %v", err)
	}
	if info.ElemType != dictionary.BasicContainer {
		t.Errorf("ElemType = %s, want container", info.ElemType)
	}
	if info.NumSubElements != 2 {
		t.Errorf("NumSubElements = %d, want 2", info.NumSubElements)
	}
	if info.Size.Bytes != 4 {
		t.Errorf("Size.Bytes = %d, want 4", info.Size.Bytes)
	}
}

func TestTypeInfoKinds(t *testing.T) {
	r, d := mountTelemetry(t, 5)

	tests := []struct {
		name    string
		format  uint16
		elem    dictionary.BasicType
		bits    uint32
		bytes   uint32
		numSubs uint32
	}{
		{"scalar", 1, dictionary.BasicUnsignedInt, 8, 1, 0},
		{"array", 5, dictionary.BasicArray, 48, 6, 3},
		{"container", 6, dictionary.BasicContainer, 32, 4, 3},
		{"derived", 9, dictionary.BasicContainer, 128, 16, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := r.TypeInfo(d.HandleFor(tt.format))
			if err != nil {
				t.Fatalf("TypeInfo: %v", err)
			}
			if info.ElemType != tt.elem {
				t.Errorf("ElemType = %s, want %s", info.ElemType, tt.elem)
			}
			if info.Size.Bits != tt.bits || info.Size.Bytes != tt.bytes {
				t.Errorf("Size = %d bits %d bytes, want %d/%d", info.Size.Bits, info.Size.Bytes, tt.bits, tt.bytes)
			}
			if info.NumSubElements != tt.numSubs {
				t.Errorf("NumSubElements = %d, want %d", info.NumSubElements, tt.numSubs)
			}
		})
	}
}
