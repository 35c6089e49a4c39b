package dictionary

import (
	"reflect"
	"testing"

	"github.com/edsworks/eds-runtime/errors"
)

type pointNative struct {
	X int16
	Y int16
}

type mixedNative struct {
	Flag  uint8
	Count uint32
}

type headerNative struct {
	Seq uint16
	Fc  uint8
}

type fullNative struct {
	Hdr  headerNative
	Data [3]int16
	Name [4]byte
}

type BaseMsg struct {
	Id uint16
}

type extNative struct {
	BaseMsg
	Extra uint32
}

type framedNative struct {
	Id  uint16
	Crc uint16
}

type spacedNative struct {
	Head uint8
	Tail uint8
}

func buildPoint(t *testing.T) (*AppDictionary, uint16) {
	t.Helper()
	b := NewBuilder("demo", 0, 5)
	i16, _ := b.AddNumber("i16", BasicSignedInt,
		NumberSpec{Bits: 16, Encoding: EncodingTwosComplement, Order: ByteOrderLittle})
	pt, err := b.Container("Point").Member("x", i16).Member("y", i16).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d, err := b.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return d, pt.FormatIndex()
}

func TestBindNativeAcceptsMatchingStruct(t *testing.T) {
	d, format := buildPoint(t)
	if err := d.BindNative(format, pointNative{}); err != nil {
		t.Errorf("value sample: %v", err)
	}
	if err := d.BindNative(format, &pointNative{}); err != nil {
		t.Errorf("pointer sample: %v", err)
	}
	if err := d.BindNative(format, reflect.TypeOf(pointNative{})); err != nil {
		t.Errorf("reflect.Type sample: %v", err)
	}
}

func TestBindNativeAlignment(t *testing.T) {
	b := NewBuilder("demo", 0, 5)
	u8, _ := b.AddUnsignedInt("u8", 8, ByteOrderBig)
	u32, _ := b.AddUnsignedInt("u32", 32, ByteOrderBig)
	h, err := b.Container("Mixed").Member("flag", u8).Member("count", u32).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d, _ := b.Seal()
	if err := d.BindNative(h.FormatIndex(), mixedNative{}); err != nil {
		t.Errorf("BindNative: %v", err)
	}
}

func TestBindNativeNested(t *testing.T) {
	b := NewBuilder("demo", 0, 5)
	u8, _ := b.AddUnsignedInt("u8", 8, ByteOrderBig)
	u16, _ := b.AddUnsignedInt("u16", 16, ByteOrderBig)
	i16, _ := b.AddSignedInt("i16", 16, ByteOrderBig)
	hdr, _ := b.Container("Hdr").Member("seq", u16).Member("fc", u8).Build()
	arr, _ := b.AddArray("arr3", i16, 3)
	name, _ := b.AddString("name4", 4, CharsetASCII)
	full, err := b.Container("Full").
		Member("hdr", hdr).
		Member("data", arr).
		Member("name", name).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d, _ := b.Seal()
	if err := d.BindNative(full.FormatIndex(), fullNative{}); err != nil {
		t.Errorf("BindNative: %v", err)
	}
}

func TestBindNativeEmbeddedBase(t *testing.T) {
	b := NewBuilder("demo", 0, 5)
	u16, _ := b.AddUnsignedInt("u16", 16, ByteOrderBig)
	u32, _ := b.AddUnsignedInt("u32", 32, ByteOrderBig)
	base, _ := b.Container("BaseMsg").Member("id", u16).Build()
	ext, err := b.Derive("ExtMsg", base).Member("extra", u32).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d, _ := b.Seal()
	if err := d.BindNative(base.FormatIndex(), BaseMsg{}); err != nil {
		t.Errorf("base bind: %v", err)
	}
	if err := d.BindNative(ext.FormatIndex(), extNative{}); err != nil {
		t.Errorf("derived bind: %v", err)
	}
}

func TestBindNativeTrailerFields(t *testing.T) {
	b := NewBuilder("demo", 0, 5)
	u16, _ := b.AddUnsignedInt("u16", 16, ByteOrderBig)
	h, err := b.Container("Framed").
		Member("id", u16).
		Trailer().
		ErrorControl("crc", u16, ErrCtlCRC16CCITT).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d, _ := b.Seal()
	if err := d.BindNative(h.FormatIndex(), framedNative{}); err != nil {
		t.Errorf("BindNative: %v", err)
	}
}

func TestBindNativeSkipsPadding(t *testing.T) {
	b := NewBuilder("demo", 0, 5)
	u8, _ := b.AddUnsignedInt("u8", 8, ByteOrderBig)
	h, err := b.Container("Spaced").
		Member("head", u8).
		Padding(8).
		Member("tail", u8).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d, _ := b.Seal()
	if err := d.BindNative(h.FormatIndex(), spacedNative{}); err != nil {
		t.Errorf("BindNative: %v", err)
	}
}

func TestBindNativeMismatches(t *testing.T) {
	d, format := buildPoint(t)

	t.Run("wrong_scalar_width", func(t *testing.T) {
		err := d.BindNative(format, struct {
			X int32
			Y int16
		}{})
		if !errors.IsSizeMismatch(err) {
			t.Errorf("error = %v, want size mismatch", err)
		}
	})

	t.Run("wrong_field_name", func(t *testing.T) {
		err := d.BindNative(format, struct {
			X int16
			Z int16
		}{})
		if !errors.IsKind(err, errors.KindTypeMismatch) {
			t.Errorf("error = %v, want type mismatch", err)
		}
	})

	t.Run("extra_field", func(t *testing.T) {
		err := d.BindNative(format, struct {
			X int16
			Y int16
			Z int16
		}{})
		if err == nil {
			t.Error("struct with an extra field accepted")
		}
	})

	t.Run("missing_field", func(t *testing.T) {
		err := d.BindNative(format, struct {
			X int16
		}{})
		if err == nil {
			t.Error("struct missing a field accepted")
		}
	})

	t.Run("not_a_struct", func(t *testing.T) {
		err := d.BindNative(format, int32(0))
		if !errors.IsKind(err, errors.KindTypeMismatch) {
			t.Errorf("error = %v, want type mismatch", err)
		}
	})

	t.Run("plain_int_field", func(t *testing.T) {
		// int matches int64 in size on 64 bit targets, but its width is
		// target defined and must be rejected either way.
		b := NewBuilder("demo", 0, 5)
		i64, _ := b.AddSignedInt("i64", 64, ByteOrderBig)
		h, _ := b.Container("Wide").Member("v", i64).Build()
		wd, _ := b.Seal()
		err := wd.BindNative(h.FormatIndex(), struct{ V int }{})
		if !errors.IsKind(err, errors.KindTypeMismatch) {
			t.Errorf("error = %v, want type mismatch", err)
		}
	})

	t.Run("missing_format", func(t *testing.T) {
		err := d.BindNative(99, pointNative{})
		if err == nil {
			t.Error("missing format index accepted")
		}
	})
}

func TestBindNativeOffsetMismatch(t *testing.T) {
	b := NewBuilder("demo", 0, 5)
	u16, _ := b.AddUnsignedInt("u16", 16, ByteOrderBig)
	h, err := b.Container("Sparse").
		MemberAt("a", u16, Offset{Bits: 0, Bytes: 0}).
		MemberAt("b", u16, Offset{Bits: 16, Bytes: 6}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d, _ := b.Seal()

	// The struct has the right total size but packs b at byte 2 instead of
	// the recorded byte 6.
	err = d.BindNative(h.FormatIndex(), struct {
		A uint16
		B uint16
		C uint32
	}{})
	if !errors.IsSizeMismatch(err) {
		t.Fatalf("error = %v, want offset mismatch", err)
	}
}

func TestBindNativeArrayMismatch(t *testing.T) {
	b := NewBuilder("demo", 0, 5)
	i16, _ := b.AddSignedInt("i16", 16, ByteOrderBig)
	arr, _ := b.AddArray("arr3", i16, 3)
	d, _ := b.Seal()

	if err := d.BindNative(arr.FormatIndex(), [3]int16{}); err != nil {
		t.Errorf("matching array: %v", err)
	}
	if err := d.BindNative(arr.FormatIndex(), [4]int16{}); err == nil {
		t.Error("wrong element count accepted")
	}
	if err := d.BindNative(arr.FormatIndex(), [3]int32{}); err == nil {
		t.Error("wrong element width accepted")
	}
	if err := d.BindNative(arr.FormatIndex(), []int16{}); err == nil {
		t.Error("slice accepted for a fixed array")
	}
}
