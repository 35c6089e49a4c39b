package codec

import (
	"testing"

	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/calib"
	"github.com/edsworks/eds-runtime/dictionary"
	"github.com/edsworks/eds-runtime/registry"
)

// Test dictionaries, one application each. Format indices follow
// declaration order starting at 1.

// buildGeometry: little-endian scalar pairs.
//
//	1 u8   2 i16le   3 Point{x,y}
func buildGeometry(t testing.TB) *dictionary.AppDictionary {
	t.Helper()
	b := dictionary.NewBuilder("geometry", 1, 5)
	if _, err := b.AddUnsignedInt("u8", 8, dictionary.ByteOrderBig); err != nil {
		t.Fatalf("AddUnsignedInt: %v", err)
	}
	i16le, err := b.AddSignedInt("i16le", 16, dictionary.ByteOrderLittle)
	if err != nil {
		t.Fatalf("AddSignedInt: %v", err)
	}
	if _, err := b.Container("Point").
		Member("x", i16le).
		Member("y", i16le).
		Build(); err != nil {
		t.Fatalf("build Point: %v", err)
	}
	d, err := b.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return d
}

// buildCommands: a two-level derivation chain for identification.
//
//	1 u8   2 u16   3 Msg{id,seq}   4 Cmd(id=1){op}   5 Reboot(op=9){delay}
func buildCommands(t testing.TB) *dictionary.AppDictionary {
	t.Helper()
	b := dictionary.NewBuilder("commands", 1, 9)
	u8, err := b.AddUnsignedInt("u8", 8, dictionary.ByteOrderBig)
	if err != nil {
		t.Fatalf("AddUnsignedInt: %v", err)
	}
	u16, err := b.AddUnsignedInt("u16", 16, dictionary.ByteOrderBig)
	if err != nil {
		t.Fatalf("AddUnsignedInt: %v", err)
	}
	msg, err := b.Container("Msg").
		Member("id", u8).
		Member("seq", u16).
		Build()
	if err != nil {
		t.Fatalf("build Msg: %v", err)
	}
	cmd, err := b.Derive("Cmd", msg).
		Member("op", u8).
		Constrain("id", 1).
		Build()
	if err != nil {
		t.Fatalf("build Cmd: %v", err)
	}
	if _, err := b.Derive("Reboot", cmd).
		Member("delay", u16).
		Constrain("op", 9).
		Build(); err != nil {
		t.Fatalf("build Reboot: %v", err)
	}
	d, err := b.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return d
}

// buildTelemetry: every engine-produced entry kind in one frame.
//
//	1 u16   2 u32   3 TmFrame{sync=EB90, len, data, crc}
//
// The length calibrator stores total-7, CCSDS style.
func buildTelemetry(t testing.TB) *dictionary.AppDictionary {
	t.Helper()
	b := dictionary.NewBuilder("telemetry", 1, 11)
	u16, err := b.AddUnsignedInt("u16", 16, dictionary.ByteOrderBig)
	if err != nil {
		t.Fatalf("AddUnsignedInt: %v", err)
	}
	u32, err := b.AddUnsignedInt("u32", 32, dictionary.ByteOrderBig)
	if err != nil {
		t.Fatalf("AddUnsignedInt: %v", err)
	}
	lenCal, err := calib.Linear(7, 1, 1)
	if err != nil {
		t.Fatalf("Linear: %v", err)
	}
	if _, err := b.Container("TmFrame").
		FixedValue("sync", u16, 0xEB90).
		Length("len", u16, lenCal).
		Member("data", u32).
		Trailer().
		ErrorControl("crc", u16, dictionary.ErrCtlCRC16CCITT).
		Build(); err != nil {
		t.Fatalf("build TmFrame: %v", err)
	}
	d, err := b.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return d
}

// buildSensors: one field per number encoding, with unaligned bit
// packing between them.
//
//	1 u8inv   2 i5oc   3 i16sm   4 bcd2   5 pbcd4   6 f32   7 f64
//	8 m32   9 m48   10 u12   11 Sensors   12 BcdBox
func buildSensors(t testing.TB) *dictionary.AppDictionary {
	t.Helper()
	b := dictionary.NewBuilder("sensors", 1, 13)
	add := func(name string, basic dictionary.BasicType, spec dictionary.NumberSpec) edsruntime.TypeHandle {
		h, err := b.AddNumber(name, basic, spec)
		if err != nil {
			t.Fatalf("AddNumber %s: %v", name, err)
		}
		return h
	}
	u8inv := add("u8inv", dictionary.BasicUnsignedInt, dictionary.NumberSpec{Bits: 8, Encoding: dictionary.EncodingUnsigned, BitInvert: true})
	i5oc := add("i5oc", dictionary.BasicSignedInt, dictionary.NumberSpec{Bits: 5, Encoding: dictionary.EncodingOnesComplement})
	i16sm := add("i16sm", dictionary.BasicSignedInt, dictionary.NumberSpec{Bits: 16, Encoding: dictionary.EncodingSignMagnitude})
	bcd2 := add("bcd2", dictionary.BasicUnsignedInt, dictionary.NumberSpec{Bits: 16, Encoding: dictionary.EncodingBCDOctet})
	pbcd4 := add("pbcd4", dictionary.BasicUnsignedInt, dictionary.NumberSpec{Bits: 16, Encoding: dictionary.EncodingPackedBCD})
	f32, err := b.AddFloat("f32", 32, dictionary.ByteOrderBig)
	if err != nil {
		t.Fatalf("AddFloat: %v", err)
	}
	f64, err := b.AddFloat("f64", 64, dictionary.ByteOrderBig)
	if err != nil {
		t.Fatalf("AddFloat: %v", err)
	}
	m32 := add("m32", dictionary.BasicFloat, dictionary.NumberSpec{Bits: 32, Encoding: dictionary.EncodingMILSTD1750A})
	m48 := add("m48", dictionary.BasicFloat, dictionary.NumberSpec{Bits: 48, Encoding: dictionary.EncodingMILSTD1750A})
	u12 := add("u12", dictionary.BasicUnsignedInt, dictionary.NumberSpec{Bits: 12, Encoding: dictionary.EncodingUnsigned})

	if _, err := b.Container("Sensors").
		Member("flags", u8inv).
		Member("trim", i5oc).
		Member("tick", u12).
		Member("mag", i16sm).
		Member("year", bcd2).
		Member("count", pbcd4).
		Member("ratio", f32).
		Member("precise", f64).
		Member("alt", m32).
		Member("ext", m48).
		Build(); err != nil {
		t.Fatalf("build Sensors: %v", err)
	}
	if _, err := b.Container("BcdBox").
		Member("year", bcd2).
		Build(); err != nil {
		t.Fatalf("build BcdBox: %v", err)
	}
	d, err := b.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return d
}

// buildTags: string and binary handling.
//
//	1 str8   2 bin4   3 Tag{label,blob}
func buildTags(t testing.TB) *dictionary.AppDictionary {
	t.Helper()
	b := dictionary.NewBuilder("tags", 1, 15)
	str8, err := b.AddString("str8", 8, dictionary.CharsetASCII)
	if err != nil {
		t.Fatalf("AddString: %v", err)
	}
	bin4, err := b.AddBinary("bin4", 4)
	if err != nil {
		t.Fatalf("AddBinary: %v", err)
	}
	if _, err := b.Container("Tag").
		Member("label", str8).
		Member("blob", bin4).
		Build(); err != nil {
		t.Fatalf("build Tag: %v", err)
	}
	d, err := b.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return d
}

// buildSwapBox: scalars, a string, an array, and tail padding from
// alignment, for endian swap coverage.
//
//	1 u16   2 str4   3 arr2   4 u32   5 SwapBox{a,s,arr,b}
func buildSwapBox(t testing.TB) *dictionary.AppDictionary {
	t.Helper()
	b := dictionary.NewBuilder("swapbox", 1, 17)
	u16, err := b.AddUnsignedInt("u16", 16, dictionary.ByteOrderBig)
	if err != nil {
		t.Fatalf("AddUnsignedInt: %v", err)
	}
	str4, err := b.AddString("str4", 4, dictionary.CharsetASCII)
	if err != nil {
		t.Fatalf("AddString: %v", err)
	}
	arr2, err := b.AddArray("arr2", u16, 2)
	if err != nil {
		t.Fatalf("AddArray: %v", err)
	}
	u32, err := b.AddUnsignedInt("u32", 32, dictionary.ByteOrderBig)
	if err != nil {
		t.Fatalf("AddUnsignedInt: %v", err)
	}
	if _, err := b.Container("SwapBox").
		Member("a", u16).
		Member("s", str4).
		Member("arr", arr2).
		Member("b", u32).
		Build(); err != nil {
		t.Fatalf("build SwapBox: %v", err)
	}
	d, err := b.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	return d
}

func mount(t testing.TB, d *dictionary.AppDictionary) (*registry.Registry, uint16) {
	t.Helper()
	reg := registry.New()
	app, err := reg.Register(d)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg, app
}

// nativeOff looks up a member's native byte offset so tests do not
// hard-code layout arithmetic.
func nativeOff(t testing.TB, reg *registry.Registry, h edsruntime.TypeHandle, path string) uint32 {
	t.Helper()
	ei, err := reg.LocateSubEntity(h, path)
	if err != nil {
		t.Fatalf("LocateSubEntity(%s): %v", path, err)
	}
	return ei.Offset.Bytes
}
