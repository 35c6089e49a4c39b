package dictionary

import (
	"testing"

	edsruntime "github.com/edsworks/eds-runtime"
	"github.com/edsworks/eds-runtime/errors"
)

func TestAddNumberSizes(t *testing.T) {
	tests := []struct {
		name      string
		basic     BasicType
		spec      NumberSpec
		wantBytes uint32
	}{
		{"uint8", BasicUnsignedInt, NumberSpec{Bits: 8}, 1},
		{"uint12", BasicUnsignedInt, NumberSpec{Bits: 12}, 2},
		{"int16", BasicSignedInt, NumberSpec{Bits: 16, Encoding: EncodingTwosComplement}, 2},
		{"uint32", BasicUnsignedInt, NumberSpec{Bits: 32}, 4},
		{"uint48", BasicUnsignedInt, NumberSpec{Bits: 48}, 8},
		{"float32", BasicFloat, NumberSpec{Bits: 32, Encoding: EncodingIEEE754}, 4},
		{"float64", BasicFloat, NumberSpec{Bits: 64, Encoding: EncodingIEEE754}, 8},
		{"milstd32", BasicFloat, NumberSpec{Bits: 32, Encoding: EncodingMILSTD1750A}, 8},
		{"milstd48", BasicFloat, NumberSpec{Bits: 48, Encoding: EncodingMILSTD1750A}, 8},
		{"packed_bcd_4_digits", BasicUnsignedInt, NumberSpec{Bits: 16, Encoding: EncodingPackedBCD}, 2},
		{"bcd_octet_6_digits", BasicUnsignedInt, NumberSpec{Bits: 48, Encoding: EncodingBCDOctet}, 4},
		{"explicit_native", BasicUnsignedInt, NumberSpec{Bits: 8, Bytes: 4}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder("test", 0, 5)
			h, err := b.AddNumber(tt.name, tt.basic, tt.spec)
			if err != nil {
				t.Fatalf("AddNumber: %v", err)
			}
			e, _, err := b.resolve(h)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if e.Size.Bits != tt.spec.Bits {
				t.Errorf("packed bits = %d, want %d", e.Size.Bits, tt.spec.Bits)
			}
			if e.Size.Bytes != tt.wantBytes {
				t.Errorf("native bytes = %d, want %d", e.Size.Bytes, tt.wantBytes)
			}
			if e.Basic != tt.basic {
				t.Errorf("basic = %s, want %s", e.Basic, tt.basic)
			}
		})
	}
}

func TestAddNumberValidation(t *testing.T) {
	tests := []struct {
		name  string
		basic BasicType
		spec  NumberSpec
	}{
		{"zero_bits", BasicUnsignedInt, NumberSpec{Bits: 0}},
		{"too_wide", BasicUnsignedInt, NumberSpec{Bits: 65}},
		{"signed_unsigned_encoding", BasicSignedInt, NumberSpec{Bits: 16, Encoding: EncodingUnsigned}},
		{"signed_one_bit", BasicSignedInt, NumberSpec{Bits: 1, Encoding: EncodingTwosComplement}},
		{"ieee_16", BasicFloat, NumberSpec{Bits: 16, Encoding: EncodingIEEE754}},
		{"milstd_64", BasicFloat, NumberSpec{Bits: 64, Encoding: EncodingMILSTD1750A}},
		{"packed_bcd_odd", BasicUnsignedInt, NumberSpec{Bits: 13, Encoding: EncodingPackedBCD}},
		{"bcd_octet_partial", BasicUnsignedInt, NumberSpec{Bits: 12, Encoding: EncodingBCDOctet}},
		{"native_3_bytes", BasicUnsignedInt, NumberSpec{Bits: 8, Bytes: 3}},
		{"native_too_small", BasicUnsignedInt, NumberSpec{Bits: 16, Bytes: 1}},
		{"not_numeric", BasicBinary, NumberSpec{Bits: 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder("test", 0, 5)
			if _, err := b.AddNumber("bad", tt.basic, tt.spec); err == nil {
				t.Fatalf("AddNumber accepted invalid spec %+v", tt.spec)
			}
		})
	}
}

func TestBuilderHandles(t *testing.T) {
	b := NewBuilder("demo", 12, 5)
	h1, err := b.AddUnsignedInt("first", 8, ByteOrderBig)
	if err != nil {
		t.Fatalf("AddUnsignedInt: %v", err)
	}
	h2, err := b.AddSignedInt("second", 16, ByteOrderLittle)
	if err != nil {
		t.Fatalf("AddSignedInt: %v", err)
	}
	if h1.AppIndex() != 5 || h1.FormatIndex() != 1 {
		t.Errorf("first handle = %s, want 5.1", h1)
	}
	if h2.FormatIndex() != 2 {
		t.Errorf("second handle = %s, want 5.2", h2)
	}
	if !h1.IsValid() || !h2.IsValid() {
		t.Error("builder returned invalid handles")
	}

	d, err := b.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if d.NumFormats() != 2 {
		t.Errorf("NumFormats = %d, want 2", d.NumFormats())
	}
	if got := d.HandleFor(2); got != h2 {
		t.Errorf("HandleFor(2) = %s, want %s", got, h2)
	}
	idx, e, ok := d.EntryByName("second")
	if !ok || idx != 2 || e.Basic != BasicSignedInt {
		t.Errorf("EntryByName(second) = %d %v %v", idx, e, ok)
	}
	if _, ok := d.Entry(0); ok {
		t.Error("Entry(0) resolved the reserved index")
	}
}

func TestDuplicateTypeName(t *testing.T) {
	b := NewBuilder("demo", 0, 5)
	if _, err := b.AddUnsignedInt("counter", 8, ByteOrderBig); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := b.AddUnsignedInt("counter", 16, ByteOrderBig); err == nil {
		t.Fatal("duplicate type name accepted")
	}
}

func TestAppIndexValidation(t *testing.T) {
	for _, app := range []uint16{0, edsruntime.MaxAppIndex + 1} {
		b := NewBuilder("demo", 0, app)
		if b.Err() == nil {
			t.Errorf("app index %d accepted", app)
		}
		if _, err := b.Seal(); err == nil {
			t.Errorf("Seal succeeded with app index %d", app)
		}
	}
}

func TestCrossDictionaryHandleRejected(t *testing.T) {
	other := NewBuilder("other", 0, 6)
	foreign, err := other.AddUnsignedInt("elem", 8, ByteOrderBig)
	if err != nil {
		t.Fatalf("AddUnsignedInt: %v", err)
	}

	b := NewBuilder("demo", 0, 5)
	if _, err := b.AddArray("arr", foreign, 4); err == nil {
		t.Fatal("array element from another dictionary accepted")
	}
}

func TestAddEnumLabels(t *testing.T) {
	b := NewBuilder("demo", 0, 5)
	h, err := b.AddUnsignedInt("mode", 8, ByteOrderBig)
	if err != nil {
		t.Fatalf("AddUnsignedInt: %v", err)
	}
	labels := []EnumLabel{{"SAFE", 2}, {"IDLE", 0}, {"ACTIVE", 1}}
	if err := b.AddEnumLabels(h, labels); err != nil {
		t.Fatalf("AddEnumLabels: %v", err)
	}

	e, _, _ := b.resolve(h)
	table := e.Number().Enum
	if table == nil {
		t.Fatal("enum table not attached")
	}
	if name, ok := table.LabelForValue(1); !ok || name != "ACTIVE" {
		t.Errorf("LabelForValue(1) = %q %v", name, ok)
	}
	if v, ok := table.ValueForLabel("SAFE"); !ok || v != 2 {
		t.Errorf("ValueForLabel(SAFE) = %d %v", v, ok)
	}
	if _, ok := table.LabelForValue(9); ok {
		t.Error("LabelForValue(9) matched a missing value")
	}
	for i := 1; i < len(table.Labels); i++ {
		if table.Labels[i-1].Value >= table.Labels[i].Value {
			t.Fatalf("labels not sorted by value: %+v", table.Labels)
		}
	}
}

func TestAddEnumLabelsValidation(t *testing.T) {
	b := NewBuilder("demo", 0, 5)
	f, _ := b.AddFloat("ratio", 32, ByteOrderBig)
	if err := b.AddEnumLabels(f, []EnumLabel{{"A", 0}}); err == nil {
		t.Error("enum labels attached to a float")
	}

	b2 := NewBuilder("demo", 0, 5)
	h, _ := b2.AddUnsignedInt("mode", 8, ByteOrderBig)
	if err := b2.AddEnumLabels(h, []EnumLabel{{"A", 0}, {"A", 1}}); err == nil {
		t.Error("duplicate label name accepted")
	}

	b3 := NewBuilder("demo", 0, 5)
	h3, _ := b3.AddUnsignedInt("mode", 8, ByteOrderBig)
	if err := b3.AddEnumLabels(h3, []EnumLabel{{"A", 1}, {"B", 1}}); err == nil {
		t.Error("duplicate label value accepted")
	}
}

func TestAddStringAndBinary(t *testing.T) {
	b := NewBuilder("demo", 0, 5)
	s, err := b.AddString("tag", 12, CharsetASCII)
	if err != nil {
		t.Fatalf("AddString: %v", err)
	}
	bin, err := b.AddBinary("blob", 7)
	if err != nil {
		t.Fatalf("AddBinary: %v", err)
	}

	se, _, _ := b.resolve(s)
	if se.Size.Bits != 96 || se.Size.Bytes != 12 {
		t.Errorf("string size = %+v, want 96 bits / 12 bytes", se.Size)
	}
	if se.StringDetail() == nil || se.StringDetail().Charset != CharsetASCII {
		t.Error("string detail missing")
	}

	be, _, _ := b.resolve(bin)
	if be.Size.Bits != 56 || be.Size.Bytes != 7 {
		t.Errorf("binary size = %+v, want 56 bits / 7 bytes", be.Size)
	}
	if be.Detail != nil {
		t.Error("raw binary should carry no detail")
	}

	if _, err := b.AddString("empty", 0, CharsetASCII); err == nil {
		t.Error("zero width string accepted")
	}
}

func TestAddArray(t *testing.T) {
	b := NewBuilder("demo", 0, 5)
	elem, _ := b.AddSignedInt("elem", 16, ByteOrderBig)
	arr, err := b.AddArray("samples", elem, 3)
	if err != nil {
		t.Fatalf("AddArray: %v", err)
	}

	e, align, _ := b.resolve(arr)
	if e.Size.Bits != 48 || e.Size.Bytes != 6 {
		t.Errorf("array size = %+v, want 48 bits / 6 bytes", e.Size)
	}
	if e.NumSubElements != 3 {
		t.Errorf("NumSubElements = %d, want 3", e.NumSubElements)
	}
	if align != 2 {
		t.Errorf("array alignment = %d, want element alignment 2", align)
	}
	if e.Array().Element != elem {
		t.Errorf("element handle = %s, want %s", e.Array().Element, elem)
	}

	if _, err := b.AddArray("none", elem, 0); err == nil {
		t.Error("zero count array accepted")
	}
}

func TestAddIndexedArray(t *testing.T) {
	b := NewBuilder("demo", 0, 5)
	elem, _ := b.AddUnsignedInt("elem", 32, ByteOrderBig)
	idx, _ := b.AddUnsignedInt("axis", 8, ByteOrderBig)
	if err := b.AddEnumLabels(idx, []EnumLabel{{"X", 0}, {"Y", 1}, {"Z", 2}}); err != nil {
		t.Fatalf("AddEnumLabels: %v", err)
	}

	arr, err := b.AddIndexedArray("vec", elem, idx, 3)
	if err != nil {
		t.Fatalf("AddIndexedArray: %v", err)
	}
	e, _, _ := b.resolve(arr)
	if e.Array().IndexType != idx {
		t.Errorf("index type = %s, want %s", e.Array().IndexType, idx)
	}

	// A label outside the element range cannot address a slot.
	b2 := NewBuilder("demo", 0, 5)
	elem2, _ := b2.AddUnsignedInt("elem", 32, ByteOrderBig)
	idx2, _ := b2.AddUnsignedInt("axis", 8, ByteOrderBig)
	if err := b2.AddEnumLabels(idx2, []EnumLabel{{"X", 0}, {"W", 3}}); err != nil {
		t.Fatalf("AddEnumLabels: %v", err)
	}
	if _, err := b2.AddIndexedArray("vec", elem2, idx2, 3); err == nil {
		t.Error("out of range index label accepted")
	}

	// An index type without labels cannot index anything.
	b3 := NewBuilder("demo", 0, 5)
	elem3, _ := b3.AddUnsignedInt("elem", 32, ByteOrderBig)
	plain, _ := b3.AddUnsignedInt("plain", 8, ByteOrderBig)
	if _, err := b3.AddIndexedArray("vec", elem3, plain, 3); err == nil {
		t.Error("unlabeled index type accepted")
	}
}

func TestBuilderErrorSticks(t *testing.T) {
	b := NewBuilder("demo", 0, 5)
	if _, err := b.AddNumber("bad", BasicUnsignedInt, NumberSpec{Bits: 0}); err == nil {
		t.Fatal("invalid number accepted")
	}
	if b.Err() == nil {
		t.Fatal("builder error not recorded")
	}
	if _, err := b.AddUnsignedInt("later", 8, ByteOrderBig); err == nil {
		t.Fatal("add succeeded after builder failure")
	}
	if _, err := b.Seal(); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("Seal error = %v, want invalid input", err)
	}
}
