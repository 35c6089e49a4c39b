package numenc

import (
	"math"
	"testing"

	"github.com/edsworks/eds-runtime/dictionary"
)

func TestEncodeUint(t *testing.T) {
	tests := []struct {
		name    string
		enc     dictionary.NumberEncoding
		v       uint64
		bits    uint32
		want    uint64
		wantErr bool
	}{
		{"unsigned fits", dictionary.EncodingUnsigned, 0xFF, 8, 0xFF, false},
		{"unsigned max 64", dictionary.EncodingUnsigned, math.MaxUint64, 64, math.MaxUint64, false},
		{"unsigned overflow", dictionary.EncodingUnsigned, 0x100, 8, 0, true},
		{"unsigned 12 bit", dictionary.EncodingUnsigned, 0xABC, 12, 0xABC, false},
		{"bcd octet", dictionary.EncodingBCDOctet, 42, 16, 0x0402, false},
		{"bcd octet zero", dictionary.EncodingBCDOctet, 0, 16, 0, false},
		{"bcd octet overflow", dictionary.EncodingBCDOctet, 120, 16, 0, true},
		{"packed bcd", dictionary.EncodingPackedBCD, 1234, 16, 0x1234, false},
		{"packed bcd max", dictionary.EncodingPackedBCD, 9999, 16, 0x9999, false},
		{"packed bcd overflow", dictionary.EncodingPackedBCD, 10000, 16, 0, true},
		{"signed encoding rejected", dictionary.EncodingTwosComplement, 1, 8, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeUint(tt.enc, tt.v, tt.bits)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EncodeUint error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("EncodeUint = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestDecodeUint(t *testing.T) {
	tests := []struct {
		name    string
		enc     dictionary.NumberEncoding
		raw     uint64
		bits    uint32
		want    uint64
		wantErr bool
	}{
		{"unsigned", dictionary.EncodingUnsigned, 0xABC, 12, 0xABC, false},
		{"unsigned masks excess", dictionary.EncodingUnsigned, 0xFFF, 8, 0xFF, false},
		{"bcd octet", dictionary.EncodingBCDOctet, 0x0402, 16, 42, false},
		{"bcd octet bad digit", dictionary.EncodingBCDOctet, 0x0A07, 16, 0, true},
		{"packed bcd", dictionary.EncodingPackedBCD, 0x1234, 16, 1234, false},
		{"packed bcd bad digit", dictionary.EncodingPackedBCD, 0x12F4, 16, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeUint(tt.enc, tt.raw, tt.bits)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeUint error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("DecodeUint = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEncodeInt(t *testing.T) {
	tests := []struct {
		name    string
		enc     dictionary.NumberEncoding
		v       int64
		bits    uint32
		want    uint64
		wantErr bool
	}{
		{"twos positive", dictionary.EncodingTwosComplement, 127, 8, 0x7F, false},
		{"twos negative", dictionary.EncodingTwosComplement, -1, 8, 0xFF, false},
		{"twos min", dictionary.EncodingTwosComplement, -128, 8, 0x80, false},
		{"twos 5 bit", dictionary.EncodingTwosComplement, -5, 5, 0x1B, false},
		{"twos overflow high", dictionary.EncodingTwosComplement, 128, 8, 0, true},
		{"twos overflow low", dictionary.EncodingTwosComplement, -129, 8, 0, true},
		{"ones positive", dictionary.EncodingOnesComplement, 5, 5, 0x05, false},
		{"ones negative", dictionary.EncodingOnesComplement, -5, 5, 0x1A, false},
		{"ones min", dictionary.EncodingOnesComplement, -15, 5, 0x10, false},
		{"ones overflow", dictionary.EncodingOnesComplement, -16, 5, 0, true},
		{"sign-magnitude positive", dictionary.EncodingSignMagnitude, 1234, 16, 0x04D2, false},
		{"sign-magnitude negative", dictionary.EncodingSignMagnitude, -1234, 16, 0x84D2, false},
		{"sign-magnitude overflow", dictionary.EncodingSignMagnitude, 32768, 16, 0, true},
		{"unsigned encoding rejected", dictionary.EncodingUnsigned, 1, 8, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeInt(tt.enc, tt.v, tt.bits)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EncodeInt error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("EncodeInt = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestDecodeInt(t *testing.T) {
	tests := []struct {
		name string
		enc  dictionary.NumberEncoding
		raw  uint64
		bits uint32
		want int64
	}{
		{"twos positive", dictionary.EncodingTwosComplement, 0x7F, 8, 127},
		{"twos negative", dictionary.EncodingTwosComplement, 0xFF, 8, -1},
		{"twos min", dictionary.EncodingTwosComplement, 0x80, 8, -128},
		{"twos full width", dictionary.EncodingTwosComplement, 0xFFFFFFFFFFFFFFFF, 64, -1},
		{"ones positive", dictionary.EncodingOnesComplement, 0x05, 5, 5},
		{"ones negative", dictionary.EncodingOnesComplement, 0x1A, 5, -5},
		{"ones negative zero", dictionary.EncodingOnesComplement, 0x1F, 5, 0},
		{"sign-magnitude positive", dictionary.EncodingSignMagnitude, 0x04D2, 16, 1234},
		{"sign-magnitude negative", dictionary.EncodingSignMagnitude, 0x84D2, 16, -1234},
		{"sign-magnitude negative zero", dictionary.EncodingSignMagnitude, 0x8000, 16, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInt(tt.enc, tt.raw, tt.bits)
			if err != nil {
				t.Fatalf("DecodeInt error: %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeInt = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEncodeIntDecodeIntRoundTrip(t *testing.T) {
	encs := []dictionary.NumberEncoding{
		dictionary.EncodingTwosComplement,
		dictionary.EncodingOnesComplement,
		dictionary.EncodingSignMagnitude,
	}
	values := []int64{0, 1, -1, 5, -5, 100, -100, 2047, -2047}
	for _, enc := range encs {
		for _, v := range values {
			raw, err := EncodeInt(enc, v, 12)
			if err != nil {
				t.Fatalf("%s encode %d: %v", enc, v, err)
			}
			back, err := DecodeInt(enc, raw, 12)
			if err != nil {
				t.Fatalf("%s decode %#x: %v", enc, raw, err)
			}
			if back != v {
				t.Errorf("%s round trip %d = %d", enc, v, back)
			}
		}
	}
}

func TestEncodeFloatIEEE(t *testing.T) {
	tests := []struct {
		name string
		f    float64
		bits uint32
		want uint64
	}{
		{"single 1.5", 1.5, 32, 0x3FC00000},
		{"single -2.0", -2.0, 32, 0xC0000000},
		{"single zero", 0, 32, 0},
		{"double 2.25", 2.25, 64, 0x4002000000000000},
		{"double -2.25", -2.25, 64, 0xC002000000000000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeFloat(dictionary.EncodingIEEE754, tt.f, tt.bits)
			if err != nil {
				t.Fatalf("EncodeFloat error: %v", err)
			}
			if got != tt.want {
				t.Errorf("EncodeFloat = %#x, want %#x", got, tt.want)
			}
			back, err := DecodeFloat(dictionary.EncodingIEEE754, got, tt.bits)
			if err != nil {
				t.Fatalf("DecodeFloat error: %v", err)
			}
			if back != tt.f {
				t.Errorf("round trip = %v, want %v", back, tt.f)
			}
		})
	}

	if _, err := EncodeFloat(dictionary.EncodingIEEE754, 1, 48); err == nil {
		t.Error("expected error for 48-bit ieee754")
	}
}

func TestEncodeFloat1750A(t *testing.T) {
	tests := []struct {
		name string
		f    float64
		bits uint32
		want uint64
	}{
		{"one", 1.0, 32, 0x40000001},
		{"minus one", -1.0, 32, 0x80000000},
		{"minus half", -0.5, 32, 0x800000FF},
		{"five eighths", 0.625, 32, 0x50000000},
		{"zero", 0, 32, 0},
		{"extended one", 1.0, 48, 0x400000010000},
		{"extended zero", 0, 48, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeFloat(dictionary.EncodingMILSTD1750A, tt.f, tt.bits)
			if err != nil {
				t.Fatalf("EncodeFloat error: %v", err)
			}
			if got != tt.want {
				t.Errorf("EncodeFloat = %#x, want %#x", got, tt.want)
			}
			back, err := DecodeFloat(dictionary.EncodingMILSTD1750A, got, tt.bits)
			if err != nil {
				t.Fatalf("DecodeFloat error: %v", err)
			}
			if back != tt.f {
				t.Errorf("round trip = %v, want %v", back, tt.f)
			}
		})
	}
}

func TestEncodeFloat1750AErrors(t *testing.T) {
	tests := []struct {
		name string
		f    float64
		bits uint32
	}{
		{"nan", math.NaN(), 32},
		{"inf", math.Inf(1), 32},
		{"exponent overflow", math.Ldexp(0.5, 200), 32},
		{"bad width", 1.0, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeFloat(dictionary.EncodingMILSTD1750A, tt.f, tt.bits); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDecode1750APrecision(t *testing.T) {
	// 0.1 is not a binary fraction: the 24-bit mantissa of the single
	// format truncates it, while the 40-bit extended format holds more.
	single, err := EncodeFloat(dictionary.EncodingMILSTD1750A, 0.1, 32)
	if err != nil {
		t.Fatal(err)
	}
	extended, err := EncodeFloat(dictionary.EncodingMILSTD1750A, 0.1, 48)
	if err != nil {
		t.Fatal(err)
	}
	s, err := DecodeFloat(dictionary.EncodingMILSTD1750A, single, 32)
	if err != nil {
		t.Fatal(err)
	}
	e, err := DecodeFloat(dictionary.EncodingMILSTD1750A, extended, 48)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(s-0.1) > 1e-7 {
		t.Errorf("single decode = %v, too far from 0.1", s)
	}
	if math.Abs(e-0.1) > 1e-11 {
		t.Errorf("extended decode = %v, too far from 0.1", e)
	}
	if math.Abs(e-0.1) >= math.Abs(s-0.1) {
		t.Errorf("extended error %v not tighter than single %v", math.Abs(e-0.1), math.Abs(s-0.1))
	}
}

func TestSwapBytes(t *testing.T) {
	tests := []struct {
		name string
		raw  uint64
		bits uint32
		want uint64
	}{
		{"word", 0x1234, 16, 0x3412},
		{"three bytes", 0xABCDEF, 24, 0xEFCDAB},
		{"doubleword", 0xDEADBEEF, 32, 0xEFBEADDE},
		{"full width", 0x0102030405060708, 64, 0x0807060504030201},
		{"single byte", 0xAB, 8, 0xAB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SwapBytes(tt.raw, tt.bits); got != tt.want {
				t.Errorf("SwapBytes = %#x, want %#x", got, tt.want)
			}
			if back := SwapBytes(SwapBytes(tt.raw, tt.bits), tt.bits); back != tt.raw {
				t.Errorf("double swap = %#x, want %#x", back, tt.raw)
			}
		})
	}
}
