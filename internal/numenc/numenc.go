// Package numenc converts native numeric values to and from the raw wire
// patterns of the number encodings.
//
// Encode functions range-check the value against the field width and
// return an error when it cannot be represented; decode functions reject
// patterns that are not valid for the encoding. Byte-order handling stays
// with the caller: every pattern here is the field's value-significant
// form.
package numenc

import (
	"fmt"
	"math"

	"github.com/edsworks/eds-runtime/dictionary"
)

// Mask returns the all-ones pattern of the given width.
func Mask(bits uint32) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bits) - 1
}

// EncodeUint produces the raw pattern of an unsigned integer.
func EncodeUint(enc dictionary.NumberEncoding, v uint64, bits uint32) (uint64, error) {
	switch enc {
	case dictionary.EncodingUnsigned:
		if bits < 64 && v > Mask(bits) {
			return 0, fmt.Errorf("value %d does not fit %d bits", v, bits)
		}
		return v, nil
	case dictionary.EncodingBCDOctet:
		return encodeBCD(v, bits/8, 8)
	case dictionary.EncodingPackedBCD:
		return encodeBCD(v, bits/4, 4)
	default:
		return 0, fmt.Errorf("encoding %s not valid for unsigned fields", enc)
	}
}

// DecodeUint recovers an unsigned integer from a raw pattern.
func DecodeUint(enc dictionary.NumberEncoding, raw uint64, bits uint32) (uint64, error) {
	switch enc {
	case dictionary.EncodingUnsigned:
		return raw & Mask(bits), nil
	case dictionary.EncodingBCDOctet:
		return decodeBCD(raw, bits/8, 8)
	case dictionary.EncodingPackedBCD:
		return decodeBCD(raw, bits/4, 4)
	default:
		return 0, fmt.Errorf("encoding %s not valid for unsigned fields", enc)
	}
}

// EncodeInt produces the raw pattern of a signed integer.
func EncodeInt(enc dictionary.NumberEncoding, v int64, bits uint32) (uint64, error) {
	switch enc {
	case dictionary.EncodingTwosComplement:
		if bits < 64 {
			lo := -(int64(1) << (bits - 1))
			hi := int64(1)<<(bits-1) - 1
			if v < lo || v > hi {
				return 0, fmt.Errorf("value %d does not fit %d-bit two's complement", v, bits)
			}
		}
		return uint64(v) & Mask(bits), nil
	case dictionary.EncodingOnesComplement:
		if err := checkMagnitude(v, bits, "ones' complement"); err != nil {
			return 0, err
		}
		if v >= 0 {
			return uint64(v), nil
		}
		return ^uint64(-v) & Mask(bits), nil
	case dictionary.EncodingSignMagnitude:
		if err := checkMagnitude(v, bits, "sign-magnitude"); err != nil {
			return 0, err
		}
		if v >= 0 {
			return uint64(v), nil
		}
		return uint64(1)<<(bits-1) | uint64(-v), nil
	default:
		return 0, fmt.Errorf("encoding %s not valid for signed fields", enc)
	}
}

// DecodeInt recovers a signed integer from a raw pattern. Both negative
// zero forms decode to zero.
func DecodeInt(enc dictionary.NumberEncoding, raw uint64, bits uint32) (int64, error) {
	raw &= Mask(bits)
	sign := raw>>(bits-1) != 0
	switch enc {
	case dictionary.EncodingTwosComplement:
		return signExtend(raw, bits), nil
	case dictionary.EncodingOnesComplement:
		if !sign {
			return int64(raw), nil
		}
		return -int64(^raw & Mask(bits)), nil
	case dictionary.EncodingSignMagnitude:
		mag := raw & Mask(bits-1)
		if !sign {
			return int64(mag), nil
		}
		return -int64(mag), nil
	default:
		return 0, fmt.Errorf("encoding %s not valid for signed fields", enc)
	}
}

// EncodeFloat produces the raw pattern of a floating point value.
func EncodeFloat(enc dictionary.NumberEncoding, f float64, bits uint32) (uint64, error) {
	switch {
	case enc == dictionary.EncodingIEEE754 && bits == 32:
		return uint64(math.Float32bits(float32(f))), nil
	case enc == dictionary.EncodingIEEE754 && bits == 64:
		return math.Float64bits(f), nil
	case enc == dictionary.EncodingMILSTD1750A:
		return encode1750A(f, bits)
	default:
		return 0, fmt.Errorf("encoding %s not valid for %d-bit float fields", enc, bits)
	}
}

// DecodeFloat recovers a floating point value from a raw pattern.
func DecodeFloat(enc dictionary.NumberEncoding, raw uint64, bits uint32) (float64, error) {
	switch {
	case enc == dictionary.EncodingIEEE754 && bits == 32:
		return float64(math.Float32frombits(uint32(raw))), nil
	case enc == dictionary.EncodingIEEE754 && bits == 64:
		return math.Float64frombits(raw), nil
	case enc == dictionary.EncodingMILSTD1750A:
		return decode1750A(raw, bits)
	default:
		return 0, fmt.Errorf("encoding %s not valid for %d-bit float fields", enc, bits)
	}
}

func checkMagnitude(v int64, bits uint32, enc string) error {
	max := int64(Mask(bits - 1))
	if v > max || v < -max {
		return fmt.Errorf("value %d does not fit %d-bit %s", v, bits, enc)
	}
	return nil
}

func signExtend(raw uint64, bits uint32) int64 {
	if bits >= 64 {
		return int64(raw)
	}
	shift := 64 - bits
	return int64(raw<<shift) >> shift
}

// SwapBytes reverses the byte order of a raw pattern occupying bits/8
// bytes. bits must be a multiple of 8.
func SwapBytes(raw uint64, bits uint32) uint64 {
	var out uint64
	for i := uint32(0); i < bits/8; i++ {
		out = out<<8 | raw&0xFF
		raw >>= 8
	}
	return out
}

// encodeBCD writes one decimal digit per cell, most significant first.
// Cells are 8 bits wide for octet BCD and 4 for packed BCD.
func encodeBCD(v uint64, digits, cell uint32) (uint64, error) {
	if digits == 0 || digits*cell > 64 {
		return 0, fmt.Errorf("bcd field of %d digits not representable", digits)
	}
	var raw uint64
	for i := uint32(0); i < digits; i++ {
		raw |= (v % 10) << (i * cell)
		v /= 10
	}
	if v != 0 {
		return 0, fmt.Errorf("value does not fit %d bcd digits", digits)
	}
	return raw, nil
}

func decodeBCD(raw uint64, digits, cell uint32) (uint64, error) {
	var v uint64
	for i := digits; i > 0; i-- {
		d := (raw >> ((i - 1) * cell)) & Mask(cell)
		if d > 9 {
			return 0, fmt.Errorf("bcd digit %d out of range", d)
		}
		v = v*10 + d
	}
	return v, nil
}
