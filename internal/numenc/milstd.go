package numenc

import (
	"fmt"
	"math"
)

// MIL-STD-1750A layouts:
//
//	32-bit: mantissa[23..0] exponent[7..0]
//	48-bit: mantissa[39..16] exponent[7..0] mantissa[15..0]
//
// Mantissa and exponent are two's complement; the mantissa is a fraction
// normalized to 0.5 <= |m| < 1.0, with -1.0 representable exactly.

func encode1750A(f float64, bits uint32) (uint64, error) {
	if bits != 32 && bits != 48 {
		return 0, fmt.Errorf("mil-std-1750a width %d not supported", bits)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("value %v not representable in mil-std-1750a", f)
	}
	if f == 0 {
		return 0, nil
	}
	frac, exp := math.Frexp(f)
	if frac == -0.5 {
		frac, exp = -1.0, exp-1
	}
	if exp < -128 || exp > 127 {
		return 0, fmt.Errorf("exponent %d outside mil-std-1750a range", exp)
	}
	e := uint64(exp) & 0xFF
	if bits == 32 {
		man := int64(frac * (1 << 23))
		return (uint64(man)&0xFFFFFF)<<8 | e, nil
	}
	man := int64(frac * (1 << 39))
	hi := (uint64(man) >> 16) & 0xFFFFFF
	lo := uint64(man) & 0xFFFF
	return hi<<24 | e<<16 | lo, nil
}

func decode1750A(raw uint64, bits uint32) (float64, error) {
	switch bits {
	case 32:
		man := signExtend(raw>>8, 24)
		if man == 0 {
			return 0, nil
		}
		exp := int(signExtend(raw&0xFF, 8))
		return math.Ldexp(float64(man), exp-23), nil
	case 48:
		hi := (raw >> 24) & 0xFFFFFF
		lo := raw & 0xFFFF
		man := signExtend(hi<<16|lo, 40)
		if man == 0 {
			return 0, nil
		}
		exp := int(signExtend((raw>>16)&0xFF, 8))
		return math.Ldexp(float64(man), exp-39), nil
	default:
		return 0, fmt.Errorf("mil-std-1750a width %d not supported", bits)
	}
}
