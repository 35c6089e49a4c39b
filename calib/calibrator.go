package calib

import (
	"fmt"
	"strings"

	"github.com/edsworks/eds-runtime/errors"
)

// Kind discriminates calibrator behavior
type Kind uint8

const (
	// KindNone passes values through unchanged.
	KindNone Kind = iota
	// KindPolynomial evaluates an integer polynomial over a common divisor.
	KindPolynomial
)

var kindNames = [...]string{
	KindNone:       "none",
	KindPolynomial: "polynomial",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Calibrator converts between raw wire counts and engineering counts using
// exact integer arithmetic. The zero value behaves like None().
//
// For KindPolynomial, Coeffs[i] multiplies x^i and the evaluated polynomial
// is divided by Divisor. Generated calibrators guarantee the division is
// exact for every in-domain raw value.
type Calibrator struct {
	Coeffs  []int64
	Divisor int64
	Kind    Kind
}

// None returns the identity calibrator.
func None() Calibrator {
	return Calibrator{Kind: KindNone, Divisor: 1}
}

// Polynomial builds a calibrator from integer coefficients over a common
// divisor. Coefficient i multiplies x^i.
func Polynomial(coeffs []int64, divisor int64) (Calibrator, error) {
	if len(coeffs) == 0 {
		return Calibrator{}, errors.InvalidInput(errors.PhaseCalibrate, "polynomial needs at least one coefficient")
	}
	if divisor < 1 {
		return Calibrator{}, errors.InvalidInput(errors.PhaseCalibrate, fmt.Sprintf("divisor %d must be positive", divisor))
	}
	c := Calibrator{Kind: KindPolynomial, Divisor: divisor}
	c.Coeffs = append(c.Coeffs, coeffs...)
	return c, nil
}

// Linear builds the first-order calibrator (c0 + c1*x) / divisor.
func Linear(c0, c1, divisor int64) (Calibrator, error) {
	return Polynomial([]int64{c0, c1}, divisor)
}

// Order returns the polynomial order, or -1 for a pass-through calibrator.
func (c Calibrator) Order() int {
	if c.Kind != KindPolynomial {
		return -1
	}
	return len(c.Coeffs) - 1
}

// IsIdentity reports whether Forward returns its input unchanged.
func (c Calibrator) IsIdentity() bool {
	switch c.Kind {
	case KindPolynomial:
		return len(c.Coeffs) == 2 && c.Coeffs[0] == 0 && c.Coeffs[1] == c.Divisor
	default:
		return true
	}
}

// Forward converts a raw count to the engineering quantity.
func (c Calibrator) Forward(raw int64) int64 {
	if c.Kind != KindPolynomial {
		return raw
	}
	acc := int64(0)
	for i := len(c.Coeffs) - 1; i >= 0; i-- {
		acc = acc*raw + c.Coeffs[i]
	}
	if c.Divisor > 1 {
		acc /= c.Divisor
	}
	return acc
}

// Reverse converts an engineering quantity back to the raw count. Only
// pass-through and first-order calibrators are invertible; the inversion
// must also be exact, since the result is written into a wire field.
func (c Calibrator) Reverse(eng int64) (int64, error) {
	if c.Kind != KindPolynomial {
		return eng, nil
	}
	if len(c.Coeffs) != 2 {
		return 0, errors.Unsupported(errors.PhaseCalibrate,
			fmt.Sprintf("reverse of order-%d polynomial", len(c.Coeffs)-1))
	}
	if c.Coeffs[1] == 0 {
		return 0, errors.Unsupported(errors.PhaseCalibrate, "reverse of constant polynomial")
	}
	num := eng*c.Divisor - c.Coeffs[0]
	if num%c.Coeffs[1] != 0 {
		return 0, errors.InvalidData(errors.PhaseCalibrate, nil,
			fmt.Sprintf("value %d has no exact raw representation", eng))
	}
	return num / c.Coeffs[1], nil
}

// String renders the polynomial for diagnostics, e.g. "(7 + 1x)/1".
func (c Calibrator) String() string {
	if c.Kind != KindPolynomial {
		return "none"
	}
	var b strings.Builder
	b.WriteByte('(')
	for i, coeff := range c.Coeffs {
		if i > 0 {
			b.WriteString(" + ")
		}
		fmt.Fprintf(&b, "%d", coeff)
		if i == 1 {
			b.WriteByte('x')
		} else if i > 1 {
			fmt.Fprintf(&b, "x^%d", i)
		}
	}
	fmt.Fprintf(&b, ")/%d", c.Divisor)
	return b.String()
}
