package calib

import (
	"fmt"
	"math"

	"github.com/edsworks/eds-runtime/errors"
)

// Reduction limits. Coefficients carry at most six decimal digits of
// fractional precision, and the common divisor never exceeds maxDivisor
// after factor reduction.
const (
	maxFractionDigits = 6
	maxDivisor        = 100000000
)

// Reduce converts a float coefficient polynomial into the exact integer
// form the runtime evaluates. All coefficients are scaled by the same power
// of ten until every one is a whole number, then common factors of five and
// two are divided back out.
func Reduce(coeffs []float64) (Calibrator, error) {
	if len(coeffs) == 0 {
		return Calibrator{}, errors.InvalidInput(errors.PhaseCalibrate, "polynomial needs at least one coefficient")
	}

	scaled := make([]float64, len(coeffs))
	copy(scaled, coeffs)
	divisor := int64(1)

	for digits := 0; !allWhole(scaled); digits++ {
		if digits == maxFractionDigits {
			return Calibrator{}, errors.Unsupported(errors.PhaseCalibrate,
				fmt.Sprintf("coefficients need more than %d fractional digits", maxFractionDigits))
		}
		for i := range scaled {
			scaled[i] *= 10
		}
		divisor *= 10
	}

	ints := make([]int64, len(scaled))
	for i, v := range scaled {
		if math.Abs(v) >= 1<<53 {
			return Calibrator{}, errors.Overflow(errors.PhaseCalibrate, nil, coeffs[i], "int64 coefficient")
		}
		ints[i] = int64(v)
	}

	for _, factor := range []int64{5, 2} {
		for divisor%factor == 0 && allDivisible(ints, factor) {
			for i := range ints {
				ints[i] /= factor
			}
			divisor /= factor
		}
	}

	if divisor > maxDivisor {
		return Calibrator{}, errors.Overflow(errors.PhaseCalibrate, nil, divisor, "calibrator divisor")
	}

	return Calibrator{Kind: KindPolynomial, Coeffs: ints, Divisor: divisor}, nil
}

func allWhole(vals []float64) bool {
	for _, v := range vals {
		if v != math.Trunc(v) {
			return false
		}
	}
	return true
}

func allDivisible(vals []int64, factor int64) bool {
	for _, v := range vals {
		if v%factor != 0 {
			return false
		}
	}
	return true
}
