package calib

import (
	"testing"

	"github.com/edsworks/eds-runtime/errors"
)

func TestReduce(t *testing.T) {
	tests := []struct {
		name    string
		coeffs  []float64
		want    []int64
		divisor int64
	}{
		{"already whole", []float64{7, 1}, []int64{7, 1}, 1},
		{"halves and quarters", []float64{0.5, 0.25}, []int64{2, 1}, 4},
		{"tenth", []float64{0.1}, []int64{1}, 10},
		{"fifth", []float64{0.2}, []int64{1}, 5},
		{"mixed sign", []float64{-1.5, 2}, []int64{-3, 4}, 2},
		{"binary fraction", []float64{0.015625}, []int64{1}, 64},
		{"common factor collapses", []float64{2.5, 5}, []int64{5, 10}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Reduce(tt.coeffs)
			if err != nil {
				t.Fatalf("Reduce(%v) error: %v", tt.coeffs, err)
			}
			if c.Divisor != tt.divisor {
				t.Errorf("Divisor = %d, want %d", c.Divisor, tt.divisor)
			}
			if len(c.Coeffs) != len(tt.want) {
				t.Fatalf("Coeffs = %v, want %v", c.Coeffs, tt.want)
			}
			for i := range tt.want {
				if c.Coeffs[i] != tt.want[i] {
					t.Errorf("Coeffs[%d] = %d, want %d", i, c.Coeffs[i], tt.want[i])
				}
			}
		})
	}
}

func TestReduceRejectsDeepFractions(t *testing.T) {
	_, err := Reduce([]float64{1.00000001})
	if err == nil {
		t.Fatal("expected error for coefficient needing more than six digits")
	}
	if !errors.IsKind(err, errors.KindUnsupported) {
		t.Errorf("error kind = %v, want unsupported", err)
	}

	if _, err := Reduce(nil); err == nil {
		t.Error("expected error for empty coefficient list")
	}
}

func TestForward(t *testing.T) {
	ccsdsLength, err := Linear(7, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	halfQuarter, err := Reduce([]float64{0.5, 0.25})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		c    Calibrator
		raw  int64
		want int64
	}{
		{"none passthrough", None(), 42, 42},
		{"zero value passthrough", Calibrator{}, -9, -9},
		{"ccsds length", ccsdsLength, 1, 8},
		{"ccsds length zero", ccsdsLength, 0, 7},
		{"fractional exact", halfQuarter, 2, 1},
		{"fractional exact larger", halfQuarter, 6, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Forward(tt.raw); got != tt.want {
				t.Errorf("Forward(%d) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestReverse(t *testing.T) {
	ccsdsLength, err := Linear(7, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	raw, err := ccsdsLength.Reverse(8)
	if err != nil {
		t.Fatalf("Reverse error: %v", err)
	}
	if raw != 1 {
		t.Errorf("Reverse(8) = %d, want 1", raw)
	}

	if raw, err := None().Reverse(13); err != nil || raw != 13 {
		t.Errorf("None().Reverse(13) = %d, %v; want 13, nil", raw, err)
	}
}

func TestReverseRoundTrip(t *testing.T) {
	// Reverse(Forward(x)) == x wherever the forward division is exact.
	c, err := Reduce([]float64{0.5, 0.25})
	if err != nil {
		t.Fatal(err)
	}
	for _, x := range []int64{2, 6, 10, 14, 98} {
		eng := c.Forward(x)
		back, err := c.Reverse(eng)
		if err != nil {
			t.Fatalf("Reverse(%d) error: %v", eng, err)
		}
		if back != x {
			t.Errorf("Reverse(Forward(%d)) = %d, want %d", x, back, x)
		}
	}
}

func TestReverseErrors(t *testing.T) {
	t.Run("inexact", func(t *testing.T) {
		c, err := Linear(0, 3, 1)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := c.Reverse(7); err == nil {
			t.Error("expected error for value with no exact raw representation")
		}
	})

	t.Run("order two", func(t *testing.T) {
		c, err := Polynomial([]int64{0, 0, 1}, 1)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := c.Reverse(4); err == nil {
			t.Error("expected unsupported error for order-2 reverse")
		}
	})

	t.Run("constant", func(t *testing.T) {
		c, err := Linear(5, 0, 1)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := c.Reverse(5); err == nil {
			t.Error("expected unsupported error for constant reverse")
		}
	})
}

func TestIsIdentity(t *testing.T) {
	if !None().IsIdentity() {
		t.Error("None should be identity")
	}
	id, err := Linear(0, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !id.IsIdentity() {
		t.Error("(0 + 1x)/1 should be identity")
	}
	shift, err := Linear(7, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if shift.IsIdentity() {
		t.Error("(7 + 1x)/1 should not be identity")
	}
}

func TestPolynomialValidation(t *testing.T) {
	if _, err := Polynomial(nil, 1); err == nil {
		t.Error("expected error for empty coefficients")
	}
	if _, err := Polynomial([]int64{1}, 0); err == nil {
		t.Error("expected error for zero divisor")
	}
}
