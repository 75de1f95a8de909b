package math_test

import (
	"errors"
	"math/big"
	"testing"

	pmath "PayRunway/internal/math"
)

// ============================================================================
// Test: DivRound
// ============================================================================

func TestDivRound_Modes(t *testing.T) {
	cases := []struct {
		name string
		a, b int64
		mode pmath.RoundingMode
		want int64
	}{
		{"floor positive", 7, 2, pmath.RoundFloor, 3},
		{"floor negative", -7, 2, pmath.RoundFloor, -4},
		{"ceil positive", 7, 2, pmath.RoundCeil, 4},
		{"ceil negative", -7, 2, pmath.RoundCeil, -3},
		{"trunc positive", 7, 2, pmath.RoundTrunc, 3},
		{"trunc negative", -7, 2, pmath.RoundTrunc, -3},
		{"half-up tie", 5, 2, pmath.RoundHalfUp, 3},
		{"half-up negative tie", -5, 2, pmath.RoundHalfUp, -3},
		{"half-down tie", 5, 2, pmath.RoundHalfDown, 2},
		{"half-down above tie", 8, 3, pmath.RoundHalfDown, 3},
		{"half-even tie to even down", 5, 2, pmath.RoundHalfEven, 2},
		{"half-even tie to even up", 7, 2, pmath.RoundHalfEven, 4},
		{"half-even below tie", 7, 3, pmath.RoundHalfEven, 2},
		{"exact", 6, 3, pmath.RoundCeil, 2},
		{"negative divisor", 7, -2, pmath.RoundFloor, -4},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := pmath.DivRound(big.NewInt(tc.a), big.NewInt(tc.b), tc.mode)
			if err != nil {
				t.Fatalf("DivRound failed: %v", err)
			}
			if got.Int64() != tc.want {
				t.Errorf("DivRound(%d, %d, %s): got %s, want %d", tc.a, tc.b, tc.mode, got, tc.want)
			}
		})
	}
}

func TestDivRound_DivisionByZero(t *testing.T) {
	_, err := pmath.DivRound(big.NewInt(1), big.NewInt(0), pmath.RoundFloor)
	if !errors.Is(err, pmath.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestDivRound_DoesNotMutateOperands(t *testing.T) {
	a := big.NewInt(10)
	b := big.NewInt(3)
	if _, err := pmath.DivRound(a, b, pmath.RoundHalfEven); err != nil {
		t.Fatal(err)
	}
	if a.Int64() != 10 || b.Int64() != 3 {
		t.Errorf("operands mutated: a=%s b=%s", a, b)
	}
}

func TestMulDiv_LargeOperands(t *testing.T) {
	// 10^30 * 10^30 / 10^40 = 10^20, far beyond int64 intermediates
	e30 := new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
	e40 := new(big.Int).Exp(big.NewInt(10), big.NewInt(40), nil)
	got, err := pmath.MulDiv(e30, e30, e40, pmath.RoundFloor)
	if err != nil {
		t.Fatal(err)
	}
	want := new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil)
	if got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestClampZero(t *testing.T) {
	if pmath.ClampZero(big.NewInt(-5)).Sign() != 0 {
		t.Error("negative should clamp to zero")
	}
	if pmath.ClampZero(big.NewInt(5)).Int64() != 5 {
		t.Error("positive should pass through")
	}
}
