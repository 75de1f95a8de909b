package math

import (
	"fmt"
	stdmath "math"
	"math/big"
)

const (
	// MaxSafeInteger is the largest integer a float64 represents exactly (2^53 - 1).
	MaxSafeInteger int64 = 1<<53 - 1

	// MaxScale is the ceiling for the adaptive scale used by ScaleRatio and ScaleDecimal.
	MaxScale int64 = 10_000_000
)

var bigMaxSafe = big.NewInt(MaxSafeInteger)

// ScaleRatio represents num/den as scaled/scale where scale is the largest
// power of ten not above MaxScale that keeps scaled within MaxSafeInteger.
// scaled is rounded half-up. A zero numerator yields (0, 1).
func ScaleRatio(num, den *big.Int) (*big.Int, int64, error) {
	if num == nil || den == nil {
		return nil, 0, fmt.Errorf("scale ratio: nil operand: %w", ErrInvalidArgument)
	}
	if num.Sign() < 0 {
		return nil, 0, fmt.Errorf("scale ratio: negative numerator %s: %w", num, ErrInvalidArgument)
	}
	if den.Sign() <= 0 {
		return nil, 0, fmt.Errorf("scale ratio: non-positive denominator %s: %w", den, ErrInvalidArgument)
	}
	if num.Sign() == 0 {
		return new(big.Int), 1, nil
	}

	scaledNum := getBig()
	defer putBig(scaledNum)

	for scale := MaxScale; scale >= 1; scale /= 10 {
		scaledNum.Mul(num, big.NewInt(scale))
		scaled, err := DivRound(scaledNum, den, RoundHalfUp)
		if err != nil {
			return nil, 0, err
		}
		if scaled.Cmp(bigMaxSafe) <= 0 {
			return scaled, scale, nil
		}
	}

	return nil, 0, fmt.Errorf("scale ratio: %s/%s exceeds safe range: %w", num, den, ErrPrecisionLimit)
}

// ScaledToNumber converts scaled/scale to a float64.
func ScaledToNumber(scaled *big.Int, scale int64) (float64, error) {
	if scale <= 0 {
		return 0, fmt.Errorf("scaled to number: non-positive scale %d: %w", scale, ErrInvalidArgument)
	}
	if scaled == nil || scaled.Sign() < 0 {
		return 0, fmt.Errorf("scaled to number: negative or nil value: %w", ErrInvalidArgument)
	}
	if scaled.Cmp(bigMaxSafe) > 0 {
		return 0, fmt.Errorf("scaled to number: %s exceeds safe range: %w", scaled, ErrPrecisionLimit)
	}
	return float64(scaled.Int64()) / float64(scale), nil
}

// RatioToFloat returns num/den as a float64, failing rather than losing precision.
func RatioToFloat(num, den *big.Int) (float64, error) {
	scaled, scale, err := ScaleRatio(num, den)
	if err != nil {
		return 0, err
	}
	return ScaledToNumber(scaled, scale)
}

// RatioToFloatSafe is the best-effort variant of RatioToFloat: it reports
// false instead of an error.
func RatioToFloatSafe(num, den *big.Int) (float64, bool) {
	v, err := RatioToFloat(num, den)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Ratio reduces num/den to lowest terms. The returned denominator is positive.
func Ratio(num, den *big.Int) (*big.Int, *big.Int, error) {
	if num == nil || den == nil {
		return nil, nil, fmt.Errorf("ratio: nil operand: %w", ErrInvalidArgument)
	}
	if den.Sign() == 0 {
		return nil, nil, fmt.Errorf("ratio: zero denominator: %w", ErrInvalidArgument)
	}
	if num.Sign() == 0 {
		return new(big.Int), big.NewInt(1), nil
	}

	absNum := new(big.Int).Abs(num)
	absDen := new(big.Int).Abs(den)
	gcd := new(big.Int).GCD(nil, nil, absNum, absDen)

	p := new(big.Int).Quo(num, gcd)
	q := new(big.Int).Quo(den, gcd)
	if q.Sign() < 0 {
		p.Neg(p)
		q.Neg(q)
	}
	return p, q, nil
}

// ScaleDecimal turns a non-negative float into scaled/scale using the same
// adaptive ceiling as ScaleRatio, so fractional TiB or day counts can enter
// integer arithmetic.
func ScaleDecimal(x float64) (*big.Int, int64, error) {
	if stdmath.IsNaN(x) || stdmath.IsInf(x, 0) {
		return nil, 0, fmt.Errorf("scale decimal: %v is not finite: %w", x, ErrInvalidArgument)
	}
	if x < 0 {
		return nil, 0, fmt.Errorf("scale decimal: negative value %v: %w", x, ErrInvalidArgument)
	}
	if x == 0 {
		return new(big.Int), 1, nil
	}

	for scale := MaxScale; scale >= 1; scale /= 10 {
		v := stdmath.Round(x * float64(scale))
		if v <= float64(MaxSafeInteger) {
			return big.NewInt(int64(v)), scale, nil
		}
	}

	return nil, 0, fmt.Errorf("scale decimal: %v exceeds safe range: %w", x, ErrPrecisionLimit)
}
