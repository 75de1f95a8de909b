package math

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

var (
	// ErrInvalidArgument is returned for negative amounts, zero denominators,
	// non-positive scales and other programming errors.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPrecisionLimit is returned when a ratio cannot be represented as a
	// float64 without leaving the safe-integer range.
	ErrPrecisionLimit = errors.New("precision limit exceeded")
)

// RoundingMode selects how DivRound resolves a non-zero remainder.
type RoundingMode int

const (
	RoundFloor    RoundingMode = iota // toward -inf
	RoundCeil                         // toward +inf
	RoundTrunc                        // toward zero
	RoundHalfUp                       // nearest, ties away from zero
	RoundHalfDown                     // nearest, ties toward zero
	RoundHalfEven                     // nearest, ties to even (banker's)
)

func (m RoundingMode) String() string {
	switch m {
	case RoundFloor:
		return "floor"
	case RoundCeil:
		return "ceil"
	case RoundTrunc:
		return "trunc"
	case RoundHalfUp:
		return "half-up"
	case RoundHalfDown:
		return "half-down"
	case RoundHalfEven:
		return "half-even"
	default:
		return "unknown"
	}
}

// bigPool holds scratch big.Ints for intermediate calculations
var bigPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getBig() *big.Int {
	return bigPool.Get().(*big.Int)
}

func putBig(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	bigPool.Put(v)
}

var (
	bigZero = big.NewInt(0)
	bigOne  = big.NewInt(1)
	bigTwo  = big.NewInt(2)
)

// DivRound computes a / b with an explicit rounding policy.
// Both operands may be negative; b must be non-zero.
func DivRound(a, b *big.Int, mode RoundingMode) (*big.Int, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("div round: nil operand: %w", ErrInvalidArgument)
	}
	if b.Sign() == 0 {
		return nil, fmt.Errorf("div round: division by zero: %w", ErrInvalidArgument)
	}

	quotient := new(big.Int)
	remainder := getBig()
	defer putBig(remainder)

	// QuoRem truncates toward zero
	quotient.QuoRem(a, b, remainder)
	if remainder.Sign() == 0 {
		return quotient, nil
	}

	// Sign of the exact (unrounded) result
	negative := (a.Sign() < 0) != (b.Sign() < 0)

	awayFromZero := false
	switch mode {
	case RoundTrunc:
		awayFromZero = false
	case RoundFloor:
		awayFromZero = negative
	case RoundCeil:
		awayFromZero = !negative
	case RoundHalfUp, RoundHalfDown, RoundHalfEven:
		// Compare 2*|r| against |b|
		twiceRem := getBig()
		absB := getBig()
		defer putBig(twiceRem)
		defer putBig(absB)

		twiceRem.Abs(remainder)
		twiceRem.Mul(twiceRem, bigTwo)
		absB.Abs(b)

		cmp := twiceRem.Cmp(absB)
		switch {
		case cmp > 0:
			awayFromZero = true
		case cmp < 0:
			awayFromZero = false
		case mode == RoundHalfUp:
			awayFromZero = true
		case mode == RoundHalfDown:
			awayFromZero = false
		default:
			// Tie under half-even: round to the even neighbour
			awayFromZero = quotient.Bit(0) == 1
		}
	default:
		return nil, fmt.Errorf("div round: unknown rounding mode %d: %w", mode, ErrInvalidArgument)
	}

	if awayFromZero {
		if negative {
			quotient.Sub(quotient, bigOne)
		} else {
			quotient.Add(quotient, bigOne)
		}
	}

	return quotient, nil
}

// MustDivRound is DivRound for operands already validated by the caller.
// It panics on a zero divisor.
func MustDivRound(a, b *big.Int, mode RoundingMode) *big.Int {
	q, err := DivRound(a, b, mode)
	if err != nil {
		panic(err)
	}
	return q
}

// MulDiv computes a * b / c with the given rounding, holding the product in a
// pooled intermediate.
func MulDiv(a, b, c *big.Int, mode RoundingMode) (*big.Int, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("mul div: nil operand: %w", ErrInvalidArgument)
	}
	product := getBig()
	defer putBig(product)

	product.Mul(a, b)
	return DivRound(product, c, mode)
}

// Max returns a copy of the larger of a and b.
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// ClampZero returns a copy of v, or zero when v is negative.
func ClampZero(v *big.Int) *big.Int {
	if v.Sign() < 0 {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// Copy returns an independent copy; nil becomes zero.
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// IsZero reports whether v is nil or zero.
func IsZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}
