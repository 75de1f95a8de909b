package math

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	// TokenDecimals is the fixed-point precision of on-chain token amounts.
	TokenDecimals = 18

	TiBInBytes int64 = 1 << 40 // 1024^4
	GiBInBytes int64 = 1 << 30
	MiBInBytes int64 = 1 << 20
)

var BigTiB = big.NewInt(TiBInBytes)

// ParseAmount parses a base-10 integer string of token base units.
// Amounts cross process boundaries only in this form.
func ParseAmount(s string) (*big.Int, error) {
	if !isDigits(s) {
		return nil, fmt.Errorf("parse amount %q: not a non-negative base-10 integer: %w", s, ErrInvalidArgument)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse amount %q: %w", s, ErrInvalidArgument)
	}
	return v, nil
}

// ParseSignedAmount is ParseAmount allowing a leading minus sign (plan deltas).
func ParseSignedAmount(s string) (*big.Int, error) {
	negative := strings.HasPrefix(s, "-")
	v, err := ParseAmount(strings.TrimPrefix(s, "-"))
	if err != nil {
		return nil, err
	}
	if negative {
		v.Neg(v)
	}
	return v, nil
}

// ParseUnits converts a decimal display string such as "12.34" into base
// units with the given number of fractional digits.
func ParseUnits(s string, decimals int) (*big.Int, error) {
	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("parse units %q: no digits: %w", s, ErrInvalidArgument)
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (hasDot && frac != "" && !isDigits(frac)) {
		return nil, fmt.Errorf("parse units %q: %w", s, ErrInvalidArgument)
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("parse units %q: more than %d fractional digits: %w", s, decimals, ErrInvalidArgument)
	}

	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("parse units %q: %w", s, ErrInvalidArgument)
	}
	return v, nil
}

// MustParseUnits panics on malformed input. Intended for constants.
func MustParseUnits(s string, decimals int) *big.Int {
	v, err := ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatUnits renders base units as a decimal string truncated to places
// fractional digits. places < 0 keeps full precision with trailing zeros trimmed.
func FormatUnits(amount *big.Int, decimals int, places int) string {
	if amount == nil {
		return "0"
	}
	if decimals <= 0 {
		return amount.String()
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	abs := new(big.Int).Abs(amount)
	whole, rem := new(big.Int).QuoRem(abs, divisor, new(big.Int))

	frac := rem.String()
	frac = strings.Repeat("0", decimals-len(frac)) + frac
	if places >= 0 && places < len(frac) {
		frac = frac[:places]
	}
	if places < 0 {
		frac = strings.TrimRight(frac, "0")
	}

	out := whole.String()
	if frac != "" {
		out += "." + frac
	}
	if amount.Sign() < 0 {
		out = "-" + out
	}
	return out
}

// FormatTokens renders a token amount with two fractional digits.
func FormatTokens(amount *big.Int) string {
	return FormatUnits(amount, TokenDecimals, 2)
}

// ParseSize parses human-readable sizes like "1TiB", "500GiB" or "1.5TiB" into bytes.
func ParseSize(s string) (*big.Int, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return nil, fmt.Errorf("invalid size %q (expected e.g. 1TiB, 500GiB): %v: %w", s, err, ErrInvalidArgument)
	}
	return new(big.Int).SetUint64(n), nil
}

// FormatSize formats bytes in IEC units (KiB, MiB, GiB, TiB).
func FormatSize(bytes *big.Int) string {
	if bytes == nil || bytes.Sign() == 0 {
		return "0 B"
	}
	if !bytes.IsUint64() {
		return bytes.String() + " B"
	}
	return humanize.IBytes(bytes.Uint64())
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
