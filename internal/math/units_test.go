package math_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pmath "PayRunway/internal/math"
)

func TestParseAmount(t *testing.T) {
	v, err := pmath.ParseAmount("123456789012345678901234567890")
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", v.String())

	for _, bad := range []string{"", "-1", "1.5", "1e18", " 1", "0x10"} {
		_, err := pmath.ParseAmount(bad)
		assert.ErrorIs(t, err, pmath.ErrInvalidArgument, "input %q", bad)
	}
}

func TestParseSignedAmount(t *testing.T) {
	v, err := pmath.ParseSignedAmount("-42")
	require.NoError(t, err)
	assert.Equal(t, int64(-42), v.Int64())

	_, err = pmath.ParseSignedAmount("--42")
	assert.Error(t, err)
}

func TestParseUnits(t *testing.T) {
	v, err := pmath.ParseUnits("0.06", 18)
	require.NoError(t, err)
	assert.Equal(t, "60000000000000000", v.String())

	v, err = pmath.ParseUnits("12", 18)
	require.NoError(t, err)
	assert.Equal(t, "12000000000000000000", v.String())

	_, err = pmath.ParseUnits("1.0000000000000000001", 18)
	assert.ErrorIs(t, err, pmath.ErrInvalidArgument)

	_, err = pmath.ParseUnits("abc", 18)
	assert.ErrorIs(t, err, pmath.ErrInvalidArgument)

	for _, empty := range []string{"", "."} {
		_, err = pmath.ParseUnits(empty, 18)
		assert.ErrorIs(t, err, pmath.ErrInvalidArgument, "%q has no digits", empty)
	}

	v, err = pmath.ParseUnits(".5", 1)
	require.NoError(t, err)
	assert.Equal(t, "5", v.String())

	v, err = pmath.ParseUnits("5.", 1)
	require.NoError(t, err)
	assert.Equal(t, "50", v.String())
}

func TestFormatUnits(t *testing.T) {
	amount := pmath.MustParseUnits("12.3456", 18)
	assert.Equal(t, "12.34", pmath.FormatUnits(amount, 18, 2))
	assert.Equal(t, "12.3456", pmath.FormatUnits(amount, 18, -1))
	assert.Equal(t, "-12.34", pmath.FormatUnits(new(big.Int).Neg(amount), 18, 2))
	assert.Equal(t, "0.00", pmath.FormatTokens(big.NewInt(0)))
	assert.Equal(t, "7", pmath.FormatUnits(big.NewInt(7), 0, 2))
}

func TestParseAndFormatSize(t *testing.T) {
	v, err := pmath.ParseSize("1TiB")
	require.NoError(t, err)
	assert.Equal(t, pmath.TiBInBytes, v.Int64())

	v, err = pmath.ParseSize("1KiB")
	require.NoError(t, err)
	assert.Equal(t, int64(1024), v.Int64())

	_, err = pmath.ParseSize("lots")
	assert.Error(t, err)

	assert.Equal(t, "1.0 TiB", pmath.FormatSize(pmath.BigTiB))
	assert.Equal(t, "0 B", pmath.FormatSize(nil))
}
