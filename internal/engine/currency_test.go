package engine

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mystquest/settler/internal/domain"
)

func TestToMinorUnits(t *testing.T) {
	t.Run("whole MYST", func(t *testing.T) {
		v, err := ToMinorUnits(decimal.NewFromInt(40))
		require.NoError(t, err)
		assert.Equal(t, int64(4000), v)
	})

	t.Run("fractional MYST", func(t *testing.T) {
		v, err := ToMinorUnits(decimal.RequireFromString("12.34"))
		require.NoError(t, err)
		assert.Equal(t, int64(1234), v)
	})

	t.Run("zero", func(t *testing.T) {
		v, err := ToMinorUnits(decimal.Zero)
		require.NoError(t, err)
		assert.Equal(t, int64(0), v)
	})

	t.Run("negative rejected", func(t *testing.T) {
		_, err := ToMinorUnits(decimal.NewFromInt(-1))
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("sub-minor-unit precision rejected", func(t *testing.T) {
		_, err := ToMinorUnits(decimal.RequireFromString("0.001"))
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("overflow rejected", func(t *testing.T) {
		_, err := ToMinorUnits(decimal.NewFromInt(MaxMinorUnits))
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("10.00")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v)

	_, err = ParseAmount("not-a-number")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = ParseAmount("-5")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestFromMinorUnitsRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, 99, 100, 1234, 4000, 999_999_999} {
		s := FromMinorUnits(v)
		back, err := ParseAmount(s)
		require.NoError(t, err, "round trip of %d via %q", v, s)
		assert.Equal(t, v, back)
	}

	assert.Equal(t, "12.34", FromMinorUnits(1234))
	assert.Equal(t, "0.01", FromMinorUnits(1))
}

func TestFiatValue(t *testing.T) {
	// 100.00 MYST at 0.01 fiat per MYST.
	rate := decimal.RequireFromString("0.01")
	assert.Equal(t, "1.00", FiatValue(10000, rate))
}

func TestErrorsAreSentinels(t *testing.T) {
	_, err := ParseAmount("-1")
	assert.True(t, errors.Is(err, domain.ErrInvalidAmount))
}
