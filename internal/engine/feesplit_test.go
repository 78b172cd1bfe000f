package engine

import (
	"testing"
	"testing/quick"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mystquest/settler/internal/domain"
)

func pct(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func defaultShares() []domain.SubPoolShare {
	return []domain.SubPoolShare{
		{Name: "leaderboard", Percent: pct("0.15")},
		{Name: "referral", Percent: pct("0.10")},
		{Name: "wheel", Percent: pct("0.05")},
		{Name: "treasury", Percent: pct("0.70")},
	}
}

func TestNewSplitConfig(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		sc, err := NewSplitConfig(defaultShares())
		require.NoError(t, err)
		assert.Equal(t, "treasury", sc.Last())
		assert.True(t, sc.Contains("wheel"))
		assert.False(t, sc.Contains("jackpot"))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := NewSplitConfig(nil)
		assert.ErrorIs(t, err, domain.ErrInvalidSplitConfig)
	})

	t.Run("sum not one", func(t *testing.T) {
		shares := defaultShares()
		shares[3].Percent = pct("0.69")
		_, err := NewSplitConfig(shares)
		assert.ErrorIs(t, err, domain.ErrInvalidSplitConfig)
	})

	t.Run("duplicate name", func(t *testing.T) {
		shares := defaultShares()
		shares[1].Name = "leaderboard"
		_, err := NewSplitConfig(shares)
		assert.ErrorIs(t, err, domain.ErrInvalidSplitConfig)
	})

	t.Run("non-positive percent", func(t *testing.T) {
		shares := []domain.SubPoolShare{
			{Name: "a", Percent: pct("1.10")},
			{Name: "b", Percent: pct("-0.10")},
		}
		_, err := NewSplitConfig(shares)
		assert.ErrorIs(t, err, domain.ErrInvalidSplitConfig)
	})

	t.Run("unnamed pool", func(t *testing.T) {
		_, err := NewSplitConfig([]domain.SubPoolShare{{Name: "", Percent: pct("1")}})
		assert.ErrorIs(t, err, domain.ErrInvalidSplitConfig)
	})
}

func TestDistributeWorkedSplit(t *testing.T) {
	sc, err := NewSplitConfig(defaultShares())
	require.NoError(t, err)

	// 10% fee on a 4000 losing pool = 400, split 15/10/5/70.
	shares, err := sc.Distribute(400)
	require.NoError(t, err)

	want := []domain.FeeShare{
		{SubPool: "leaderboard", Amount: 60},
		{SubPool: "referral", Amount: 40},
		{SubPool: "wheel", Amount: 20},
		{SubPool: "treasury", Amount: 280},
	}
	assert.Equal(t, want, shares)
	assert.Equal(t, int64(400), SumShares(shares))
}

func TestDistributeRoundingHostile(t *testing.T) {
	sc, err := NewSplitConfig(defaultShares())
	require.NoError(t, err)

	// One minor unit across four pools: the first three floor to zero and
	// the last absorbs the remainder.
	shares, err := sc.Distribute(1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), shares[0].Amount)
	assert.Equal(t, int64(0), shares[1].Amount)
	assert.Equal(t, int64(0), shares[2].Amount)
	assert.Equal(t, int64(1), shares[3].Amount)
}

func TestDistributeErrors(t *testing.T) {
	sc, err := NewSplitConfig(defaultShares())
	require.NoError(t, err)

	_, err = sc.Distribute(-1)
	assert.ErrorIs(t, err, domain.ErrInvalidFee)

	_, err = SplitConfig{}.Distribute(100)
	assert.ErrorIs(t, err, domain.ErrInvalidSplitConfig)
}

// Property: for any non-negative fee, the shares sum to the fee exactly and
// no share is negative.
func TestDistributeExactnessProperty(t *testing.T) {
	sc, err := NewSplitConfig([]domain.SubPoolShare{
		{Name: "leaderboard", Percent: pct("0.13")},
		{Name: "referral", Percent: pct("0.11")},
		{Name: "wheel", Percent: pct("0.07")},
		{Name: "treasury", Percent: pct("0.69")},
	})
	require.NoError(t, err)

	property := func(raw uint32) bool {
		fee := int64(raw)
		shares, err := sc.Distribute(fee)
		if err != nil {
			return false
		}
		for _, s := range shares {
			if s.Amount < 0 {
				return false
			}
		}
		return SumShares(shares) == fee
	}

	if err := quick.Check(property, &quick.Config{MaxCount: 500}); err != nil {
		t.Errorf("fee split exactness property failed: %v", err)
	}
}

// Distribute must be deterministic: identical inputs yield identical shares.
func TestDistributeDeterministic(t *testing.T) {
	sc, err := NewSplitConfig(defaultShares())
	require.NoError(t, err)

	a, err := sc.Distribute(12345)
	require.NoError(t, err)
	b, err := sc.Distribute(12345)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
