package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordpot/engine/internal/store"
)

func testLedger() *Ledger {
	return New(store.NewMemory(), Config{
		BaseDaily:         2,
		ShareBonusCredits: 3,
		PackSize:          10,
		DailyPackCap:      5,
	})
}

const day = "2026-08-25"

func TestDay(t *testing.T) {
	// 23:30 in UTC-5 is the next day in UTC
	loc := time.FixedZone("UTC-5", -5*3600)
	at := time.Date(2026, 8, 25, 23, 30, 0, 0, loc)
	assert.Equal(t, "2026-08-26", Day(at))
}

func TestConsumeFreeBeforePaid(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	_, err := l.AwardPack(ctx, 1, day, "r1", 1)
	require.NoError(t, err)

	// 2 free credits go first
	for i := 0; i < 2; i++ {
		kind, st, err := l.ConsumeOneCredit(ctx, 1, day)
		require.NoError(t, err)
		assert.Equal(t, CreditFree, kind)
		assert.Equal(t, i+1, st.FreeUsed)
		assert.Equal(t, 10, st.PaidCredits)
	}

	kind, st, err := l.ConsumeOneCredit(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, CreditPaid, kind)
	assert.Equal(t, 9, st.PaidCredits)
}

func TestConsumeExhausted(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, err := l.ConsumeOneCredit(ctx, 1, day)
		require.NoError(t, err)
	}

	_, _, err := l.ConsumeOneCredit(ctx, 1, day)
	require.ErrorIs(t, err, ErrNoCreditsRemaining)

	// the failed consume did not touch the counters
	st, err := l.GetOrCreate(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, 2, st.FreeUsed)
	assert.Equal(t, 0, st.PaidCredits)
}

func TestFreshDayFreshAllowance(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, err := l.ConsumeOneCredit(ctx, 1, day)
		require.NoError(t, err)
	}
	_, _, err := l.ConsumeOneCredit(ctx, 1, day)
	require.ErrorIs(t, err, ErrNoCreditsRemaining)

	kind, _, err := l.ConsumeOneCredit(ctx, 1, "2026-08-26")
	require.NoError(t, err)
	assert.Equal(t, CreditFree, kind)
}

func TestAwardPackCap(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	st, err := l.AwardPack(ctx, 1, day, "r1", 5)
	require.NoError(t, err)
	assert.Equal(t, 50, st.PaidCredits)
	assert.Equal(t, 5, st.PacksPurchased)

	_, err = l.AwardPack(ctx, 1, day, "r1", 1)
	require.ErrorIs(t, err, ErrPackLimitReached)
}

func TestAwardPackUnlimitedWhenCapZero(t *testing.T) {
	l := New(store.NewMemory(), Config{BaseDaily: 2, PackSize: 10, DailyPackCap: 0})
	ctx := context.Background()

	_, err := l.AwardPack(ctx, 1, day, "r1", 100)
	require.NoError(t, err)
}

func TestPacksInRoundResetsOnNewRound(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	_, err := l.AwardPack(ctx, 1, day, "r1", 3)
	require.NoError(t, err)

	n, err := l.PacksInRound(ctx, 1, day, "r1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// same day, next round: the volume counter starts over
	n, err = l.PacksInRound(ctx, 1, day, "r2")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	st, err := l.AwardPack(ctx, 1, day, "r2", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, st.PacksInRound)
	assert.Equal(t, 4, st.PacksPurchased, "daily cap counter keeps counting across rounds")
}

func TestPacksInRoundUnknownAccount(t *testing.T) {
	l := testLedger()
	n, err := l.PacksInRound(context.Background(), 42, day, "r1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestShareBonusOncePerDay(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	st, err := l.AwardShareBonus(ctx, 1, day)
	require.NoError(t, err)
	assert.Equal(t, 3, st.ShareBonus)
	assert.True(t, st.HasShared)

	_, err = l.AwardShareBonus(ctx, 1, day)
	require.ErrorIs(t, err, ErrShareAlreadyAwarded)

	// bonus extends the free pool: 2 base + 3 share
	for i := 0; i < 5; i++ {
		kind, _, err := l.ConsumeOneCredit(ctx, 1, day)
		require.NoError(t, err)
		assert.Equal(t, CreditFree, kind)
	}
	_, _, err = l.ConsumeOneCredit(ctx, 1, day)
	require.ErrorIs(t, err, ErrNoCreditsRemaining)
}

func TestHolderTierUpgradeOnly(t *testing.T) {
	l := testLedger()
	ctx := context.Background()

	st, err := l.UpgradeHolderTier(ctx, 1, day, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, st.HolderBonus)

	// a market-cap dip never claws back credits within the day
	st, err = l.UpgradeHolderTier(ctx, 1, day, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, st.HolderBonus)

	st, err = l.UpgradeHolderTier(ctx, 1, day, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, st.HolderBonus)
}
