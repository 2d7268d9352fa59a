package round

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordpot/engine/pkg/model"
)

func defaultRules() PayoutRules {
	return PayoutRules{
		WinnerBps:   8000,
		ReferrerBps: 1000,
		TopBps:      1000,
		TopWeights:  []int{19, 16, 14, 11, 10, 6, 6, 6, 6, 6},
		SeedCap:     uint256.NewInt(0),
	}
}

func amountByRole(t *testing.T, payouts []*model.Payout, role model.PayoutRole) string {
	t.Helper()
	for _, p := range payouts {
		if p.Role == role {
			return p.AmountWei
		}
	}
	t.Fatalf("no payout with role %s", role)
	return ""
}

func topAmounts(payouts []*model.Payout) []string {
	out := make([]string, 0)
	for _, p := range payouts {
		if p.Role == model.RoleTopGuesser {
			out = append(out, p.AmountWei)
		}
	}
	return out
}

func rankedAccounts(n int) []RankedGuesser {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	out := make([]RankedGuesser, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, RankedGuesser{
			Account:      int64(100 + i),
			Volume:       n - i,
			FirstGuessAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func TestComputeSplitMillionWei(t *testing.T) {
	ref := int64(2)
	split, err := ComputeSplit("r1", uint256.NewInt(1_000_000), 1, &ref, rankedAccounts(10), defaultRules())
	require.NoError(t, err)

	assert.Equal(t, "800000", amountByRole(t, split.Payouts, model.RoleWinner))
	assert.Equal(t, "100000", amountByRole(t, split.Payouts, model.RoleReferrer))

	assert.Equal(t, []string{
		"19000", "16000", "14000", "11000", "10000",
		"6000", "6000", "6000", "6000", "6000",
	}, topAmounts(split.Payouts))

	assert.True(t, split.SeedWei.IsZero())
	assert.True(t, split.ReserveOverflowWei.IsZero())
}

func TestComputeSplitRenormalizesToQualifiers(t *testing.T) {
	ref := int64(2)
	split, err := ComputeSplit("r1", uint256.NewInt(1_000_000), 1, &ref, rankedAccounts(4), defaultRules())
	require.NoError(t, err)

	// weights 19/16/14/11 renormalize over sum 60; dust lands on first place
	assert.Equal(t, []string{"31668", "26666", "23333", "18333"}, topAmounts(split.Payouts))
}

func TestComputeSplitNoQualifiersSeedsPool(t *testing.T) {
	ref := int64(2)
	split, err := ComputeSplit("r1", uint256.NewInt(1_000_000), 1, &ref, nil, defaultRules())
	require.NoError(t, err)

	assert.Empty(t, topAmounts(split.Payouts))
	assert.Equal(t, "100000", split.SeedWei.Dec())
	assert.Equal(t, "100000", amountByRole(t, split.Payouts, model.RoleSeed))
}

func TestComputeSplitMissingReferrerSeedsUncapped(t *testing.T) {
	split, err := ComputeSplit("r1", uint256.NewInt(1_000_000), 1, nil, rankedAccounts(10), defaultRules())
	require.NoError(t, err)

	for _, p := range split.Payouts {
		assert.NotEqual(t, model.RoleReferrer, p.Role)
	}
	assert.Equal(t, "100000", split.SeedWei.Dec())
	assert.True(t, split.ReserveOverflowWei.IsZero())
}

func TestComputeSplitMissingReferrerRespectsSeedCap(t *testing.T) {
	rules := defaultRules()
	rules.SeedCap = uint256.NewInt(60_000)

	split, err := ComputeSplit("r1", uint256.NewInt(1_000_000), 1, nil, rankedAccounts(10), rules)
	require.NoError(t, err)

	assert.Equal(t, "60000", split.SeedWei.Dec())
	assert.Equal(t, "40000", split.ReserveOverflowWei.Dec())
}

func TestComputeSplitDivisionDustGoesToWinner(t *testing.T) {
	ref := int64(2)
	// 1,000,003 wei: each 10% share truncates, remainder lands on the winner
	split, err := ComputeSplit("r1", uint256.NewInt(1_000_003), 1, &ref, rankedAccounts(10), defaultRules())
	require.NoError(t, err)

	assert.Equal(t, "800003", amountByRole(t, split.Payouts, model.RoleWinner))
	assert.Equal(t, "100000", amountByRole(t, split.Payouts, model.RoleReferrer))
}

func TestComputeSplitAlwaysReconciles(t *testing.T) {
	jackpots := []uint64{1, 7, 999, 1_000_000, 1_000_003, 123_456_789}
	refs := []*int64{nil, ptr(int64(2))}
	for _, j := range jackpots {
		for _, ref := range refs {
			for _, n := range []int{0, 1, 4, 10} {
				split, err := ComputeSplit("r1", uint256.NewInt(j), 1, ref, rankedAccounts(n), defaultRules())
				require.NoError(t, err, "jackpot=%d n=%d", j, n)

				sum := new(uint256.Int).Set(split.ReserveOverflowWei)
				for _, p := range split.Payouts {
					v, err := uint256.FromDecimal(p.AmountWei)
					require.NoError(t, err)
					sum.Add(sum, v)
				}
				assert.Equal(t, j, sum.Uint64(), "jackpot=%d n=%d ref=%v", j, n, ref)
			}
		}
	}
}

func TestComputeSplitRejectsBadShareSum(t *testing.T) {
	rules := defaultRules()
	rules.WinnerBps = 5000

	_, err := ComputeSplit("r1", uint256.NewInt(100), 1, nil, nil, rules)
	require.Error(t, err)
}

func TestComputeSplitCreatorShare(t *testing.T) {
	rules := defaultRules()
	rules.WinnerBps = 7500
	rules.CreatorBps = 500
	rules.CreatorAccount = ptr(int64(999))
	ref := int64(2)

	split, err := ComputeSplit("r1", uint256.NewInt(1_000_000), 1, &ref, rankedAccounts(10), rules)
	require.NoError(t, err)

	assert.Equal(t, "750000", amountByRole(t, split.Payouts, model.RoleWinner))
	assert.Equal(t, "50000", amountByRole(t, split.Payouts, model.RoleCreator))
}

func TestRankTopGuessers(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	g := func(account int64, word string, seq int64, paid bool, at time.Time) *model.Guess {
		return &model.Guess{AccountID: account, Word: word, Seq: seq, Paid: paid, GuessedAt: at}
	}

	guesses := []*model.Guess{
		g(1, "APPLE", 1, true, base),                     // winner, excluded
		g(2, "BEACH", 2, true, base.Add(time.Second)),    // vol 2
		g(2, "CANDY", 3, true, base.Add(2*time.Second)),  //
		g(3, "DAISY", 4, true, base.Add(3*time.Second)),  // vol 2, later first guess
		g(3, "EAGLE", 5, true, base.Add(4*time.Second)),  //
		g(4, "FABLE", 6, false, base.Add(5*time.Second)), // free, never ranks
		g(5, "GHOST", 7, true, base.Add(6*time.Second)),  // vol 1
	}

	ranked := RankTopGuessers(guesses, 1, 0, 10)
	require.Len(t, ranked, 3)
	// volume desc, then first paid guess asc
	assert.Equal(t, int64(2), ranked[0].Account)
	assert.Equal(t, int64(3), ranked[1].Account)
	assert.Equal(t, int64(5), ranked[2].Account)
}

func TestRankTopGuessersHonorsLock(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	guesses := []*model.Guess{
		{AccountID: 2, Word: "BEACH", Seq: 1, Paid: true, GuessedAt: base},
		{AccountID: 3, Word: "CANDY", Seq: 2, Paid: true, GuessedAt: base},
		{AccountID: 3, Word: "DAISY", Seq: 3, Paid: true, GuessedAt: base}, // past the lock
	}

	ranked := RankTopGuessers(guesses, 1, 2, 10)
	require.Len(t, ranked, 2)
	// account 3's second guess does not count, so the earlier account wins the tie
	assert.Equal(t, int64(2), ranked[0].Account)
	assert.Equal(t, 1, ranked[0].Volume)
	assert.Equal(t, 1, ranked[1].Volume)
}

func TestRankTopGuessersDeterministicTieBreak(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	guesses := []*model.Guess{
		{AccountID: 9, Word: "BEACH", Seq: 1, Paid: true, GuessedAt: base},
		{AccountID: 4, Word: "CANDY", Seq: 2, Paid: true, GuessedAt: base},
	}

	ranked := RankTopGuessers(guesses, 1, 0, 10)
	require.Len(t, ranked, 2)
	assert.Equal(t, int64(4), ranked[0].Account)
}

func ptr[T any](v T) *T { return &v }
