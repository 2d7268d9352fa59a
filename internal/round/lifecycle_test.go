package round

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordpot/engine/internal/commitment"
	"github.com/wordpot/engine/internal/core"
	"github.com/wordpot/engine/internal/events"
	"github.com/wordpot/engine/internal/settlement"
	"github.com/wordpot/engine/internal/store"
	"github.com/wordpot/engine/pkg/model"
	"github.com/wordpot/engine/pkg/wordlist"
)

type staticReferrers map[int64]int64

func (s staticReferrers) Referrer(_ context.Context, account int64) (*int64, error) {
	if ref, ok := s[account]; ok {
		return &ref, nil
	}
	return nil, nil
}

type lifecycleFixture struct {
	store *store.Memory
	queue *settlement.MemoryQueue
	lc    *Lifecycle
}

func newFixture(t *testing.T, refs ReferrerLookup) *lifecycleFixture {
	t.Helper()
	cm, err := commitment.NewManager(make([]byte, 32))
	require.NoError(t, err)

	st := store.NewMemory()
	q := settlement.NewMemoryQueue(16)
	lc := NewLifecycle(
		st, cm, wordlist.Default(), q, events.Nop{}, refs,
		defaultRules(),
		core.WordsConfig{BonusCount: 2, BurnCount: 1, BonusRewardWei: "100", BurnAmountWei: "50"},
		"v1",
	)
	return &lifecycleFixture{store: st, queue: q, lc: lc}
}

func TestOpenCreatesFullyCommittedRound(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rd, err := f.lc.Open(ctx, OpenParams{JackpotWei: uint256.NewInt(1_000_000)})
	require.NoError(t, err)
	assert.Equal(t, model.RoundStatusActive, rd.Status)
	assert.Equal(t, "1000000", rd.JackpotWei)
	assert.NotEmpty(t, rd.SecretHash)
	assert.NotEmpty(t, rd.SecretCiphertext)

	// secret + 2 bonus + 1 burn, all committed before the round went live
	cs, err := f.store.CommitmentsByRound(ctx, rd.ID)
	require.NoError(t, err)
	require.Len(t, cs, 4)
	assert.Equal(t, model.FamilySecret, cs[0].Family)

	hidden, err := f.store.HiddenWordsByRound(ctx, rd.ID, false)
	require.NoError(t, err)
	require.Len(t, hidden, 3)
	assert.Equal(t, model.HiddenKindBonus, hidden[0].Kind)
	assert.Equal(t, "100", hidden[0].AmountWei)
	assert.Equal(t, model.HiddenKindBurn, hidden[2].Kind)
	assert.Equal(t, "50", hidden[2].AmountWei)
}

func TestOpenRejectsSecondActiveRound(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.lc.Open(ctx, OpenParams{JackpotWei: uint256.NewInt(100)})
	require.NoError(t, err)

	_, err = f.lc.Open(ctx, OpenParams{JackpotWei: uint256.NewInt(100)})
	require.ErrorIs(t, err, ErrRoundAlreadyActive)
}

func TestOpenRejectsUnknownSecret(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.lc.Open(context.Background(), OpenParams{SecretWord: "ZZZZZ", JackpotWei: uint256.NewInt(100)})
	require.Error(t, err)
}

func TestResolveWritesSplitAndIsIdempotent(t *testing.T) {
	f := newFixture(t, staticReferrers{1: 2})
	ctx := context.Background()

	rd, err := f.lc.Open(ctx, OpenParams{SecretWord: "APPLE", JackpotWei: uint256.NewInt(1_000_000)})
	require.NoError(t, err)

	require.NoError(t, f.store.AppendGuess(ctx, &model.Guess{RoundID: rd.ID, AccountID: 3, Word: "BEACH", Paid: true}))
	require.NoError(t, f.store.AppendGuess(ctx, &model.Guess{RoundID: rd.ID, AccountID: 1, Word: "APPLE", Paid: true, Correct: true}))

	res, err := f.lc.Resolve(ctx, rd.ID, 1)
	require.NoError(t, err)
	assert.False(t, res.AlreadyResolved)
	assert.Equal(t, model.RoundStatusResolved, res.Round.Status)
	require.NotNil(t, res.Round.WinnerAccount)
	assert.Equal(t, int64(1), *res.Round.WinnerAccount)
	require.NotNil(t, res.Round.ReferrerAccount)
	assert.Equal(t, int64(2), *res.Round.ReferrerAccount)
	assert.NotNil(t, res.Round.ResolvedAt)

	assert.Equal(t, "800000", amountByRole(t, res.Payouts, model.RoleWinner))
	assert.Equal(t, "100000", amountByRole(t, res.Payouts, model.RoleReferrer))

	// resolving again is a read, not a second transition
	again, err := f.lc.Resolve(ctx, rd.ID, 99)
	require.NoError(t, err)
	assert.True(t, again.AlreadyResolved)
	assert.Len(t, again.Payouts, len(res.Payouts))
	assert.Equal(t, int64(1), *again.Round.WinnerAccount)
}

func TestResolveCancelledRoundFails(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rd, err := f.lc.Open(ctx, OpenParams{JackpotWei: uint256.NewInt(100)})
	require.NoError(t, err)
	require.NoError(t, f.lc.Cancel(ctx, rd.ID))

	_, err = f.lc.Resolve(ctx, rd.ID, 1)
	require.ErrorIs(t, err, ErrRoundNotActive)
}

func TestResolveWithoutReferrerSeedsNextRound(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rd, err := f.lc.Open(ctx, OpenParams{SecretWord: "APPLE", JackpotWei: uint256.NewInt(1_000_000)})
	require.NoError(t, err)
	require.NoError(t, f.store.AppendGuess(ctx, &model.Guess{RoundID: rd.ID, AccountID: 1, Word: "APPLE", Paid: true, Correct: true}))

	res, err := f.lc.Resolve(ctx, rd.ID, 1)
	require.NoError(t, err)
	// no referrer and no other paid guessers: 10% + 10% both land on seed
	assert.Equal(t, "200000", res.Round.SeedWei)
}

func TestOpenCarriesSeedExactlyOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rd1, err := f.lc.Open(ctx, OpenParams{SecretWord: "APPLE", JackpotWei: uint256.NewInt(1_000_000)})
	require.NoError(t, err)
	require.NoError(t, f.store.AppendGuess(ctx, &model.Guess{RoundID: rd1.ID, AccountID: 1, Word: "APPLE", Paid: true, Correct: true}))
	_, err = f.lc.Resolve(ctx, rd1.ID, 1)
	require.NoError(t, err)

	rd2, err := f.lc.Open(ctx, OpenParams{JackpotWei: uint256.NewInt(500_000)})
	require.NoError(t, err)
	assert.Equal(t, "700000", rd2.JackpotWei, "500k fresh funding plus 200k carried seed")

	// the seed is spent: cancel round 2, round 3 gets fresh funding only
	require.NoError(t, f.lc.Cancel(ctx, rd2.ID))
	rd3, err := f.lc.Open(ctx, OpenParams{JackpotWei: uint256.NewInt(500_000)})
	require.NoError(t, err)
	assert.Equal(t, "500000", rd3.JackpotWei)
}

func TestOpenDrainsReserveUpToCap(t *testing.T) {
	f := newFixture(t, nil)
	f.lc.rules.SeedCap = uint256.NewInt(300)
	ctx := context.Background()

	require.NoError(t, f.store.AddToReserve(ctx, "1000"))

	rd, err := f.lc.Open(ctx, OpenParams{JackpotWei: uint256.NewInt(100)})
	require.NoError(t, err)
	assert.Equal(t, "400", rd.JackpotWei, "100 fresh plus 300 capped reserve drain")

	left, err := f.store.DrainReserve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "700", left, "overflow stays parked")
}

func TestCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rd, err := f.lc.Open(ctx, OpenParams{JackpotWei: uint256.NewInt(100)})
	require.NoError(t, err)

	require.NoError(t, f.lc.Cancel(ctx, rd.ID))
	got, err := f.store.GetRound(ctx, rd.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoundStatusCancelled, got.Status)

	require.ErrorIs(t, f.lc.Cancel(ctx, rd.ID), ErrRoundNotActive)
}

func TestRevealOnlyAfterRoundEnds(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rd, err := f.lc.Open(ctx, OpenParams{SecretWord: "APPLE", JackpotWei: uint256.NewInt(100)})
	require.NoError(t, err)

	_, err = f.lc.Reveal(ctx, rd.ID)
	require.ErrorIs(t, err, ErrNotResolved)

	require.NoError(t, f.lc.Cancel(ctx, rd.ID))
	words, err := f.lc.Reveal(ctx, rd.ID)
	require.NoError(t, err)
	require.Len(t, words, 4)

	assert.Equal(t, commitment.FamilySecret, words[0].Family)
	assert.Equal(t, "APPLE", words[0].Word)
	require.NoError(t, commitment.VerifyBundle(words))

	// anyone can recompute each hash from word and salt alone
	for _, w := range words {
		assert.Equal(t, w.Hash, commitment.Hash(w.Family, w.Word, w.Salt))
	}
}

func TestPostResolveEnqueuesSettlement(t *testing.T) {
	f := newFixture(t, staticReferrers{1: 2})
	ctx := context.Background()

	rd, err := f.lc.Open(ctx, OpenParams{SecretWord: "APPLE", JackpotWei: uint256.NewInt(1_000_000)})
	require.NoError(t, err)
	require.NoError(t, f.store.AppendGuess(ctx, &model.Guess{RoundID: rd.ID, AccountID: 1, Word: "APPLE", Paid: true, Correct: true}))

	_, err = f.lc.Resolve(ctx, rd.ID, 1)
	require.NoError(t, err)

	var task settlement.Task
	cctx, cancel := context.WithCancel(ctx)
	_ = f.queue.Consume(cctx, func(tk settlement.Task) error {
		task = tk
		cancel()
		return nil
	})

	assert.Equal(t, settlement.KindResolveRound, task.Kind)
	assert.Equal(t, settlement.TaskIDForResolution(rd.ID), task.ID)
	require.NotEmpty(t, task.Payouts)
	assert.Equal(t, int64(1), task.Payouts[0].Account)
	// the seed line has no recipient and settles as pool carry, not a payment
	for _, r := range task.Payouts {
		assert.NotEqual(t, string(model.RoleSeed), r.Role)
	}
}
