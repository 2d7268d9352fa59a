package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordpot/engine/pkg/model"
)

func activeRound(t *testing.T, m *Memory) *model.Round {
	t.Helper()
	rd := &model.Round{
		RulesetVersion:   "v1",
		SecretCiphertext: []byte{1, 2, 3},
		SecretSalt:       "aa",
		SecretHash:       "bb",
		JackpotWei:       "1000000",
		SeedWei:          "0",
		Status:           model.RoundStatusActive,
		StartedAt:        time.Now().UTC(),
	}
	hidden := []*model.HiddenWord{
		{WordIndex: 1, Kind: model.HiddenKindBonus, Ciphertext: []byte{4}, Salt: "cc", Hash: "dd", AmountWei: "100"},
	}
	require.NoError(t, m.CreateRound(context.Background(), rd, nil, hidden))
	return rd
}

func TestAppendGuessAssignsSequence(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rd := activeRound(t, m)

	g1 := &model.Guess{RoundID: rd.ID, AccountID: 1, Word: "APPLE"}
	g2 := &model.Guess{RoundID: rd.ID, AccountID: 2, Word: "BEACH"}
	require.NoError(t, m.AppendGuess(ctx, g1))
	require.NoError(t, m.AppendGuess(ctx, g2))

	assert.Equal(t, int64(1), g1.Seq)
	assert.Equal(t, int64(2), g2.Seq)

	got, err := m.GetRound(ctx, rd.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TotalGuesses)
}

func TestAppendGuessDuplicateWordAcrossAccounts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rd := activeRound(t, m)

	require.NoError(t, m.AppendGuess(ctx, &model.Guess{RoundID: rd.ID, AccountID: 1, Word: "APPLE"}))
	err := m.AppendGuess(ctx, &model.Guess{RoundID: rd.ID, AccountID: 2, Word: "APPLE"})
	require.ErrorIs(t, err, ErrDuplicateWord)

	dup, err := m.WordGuessed(ctx, rd.ID, "APPLE")
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestAppendGuessRejectsClosedRound(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rd := activeRound(t, m)

	require.NoError(t, m.TransitionRound(ctx, rd.ID, model.RoundStatusActive, func(r *model.Round) error {
		r.Status = model.RoundStatusResolved
		return nil
	}))

	err := m.AppendGuess(ctx, &model.Guess{RoundID: rd.ID, AccountID: 1, Word: "APPLE"})
	require.ErrorIs(t, err, ErrRoundClosed)

	got, err := m.GetRound(ctx, rd.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.TotalGuesses)
}

func TestAtomicRollsBackOnError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rd := activeRound(t, m)
	boom := errors.New("boom")

	err := m.Atomic(ctx, func(tx Store) error {
		_, err := tx.WithCreditState(ctx, 1, "2026-08-25",
			func() *model.DailyCreditState { return &model.DailyCreditState{BaseAllowance: 5} },
			func(s *model.DailyCreditState) error { s.FreeUsed++; return nil })
		require.NoError(t, err)
		require.NoError(t, tx.AppendGuess(ctx, &model.Guess{RoundID: rd.ID, AccountID: 1, Word: "APPLE"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	// every write inside the failed unit of work is gone
	_, err = m.GetCreditState(ctx, 1, "2026-08-25")
	require.ErrorIs(t, err, ErrNotFound)
	dup, err := m.WordGuessed(ctx, rd.ID, "APPLE")
	require.NoError(t, err)
	assert.False(t, dup)
	got, err := m.GetRound(ctx, rd.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.TotalGuesses)
}

func TestAtomicCommits(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rd := activeRound(t, m)

	err := m.Atomic(ctx, func(tx Store) error {
		return tx.AppendGuess(ctx, &model.Guess{RoundID: rd.ID, AccountID: 1, Word: "APPLE"})
	})
	require.NoError(t, err)

	gs, err := m.GuessesByRound(ctx, rd.ID)
	require.NoError(t, err)
	require.Len(t, gs, 1)
}

func TestClaimHiddenWordFirstWins(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rd := activeRound(t, m)
	now := time.Now().UTC()

	h, err := m.ClaimHiddenWord(ctx, rd.ID, 1, 7, now)
	require.NoError(t, err)
	require.NotNil(t, h.FinderAccount)
	assert.Equal(t, int64(7), *h.FinderAccount)

	_, err = m.ClaimHiddenWord(ctx, rd.ID, 1, 8, now)
	require.ErrorIs(t, err, ErrClaimLost)

	_, err = m.ClaimHiddenWord(ctx, rd.ID, 99, 8, now)
	require.ErrorIs(t, err, ErrNotFound)

	unclaimed, err := m.HiddenWordsByRound(ctx, rd.ID, true)
	require.NoError(t, err)
	assert.Empty(t, unclaimed)
}

func TestTransitionRoundCAS(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rd := activeRound(t, m)

	err := m.TransitionRound(ctx, rd.ID, model.RoundStatusActive, func(r *model.Round) error {
		r.Status = model.RoundStatusResolved
		return nil
	})
	require.NoError(t, err)

	// second transition from active must fail: the round already moved
	err = m.TransitionRound(ctx, rd.ID, model.RoundStatusActive, func(r *model.Round) error {
		r.Status = model.RoundStatusResolved
		return nil
	})
	require.ErrorIs(t, err, ErrRoundConflict)
}

func TestTransitionRoundMutateErrorLeavesRound(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rd := activeRound(t, m)
	boom := errors.New("boom")

	err := m.TransitionRound(ctx, rd.ID, model.RoundStatusActive, func(r *model.Round) error {
		r.Status = model.RoundStatusResolved
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := m.GetRound(ctx, rd.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoundStatusActive, got.Status)
}

func TestSeedCarry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rd := activeRound(t, m)

	_, err := m.LatestUncarriedSeed(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.TransitionRound(ctx, rd.ID, model.RoundStatusActive, func(r *model.Round) error {
		now := time.Now().UTC()
		r.Status = model.RoundStatusResolved
		r.SeedWei = "5000"
		r.ResolvedAt = &now
		return nil
	}))

	prev, err := m.LatestUncarriedSeed(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5000", prev.SeedWei)

	require.NoError(t, m.MarkSeedCarried(ctx, rd.ID))
	_, err = m.LatestUncarriedSeed(ctx)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReserveAccumulator(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.AddToReserve(ctx, "100"))
	require.NoError(t, m.AddToReserve(ctx, "250"))

	got, err := m.DrainReserve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "350", got)

	got, err = m.DrainReserve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0", got)
}

func TestWithCreditStateCreatesOnFirstTouch(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	st, err := m.WithCreditState(ctx, 1, "2026-08-25",
		func() *model.DailyCreditState { return &model.DailyCreditState{BaseAllowance: 5} },
		nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.AccountID)
	assert.Equal(t, 5, st.BaseAllowance)

	// mutation on the existing row
	st, err = m.WithCreditState(ctx, 1, "2026-08-25", nil,
		func(s *model.DailyCreditState) error { s.FreeUsed++; return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, st.FreeUsed)
}
