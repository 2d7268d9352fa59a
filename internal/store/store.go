// Package store is the persistence boundary of the engine. It exposes the
// atomic primitives the hot path needs: unique word reservation, a
// conditional claim on hidden words, row-serialized credit mutation and a
// compare-and-set round transition. Everything else is plain CRUD.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/wordpot/engine/pkg/model"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateWord: the (round, normalized word) pair already has a
	// scored guess, from any account.
	ErrDuplicateWord = errors.New("word already guessed this round")

	// ErrClaimLost: another guess claimed the hidden word first.
	ErrClaimLost = errors.New("hidden word already claimed")

	// ErrRoundClosed: the round left the active status, so it no longer
	// accepts guesses.
	ErrRoundClosed = errors.New("round no longer accepts guesses")

	// ErrRoundConflict: the round was not in the expected status when a
	// compare-and-set transition ran.
	ErrRoundConflict = errors.New("round status changed concurrently")
)

type Store interface {
	// Atomic runs fn against a transactional view: every write inside
	// commits together or not at all. A guess and its consequences are one
	// unit of work.
	Atomic(ctx context.Context, fn func(tx Store) error) error

	// Rounds. CreateRound persists the round with its commitments and
	// hidden words in one shot, before any guess can arrive.
	CreateRound(ctx context.Context, round *model.Round, commitments []*model.Commitment, hidden []*model.HiddenWord) error
	GetRound(ctx context.Context, id string) (*model.Round, error)
	ActiveRound(ctx context.Context) (*model.Round, error)
	// LatestUncarriedSeed finds the newest resolved round whose seed has not
	// yet funded a successor, or ErrNotFound.
	LatestUncarriedSeed(ctx context.Context) (*model.Round, error)
	MarkSeedCarried(ctx context.Context, roundID string) error
	// TransitionRound applies mutate and persists only if the round is
	// currently in status from. ErrRoundConflict otherwise.
	TransitionRound(ctx context.Context, id string, from model.RoundStatus, mutate func(r *model.Round) error) error

	// Guesses. AppendGuess assigns the per-round sequence number and
	// enforces cross-account word uniqueness (ErrDuplicateWord). It refuses
	// rounds that are no longer active (ErrRoundClosed), so a guess racing a
	// resolution cannot land on the archived round.
	AppendGuess(ctx context.Context, g *model.Guess) error
	WordGuessed(ctx context.Context, roundID, word string) (bool, error)
	GuessesByRound(ctx context.Context, roundID string) ([]*model.Guess, error)

	// Credits. WithCreditState serializes concurrent mutations of one
	// (account, day) row; create builds the row on first touch.
	WithCreditState(ctx context.Context, account int64, day string,
		create func() *model.DailyCreditState,
		mutate func(s *model.DailyCreditState) error) (*model.DailyCreditState, error)
	GetCreditState(ctx context.Context, account int64, day string) (*model.DailyCreditState, error)

	// Commitments and hidden words.
	CommitmentsByRound(ctx context.Context, roundID string) ([]*model.Commitment, error)
	HiddenWordsByRound(ctx context.Context, roundID string, onlyUnclaimed bool) ([]*model.HiddenWord, error)
	// ClaimHiddenWord is the single conditional update "set finder if still
	// unclaimed"; at most one caller ever wins.
	ClaimHiddenWord(ctx context.Context, roundID string, wordIndex int, account int64, at time.Time) (*model.HiddenWord, error)
	SetHiddenWordSettlement(ctx context.Context, roundID string, wordIndex int, ref string) error

	// Payouts.
	SavePayouts(ctx context.Context, payouts []*model.Payout) error
	PayoutsByRound(ctx context.Context, roundID string) ([]*model.Payout, error)

	// ReserveAccumulator is the overflow bucket for seed beyond the cap.
	AddToReserve(ctx context.Context, amountWei string) error
	DrainReserve(ctx context.Context) (string, error)
}
