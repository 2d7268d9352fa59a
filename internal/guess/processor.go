// Package guess scores submissions against the active round. The pipeline
// validates before it consumes: a rejected submission (invalid word, duplicate
// word, no round) never touches the credit ledger. The credit, the guess row
// and every consequence of scoring (hidden-word claim, resolution) commit in
// one unit of work.
package guess

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/wordpot/engine/internal/commitment"
	"github.com/wordpot/engine/internal/discovery"
	"github.com/wordpot/engine/internal/events"
	"github.com/wordpot/engine/internal/ledger"
	"github.com/wordpot/engine/internal/round"
	"github.com/wordpot/engine/internal/store"
	"github.com/wordpot/engine/pkg/common/logger"
	"github.com/wordpot/engine/pkg/model"
	"github.com/wordpot/engine/pkg/wordlist"
)

// Outcome classifies one submission. Rejections are outcomes, not errors:
// the caller renders them to the player, and none of them consumed a credit
// except Correct/Incorrect/BonusWord/BurnWord, which are scored guesses.
type Outcome string

const (
	OutcomeCorrect        Outcome = "correct"
	OutcomeIncorrect      Outcome = "incorrect"
	OutcomeBonusWord      Outcome = "bonus_word"
	OutcomeBurnWord       Outcome = "burn_word"
	OutcomeDuplicateWord  Outcome = "duplicate_word"
	OutcomeInvalidWord    Outcome = "invalid_word"
	OutcomeNoCredits      Outcome = "no_credits_remaining"
	OutcomeRoundNotActive Outcome = "round_not_active"
)

// Scored reports whether the outcome consumed a credit and produced a row.
func (o Outcome) Scored() bool {
	switch o {
	case OutcomeCorrect, OutcomeIncorrect, OutcomeBonusWord, OutcomeBurnWord:
		return true
	}
	return false
}

// Result is everything the caller needs to respond to one submission.
type Result struct {
	Outcome    Outcome
	CreditKind ledger.CreditKind
	Credits    *model.DailyCreditState
	Guess      *model.Guess
	// RewardWei is set for bonus and burn outcomes: the amount claimed or
	// burned on chain.
	RewardWei string
	// Resolution is set when this guess won the round.
	Resolution *round.Resolution
}

// Bloom filter sizing. The filter is a cheap pre-check only; the unique
// index on (round, word) is the authority, so false positives are re-checked
// against the store and false negatives are caught by the index.
const (
	bloomCapacity = 200_000
	bloomFalsePos = 0.01
)

type Processor struct {
	store     store.Store
	ledger    *ledger.Ledger
	discovery *discovery.Discovery
	lifecycle *round.Lifecycle
	emitter   events.Emitter
	dict      *wordlist.Dictionary

	mu     sync.Mutex
	blooms map[string]*bloom.BloomFilter
}

func NewProcessor(
	st store.Store,
	ld *ledger.Ledger,
	disc *discovery.Discovery,
	lc *round.Lifecycle,
	emitter events.Emitter,
	dict *wordlist.Dictionary,
) *Processor {
	return &Processor{
		store:     st,
		ledger:    ld,
		discovery: disc,
		lifecycle: lc,
		emitter:   emitter,
		dict:      dict,
		blooms:    make(map[string]*bloom.BloomFilter),
	}
}

// Submit runs one guess through the full pipeline. An error return means the
// submission could not be judged at all (storage failure, integrity bug);
// every game-rule rejection comes back as a Result with nil error.
func (p *Processor) Submit(ctx context.Context, account int64, rawWord string) (*Result, error) {
	word := wordlist.Normalize(rawWord)

	rd, err := p.store.ActiveRound(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return &Result{Outcome: OutcomeRoundNotActive}, nil
	}
	if err != nil {
		return nil, err
	}

	if !p.dict.IsValidGuess(word) {
		return &Result{Outcome: OutcomeInvalidWord}, nil
	}

	// Bloom hint first, store confirmation second. Both are advisory: the
	// race where two submissions pass this check lands on the unique index
	// inside the transaction.
	hint, err := p.maybeGuessed(ctx, rd.ID, word)
	if err != nil {
		return nil, err
	}
	if hint {
		dup, err := p.store.WordGuessed(ctx, rd.ID, word)
		if err != nil {
			return nil, err
		}
		if dup {
			return &Result{Outcome: OutcomeDuplicateWord}, nil
		}
	}

	now := time.Now().UTC()
	day := ledger.Day(now)
	res := &Result{}
	var claimed *model.HiddenWord

	err = p.store.Atomic(ctx, func(tx store.Store) error {
		// The read above is stale the moment another guess resolves the
		// round. Re-check under the transaction before spending anything.
		cur, err := tx.GetRound(ctx, rd.ID)
		if err != nil {
			return err
		}
		if cur.Status != model.RoundStatusActive {
			return store.ErrRoundClosed
		}

		kind, credits, err := p.ledger.WithTx(tx).ConsumeOneCredit(ctx, account, day)
		if err != nil {
			return err
		}
		res.CreditKind = kind
		res.Credits = credits

		g := &model.Guess{
			RoundID:   rd.ID,
			AccountID: account,
			Word:      word,
			Paid:      kind == ledger.CreditPaid,
			GuessedAt: now,
		}
		g.Correct = commitment.Verify(commitment.FamilySecret, word, rd.SecretSalt, rd.SecretHash)

		hit, err := p.discovery.CheckMatch(ctx, tx, rd.ID, word)
		if err != nil {
			return err
		}
		if hit != nil {
			g.Bonus = hit.Kind == model.HiddenKindBonus
			g.Burn = hit.Kind == model.HiddenKindBurn
		}

		// Duplicate here rolls the whole transaction back, credit included.
		if err := tx.AppendGuess(ctx, g); err != nil {
			return err
		}
		res.Guess = g

		if hit != nil {
			claimed, err = tx.ClaimHiddenWord(ctx, rd.ID, hit.WordIndex, account, now)
			if err != nil {
				// the unique word index already serialized this word; losing
				// the claim after winning the reservation is a bug
				return fmt.Errorf("claim hidden word %d in round %s: %w", hit.WordIndex, rd.ID, err)
			}
			res.RewardWei = claimed.AmountWei
			if g.Bonus {
				res.Outcome = OutcomeBonusWord
			} else {
				res.Outcome = OutcomeBurnWord
			}
		}

		switch {
		case g.Correct:
			res.Outcome = OutcomeCorrect
			resolution, err := p.lifecycle.ResolveInTx(ctx, tx, rd.ID, account)
			if err != nil {
				return err
			}
			res.Resolution = resolution
		case res.Outcome == "":
			res.Outcome = OutcomeIncorrect
		}
		return nil
	})

	switch {
	case errors.Is(err, store.ErrRoundClosed):
		return &Result{Outcome: OutcomeRoundNotActive}, nil
	case errors.Is(err, store.ErrDuplicateWord):
		return &Result{Outcome: OutcomeDuplicateWord}, nil
	case errors.Is(err, ledger.ErrNoCreditsRemaining):
		return &Result{Outcome: OutcomeNoCredits}, nil
	case err != nil:
		return nil, err
	}

	p.recordGuessed(rd.ID, word)
	p.afterCommit(ctx, rd.ID, account, word, claimed, res)
	return res, nil
}

// afterCommit runs the side effects that must not, and cannot, roll back the
// scored guess: announcements and settlement enqueue.
func (p *Processor) afterCommit(ctx context.Context, roundID string, account int64, word string, claimed *model.HiddenWord, res *Result) {
	p.emitter.Emit(events.TypeGuessScored, roundID, map[string]any{
		"account": account,
		"outcome": res.Outcome,
		"seq":     res.Guess.Seq,
	})

	if claimed != nil {
		evType := events.TypeBonusFound
		if claimed.Kind == model.HiddenKindBurn {
			evType = events.TypeBurnHit
		}
		p.emitter.Emit(evType, roundID, map[string]any{
			"account":    account,
			"word_index": claimed.WordIndex,
			"amount_wei": claimed.AmountWei,
		})
		if err := p.discovery.Settle(ctx, claimed, word); err != nil {
			logger.Error("hidden word settlement enqueue failed",
				"round", roundID, "word_index", claimed.WordIndex, "error", err)
		}
	}

	if res.Resolution != nil {
		p.lifecycle.PostResolve(ctx, res.Resolution)
		p.dropBloom(roundID)
	}
}

// maybeGuessed answers "could this word already have a guess" from the
// per-round bloom filter. The first sight of a round id seeds the filter
// from the stored guesses, so the fast path survives a process restart.
func (p *Processor) maybeGuessed(ctx context.Context, roundID, word string) (bool, error) {
	p.mu.Lock()
	f, ok := p.blooms[roundID]
	p.mu.Unlock()
	if !ok {
		var err error
		if f, err = p.seedBloom(ctx, roundID); err != nil {
			return false, err
		}
	}
	return f.TestString(word), nil
}

func (p *Processor) seedBloom(ctx context.Context, roundID string) (*bloom.BloomFilter, error) {
	prior, err := p.store.GuessesByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.blooms[roundID]; ok {
		// another submission seeded it while we read
		return f, nil
	}
	f := bloom.NewWithEstimates(bloomCapacity, bloomFalsePos)
	for _, g := range prior {
		f.AddString(g.Word)
	}
	p.blooms[roundID] = f
	return f, nil
}

func (p *Processor) recordGuessed(roundID, word string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.blooms[roundID]
	if !ok {
		f = bloom.NewWithEstimates(bloomCapacity, bloomFalsePos)
		p.blooms[roundID] = f
	}
	f.AddString(word)
}

func (p *Processor) dropBloom(roundID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.blooms, roundID)
}
