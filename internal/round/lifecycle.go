// Package round owns the round state machine and the prize split. A round
// moves active→resolved on the first correct guess (or operator action) and
// active→cancelled on operational abort. Resolution is compare-and-set and
// idempotent: only one writer ever transitions a round, and re-resolving is
// a no-op that returns the stored payouts.
package round

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/wordpot/engine/internal/commitment"
	"github.com/wordpot/engine/internal/core"
	"github.com/wordpot/engine/internal/discovery"
	"github.com/wordpot/engine/internal/events"
	"github.com/wordpot/engine/internal/settlement"
	"github.com/wordpot/engine/internal/store"
	"github.com/wordpot/engine/pkg/common/logger"
	"github.com/wordpot/engine/pkg/model"
	"github.com/wordpot/engine/pkg/wordlist"
)

var (
	ErrRoundAlreadyActive = errors.New("a round is already active")
	ErrRoundNotActive     = errors.New("round is not active")
	ErrNotResolved        = errors.New("round is not resolved yet")

	// ErrDoubleResolution: a second writer raced the active→resolved
	// transition. Integrity error, aborts loudly.
	ErrDoubleResolution = errors.New("double resolution attempt")
)

const topGuesserLimit = 10

// ReferrerLookup resolves an account's referrer; nil means no referrer.
// The referral registry lives outside this core.
type ReferrerLookup interface {
	Referrer(ctx context.Context, account int64) (*int64, error)
}

// NoReferrers is the default lookup: nobody has a referrer.
type NoReferrers struct{}

func (NoReferrers) Referrer(context.Context, int64) (*int64, error) { return nil, nil }

type Lifecycle struct {
	store     store.Store
	cm        *commitment.Manager
	dict      *wordlist.Dictionary
	queue     settlement.Queue
	emitter   events.Emitter
	referrers ReferrerLookup
	rules     PayoutRules
	words     core.WordsConfig
	version   string
}

func NewLifecycle(
	st store.Store,
	cm *commitment.Manager,
	dict *wordlist.Dictionary,
	queue settlement.Queue,
	emitter events.Emitter,
	referrers ReferrerLookup,
	rules PayoutRules,
	words core.WordsConfig,
	rulesetVersion string,
) *Lifecycle {
	if referrers == nil {
		referrers = NoReferrers{}
	}
	return &Lifecycle{
		store:     st,
		cm:        cm,
		dict:      dict,
		queue:     queue,
		emitter:   emitter,
		referrers: referrers,
		rules:     rules,
		words:     words,
		version:   rulesetVersion,
	}
}

// OpenParams funds and optionally fixes the secret of a new round.
type OpenParams struct {
	// SecretWord overrides random selection; normalized and validated
	// against the answer dictionary.
	SecretWord string
	// JackpotWei is the fresh funding for this round; carried seed and
	// reserve drain are added on top.
	JackpotWei *uint256.Int
}

// Open creates a round: picks the secret, plants bonus and burn words,
// fixes every commitment, and persists the lot in one unit of work before a
// single guess can arrive.
func (l *Lifecycle) Open(ctx context.Context, p OpenParams) (*model.Round, error) {
	if _, err := l.store.ActiveRound(ctx); err == nil {
		return nil, ErrRoundAlreadyActive
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	secret := wordlist.Normalize(p.SecretWord)
	if secret == "" {
		picked, err := discovery.Select(l.dict.Answers(), 1, nil)
		if err != nil {
			return nil, fmt.Errorf("pick secret word: %w", err)
		}
		secret = picked[0]
	} else if !l.dict.IsValidGuess(secret) {
		return nil, fmt.Errorf("secret word %q not in dictionary", secret)
	}

	hiddenWords, err := discovery.Select(
		l.dict.Answers(),
		l.words.BonusCount+l.words.BurnCount,
		[]string{secret},
	)
	if err != nil {
		return nil, fmt.Errorf("select hidden words: %w", err)
	}

	secretCommit, err := l.cm.Commit(commitment.FamilySecret, []string{secret})
	if err != nil {
		return nil, err
	}
	hiddenCommits, err := l.cm.Commit(commitment.FamilyHidden, hiddenWords)
	if err != nil {
		return nil, err
	}

	jackpot := uint256.NewInt(0)
	if p.JackpotWei != nil {
		jackpot.Set(p.JackpotWei)
	}

	sealedSecret, err := l.cm.Encrypt(secret)
	if err != nil {
		return nil, err
	}

	rd := &model.Round{
		RulesetVersion:   l.version,
		SecretCiphertext: sealedSecret,
		SecretSalt:       secretCommit[0].Salt,
		SecretHash:       secretCommit[0].Hash,
		SeedWei:          "0",
		Status:           model.RoundStatusActive,
		StartedAt:        time.Now().UTC(),
	}

	commitments := []*model.Commitment{{
		WordIndex: 0,
		Family:    model.FamilySecret,
		Salt:      secretCommit[0].Salt,
		Hash:      secretCommit[0].Hash,
	}}
	var hidden []*model.HiddenWord
	for i, c := range hiddenCommits {
		sealed, err := l.cm.Encrypt(c.Word)
		if err != nil {
			return nil, err
		}
		kind := model.HiddenKindBonus
		amount := l.words.BonusRewardWei
		if i >= l.words.BonusCount {
			kind = model.HiddenKindBurn
			amount = l.words.BurnAmountWei
		}
		idx := i + 1
		commitments = append(commitments, &model.Commitment{
			WordIndex: idx,
			Family:    model.FamilyHidden,
			Salt:      c.Salt,
			Hash:      c.Hash,
		})
		hidden = append(hidden, &model.HiddenWord{
			WordIndex:  idx,
			Kind:       kind,
			Ciphertext: sealed,
			Salt:       c.Salt,
			Hash:       c.Hash,
			AmountWei:  amount,
		})
	}

	err = l.store.Atomic(ctx, func(tx store.Store) error {
		// carry the previous round's seed exactly once
		if prev, err := tx.LatestUncarriedSeed(ctx); err == nil {
			seed, perr := uint256.FromDecimal(prev.SeedWei)
			if perr != nil {
				return fmt.Errorf("corrupt seed on round %s: %w", prev.ID, perr)
			}
			jackpot.Add(jackpot, seed)
			if err := tx.MarkSeedCarried(ctx, prev.ID); err != nil {
				return err
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		// drain parked overflow, bounded by the seed cap when one is set
		drained, err := tx.DrainReserve(ctx)
		if err != nil {
			return err
		}
		reserve, err := uint256.FromDecimal(drained)
		if err != nil {
			return fmt.Errorf("corrupt reserve amount %q: %w", drained, err)
		}
		take := new(uint256.Int).Set(reserve)
		if !l.rules.SeedCap.IsZero() && take.Gt(l.rules.SeedCap) {
			take.Set(l.rules.SeedCap)
			leftover := new(uint256.Int).Sub(reserve, take)
			if err := tx.AddToReserve(ctx, leftover.Dec()); err != nil {
				return err
			}
		}
		jackpot.Add(jackpot, take)

		rd.JackpotWei = jackpot.Dec()
		return tx.CreateRound(ctx, rd, commitments, hidden)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("round opened",
		"round", rd.ID,
		"jackpot_wei", rd.JackpotWei,
		"bonus_words", l.words.BonusCount,
		"burn_words", l.words.BurnCount,
	)
	l.emitter.Emit(events.TypeRoundOpened, rd.ID, map[string]any{
		"jackpot_wei": rd.JackpotWei,
		"secret_hash": rd.SecretHash,
	})
	return rd, nil
}

// Resolution is the full outcome of a round's close.
type Resolution struct {
	Round           *model.Round
	Payouts         []*model.Payout
	AlreadyResolved bool
}

// Resolve is the operator/idempotent entrypoint. Resolving a round that is
// already resolved returns the stored payouts and changes nothing.
func (l *Lifecycle) Resolve(ctx context.Context, roundID string, winner int64) (*Resolution, error) {
	rd, err := l.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if rd.Status == model.RoundStatusResolved {
		payouts, err := l.store.PayoutsByRound(ctx, roundID)
		if err != nil {
			return nil, err
		}
		return &Resolution{Round: rd, Payouts: payouts, AlreadyResolved: true}, nil
	}
	if rd.Status != model.RoundStatusActive {
		return nil, ErrRoundNotActive
	}

	var res *Resolution
	err = l.store.Atomic(ctx, func(tx store.Store) error {
		var txErr error
		res, txErr = l.ResolveInTx(ctx, tx, roundID, winner)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	l.PostResolve(ctx, res)
	return res, nil
}

// ResolveInTx performs the active→resolved transition and writes the split
// inside the caller's unit of work. The guess processor calls this in the
// same transaction as the winning guess.
func (l *Lifecycle) ResolveInTx(ctx context.Context, tx store.Store, roundID string, winner int64) (*Resolution, error) {
	referrer, err := l.referrers.Referrer(ctx, winner)
	if err != nil {
		// referral lookup is best-effort; its share redirects to seed
		logger.Warn("referrer lookup failed, treating winner as unreferred", "winner", winner, "error", err)
		referrer = nil
	}

	guesses, err := tx.GuessesByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}

	var resolved *model.Round
	var split *Split
	err = tx.TransitionRound(ctx, roundID, model.RoundStatusActive, func(r *model.Round) error {
		jackpot, perr := uint256.FromDecimal(r.JackpotWei)
		if perr != nil {
			return fmt.Errorf("corrupt jackpot on round %s: %w", r.ID, perr)
		}

		ranked := RankTopGuessers(guesses, winner, l.rules.RankingLock, topGuesserLimit)
		split, perr = ComputeSplit(r.ID, jackpot, winner, referrer, ranked, l.rules)
		if perr != nil {
			return perr
		}

		now := time.Now().UTC()
		w := winner
		r.Status = model.RoundStatusResolved
		r.WinnerAccount = &w
		r.ReferrerAccount = referrer
		r.SeedWei = split.SeedWei.Dec()
		r.ResolvedAt = &now
		resolved = r
		return nil
	})
	if errors.Is(err, store.ErrRoundConflict) {
		return nil, ErrDoubleResolution
	}
	if err != nil {
		return nil, err
	}

	if err := tx.SavePayouts(ctx, split.Payouts); err != nil {
		return nil, err
	}
	if !split.ReserveOverflowWei.IsZero() {
		if err := tx.AddToReserve(ctx, split.ReserveOverflowWei.Dec()); err != nil {
			return nil, err
		}
	}
	return &Resolution{Round: resolved, Payouts: split.Payouts}, nil
}

// PostResolve runs the after-commit side effects: settlement enqueue and the
// public announcement. Neither can fail the resolution; the settlement task
// is durable and the announcement is fire-and-forget.
func (l *Lifecycle) PostResolve(ctx context.Context, res *Resolution) {
	if res == nil || res.AlreadyResolved {
		return
	}
	rd := res.Round

	var recipients []settlement.Recipient
	for _, p := range res.Payouts {
		if p.AccountID == nil {
			continue
		}
		recipients = append(recipients, settlement.Recipient{
			Account:   *p.AccountID,
			AmountWei: p.AmountWei,
			Role:      string(p.Role),
		})
	}
	task := settlement.Task{
		ID:      settlement.TaskIDForResolution(rd.ID),
		Kind:    settlement.KindResolveRound,
		RoundID: rd.ID,
		Payouts: recipients,
		SeedWei: rd.SeedWei,
	}
	if err := l.queue.Enqueue(ctx, task); err != nil {
		logger.Error("enqueue resolution settlement failed", "round", rd.ID, "error", err)
	}

	l.emitter.Emit(events.TypeRoundResolved, rd.ID, map[string]any{
		"winner":   rd.WinnerAccount,
		"seed_wei": rd.SeedWei,
	})
}

// Cancel aborts an active round. Refunds are an external workflow.
func (l *Lifecycle) Cancel(ctx context.Context, roundID string) error {
	err := l.store.TransitionRound(ctx, roundID, model.RoundStatusActive, func(r *model.Round) error {
		now := time.Now().UTC()
		r.Status = model.RoundStatusCancelled
		r.ResolvedAt = &now
		return nil
	})
	if errors.Is(err, store.ErrRoundConflict) {
		return ErrRoundNotActive
	}
	if err != nil {
		return err
	}
	l.emitter.Emit(events.TypeRoundCancelled, roundID, nil)
	return nil
}

// Reveal exposes words and salts for third-party verification, only after
// the round has left the active state. Every commitment is re-checked on
// the way out; a mismatch is a fatal integrity error.
func (l *Lifecycle) Reveal(ctx context.Context, roundID string) ([]commitment.RevealedWord, error) {
	rd, err := l.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if rd.Status == model.RoundStatusActive {
		return nil, ErrNotResolved
	}

	secret, err := l.cm.Decrypt(rd.SecretCiphertext)
	if err != nil {
		return nil, err
	}
	out := []commitment.RevealedWord{{
		WordIndex: 0,
		Family:    commitment.FamilySecret,
		Word:      secret,
		Salt:      rd.SecretSalt,
		Hash:      rd.SecretHash,
	}}

	hidden, err := l.store.HiddenWordsByRound(ctx, roundID, false)
	if err != nil {
		return nil, err
	}
	for _, h := range hidden {
		word, err := l.cm.Decrypt(h.Ciphertext)
		if err != nil {
			return nil, err
		}
		out = append(out, commitment.RevealedWord{
			WordIndex: h.WordIndex,
			Family:    commitment.FamilyHidden,
			Word:      word,
			Salt:      h.Salt,
			Hash:      h.Hash,
		})
	}

	if err := commitment.VerifyBundle(out); err != nil {
		return nil, err
	}
	return out, nil
}
