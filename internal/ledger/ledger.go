// Package ledger manages per-(account, UTC day) guess credits. Free credits
// (base allowance, holder-tier bonus, share bonus) are always consumed before
// paid credits. Callers must validate a guess before consuming: only guesses
// that actually get scored are allowed to touch the ledger.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/wordpot/engine/internal/store"
	"github.com/wordpot/engine/pkg/model"
)

var (
	// ErrNoCreditsRemaining: both free and paid credits are exhausted for
	// the day. Expected and user-facing, not a failure.
	ErrNoCreditsRemaining = errors.New("no credits remaining today")

	// ErrPackLimitReached: the per-day pack purchase cap is hit.
	ErrPackLimitReached = errors.New("daily pack limit reached")

	// ErrShareAlreadyAwarded: the share bonus was already granted today.
	ErrShareAlreadyAwarded = errors.New("share bonus already awarded today")
)

// CreditKind says which bucket a consumed credit came from.
type CreditKind string

const (
	CreditFree CreditKind = "free"
	CreditPaid CreditKind = "paid"
)

type Config struct {
	BaseDaily         int
	ShareBonusCredits int
	PackSize          int
	DailyPackCap      int // 0 = unlimited
}

type Ledger struct {
	store store.Store
	cfg   Config
}

func New(st store.Store, cfg Config) *Ledger {
	return &Ledger{store: st, cfg: cfg}
}

// WithTx rebinds the ledger to a transactional store view so credit mutation
// joins the caller's unit of work.
func (l *Ledger) WithTx(st store.Store) *Ledger {
	return &Ledger{store: st, cfg: l.cfg}
}

// Day formats the UTC calendar day key.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (l *Ledger) newState() *model.DailyCreditState {
	return &model.DailyCreditState{
		BaseAllowance: l.cfg.BaseDaily,
	}
}

// GetOrCreate returns the day's state, creating it with the base allowance.
func (l *Ledger) GetOrCreate(ctx context.Context, account int64, day string) (*model.DailyCreditState, error) {
	return l.store.WithCreditState(ctx, account, day, l.newState, nil)
}

// ConsumeOneCredit takes one credit, free before paid. The mutation runs
// under the store's per-row serialization, so two concurrent submissions
// cannot both take the last credit.
func (l *Ledger) ConsumeOneCredit(ctx context.Context, account int64, day string) (CreditKind, *model.DailyCreditState, error) {
	var kind CreditKind
	st, err := l.store.WithCreditState(ctx, account, day, l.newState, func(s *model.DailyCreditState) error {
		switch {
		case s.FreeRemaining() > 0:
			s.FreeUsed++
			kind = CreditFree
		case s.PaidCredits > 0:
			s.PaidCredits--
			kind = CreditPaid
		default:
			return ErrNoCreditsRemaining
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return kind, st, nil
}

// AwardPack credits n purchased packs. The in-round pack counter resets when
// the round changes, not at the day boundary, which is what drives the
// volume multiplier in pricing.
func (l *Ledger) AwardPack(ctx context.Context, account int64, day, roundID string, n int) (*model.DailyCreditState, error) {
	if n <= 0 {
		return nil, errors.New("pack count must be positive")
	}
	return l.store.WithCreditState(ctx, account, day, l.newState, func(s *model.DailyCreditState) error {
		if l.cfg.DailyPackCap > 0 && s.PacksPurchased+n > l.cfg.DailyPackCap {
			return ErrPackLimitReached
		}
		if s.PacksRoundID != roundID {
			s.PacksRoundID = roundID
			s.PacksInRound = 0
		}
		s.PaidCredits += n * l.cfg.PackSize
		s.PacksPurchased += n
		s.PacksInRound += n
		return nil
	})
}

// PacksInRound reads the account's pack count for the given round, treating
// a stale counter from an earlier round as zero.
func (l *Ledger) PacksInRound(ctx context.Context, account int64, day, roundID string) (int, error) {
	st, err := l.store.GetCreditState(ctx, account, day)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if st.PacksRoundID != roundID {
		return 0, nil
	}
	return st.PacksInRound, nil
}

// AwardShareBonus grants the once-per-day share allowance.
func (l *Ledger) AwardShareBonus(ctx context.Context, account int64, day string) (*model.DailyCreditState, error) {
	return l.store.WithCreditState(ctx, account, day, l.newState, func(s *model.DailyCreditState) error {
		if s.HasShared {
			return ErrShareAlreadyAwarded
		}
		s.HasShared = true
		s.ShareBonus += l.cfg.ShareBonusCredits
		return nil
	})
}

// UpgradeHolderTier raises the holder allocation to newAllocation if higher.
// Never downgrades within the day, even when the market-cap tier drops.
func (l *Ledger) UpgradeHolderTier(ctx context.Context, account int64, day string, newAllocation int) (*model.DailyCreditState, error) {
	return l.store.WithCreditState(ctx, account, day, l.newState, func(s *model.DailyCreditState) error {
		if newAllocation > s.HolderBonus {
			s.HolderBonus = newAllocation
		}
		return nil
	})
}
