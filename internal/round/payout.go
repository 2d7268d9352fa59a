package round

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/holiman/uint256"
	"github.com/samber/lo"

	"github.com/wordpot/engine/internal/core"
	"github.com/wordpot/engine/pkg/model"
)

const bpsDenominator = 10000

// PayoutRules is the compiled split configuration for one ruleset version.
type PayoutRules struct {
	WinnerBps   int
	ReferrerBps int
	TopBps      int
	SeedBps     int
	CreatorBps  int
	// TopWeights is front-loaded and renormalized to however many ranked
	// accounts actually qualify.
	TopWeights []int
	// RankingLock freezes top-guesser ranking once total round guesses pass
	// this count. 0 = never locks.
	RankingLock int64
	// SeedCap bounds the seed redirected from a missing referrer. 0 = no cap.
	SeedCap        *uint256.Int
	CreatorAccount *int64
}

func PayoutRulesFromConfig(cfg core.PayoutConfig) PayoutRules {
	return PayoutRules{
		WinnerBps:      cfg.WinnerBps,
		ReferrerBps:    cfg.ReferrerBps,
		TopBps:         cfg.TopBps,
		SeedBps:        cfg.SeedBps,
		CreatorBps:     cfg.CreatorBps,
		TopWeights:     append([]int(nil), cfg.TopWeights...),
		RankingLock:    cfg.RankingLock,
		SeedCap:        core.MustWei(cfg.SeedCapWei),
		CreatorAccount: cfg.CreatorAccount,
	}
}

// RankedGuesser is one account's standing in the top-guesser race.
type RankedGuesser struct {
	Account      int64
	Volume       int
	FirstGuessAt time.Time
}

// RankTopGuessers ranks paid guesses placed before the ranking lock: volume
// descending, earliest first paid guess ascending, account id as the final
// deterministic tie-break. The winner never ranks.
func RankTopGuessers(guesses []*model.Guess, winner int64, lock int64, limit int) []RankedGuesser {
	byAccount := make(map[int64]*RankedGuesser)
	for _, g := range guesses {
		if !g.Paid || g.AccountID == winner {
			continue
		}
		if lock > 0 && g.Seq > lock {
			continue
		}
		r, ok := byAccount[g.AccountID]
		if !ok {
			byAccount[g.AccountID] = &RankedGuesser{
				Account:      g.AccountID,
				Volume:       1,
				FirstGuessAt: g.GuessedAt,
			}
			continue
		}
		r.Volume++
		if g.GuessedAt.Before(r.FirstGuessAt) {
			r.FirstGuessAt = g.GuessedAt
		}
	}

	ranked := lo.MapToSlice(byAccount, func(_ int64, r *RankedGuesser) RankedGuesser { return *r })
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Volume != ranked[j].Volume {
			return ranked[i].Volume > ranked[j].Volume
		}
		if !ranked[i].FirstGuessAt.Equal(ranked[j].FirstGuessAt) {
			return ranked[i].FirstGuessAt.Before(ranked[j].FirstGuessAt)
		}
		return ranked[i].Account < ranked[j].Account
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// Split is the complete, exactly-reconciling outcome of a resolution:
//
//	sum(Payouts) + ReserveOverflowWei == starting jackpot
//
// where Payouts includes the seed line. ReserveOverflowWei is referrer share
// beyond the seed cap, parked in the reserve accumulator, never dropped.
type Split struct {
	Payouts            []*model.Payout
	SeedWei            *uint256.Int
	ReserveOverflowWei *uint256.Int
}

// ComputeSplit carves the jackpot in integer wei. Shares are fixed
// percentages; any division remainder lands on the winner so the total
// always reconciles exactly. A missing referrer redirects that share to the
// next-round seed up to the cap, overflow to the reserve accumulator.
func ComputeSplit(roundID string, jackpot *uint256.Int, winner int64, referrer *int64, ranked []RankedGuesser, rules PayoutRules) (*Split, error) {
	if jackpot == nil {
		return nil, errors.New("nil jackpot")
	}
	total := rules.WinnerBps + rules.ReferrerBps + rules.TopBps + rules.SeedBps + rules.CreatorBps
	if total != bpsDenominator {
		return nil, fmt.Errorf("payout shares sum to %d bps, want %d", total, bpsDenominator)
	}

	winnerAmt := shareOf(jackpot, rules.WinnerBps)
	referrerAmt := shareOf(jackpot, rules.ReferrerBps)
	topAmt := shareOf(jackpot, rules.TopBps)
	seedAmt := shareOf(jackpot, rules.SeedBps)
	creatorAmt := shareOf(jackpot, rules.CreatorBps)

	// integer division dust goes to the winner
	spent := new(uint256.Int).Add(winnerAmt, referrerAmt)
	spent.Add(spent, topAmt)
	spent.Add(spent, seedAmt)
	spent.Add(spent, creatorAmt)
	winnerAmt.Add(winnerAmt, new(uint256.Int).Sub(jackpot, spent))

	overflow := uint256.NewInt(0)
	if referrer == nil && !referrerAmt.IsZero() {
		redirect := new(uint256.Int).Set(referrerAmt)
		if !rules.SeedCap.IsZero() {
			room := uint256.NewInt(0)
			if rules.SeedCap.Gt(seedAmt) {
				room.Sub(rules.SeedCap, seedAmt)
			}
			if redirect.Gt(room) {
				overflow.Sub(redirect, room)
				redirect.Set(room)
			}
		}
		seedAmt.Add(seedAmt, redirect)
		referrerAmt.Clear()
	}

	var topLines []*model.Payout
	if len(ranked) == 0 {
		// nobody qualified: the pool seeds the next round rather than vanish
		seedAmt.Add(seedAmt, topAmt)
		topAmt.Clear()
	} else {
		weights := rules.TopWeights
		if len(ranked) < len(weights) {
			weights = weights[:len(ranked)]
		}
		weightSum := uint64(0)
		for _, w := range weights {
			weightSum += uint64(w)
		}
		distributed := uint256.NewInt(0)
		for i := range weights {
			amt := new(uint256.Int).Mul(topAmt, uint256.NewInt(uint64(weights[i])))
			amt.Div(amt, uint256.NewInt(weightSum))
			distributed.Add(distributed, amt)
			acc := ranked[i].Account
			topLines = append(topLines, &model.Payout{
				RoundID:   roundID,
				AccountID: &acc,
				AmountWei: amt.Dec(),
				Role:      model.RoleTopGuesser,
				Rank:      i + 1,
			})
		}
		// renormalization dust goes to first place
		if dust := new(uint256.Int).Sub(topAmt, distributed); !dust.IsZero() {
			first := core.MustWei(topLines[0].AmountWei)
			topLines[0].AmountWei = first.Add(first, dust).Dec()
		}
	}

	split := &Split{
		SeedWei:            seedAmt,
		ReserveOverflowWei: overflow,
	}

	w := winner
	split.Payouts = append(split.Payouts, &model.Payout{
		RoundID:   roundID,
		AccountID: &w,
		AmountWei: winnerAmt.Dec(),
		Role:      model.RoleWinner,
	})
	if referrer != nil && !referrerAmt.IsZero() {
		ref := *referrer
		split.Payouts = append(split.Payouts, &model.Payout{
			RoundID:   roundID,
			AccountID: &ref,
			AmountWei: referrerAmt.Dec(),
			Role:      model.RoleReferrer,
		})
	}
	if rules.CreatorAccount != nil && !creatorAmt.IsZero() {
		creator := *rules.CreatorAccount
		split.Payouts = append(split.Payouts, &model.Payout{
			RoundID:   roundID,
			AccountID: &creator,
			AmountWei: creatorAmt.Dec(),
			Role:      model.RoleCreator,
		})
	}
	split.Payouts = append(split.Payouts, topLines...)
	if !seedAmt.IsZero() {
		split.Payouts = append(split.Payouts, &model.Payout{
			RoundID:   roundID,
			AmountWei: seedAmt.Dec(),
			Role:      model.RoleSeed,
		})
	}

	if err := split.reconcile(jackpot); err != nil {
		return nil, err
	}
	return split, nil
}

// reconcile asserts the integer-exact accounting identity before anything is
// persisted. A failure here is a bug, never tolerable rounding.
func (s *Split) reconcile(jackpot *uint256.Int) error {
	sum := new(uint256.Int).Set(s.ReserveOverflowWei)
	for _, p := range s.Payouts {
		amt, err := uint256.FromDecimal(p.AmountWei)
		if err != nil {
			return fmt.Errorf("payout amount %q: %w", p.AmountWei, err)
		}
		sum.Add(sum, amt)
	}
	if !sum.Eq(jackpot) {
		return fmt.Errorf("split does not reconcile: distributed %s of jackpot %s", sum.Dec(), jackpot.Dec())
	}
	return nil
}

func shareOf(total *uint256.Int, bps int) *uint256.Int {
	out := new(uint256.Int).Mul(total, uint256.NewInt(uint64(bps)))
	return out.Div(out, uint256.NewInt(bpsDenominator))
}
