// Package pricing computes guess-pack prices. Pure integer wei arithmetic:
// the stage component steps the unit price up with total round guesses, the
// volume component multiplies it per account based on packs already bought
// this round. No floats anywhere in here.
package pricing

import (
	"github.com/holiman/uint256"

	"github.com/wordpot/engine/internal/core"
)

const bpsDenominator = 10000

type VolumeTier struct {
	MinPacks      int
	MultiplierBps int
}

// Schedule is the full pricing rule for one ruleset version.
type Schedule struct {
	Base          *uint256.Int
	RampThreshold int64
	Step          *uint256.Int
	BlockSize     int64
	Cap           *uint256.Int
	// VolumeTiers sorted ascending by MinPacks; the last tier at or below
	// the account's packs-in-round count applies.
	VolumeTiers []VolumeTier
}

func FromConfig(cfg core.PricingConfig) Schedule {
	tiers := make([]VolumeTier, 0, len(cfg.VolumeTiers))
	for _, t := range cfg.VolumeTiers {
		tiers = append(tiers, VolumeTier{MinPacks: t.MinPacks, MultiplierBps: t.MultiplierBps})
	}
	return Schedule{
		Base:          core.MustWei(cfg.BaseWei),
		RampThreshold: cfg.RampThreshold,
		Step:          core.MustWei(cfg.StepWei),
		BlockSize:     cfg.BlockSize,
		Cap:           core.MustWei(cfg.CapWei),
		VolumeTiers:   tiers,
	}
}

// UnitPrice is the stage component: base below the ramp threshold, then one
// step at the threshold plus one more per full block beyond it, capped.
// Non-decreasing in totalGuesses by construction.
func (s Schedule) UnitPrice(totalGuesses int64) *uint256.Int {
	price := new(uint256.Int).Set(s.Base)
	if totalGuesses < s.RampThreshold {
		return price
	}
	steps := (totalGuesses-s.RampThreshold)/s.BlockSize + 1
	inc := new(uint256.Int).Mul(s.Step, uint256.NewInt(uint64(steps)))
	price.Add(price, inc)
	if price.Gt(s.Cap) {
		price.Set(s.Cap)
	}
	return price
}

// MultiplierBps is the volume component for an account that has already
// bought packsInRound packs this round.
func (s Schedule) MultiplierBps(packsInRound int) int {
	mult := bpsDenominator
	for _, t := range s.VolumeTiers {
		if packsInRound >= t.MinPacks {
			mult = t.MultiplierBps
		}
	}
	return mult
}

// PackPrice is the price of the next single pack for the account.
func (s Schedule) PackPrice(totalGuesses int64, packsInRound int) *uint256.Int {
	return applyBps(s.UnitPrice(totalGuesses), s.MultiplierBps(packsInRound))
}

// QuoteLine is one run of packs sharing a unit price and multiplier.
type QuoteLine struct {
	Packs         int
	UnitWei       *uint256.Int
	MultiplierBps int
	SubtotalWei   *uint256.Int
}

// Quote is a tier-boundary-aware price breakdown for a multi-pack purchase.
// The split is reported, not just the total, so purchases are auditable.
type Quote struct {
	Lines    []QuoteLine
	TotalWei *uint256.Int
}

// QuotePacks prices n packs for an account that already holds packsInRound
// packs this round. Each pack is priced at the multiplier tier it lands in,
// so a purchase spanning a tier boundary produces multiple lines.
func (s Schedule) QuotePacks(totalGuesses int64, packsInRound, n int) Quote {
	q := Quote{TotalWei: uint256.NewInt(0)}
	if n <= 0 {
		return q
	}

	unit := s.UnitPrice(totalGuesses)
	var line *QuoteLine
	for i := 0; i < n; i++ {
		mult := s.MultiplierBps(packsInRound + i)
		price := applyBps(unit, mult)
		if line == nil || line.MultiplierBps != mult {
			q.Lines = append(q.Lines, QuoteLine{
				UnitWei:       new(uint256.Int).Set(unit),
				MultiplierBps: mult,
				SubtotalWei:   uint256.NewInt(0),
			})
			line = &q.Lines[len(q.Lines)-1]
		}
		line.Packs++
		line.SubtotalWei.Add(line.SubtotalWei, price)
		q.TotalWei.Add(q.TotalWei, price)
	}
	return q
}

func applyBps(amount *uint256.Int, bps int) *uint256.Int {
	out := new(uint256.Int).Mul(amount, uint256.NewInt(uint64(bps)))
	return out.Div(out, uint256.NewInt(bpsDenominator))
}
