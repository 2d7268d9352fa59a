// Package oracle is the boundary to the external balance and price feeds.
// All feed calls degrade to the last known good value from the KV cache, so
// allocation and pricing never hard-fail on a flaky upstream.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/wordpot/engine/internal/core"
	"github.com/wordpot/engine/pkg/common/logger"
	"github.com/wordpot/engine/pkg/infra"
)

var ErrUnavailable = errors.New("oracle unavailable and no cached value")

// Oracle exposes the three upstream feeds the engine consumes.
type Oracle interface {
	// HolderTier reports the account's holder level; 0 means not a holder.
	HolderTier(ctx context.Context, account int64) (int, error)
	MarketCapUsd(ctx context.Context) (decimal.Decimal, error)
	EthUsdRate(ctx context.Context) (decimal.Decimal, error)
}

// Cached decorates an Oracle with last-known-good fallback. Successful reads
// refresh the cache; failed reads serve the cached value and log.
type Cached struct {
	next   Oracle
	kv     infra.KVStore
	prefix string
}

func NewCached(next Oracle, kv infra.KVStore, prefix string) *Cached {
	return &Cached{next: next, kv: kv, prefix: prefix}
}

func (c *Cached) key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += "/" + p
	}
	return k
}

func (c *Cached) HolderTier(ctx context.Context, account int64) (int, error) {
	key := c.key("holder_tier", fmt.Sprintf("%d", account))
	tier, err := c.next.HolderTier(ctx, account)
	if err != nil {
		var cached int
		ok, kvErr := c.kv.GetAny(key, &cached)
		if kvErr != nil || !ok {
			return 0, fmt.Errorf("%w: holder tier: %v", ErrUnavailable, err)
		}
		logger.Warn("holder tier feed failed, using cached value", "account", account, "tier", cached, "error", err)
		return cached, nil
	}
	if err := c.kv.SetAny(key, tier); err != nil {
		logger.Warn("caching holder tier failed", "error", err)
	}
	return tier, nil
}

func (c *Cached) MarketCapUsd(ctx context.Context) (decimal.Decimal, error) {
	return c.cachedDecimal(ctx, c.key("market_cap_usd"), c.next.MarketCapUsd)
}

func (c *Cached) EthUsdRate(ctx context.Context) (decimal.Decimal, error) {
	return c.cachedDecimal(ctx, c.key("eth_usd_rate"), c.next.EthUsdRate)
}

func (c *Cached) cachedDecimal(ctx context.Context, key string, fetch func(context.Context) (decimal.Decimal, error)) (decimal.Decimal, error) {
	v, err := fetch(ctx)
	if err != nil {
		var raw string
		ok, kvErr := c.kv.GetAny(key, &raw)
		if kvErr != nil || !ok {
			return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrUnavailable, key, err)
		}
		cached, parseErr := decimal.NewFromString(raw)
		if parseErr != nil {
			return decimal.Zero, fmt.Errorf("corrupt cached value at %s: %w", key, parseErr)
		}
		logger.Warn("price feed failed, using cached value", "key", key, "value", raw, "error", err)
		return cached, nil
	}
	if err := c.kv.SetAny(key, v.String()); err != nil {
		logger.Warn("caching price value failed", "key", key, "error", err)
	}
	return v, nil
}

// HolderAllocation maps the feeds onto bonus free credits: a non-holder gets
// nothing; a holder gets the bonus of the highest market-cap tier currently
// reached. The ledger's upgrade-only rule keeps intraday dips from clawing
// back credits already granted.
func HolderAllocation(holderTier int, marketCapUsd decimal.Decimal, tiers []core.HolderTier) int {
	if holderTier <= 0 {
		return 0
	}
	bonus := 0
	for _, t := range tiers {
		threshold, err := decimal.NewFromString(t.MinMarketCapUsd)
		if err != nil {
			continue // validated at config load
		}
		if marketCapUsd.GreaterThanOrEqual(threshold) {
			bonus = t.BonusCredits
		}
	}
	return bonus
}

var weiPerEth = decimal.New(1, 18)

// UsdToWei converts a USD amount to wei at the given ETH/USD rate, truncating
// sub-wei dust. It funds usd-denominated jackpots; everything downstream of
// the conversion stays integer wei.
func UsdToWei(usd, ethUsd decimal.Decimal) (*uint256.Int, error) {
	if ethUsd.IsZero() {
		return nil, errors.New("zero eth/usd rate")
	}
	wei := usd.Div(ethUsd).Mul(weiPerEth).Truncate(0)
	out, err := uint256.FromDecimal(wei.String())
	if err != nil {
		return nil, fmt.Errorf("usd %s at rate %s: %w", usd, ethUsd, err)
	}
	return out, nil
}

// Static is a fixed-value Oracle for tests and local runs.
type Static struct {
	Tiers     map[int64]int
	MarketCap decimal.Decimal
	EthUsd    decimal.Decimal
	Err       error
}

func (s *Static) HolderTier(ctx context.Context, account int64) (int, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	return s.Tiers[account], nil
}

func (s *Static) MarketCapUsd(ctx context.Context) (decimal.Decimal, error) {
	if s.Err != nil {
		return decimal.Zero, s.Err
	}
	return s.MarketCap, nil
}

func (s *Static) EthUsdRate(ctx context.Context) (decimal.Decimal, error) {
	if s.Err != nil {
		return decimal.Zero, s.Err
	}
	return s.EthUsd, nil
}
