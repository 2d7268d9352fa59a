// Package engine assembles the full game from config and exposes the public
// operation surface: open/resolve/cancel rounds, submit guesses, quote and
// purchase packs, share bonuses and reveals. Everything below it is wired
// here and nowhere else.
package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/holiman/uint256"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"

	"github.com/wordpot/engine/internal/commitment"
	"github.com/wordpot/engine/internal/core"
	"github.com/wordpot/engine/internal/discovery"
	"github.com/wordpot/engine/internal/events"
	"github.com/wordpot/engine/internal/guess"
	"github.com/wordpot/engine/internal/ledger"
	"github.com/wordpot/engine/internal/oracle"
	"github.com/wordpot/engine/internal/pricing"
	"github.com/wordpot/engine/internal/round"
	"github.com/wordpot/engine/internal/settlement"
	"github.com/wordpot/engine/internal/store"
	"github.com/wordpot/engine/internal/store/postgres"
	"github.com/wordpot/engine/pkg/common/logger"
	"github.com/wordpot/engine/pkg/infra"
	"github.com/wordpot/engine/pkg/kvstore"
	"github.com/wordpot/engine/pkg/model"
	"github.com/wordpot/engine/pkg/retry"
	"github.com/wordpot/engine/pkg/wordlist"
)

var ErrNoSettler = errors.New("no settler configured")

// Options are the injectable collaborators. Every nil field falls back to
// what the config selects; tests inject memory stores and static feeds.
type Options struct {
	Store     store.Store
	KV        infra.KVStore
	Queue     settlement.Queue
	Emitter   events.Emitter
	Oracle    oracle.Oracle
	Settler   settlement.Settler
	Referrers round.ReferrerLookup
	// MasterKey overrides the key from the configured env var. 32 bytes.
	MasterKey []byte
}

type Engine struct {
	cfg    core.Config
	store  store.Store
	kv     infra.KVStore
	dict   *wordlist.Dictionary
	ledger *ledger.Ledger
	prices pricing.Schedule
	rounds *round.Lifecycle
	guess  *guess.Processor
	oracle oracle.Oracle

	queue   settlement.Queue
	journal *settlement.Journal
	worker  *settlement.Worker
	emitter events.Emitter

	natsConn *nats.Conn
}

func New(cfg core.Config, opts Options) (*Engine, error) {
	e := &Engine{cfg: cfg}

	var err error
	if e.dict, err = loadDictionary(cfg.Ruleset.Words); err != nil {
		return nil, err
	}

	key := opts.MasterKey
	if key == nil {
		if key, err = masterKeyFromEnv(cfg.Ruleset.MasterKeyEnv); err != nil {
			return nil, err
		}
	}
	cm, err := commitment.NewManager(key)
	if err != nil {
		return nil, err
	}

	if e.store = opts.Store; e.store == nil {
		switch cfg.Storage.Type {
		case "postgres":
			if e.store, err = postgres.Open(cfg.Storage.DB.URL); err != nil {
				return nil, err
			}
		case "memory":
			e.store = store.NewMemory()
		default:
			return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
		}
	}

	if e.kv = opts.KV; e.kv == nil {
		if e.kv, err = kvstore.NewFromConfig(cfg.Storage.KV); err != nil {
			return nil, err
		}
	}

	if cfg.NATS.URL != "" && (opts.Queue == nil || opts.Emitter == nil) {
		err = retry.Exponential(func() error {
			var connErr error
			e.natsConn, connErr = nats.Connect(cfg.NATS.URL)
			return connErr
		}, time.Second, 30*time.Second, func(err error, next time.Duration) {
			logger.Warn("nats connect failed, retrying", "next", next, "error", err)
		})
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
	}
	if e.queue = opts.Queue; e.queue == nil {
		if e.natsConn != nil {
			if e.queue, err = settlement.NewNATSQueue(e.natsConn, cfg.NATS.QueueStream); err != nil {
				return nil, err
			}
		} else {
			e.queue = settlement.NewMemoryQueue(0)
		}
	}
	if e.emitter = opts.Emitter; e.emitter == nil {
		if cfg.NATS.URL != "" {
			if e.emitter, err = events.NewNATSEmitter(cfg.NATS.URL, cfg.NATS.SubjectPrefix); err != nil {
				return nil, err
			}
		} else {
			e.emitter = events.Nop{}
		}
	}

	if opts.Oracle != nil {
		e.oracle = oracle.NewCached(opts.Oracle, e.kv, cfg.Oracle.CachePrefix)
	}

	e.ledger = ledger.New(e.store, ledger.Config{
		BaseDaily:         cfg.Ruleset.Credits.BaseDaily,
		ShareBonusCredits: cfg.Ruleset.Credits.ShareBonus,
		PackSize:          cfg.Ruleset.Credits.PackSize,
		DailyPackCap:      cfg.Ruleset.Credits.DailyPackCap,
	})
	e.prices = pricing.FromConfig(cfg.Ruleset.Pricing)

	disc := discovery.New(e.queue)
	e.rounds = round.NewLifecycle(
		e.store, cm, e.dict, e.queue, e.emitter, opts.Referrers,
		round.PayoutRulesFromConfig(cfg.Ruleset.Payout),
		cfg.Ruleset.Words, cfg.Ruleset.Version,
	)
	e.guess = guess.NewProcessor(e.store, e.ledger, disc, e.rounds, e.emitter, e.dict)

	e.journal = settlement.NewJournal(e.kv)
	if opts.Settler != nil {
		e.worker = settlement.NewWorker(e.queue, opts.Settler, e.journal, e.store)
	}

	logger.Info("engine wired",
		"ruleset", cfg.Ruleset.Version,
		"storage", cfg.Storage.Type,
		"answers", e.dict.AnswerCount(),
		"settler", opts.Settler != nil,
	)
	return e, nil
}

func loadDictionary(cfg core.WordsConfig) (*wordlist.Dictionary, error) {
	if cfg.GuessWordsFile == "" {
		return wordlist.Default(), nil
	}
	return wordlist.FromFiles(cfg.GuessWordsFile, cfg.AnswerWordsFile)
}

func masterKeyFromEnv(envVar string) ([]byte, error) {
	if envVar == "" {
		return nil, errors.New("master_key_env not configured")
	}
	raw := os.Getenv(envVar)
	if raw == "" {
		return nil, fmt.Errorf("env %s is empty", envVar)
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("env %s is not hex: %w", envVar, err)
	}
	return key, nil
}

// RunSettlement blocks draining the settlement queue until ctx is done.
func (e *Engine) RunSettlement(ctx context.Context) error {
	if e.worker == nil {
		return ErrNoSettler
	}
	return e.worker.Run(ctx)
}

func (e *Engine) Close() {
	e.emitter.Close()
	e.queue.Close()
	if e.natsConn != nil {
		e.natsConn.Close()
	}
	if err := e.kv.Close(); err != nil {
		logger.Warn("closing kv store failed", "error", err)
	}
}

// OpenRound starts a new round funded with jackpotWei fresh wei on top of
// any carried seed and parked reserve. secretWord may be empty for a random
// draw from the answer pool.
func (e *Engine) OpenRound(ctx context.Context, jackpotWei string, secretWord string) (*model.Round, error) {
	jackpot, err := uint256.FromDecimal(jackpotWei)
	if err != nil {
		return nil, fmt.Errorf("jackpot amount %q: %w", jackpotWei, err)
	}
	return e.rounds.Open(ctx, round.OpenParams{
		SecretWord: secretWord,
		JackpotWei: jackpot,
	})
}

// OpenRoundUsd opens a round funded from a USD amount, converted to wei at
// the oracle's current ETH rate.
func (e *Engine) OpenRoundUsd(ctx context.Context, jackpotUsd string, secretWord string) (*model.Round, error) {
	if e.oracle == nil {
		return nil, errors.New("usd-denominated funding needs a price oracle")
	}
	usd, err := decimal.NewFromString(jackpotUsd)
	if err != nil {
		return nil, fmt.Errorf("jackpot usd amount %q: %w", jackpotUsd, err)
	}
	rate, err := e.oracle.EthUsdRate(ctx)
	if err != nil {
		return nil, err
	}
	jackpot, err := oracle.UsdToWei(usd, rate)
	if err != nil {
		return nil, err
	}
	return e.rounds.Open(ctx, round.OpenParams{
		SecretWord: secretWord,
		JackpotWei: jackpot,
	})
}

// ResolveRound is the operator-driven resolution path, idempotent on
// already-resolved rounds.
func (e *Engine) ResolveRound(ctx context.Context, roundID string, winner int64) (*round.Resolution, error) {
	return e.rounds.Resolve(ctx, roundID, winner)
}

func (e *Engine) CancelRound(ctx context.Context, roundID string) error {
	return e.rounds.Cancel(ctx, roundID)
}

// Reveal returns the words, salts and hashes of a finished round so anyone
// can recheck the commitments.
func (e *Engine) Reveal(ctx context.Context, roundID string) ([]commitment.RevealedWord, error) {
	return e.rounds.Reveal(ctx, roundID)
}

// SubmitGuess scores one guess. The holder allowance is refreshed from the
// feeds first, best-effort: a dead oracle never blocks a guess, it only
// means no new holder credits this call.
func (e *Engine) SubmitGuess(ctx context.Context, account int64, word string) (*guess.Result, error) {
	e.refreshHolderAllowance(ctx, account)
	return e.guess.Submit(ctx, account, word)
}

func (e *Engine) refreshHolderAllowance(ctx context.Context, account int64) {
	if e.oracle == nil || len(e.cfg.Ruleset.Credits.HolderTiers) == 0 {
		return
	}
	tier, err := e.oracle.HolderTier(ctx, account)
	if err != nil {
		logger.Warn("holder tier unavailable, skipping allowance refresh", "account", account, "error", err)
		return
	}
	if tier <= 0 {
		return
	}
	mcap, err := e.oracle.MarketCapUsd(ctx)
	if err != nil {
		logger.Warn("market cap unavailable, skipping allowance refresh", "error", err)
		return
	}
	alloc := oracle.HolderAllocation(tier, mcap, e.cfg.Ruleset.Credits.HolderTiers)
	if alloc <= 0 {
		return
	}
	day := ledger.Day(time.Now())
	if _, err := e.ledger.UpgradeHolderTier(ctx, account, day, alloc); err != nil {
		logger.Warn("holder allowance upgrade failed", "account", account, "error", err)
	}
}

// QuotePacks prices n packs for the account against the active round without
// committing anything.
func (e *Engine) QuotePacks(ctx context.Context, account int64, n int) (*pricing.Quote, error) {
	rd, err := e.store.ActiveRound(ctx)
	if err != nil {
		return nil, err
	}
	packs, err := e.ledger.PacksInRound(ctx, account, ledger.Day(time.Now()), rd.ID)
	if err != nil {
		return nil, err
	}
	q := e.prices.QuotePacks(rd.TotalGuesses, packs, n)
	return &q, nil
}

// Purchase is the priced outcome of a confirmed pack purchase.
type Purchase struct {
	Quote   pricing.Quote
	Credits *model.DailyCreditState
}

// PurchasePacks quotes and credits n packs atomically. Payment collection is
// the caller's concern; the returned quote is what must be charged.
func (e *Engine) PurchasePacks(ctx context.Context, account int64, n int) (*Purchase, error) {
	rd, err := e.store.ActiveRound(ctx)
	if err != nil {
		return nil, err
	}
	day := ledger.Day(time.Now())

	var out Purchase
	err = e.store.Atomic(ctx, func(tx store.Store) error {
		ld := e.ledger.WithTx(tx)
		packs, err := ld.PacksInRound(ctx, account, day, rd.ID)
		if err != nil {
			return err
		}
		out.Quote = e.prices.QuotePacks(rd.TotalGuesses, packs, n)
		out.Credits, err = ld.AwardPack(ctx, account, day, rd.ID, n)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AwardShareBonus grants the once-per-day social share credits.
func (e *Engine) AwardShareBonus(ctx context.Context, account int64) (*model.DailyCreditState, error) {
	return e.ledger.AwardShareBonus(ctx, account, ledger.Day(time.Now()))
}

// Credits returns the account's credit state for today, creating it with the
// base allowance on first touch.
func (e *Engine) Credits(ctx context.Context, account int64) (*model.DailyCreditState, error) {
	return e.ledger.GetOrCreate(ctx, account, ledger.Day(time.Now()))
}

// ActiveRound returns the running round, or store.ErrNotFound.
func (e *Engine) ActiveRound(ctx context.Context) (*model.Round, error) {
	return e.store.ActiveRound(ctx)
}

// RoundPayouts lists the persisted split of a resolved round.
func (e *Engine) RoundPayouts(ctx context.Context, roundID string) ([]*model.Payout, error) {
	return e.store.PayoutsByRound(ctx, roundID)
}

// UnreconciledSettlements lists journal entries that never confirmed, for
// operator reconciliation.
func (e *Engine) UnreconciledSettlements() ([]settlement.JournalEntry, error) {
	return e.journal.Unreconciled()
}
