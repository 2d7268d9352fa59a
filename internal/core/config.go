package core

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/holiman/uint256"

	"github.com/wordpot/engine/pkg/kvstore"
)

type Config struct {
	Ruleset RulesetConfig `yaml:"ruleset" validate:"required"`
	NATS    NATSConfig    `yaml:"nats"`
	Storage StorageConfig `yaml:"storage"`
	Oracle  OracleConfig  `yaml:"oracle"`
}

// RulesetConfig is the single versioned rule structure. Earlier generations
// of the game carried several overlapping bonus-tier constant sets; they all
// collapse into this.
type RulesetConfig struct {
	Version string        `yaml:"version" validate:"required"`
	Credits CreditsConfig `yaml:"credits"`
	Pricing PricingConfig `yaml:"pricing"`
	Payout  PayoutConfig  `yaml:"payout"`
	Words   WordsConfig   `yaml:"words"`

	// MasterKeyEnv names the env var holding the 32-byte hex key used to
	// encrypt committed words at rest.
	MasterKeyEnv string `yaml:"master_key_env"`
}

type CreditsConfig struct {
	BaseDaily    int          `yaml:"base_daily"     validate:"min=0"`
	ShareBonus   int          `yaml:"share_bonus"    validate:"min=0"`
	PackSize     int          `yaml:"pack_size"      validate:"min=1"`
	DailyPackCap int          `yaml:"daily_pack_cap" validate:"min=0"` // 0 = unlimited
	HolderTiers  []HolderTier `yaml:"holder_tiers"`
}

// HolderTier grants extra daily free credits once the project market cap is
// at or above the threshold. Tiers must be listed in ascending order.
type HolderTier struct {
	MinMarketCapUsd string `yaml:"min_market_cap_usd" validate:"required"`
	BonusCredits    int    `yaml:"bonus_credits"      validate:"min=0"`
}

type PricingConfig struct {
	BaseWei       string       `yaml:"base_wei"       validate:"required"`
	RampThreshold int64        `yaml:"ramp_threshold" validate:"min=0"`
	StepWei       string       `yaml:"step_wei"       validate:"required"`
	BlockSize     int64        `yaml:"block_size"     validate:"min=1"`
	CapWei        string       `yaml:"cap_wei"        validate:"required"`
	VolumeTiers   []VolumeTier `yaml:"volume_tiers"`
}

type VolumeTier struct {
	MinPacks      int `yaml:"min_packs"      validate:"min=0"`
	MultiplierBps int `yaml:"multiplier_bps" validate:"min=10000"`
}

type PayoutConfig struct {
	WinnerBps   int    `yaml:"winner_bps"   validate:"min=0,max=10000"`
	ReferrerBps int    `yaml:"referrer_bps" validate:"min=0,max=10000"`
	TopBps      int    `yaml:"top_bps"      validate:"min=0,max=10000"`
	SeedBps     int    `yaml:"seed_bps"     validate:"min=0,max=10000"`
	CreatorBps  int    `yaml:"creator_bps"  validate:"min=0,max=10000"`
	TopWeights  []int  `yaml:"top_weights"`
	RankingLock int64  `yaml:"ranking_lock" validate:"min=0"` // total-guess count; 0 = never locks
	SeedCapWei  string `yaml:"seed_cap_wei" validate:"required"`
	CreatorAccount *int64 `yaml:"creator_account"`
}

type WordsConfig struct {
	BonusCount     int    `yaml:"bonus_count"      validate:"min=0"`
	BurnCount      int    `yaml:"burn_count"       validate:"min=0"`
	BonusRewardWei string `yaml:"bonus_reward_wei" validate:"required"`
	BurnAmountWei  string `yaml:"burn_amount_wei"  validate:"required"`
	GuessWordsFile string `yaml:"guess_words_file"`
	AnswerWordsFile string `yaml:"answer_words_file"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	QueueStream   string `yaml:"queue_stream"`
}

type StorageConfig struct {
	Type string         `yaml:"type"` // memory | postgres
	DB   DBConfig       `yaml:"db"`
	KV   kvstore.Config `yaml:"kv"`
}

type DBConfig struct {
	URL string `yaml:"url"`
}

type OracleConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	CachePrefix     string        `yaml:"cache_prefix"`
}

// Load reads YAML, applies defaults and validates. Wei fields are checked to
// parse as unsigned decimal integers here so later FromDecimal calls cannot
// fail at runtime.
func Load(path string) (Config, error) {
	var cfg Config

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}

	cfg.applyDefaults()

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("config validation: %w", err)
	}
	if err := cfg.Ruleset.check(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	r := &c.Ruleset
	if r.Version == "" {
		r.Version = "v1"
	}
	if r.Credits.BaseDaily == 0 {
		r.Credits.BaseDaily = 5
	}
	if r.Credits.PackSize == 0 {
		r.Credits.PackSize = 10
	}
	if r.Pricing.BlockSize == 0 {
		r.Pricing.BlockSize = 500
	}
	if len(r.Pricing.VolumeTiers) == 0 {
		r.Pricing.VolumeTiers = []VolumeTier{{MinPacks: 0, MultiplierBps: 10000}}
	}
	if len(r.Payout.TopWeights) == 0 {
		r.Payout.TopWeights = []int{19, 16, 14, 11, 10, 6, 6, 6, 6, 6}
	}
	if r.Payout.WinnerBps == 0 && r.Payout.ReferrerBps == 0 && r.Payout.TopBps == 0 {
		r.Payout.WinnerBps = 8000
		r.Payout.ReferrerBps = 1000
		r.Payout.TopBps = 1000
	}
	if r.Payout.SeedCapWei == "" {
		r.Payout.SeedCapWei = "0"
	}
	if r.Words.BonusRewardWei == "" {
		r.Words.BonusRewardWei = "0"
	}
	if r.Words.BurnAmountWei == "" {
		r.Words.BurnAmountWei = "0"
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "wordpot"
	}
	if c.NATS.QueueStream == "" {
		c.NATS.QueueStream = "WORDPOT_SETTLEMENT"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Storage.KV.Type == "" {
		c.Storage.KV.Type = kvstore.TypeMemory
	}
	if c.Oracle.RefreshInterval == 0 {
		c.Oracle.RefreshInterval = 5 * time.Minute
	}
	if c.Oracle.CachePrefix == "" {
		c.Oracle.CachePrefix = "oracle"
	}
}

func (r *RulesetConfig) check() error {
	total := r.Payout.WinnerBps + r.Payout.ReferrerBps + r.Payout.TopBps +
		r.Payout.SeedBps + r.Payout.CreatorBps
	if total != 10000 {
		return fmt.Errorf("payout shares must sum to 10000 bps, got %d", total)
	}
	if r.Payout.CreatorBps > 0 && r.Payout.CreatorAccount == nil {
		return fmt.Errorf("creator_bps set without creator_account")
	}
	for _, w := range r.Payout.TopWeights {
		if w <= 0 {
			return fmt.Errorf("top weights must be positive, got %d", w)
		}
	}
	for i := 1; i < len(r.Pricing.VolumeTiers); i++ {
		if r.Pricing.VolumeTiers[i].MinPacks <= r.Pricing.VolumeTiers[i-1].MinPacks {
			return fmt.Errorf("volume tiers must have ascending min_packs")
		}
	}
	for _, s := range []string{
		r.Pricing.BaseWei, r.Pricing.StepWei, r.Pricing.CapWei,
		r.Payout.SeedCapWei, r.Words.BonusRewardWei, r.Words.BurnAmountWei,
	} {
		if _, err := uint256.FromDecimal(s); err != nil {
			return fmt.Errorf("wei amount %q: %w", s, err)
		}
	}
	for _, t := range r.Credits.HolderTiers {
		if _, err := uint256.FromDecimal(t.MinMarketCapUsd); err != nil {
			return fmt.Errorf("holder tier threshold %q: %w", t.MinMarketCapUsd, err)
		}
	}
	return nil
}

// MustWei parses a validated config amount. Call only on fields checked by Load.
func MustWei(s string) *uint256.Int {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		panic(fmt.Sprintf("unvalidated wei amount %q: %v", s, err))
	}
	return v
}
