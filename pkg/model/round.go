package model

import (
	"time"
)

type RoundStatus string

const (
	RoundStatusActive    RoundStatus = "active"
	RoundStatusResolved  RoundStatus = "resolved"
	RoundStatusCancelled RoundStatus = "cancelled"
)

// Round is one daily competition. The secret word is stored encrypted for
// the whole life of the row; plaintext only ever leaves through the reveal
// path once the round is resolved.
type Round struct {
	BaseModel
	RulesetVersion   string      `gorm:"not null"                        json:"ruleset_version"`
	SecretCiphertext []byte      `gorm:"not null"                        json:"-"`
	SecretSalt       string      `gorm:"not null"                        json:"-"`
	SecretHash       string      `gorm:"not null"                        json:"secret_hash"`
	JackpotWei       string      `gorm:"not null;type:numeric"           json:"jackpot_wei"`
	SeedWei          string      `gorm:"not null;type:numeric;default:0" json:"seed_wei"`
	WinnerAccount    *int64      `                                       json:"winner_account,omitempty"`
	ReferrerAccount  *int64      `                                       json:"referrer_account,omitempty"`
	Status           RoundStatus `gorm:"not null;index"                  json:"status"`
	SeedCarried      bool        `gorm:"not null;default:false"          json:"seed_carried"`
	TotalGuesses     int64       `gorm:"not null;default:0"              json:"total_guesses"`
	StartedAt        time.Time   `gorm:"not null"                        json:"started_at"`
	ResolvedAt       *time.Time  `                                       json:"resolved_at,omitempty"`
}

func (Round) TableName() string { return "rounds" }

func (r *Round) Active() bool { return r.Status == RoundStatusActive }
