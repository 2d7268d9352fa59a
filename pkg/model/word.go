package model

import (
	"time"
)

// WordFamily selects the commitment byte layout. The secret word keeps the
// legacy salt-then-word order; bonus and burn words use word-then-salt.
type WordFamily string

const (
	FamilySecret WordFamily = "secret"
	FamilyHidden WordFamily = "hidden"
)

// Commitment is the public, pre-published hash binding one committed word.
// WordIndex 0 is the secret; 1..N are bonus words; N+1.. are burn words.
type Commitment struct {
	BaseModel
	RoundID   string     `gorm:"not null;uniqueIndex:idx_round_index" json:"round_id"`
	WordIndex int        `gorm:"not null;uniqueIndex:idx_round_index" json:"word_index"`
	Family    WordFamily `gorm:"not null"                             json:"family"`
	Salt      string     `gorm:"not null"                             json:"salt"`
	Hash      string     `gorm:"not null"                             json:"hash"`
}

func (Commitment) TableName() string { return "commitments" }

type HiddenKind string

const (
	HiddenKindBonus HiddenKind = "bonus"
	HiddenKindBurn  HiddenKind = "burn"
)

// HiddenWord is a bonus or burn word planted in a round. At most one finder
// per word: the claim is a conditional update on FinderAccount IS NULL.
type HiddenWord struct {
	BaseModel
	RoundID       string     `gorm:"not null;index;uniqueIndex:idx_round_word_index" json:"round_id"`
	WordIndex     int        `gorm:"not null;uniqueIndex:idx_round_word_index"       json:"word_index"`
	Kind          HiddenKind `gorm:"not null"                                        json:"kind"`
	Ciphertext    []byte     `gorm:"not null"                                        json:"-"`
	Salt          string     `gorm:"not null"                                        json:"-"`
	Hash          string     `gorm:"not null"                                        json:"hash"`
	AmountWei     string     `gorm:"not null;type:numeric"                           json:"amount_wei"`
	FinderAccount *int64     `                                                       json:"finder_account,omitempty"`
	FoundAt       *time.Time `                                                       json:"found_at,omitempty"`
	SettlementRef string     `gorm:"default:''"                                      json:"settlement_ref,omitempty"`
}

func (HiddenWord) TableName() string { return "hidden_words" }

func (h *HiddenWord) Claimed() bool { return h.FinderAccount != nil }
