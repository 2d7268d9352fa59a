package model

import (
	"time"
)

// Guess is one scored submission. Rejected submissions (duplicate, invalid)
// never produce a row; only guesses that consumed a credit are recorded.
type Guess struct {
	BaseModel
	RoundID   string    `gorm:"not null;index;uniqueIndex:idx_round_word" json:"round_id"`
	AccountID int64     `gorm:"not null;index"                            json:"account_id"`
	Word      string    `gorm:"not null;uniqueIndex:idx_round_word"       json:"word"`
	Paid      bool      `gorm:"not null"                                  json:"paid"`
	Correct   bool      `gorm:"not null"                                  json:"correct"`
	Bonus     bool      `gorm:"not null"                                  json:"bonus"`
	Burn      bool      `gorm:"not null"                                  json:"burn"`
	Seq       int64     `gorm:"not null"                                  json:"seq"`
	GuessedAt time.Time `gorm:"not null"                                  json:"guessed_at"`
}

func (Guess) TableName() string { return "guesses" }
