package model

// DailyCreditState tracks one account's guess credits for one UTC calendar
// day. Free allowances (base, holder tier, share bonus) are exhausted before
// paid credits. HolderBonus only ever goes up within a day, even if the
// market-cap tier behind it drops.
type DailyCreditState struct {
	BaseModel
	AccountID      int64  `gorm:"not null;uniqueIndex:idx_account_day" json:"account_id"`
	Day            string `gorm:"not null;uniqueIndex:idx_account_day" json:"day"` // "2006-01-02", UTC
	BaseAllowance  int    `gorm:"not null"                             json:"base_allowance"`
	HolderBonus    int    `gorm:"not null;default:0"                   json:"holder_bonus"`
	ShareBonus     int    `gorm:"not null;default:0"                   json:"share_bonus"`
	FreeUsed       int    `gorm:"not null;default:0"                   json:"free_used"`
	PaidCredits    int    `gorm:"not null;default:0"                   json:"paid_credits"`
	PacksPurchased int    `gorm:"not null;default:0"                   json:"packs_purchased"`
	PacksRoundID   string `gorm:"default:''"                           json:"packs_round_id"`
	PacksInRound   int    `gorm:"not null;default:0"                   json:"packs_in_round"`
	HasShared      bool   `gorm:"not null;default:false"               json:"has_shared"`
}

func (DailyCreditState) TableName() string { return "daily_credit_states" }

// FreeRemaining never goes negative even if an allowance was granted after
// credits were already spent.
func (s *DailyCreditState) FreeRemaining() int {
	r := s.BaseAllowance + s.HolderBonus + s.ShareBonus - s.FreeUsed
	if r < 0 {
		return 0
	}
	return r
}
