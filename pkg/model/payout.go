package model

type PayoutRole string

const (
	RoleWinner     PayoutRole = "winner"
	RoleReferrer   PayoutRole = "referrer"
	RoleTopGuesser PayoutRole = "top_guesser"
	RoleSeed       PayoutRole = "seed"
	RoleCreator    PayoutRole = "creator"
)

// Payout is one line of a round's prize split. Pool-level lines (seed) carry
// a nil recipient. The lines of a round always sum to the starting jackpot
// exactly, in integer wei.
type Payout struct {
	BaseModel
	RoundID   string     `gorm:"not null;index"        json:"round_id"`
	AccountID *int64     `                             json:"account_id,omitempty"`
	AmountWei string     `gorm:"not null;type:numeric" json:"amount_wei"`
	Role      PayoutRole `gorm:"not null"              json:"role"`
	Rank      int        `gorm:"not null;default:0"    json:"rank"` // 1-based for top_guesser lines
}

func (Payout) TableName() string { return "payouts" }
