package model

// ReserveAccumulator holds seed overflow beyond the per-round cap. A single
// row; never dropped, only drained into a future round's jackpot.
type ReserveAccumulator struct {
	ID        int    `gorm:"primarykey"            json:"id"`
	AmountWei string `gorm:"not null;type:numeric" json:"amount_wei"`
}

func (ReserveAccumulator) TableName() string { return "reserve_accumulator" }
