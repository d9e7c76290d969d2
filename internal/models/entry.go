package models

// AccountingEntry is a pending vote-weight delta for Delegate caused by a
// movement on Address. Entries are folded into votes when their round is
// finalized and then flushed.
type AccountingEntry struct {
	ID       uint64 `gorm:"primaryKey" json:"id"`
	Address  string `gorm:"size:64;not null" json:"address"`
	Amount   int64  `gorm:"not null" json:"amount"`
	Delegate string `gorm:"size:64;not null" json:"delegate"`
	BlockID  string `gorm:"size:128;index;not null" json:"block_id"`
	Height   int64  `gorm:"index;not null" json:"height"`
	Round    int64  `gorm:"index;not null" json:"round"`
}
