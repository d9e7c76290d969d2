package models

import "time"

// RoundRecord is written once per finalized round.
type RoundRecord struct {
	Round            int64    `gorm:"primaryKey;autoIncrement:false" json:"round"`
	StartHeight      int64    `gorm:"not null" json:"start_height"`
	EndHeight        int64    `gorm:"not null" json:"end_height"`
	TotalFees        int64    `gorm:"not null" json:"total_fees"`
	FeesRemaining    int64    `gorm:"not null" json:"fees_remaining"`
	RemainderAddress string   `gorm:"size:64" json:"remainder_address,omitempty"`
	Overridden       bool     `json:"overridden"`
	Forgers          []string `gorm:"serializer:json" json:"forgers"`
	Outsiders        []string `gorm:"serializer:json" json:"outsiders"`
	StateDigest      string   `gorm:"size:64" json:"state_digest"`
	// Permanent rounds have had their snapshot discarded and can no longer
	// be rolled back.
	Permanent   bool      `gorm:"index" json:"permanent"`
	FinalizedAt time.Time `json:"finalized_at"`
}

// RoundSnapshot marks that delegate state was captured before round
// finalization.
type RoundSnapshot struct {
	Round       int64 `gorm:"primaryKey;autoIncrement:false" json:"round"`
	TakenHeight int64 `gorm:"not null" json:"taken_height"`
}

// DelegateSnapshot is one delegate row of a RoundSnapshot. Missed blocks are
// not captured; they are undone by the reverse missed-block update.
type DelegateSnapshot struct {
	Round          int64  `gorm:"primaryKey;autoIncrement:false" json:"round"`
	Address        string `gorm:"primaryKey;size:64" json:"address"`
	Balance        int64  `gorm:"not null" json:"balance"`
	Vote           int64  `gorm:"not null" json:"vote"`
	ProducedBlocks int64  `gorm:"not null" json:"produced_blocks"`
	Fees           int64  `gorm:"not null" json:"fees"`
	Rewards        int64  `gorm:"not null" json:"rewards"`
}
