package models

// VoteMode is the direction of a vote change.
type VoteMode string

const (
	VoteAdd    VoteMode = "+"
	VoteRemove VoteMode = "-"
)

// Valid reports whether m is one of the known modes.
func (m VoteMode) Valid() bool {
	return m == VoteAdd || m == VoteRemove
}

// VoteChange is a vote cast or withdrawn by a transaction in a block.
type VoteChange struct {
	Voter    string   `json:"voter"`
	Delegate string   `json:"delegate"`
	Mode     VoteMode `json:"mode"`
}

// BalanceChange is a signed balance movement made by a transaction in a block.
type BalanceChange struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// ConfirmedBlock is a block handed over by block processing once it is part
// of the canonical chain.
type ConfirmedBlock struct {
	ID                 string          `json:"id"`
	Height             int64           `json:"height"`
	Round              int64           `json:"round"`
	GeneratorPublicKey string          `json:"generator_public_key"`
	TotalFee           int64           `json:"total_fee"`
	Reward             int64           `json:"reward"`
	BalanceChanges     []BalanceChange `json:"balance_changes,omitempty"`
	VoteChanges        []VoteChange    `json:"vote_changes,omitempty"`
}

// RoundBlock is the ledger's record of a confirmed block. It keeps enough of
// the block to summarize its round and to revert it on truncation.
type RoundBlock struct {
	Height             int64           `gorm:"primaryKey;autoIncrement:false" json:"height"`
	BlockID            string          `gorm:"size:128;uniqueIndex;not null" json:"block_id"`
	Round              int64           `gorm:"index;not null" json:"round"`
	GeneratorPublicKey string          `gorm:"size:64;not null" json:"generator_public_key"`
	TotalFee           int64           `gorm:"not null" json:"total_fee"`
	Reward             int64           `gorm:"not null" json:"reward"`
	BalanceChanges     []BalanceChange `gorm:"serializer:json" json:"balance_changes,omitempty"`
	VoteChanges        []VoteChange    `gorm:"serializer:json" json:"vote_changes,omitempty"`
	// CreatedAccounts lists accounts that first appeared in this block,
	// including an auto-registered forger.
	CreatedAccounts []string `gorm:"serializer:json" json:"created_accounts,omitempty"`
}
