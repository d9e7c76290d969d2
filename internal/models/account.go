// Package models defines the ledger records shared by the store engines.
package models

// Account is a ledger account. Delegates carry forging statistics; plain
// voter accounts only use Balance.
type Account struct {
	Address        string `gorm:"primaryKey;size:64" json:"address"`
	PublicKey      string `gorm:"size:64;index" json:"public_key,omitempty"`
	Username       string `gorm:"size:64" json:"username,omitempty"`
	IsDelegate     bool   `gorm:"index" json:"is_delegate"`
	Balance        int64  `gorm:"not null" json:"balance"`
	Vote           int64  `gorm:"not null" json:"vote"`
	ProducedBlocks int64  `gorm:"not null" json:"produced_blocks"`
	MissedBlocks   int64  `gorm:"not null" json:"missed_blocks"`
	Fees           int64  `gorm:"not null" json:"fees"`
	Rewards        int64  `gorm:"not null" json:"rewards"`
}

// VoteLink records that Voter votes for Delegate. Links are maintained from
// the vote changes carried by confirmed blocks.
type VoteLink struct {
	VoterAddress    string `gorm:"primaryKey;size:64" json:"voter_address"`
	DelegateAddress string `gorm:"primaryKey;size:64" json:"delegate_address"`
}
