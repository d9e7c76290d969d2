// Package store defines the transactional storage boundary used by round
// accounting. Engines live in ldbstore (embedded) and db (Postgres).
package store

import (
	"context"

	"github.com/pkg/errors"

	"roundledger/internal/models"
)

// ErrNotFound is returned by single-row lookups when the row does not exist.
var ErrNotFound = errors.New("not found")

// Reader is a consistent read view of the ledger.
type Reader interface {
	Account(address string) (*models.Account, error)
	AccountByPublicKey(publicKey string) (*models.Account, error)
	// Delegates returns every delegate account ordered by address.
	Delegates() ([]models.Account, error)
	// VotedDelegates returns the delegate addresses voter votes for, sorted.
	VotedDelegates(voter string) ([]string, error)

	// Entries returns the pending entries of round in insertion order.
	Entries(round int64) ([]models.AccountingEntry, error)

	// Blocks returns the blocks of round ordered by height.
	Blocks(round int64) ([]models.RoundBlock, error)
	// BlocksAbove returns blocks with height > height, highest first.
	BlocksAbove(height int64) ([]models.RoundBlock, error)
	LastBlock() (*models.RoundBlock, error)
	BlockByID(id string) (*models.RoundBlock, error)

	RoundRecord(round int64) (*models.RoundRecord, error)
	// RoundRecords returns records with round >= from, ascending.
	RoundRecords(from int64) ([]models.RoundRecord, error)

	Snapshot(round int64) (*models.RoundSnapshot, []models.DelegateSnapshot, error)
	// SnapshotRounds lists the rounds that currently hold a snapshot, ascending.
	SnapshotRounds() ([]int64, error)
}

// Tx is a read-write transaction. Reads observe the transaction's own writes.
type Tx interface {
	Reader

	PutAccount(a *models.Account) error
	DeleteAccount(address string) error
	PutVoteLink(voter, delegate string) error
	DeleteVoteLink(voter, delegate string) error

	// InsertEntry assigns e.ID.
	InsertEntry(e *models.AccountingEntry) error
	DeleteEntries(round int64) error
	DeleteEntriesAbove(height int64) error
	RebindEntries(newBlockID, oldBlockID string) error

	PutBlock(b *models.RoundBlock) error
	RebindBlock(newBlockID, oldBlockID string) error
	DeleteBlock(height int64) error

	PutSnapshot(s *models.RoundSnapshot, rows []models.DelegateSnapshot) error
	DeleteSnapshot(round int64) error

	PutRoundRecord(r *models.RoundRecord) error
	DeleteRoundRecord(round int64) error
}

// Store runs functions inside transactions. Update commits when fn returns nil
// and discards every write otherwise. Errors that may succeed on retry are
// reported as TransientStorageError.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(r Reader) error) error
	Close() error
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
