// Package accountant records the per-block effects of a round and applies or
// undoes them at the round boundary. Every operation runs inside a
// transaction or read view supplied by the caller.
package accountant

import (
	"sort"

	"github.com/pkg/errors"

	"roundledger/internal/ledgererrors"
	"roundledger/internal/logger"
	"roundledger/internal/models"
	"roundledger/internal/store"
)

// EntryRef identifies the block an accounting entry is recorded against.
type EntryRef struct {
	BlockID string
	Height  int64
	Round   int64
}

// Accountant holds no ledger state of its own.
type Accountant struct {
	log *logger.Logger
}

// New creates an Accountant.
func New(log *logger.Logger) *Accountant {
	if log == nil {
		log = logger.Discard()
	}
	return &Accountant{log: log}
}

// RecordAmount records a balance movement of address as one entry for every
// delegate the address votes for.
func (a *Accountant) RecordAmount(tx store.Tx, ref EntryRef, address string, amount int64) error {
	if amount == 0 {
		return nil
	}
	voted, err := tx.VotedDelegates(address)
	if err != nil {
		return err
	}
	for _, delegate := range voted {
		e := &models.AccountingEntry{
			Address:  address,
			Amount:   amount,
			Delegate: delegate,
			BlockID:  ref.BlockID,
			Height:   ref.Height,
			Round:    ref.Round,
		}
		if err := tx.InsertEntry(e); err != nil {
			return err
		}
	}
	return nil
}

// RecordVote records the voter's current balance as a vote-weight delta for
// delegate, positive for VoteAdd and negative for VoteRemove.
func (a *Accountant) RecordVote(tx store.Tx, ref EntryRef, voter, delegate string, mode models.VoteMode) error {
	if !mode.Valid() {
		return ledgererrors.Validationf("invalid vote mode %q", mode)
	}
	acct, err := tx.Account(voter)
	if store.IsNotFound(err) {
		return ledgererrors.Validationf("voter %s does not exist", voter)
	}
	if err != nil {
		return err
	}
	amount := acct.Balance
	if mode == models.VoteRemove {
		amount = -amount
	}
	return tx.InsertEntry(&models.AccountingEntry{
		Address:  voter,
		Amount:   amount,
		Delegate: delegate,
		BlockID:  ref.BlockID,
		Height:   ref.Height,
		Round:    ref.Round,
	})
}

// PendingEntries returns the entries recorded for round and not yet flushed.
func (a *Accountant) PendingEntries(r store.Reader, round int64) ([]models.AccountingEntry, error) {
	return r.Entries(round)
}

// Flush deletes every entry of round.
func (a *Accountant) Flush(tx store.Tx, round int64) error {
	return tx.DeleteEntries(round)
}

// Rebind moves the entries and the block record of oldBlockID to newBlockID.
func (a *Accountant) Rebind(tx store.Tx, newBlockID, oldBlockID string) error {
	if newBlockID == "" {
		return ledgererrors.Validationf("empty replacement block id")
	}
	switch existing, err := tx.BlockByID(newBlockID); {
	case err == nil && newBlockID == oldBlockID:
		return nil
	case err == nil:
		return ledgererrors.Validationf("block id %s is already recorded at height %d", newBlockID, existing.Height)
	case !store.IsNotFound(err):
		return err
	}
	if err := tx.RebindEntries(newBlockID, oldBlockID); err != nil {
		return err
	}
	err := tx.RebindBlock(newBlockID, oldBlockID)
	if store.IsNotFound(err) {
		return ledgererrors.Validationf("block %s is not recorded", oldBlockID)
	}
	return err
}

// AggregateVotes sums the pending entries of round per delegate. Delegates
// whose entries cancel out are omitted.
func (a *Accountant) AggregateVotes(r store.Reader, round int64) (map[string]int64, error) {
	entries, err := r.Entries(round)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	for _, e := range entries {
		out[e.Delegate] += e.Amount
	}
	for d, delta := range out {
		if delta == 0 {
			delete(out, d)
		}
	}
	return out, nil
}

// ApplyVotes adds delta to the vote weight of address.
func (a *Accountant) ApplyVotes(tx store.Tx, address string, delta int64) error {
	acct, err := tx.Account(address)
	if store.IsNotFound(err) {
		return ledgererrors.Consistencyf("vote delta %d for unknown delegate %s", delta, address)
	}
	if err != nil {
		return err
	}
	acct.Vote += delta
	return tx.PutAccount(acct)
}

// ApplyAggregatedVotes applies votes in address order.
func (a *Accountant) ApplyAggregatedVotes(tx store.Tx, votes map[string]int64) error {
	addresses := make([]string, 0, len(votes))
	for addr := range votes {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)
	for _, addr := range addresses {
		if err := a.ApplyVotes(tx, addr, votes[addr]); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMissedBlocks adds one missed block to every outsider, or removes one
// when reverse is set. Duplicate addresses count once.
func (a *Accountant) UpdateMissedBlocks(tx store.Tx, reverse bool, outsiders []string) error {
	for _, addr := range dedupe(outsiders) {
		acct, err := tx.Account(addr)
		if store.IsNotFound(err) {
			return ledgererrors.Consistencyf("outsider %s does not exist", addr)
		}
		if err != nil {
			return err
		}
		if reverse {
			if acct.MissedBlocks == 0 {
				return ledgererrors.Consistencyf("missed blocks of %s would become negative", addr)
			}
			acct.MissedBlocks--
		} else {
			acct.MissedBlocks++
		}
		if err := tx.PutAccount(acct); err != nil {
			return err
		}
	}
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Credit pays fees and reward to a forger and propagates the credited amount
// to the delegates the forger votes for. forged counts a produced block.
func (a *Accountant) Credit(tx store.Tx, ref EntryRef, address string, fees, reward int64, forged bool) error {
	acct, err := tx.Account(address)
	if store.IsNotFound(err) {
		return ledgererrors.Consistencyf("credited forger %s does not exist", address)
	}
	if err != nil {
		return err
	}
	acct.Balance += fees + reward
	acct.Fees += fees
	acct.Rewards += reward
	if forged {
		acct.ProducedBlocks++
	}
	if err := tx.PutAccount(acct); err != nil {
		return err
	}
	return errors.WithMessagef(a.RecordAmount(tx, ref, address, fees+reward), "credit %s", address)
}
