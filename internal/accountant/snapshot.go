package accountant

import (
	"roundledger/internal/ledgererrors"
	"roundledger/internal/models"
	"roundledger/internal/store"
)

// TakeSnapshot copies the balance, vote weight and forging totals of every
// delegate into the snapshot of round. Taking a second snapshot for the same
// round is a ConsistencyError.
func (a *Accountant) TakeSnapshot(tx store.Tx, round, height int64) error {
	_, _, err := tx.Snapshot(round)
	switch {
	case err == nil:
		return ledgererrors.Consistencyf("snapshot for round %d already taken", round)
	case !store.IsNotFound(err):
		return err
	}

	delegates, err := tx.Delegates()
	if err != nil {
		return err
	}
	rows := make([]models.DelegateSnapshot, 0, len(delegates))
	for _, d := range delegates {
		rows = append(rows, models.DelegateSnapshot{
			Round:          round,
			Address:        d.Address,
			Balance:        d.Balance,
			Vote:           d.Vote,
			ProducedBlocks: d.ProducedBlocks,
			Fees:           d.Fees,
			Rewards:        d.Rewards,
		})
	}
	a.log.Printf("snapshot round=%d height=%d delegates=%d", round, height, len(rows))
	return tx.PutSnapshot(&models.RoundSnapshot{Round: round, TakenHeight: height}, rows)
}

// ClearSnapshot discards the snapshot of round without applying it.
func (a *Accountant) ClearSnapshot(tx store.Tx, round int64) error {
	if _, _, err := tx.Snapshot(round); err != nil {
		if store.IsNotFound(err) {
			return ledgererrors.Consistencyf("no snapshot to clear for round %d", round)
		}
		return err
	}
	return tx.DeleteSnapshot(round)
}

// RestoreSnapshot writes the snapshot of round back over the current
// delegate state and then discards it. Missed blocks are not part of the
// snapshot; they are undone with UpdateMissedBlocks.
func (a *Accountant) RestoreSnapshot(tx store.Tx, round int64) error {
	_, rows, err := tx.Snapshot(round)
	if store.IsNotFound(err) {
		return ledgererrors.Consistencyf("no snapshot to restore for round %d", round)
	}
	if err != nil {
		return err
	}
	for _, row := range rows {
		acct, err := tx.Account(row.Address)
		if store.IsNotFound(err) {
			return ledgererrors.Consistencyf("snapshot of round %d references missing delegate %s", round, row.Address)
		}
		if err != nil {
			return err
		}
		acct.Balance = row.Balance
		acct.Vote = row.Vote
		acct.ProducedBlocks = row.ProducedBlocks
		acct.Fees = row.Fees
		acct.Rewards = row.Rewards
		if err := tx.PutAccount(acct); err != nil {
			return err
		}
	}
	a.log.Printf("restored snapshot round=%d delegates=%d", round, len(rows))
	return tx.DeleteSnapshot(round)
}
