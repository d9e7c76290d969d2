package accountant

import (
	"roundledger/internal/delegates"
	"roundledger/internal/ledgererrors"
	"roundledger/internal/models"
	"roundledger/internal/store"
)

// RegisterForger makes sure the generator of a block has a delegate account.
// It reports whether the account was created.
func (a *Accountant) RegisterForger(tx store.Tx, publicKey string) (string, bool, error) {
	acct, err := tx.AccountByPublicKey(publicKey)
	if err == nil {
		if !acct.IsDelegate {
			return "", false, ledgererrors.Validationf("forger %s is not a delegate", acct.Address)
		}
		return acct.Address, false, nil
	}
	if !store.IsNotFound(err) {
		return "", false, err
	}

	address, err := delegates.AddressFromPublicKey(publicKey)
	if err != nil {
		return "", false, err
	}
	if _, err := tx.Account(address); err == nil {
		return "", false, ledgererrors.Validationf("forger %s exists without a registered public key", address)
	} else if !store.IsNotFound(err) {
		return "", false, err
	}
	if err := tx.PutAccount(&models.Account{Address: address, PublicKey: publicKey, IsDelegate: true}); err != nil {
		return "", false, err
	}
	a.log.Printf("registered forger %s", address)
	return address, true, nil
}

// RecordBlock applies the balance and vote changes of a confirmed block,
// records their accounting entries and stores the block record.
func (a *Accountant) RecordBlock(tx store.Tx, b *models.ConfirmedBlock) (*models.RoundBlock, error) {
	ref := EntryRef{BlockID: b.ID, Height: b.Height, Round: b.Round}
	rec := &models.RoundBlock{
		Height:             b.Height,
		BlockID:            b.ID,
		Round:              b.Round,
		GeneratorPublicKey: b.GeneratorPublicKey,
		TotalFee:           b.TotalFee,
		Reward:             b.Reward,
		BalanceChanges:     b.BalanceChanges,
		VoteChanges:        b.VoteChanges,
	}

	forger, created, err := a.RegisterForger(tx, b.GeneratorPublicKey)
	if err != nil {
		return nil, err
	}
	if created {
		rec.CreatedAccounts = append(rec.CreatedAccounts, forger)
	}

	for _, c := range b.BalanceChanges {
		acct, err := tx.Account(c.Address)
		switch {
		case store.IsNotFound(err):
			acct = &models.Account{Address: c.Address}
			rec.CreatedAccounts = append(rec.CreatedAccounts, c.Address)
		case err != nil:
			return nil, err
		}
		acct.Balance += c.Amount
		if acct.Balance < 0 {
			return nil, ledgererrors.Validationf("balance of %s would become negative at height %d", c.Address, b.Height)
		}
		if err := tx.PutAccount(acct); err != nil {
			return nil, err
		}
		if err := a.RecordAmount(tx, ref, c.Address, c.Amount); err != nil {
			return nil, err
		}
	}

	for _, v := range b.VoteChanges {
		if err := a.applyVoteChange(tx, ref, v); err != nil {
			return nil, err
		}
	}

	if err := tx.PutBlock(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (a *Accountant) applyVoteChange(tx store.Tx, ref EntryRef, v models.VoteChange) error {
	if !v.Mode.Valid() {
		return ledgererrors.Validationf("invalid vote mode %q", v.Mode)
	}
	d, err := tx.Account(v.Delegate)
	if store.IsNotFound(err) || (err == nil && !d.IsDelegate) {
		return ledgererrors.Validationf("vote target %s is not a delegate", v.Delegate)
	}
	if err != nil {
		return err
	}
	voted, err := tx.VotedDelegates(v.Voter)
	if err != nil {
		return err
	}
	linked := contains(voted, v.Delegate)
	if v.Mode == models.VoteAdd && linked {
		return ledgererrors.Validationf("%s already votes for %s", v.Voter, v.Delegate)
	}
	if v.Mode == models.VoteRemove && !linked {
		return ledgererrors.Validationf("%s does not vote for %s", v.Voter, v.Delegate)
	}

	if err := a.RecordVote(tx, ref, v.Voter, v.Delegate, v.Mode); err != nil {
		return err
	}
	if v.Mode == models.VoteAdd {
		return tx.PutVoteLink(v.Voter, v.Delegate)
	}
	return tx.DeleteVoteLink(v.Voter, v.Delegate)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// RevertBlock undoes the vote and balance changes of a block record, removes
// the accounts it created and deletes the record. Entries are not touched.
func (a *Accountant) RevertBlock(tx store.Tx, b models.RoundBlock) error {
	for i := len(b.VoteChanges) - 1; i >= 0; i-- {
		v := b.VoteChanges[i]
		var err error
		if v.Mode == models.VoteAdd {
			err = tx.DeleteVoteLink(v.Voter, v.Delegate)
		} else {
			err = tx.PutVoteLink(v.Voter, v.Delegate)
		}
		if err != nil {
			return err
		}
	}

	for i := len(b.BalanceChanges) - 1; i >= 0; i-- {
		c := b.BalanceChanges[i]
		acct, err := tx.Account(c.Address)
		if store.IsNotFound(err) {
			return ledgererrors.Consistencyf("cannot revert height %d: account %s is gone", b.Height, c.Address)
		}
		if err != nil {
			return err
		}
		acct.Balance -= c.Amount
		if err := tx.PutAccount(acct); err != nil {
			return err
		}
	}

	for _, addr := range b.CreatedAccounts {
		voted, err := tx.VotedDelegates(addr)
		if err != nil {
			return err
		}
		if len(voted) > 0 {
			return ledgererrors.Consistencyf("cannot remove account %s created at height %d: it still votes", addr, b.Height)
		}
		if err := tx.DeleteAccount(addr); err != nil {
			return err
		}
	}
	return tx.DeleteBlock(b.Height)
}

// Truncate discards everything recorded above height: pending entries, block
// records and the account changes those blocks made, newest first.
func (a *Accountant) Truncate(tx store.Tx, height int64) error {
	if err := tx.DeleteEntriesAbove(height); err != nil {
		return err
	}
	blocks, err := tx.BlocksAbove(height)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if err := a.RevertBlock(tx, b); err != nil {
			return err
		}
	}
	if len(blocks) > 0 {
		a.log.Printf("truncated %d blocks above height %d", len(blocks), height)
	}
	return nil
}
