package ldbstore

import (
	"encoding/binary"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"

	"roundledger/internal/models"
	"roundledger/internal/store"
)

type txn struct {
	reader
	ltx *leveldb.Transaction
}

var _ store.Tx = (*txn)(nil)

func (t *txn) put(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %q", key)
	}
	if err := t.ltx.Put(key, data, nil); err != nil {
		return classify(err, "put")
	}
	return nil
}

func (t *txn) delete(key []byte) error {
	if err := t.ltx.Delete(key, nil); err != nil {
		return classify(err, "delete")
	}
	return nil
}

func (t *txn) PutAccount(a *models.Account) error {
	old, err := t.Account(a.Address)
	switch {
	case err == nil:
		if old.PublicKey != "" && old.PublicKey != a.PublicKey {
			if err := t.delete(publicKeyKey(old.PublicKey)); err != nil {
				return err
			}
		}
	case !store.IsNotFound(err):
		return err
	}

	if err := t.put(accountKey(a.Address), a); err != nil {
		return err
	}
	if a.PublicKey != "" {
		if err := t.put(publicKeyKey(a.PublicKey), a.Address); err != nil {
			return err
		}
	}
	if a.IsDelegate {
		return t.put(delegateKey(a.Address), true)
	}
	return t.delete(delegateKey(a.Address))
}

func (t *txn) DeleteAccount(address string) error {
	a, err := t.Account(address)
	if err != nil {
		return err
	}
	if a.PublicKey != "" {
		if err := t.delete(publicKeyKey(a.PublicKey)); err != nil {
			return err
		}
	}
	if err := t.delete(delegateKey(address)); err != nil {
		return err
	}
	return t.delete(accountKey(address))
}

func (t *txn) PutVoteLink(voter, delegate string) error {
	return t.put(voteLinkKey(voter, delegate), true)
}

func (t *txn) DeleteVoteLink(voter, delegate string) error {
	return t.delete(voteLinkKey(voter, delegate))
}

func (t *txn) nextEntrySeq() (uint64, error) {
	var seq uint64
	data, err := t.ltx.Get(entrySeqKey, nil)
	switch {
	case err == nil:
		seq = binary.BigEndian.Uint64(data)
	case !errors.Is(err, leveldb.ErrNotFound):
		return 0, classify(err, "get")
	}
	seq++
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	if err := t.ltx.Put(entrySeqKey, b[:], nil); err != nil {
		return 0, classify(err, "put")
	}
	return seq, nil
}

func (t *txn) InsertEntry(e *models.AccountingEntry) error {
	seq, err := t.nextEntrySeq()
	if err != nil {
		return err
	}
	e.ID = seq
	return t.put(entryKey(e.Round, seq), e)
}

func (t *txn) DeleteEntries(round int64) error {
	keys, err := t.keys(entryRoundPrefix(round))
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := t.delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) DeleteEntriesAbove(height int64) error {
	var doomed [][]byte
	err := t.allEntries(func(key []byte, e models.AccountingEntry) error {
		if e.Height > height {
			doomed = append(doomed, key)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range doomed {
		if err := t.delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) RebindEntries(newBlockID, oldBlockID string) error {
	type rebound struct {
		key   []byte
		entry models.AccountingEntry
	}
	var changed []rebound
	err := t.allEntries(func(key []byte, e models.AccountingEntry) error {
		if e.BlockID == oldBlockID {
			e.BlockID = newBlockID
			changed = append(changed, rebound{key: key, entry: e})
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, c := range changed {
		if err := t.put(c.key, c.entry); err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) PutBlock(b *models.RoundBlock) error {
	if err := t.put(blockKey(b.Height), b); err != nil {
		return err
	}
	if err := t.put(blockIDKey(b.BlockID), b.Height); err != nil {
		return err
	}
	return t.put(roundBlockKey(b.Round, b.Height), true)
}

func (t *txn) RebindBlock(newBlockID, oldBlockID string) error {
	b, err := t.BlockByID(oldBlockID)
	if err != nil {
		return err
	}
	if err := t.delete(blockIDKey(oldBlockID)); err != nil {
		return err
	}
	b.BlockID = newBlockID
	return t.PutBlock(b)
}

func (t *txn) DeleteBlock(height int64) error {
	var b models.RoundBlock
	if err := t.get(blockKey(height), &b); err != nil {
		return err
	}
	if err := t.delete(blockIDKey(b.BlockID)); err != nil {
		return err
	}
	if err := t.delete(roundBlockKey(b.Round, b.Height)); err != nil {
		return err
	}
	return t.delete(blockKey(height))
}

func (t *txn) PutSnapshot(s *models.RoundSnapshot, rows []models.DelegateSnapshot) error {
	return t.put(snapshotKey(s.Round), snapshotValue{Snapshot: *s, Rows: rows})
}

func (t *txn) DeleteSnapshot(round int64) error {
	return t.delete(snapshotKey(round))
}

func (t *txn) PutRoundRecord(r *models.RoundRecord) error {
	return t.put(roundKey(r.Round), r)
}

func (t *txn) DeleteRoundRecord(round int64) error {
	return t.delete(roundKey(round))
}
