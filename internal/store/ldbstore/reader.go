package ldbstore

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"roundledger/internal/models"
	"roundledger/internal/store"
)

// source is satisfied by both *leveldb.Snapshot and *leveldb.Transaction.
type source interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

type snapshotValue struct {
	Snapshot models.RoundSnapshot      `json:"snapshot"`
	Rows     []models.DelegateSnapshot `json:"rows"`
}

type reader struct {
	src source
}

var _ store.Reader = reader{}

func (r reader) get(key []byte, v interface{}) error {
	data, err := r.src.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return store.ErrNotFound
		}
		return classify(err, "get")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "decode %q", key)
	}
	return nil
}

func (r reader) has(key []byte) (bool, error) {
	_, err := r.src.Get(key, nil)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	return false, classify(err, "get")
}

// iterate calls fn for every key in rng in ascending order. Keys and values
// are only valid during the call.
func (r reader) iterate(rng *util.Range, fn func(key, value []byte) error) error {
	it := r.src.NewIterator(rng, nil)
	defer it.Release()
	for it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return classify(err, "iterate")
	}
	return nil
}

// keys collects the keys under prefix so they can be deleted after iteration.
func (r reader) keys(prefix []byte) ([][]byte, error) {
	var out [][]byte
	err := r.iterate(util.BytesPrefix(prefix), func(key, _ []byte) error {
		out = append(out, append([]byte(nil), key...))
		return nil
	})
	return out, err
}

func (r reader) Account(address string) (*models.Account, error) {
	var a models.Account
	if err := r.get(accountKey(address), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r reader) AccountByPublicKey(publicKey string) (*models.Account, error) {
	var address string
	if err := r.get(publicKeyKey(publicKey), &address); err != nil {
		return nil, err
	}
	return r.Account(address)
}

func (r reader) Delegates() ([]models.Account, error) {
	var out []models.Account
	err := r.iterate(util.BytesPrefix(delegatePrefix), func(key, _ []byte) error {
		a, err := r.Account(suffix(key, delegatePrefix))
		if err != nil {
			return errors.Wrapf(err, "delegate index %q", key)
		}
		out = append(out, *a)
		return nil
	})
	return out, err
}

func (r reader) VotedDelegates(voter string) ([]string, error) {
	prefix := voterPrefix(voter)
	var out []string
	err := r.iterate(util.BytesPrefix(prefix), func(key, _ []byte) error {
		out = append(out, suffix(key, prefix))
		return nil
	})
	return out, err
}

func (r reader) Entries(round int64) ([]models.AccountingEntry, error) {
	var out []models.AccountingEntry
	err := r.iterate(util.BytesPrefix(entryRoundPrefix(round)), func(_, value []byte) error {
		var e models.AccountingEntry
		if err := json.Unmarshal(value, &e); err != nil {
			return errors.Wrap(err, "decode entry")
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

func (r reader) allEntries(fn func(key []byte, e models.AccountingEntry) error) error {
	return r.iterate(util.BytesPrefix(entryPrefix), func(key, value []byte) error {
		var e models.AccountingEntry
		if err := json.Unmarshal(value, &e); err != nil {
			return errors.Wrap(err, "decode entry")
		}
		return fn(append([]byte(nil), key...), e)
	})
}

func (r reader) Blocks(round int64) ([]models.RoundBlock, error) {
	var out []models.RoundBlock
	err := r.iterate(util.BytesPrefix(roundBlockPrefix(round)), func(key, _ []byte) error {
		var b models.RoundBlock
		if err := r.get(blockKey(trailingInt64(key)), &b); err != nil {
			return errors.Wrapf(err, "round block index %q", key)
		}
		out = append(out, b)
		return nil
	})
	return out, err
}

func (r reader) BlocksAbove(height int64) ([]models.RoundBlock, error) {
	rng := &util.Range{
		Start: blockKey(height + 1),
		Limit: util.BytesPrefix(blockPrefix).Limit,
	}
	var out []models.RoundBlock
	err := r.iterate(rng, func(_, value []byte) error {
		var b models.RoundBlock
		if err := json.Unmarshal(value, &b); err != nil {
			return errors.Wrap(err, "decode block")
		}
		out = append(out, b)
		return nil
	})
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, err
}

func (r reader) LastBlock() (*models.RoundBlock, error) {
	it := r.src.NewIterator(util.BytesPrefix(blockPrefix), nil)
	defer it.Release()
	if !it.Last() {
		if err := it.Error(); err != nil {
			return nil, classify(err, "iterate")
		}
		return nil, store.ErrNotFound
	}
	var b models.RoundBlock
	if err := json.Unmarshal(it.Value(), &b); err != nil {
		return nil, errors.Wrap(err, "decode block")
	}
	return &b, nil
}

func (r reader) BlockByID(id string) (*models.RoundBlock, error) {
	var height int64
	if err := r.get(blockIDKey(id), &height); err != nil {
		return nil, err
	}
	var b models.RoundBlock
	if err := r.get(blockKey(height), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r reader) RoundRecord(round int64) (*models.RoundRecord, error) {
	var rec models.RoundRecord
	if err := r.get(roundKey(round), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r reader) RoundRecords(from int64) ([]models.RoundRecord, error) {
	rng := &util.Range{
		Start: roundKey(from),
		Limit: util.BytesPrefix(roundPrefix).Limit,
	}
	var out []models.RoundRecord
	err := r.iterate(rng, func(_, value []byte) error {
		var rec models.RoundRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return errors.Wrap(err, "decode round record")
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

func (r reader) Snapshot(round int64) (*models.RoundSnapshot, []models.DelegateSnapshot, error) {
	var v snapshotValue
	if err := r.get(snapshotKey(round), &v); err != nil {
		return nil, nil, err
	}
	return &v.Snapshot, v.Rows, nil
}

func (r reader) SnapshotRounds() ([]int64, error) {
	var out []int64
	err := r.iterate(util.BytesPrefix(snapshotPrefix), func(key, _ []byte) error {
		out = append(out, trailingInt64(key))
		return nil
	})
	return out, err
}
