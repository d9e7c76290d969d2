// Package ldbstore is the embedded LevelDB engine of store.Store.
package ldbstore

import (
	"context"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldbErrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"roundledger/internal/ledgererrors"
	"roundledger/internal/logger"
	"roundledger/internal/store"
)

// Store is a store.Store backed by a single LevelDB instance. Update runs on
// a LevelDB transaction, which also serializes writers; View runs on a
// LevelDB snapshot and never blocks a writer.
type Store struct {
	ldb *leveldb.DB
}

var _ store.Store = (*Store)(nil)

// Open opens the database at path, creating it if needed.
func Open(path string, log *logger.Logger) (*Store, error) {
	ldb, err := leveldb.OpenFile(path, nil)

	// If the database is corrupted, attempt to recover.
	if _, corrupted := err.(*ldbErrors.ErrCorrupted); corrupted {
		log.Warnf("LevelDB corruption detected for path %s: %s", path, err)
		var err error
		ldb, err = leveldb.RecoverFile(path, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "recover leveldb at %s", path)
		}
		log.Warnf("LevelDB recovered from corruption for path %s", path)
	}

	if err != nil {
		return nil, errors.Wrapf(err, "open leveldb at %s", path)
	}
	return &Store{ldb: ldb}, nil
}

// OpenMemory opens a volatile in-memory database.
func OpenMemory() (*Store, error) {
	ldb, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "open in-memory leveldb")
	}
	return &Store{ldb: ldb}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.ldb.Close()
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := contextError(ctx); err != nil {
		return err
	}
	ltx, err := s.ldb.OpenTransaction()
	if err != nil {
		return classify(err, "open transaction")
	}
	if err := fn(&txn{reader: reader{src: ltx}, ltx: ltx}); err != nil {
		ltx.Discard()
		return err
	}
	if err := contextError(ctx); err != nil {
		ltx.Discard()
		return err
	}
	if err := ltx.Commit(); err != nil {
		return classify(err, "commit transaction")
	}
	return nil
}

// View implements store.Store.
func (s *Store) View(ctx context.Context, fn func(r store.Reader) error) error {
	if err := contextError(ctx); err != nil {
		return err
	}
	snap, err := s.ldb.GetSnapshot()
	if err != nil {
		return classify(err, "get snapshot")
	}
	defer snap.Release()
	return fn(reader{src: snap})
}

func contextError(ctx context.Context) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return ledgererrors.WrapTransient(err, "leveldb")
	default:
		return errors.WithStack(err)
	}
}

// classify maps a LevelDB failure onto the ledger error kinds.
func classify(err error, op string) error {
	switch {
	case ldbErrors.IsCorrupted(err):
		return ledgererrors.WrapConsistency(err, "leveldb %s", op)
	case errors.Is(err, leveldb.ErrClosed):
		return errors.Wrapf(err, "leveldb %s", op)
	default:
		return ledgererrors.WrapTransient(err, "leveldb %s", op)
	}
}
