package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roundledger/internal/ledgererrors"
	"roundledger/internal/models"
	"roundledger/internal/store"
)

const snapshotBatchSize = 500

// Store is a store.Store on Postgres. Every Update is one database
// transaction; View runs in a read-only repeatable-read transaction.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// NewStore wraps an open GORM connection.
func NewStore(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&txn{reader{db: gtx}})
	})
	return classify(err)
}

// View implements store.Store.
func (s *Store) View(ctx context.Context, fn func(r store.Reader) error) error {
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(reader{db: gtx})
	}, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	return classify(err)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// classify leaves ledger and not-found errors untouched and marks retryable
// database failures as transient.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case ledgererrors.KindOf(err) != 0, store.IsNotFound(err):
		return err
	case isTransient(err):
		return ledgererrors.WrapTransient(err, "postgres")
	default:
		return errors.WithStack(err)
	}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception
			return true
		case pgErr.Code == "40001", pgErr.Code == "40P01": // serialization failure, deadlock
			return true
		case pgErr.Code == "57P01", pgErr.Code == "53300": // admin shutdown, too many connections
			return true
		}
		return false
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func wrap(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case isTransient(err):
		return ledgererrors.WrapTransient(err, "postgres %s", op)
	default:
		return errors.Wrapf(err, "postgres %s", op)
	}
}

func affected(res *gorm.DB, op string) error {
	if res.Error != nil {
		return wrap(res.Error, op)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type reader struct {
	db *gorm.DB
}

var _ store.Reader = reader{}

func (r reader) Account(address string) (*models.Account, error) {
	var a models.Account
	if err := r.db.Where("address = ?", address).Take(&a).Error; err != nil {
		return nil, wrap(err, "account")
	}
	return &a, nil
}

func (r reader) AccountByPublicKey(publicKey string) (*models.Account, error) {
	var a models.Account
	if err := r.db.Where("public_key = ?", publicKey).Take(&a).Error; err != nil {
		return nil, wrap(err, "account by public key")
	}
	return &a, nil
}

func (r reader) Delegates() ([]models.Account, error) {
	var out []models.Account
	err := r.db.Where("is_delegate = ?", true).Order("address").Find(&out).Error
	return out, wrap(err, "delegates")
}

func (r reader) VotedDelegates(voter string) ([]string, error) {
	var out []string
	err := r.db.Model(&models.VoteLink{}).
		Where("voter_address = ?", voter).
		Order("delegate_address").
		Pluck("delegate_address", &out).Error
	return out, wrap(err, "voted delegates")
}

func (r reader) Entries(round int64) ([]models.AccountingEntry, error) {
	var out []models.AccountingEntry
	err := r.db.Where("round = ?", round).Order("id").Find(&out).Error
	return out, wrap(err, "entries")
}

func (r reader) Blocks(round int64) ([]models.RoundBlock, error) {
	var out []models.RoundBlock
	err := r.db.Where("round = ?", round).Order("height").Find(&out).Error
	return out, wrap(err, "blocks")
}

func (r reader) BlocksAbove(height int64) ([]models.RoundBlock, error) {
	var out []models.RoundBlock
	err := r.db.Where("height > ?", height).Order("height desc").Find(&out).Error
	return out, wrap(err, "blocks above")
}

func (r reader) LastBlock() (*models.RoundBlock, error) {
	var b models.RoundBlock
	if err := r.db.Order("height desc").Take(&b).Error; err != nil {
		return nil, wrap(err, "last block")
	}
	return &b, nil
}

func (r reader) BlockByID(id string) (*models.RoundBlock, error) {
	var b models.RoundBlock
	if err := r.db.Where("block_id = ?", id).Take(&b).Error; err != nil {
		return nil, wrap(err, "block by id")
	}
	return &b, nil
}

func (r reader) RoundRecord(round int64) (*models.RoundRecord, error) {
	var rec models.RoundRecord
	if err := r.db.Where("round = ?", round).Take(&rec).Error; err != nil {
		return nil, wrap(err, "round record")
	}
	return &rec, nil
}

func (r reader) RoundRecords(from int64) ([]models.RoundRecord, error) {
	var out []models.RoundRecord
	err := r.db.Where("round >= ?", from).Order("round").Find(&out).Error
	return out, wrap(err, "round records")
}

func (r reader) Snapshot(round int64) (*models.RoundSnapshot, []models.DelegateSnapshot, error) {
	var s models.RoundSnapshot
	if err := r.db.Where("round = ?", round).Take(&s).Error; err != nil {
		return nil, nil, wrap(err, "snapshot")
	}
	var rows []models.DelegateSnapshot
	if err := r.db.Where("round = ?", round).Order("address").Find(&rows).Error; err != nil {
		return nil, nil, wrap(err, "snapshot rows")
	}
	return &s, rows, nil
}

func (r reader) SnapshotRounds() ([]int64, error) {
	var out []int64
	err := r.db.Model(&models.RoundSnapshot{}).Order("round").Pluck("round", &out).Error
	return out, wrap(err, "snapshot rounds")
}

type txn struct {
	reader
}

var _ store.Tx = (*txn)(nil)

func (t *txn) upsert(v interface{}, op string) error {
	return wrap(t.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(v).Error, op)
}

func (t *txn) PutAccount(a *models.Account) error {
	return t.upsert(a, "put account")
}

func (t *txn) DeleteAccount(address string) error {
	return affected(t.db.Where("address = ?", address).Delete(&models.Account{}), "delete account")
}

func (t *txn) PutVoteLink(voter, delegate string) error {
	link := &models.VoteLink{VoterAddress: voter, DelegateAddress: delegate}
	return wrap(t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(link).Error, "put vote link")
}

func (t *txn) DeleteVoteLink(voter, delegate string) error {
	err := t.db.Where("voter_address = ? AND delegate_address = ?", voter, delegate).
		Delete(&models.VoteLink{}).Error
	return wrap(err, "delete vote link")
}

func (t *txn) InsertEntry(e *models.AccountingEntry) error {
	return wrap(t.db.Create(e).Error, "insert entry")
}

func (t *txn) DeleteEntries(round int64) error {
	return wrap(t.db.Where("round = ?", round).Delete(&models.AccountingEntry{}).Error, "delete entries")
}

func (t *txn) DeleteEntriesAbove(height int64) error {
	return wrap(t.db.Where("height > ?", height).Delete(&models.AccountingEntry{}).Error, "delete entries above")
}

func (t *txn) RebindEntries(newBlockID, oldBlockID string) error {
	err := t.db.Model(&models.AccountingEntry{}).
		Where("block_id = ?", oldBlockID).
		Update("block_id", newBlockID).Error
	return wrap(err, "rebind entries")
}

func (t *txn) PutBlock(b *models.RoundBlock) error {
	return t.upsert(b, "put block")
}

func (t *txn) RebindBlock(newBlockID, oldBlockID string) error {
	res := t.db.Model(&models.RoundBlock{}).
		Where("block_id = ?", oldBlockID).
		Update("block_id", newBlockID)
	return affected(res, "rebind block")
}

func (t *txn) DeleteBlock(height int64) error {
	return affected(t.db.Where("height = ?", height).Delete(&models.RoundBlock{}), "delete block")
}

func (t *txn) PutSnapshot(s *models.RoundSnapshot, rows []models.DelegateSnapshot) error {
	if err := t.db.Create(s).Error; err != nil {
		return wrap(err, "put snapshot")
	}
	if len(rows) == 0 {
		return nil
	}
	return wrap(t.db.CreateInBatches(rows, snapshotBatchSize).Error, "put snapshot rows")
}

func (t *txn) DeleteSnapshot(round int64) error {
	if err := t.db.Where("round = ?", round).Delete(&models.DelegateSnapshot{}).Error; err != nil {
		return wrap(err, "delete snapshot rows")
	}
	return wrap(t.db.Where("round = ?", round).Delete(&models.RoundSnapshot{}).Error, "delete snapshot")
}

func (t *txn) PutRoundRecord(r *models.RoundRecord) error {
	return t.upsert(r, "put round record")
}

func (t *txn) DeleteRoundRecord(round int64) error {
	return wrap(t.db.Where("round = ?", round).Delete(&models.RoundRecord{}).Error, "delete round record")
}
