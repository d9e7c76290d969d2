// Package coordinator drives the round lifecycle: it records confirmed
// blocks, finalizes a round when its last block arrives and rolls finalized
// rounds back when a fork supersedes them.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"roundledger/internal/accountant"
	"roundledger/internal/exceptions"
	"roundledger/internal/ledgererrors"
	"roundledger/internal/logger"
	"roundledger/internal/metrics"
	"roundledger/internal/models"
	"roundledger/internal/roundchanges"
	"roundledger/internal/store"
)

// State is the lifecycle state of the round being processed.
type State int32

const (
	StateAccumulating State = iota
	StateFinalizing
	StateCommitted
	StateRollingBack
)

func (s State) String() string {
	switch s {
	case StateAccumulating:
		return "ACCUMULATING"
	case StateFinalizing:
		return "FINALIZING"
	case StateCommitted:
		return "COMMITTED"
	case StateRollingBack:
		return "ROLLING_BACK"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config is the static configuration of a Coordinator.
type Config struct {
	SlotCount int
	// SnapshotRetention is how many of the latest finalized rounds keep their
	// snapshot and can still be rolled back.
	SnapshotRetention int
	Remainder         roundchanges.RemainderPolicy
	MaxRetries        uint64
	RetryBackoff      time.Duration
}

// EventKind classifies observer events.
type EventKind int

const (
	EventBlockRecorded EventKind = iota
	EventRoundFinalized
	EventRolledBack
	EventHalted
	EventResumed
)

// Event is delivered to the observer after a state change has been committed.
type Event struct {
	Kind   EventKind
	Round  int64
	Height int64
	Record *models.RoundRecord
	Undone []int64
	Err    error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics reports to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithObserver calls fn after every committed state change. fn runs while the
// writer lock is held and must not call back into the Coordinator's write
// operations.
func WithObserver(fn func(Event)) Option {
	return func(c *Coordinator) { c.observer = fn }
}

// WithClock overrides the time source used for round records.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator is safe for concurrent use. Writes are serialized by a single
// mutex; reads run on store views and never take it.
type Coordinator struct {
	mu sync.Mutex

	store      store.Store
	acc        *accountant.Accountant
	exceptions *exceptions.Table
	cfg        Config
	log        *logger.Logger
	metrics    *metrics.Metrics
	observer   func(Event)
	now        func() time.Time

	state   atomic.Int32
	haltErr atomic.Pointer[error]
}

// New creates a Coordinator over s.
func New(s store.Store, table *exceptions.Table, cfg Config, log *logger.Logger, opts ...Option) (*Coordinator, error) {
	if cfg.SlotCount <= 0 {
		return nil, ledgererrors.Validationf("slot count must be positive, got %d", cfg.SlotCount)
	}
	if cfg.SnapshotRetention <= 0 {
		return nil, ledgererrors.Validationf("snapshot retention must be positive, got %d", cfg.SnapshotRetention)
	}
	if log == nil {
		log = logger.Discard()
	}
	c := &Coordinator{
		store:      s,
		acc:        accountant.New(log),
		exceptions: table,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CalcRound returns the round a height belongs to. Heights start at 1.
func CalcRound(height int64, slotCount int) int64 {
	n := int64(slotCount)
	return (height + n - 1) / n
}

// FirstHeight returns the first height of round.
func FirstHeight(round int64, slotCount int) int64 {
	return (round-1)*int64(slotCount) + 1
}

// LastHeight returns the height that completes round.
func LastHeight(round int64, slotCount int) int64 {
	return round * int64(slotCount)
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Halted reports whether the coordinator stopped accepting input, and why.
func (c *Coordinator) Halted() (bool, error) {
	p := c.haltErr.Load()
	if p == nil {
		return false, nil
	}
	return true, *p
}

// SlotCount returns the configured number of slots per round.
func (c *Coordinator) SlotCount() int {
	return c.cfg.SlotCount
}

func (c *Coordinator) checkHalted() error {
	if halted, cause := c.Halted(); halted {
		return ledgererrors.WrapConsistency(cause, "coordinator halted")
	}
	return nil
}

func (c *Coordinator) halt(err error) {
	c.haltErr.Store(&err)
	c.log.Errorf("coordinator halted: %v", err)
	if c.metrics != nil {
		c.metrics.Halted.Set(1)
	}
	c.notify(Event{Kind: EventHalted, Err: err})
}

func (c *Coordinator) notify(e Event) {
	if c.observer != nil {
		c.observer(e)
	}
}

// fail decides whether err halts the coordinator. Validation errors and
// cancellation leave it running; anything else means the ledger can no
// longer make progress safely.
func (c *Coordinator) fail(err error) error {
	switch {
	case ledgererrors.IsValidation(err):
		return err
	case errors.Is(err, context.Canceled):
		return err
	}
	c.halt(err)
	return err
}

// withRetry reruns fn while it fails with a TransientStorageError.
func (c *Coordinator) withRetry(ctx context.Context, op string, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	if c.cfg.RetryBackoff > 0 {
		eb.InitialInterval = c.cfg.RetryBackoff
	}
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, c.cfg.MaxRetries), ctx)

	return backoff.RetryNotify(func() error {
		err := fn()
		if err != nil && !ledgererrors.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		c.log.Warnf("%s: retrying in %s: %v", op, wait, err)
		if c.metrics != nil {
			c.metrics.StorageRetries.Inc()
		}
	})
}

// RoundState is a read-only status of one round.
type RoundState struct {
	Round           int64
	SlotCount       int
	AccumulatedFees int64
	ForgedSoFar     int
	Finalized       bool
	Permanent       bool
}

// CurrentRoundState reports the progress of round from a consistent view.
func (c *Coordinator) CurrentRoundState(ctx context.Context, round int64) (*RoundState, error) {
	if round <= 0 {
		return nil, ledgererrors.Validationf("invalid round %d", round)
	}
	rs := &RoundState{Round: round, SlotCount: c.cfg.SlotCount}
	err := c.store.View(ctx, func(r store.Reader) error {
		blocks, err := r.Blocks(round)
		if err != nil {
			return err
		}
		for _, b := range blocks {
			rs.AccumulatedFees += b.TotalFee
		}
		rs.ForgedSoFar = len(blocks)
		rec, err := r.RoundRecord(round)
		switch {
		case err == nil:
			rs.Finalized = true
			rs.Permanent = rec.Permanent
		case !store.IsNotFound(err):
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// PendingEntries returns the unflushed accounting entries of round.
func (c *Coordinator) PendingEntries(ctx context.Context, round int64) ([]models.AccountingEntry, error) {
	var out []models.AccountingEntry
	err := c.store.View(ctx, func(r store.Reader) error {
		var err error
		out, err = c.acc.PendingEntries(r, round)
		return err
	})
	return out, err
}

// StateDigest returns the digest of the current delegate state.
func (c *Coordinator) StateDigest(ctx context.Context) (string, error) {
	var digest string
	err := c.store.View(ctx, func(r store.Reader) error {
		var err error
		digest, err = c.acc.StateDigest(r)
		return err
	})
	return digest, err
}

// TipHeight returns the height of the last recorded block, or 0.
func (c *Coordinator) TipHeight(ctx context.Context) (int64, error) {
	var height int64
	err := c.store.View(ctx, func(r store.Reader) error {
		last, err := r.LastBlock()
		switch {
		case err == nil:
			height = last.Height
		case !store.IsNotFound(err):
			return err
		}
		return nil
	})
	return height, err
}
