package coordinator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundledger/internal/delegates"
	"roundledger/internal/ledgererrors"
	"roundledger/internal/metrics"
	"roundledger/internal/models"
	"roundledger/internal/roundchanges"
	"roundledger/internal/store"
	"roundledger/internal/store/ldbstore"
)

const slots = 3

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func pubKey(i int) string {
	return fmt.Sprintf("%064x", i+1)
}

func address(t *testing.T, i int) string {
	t.Helper()
	addr, err := delegates.AddressFromPublicKey(pubKey(i))
	require.NoError(t, err)
	return addr
}

func testConfig() Config {
	return Config{
		SlotCount:         slots,
		SnapshotRetention: 2,
		Remainder:         roundchanges.RemainderLastForger,
		MaxRetries:        3,
		RetryBackoff:      time.Millisecond,
	}
}

// newTestStore seeds four delegates. Delegate 3 carries the most votes, so it
// is active in every round but never forges.
func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := ldbstore.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Update(context.Background(), func(tx store.Tx) error {
		for i := 0; i < 4; i++ {
			acct := &models.Account{Address: address(t, i), PublicKey: pubKey(i), IsDelegate: true}
			if i == 3 {
				acct.Vote = 100
			}
			if err := tx.PutAccount(acct); err != nil {
				return err
			}
		}
		return tx.PutAccount(&models.Account{Address: "voter", Balance: 1000})
	}))
	return s
}

func newTestCoordinator(t *testing.T, s store.Store, opts ...Option) *Coordinator {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return epoch })}, opts...)
	c, err := New(s, nil, testConfig(), nil, opts...)
	require.NoError(t, err)
	return c
}

func block(h, fee int64) *models.ConfirmedBlock {
	return &models.ConfirmedBlock{
		ID:                 fmt.Sprintf("blk-%d", h),
		Height:             h,
		Round:              CalcRound(h, slots),
		GeneratorPublicKey: pubKey(int((h - 1) % slots)),
		TotalFee:           fee,
		Reward:             5,
	}
}

func feed(t *testing.T, c *Coordinator, from, to int64) {
	t.Helper()
	for h := from; h <= to; h++ {
		require.NoError(t, c.OnBlockConfirmed(context.Background(), block(h, h)), "height %d", h)
	}
}

func account(t *testing.T, s store.Store, addr string) models.Account {
	t.Helper()
	var out models.Account
	require.NoError(t, s.View(context.Background(), func(r store.Reader) error {
		a, err := r.Account(addr)
		if err != nil {
			return err
		}
		out = *a
		return nil
	}))
	return out
}

func allDelegates(t *testing.T, s store.Store) []models.Account {
	t.Helper()
	var out []models.Account
	require.NoError(t, s.View(context.Background(), func(r store.Reader) error {
		var err error
		out, err = r.Delegates()
		return err
	}))
	return out
}

func TestRoundArithmetic(t *testing.T) {
	assert.Equal(t, int64(1), CalcRound(1, 101))
	assert.Equal(t, int64(1), CalcRound(101, 101))
	assert.Equal(t, int64(2), CalcRound(102, 101))
	assert.Equal(t, int64(102), FirstHeight(2, 101))
	assert.Equal(t, int64(202), LastHeight(2, 101))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	s := newTestStore(t)

	cfg := testConfig()
	cfg.SlotCount = 0
	_, err := New(s, nil, cfg, nil)
	assert.True(t, ledgererrors.IsValidation(err))

	cfg = testConfig()
	cfg.SnapshotRetention = 0
	_, err = New(s, nil, cfg, nil)
	assert.True(t, ledgererrors.IsValidation(err))
}

func TestFinalizeAtBoundary(t *testing.T) {
	s := newTestStore(t)
	var events []Event
	c := newTestCoordinator(t, s, WithObserver(func(e Event) { events = append(events, e) }))
	ctx := context.Background()

	fees := []int64{10, 0, 1}
	for i, fee := range fees {
		require.NoError(t, c.OnBlockConfirmed(ctx, block(int64(i+1), fee)))
		if i < 2 {
			assert.Equal(t, StateAccumulating, c.State())
		}
	}
	assert.Equal(t, StateCommitted, c.State())

	require.Len(t, events, 4)
	assert.Equal(t, EventRoundFinalized, events[3].Kind)
	rec := events[3].Record
	require.NotNil(t, rec)
	assert.Equal(t, int64(1), rec.Round)
	assert.Equal(t, int64(1), rec.StartHeight)
	assert.Equal(t, int64(3), rec.EndHeight)
	assert.Equal(t, int64(11), rec.TotalFees)
	assert.Equal(t, int64(2), rec.FeesRemaining)
	assert.Equal(t, address(t, 2), rec.RemainderAddress)
	assert.Equal(t, []string{address(t, 0), address(t, 1), address(t, 2)}, rec.Forgers)
	assert.Equal(t, []string{address(t, 3)}, rec.Outsiders)
	assert.Equal(t, epoch, rec.FinalizedAt)
	assert.False(t, rec.Permanent)

	a0 := account(t, s, address(t, 0))
	assert.Equal(t, int64(8), a0.Balance)
	assert.Equal(t, int64(3), a0.Fees)
	assert.Equal(t, int64(5), a0.Rewards)
	assert.Equal(t, int64(1), a0.ProducedBlocks)

	a2 := account(t, s, address(t, 2))
	assert.Equal(t, int64(10), a2.Balance)
	assert.Equal(t, int64(5), a2.Fees)
	assert.Equal(t, int64(1), a2.ProducedBlocks)

	assert.Equal(t, int64(1), account(t, s, address(t, 3)).MissedBlocks)

	pending, err := c.PendingEntries(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, pending)

	digest, err := c.StateDigest(ctx)
	require.NoError(t, err)
	assert.Equal(t, rec.StateDigest, digest)
}

func TestActiveListIgnoresDelegatesRegisteredInRound(t *testing.T) {
	s := newTestStore(t)
	c := newTestCoordinator(t, s)
	ctx := context.Background()
	feed(t, c, 1, 3)

	// A zero-vote newcomer whose public key sorts first would take d1's place
	// in the active list if it counted already.
	newcomer := fmt.Sprintf("%064x", 0)
	forgers := map[int64]string{4: newcomer, 5: pubKey(0), 6: pubKey(2)}
	var rec *models.RoundRecord
	for h := int64(4); h <= 6; h++ {
		b := block(h, 0)
		b.GeneratorPublicKey = forgers[h]
		require.NoError(t, c.OnBlockConfirmed(ctx, b))
	}
	require.NoError(t, s.View(ctx, func(r store.Reader) error {
		var err error
		rec, err = r.RoundRecord(2)
		return err
	}))

	assert.ElementsMatch(t, []string{address(t, 1), address(t, 3)}, rec.Outsiders)
	assert.Equal(t, int64(1), account(t, s, address(t, 1)).MissedBlocks)
	assert.Equal(t, int64(2), account(t, s, address(t, 3)).MissedBlocks)
	assert.Zero(t, account(t, s, address(t, 0)).MissedBlocks)
	newAddr, err := delegates.AddressFromPublicKey(newcomer)
	require.NoError(t, err)
	assert.Zero(t, account(t, s, newAddr).MissedBlocks)
}

func TestFinalizeWithoutRemainderPolicy(t *testing.T) {
	s := newTestStore(t)
	cfg := testConfig()
	cfg.Remainder = roundchanges.RemainderNone
	c, err := New(s, nil, cfg, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.OnBlockConfirmed(ctx, block(1, 10)))
	require.NoError(t, c.OnBlockConfirmed(ctx, block(2, 0)))
	require.NoError(t, c.OnBlockConfirmed(ctx, block(3, 1)))

	assert.Equal(t, int64(3), account(t, s, address(t, 2)).Fees)
	var rec *models.RoundRecord
	require.NoError(t, s.View(ctx, func(r store.Reader) error {
		var err error
		rec, err = r.RoundRecord(1)
		return err
	}))
	assert.Equal(t, int64(2), rec.FeesRemaining)
	assert.Empty(t, rec.RemainderAddress)
}

func TestVotesAppliedAtFinalization(t *testing.T) {
	s := newTestStore(t)
	c := newTestCoordinator(t, s)
	ctx := context.Background()
	d0 := address(t, 0)

	b := block(1, 0)
	b.VoteChanges = []models.VoteChange{{Voter: "voter", Delegate: d0, Mode: models.VoteAdd}}
	require.NoError(t, c.OnBlockConfirmed(ctx, b))

	b = block(2, 0)
	b.BalanceChanges = []models.BalanceChange{{Address: "voter", Amount: -100}}
	require.NoError(t, c.OnBlockConfirmed(ctx, b))

	pending, err := c.PendingEntries(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	assert.Equal(t, int64(0), account(t, s, d0).Vote)

	require.NoError(t, c.OnBlockConfirmed(ctx, block(3, 0)))
	assert.Equal(t, int64(900), account(t, s, d0).Vote)
	assert.Equal(t, int64(900), account(t, s, "voter").Balance)
}

func TestOnBlockConfirmedValidation(t *testing.T) {
	s := newTestStore(t)
	c := newTestCoordinator(t, s)
	ctx := context.Background()

	cases := map[string]func(b *models.ConfirmedBlock){
		"no id":           func(b *models.ConfirmedBlock) { b.ID = "" },
		"wrong round":     func(b *models.ConfirmedBlock) { b.Round = 2 },
		"negative fee":    func(b *models.ConfirmedBlock) { b.TotalFee = -1 },
		"negative reward": func(b *models.ConfirmedBlock) { b.Reward = -1 },
		"no generator":    func(b *models.ConfirmedBlock) { b.GeneratorPublicKey = "" },
		"gap":             func(b *models.ConfirmedBlock) { b.Height, b.Round = 2, 1 },
		"bad key":         func(b *models.ConfirmedBlock) { b.GeneratorPublicKey = "zz" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			b := block(1, 1)
			mutate(b)
			err := c.OnBlockConfirmed(ctx, b)
			require.Error(t, err)
			assert.True(t, ledgererrors.IsValidation(err), "%v", err)
		})
	}

	halted, _ := c.Halted()
	assert.False(t, halted)
	tip, err := c.TipHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), tip)
}

func TestDoubleFinalizationHalts(t *testing.T) {
	s := newTestStore(t)
	c := newTestCoordinator(t, s)
	ctx := context.Background()
	feed(t, c, 1, 3)

	err := c.FinalizeRound(ctx, 1)
	require.Error(t, err)
	assert.True(t, ledgererrors.IsConsistency(err))

	halted, cause := c.Halted()
	assert.True(t, halted)
	assert.Error(t, cause)

	err = c.OnBlockConfirmed(ctx, block(4, 0))
	assert.True(t, ledgererrors.IsConsistency(err))

	require.NoError(t, c.Resume(ctx))
	halted, _ = c.Halted()
	assert.False(t, halted)
	require.NoError(t, c.OnBlockConfirmed(ctx, block(4, 0)))
}

func TestFinalizeRoundRejectsIncompleteRound(t *testing.T) {
	s := newTestStore(t)
	c := newTestCoordinator(t, s)
	ctx := context.Background()
	feed(t, c, 1, 2)

	err := c.FinalizeRound(ctx, 1)
	assert.True(t, ledgererrors.IsValidation(err))
	err = c.FinalizeRound(ctx, 0)
	assert.True(t, ledgererrors.IsValidation(err))
	halted, _ := c.Halted()
	assert.False(t, halted)
}

func TestCurrentRoundState(t *testing.T) {
	s := newTestStore(t)
	c := newTestCoordinator(t, s)
	ctx := context.Background()
	feed(t, c, 1, 5)

	rs, err := c.CurrentRoundState(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rs.Round)
	assert.Equal(t, slots, rs.SlotCount)
	assert.Equal(t, 2, rs.ForgedSoFar)
	assert.Equal(t, int64(9), rs.AccumulatedFees)
	assert.False(t, rs.Finalized)

	rs, err = c.CurrentRoundState(ctx, 1)
	require.NoError(t, err)
	assert.True(t, rs.Finalized)
	assert.Equal(t, 3, rs.ForgedSoFar)

	_, err = c.CurrentRoundState(ctx, 0)
	assert.True(t, ledgererrors.IsValidation(err))
}

func TestRollbackAndReplayRestoresState(t *testing.T) {
	s := newTestStore(t)
	c := newTestCoordinator(t, s)
	ctx := context.Background()

	feed(t, c, 1, 3)
	before := allDelegates(t, s)
	digestBefore, err := c.StateDigest(ctx)
	require.NoError(t, err)

	feed(t, c, 4, 8)
	final := allDelegates(t, s)
	finalDigest, err := c.StateDigest(ctx)
	require.NoError(t, err)

	res, err := c.OnForkDetected(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, res.RoundsUndone)
	assert.Equal(t, int64(4), res.ReplayFromHeight)
	assert.Equal(t, StateAccumulating, c.State())

	assert.Equal(t, before, allDelegates(t, s))
	digest, err := c.StateDigest(ctx)
	require.NoError(t, err)
	assert.Equal(t, digestBefore, digest)
	tip, err := c.TipHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), tip)

	feed(t, c, 4, 8)
	assert.Equal(t, final, allDelegates(t, s))
	digest, err = c.StateDigest(ctx)
	require.NoError(t, err)
	assert.Equal(t, finalDigest, digest)
}

func TestRollbackSeveralRounds(t *testing.T) {
	s := newTestStore(t)
	var undone []int64
	c := newTestCoordinator(t, s, WithObserver(func(e Event) {
		if e.Kind == EventRolledBack {
			undone = e.Undone
		}
	}))
	ctx := context.Background()

	feed(t, c, 1, 3)
	before := allDelegates(t, s)
	feed(t, c, 4, 10)

	res, err := c.OnForkDetected(ctx, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2}, res.RoundsUndone)
	assert.Equal(t, res.RoundsUndone, undone)
	assert.Equal(t, int64(4), res.ReplayFromHeight)
	assert.Equal(t, before, allDelegates(t, s))

	rs, err := c.CurrentRoundState(ctx, 2)
	require.NoError(t, err)
	assert.False(t, rs.Finalized)
	assert.Zero(t, rs.ForgedSoFar)
}

// ledgerBlock adds votes and transfers on top of block so that rounds move
// vote weight as well as balances.
func ledgerBlock(t *testing.T, h int64) *models.ConfirmedBlock {
	b := block(h, h)
	switch h {
	case 2:
		b.VoteChanges = []models.VoteChange{{Voter: "voter", Delegate: address(t, 0), Mode: models.VoteAdd}}
	case 5:
		b.BalanceChanges = []models.BalanceChange{{Address: "voter", Amount: -100}, {Address: address(t, 1), Amount: 100}}
	case 6:
		b.VoteChanges = []models.VoteChange{{Voter: "voter", Delegate: address(t, 1), Mode: models.VoteAdd}}
	case 8:
		b.VoteChanges = []models.VoteChange{{Voter: "voter", Delegate: address(t, 0), Mode: models.VoteRemove}}
	case 10:
		b.BalanceChanges = []models.BalanceChange{{Address: address(t, 0), Amount: -3}, {Address: "voter", Amount: 3}}
	}
	return b
}

func feedLedger(t *testing.T, c *Coordinator, from, to int64) {
	t.Helper()
	for h := from; h <= to; h++ {
		require.NoError(t, c.OnBlockConfirmed(context.Background(), ledgerBlock(t, h)), "height %d", h)
	}
}

func TestRollbackSeveralRoundsAndReplay(t *testing.T) {
	s := newTestStore(t)
	c := newTestCoordinator(t, s)
	ctx := context.Background()

	feedLedger(t, c, 1, 3)
	before := allDelegates(t, s)
	voterBefore := account(t, s, "voter")

	feedLedger(t, c, 4, 11)
	final := allDelegates(t, s)
	voterFinal := account(t, s, "voter")
	finalDigest, err := c.StateDigest(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(903), voterFinal.Balance)

	res, err := c.OnForkDetected(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2}, res.RoundsUndone)
	assert.Equal(t, int64(4), res.ReplayFromHeight)
	assert.Equal(t, before, allDelegates(t, s))
	assert.Equal(t, voterBefore, account(t, s, "voter"))

	feedLedger(t, c, 4, 11)
	assert.Equal(t, final, allDelegates(t, s))
	assert.Equal(t, voterFinal, account(t, s, "voter"))
	digest, err := c.StateDigest(ctx)
	require.NoError(t, err)
	assert.Equal(t, finalDigest, digest)

	for _, r := range []int64{2, 3} {
		rs, err := c.CurrentRoundState(ctx, r)
		require.NoError(t, err)
		assert.True(t, rs.Finalized, "round %d", r)
	}
}

func TestRollbackRemovesRegisteredForgers(t *testing.T) {
	s := newTestStore(t)
	c := newTestCoordinator(t, s)
	ctx := context.Background()
	feed(t, c, 1, 3)

	b := block(4, 0)
	b.GeneratorPublicKey = pubKey(9)
	require.NoError(t, c.OnBlockConfirmed(ctx, b))
	assert.Len(t, allDelegates(t, s), 5)

	_, err := c.OnForkDetected(ctx, 2, 3)
	require.NoError(t, err)
	assert.Len(t, allDelegates(t, s), 4)
}

func TestForkValidation(t *testing.T) {
	s := newTestStore(t)
	c := newTestCoordinator(t, s)
	ctx := context.Background()
	feed(t, c, 1, 4)

	_, err := c.OnForkDetected(ctx, 1, 5)
	assert.True(t, ledgererrors.IsValidation(err), "height outside round")
	_, err = c.OnForkDetected(ctx, 2, 4)
	assert.True(t, ledgererrors.IsValidation(err), "nothing above the tip")
	_, err = c.OnForkDetected(ctx, 0, 0)
	assert.True(t, ledgererrors.IsValidation(err))

	halted, _ := c.Halted()
	assert.False(t, halted)
}

func TestRollbackOfPermanentRound(t *testing.T) {
	s := newTestStore(t)
	c := newTestCoordinator(t, s)
	ctx := context.Background()
	feed(t, c, 1, 9)

	var records []models.RoundRecord
	var snapshots []int64
	require.NoError(t, s.View(ctx, func(r store.Reader) error {
		var err error
		if records, err = r.RoundRecords(1); err != nil {
			return err
		}
		snapshots, err = r.SnapshotRounds()
		return err
	}))
	require.Len(t, records, 3)
	assert.True(t, records[0].Permanent)
	assert.False(t, records[1].Permanent)
	assert.False(t, records[2].Permanent)
	assert.Equal(t, []int64{2, 3}, snapshots)

	_, err := c.OnForkDetected(ctx, 1, 0)
	require.Error(t, err)
	assert.True(t, ledgererrors.IsConsistency(err))
	halted, _ := c.Halted()
	assert.True(t, halted)
}

func TestRebindBlock(t *testing.T) {
	s := newTestStore(t)
	c := newTestCoordinator(t, s)
	ctx := context.Background()
	feed(t, c, 1, 2)

	require.NoError(t, c.RebindBlock(ctx, "blk-2b", "blk-2"))
	require.NoError(t, s.View(ctx, func(r store.Reader) error {
		blocks, err := r.Blocks(1)
		require.NoError(t, err)
		require.Len(t, blocks, 2)
		assert.Equal(t, "blk-2b", blocks[1].BlockID)
		return nil
	}))

	err := c.RebindBlock(ctx, "x", "missing")
	assert.True(t, ledgererrors.IsValidation(err))

	err = c.RebindBlock(ctx, "blk-1", "blk-2b")
	assert.True(t, ledgererrors.IsValidation(err))
	require.NoError(t, s.View(ctx, func(r store.Reader) error {
		b, err := r.BlockByID("blk-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), b.Height)
		b, err = r.BlockByID("blk-2b")
		require.NoError(t, err)
		assert.Equal(t, int64(2), b.Height)
		return nil
	}))

	halted, _ := c.Halted()
	assert.False(t, halted)
}

// flakyStore lets the first skip Update calls through and fails the next
// failures calls with a transient error.
type flakyStore struct {
	store.Store
	skip     int32
	failures int32
	calls    atomic.Int32
}

func (f *flakyStore) Update(ctx context.Context, fn func(store.Tx) error) error {
	n := f.calls.Add(1)
	if n > f.skip && n <= f.skip+f.failures {
		return ledgererrors.WrapTransient(errors.New("connection reset"), "begin")
	}
	return f.Store.Update(ctx, fn)
}

func TestTransientErrorsAreRetried(t *testing.T) {
	fs := &flakyStore{Store: newTestStore(t), failures: 2}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := newTestCoordinator(t, fs, WithMetrics(m))
	ctx := context.Background()

	require.NoError(t, c.OnBlockConfirmed(ctx, block(1, 1)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.StorageRetries))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BlocksRecorded))
	halted, _ := c.Halted()
	assert.False(t, halted)
}

func TestExhaustedRetriesHaltAndResume(t *testing.T) {
	fs := &flakyStore{Store: newTestStore(t), failures: 100}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	var kinds []EventKind
	c := newTestCoordinator(t, fs, WithMetrics(m), WithObserver(func(e Event) { kinds = append(kinds, e.Kind) }))
	ctx := context.Background()

	err := c.OnBlockConfirmed(ctx, block(1, 1))
	require.Error(t, err)
	assert.True(t, ledgererrors.IsTransient(err))
	halted, cause := c.Halted()
	assert.True(t, halted)
	assert.True(t, ledgererrors.IsTransient(cause))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Halted))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.StorageRetries))

	fs.failures = 0
	fs.calls.Store(0)
	require.NoError(t, c.Resume(ctx))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Halted))
	require.NoError(t, c.OnBlockConfirmed(ctx, block(1, 1)))
	assert.Equal(t, []EventKind{EventHalted, EventResumed, EventBlockRecorded}, kinds)
}

func TestResumeFinalizesPendingBoundary(t *testing.T) {
	base := newTestStore(t)
	fs := &flakyStore{Store: base}
	c := newTestCoordinator(t, fs)
	ctx := context.Background()
	feed(t, c, 1, 2)

	// Block 3 is stored, then every finalization attempt fails.
	fs.calls.Store(0)
	fs.skip = 1
	fs.failures = 100
	err := c.OnBlockConfirmed(ctx, block(3, 3))
	require.Error(t, err)
	halted, _ := c.Halted()
	require.True(t, halted)

	tip, err := c.TipHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), tip)

	fs.failures = 0
	require.NoError(t, c.Resume(ctx))
	assert.Equal(t, StateCommitted, c.State())
	rs, err := c.CurrentRoundState(ctx, 1)
	require.NoError(t, err)
	assert.True(t, rs.Finalized)
}

func TestCanceledContextDoesNotHalt(t *testing.T) {
	s := newTestStore(t)
	c := newTestCoordinator(t, s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.OnBlockConfirmed(ctx, block(1, 1))
	require.Error(t, err)
	halted, _ := c.Halted()
	assert.False(t, halted)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ACCUMULATING", StateAccumulating.String())
	assert.Equal(t, "ROLLING_BACK", StateRollingBack.String())
	assert.Equal(t, "State(9)", State(9).String())
}
