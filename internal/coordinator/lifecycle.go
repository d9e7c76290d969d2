package coordinator

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"roundledger/internal/accountant"
	"roundledger/internal/delegates"
	"roundledger/internal/ledgererrors"
	"roundledger/internal/models"
	"roundledger/internal/roundchanges"
	"roundledger/internal/store"
)

func (c *Coordinator) validateBlock(b *models.ConfirmedBlock) error {
	switch {
	case b == nil:
		return ledgererrors.Validationf("nil block")
	case b.ID == "":
		return ledgererrors.Validationf("block at height %d has no id", b.Height)
	case b.Height <= 0:
		return ledgererrors.Validationf("block %s has invalid height %d", b.ID, b.Height)
	case b.Round != CalcRound(b.Height, c.cfg.SlotCount):
		return ledgererrors.Validationf("block %s at height %d claims round %d, want %d",
			b.ID, b.Height, b.Round, CalcRound(b.Height, c.cfg.SlotCount))
	case b.TotalFee < 0:
		return ledgererrors.Validationf("block %s has negative fee %d", b.ID, b.TotalFee)
	case b.Reward < 0:
		return ledgererrors.Validationf("block %s has negative reward %d", b.ID, b.Reward)
	case b.GeneratorPublicKey == "":
		return ledgererrors.Validationf("block %s has no generator", b.ID)
	}
	return nil
}

// OnBlockConfirmed records a confirmed block. When the block completes its
// round, the round is finalized before OnBlockConfirmed returns.
func (c *Coordinator) OnBlockConfirmed(ctx context.Context, b *models.ConfirmedBlock) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkHalted(); err != nil {
		return err
	}
	if err := c.validateBlock(b); err != nil {
		return err
	}

	err := c.withRetry(ctx, "record block", func() error {
		return c.store.Update(ctx, func(tx store.Tx) error {
			want := int64(1)
			last, err := tx.LastBlock()
			switch {
			case err == nil:
				want = last.Height + 1
			case !store.IsNotFound(err):
				return err
			}
			if b.Height != want {
				return ledgererrors.Validationf("block %s at height %d is not contiguous, want height %d", b.ID, b.Height, want)
			}
			_, err = c.acc.RecordBlock(tx, b)
			return err
		})
	})
	if err != nil {
		return c.fail(err)
	}

	c.state.Store(int32(StateAccumulating))
	if c.metrics != nil {
		c.metrics.BlocksRecorded.Inc()
		c.metrics.CurrentRound.Set(float64(b.Round))
	}
	c.notify(Event{Kind: EventBlockRecorded, Round: b.Round, Height: b.Height})

	if b.Height%int64(c.cfg.SlotCount) == 0 {
		return c.finalizeLocked(ctx, b.Round)
	}
	return nil
}

// FinalizeRound finalizes round explicitly. The round's last block must
// already be recorded.
func (c *Coordinator) FinalizeRound(ctx context.Context, round int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkHalted(); err != nil {
		return err
	}
	if round <= 0 {
		return ledgererrors.Validationf("invalid round %d", round)
	}
	tip, err := c.TipHeight(ctx)
	if err != nil {
		return err
	}
	if tip < LastHeight(round, c.cfg.SlotCount) {
		return ledgererrors.Validationf("round %d is incomplete at height %d", round, tip)
	}
	return c.finalizeLocked(ctx, round)
}

func (c *Coordinator) finalizeLocked(ctx context.Context, round int64) error {
	c.state.Store(int32(StateFinalizing))
	start := time.Now()

	var rec *models.RoundRecord
	var credited int64
	err := c.withRetry(ctx, "finalize round", func() error {
		return c.store.Update(ctx, func(tx store.Tx) error {
			var err error
			rec, credited, err = c.finalize(tx, round)
			return err
		})
	})
	if err != nil {
		c.state.Store(int32(StateAccumulating))
		if errors.Is(err, context.Canceled) {
			return err
		}
		// A round that cannot be finalized stops the node, whatever the cause.
		c.halt(err)
		return err
	}

	c.state.Store(int32(StateCommitted))
	if c.metrics != nil {
		c.metrics.RoundsFinalized.Inc()
		c.metrics.FeesDistributed.Add(float64(credited))
		c.metrics.FinalizeDuration.Observe(time.Since(start).Seconds())
	}
	c.log.Printf("round %d finalized: fees=%d remainder=%d outsiders=%d digest=%s",
		round, rec.TotalFees, rec.FeesRemaining, len(rec.Outsiders), rec.StateDigest)
	c.notify(Event{Kind: EventRoundFinalized, Round: round, Height: rec.EndHeight, Record: rec})
	return nil
}

// finalize applies round inside tx and returns its record together with the
// fee amount credited to forgers.
func (c *Coordinator) finalize(tx store.Tx, round int64) (*models.RoundRecord, int64, error) {
	slots := c.cfg.SlotCount

	switch _, err := tx.RoundRecord(round); {
	case err == nil:
		return nil, 0, ledgererrors.Consistencyf("round %d is already finalized", round)
	case !store.IsNotFound(err):
		return nil, 0, err
	}

	if err := c.acc.TakeSnapshot(tx, round, LastHeight(round, slots)); err != nil {
		return nil, 0, err
	}
	summary, err := c.acc.SummarizeRound(tx, round, slots)
	if err != nil {
		return nil, 0, err
	}

	all, err := c.delegatesAtRoundStart(tx, round)
	if err != nil {
		return nil, 0, err
	}
	outsiders := delegates.Outsiders(delegates.ActiveList(all, round, slots), summary.Forgers)

	calc, err := roundchanges.New(c.exceptions, round, slots, summary.TotalFees, summary.Rewards)
	if err != nil {
		return nil, 0, err
	}
	dist, err := roundchanges.Distribute(calc, summary.Forgers, c.cfg.Remainder)
	if err != nil {
		return nil, 0, err
	}

	forgers := make([]string, len(dist.Slots))
	var credited int64
	for i, credit := range dist.Slots {
		acct, err := tx.AccountByPublicKey(credit.PublicKey)
		if store.IsNotFound(err) {
			return nil, 0, ledgererrors.Consistencyf("forger %s of round %d has no account", credit.PublicKey, round)
		}
		if err != nil {
			return nil, 0, err
		}
		ref := accountant.EntryRef{BlockID: summary.BlockIDs[i], Height: summary.StartHeight + int64(i), Round: round}
		if err := c.acc.Credit(tx, ref, acct.Address, credit.Changes.Fees, credit.Changes.Reward, true); err != nil {
			return nil, 0, err
		}
		forgers[i] = acct.Address
		credited += credit.Changes.Fees
	}

	var remainderAddress string
	if dist.RemainderSlot >= 0 {
		i := dist.RemainderSlot
		remainderAddress = forgers[i]
		ref := accountant.EntryRef{BlockID: summary.BlockIDs[i], Height: summary.StartHeight + int64(i), Round: round}
		if err := c.acc.Credit(tx, ref, remainderAddress, dist.Remainder, 0, false); err != nil {
			return nil, 0, err
		}
		credited += dist.Remainder
	}

	votes, err := c.acc.AggregateVotes(tx, round)
	if err != nil {
		return nil, 0, err
	}
	if err := c.acc.ApplyAggregatedVotes(tx, votes); err != nil {
		return nil, 0, err
	}
	if err := c.acc.UpdateMissedBlocks(tx, false, outsiders); err != nil {
		return nil, 0, err
	}
	if err := c.acc.Flush(tx, round); err != nil {
		return nil, 0, err
	}

	digest, err := c.acc.StateDigest(tx)
	if err != nil {
		return nil, 0, err
	}
	rec := &models.RoundRecord{
		Round:            round,
		StartHeight:      summary.StartHeight,
		EndHeight:        summary.EndHeight,
		TotalFees:        calc.TotalFees(),
		FeesRemaining:    dist.Remainder,
		RemainderAddress: remainderAddress,
		Overridden:       calc.Overridden(),
		Forgers:          forgers,
		Outsiders:        outsiders,
		StateDigest:      digest,
		FinalizedAt:      c.now().UTC(),
	}
	if err := tx.PutRoundRecord(rec); err != nil {
		return nil, 0, err
	}
	if err := c.pruneSnapshots(tx, round); err != nil {
		return nil, 0, err
	}
	return rec, credited, nil
}

// delegatesAtRoundStart returns the delegates as they stood before the first
// block of round. Vote weights only move at finalization, so dropping the
// accounts created by the round's own blocks is enough.
func (c *Coordinator) delegatesAtRoundStart(tx store.Tx, round int64) ([]models.Account, error) {
	all, err := tx.Delegates()
	if err != nil {
		return nil, err
	}
	blocks, err := tx.Blocks(round)
	if err != nil {
		return nil, err
	}
	created := make(map[string]struct{})
	for _, b := range blocks {
		for _, addr := range b.CreatedAccounts {
			created[addr] = struct{}{}
		}
	}
	if len(created) == 0 {
		return all, nil
	}
	out := all[:0]
	for _, d := range all {
		if _, ok := created[d.Address]; !ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// pruneSnapshots discards snapshots that fell out of the retention window
// and marks their rounds permanent.
func (c *Coordinator) pruneSnapshots(tx store.Tx, round int64) error {
	rounds, err := tx.SnapshotRounds()
	if err != nil {
		return err
	}
	horizon := round - int64(c.cfg.SnapshotRetention)
	for _, r := range rounds {
		if r > horizon {
			break
		}
		if err := c.acc.ClearSnapshot(tx, r); err != nil {
			return err
		}
		rec, err := tx.RoundRecord(r)
		if store.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		rec.Permanent = true
		if err := tx.PutRoundRecord(rec); err != nil {
			return err
		}
	}
	return nil
}

// RollbackResult describes a completed rollback.
type RollbackResult struct {
	// RoundsUndone lists the finalized rounds that were undone, newest first.
	RoundsUndone []int64
	// ReplayFromHeight is the first height the winning fork must be replayed from.
	ReplayFromHeight int64
}

// OnForkDetected rolls the ledger back to the start of round, undoing round
// and every later finalized round in reverse order. height is the last
// height of the common chain and must lie in round (or end the round before
// it).
func (c *Coordinator) OnForkDetected(ctx context.Context, round, height int64) (*RollbackResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkHalted(); err != nil {
		return nil, err
	}
	slots := c.cfg.SlotCount
	if round <= 0 || height < 0 {
		return nil, ledgererrors.Validationf("invalid fork point round=%d height=%d", round, height)
	}
	if CalcRound(height+1, slots) != round {
		return nil, ledgererrors.Validationf("height %d does not roll back into round %d", height, round)
	}

	prev := c.State()
	c.state.Store(int32(StateRollingBack))
	var undone []int64
	err := c.withRetry(ctx, "rollback", func() error {
		undone = nil
		return c.store.Update(ctx, func(tx store.Tx) error {
			var err error
			undone, err = c.rollback(tx, round, height)
			return err
		})
	})
	if err != nil {
		c.state.Store(int32(prev))
		return nil, c.fail(err)
	}

	c.state.Store(int32(StateAccumulating))
	if c.metrics != nil {
		c.metrics.RoundsRolledBack.Add(float64(len(undone)))
		c.metrics.CurrentRound.Set(float64(round))
	}
	res := &RollbackResult{RoundsUndone: undone, ReplayFromHeight: FirstHeight(round, slots)}
	c.log.Printf("rolled back to round %d: undone=%v replay_from=%d", round, undone, res.ReplayFromHeight)
	c.notify(Event{Kind: EventRolledBack, Round: round, Height: res.ReplayFromHeight - 1, Undone: undone})
	return res, nil
}

func (c *Coordinator) rollback(tx store.Tx, round, height int64) ([]int64, error) {
	slots := c.cfg.SlotCount
	last, err := tx.LastBlock()
	if store.IsNotFound(err) {
		return nil, ledgererrors.Validationf("nothing recorded above height %d", height)
	}
	if err != nil {
		return nil, err
	}
	if height >= last.Height {
		return nil, ledgererrors.Validationf("nothing recorded above height %d, tip is %d", height, last.Height)
	}

	records, err := tx.RoundRecords(round)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.Permanent {
			return nil, ledgererrors.Consistencyf("round %d is permanent and cannot be rolled back", rec.Round)
		}
	}

	if err := c.acc.Flush(tx, round); err != nil {
		return nil, err
	}
	var undone []int64
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		// Blocks after the round go first so the snapshot is restored over
		// the state it was taken from.
		if err := c.acc.Truncate(tx, LastHeight(rec.Round, slots)); err != nil {
			return nil, err
		}
		if err := c.acc.RestoreSnapshot(tx, rec.Round); err != nil {
			return nil, err
		}
		if err := c.acc.UpdateMissedBlocks(tx, true, rec.Outsiders); err != nil {
			return nil, err
		}
		if err := tx.DeleteRoundRecord(rec.Round); err != nil {
			return nil, err
		}
		undone = append(undone, rec.Round)
	}
	if err := c.acc.Truncate(tx, FirstHeight(round, slots)-1); err != nil {
		return nil, err
	}
	return undone, nil
}

// RebindBlock replaces a recorded block id with the id of a competing block
// at the same height.
func (c *Coordinator) RebindBlock(ctx context.Context, newBlockID, oldBlockID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkHalted(); err != nil {
		return err
	}
	err := c.withRetry(ctx, "rebind block", func() error {
		return c.store.Update(ctx, func(tx store.Tx) error {
			return c.acc.Rebind(tx, newBlockID, oldBlockID)
		})
	})
	if err != nil {
		return c.fail(err)
	}
	return nil
}

// Resume clears a halt after operator intervention and finalizes the round
// of the tip if its last block was recorded but the round was not finalized.
func (c *Coordinator) Resume(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.haltErr.Store(nil)
	if c.metrics != nil {
		c.metrics.Halted.Set(0)
	}
	c.notify(Event{Kind: EventResumed})

	var pending int64
	err := c.store.View(ctx, func(r store.Reader) error {
		last, err := r.LastBlock()
		if store.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if last.Height%int64(c.cfg.SlotCount) != 0 {
			return nil
		}
		switch _, err := r.RoundRecord(last.Round); {
		case store.IsNotFound(err):
			pending = last.Round
		case err != nil:
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if pending == 0 {
		c.state.Store(int32(StateAccumulating))
		return nil
	}
	c.log.Printf("resuming: finalizing pending round %d", pending)
	return c.finalizeLocked(ctx, pending)
}
