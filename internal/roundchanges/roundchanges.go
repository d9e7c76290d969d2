// Package roundchanges computes how a round's fees and rewards are split
// across its forging slots.
package roundchanges

import (
	"roundledger/internal/exceptions"
	"roundledger/internal/fixedpoint"
	"roundledger/internal/ledgererrors"
)

// Changes is the result for one forging slot.
type Changes struct {
	Fees          int64
	FeesRemaining int64
	Reward        int64
	Balance       int64
}

// Calculator holds a round's effective totals, after any override was applied.
type Calculator struct {
	round      int64
	slotCount  int64
	totalFees  int64
	rewards    []int64
	overridden bool
}

// New builds the calculator for one round. Rewards are given in forging order,
// one per slot.
func New(table *exceptions.Table, round int64, slotCount int, totalFees int64, rewards []int64) (*Calculator, error) {
	if slotCount <= 0 {
		return nil, ledgererrors.Validationf("slot count must be positive, got %d", slotCount)
	}
	if totalFees < 0 {
		return nil, ledgererrors.Validationf("negative total fees %d for round %d", totalFees, round)
	}
	c := &Calculator{
		round:     round,
		slotCount: int64(slotCount),
		totalFees: totalFees,
		rewards:   make([]int64, len(rewards)),
	}
	for i, r := range rewards {
		if r < 0 {
			return nil, ledgererrors.Validationf("negative reward %d at slot %d of round %d", r, i, round)
		}
		c.rewards[i] = r
	}

	o, ok := table.Lookup(round)
	if !ok {
		return c, nil
	}
	for i, r := range c.rewards {
		scaled, err := fixedpoint.MulFloor(r, o.RewardsFactor)
		if err != nil {
			return nil, err
		}
		c.rewards[i] = scaled
	}
	fees, err := fixedpoint.MulAddFloor(c.totalFees, o.FeesFactor, o.FeesBonus)
	if err != nil {
		return nil, err
	}
	c.totalFees = fees
	c.overridden = true
	return c, nil
}

// At returns the changes for the slot at index. FeesRemaining is the same for
// every slot; crediting it is the caller's decision.
func (c *Calculator) At(index int) (Changes, error) {
	if index < 0 || index >= len(c.rewards) {
		return Changes{}, ledgererrors.Validationf("slot index %d out of range [0, %d) for round %d", index, len(c.rewards), c.round)
	}
	fees := c.totalFees / c.slotCount
	remaining := c.totalFees - fees*c.slotCount
	reward := c.rewards[index]
	return Changes{
		Fees:          fees,
		FeesRemaining: remaining,
		Reward:        reward,
		Balance:       fees + reward,
	}, nil
}

// Round returns the round number.
func (c *Calculator) Round() int64 { return c.round }

// SlotCount returns the configured number of slots.
func (c *Calculator) SlotCount() int { return int(c.slotCount) }

// TotalFees returns the effective total fees.
func (c *Calculator) TotalFees() int64 { return c.totalFees }

// Overridden reports whether an exception override was applied.
func (c *Calculator) Overridden() bool { return c.overridden }

// Rewards returns a copy of the effective per-slot rewards.
func (c *Calculator) Rewards() []int64 {
	out := make([]int64, len(c.rewards))
	copy(out, c.rewards)
	return out
}
