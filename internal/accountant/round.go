package accountant

import (
	"encoding/hex"
	"fmt"

	"github.com/kaspanet/go-muhash"

	"roundledger/internal/ledgererrors"
	"roundledger/internal/store"
)

// RoundSummary is the aggregate of a round's blocks in forging order.
type RoundSummary struct {
	Round       int64
	TotalFees   int64
	Rewards     []int64
	Forgers     []string
	BlockIDs    []string
	StartHeight int64
	EndHeight   int64
}

// SummarizeRound aggregates the recorded blocks of round. A round that does
// not hold exactly slotCount contiguous blocks is a ConsistencyError.
func (a *Accountant) SummarizeRound(r store.Reader, round int64, slotCount int) (*RoundSummary, error) {
	blocks, err := r.Blocks(round)
	if err != nil {
		return nil, err
	}
	if len(blocks) != slotCount {
		return nil, ledgererrors.Consistencyf("round %d has %d blocks, want %d", round, len(blocks), slotCount)
	}
	s := &RoundSummary{
		Round:       round,
		Rewards:     make([]int64, 0, slotCount),
		Forgers:     make([]string, 0, slotCount),
		BlockIDs:    make([]string, 0, slotCount),
		StartHeight: blocks[0].Height,
		EndHeight:   blocks[len(blocks)-1].Height,
	}
	for i, b := range blocks {
		if b.Height != s.StartHeight+int64(i) {
			return nil, ledgererrors.Consistencyf("round %d is missing height %d", round, s.StartHeight+int64(i))
		}
		s.TotalFees += b.TotalFee
		s.Rewards = append(s.Rewards, b.Reward)
		s.Forgers = append(s.Forgers, b.GeneratorPublicKey)
		s.BlockIDs = append(s.BlockIDs, b.BlockID)
	}
	return s, nil
}

// StateDigest commits to the state of every delegate. The digest is
// independent of row order, so nodes with different storage engines agree.
func (a *Accountant) StateDigest(r store.Reader) (string, error) {
	delegates, err := r.Delegates()
	if err != nil {
		return "", err
	}
	set := muhash.NewMuHash()
	for _, d := range delegates {
		row := fmt.Sprintf("%s|%s|%d|%d|%d|%d|%d|%d",
			d.Address, d.PublicKey, d.Balance, d.Vote, d.ProducedBlocks, d.MissedBlocks, d.Fees, d.Rewards)
		set.Add([]byte(row))
	}
	h := set.Finalize()
	return hex.EncodeToString(h[:]), nil
}
