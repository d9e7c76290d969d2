package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundledger/internal/collector"
	"roundledger/internal/coordinator"
	"roundledger/internal/models"
	"roundledger/internal/store/ldbstore"
	"roundledger/internal/tui"
)

func newTestDashboard(t *testing.T) (*dashboard, *coordinator.Coordinator) {
	t.Helper()
	s, err := ldbstore.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	d := newDashboard(nil)
	c, err := coordinator.New(s, nil, coordinator.Config{SlotCount: 2, SnapshotRetention: 2}, nil, coordinator.WithObserver(d.observe))
	require.NoError(t, err)
	d.attach(c, s)
	return d, c
}

func testBlock(h int64) *models.ConfirmedBlock {
	return &models.ConfirmedBlock{
		ID:                 fmt.Sprintf("blk-%d", h),
		Height:             h,
		Round:              coordinator.CalcRound(h, 2),
		GeneratorPublicKey: fmt.Sprintf("%064x", h),
		TotalFee:           4,
		Reward:             1,
	}
}

func drain(d *dashboard) {
	for {
		select {
		case e := <-d.events:
			d.apply(e)
		default:
			return
		}
	}
}

func TestDashboardTracksFinalization(t *testing.T) {
	d, c := newTestDashboard(t)
	ctx := context.Background()
	for h := int64(1); h <= 3; h++ {
		require.NoError(t, c.OnBlockConfirmed(ctx, testBlock(h)))
	}
	drain(d)

	info := d.snapshot(ctx)
	assert.Equal(t, int64(2), info.Round)
	assert.Equal(t, int64(3), info.Height)
	assert.Equal(t, 1, info.Forged)
	assert.Equal(t, int64(4), info.AccumulatedFees)
	assert.Equal(t, int64(1), info.LastFinalized)
	assert.Equal(t, int64(8), info.LastFees)
	assert.NotEmpty(t, info.LastDigest)
	assert.False(t, info.Halted)

	ds, err := d.delegates(ctx)
	require.NoError(t, err)
	require.Len(t, ds, 3)
	for i := 1; i < len(ds); i++ {
		assert.GreaterOrEqual(t, ds[i-1].Vote, ds[i].Vote)
	}
}

func TestDashboardRollback(t *testing.T) {
	d, c := newTestDashboard(t)
	ctx := context.Background()
	for h := int64(1); h <= 4; h++ {
		require.NoError(t, c.OnBlockConfirmed(ctx, testBlock(h)))
	}
	_, err := c.OnForkDetected(ctx, 2, 2)
	require.NoError(t, err)
	drain(d)

	info := d.snapshot(ctx)
	assert.Equal(t, int64(1), info.LastFinalized)
	assert.Equal(t, int64(2), info.Height)
	assert.Equal(t, "ACCUMULATING", info.State)
}

func TestDashboardNamesAndBlockUpdates(t *testing.T) {
	d, c := newTestDashboard(t)
	ctx := context.Background()
	require.NoError(t, c.OnBlockConfirmed(ctx, testBlock(1)))
	d.names = func(string) string { return "validator-one" }
	d.applyBlock(collector.BlockUpdate{Block: testBlock(1), Forger: "ABCD", Moniker: "validator-one"})

	info := d.snapshot(ctx)
	assert.Equal(t, "blk-1", info.BlockID)
	assert.Equal(t, "validator-one", info.Moniker)

	ds, err := d.delegates(ctx)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "validator-one", ds[0].Moniker)
}

func TestDashboardRunClosesOutput(t *testing.T) {
	d, _ := newTestDashboard(t)
	d.out = make(chan interface{}, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.run(ctx))

	var got []interface{}
	for msg := range d.out {
		got = append(got, msg)
	}
	require.Len(t, got, 2)
	assert.IsType(t, tui.RoundInfo{}, got[0])
	assert.IsType(t, []tui.DelegateInfo{}, got[1])
}

func TestObserveNeverBlocks(t *testing.T) {
	d := newDashboard(nil)
	for i := 0; i < dashboardEventBuffer+10; i++ {
		d.observe(coordinator.Event{Kind: coordinator.EventBlockRecorded})
	}
	assert.Len(t, d.events, dashboardEventBuffer)
}
