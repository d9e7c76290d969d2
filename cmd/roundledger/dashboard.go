package main

import (
	"context"
	"sort"
	"sync"
	"time"

	"roundledger/internal/collector"
	"roundledger/internal/coordinator"
	"roundledger/internal/store"
	"roundledger/internal/tui"
)

const dashboardEventBuffer = 256

// dashboard turns coordinator events and collector block updates into TUI
// messages. Coordinator events arrive under the coordinator lock, so observe
// never blocks.
type dashboard struct {
	coord *coordinator.Coordinator
	store store.Store
	names func(address string) string

	events chan coordinator.Event
	in     <-chan interface{}
	out    chan interface{}

	mu   sync.Mutex
	info tui.RoundInfo
}

func newDashboard(in <-chan interface{}) *dashboard {
	return &dashboard{
		events: make(chan coordinator.Event, dashboardEventBuffer),
		in:     in,
	}
}

func (d *dashboard) attach(coord *coordinator.Coordinator, s store.Store) {
	d.coord = coord
	d.store = s
}

func (d *dashboard) observe(e coordinator.Event) {
	select {
	case d.events <- e:
	default:
	}
}

func (d *dashboard) run(ctx context.Context) error {
	if d.out != nil {
		defer func() {
			// Close TUI update channel to stop sending updates
			close(d.out)
			// Give TUI a moment to process the close and quit
			time.Sleep(collector.TUICloseDelay)
		}()
	}
	d.publish(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-d.events:
			d.apply(e)
			d.publish(ctx)
		case msg, ok := <-d.in:
			if !ok {
				d.in = nil
				continue
			}
			if bu, ok := msg.(collector.BlockUpdate); ok {
				d.applyBlock(bu)
				d.publish(ctx)
			}
		}
	}
}

func (d *dashboard) apply(e coordinator.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch e.Kind {
	case coordinator.EventBlockRecorded:
		d.info.Round = e.Round
		d.info.Height = e.Height
	case coordinator.EventRoundFinalized:
		if rec := e.Record; rec != nil {
			d.info.LastFinalized = rec.Round
			d.info.LastFees = rec.TotalFees
			d.info.LastRemainder = rec.FeesRemaining
			d.info.LastDigest = rec.StateDigest
			d.info.Outsiders = len(rec.Outsiders)
		}
	case coordinator.EventRolledBack:
		d.info.Height = e.Height
		d.info.Round = e.Round
		if d.info.LastFinalized >= e.Round {
			d.info.LastFinalized = e.Round - 1
		}
	}
}

func (d *dashboard) applyBlock(bu collector.BlockUpdate) {
	if bu.Block == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info.Round = bu.Block.Round
	d.info.Height = bu.Block.Height
	d.info.BlockID = bu.Block.ID
	d.info.Forger = bu.Forger
	d.info.Moniker = bu.Moniker
}

// snapshot returns the current round info completed with the coordinator's
// state and the round's progress.
func (d *dashboard) snapshot(ctx context.Context) tui.RoundInfo {
	d.mu.Lock()
	info := d.info
	d.mu.Unlock()

	info.SlotCount = d.coord.SlotCount()
	info.State = d.coord.State().String()
	halted, reason := d.coord.Halted()
	info.Halted = halted
	if reason != nil {
		info.HaltReason = reason.Error()
	}
	if info.Round == 0 {
		if tip, err := d.coord.TipHeight(ctx); err == nil && tip > 0 {
			info.Height = tip
			info.Round = coordinator.CalcRound(tip, info.SlotCount)
		}
	}
	if info.Round > 0 {
		if rs, err := d.coord.CurrentRoundState(ctx, info.Round); err == nil {
			info.Forged = rs.ForgedSoFar
			info.AccumulatedFees = rs.AccumulatedFees
		}
	}
	return info
}

// delegates lists registered delegates by descending vote.
func (d *dashboard) delegates(ctx context.Context) ([]tui.DelegateInfo, error) {
	var out []tui.DelegateInfo
	err := d.store.View(ctx, func(r store.Reader) error {
		accounts, err := r.Delegates()
		if err != nil {
			return err
		}
		out = make([]tui.DelegateInfo, 0, len(accounts))
		for _, a := range accounts {
			name := a.Username
			if d.names != nil {
				if m := d.names(a.Address); m != "" {
					name = m
				}
			}
			out = append(out, tui.DelegateInfo{
				Address:        a.Address,
				Moniker:        name,
				Vote:           a.Vote,
				Balance:        a.Balance,
				ProducedBlocks: a.ProducedBlocks,
				MissedBlocks:   a.MissedBlocks,
			})
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Vote != out[j].Vote {
			return out[i].Vote > out[j].Vote
		}
		return out[i].Address < out[j].Address
	})
	return out, err
}

func (d *dashboard) publish(ctx context.Context) {
	if d.out == nil || d.coord == nil {
		return
	}
	d.send(d.snapshot(ctx))
	if ds, err := d.delegates(ctx); err == nil {
		d.send(ds)
	}
}

func (d *dashboard) send(msg interface{}) {
	select {
	case d.out <- msg:
	default:
		// Drop the update if the TUI is behind; the next one replaces it.
	}
}
