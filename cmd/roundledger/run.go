package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"roundledger/internal/collector"
	"roundledger/internal/coordinator"
	"roundledger/internal/metrics"
	"roundledger/internal/tui"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Follow the chain and account rounds as blocks are confirmed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context())
		},
	}
}

func (a *app) run(parent context.Context) error {
	log, err := a.logger()
	if err != nil {
		return err
	}
	defer log.Close()

	fmt.Printf("Round ledger starting...\n")
	fmt.Printf("Config loaded: %s\n", a.cfg.DebugString())

	s, err := a.openStore(log)
	if err != nil {
		return err
	}
	defer s.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	blockUpdates := make(chan interface{}, collector.TUIChannelBufferSize)
	dash := newDashboard(blockUpdates)

	coord, err := a.newCoordinator(s, log, coordinator.WithMetrics(m), coordinator.WithObserver(dash.observe))
	if err != nil {
		return err
	}
	dash.attach(coord, s)

	// Finalize a round whose last block was stored before the previous shutdown.
	if err := coord.Resume(ctx); err != nil {
		return err
	}

	coll, err := collector.NewCollector(a.cfg, coord, blockUpdates, log)
	if err != nil {
		return err
	}
	defer coll.Close()
	dash.names = coll.Resolver().Moniker

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coll.Run(gctx) })
	if a.cfg.MetricsAddr != "" {
		g.Go(func() error { return metrics.Serve(gctx, a.cfg.MetricsAddr, reg, log) })
	}

	if a.cfg.TUI {
		tuiUpdateCh := make(chan interface{}, collector.TUIChannelBufferSize)
		dash.out = tuiUpdateCh
		g.Go(func() error {
			// TUI exited, cancel context to trigger shutdown
			defer cancel()
			return tui.Run(tuiUpdateCh)
		})
	}
	g.Go(func() error { return dash.run(gctx) })

	err = g.Wait()
	log.Println("shutting down...")

	// Ensure logs flushed in some environments
	_ = os.Stderr.Sync()
	_ = os.Stdout.Sync()
	return err
}
