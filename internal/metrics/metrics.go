// Package metrics exposes Prometheus instrumentation for round accounting.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"roundledger/internal/logger"
)

const namespace = "roundledger"

// Metrics groups the collectors updated by the coordinator.
type Metrics struct {
	BlocksRecorded   prometheus.Counter
	RoundsFinalized  prometheus.Counter
	RoundsRolledBack prometheus.Counter
	StorageRetries   prometheus.Counter
	FeesDistributed  prometheus.Counter
	FinalizeDuration prometheus.Histogram
	CurrentRound     prometheus.Gauge
	Halted           prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BlocksRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_recorded_total",
			Help:      "Confirmed blocks recorded by the accountant.",
		}),
		RoundsFinalized: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_finalized_total",
			Help:      "Rounds finalized and committed.",
		}),
		RoundsRolledBack: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_rolled_back_total",
			Help:      "Finalized rounds undone by fork rollbacks.",
		}),
		StorageRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_retries_total",
			Help:      "Transactions retried after a transient storage error.",
		}),
		FeesDistributed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_distributed_total",
			Help:      "Fees credited to forgers, in the smallest currency unit.",
		}),
		FinalizeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "finalize_duration_seconds",
			Help:      "Time spent finalizing a round, retries included.",
			Buckets:   prometheus.DefBuckets,
		}),
		CurrentRound: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_round",
			Help:      "Round of the last recorded block.",
		}),
		Halted: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "halted",
			Help:      "1 while the coordinator is halted.",
		}),
	}
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log *logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("metrics listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "metrics server")
	}
}
