// Package collector follows a CometBFT node and feeds its blocks to the
// round ledger in height order.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	abci "github.com/cometbft/cometbft/abci/types"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	rpccoretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/pkg/errors"

	"roundledger/internal/config"
	"roundledger/internal/coordinator"
	"roundledger/internal/logger"
	"roundledger/internal/models"
	"roundledger/internal/moniker"
)

const (
	subscriber = "roundledger"

	// TUIChannelBufferSize is the buffer of the dashboard update channel.
	TUIChannelBufferSize = 100
	// TUICloseDelay gives the dashboard time to exit after its channel closes.
	TUICloseDelay = 100 * time.Millisecond

	watchdogInterval = 30 * time.Second
	reconnectDelay   = 3 * time.Second
)

// Ledger is the part of the coordinator the collector feeds.
type Ledger interface {
	OnBlockConfirmed(ctx context.Context, b *models.ConfirmedBlock) error
	TipHeight(ctx context.Context) (int64, error)
	SlotCount() int
}

// BlockUpdate is sent to the dashboard after a block was accepted.
type BlockUpdate struct {
	Block   *models.ConfirmedBlock
	Forger  string
	Moniker string
}

type Collector struct {
	cfg      config.Config
	clientMu sync.Mutex
	client   *rpchttp.HTTP
	ledger   Ledger
	monres   *moniker.Resolver
	updates  chan<- interface{}
	log      *logger.Logger

	lastBlockTime   time.Time
	lastBlockTimeMu sync.RWMutex

	// latest is signalled with the newest height seen on the event stream
	latest chan int64
}

// NewCollector creates a collector. updates may be nil.
func NewCollector(cfg config.Config, ledger Ledger, updates chan<- interface{}, log *logger.Logger) (*Collector, error) {
	if log == nil {
		log = logger.Discard()
	}
	// rpchttp.New takes RPC base URL and WS path separately
	client, err := rpchttp.New(cfg.RPCURL, cfg.WSURL())
	if err != nil {
		return nil, errors.Wrap(err, "create rpc client")
	}
	return &Collector{
		cfg:     cfg,
		client:  client,
		ledger:  ledger,
		monres:  moniker.NewResolver(client, cfg.AppAPIURL, log),
		updates: updates,
		log:     log,
		latest:  make(chan int64, 1),
	}, nil
}

// Resolver returns the forger directory.
func (c *Collector) Resolver() *moniker.Resolver {
	return c.monres
}

// Run follows the node until ctx is done, reconnecting on failures. A ledger
// error that is not transient stops Run.
func (c *Collector) Run(ctx context.Context) error {
	for {
		err := c.runLoop(ctx)
		if ctx.Err() != nil {
			return nil // Context cancelled, normal shutdown
		}
		var fatal *ledgerError
		if errors.As(err, &fatal) {
			return fatal.err
		}
		if err != nil && !errors.Is(err, errReconnect) {
			c.log.Warnf("collector: %v, reconnecting...", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

var errReconnect = errors.New("reconnect: no blocks for 30s")

// ledgerError marks failures of the ledger itself, which reconnecting to the
// node cannot fix.
type ledgerError struct{ err error }

func (e *ledgerError) Error() string { return e.err.Error() }

func (c *Collector) runLoop(ctx context.Context) error {
	// Create a cancellable context for this connection cycle
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.cleanupClient(loopCtx)
	client, err := c.initClient()
	if err != nil {
		return err
	}

	blockCh, err := client.Subscribe(loopCtx, subscriber, "tm.event = 'NewBlock'")
	if err != nil {
		return errors.Wrap(err, "subscribe NewBlock")
	}
	c.log.Printf("Subscribed to NewBlock events")
	c.updateLastBlockTime()

	status, err := client.Status(loopCtx)
	if err != nil {
		return errors.Wrap(err, "status")
	}
	c.signal(status.SyncInfo.LatestBlockHeight)

	syncErr := make(chan error, 1)
	go func() { syncErr <- c.syncLoop(loopCtx, client) }()
	go c.watchEvents(loopCtx, blockCh)

	watchdog := time.NewTicker(watchdogInterval)
	defer watchdog.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-syncErr:
			return err
		case <-watchdog.C:
			if c.shouldReconnect() {
				c.log.Printf("No blocks received for 30+ seconds, reconnecting WebSocket...")
				return errReconnect
			}
		}
	}
}

// cleanupClient stops and cleans up existing client
func (c *Collector) cleanupClient(ctx context.Context) {
	c.clientMu.Lock()
	client := c.client
	c.client = nil
	c.clientMu.Unlock()
	if client == nil || !client.IsRunning() {
		return
	}
	unsubCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_ = client.UnsubscribeAll(unsubCtx, subscriber)
	_ = client.Stop()
}

// initClient creates and starts a new RPC client. A stopped client cannot be
// restarted, so every connection cycle gets its own.
func (c *Collector) initClient() (*rpchttp.HTTP, error) {
	client, err := rpchttp.New(c.cfg.RPCURL, c.cfg.WSURL())
	if err != nil {
		return nil, errors.Wrap(err, "create rpc client")
	}
	if err := client.Start(); err != nil {
		return nil, errors.Wrap(err, "start rpc client")
	}
	c.clientMu.Lock()
	c.client = client
	c.clientMu.Unlock()
	return client, nil
}

func (c *Collector) watchEvents(ctx context.Context, ch <-chan rpccoretypes.ResultEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				c.log.Printf("NewBlock event channel closed")
				return
			}
			data, ok := newBlockData(ev.Data)
			if !ok || data.Block == nil {
				c.log.Printf("unknown NewBlock event data type: %T", ev.Data)
				continue
			}
			c.updateLastBlockTime()
			c.signal(data.Block.Header.Height)
		}
	}
}

func newBlockData(v interface{}) (cmttypes.EventDataNewBlock, bool) {
	switch d := v.(type) {
	case cmttypes.EventDataNewBlock:
		return d, true
	case *cmttypes.EventDataNewBlock:
		if d != nil {
			return *d, true
		}
	}
	return cmttypes.EventDataNewBlock{}, false
}

// signal records height as the newest known height, replacing an unread one.
func (c *Collector) signal(height int64) {
	for {
		select {
		case c.latest <- height:
			return
		default:
		}
		select {
		case prev := <-c.latest:
			if prev > height {
				height = prev
			}
		default:
		}
	}
}

// syncLoop fetches every block between the ledger tip and the newest known
// height, one at a time, so the ledger sees heights in order even when events
// are dropped or arrive late.
func (c *Collector) syncLoop(ctx context.Context, client *rpchttp.HTTP) error {
	for {
		var target int64
		select {
		case <-ctx.Done():
			return nil
		case target = <-c.latest:
		}
		tip, err := c.ledger.TipHeight(ctx)
		if err != nil {
			return &ledgerError{err: err}
		}
		for h := tip + 1; h <= target; h++ {
			if err := c.process(ctx, client, h); err != nil {
				return err
			}
		}
	}
}

func (c *Collector) process(ctx context.Context, client *rpchttp.HTTP, height int64) error {
	h := height
	res, err := client.Block(ctx, &h)
	if err != nil {
		return errors.Wrapf(err, "fetch block %d", height)
	}
	results, err := client.BlockResults(ctx, &h)
	if err != nil {
		return errors.Wrapf(err, "fetch block results %d", height)
	}
	if res.Block == nil {
		return errors.Errorf("node returned no block at height %d", height)
	}
	proposer := res.Block.ProposerAddress.String()
	pk, err := c.monres.PublicKey(ctx, proposer)
	if err != nil {
		return errors.Wrapf(err, "resolve proposer of block %d", height)
	}

	b, err := ConvertBlock(res.Block, results.TxsResults, results.FinalizeBlockEvents, pk, c.ledger.SlotCount(), c.cfg.FeeDenom)
	if err != nil {
		return &ledgerError{err: err}
	}
	if err := c.ledger.OnBlockConfirmed(ctx, b); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return &ledgerError{err: err}
	}

	mon := c.monres.Moniker(proposer)
	if mon != "" {
		c.log.Printf("Block processed: height=%d id=%s proposer=%s (%s) fee=%d", b.Height, short(b.ID), short(proposer), mon, b.TotalFee)
	} else {
		c.log.Printf("Block processed: height=%d id=%s proposer=%s fee=%d", b.Height, short(b.ID), short(proposer), b.TotalFee)
	}
	c.send(BlockUpdate{Block: b, Forger: proposer, Moniker: mon})
	return nil
}

func (c *Collector) send(msg interface{}) {
	if c.updates == nil {
		return
	}
	select {
	case c.updates <- msg:
	default:
		// Dashboard is behind; it catches up on the next update.
	}
}

func short(s string) string {
	if len(s) > 16 {
		return s[:16]
	}
	return s
}

// updateLastBlockTime updates the last block time (thread-safe)
func (c *Collector) updateLastBlockTime() {
	c.lastBlockTimeMu.Lock()
	c.lastBlockTime = time.Now()
	c.lastBlockTimeMu.Unlock()
}

// shouldReconnect checks if we should reconnect due to missing blocks
func (c *Collector) shouldReconnect() bool {
	c.lastBlockTimeMu.RLock()
	defer c.lastBlockTimeMu.RUnlock()
	return time.Since(c.lastBlockTime) > watchdogInterval
}

// Close stops the current RPC client.
func (c *Collector) Close() error {
	c.clientMu.Lock()
	defer c.clientMu.Unlock()
	if c.client != nil && c.client.IsRunning() {
		return c.client.Stop()
	}
	return nil
}

// ConvertBlock maps a committed CometBFT block and its execution results to
// a confirmed ledger block.
func ConvertBlock(blk *cmttypes.Block, txs []*abci.ExecTxResult, blockEvents []abci.Event, generatorPublicKey string, slotCount int, denom string) (*models.ConfirmedBlock, error) {
	if blk == nil || blk.Header.Height <= 0 {
		return nil, errors.New("empty block")
	}
	fee, err := TotalFee(txs, denom)
	if err != nil {
		return nil, errors.WithMessagef(err, "block %d", blk.Header.Height)
	}
	reward, err := Reward(blockEvents, denom)
	if err != nil {
		return nil, errors.WithMessagef(err, "block %d", blk.Header.Height)
	}
	id := fmt.Sprintf("%X", blk.Hash())
	if id == "" {
		return nil, errors.Errorf("block %d has no hash", blk.Header.Height)
	}
	return &models.ConfirmedBlock{
		ID:                 id,
		Height:             blk.Header.Height,
		Round:              coordinator.CalcRound(blk.Header.Height, slotCount),
		GeneratorPublicKey: generatorPublicKey,
		TotalFee:           fee,
		Reward:             reward,
	}, nil
}
