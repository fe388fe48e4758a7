package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"tokenWatch/internal/model"
	"tokenWatch/internal/monitor"
	"tokenWatch/internal/token"
)

// LogClient is the part of *chain.Client used by Ethereum.
type LogClient interface {
	SubscribeLogs(ctx context.Context, addresses []common.Address, topic0 []common.Hash, ch chan<- types.Log) (ethereum.Subscription, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// Config controls the polling fallback.
type Config struct {
	PollInterval  time.Duration
	MaxBlockRange uint64
	// ForcePolling skips the websocket subscription attempt.
	ForcePolling bool
}

// Ethereum is an event source over an Ethereum JSON-RPC endpoint. It uses
// eth_subscribe when available and falls back to polling eth_getLogs.
//
// Progress is remembered per token, so a later Subscribe for the same token
// resumes after the last delivered log instead of at the current head.
type Ethereum struct {
	client LogClient
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	cursors map[common.Address]cursor
}

func NewEthereum(client LogClient, cfg Config, logger *zap.Logger) *Ethereum {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 4 * time.Second
	}
	if cfg.MaxBlockRange == 0 {
		cfg.MaxBlockRange = 300
	}
	return &Ethereum{client: client, cfg: cfg, logger: logger, cursors: make(map[common.Address]cursor)}
}

// cursor is the delivery progress of one token feed.
type cursor struct {
	// scanned is the last block whose logs have all been delivered.
	scanned uint64

	lastBlock uint64
	lastIndex uint
	hasLast   bool
}

// seen reports whether log is at or before the last delivered log.
func (c cursor) seen(log types.Log) bool {
	if !c.hasLast {
		return false
	}
	return log.BlockNumber < c.lastBlock || (log.BlockNumber == c.lastBlock && log.Index <= c.lastIndex)
}

func (e *Ethereum) loadCursor(tokenAddr common.Address) (cursor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.cursors[tokenAddr]
	return c, ok
}

func (e *Ethereum) storeCursor(tokenAddr common.Address, c cursor) {
	e.mu.Lock()
	e.cursors[tokenAddr] = c
	e.mu.Unlock()
}

// Subscribe attaches a Transfer feed for the token. When the token was
// subscribed before, blocks missed since the previous feed are backfilled
// with eth_getLogs first.
func (e *Ethereum) Subscribe(ctx context.Context, tokenAddr common.Address) (monitor.Subscription, error) {
	if e.client == nil {
		return nil, fmt.Errorf("log client is nil")
	}
	topic, err := token.TransferTopic()
	if err != nil {
		return nil, fmt.Errorf("transfer topic: %w", err)
	}
	addresses := []common.Address{tokenAddr}
	topics := []common.Hash{topic}
	track := func(c cursor) { e.storeCursor(tokenAddr, c) }

	if !e.cfg.ForcePolling {
		logs := make(chan types.Log, 128)
		sub, err := e.client.SubscribeLogs(ctx, addresses, topics, logs)
		if err == nil {
			// The head is read after subscribing so the backfill overlaps
			// the live feed instead of leaving a gap.
			cur, backfill, err := e.resume(ctx, tokenAddr)
			if err != nil {
				sub.Unsubscribe()
				return nil, err
			}
			s := newSubscription(cur, track)
			go s.stream(e.client, sub, logs, addresses, topics, backfill, e.logger)
			return s, nil
		}
		if !errors.Is(err, rpc.ErrNotificationsUnsupported) {
			return nil, fmt.Errorf("subscribe logs: %w", err)
		}
		e.logger.Info("log subscriptions unsupported, polling", zap.Duration("interval", e.cfg.PollInterval))
	}

	cur, _, err := e.resume(ctx, tokenAddr)
	if err != nil {
		return nil, err
	}
	s := newSubscription(cur, track)
	go s.poll(e.client, e.cfg, addresses, topics, e.logger)
	return s, nil
}

// resume returns the cursor for a new feed and the block ranges between the
// previous feed and the current head.
func (e *Ethereum) resume(ctx context.Context, tokenAddr common.Address) (cursor, []blockRange, error) {
	head, err := e.client.LatestBlockNumber(ctx)
	if err != nil {
		return cursor{}, nil, fmt.Errorf("get latest block: %w", err)
	}

	cur, ok := e.loadCursor(tokenAddr)
	if !ok {
		cur = cursor{scanned: head}
		e.storeCursor(tokenAddr, cur)
		return cur, nil, nil
	}

	e.logger.Info("resuming transfer feed",
		zap.String("token", tokenAddr.Hex()),
		zap.Uint64("from", cur.scanned+1),
		zap.Uint64("head", head),
	)
	return cur, pendingRanges(cur.scanned, head, e.cfg.MaxBlockRange), nil
}

type subscription struct {
	deliveries chan monitor.Delivery
	errs       chan error
	quit       chan struct{}
	done       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	once       sync.Once

	cur   cursor
	track func(cursor)
}

func newSubscription(cur cursor, track func(cursor)) *subscription {
	ctx, cancel := context.WithCancel(context.Background())
	return &subscription{
		deliveries: make(chan monitor.Delivery),
		errs:       make(chan error),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		cur:        cur,
		track:      track,
	}
}

func (s *subscription) Deliveries() <-chan monitor.Delivery { return s.deliveries }

func (s *subscription) Err() <-chan error { return s.errs }

// Unsubscribe stops the feed and waits for its goroutine to exit.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		close(s.quit)
	})
	<-s.done
}

// deliver hands a log to the consumer and advances the cursor. Logs already
// delivered by an earlier feed are skipped.
func (s *subscription) deliver(log types.Log) bool {
	if s.cur.seen(log) {
		return true
	}

	record, err := token.DecodeTransfer(log)
	select {
	case s.deliveries <- monitor.Delivery{Record: record, Err: err}:
	case <-s.quit:
		return false
	}

	s.cur.lastBlock, s.cur.lastIndex, s.cur.hasLast = log.BlockNumber, log.Index, true
	if log.BlockNumber > 0 && log.BlockNumber-1 > s.cur.scanned {
		s.cur.scanned = log.BlockNumber - 1
	}
	s.track(s.cur)
	return true
}

func (s *subscription) markScanned(block uint64) {
	if block > s.cur.scanned {
		s.cur.scanned = block
		s.track(s.cur)
	}
}

func (s *subscription) fail(err error) bool {
	select {
	case s.errs <- &model.TransportError{Err: err}:
		return true
	case <-s.quit:
		return false
	}
}

// fetch delivers the logs of one block range. ok is false when the range
// could not be fetched; stop is true once the consumer has gone away.
func (s *subscription) fetch(client LogClient, r blockRange, addresses []common.Address, topics []common.Hash, logger *zap.Logger) (ok, stop bool) {
	logs, err := client.FilterLogs(s.ctx, r.from, r.to, addresses, topics)
	if err != nil {
		return false, !s.fail(fmt.Errorf("filter logs %d-%d: %w", r.from, r.to, err))
	}
	logger.Debug("fetched logs", zap.Uint64("from", r.from), zap.Uint64("to", r.to), zap.Int("logs", len(logs)))

	for _, log := range logs {
		if log.Removed {
			continue
		}
		if !s.deliver(log) {
			return false, true
		}
	}
	s.markScanned(r.to)
	return true, false
}

func (s *subscription) stream(client LogClient, sub ethereum.Subscription, logs <-chan types.Log, addresses []common.Address, topics []common.Hash, backfill []blockRange, logger *zap.Logger) {
	defer close(s.done)
	defer sub.Unsubscribe()

	for _, r := range backfill {
		// A failed backfill ends the feed; the cursor still points at the
		// first missing block for the next one.
		if ok, _ := s.fetch(client, r, addresses, topics, logger); !ok {
			return
		}
	}

	for {
		select {
		case <-s.quit:
			return
		case err := <-sub.Err():
			// The upstream subscription is dead after its first error.
			if err != nil {
				s.fail(err)
			}
			return
		case log := <-logs:
			if log.Removed {
				logger.Debug("skip removed log", zap.String("tx_hash", log.TxHash.Hex()), zap.Uint64("block_number", log.BlockNumber))
				continue
			}
			if !s.deliver(log) {
				return
			}
		}
	}
}

// poll retries a failed range on the next tick without advancing the
// cursor.
func (s *subscription) poll(client LogClient, cfg Config, addresses []common.Address, topics []common.Hash, logger *zap.Logger) {
	defer close(s.done)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
		}

		latest, err := client.LatestBlockNumber(s.ctx)
		if err != nil {
			if !s.fail(fmt.Errorf("get latest block: %w", err)) {
				return
			}
			continue
		}

		for _, r := range pendingRanges(s.cur.scanned, latest, cfg.MaxBlockRange) {
			ok, stop := s.fetch(client, r, addresses, topics, logger)
			if stop {
				return
			}
			if !ok {
				break
			}
		}
	}
}
