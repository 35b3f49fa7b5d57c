package domain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gammazero/deque"
	"go.uber.org/zap"
)

const (
	DefaultDepthLimit    = 1000
	DefaultMergeInterval = 10 * time.Second
)

const (
	SequenceGapReason      = "gap"
	SequenceOutdatedReason = "outdated"
)

// MergeStats describes one applied merge cycle.
type MergeStats struct {
	Applied int
	Bids    int
	Asks    int
}

type OrderBookEngineOptions struct {
	DepthLimit    int
	MergeInterval time.Duration
	// Validator, when set, reports update id gaps. It never drops updates.
	Validator IDepthUpdateValidator

	OnPublish func(*OrderBookSnapshot)
	OnError   func(error)
	OnState   func(ConnectionState)

	// Metric hooks. They run with the engine lock held and must not block.
	OnMerge       func(MergeStats)
	OnBuffered    func(pending int)
	OnSequenceGap func(reason string)
}

// OrderBookEngine maintains the local order book of one instrument: a one-shot depth
// snapshot, a buffered diff stream and a periodic merge that publishes immutable copies.
// An engine is single use: once stopped it is discarded.
type OrderBookEngine struct {
	symbol    *MarketSymbol
	syncAPI   ProviderSyncAPI
	streamAPI ProviderStreamAPI
	opts      OrderBookEngineOptions
	logger    *zap.Logger

	mu               sync.Mutex
	book             *OrderBook
	depthUpdateQueue deque.Deque[*OrderBookUpdate]
	seqCursor        int64
	// seqAnchored is false until the first diff after a snapshot has set the cursor.
	seqAnchored      bool
	loading          bool
	loadErr          error
	subscription     *Subscription
	stopped          bool

	emitMu    sync.Mutex
	published atomic.Pointer[OrderBookSnapshot]

	cancel context.CancelFunc
	done   chan struct{}
}

func NewOrderBookEngine(
	symbol *MarketSymbol,
	syncAPI ProviderSyncAPI,
	streamAPI ProviderStreamAPI,
	opts OrderBookEngineOptions,
	logger *zap.Logger,
) *OrderBookEngine {
	if opts.DepthLimit <= 0 {
		opts.DepthLimit = DefaultDepthLimit
	}
	if opts.MergeInterval <= 0 {
		opts.MergeInterval = DefaultMergeInterval
	}

	e := &OrderBookEngine{
		symbol:    symbol,
		syncAPI:   syncAPI,
		streamAPI: streamAPI,
		opts:      opts,
		logger:    logger.With(zap.String("symbol", symbol.String())),
		book:      NewEmptyOrderBook(symbol),
		loading:   true,
	}
	e.published.Store(e.book.TakeSnapshot(0))

	return e
}

// Start loads the snapshot, subscribes to the diff stream and starts the merge ticker,
// all in the background.
func (e *OrderBookEngine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	e.cancel = cancel
	e.done = make(chan struct{})
	e.mu.Unlock()

	go e.run(ctx)
}

// Stop cancels the merge ticker and any in-flight snapshot request and unsubscribes the
// diff stream. Nothing is published after Stop returns.
func (e *OrderBookEngine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	sub := e.subscription
	e.subscription = nil
	cancel, done := e.cancel, e.done
	e.depthUpdateQueue.Clear()
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Unsubscribe()
	}
	if done != nil {
		<-done
	}

	e.logger.Debug("order book engine stopped")
}

func (e *OrderBookEngine) run(ctx context.Context) {
	defer close(e.done)

	// SnapshotError is already reported; diffs keep merging into the empty book.
	_, _ = e.LoadSnapshot(ctx)

	if err := e.subscribe(); err != nil {
		e.logger.Error("failed to subscribe to depth stream", zap.Error(err))
		e.reportError(err)
	}

	ticker := time.NewTicker(e.opts.MergeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.MergeCycle()
		}
	}
}

func (e *OrderBookEngine) subscribe() error {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return nil
	}

	sub, err := e.streamAPI.DepthDiffStream(e.symbol, StreamCallbacks[*OrderBookUpdate]{
		OnMessage: e.OnDiff,
		OnError:   e.onStreamError,
		OnState:   e.onStreamState,
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	e.subscription = sub
	e.mu.Unlock()

	e.logger.Debug("subscribed to depth update stream", zap.String("topic", sub.Topic))
	return nil
}

// LoadSnapshot fetches the top of book once and replaces the local book with it.
// A result arriving after Stop is discarded.
func (e *OrderBookEngine) LoadSnapshot(ctx context.Context) (*OrderBookSnapshot, error) {
	snapshot, err := e.syncAPI.OrderBookSnapshot(ctx, e.symbol, e.opts.DepthLimit)

	e.mu.Lock()
	e.loading = false
	if e.stopped {
		e.mu.Unlock()
		return nil, context.Canceled
	}

	if err != nil {
		serr := &SnapshotError{Symbol: e.symbol.String(), Err: err}
		e.loadErr = serr
		e.mu.Unlock()

		e.logger.Warn("order book snapshot failed", zap.Error(err))
		e.reportError(serr)
		return nil, serr
	}

	e.book = NewOrderBook(e.symbol, snapshot)
	e.seqCursor = snapshot.LastUpdateID
	e.seqAnchored = false
	e.loadErr = nil
	published := e.publishLocked()
	e.emitLocked(published)

	e.logger.Info("order book snapshot loaded",
		zap.Int("bids", len(published.Bids)),
		zap.Int("asks", len(published.Asks)),
		zap.Int64("lastUpdateId", snapshot.LastUpdateID),
	)
	return published, nil
}

// OnDiff buffers an update until the next merge cycle.
func (e *OrderBookEngine) OnDiff(update *OrderBookUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}

	e.checkSequenceLocked(update)
	e.depthUpdateQueue.PushBack(update)
	if e.opts.OnBuffered != nil {
		e.opts.OnBuffered(e.depthUpdateQueue.Len())
	}
}

// MergeCycle applies every buffered update in arrival order, clears the buffer and
// publishes a new snapshot. It reports whether anything was applied.
func (e *OrderBookEngine) MergeCycle() bool {
	e.mu.Lock()

	if e.stopped || e.depthUpdateQueue.Len() == 0 {
		e.mu.Unlock()
		return false
	}

	applied := e.depthUpdateQueue.Len()
	for e.depthUpdateQueue.Len() > 0 {
		e.book.ApplyUpdate(e.depthUpdateQueue.PopFront())
	}

	if e.opts.OnMerge != nil {
		e.opts.OnMerge(MergeStats{Applied: applied, Bids: e.book.Bids.Len(), Asks: e.book.Asks.Len()})
	}
	e.logger.Debug("merged depth updates", zap.Int("updates", applied))

	e.emitLocked(e.publishLocked())
	return true
}

// Snapshot returns the last published copy, truncated to limit levels per side.
func (e *OrderBookEngine) Snapshot(limit int) *OrderBookSnapshot {
	published := e.published.Load()
	if limit <= 0 || (len(published.Bids) <= limit && len(published.Asks) <= limit) {
		return published
	}

	cp := *published
	if len(cp.Bids) > limit {
		cp.Bids = cp.Bids[:limit:limit]
	}
	if len(cp.Asks) > limit {
		cp.Asks = cp.Asks[:limit:limit]
	}
	return &cp
}

func (e *OrderBookEngine) Symbol() *MarketSymbol {
	return e.symbol
}

func (e *OrderBookEngine) State() ConnectionState {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.stopped:
		return ConnectionState_Closed
	case e.subscription == nil:
		return ConnectionState_Connecting
	default:
		return e.subscription.State()
	}
}

// Loading reports whether the snapshot request is still in flight.
func (e *OrderBookEngine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// Err returns the SnapshotError of the last load, if any.
func (e *OrderBookEngine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadErr
}

func (e *OrderBookEngine) publishLocked() *OrderBookSnapshot {
	snapshot := e.book.TakeSnapshot(0)
	e.published.Store(snapshot)
	return snapshot
}

// emitLocked hands the snapshot to OnPublish outside e.mu while keeping publish order.
func (e *OrderBookEngine) emitLocked(snapshot *OrderBookSnapshot) {
	e.emitMu.Lock()
	e.mu.Unlock()
	defer e.emitMu.Unlock()

	if e.opts.OnPublish != nil {
		e.opts.OnPublish(snapshot)
	}
}

func (e *OrderBookEngine) checkSequenceLocked(update *OrderBookUpdate) {
	v := e.opts.Validator
	if v == nil || update.Partial || update.FinalUpdateID == 0 {
		return
	}

	err := v.IsValidUpd(update, e.seqCursor)
	switch {
	case err == nil:
	case v.IsErrOutdated(err):
		e.reportSequenceGap(SequenceOutdatedReason)
	case !e.seqAnchored:
		// The stream is opened after the snapshot returns, so the first diff usually
		// starts past it. Continuity is tracked from this diff on.
		e.logger.Debug("depth stream anchored after snapshot",
			zap.Int64("snapshot", e.seqCursor),
			zap.Int64("first", update.FirstUpdateID),
		)
	case v.IsErrOutOfSequece(err):
		e.reportSequenceGap(SequenceGapReason)
		e.logger.Warn("depth update out of sequence",
			zap.Int64("expected", e.seqCursor+1),
			zap.Int64("first", update.FirstUpdateID),
			zap.Int64("final", update.FinalUpdateID),
		)
	}

	if update.FinalUpdateID > e.seqCursor {
		e.seqCursor = update.FinalUpdateID
		e.seqAnchored = true
	}
}

func (e *OrderBookEngine) reportSequenceGap(reason string) {
	if e.opts.OnSequenceGap != nil {
		e.opts.OnSequenceGap(reason)
	}
}

func (e *OrderBookEngine) onStreamError(err error) {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		e.logger.Warn("dropped malformed depth update", zap.Error(err))
	}
	e.reportError(err)
}

func (e *OrderBookEngine) onStreamState(state ConnectionState) {
	if e.opts.OnState != nil {
		e.opts.OnState(state)
	}
}

func (e *OrderBookEngine) reportError(err error) {
	if e.opts.OnError != nil {
		e.opts.OnError(err)
	}
}
