package domain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

type CandleStreamEngineOptions struct {
	Interval   Interval
	WindowSize int

	OnPublish func([]Candle)
	OnError   func(error)
	OnState   func(ConnectionState)
}

// CandleStreamEngine keeps the recent candle window of one instrument: the history is
// loaded once, live klines are folded in as they arrive.
type CandleStreamEngine struct {
	symbol    *MarketSymbol
	syncAPI   ProviderSyncAPI
	streamAPI ProviderStreamAPI
	opts      CandleStreamEngineOptions
	logger    *zap.Logger

	mu           sync.Mutex
	window       *CandleWindow
	loading      bool
	loadErr      error
	subscription *Subscription
	stopped      bool

	emitMu    sync.Mutex
	published atomic.Pointer[[]Candle]

	cancel context.CancelFunc
	done   chan struct{}
}

func NewCandleStreamEngine(
	symbol *MarketSymbol,
	syncAPI ProviderSyncAPI,
	streamAPI ProviderStreamAPI,
	opts CandleStreamEngineOptions,
	logger *zap.Logger,
) *CandleStreamEngine {
	if opts.Interval.Name == "" {
		opts.Interval = Interval1m
	}

	e := &CandleStreamEngine{
		symbol:    symbol,
		syncAPI:   syncAPI,
		streamAPI: streamAPI,
		opts:      opts,
		logger: logger.With(
			zap.String("symbol", symbol.String()),
			zap.String("interval", opts.Interval.Name),
		),
		window:  NewCandleWindow(opts.WindowSize),
		loading: true,
	}
	empty := []Candle{}
	e.published.Store(&empty)

	return e
}

// Start subscribes to the kline stream and loads the history in the background.
func (e *CandleStreamEngine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	e.cancel = cancel
	e.done = make(chan struct{})
	e.mu.Unlock()

	go e.run(ctx)
}

func (e *CandleStreamEngine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	sub := e.subscription
	e.subscription = nil
	cancel, done := e.cancel, e.done
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

	e.logger.Debug("candle engine stopped")
}

func (e *CandleStreamEngine) run(ctx context.Context) {
	defer close(e.done)

	if err := e.subscribe(); err != nil {
		e.logger.Error("failed to subscribe to kline stream", zap.Error(err))
		e.reportError(err)
	}

	_, _ = e.LoadHistory(ctx)
}

func (e *CandleStreamEngine) subscribe() error {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return nil
	}

	sub, err := e.streamAPI.KlineStream(e.symbol, e.opts.Interval, StreamCallbacks[*Candle]{
		OnMessage: e.OnLiveCandle,
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

	return nil
}

// LoadHistory fetches the most recent candles once and replaces the window with them.
// A result arriving after Stop is discarded.
func (e *CandleStreamEngine) LoadHistory(ctx context.Context) ([]Candle, error) {
	candles, err := e.syncAPI.Klines(ctx, e.symbol, e.opts.Interval, e.window.Size())

	e.mu.Lock()
	e.loading = false
	if e.stopped {
		e.mu.Unlock()
		return nil, context.Canceled
	}

	if err != nil {
		herr := &HistoryError{Symbol: e.symbol.String(), Interval: e.opts.Interval.Name, Err: err}
		e.loadErr = herr
		e.mu.Unlock()

		e.logger.Warn("candle history failed", zap.Error(err))
		e.reportError(herr)
		return nil, herr
	}

	e.window.Replace(candles)
	e.loadErr = nil
	published := e.publishLocked()
	e.emitLocked(published)

	e.logger.Info("candle history loaded", zap.Int("candles", len(published)))
	return published, nil
}

// OnLiveCandle folds one streamed candle into the window and publishes it.
func (e *CandleStreamEngine) OnLiveCandle(c *Candle) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}

	e.window.Apply(*c)
	e.emitLocked(e.publishLocked())
}

// Candles returns the last published window, oldest first.
func (e *CandleStreamEngine) Candles() []Candle {
	return *e.published.Load()
}

func (e *CandleStreamEngine) Symbol() *MarketSymbol {
	return e.symbol
}

func (e *CandleStreamEngine) Interval() Interval {
	return e.opts.Interval
}

func (e *CandleStreamEngine) State() ConnectionState {
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

func (e *CandleStreamEngine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// Err returns the HistoryError of the last load, if any.
func (e *CandleStreamEngine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadErr
}

func (e *CandleStreamEngine) publishLocked() []Candle {
	candles := e.window.Candles()
	e.published.Store(&candles)
	return candles
}

func (e *CandleStreamEngine) emitLocked(candles []Candle) {
	e.emitMu.Lock()
	e.mu.Unlock()
	defer e.emitMu.Unlock()

	if e.opts.OnPublish != nil {
		e.opts.OnPublish(candles)
	}
}

func (e *CandleStreamEngine) onStreamError(err error) {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		e.logger.Warn("dropped malformed kline", zap.Error(err))
	}
	e.reportError(err)
}

func (e *CandleStreamEngine) onStreamState(state ConnectionState) {
	if e.opts.OnState != nil {
		e.opts.OnState(state)
	}
}

func (e *CandleStreamEngine) reportError(err error) {
	if e.opts.OnError != nil {
		e.opts.OnError(err)
	}
}
