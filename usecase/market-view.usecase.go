package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spooky-finn/go-cryptomarkets-view/config"
	"github.com/spooky-finn/go-cryptomarkets-view/domain"
	promclient "github.com/spooky-finn/go-cryptomarkets-view/infrastructure/prometheus"
)

var (
	ErrNoInstrument = errors.New("no instrument selected")
	ErrClosed       = errors.New("market view is closed")
)

type MarketViewOptions struct {
	DepthLimit    int
	MergeInterval time.Duration
	Validator     domain.IDepthUpdateValidator
	Interval      domain.Interval
	WindowSize    int
}

type StreamStatus struct {
	State   domain.ConnectionState `json:"state"`
	Loading bool                   `json:"loading"`
	Error   string                 `json:"error,omitempty"`
}

type Status struct {
	Market   string                 `json:"market"`
	Interval string                 `json:"interval"`
	State    domain.ConnectionState `json:"state"`
	Book     StreamStatus           `json:"book"`
	Candles  StreamStatus           `json:"candles"`
	// Failed is set once a stream gave up reconnecting; selecting the market again retries.
	Failed    bool   `json:"failed"`
	LastError string `json:"lastError,omitempty"`
}

// session is all per-instrument state. It is never reused across selections.
type session struct {
	token   uint64
	symbol  *domain.MarketSymbol
	book    *domain.OrderBookEngine
	candles *domain.CandleStreamEngine

	bookLoaded    atomic.Bool
	candlesLoaded atomic.Bool
	failed        atomic.Bool
	lastErr       atomic.Pointer[string]
}

func (s *session) stop() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.book.Stop() }()
	go func() { defer wg.Done(); s.candles.Stop() }()
	wg.Wait()
}

// MarketViewUseCase owns the view of the selected instrument: its order book engine, its
// candle engine and the consumer event bus. Selecting another instrument tears the old
// session down before the new one starts.
type MarketViewUseCase struct {
	syncAPI   domain.ProviderSyncAPI
	streamAPI domain.ProviderStreamAPI
	opts      MarketViewOptions
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	token   atomic.Uint64
	current atomic.Pointer[session]

	bus *eventBus
}

func NewMarketViewUseCase(
	syncAPI domain.ProviderSyncAPI,
	streamAPI domain.ProviderStreamAPI,
	opts MarketViewOptions,
	logger *zap.Logger,
) *MarketViewUseCase {
	if opts.Interval.Name == "" {
		opts.Interval = domain.Interval1m
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &MarketViewUseCase{
		syncAPI:   syncAPI,
		streamAPI: streamAPI,
		opts:      opts,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		bus:       newEventBus(),
	}
}

// SelectInstrument switches the view to symbol. The previous session is fully stopped
// first: its token is invalidated, timers cancelled, sockets closed and in-flight
// requests abandoned. Re-selecting the active instrument only restarts a failed session.
func (uc *MarketViewUseCase) SelectInstrument(ctx context.Context, symbol *domain.MarketSymbol) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.closed {
		return ErrClosed
	}

	prev := uc.current.Load()
	if prev != nil && prev.symbol.Equal(symbol) && !prev.failed.Load() {
		return nil
	}

	token := uc.token.Add(1)
	if prev != nil {
		prev.stop()
		uc.logger.Info("instrument deselected", zap.String("market", prev.symbol.String()))
	}

	next := uc.newSession(token, symbol)
	uc.current.Store(next)
	promclient.InstrumentSwitches.Inc()

	// consumers see the cleared state before anything of the new instrument
	uc.bus.publish(Event{Type: EventBookUpdated, Market: symbol.String(), Book: next.book.Snapshot(0)})
	uc.bus.publish(Event{Type: EventCandlesUpdated, Market: symbol.String(), Candles: []domain.Candle{}})
	uc.publishStatus(next)

	next.book.Start(uc.ctx)
	next.candles.Start(uc.ctx)

	uc.logger.Info("instrument selected",
		zap.String("market", symbol.String()),
		zap.String("interval", uc.opts.Interval.Name),
		zap.Uint64("token", token),
	)
	return nil
}

func (uc *MarketViewUseCase) newSession(token uint64, symbol *domain.MarketSymbol) *session {
	s := &session{token: token, symbol: symbol}
	logger := uc.logger.With(zap.Uint64("token", token))

	s.book = domain.NewOrderBookEngine(symbol, uc.syncAPI, uc.streamAPI, domain.OrderBookEngineOptions{
		DepthLimit:    uc.opts.DepthLimit,
		MergeInterval: uc.opts.MergeInterval,
		Validator:     uc.opts.Validator,
		OnPublish: func(snapshot *domain.OrderBookSnapshot) {
			if !uc.isActive(s) {
				return
			}
			uc.bus.publish(Event{Type: EventBookUpdated, Market: symbol.String(), Book: snapshot})
			if s.bookLoaded.CompareAndSwap(false, true) {
				uc.publishStatus(s)
			}
		},
		OnError:       func(err error) { uc.onError(s, err) },
		OnState:       func(domain.ConnectionState) { uc.publishStatus(s) },
		OnMerge:       recordMerge,
		OnBuffered:    func(pending int) { promclient.OrderBookPendingUpdates.Set(float64(pending)) },
		OnSequenceGap: func(reason string) { promclient.OrderBookSequenceGaps.WithLabelValues(reason).Inc() },
	}, logger.Named("orderbook"))

	s.candles = domain.NewCandleStreamEngine(symbol, uc.syncAPI, uc.streamAPI, domain.CandleStreamEngineOptions{
		Interval:   uc.opts.Interval,
		WindowSize: uc.opts.WindowSize,
		OnPublish: func(candles []domain.Candle) {
			promclient.CandleWindowSize.Set(float64(len(candles)))
			if !uc.isActive(s) {
				return
			}
			uc.bus.publish(Event{Type: EventCandlesUpdated, Market: symbol.String(), Candles: candles})
			if s.candlesLoaded.CompareAndSwap(false, true) {
				uc.publishStatus(s)
			}
		},
		OnError: func(err error) { uc.onError(s, err) },
		OnState: func(domain.ConnectionState) { uc.publishStatus(s) },
	}, logger.Named("candles"))

	return s
}

func recordMerge(stats domain.MergeStats) {
	promclient.OrderBookMerges.Inc()
	promclient.OrderBookPendingUpdates.Set(0)
	promclient.OrderBookLevels.WithLabelValues(string(domain.Side_Bid)).Set(float64(stats.Bids))
	promclient.OrderBookLevels.WithLabelValues(string(domain.Side_Ask)).Set(float64(stats.Asks))
}

func (uc *MarketViewUseCase) isActive(s *session) bool {
	return uc.token.Load() == s.token
}

func (uc *MarketViewUseCase) onError(s *session, err error) {
	if !uc.isActive(s) {
		return
	}

	msg := err.Error()
	s.lastErr.Store(&msg)

	var decodeErr *domain.DecodeError
	switch {
	case errors.Is(err, domain.ErrMaxRetriesExceeded):
		s.failed.Store(true)
		uc.logger.Error("market data stream failed permanently",
			zap.String("market", s.symbol.String()),
			zap.Error(err),
		)
	case errors.As(err, &decodeErr):
		// isolated per message, nothing to surface
		return
	}

	uc.publishStatus(s)
}

func (uc *MarketViewUseCase) publishStatus(s *session) {
	if !uc.isActive(s) {
		return
	}
	status := uc.statusOf(s)
	uc.bus.publish(Event{Type: EventStatusChanged, Market: status.Market, Status: status})
}

func (uc *MarketViewUseCase) statusOf(s *session) *Status {
	status := &Status{
		Market:   s.symbol.String(),
		Interval: uc.opts.Interval.Name,
		Book: StreamStatus{
			State:   s.book.State(),
			Loading: s.book.Loading(),
			Error:   errString(s.book.Err()),
		},
		Candles: StreamStatus{
			State:   s.candles.State(),
			Loading: s.candles.Loading(),
			Error:   errString(s.candles.Err()),
		},
		Failed: s.failed.Load(),
	}
	status.State = domain.CombineStates(status.Book.State, status.Candles.State)
	if status.Failed {
		status.State = domain.ConnectionState_Closed
	}
	if last := s.lastErr.Load(); last != nil {
		status.LastError = *last
	}
	return status
}

func (uc *MarketViewUseCase) active() (*session, error) {
	s := uc.current.Load()
	if s == nil {
		return nil, ErrNoInstrument
	}
	return s, nil
}

// Market returns the selected instrument, or nil.
func (uc *MarketViewUseCase) Market() *domain.MarketSymbol {
	if s := uc.current.Load(); s != nil {
		return s.symbol
	}
	return nil
}

// GetOrderBook returns the last merged book, limited to the top limit levels per side.
func (uc *MarketViewUseCase) GetOrderBook(limit int) (*domain.OrderBookSnapshot, error) {
	s, err := uc.active()
	if err != nil {
		return nil, err
	}
	return s.book.Snapshot(limit), nil
}

// Depth returns cumulative levels of the last merged book.
func (uc *MarketViewUseCase) Depth(limit int) (bids, asks []domain.DepthLevel, err error) {
	s, err := uc.active()
	if err != nil {
		return nil, nil, err
	}
	bids, asks = s.book.Snapshot(0).Depth(limit)
	return bids, asks, nil
}

func (uc *MarketViewUseCase) GetCandleWindow() ([]domain.Candle, error) {
	s, err := uc.active()
	if err != nil {
		return nil, err
	}
	return s.candles.Candles(), nil
}

// ConnectionStatus is the combined state of both streams of the selected instrument.
func (uc *MarketViewUseCase) ConnectionStatus() domain.ConnectionState {
	s, err := uc.active()
	if err != nil {
		return domain.ConnectionState_Closed
	}
	return uc.statusOf(s).State
}

func (uc *MarketViewUseCase) Status() (*Status, error) {
	s, err := uc.active()
	if err != nil {
		return nil, err
	}
	return uc.statusOf(s), nil
}

// Subscribe registers fn for every event until the returned func is called.
func (uc *MarketViewUseCase) Subscribe(fn Listener) (unsubscribe func()) {
	return uc.bus.subscribe(fn)
}

// Close stops the active session. The use case cannot be reused afterwards.
func (uc *MarketViewUseCase) Close() {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.closed {
		return
	}
	uc.closed = true
	uc.token.Add(1)

	if s := uc.current.Load(); s != nil {
		s.stop()
	}
	uc.cancel()

	if config.DebugMode {
		uc.logger.Debug("market view closed")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
