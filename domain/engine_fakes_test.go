package domain

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSyncAPI struct {
	mu       sync.Mutex
	snapshot *OrderBookSnapshot
	candles  []Candle
	err      error
	// gate, when set, holds every request until it is closed or ctx ends.
	gate  chan struct{}
	calls int
}

func (f *fakeSyncAPI) wait(ctx context.Context) error {
	if f.gate == nil {
		return nil
	}
	select {
	case <-f.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeSyncAPI) OrderBookSnapshot(ctx context.Context, _ *MarketSymbol, _ int) (*OrderBookSnapshot, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

func (f *fakeSyncAPI) Klines(ctx context.Context, _ *MarketSymbol, _ Interval, limit int) ([]Candle, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.candles) > limit {
		return f.candles[len(f.candles)-limit:], nil
	}
	return f.candles, nil
}

type fakeStreamAPI struct {
	mu           sync.Mutex
	depth        *StreamCallbacks[*OrderBookUpdate]
	kline        *StreamCallbacks[*Candle]
	subscribed   chan struct{}
	unsubscribed int
	err          error
}

func newFakeStreamAPI() *fakeStreamAPI {
	return &fakeStreamAPI{subscribed: make(chan struct{}, 4)}
}

func (f *fakeStreamAPI) subscription(topic string) *Subscription {
	return &Subscription{
		Topic: topic,
		Unsubscribe: func() {
			f.mu.Lock()
			f.unsubscribed++
			f.depth, f.kline = nil, nil
			f.mu.Unlock()
		},
		State: func() ConnectionState { return ConnectionState_Connected },
	}
}

func (f *fakeStreamAPI) DepthDiffStream(symbol *MarketSymbol, cb StreamCallbacks[*OrderBookUpdate]) (*Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.depth = &cb
	f.mu.Unlock()
	f.subscribed <- struct{}{}
	return f.subscription(symbol.StreamName() + "@depth"), nil
}

func (f *fakeStreamAPI) KlineStream(symbol *MarketSymbol, interval Interval, cb StreamCallbacks[*Candle]) (*Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.kline = &cb
	f.mu.Unlock()
	f.subscribed <- struct{}{}
	return f.subscription(symbol.StreamName() + "@kline_" + interval.Name), nil
}

func (f *fakeStreamAPI) unsubscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribed
}

var errUnavailable = errors.New("503 service unavailable")

func testSymbol(t *testing.T) *MarketSymbol {
	t.Helper()
	symbol, err := NewMarketSymbolFromString("btc_usdt")
	require.NoError(t, err)
	return symbol
}
