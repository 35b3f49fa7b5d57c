package domain

import "context"

type ProviderSyncAPI interface {
	OrderBookSnapshot(ctx context.Context, symbol *MarketSymbol, limit int) (*OrderBookSnapshot, error)
	Klines(ctx context.Context, symbol *MarketSymbol, interval Interval, limit int) ([]Candle, error)
}

type ProviderStreamAPI interface {
	DepthDiffStream(symbol *MarketSymbol, cb StreamCallbacks[*OrderBookUpdate]) (*Subscription, error)
	KlineStream(symbol *MarketSymbol, interval Interval, cb StreamCallbacks[*Candle]) (*Subscription, error)
}

// StreamCallbacks is how a stream pushes to its owner. Calls are serialized and stop
// once the subscription is unsubscribed or superseded.
type StreamCallbacks[T any] struct {
	OnMessage func(T)
	OnError   func(error)
	OnState   func(ConnectionState)
}
