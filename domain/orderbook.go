package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type OrderBookSource string

const (
	OrderBookSource_Provider       OrderBookSource = "Provider"
	OrderBookSource_LocalOrderBook OrderBookSource = "LocalOrderBook"
)

type Side string

const (
	Side_Bid Side = "bid"
	Side_Ask Side = "ask"
)

// PriceLevel is one rung of the ladder. A zero quantity in an update removes the level.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// DepthLevel is a price level with the running total of quantity from the top of book.
type DepthLevel struct {
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

// OrderBookSnapshot is an immutable copy of a book: either fetched from the provider or
// taken from the local book. Consumers never hold a reference into the live book.
type OrderBookSnapshot struct {
	Source         OrderBookSource `json:"source"`
	Symbol         string          `json:"symbol"`
	LastUpdateID   int64           `json:"lastUpdateId"`
	LastUpdateTime time.Time       `json:"lastUpdateTime"`
	Bids           []PriceLevel    `json:"bids"`
	Asks           []PriceLevel    `json:"asks"`
}

// Depth returns cumulative levels for both sides, at most limit per side (0 means all).
func (s *OrderBookSnapshot) Depth(limit int) (bids []DepthLevel, asks []DepthLevel) {
	return cumulativeDepth(s.Bids, limit), cumulativeDepth(s.Asks, limit)
}

// OrderBookUpdate is one decoded diff (or, when Partial, a full top-N replacement).
type OrderBookUpdate struct {
	FirstUpdateID int64
	FinalUpdateID int64
	EventTime     int64
	Partial       bool
	Bids          []PriceLevel
	Asks          []PriceLevel
}

// OrderBookSide keeps levels unique by price and sorted best first:
// asks ascending, bids descending.
type OrderBookSide struct {
	side   Side
	levels []PriceLevel
}

func NewOrderBookSide(side Side, levels []PriceLevel) *OrderBookSide {
	s := &OrderBookSide{side: side}
	s.Replace(levels)
	return s
}

func (s *OrderBookSide) Len() int {
	return len(s.levels)
}

// Apply inserts, updates or removes a single level.
func (s *OrderBookSide) Apply(level PriceLevel) {
	i, found := s.search(level.Price)

	if level.Quantity.IsZero() {
		if found {
			s.levels = append(s.levels[:i], s.levels[i+1:]...)
		}
		return
	}

	if found {
		s.levels[i].Quantity = level.Quantity
		return
	}

	s.levels = append(s.levels, PriceLevel{})
	copy(s.levels[i+1:], s.levels[i:])
	s.levels[i] = level
}

// Replace drops every level and loads the given ones, applying them in order.
func (s *OrderBookSide) Replace(levels []PriceLevel) {
	s.levels = make([]PriceLevel, 0, len(levels))
	for _, level := range levels {
		s.Apply(level)
	}
}

// Levels returns a copy of the best limit levels (0 means all).
func (s *OrderBookSide) Levels(limit int) []PriceLevel {
	n := len(s.levels)
	if limit > 0 && n > limit {
		n = limit
	}

	out := make([]PriceLevel, n)
	copy(out, s.levels[:n])
	return out
}

func (s *OrderBookSide) search(price decimal.Decimal) (int, bool) {
	i := sort.Search(len(s.levels), func(i int) bool {
		return !s.before(s.levels[i].Price, price)
	})
	return i, i < len(s.levels) && s.levels[i].Price.Equal(price)
}

func (s *OrderBookSide) before(a, b decimal.Decimal) bool {
	if s.side == Side_Bid {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

// OrderBook is the live local book. It is not safe for concurrent use: the owning
// OrderBookEngine serializes every access.
type OrderBook struct {
	Symbol         *MarketSymbol
	Bids           *OrderBookSide
	Asks           *OrderBookSide
	LastUpdateID   int64
	LastUpdateTime time.Time
}

func NewEmptyOrderBook(symbol *MarketSymbol) *OrderBook {
	return &OrderBook{
		Symbol: symbol,
		Bids:   NewOrderBookSide(Side_Bid, nil),
		Asks:   NewOrderBookSide(Side_Ask, nil),
	}
}

func NewOrderBook(symbol *MarketSymbol, snapshot *OrderBookSnapshot) *OrderBook {
	return &OrderBook{
		Symbol:         symbol,
		Bids:           NewOrderBookSide(Side_Bid, snapshot.Bids),
		Asks:           NewOrderBookSide(Side_Ask, snapshot.Asks),
		LastUpdateID:   snapshot.LastUpdateID,
		LastUpdateTime: time.Now(),
	}
}

// ApplyUpdate folds one update into the book. Levels are applied in arrival order, so a
// later level for the same price wins. Prices outside the snapshot window are inserted.
func (ob *OrderBook) ApplyUpdate(update *OrderBookUpdate) {
	if update.Partial {
		ob.Bids.Replace(update.Bids)
		ob.Asks.Replace(update.Asks)
	} else {
		for _, level := range update.Bids {
			ob.Bids.Apply(level)
		}
		for _, level := range update.Asks {
			ob.Asks.Apply(level)
		}
	}

	if update.FinalUpdateID > ob.LastUpdateID {
		ob.LastUpdateID = update.FinalUpdateID
	}
	ob.LastUpdateTime = time.Now()
}

func (ob *OrderBook) TakeSnapshot(limit int) *OrderBookSnapshot {
	return &OrderBookSnapshot{
		Source:         OrderBookSource_LocalOrderBook,
		Symbol:         ob.Symbol.String(),
		LastUpdateID:   ob.LastUpdateID,
		LastUpdateTime: ob.LastUpdateTime,
		Bids:           ob.Bids.Levels(limit),
		Asks:           ob.Asks.Levels(limit),
	}
}

// ParsePriceLevels converts wire pairs ["price","qty", ...] into typed levels.
func ParsePriceLevels(raw [][]string) ([]PriceLevel, error) {
	result := make([]PriceLevel, len(raw))
	for i, level := range raw {
		if len(level) < 2 {
			return nil, fmt.Errorf("price level %d: expected [price, quantity], got %d fields", i, len(level))
		}

		price, err := decimal.NewFromString(level[0])
		if err != nil {
			return nil, fmt.Errorf("price level %d: price %q: %w", i, level[0], err)
		}
		quantity, err := decimal.NewFromString(level[1])
		if err != nil {
			return nil, fmt.Errorf("price level %d: quantity %q: %w", i, level[1], err)
		}
		if price.IsNegative() || quantity.IsNegative() {
			return nil, fmt.Errorf("price level %d: negative value [%s, %s]", i, level[0], level[1])
		}

		result[i] = PriceLevel{Price: price, Quantity: quantity}
	}

	return result, nil
}

func SerializePriceLevels(levels []PriceLevel) [][]string {
	result := make([][]string, len(levels))
	for i, level := range levels {
		result[i] = []string{level.Price.String(), level.Quantity.String()}
	}

	return result
}

func cumulativeDepth(levels []PriceLevel, limit int) []DepthLevel {
	out := make([]DepthLevel, 0, len(levels))
	total := decimal.Zero

	for _, level := range levels {
		if !level.Price.IsPositive() {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}

		total = total.Add(level.Quantity)
		out = append(out, DepthLevel{
			Price:      level.Price,
			Quantity:   level.Quantity,
			Cumulative: total,
		})
	}

	return out
}
