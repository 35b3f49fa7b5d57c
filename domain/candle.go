package domain

import (
	"sort"

	"github.com/gammazero/deque"
	"github.com/shopspring/decimal"
)

const DefaultCandleWindow = 100

// Candle is an OHLC bar. Time is the bucket open time in unix seconds and identifies it.
type Candle struct {
	Time   int64           `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// CandleWindow holds the most recent candles, unique by time and ascending.
// Not safe for concurrent use.
type CandleWindow struct {
	size    int
	candles deque.Deque[Candle]
}

func NewCandleWindow(size int) *CandleWindow {
	if size <= 0 {
		size = DefaultCandleWindow
	}
	return &CandleWindow{size: size}
}

func (w *CandleWindow) Len() int {
	return w.candles.Len()
}

func (w *CandleWindow) Size() int {
	return w.size
}

// Apply folds a live candle in. A candle for the open bucket replaces the last one,
// a newer bucket is appended. Replaying the same candle leaves the window unchanged.
func (w *CandleWindow) Apply(c Candle) {
	n := w.candles.Len()

	switch {
	case n == 0 || c.Time > w.candles.Back().Time:
		w.candles.PushBack(c)
	case c.Time == w.candles.Back().Time:
		w.candles.Set(n-1, c)
	default:
		// Late bar for an older bucket: merge by time, keep the later arrival.
		w.load(append(w.Candles(), c))
	}

	w.truncate()
}

// Replace swaps the window contents for the given candles.
func (w *CandleWindow) Replace(candles []Candle) {
	w.load(candles)
	w.truncate()
}

func (w *CandleWindow) Clear() {
	w.candles.Clear()
}

// Candles returns a copy of the window, oldest first.
func (w *CandleWindow) Candles() []Candle {
	out := make([]Candle, w.candles.Len())
	for i := range out {
		out[i] = w.candles.At(i)
	}
	return out
}

func (w *CandleWindow) Last() (Candle, bool) {
	if w.candles.Len() == 0 {
		return Candle{}, false
	}
	return w.candles.Back(), true
}

func (w *CandleWindow) load(candles []Candle) {
	byTime := make(map[int64]int, len(candles))
	unique := make([]Candle, 0, len(candles))

	for _, c := range candles {
		if i, ok := byTime[c.Time]; ok {
			unique[i] = c
			continue
		}
		byTime[c.Time] = len(unique)
		unique = append(unique, c)
	}

	sort.Slice(unique, func(i, j int) bool {
		return unique[i].Time < unique[j].Time
	})

	w.candles.Clear()
	for _, c := range unique {
		w.candles.PushBack(c)
	}
}

func (w *CandleWindow) truncate() {
	for w.candles.Len() > w.size {
		w.candles.PopFront()
	}
}
