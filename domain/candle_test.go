package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candle(ts int64, c int64) Candle {
	return Candle{
		Time:  ts,
		Open:  decimal.NewFromInt(c),
		High:  decimal.NewFromInt(c + 1),
		Low:   decimal.NewFromInt(c - 1),
		Close: decimal.NewFromInt(c),
	}
}

func times(candles []Candle) []int64 {
	out := make([]int64, len(candles))
	for i, c := range candles {
		out[i] = c.Time
	}
	return out
}

func TestCandleWindow_SameBucketReplacesLast(t *testing.T) {
	w := NewCandleWindow(10)
	w.Replace([]Candle{candle(60, 1), candle(120, 2)})

	w.Apply(candle(120, 5))

	got := w.Candles()
	require.Len(t, got, 2)
	assert.Equal(t, "5", got[1].Close.String())
}

func TestCandleWindow_NewBucketAppends(t *testing.T) {
	w := NewCandleWindow(10)
	w.Replace([]Candle{candle(60, 1)})

	w.Apply(candle(120, 2))

	assert.Equal(t, []int64{60, 120}, times(w.Candles()))
}

func TestCandleWindow_ApplyIsIdempotent(t *testing.T) {
	w := NewCandleWindow(10)
	w.Replace([]Candle{candle(60, 1), candle(120, 2)})

	w.Apply(candle(180, 3))
	once := w.Candles()
	w.Apply(candle(180, 3))

	assert.Equal(t, once, w.Candles())
}

func TestCandleWindow_NeverExceedsSize(t *testing.T) {
	w := NewCandleWindow(100)

	for i := int64(1); i <= 250; i++ {
		w.Apply(candle(i*60, i))
		assert.LessOrEqual(t, w.Len(), 100)
	}

	got := w.Candles()
	assert.Equal(t, int64(151*60), got[0].Time, "oldest candles are dropped")
	assert.Equal(t, int64(250*60), got[len(got)-1].Time)
}

func TestCandleWindow_LateCandleIsMergedInOrder(t *testing.T) {
	w := NewCandleWindow(10)
	w.Replace([]Candle{candle(60, 1), candle(180, 3)})

	w.Apply(candle(120, 2))
	assert.Equal(t, []int64{60, 120, 180}, times(w.Candles()))

	w.Apply(candle(60, 9))
	got := w.Candles()
	assert.Equal(t, []int64{60, 120, 180}, times(got))
	assert.Equal(t, "9", got[0].Close.String(), "later arrival wins")
}

func TestCandleWindow_ReplaceDedupesAndSorts(t *testing.T) {
	w := NewCandleWindow(3)

	w.Replace([]Candle{candle(300, 1), candle(60, 1), candle(120, 1), candle(120, 7), candle(240, 1)})

	got := w.Candles()
	assert.Equal(t, []int64{120, 240, 300}, times(got))
	assert.Equal(t, "7", got[0].Close.String())
}

func TestCandleWindow_Clear(t *testing.T) {
	w := NewCandleWindow(0)
	assert.Equal(t, DefaultCandleWindow, w.Size())

	w.Apply(candle(60, 1))
	w.Clear()

	_, ok := w.Last()
	assert.False(t, ok)
	assert.Empty(t, w.Candles())
}

func TestParseInterval(t *testing.T) {
	i, err := ParseInterval("15m")
	require.NoError(t, err)
	assert.Equal(t, Interval15m, i)

	_, err = ParseInterval("7m")
	assert.ErrorIs(t, err, ErrUnsupportedInterval)
}

func TestCombineStates(t *testing.T) {
	assert.Equal(t, ConnectionState_Connected, CombineStates(ConnectionState_Connected, ConnectionState_Connected))
	assert.Equal(t, ConnectionState_Reconnecting, CombineStates(ConnectionState_Connected, ConnectionState_Reconnecting))
	assert.Equal(t, ConnectionState_Connecting, CombineStates(ConnectionState_Closed, ConnectionState_Connecting))
	assert.Equal(t, ConnectionState_Closed, CombineStates(ConnectionState_Connected, ConnectionState_Closed))
	assert.Equal(t, ConnectionState_Closed, CombineStates())
}
