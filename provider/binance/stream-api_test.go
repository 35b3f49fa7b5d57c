package binance

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spooky-finn/go-cryptomarkets-view/domain"
	"github.com/spooky-finn/go-cryptomarkets-view/provider/stream"
)

func btcUsdt(t *testing.T) *domain.MarketSymbol {
	t.Helper()
	symbol, err := domain.NewMarketSymbolFromString("btc_usdt")
	require.NoError(t, err)
	return symbol
}

func TestTopics(t *testing.T) {
	symbol := btcUsdt(t)

	assert.Equal(t, "btcusdt@depth@100ms", DepthTopic(symbol, "100ms", 0))
	assert.Equal(t, "btcusdt@depth", DepthTopic(symbol, "", 0))
	assert.Equal(t, "btcusdt@depth20@100ms", DepthTopic(symbol, "100ms", 20))
	assert.Equal(t, "btcusdt@kline_1m", KlineTopic(symbol, domain.Interval1m))
}

func TestDecodeDepthUpdate(t *testing.T) {
	update, err := DecodeDepthUpdate([]byte(`{
		"e": "depthUpdate", "E": 1672515782136, "s": "BNBBTC", "U": 157, "u": 160,
		"b": [["0.0024", "10"]],
		"a": [["0.0026", "100"], ["0.0027", "0"]]
	}`))
	require.NoError(t, err)

	assert.Equal(t, int64(157), update.FirstUpdateID)
	assert.Equal(t, int64(160), update.FinalUpdateID)
	assert.Equal(t, int64(1672515782136), update.EventTime)
	assert.False(t, update.Partial)
	assert.Equal(t, [][]string{{"0.0024", "10"}}, domain.SerializePriceLevels(update.Bids))
	assert.Equal(t, [][]string{{"0.0026", "100"}, {"0.0027", "0"}}, domain.SerializePriceLevels(update.Asks))
}

func TestDecodeDepthUpdate_CombinedEnvelope(t *testing.T) {
	update, err := DecodeDepthUpdate([]byte(`{"stream":"bnbbtc@depth","data":{"e":"depthUpdate","U":1,"u":2,"b":[],"a":[["1","1"]]}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(2), update.FinalUpdateID)
	assert.Len(t, update.Asks, 1)
}

func TestDecodeDepthUpdate_Malformed(t *testing.T) {
	_, err := DecodeDepthUpdate([]byte(`{"e":"depthUpdate","b":[["x","1"]],"a":[]}`))
	assert.Error(t, err)

	_, err = DecodeDepthUpdate([]byte(`{"e":"trade"}`))
	assert.ErrorContains(t, err, "unexpected event")

	_, err = DecodeDepthUpdate([]byte(`garbage`))
	assert.Error(t, err)
}

func TestDecodePartialDepth(t *testing.T) {
	update, err := DecodePartialDepth([]byte(`{
		"lastUpdateId": 160,
		"bids": [["0.0024", "10"]],
		"asks": [["0.0026", "100"]]
	}`))
	require.NoError(t, err)

	assert.True(t, update.Partial)
	assert.Equal(t, int64(160), update.FinalUpdateID)
	assert.Len(t, update.Bids, 1)
	assert.Len(t, update.Asks, 1)
}

func TestDecodePartialDepth_RejectsFramesWithoutSides(t *testing.T) {
	for name, frame := range map[string]string{
		"subscription ack": `{"result":null,"id":1}`,
		"empty envelope":   `{"stream":"btcusdt@depth20","data":{}}`,
		"null envelope":    `{"stream":"btcusdt@depth20","data":null}`,
		"asks missing":     `{"lastUpdateId":1,"bids":[["1","1"]]}`,
		"bids null":        `{"lastUpdateId":1,"bids":null,"asks":[["2","1"]]}`,
	} {
		t.Run(name, func(t *testing.T) {
			update, err := DecodePartialDepth([]byte(frame))
			assert.ErrorIs(t, err, errNoDepthSides)
			assert.Nil(t, update)
		})
	}
}

func TestDecodePartialDepth_EmptySideIsKept(t *testing.T) {
	update, err := DecodePartialDepth([]byte(`{"lastUpdateId":7,"bids":[["1","2"]],"asks":[]}`))
	require.NoError(t, err)
	assert.Len(t, update.Bids, 1)
	assert.Empty(t, update.Asks)
}

func TestDecodeDepthUpdate_RejectsControlFrames(t *testing.T) {
	_, err := DecodeDepthUpdate([]byte(`{"result":null,"id":1}`))
	assert.ErrorIs(t, err, errEmptyDiff)

	_, err = DecodeDepthUpdate([]byte(`{"stream":"btcusdt@depth","data":{}}`))
	assert.ErrorIs(t, err, errEmptyDiff)

	// an id-carrying diff with no level changes is still a valid update
	update, err := DecodeDepthUpdate([]byte(`{"e":"depthUpdate","U":5,"u":6,"b":[],"a":[]}`))
	require.NoError(t, err)
	assert.Equal(t, int64(6), update.FinalUpdateID)
}

func TestDecodeKline(t *testing.T) {
	c, err := DecodeKline([]byte(`{
		"e": "kline", "E": 1672515782136, "s": "BNBBTC",
		"k": {"t": 1672515780000, "T": 1672515839999, "i": "1m",
		      "o": "0.0010", "c": "0.0020", "h": "0.0025", "l": "0.0015", "v": "1000", "x": false}
	}`))
	require.NoError(t, err)

	assert.Equal(t, int64(1672515780), c.Time)
	assert.Equal(t, "0.001", c.Open.String())
	assert.Equal(t, "0.0025", c.High.String())
	assert.Equal(t, "0.0015", c.Low.String())
	assert.Equal(t, "0.002", c.Close.String())
	assert.Equal(t, "1000", c.Volume.String())

	_, err = DecodeKline([]byte(`{"result":null,"id":1}`))
	assert.ErrorIs(t, err, errNoKline)
}

func TestBinanceStreamAPI_DepthAndKlineStreams(t *testing.T) {
	var mu sync.Mutex
	var paths []string

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()

		if strings.Contains(r.URL.Path, "@kline_") {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"kline","k":{"t":60000,"o":"1","h":"2","l":"0.5","c":"1.5","v":"3"}}`))
		} else {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"e":"depthUpdate","U":1,"u":1,"b":[["100","1"]],"a":[]}`))
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	api := NewBinanceStreamAPI(StreamAPIOptions{
		WsURL:  "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		Speed:  "100ms",
		Policy: stream.DefaultPolicy(),
	}, zaptest.NewLogger(t))
	defer api.Close()

	updates := make(chan *domain.OrderBookUpdate, 1)
	candles := make(chan *domain.Candle, 1)

	_, err := api.DepthDiffStream(btcUsdt(t), domain.StreamCallbacks[*domain.OrderBookUpdate]{
		OnMessage: func(u *domain.OrderBookUpdate) { updates <- u },
	})
	require.NoError(t, err)
	_, err = api.KlineStream(btcUsdt(t), domain.Interval1m, domain.StreamCallbacks[*domain.Candle]{
		OnMessage: func(c *domain.Candle) { candles <- c },
	})
	require.NoError(t, err)

	select {
	case u := <-updates:
		assert.Equal(t, [][]string{{"100", "1"}}, domain.SerializePriceLevels(u.Bids))
	case <-time.After(2 * time.Second):
		t.Fatal("no depth update")
	}
	select {
	case c := <-candles:
		assert.Equal(t, int64(60), c.Time)
	case <-time.After(2 * time.Second):
		t.Fatal("no candle")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"/ws/btcusdt@depth@100ms", "/ws/btcusdt@kline_1m"}, paths)
}

func TestBinanceStreamAPI_PartialBookSurvivesControlFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"lastUpdateId":10,"bids":[["100","1"]],"asks":[["101","2"]]}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	api := NewBinanceStreamAPI(StreamAPIOptions{
		WsURL:  "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		Levels: 20,
		Policy: stream.DefaultPolicy(),
	}, zaptest.NewLogger(t))
	defer api.Close()

	updates := make(chan *domain.OrderBookUpdate, 4)
	errs := make(chan error, 4)

	_, err := api.DepthDiffStream(btcUsdt(t), domain.StreamCallbacks[*domain.OrderBookUpdate]{
		OnMessage: func(u *domain.OrderBookUpdate) { updates <- u },
		OnError:   func(err error) { errs <- err },
	})
	require.NoError(t, err)

	book := domain.NewEmptyOrderBook(btcUsdt(t))
	select {
	case u := <-updates:
		book.ApplyUpdate(u)
	case <-time.After(2 * time.Second):
		t.Fatal("no partial book frame")
	}

	select {
	case err := <-errs:
		var decodeErr *domain.DecodeError
		require.ErrorAs(t, err, &decodeErr)
		assert.ErrorIs(t, err, errNoDepthSides)
	case <-time.After(2 * time.Second):
		t.Fatal("control frame was not reported")
	}

	select {
	case u := <-updates:
		t.Fatalf("control frame was delivered as an update: %+v", u)
	default:
	}

	assert.Equal(t, 1, book.Bids.Len())
	assert.Equal(t, 1, book.Asks.Len())
}

func TestBinanceStreamAPI_RejectsUnknownInterval(t *testing.T) {
	api := NewBinanceStreamAPI(StreamAPIOptions{}, zaptest.NewLogger(t))
	defer api.Close()

	_, err := api.KlineStream(btcUsdt(t), domain.Interval{Name: "7m"}, domain.StreamCallbacks[*domain.Candle]{})
	assert.ErrorIs(t, err, domain.ErrUnsupportedInterval)
}
