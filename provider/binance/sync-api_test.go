package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spooky-finn/go-cryptomarkets-view/config"
	"github.com/spooky-finn/go-cryptomarkets-view/domain"
)

func newTestSyncAPI(t *testing.T, handler http.HandlerFunc) *BinanceSyncAPI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewBinanceSyncAPI(config.BinanceConfig{
		RestURL:     srv.URL + "/api/v3/",
		HttpTimeout: 2 * time.Second,
	}, zaptest.NewLogger(t))
}

func xmrBtc(t *testing.T) *domain.MarketSymbol {
	t.Helper()
	symbol, err := domain.NewMarketSymbol("xmr", "btc")
	require.NoError(t, err)
	return symbol
}

func TestBinanceSyncAPI_OrderBookSnapshot(t *testing.T) {
	api := newTestSyncAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/depth", r.URL.Path)
		assert.Equal(t, "XMRBTC", r.URL.Query().Get("symbol"))
		assert.Equal(t, "3", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"lastUpdateId": 1027024,
			"bids": [["0.0040", "431.0"], ["0.0039", "12.5"], ["0.0038", "1"]],
			"asks": [["0.0041", "12.0"], ["0.0042", "3"], ["0.0043", "0.5"]]
		}`))
	})

	limit := 3
	orderBook, err := api.OrderBookSnapshot(context.Background(), xmrBtc(t), limit)

	require.NoError(t, err, "Unexpected error")
	assert.Equal(t, int64(1027024), orderBook.LastUpdateID)
	assert.Equal(t, domain.OrderBookSource_Provider, orderBook.Source)
	assert.Equal(t, limit, len(orderBook.Asks), "Asks should have the same length as the limit")
	assert.Equal(t, limit, len(orderBook.Bids), "Bids should have the same length as the limit")
	assert.Equal(t, "0.004", orderBook.Bids[0].Price.String())
}

func TestBinanceSyncAPI_OrderBookSnapshotAPIError(t *testing.T) {
	api := newTestSyncAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	})

	_, err := api.OrderBookSnapshot(context.Background(), xmrBtc(t), 10)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, -1121, apiErr.Code)
	assert.Equal(t, "Invalid symbol.", apiErr.Msg)
}

func TestBinanceSyncAPI_OrderBookSnapshotMalformedLevel(t *testing.T) {
	api := newTestSyncAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"lastUpdateId": 1, "bids": [["abc", "1"]], "asks": []}`))
	})

	_, err := api.OrderBookSnapshot(context.Background(), xmrBtc(t), 10)
	assert.ErrorContains(t, err, "depth bids")
}

func TestBinanceSyncAPI_OrderBookSnapshotCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	api := newTestSyncAPI(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := api.OrderBookSnapshot(ctx, xmrBtc(t), 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBinanceSyncAPI_Klines(t *testing.T) {
	api := newTestSyncAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))

		_, _ = w.Write([]byte(`[
			[1499040000000, "0.01634790", "0.80000000", "0.01575800", "0.01577100", "148976.11427815",
			 1499644799999, "2434.19055334", 308, "1756.87402397", "28.46694368", "0"],
			[1499040060000, "0.01577100", "0.01600000", "0.01570000", "0.01590000", "10",
			 1499040119999, "0", 1, "0", "0", "0"]
		]`))
	})

	candles, err := api.Klines(context.Background(), xmrBtc(t), domain.Interval1m, 100)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, int64(1499040000), candles[0].Time, "open time is converted to seconds")
	assert.Equal(t, "0.0163479", candles[0].Open.String())
	assert.Equal(t, "0.8", candles[0].High.String())
	assert.Equal(t, "0.015758", candles[0].Low.String())
	assert.Equal(t, "0.015771", candles[0].Close.String())
	assert.Equal(t, "148976.11427815", candles[0].Volume.String())
	assert.Equal(t, int64(1499040060), candles[1].Time)
}

func TestBinanceSyncAPI_KlinesShortRow(t *testing.T) {
	api := newTestSyncAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[1499040000000, "1", "2"]]`))
	})

	_, err := api.Klines(context.Background(), xmrBtc(t), domain.Interval1m, 100)
	assert.ErrorContains(t, err, "kline 0")
}
