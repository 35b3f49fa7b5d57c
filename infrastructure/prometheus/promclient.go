package promclient

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var StreamReconnects = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "stream_reconnects_total",
		Help: "websocket reconnect attempts by stream kind",
	},
	[]string{"stream"},
)

var StreamDecodeErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "stream_decode_errors_total",
		Help: "malformed websocket payloads by stream kind",
	},
	[]string{"stream"},
)

var StreamRetriesExhausted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "stream_retries_exhausted_total",
		Help: "subscriptions that gave up reconnecting",
	},
	[]string{"stream"},
)

var OrderBookMerges = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "orderbook_merges_total",
		Help: "merge cycles that applied at least one update",
	},
)

var OrderBookLevels = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "orderbook_levels",
		Help: "price levels in the local order book",
	},
	[]string{"side"},
)

var OrderBookPendingUpdates = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "orderbook_pending_updates",
		Help: "depth updates buffered since the last merge",
	},
)

var OrderBookSequenceGaps = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orderbook_sequence_gaps_total",
		Help: "depth updates failing the sequence check",
	},
	[]string{"reason"},
)

var CandleWindowSize = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "candle_window_size",
		Help: "candles held in the recent window",
	},
)

var InstrumentSwitches = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "instrument_switches_total",
		Help: "instrument selections",
	},
)

// NewRegistry registers the package collectors on a fresh registry.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(StreamReconnects)
	reg.MustRegister(StreamDecodeErrors)
	reg.MustRegister(StreamRetriesExhausted)
	reg.MustRegister(OrderBookMerges)
	reg.MustRegister(OrderBookLevels)
	reg.MustRegister(OrderBookPendingUpdates)
	reg.MustRegister(OrderBookSequenceGaps)
	reg.MustRegister(CandleWindowSize)
	reg.MustRegister(InstrumentSwitches)
	reg.MustRegister(collectors.NewGoCollector())

	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
