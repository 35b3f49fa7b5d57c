package binance

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spooky-finn/go-cryptomarkets-view/domain"
	"github.com/spooky-finn/go-cryptomarkets-view/provider/stream"
)

const (
	defaultWebsocketEndpoint = "wss://stream.binance.com:9443/ws"
	depthStreamLabel         = "depth"
	klineStreamLabel         = "kline"
)

// Message is the envelope of the combined /stream endpoint. Raw /ws frames come without it.
type Message[T any] struct {
	Stream string `json:"stream"`
	Data   T      `json:"data"`
}

type DepthUpdateData struct {
	Event         string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateId int64      `json:"U"`
	FinalUpdateId int64      `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

// PartialDepthData is a frame of the fixed-level <symbol>@depth<N> stream.
// Sides are pointers so a frame without them is told apart from an empty side.
type PartialDepthData struct {
	LastUpdateId int64       `json:"lastUpdateId"`
	Bids         *[][]string `json:"bids"`
	Asks         *[][]string `json:"asks"`
}

type KlineData struct {
	Event     string        `json:"e"`
	EventTime int64         `json:"E"`
	Symbol    string        `json:"s"`
	Kline     *KlinePayload `json:"k"`
}

type KlinePayload struct {
	StartTime int64  `json:"t"`
	CloseTime int64  `json:"T"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Close     string `json:"c"`
	Volume    string `json:"v"`
	Closed    bool   `json:"x"`
}

var (
	errNoKline      = errors.New("frame has no kline payload")
	errNoDepthSides = errors.New("frame has no bids or asks")
	errEmptyDiff    = errors.New("frame has no update id and no levels")
)

type StreamAPIOptions struct {
	WsURL string
	// Speed is the diff stream update speed suffix, "100ms" or empty for the 1s default.
	Speed string
	// Levels selects the partial book stream with 5, 10 or 20 levels when > 0.
	Levels int
	Policy stream.Policy
	Dialer stream.Dialer
}

// BinanceStreamAPI maps market streams onto reconnecting websocket subscriptions.
type BinanceStreamAPI struct {
	opts   StreamAPIOptions
	depth  *stream.ReconnectingStream[*domain.OrderBookUpdate]
	klines *stream.ReconnectingStream[*domain.Candle]
}

func NewBinanceStreamAPI(opts StreamAPIOptions, logger *zap.Logger) *BinanceStreamAPI {
	if opts.WsURL == "" {
		opts.WsURL = defaultWebsocketEndpoint
	}

	decodeDepth := DecodeDepthUpdate
	if opts.Levels > 0 {
		decodeDepth = DecodePartialDepth
	}

	return &BinanceStreamAPI{
		opts: opts,
		depth: stream.NewReconnectingStream[*domain.OrderBookUpdate](stream.Options{
			BaseURL: opts.WsURL,
			Policy:  opts.Policy,
			Dialer:  opts.Dialer,
			Label:   depthStreamLabel,
		}, decodeDepth, logger.Named(depthStreamLabel)),
		klines: stream.NewReconnectingStream[*domain.Candle](stream.Options{
			BaseURL: opts.WsURL,
			Policy:  opts.Policy,
			Dialer:  opts.Dialer,
			Label:   klineStreamLabel,
		}, DecodeKline, logger.Named(klineStreamLabel)),
	}
}

func (bs *BinanceStreamAPI) DepthDiffStream(symbol *domain.MarketSymbol, cb domain.StreamCallbacks[*domain.OrderBookUpdate]) (*domain.Subscription, error) {
	if symbol == nil {
		return nil, fmt.Errorf("binance: depth stream: symbol is required")
	}
	return bs.depth.Subscribe(DepthTopic(symbol, bs.opts.Speed, bs.opts.Levels), cb), nil
}

func (bs *BinanceStreamAPI) KlineStream(symbol *domain.MarketSymbol, interval domain.Interval, cb domain.StreamCallbacks[*domain.Candle]) (*domain.Subscription, error) {
	if symbol == nil {
		return nil, fmt.Errorf("binance: kline stream: symbol is required")
	}
	if _, err := domain.ParseInterval(interval.Name); err != nil {
		return nil, err
	}
	return bs.klines.Subscribe(KlineTopic(symbol, interval), cb), nil
}

// Close drops every live subscription.
func (bs *BinanceStreamAPI) Close() {
	bs.depth.Close()
	bs.klines.Close()
}

// DepthTopic is btcusdt@depth@100ms for diffs or btcusdt@depth20@100ms for the partial book.
func DepthTopic(symbol *domain.MarketSymbol, speed string, levels int) string {
	topic := symbol.StreamName() + "@depth"
	if levels > 0 {
		topic += fmt.Sprintf("%d", levels)
	}
	if speed != "" {
		topic += "@" + speed
	}
	return topic
}

func KlineTopic(symbol *domain.MarketSymbol, interval domain.Interval) string {
	return fmt.Sprintf("%s@kline_%s", symbol.StreamName(), interval.Name)
}

// unwrap strips the combined stream envelope when present.
func unwrap(payload []byte) []byte {
	var msg Message[json.RawMessage]
	if err := json.Unmarshal(payload, &msg); err == nil && msg.Stream != "" && len(msg.Data) > 0 {
		return msg.Data
	}
	return payload
}

func DecodeDepthUpdate(payload []byte) (*domain.OrderBookUpdate, error) {
	var data DepthUpdateData
	if err := json.Unmarshal(unwrap(payload), &data); err != nil {
		return nil, err
	}
	if data.Event != "" && data.Event != "depthUpdate" {
		return nil, fmt.Errorf("unexpected event %q", data.Event)
	}

	bids, err := domain.ParsePriceLevels(data.Bids)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	asks, err := domain.ParsePriceLevels(data.Asks)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}
	// subscription acks and other control frames decode to nothing
	if data.FinalUpdateId == 0 && len(bids) == 0 && len(asks) == 0 {
		return nil, errEmptyDiff
	}

	return &domain.OrderBookUpdate{
		FirstUpdateID: data.FirstUpdateId,
		FinalUpdateID: data.FinalUpdateId,
		EventTime:     data.EventTime,
		Bids:          bids,
		Asks:          asks,
	}, nil
}

func DecodePartialDepth(payload []byte) (*domain.OrderBookUpdate, error) {
	var data PartialDepthData
	if err := json.Unmarshal(unwrap(payload), &data); err != nil {
		return nil, err
	}
	// a partial frame replaces both sides, so it must carry both
	if data.Bids == nil || data.Asks == nil {
		return nil, errNoDepthSides
	}

	bids, err := domain.ParsePriceLevels(*data.Bids)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	asks, err := domain.ParsePriceLevels(*data.Asks)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}

	return &domain.OrderBookUpdate{
		FinalUpdateID: data.LastUpdateId,
		Partial:       true,
		Bids:          bids,
		Asks:          asks,
	}, nil
}

func DecodeKline(payload []byte) (*domain.Candle, error) {
	var data KlineData
	if err := json.Unmarshal(unwrap(payload), &data); err != nil {
		return nil, err
	}
	if data.Kline == nil {
		return nil, errNoKline
	}

	k := data.Kline
	fields := []string{k.Open, k.High, k.Low, k.Close, k.Volume}
	values := make([]decimal.Decimal, len(fields))
	for i, field := range fields {
		d, err := decimal.NewFromString(field)
		if err != nil {
			return nil, fmt.Errorf("kline field %d %q: %w", i, field, err)
		}
		values[i] = d
	}

	return &domain.Candle{
		Time:   k.StartTime / 1000,
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}
