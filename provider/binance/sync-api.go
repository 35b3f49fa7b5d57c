package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spooky-finn/go-cryptomarkets-view/config"
	"github.com/spooky-finn/go-cryptomarkets-view/domain"
)

const maxErrorBody = 512

// BinanceSyncAPI is the request/response side of Binance spot: depth snapshots and klines.
type BinanceSyncAPI struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

type depthResponse struct {
	LastUpdateId int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// APIError is the error body Binance returns with non-2xx responses.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance api: status %d, code %d: %s", e.Status, e.Code, e.Msg)
}

func NewBinanceSyncAPI(cfg config.BinanceConfig, logger *zap.Logger) *BinanceSyncAPI {
	timeout := cfg.HttpTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &BinanceSyncAPI{
		baseURL: strings.TrimRight(cfg.RestURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (api *BinanceSyncAPI) OrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.OrderBookSnapshot, error) {
	query := url.Values{}
	query.Set("symbol", symbol.Pair())
	query.Set("limit", strconv.Itoa(limit))

	var response depthResponse
	if err := api.get(ctx, "/depth", query, &response); err != nil {
		return nil, err
	}

	bids, err := domain.ParsePriceLevels(response.Bids)
	if err != nil {
		return nil, fmt.Errorf("depth bids: %w", err)
	}
	asks, err := domain.ParsePriceLevels(response.Asks)
	if err != nil {
		return nil, fmt.Errorf("depth asks: %w", err)
	}

	return &domain.OrderBookSnapshot{
		Source:         domain.OrderBookSource_Provider,
		Symbol:         symbol.String(),
		LastUpdateID:   response.LastUpdateId,
		LastUpdateTime: time.Now(),
		Bids:           bids,
		Asks:           asks,
	}, nil
}

func (api *BinanceSyncAPI) Klines(ctx context.Context, symbol *domain.MarketSymbol, interval domain.Interval, limit int) ([]domain.Candle, error) {
	query := url.Values{}
	query.Set("symbol", symbol.Pair())
	query.Set("interval", interval.Name)
	query.Set("limit", strconv.Itoa(limit))

	var rows [][]json.RawMessage
	if err := api.get(ctx, "/klines", query, &rows); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := parseKlineRow(row)
		if err != nil {
			return nil, fmt.Errorf("kline %d: %w", i, err)
		}
		candles = append(candles, c)
	}

	return candles, nil
}

func (api *BinanceSyncAPI) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := api.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	started := time.Now()
	resp, err := api.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if config.DebugMode {
		api.logger.Debug("binance request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("took", time.Since(started)),
		)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Msg == "" {
			apiErr.Msg = strings.TrimSpace(string(body))
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// parseKlineRow reads [openTime, open, high, low, close, volume, closeTime, ...].
func parseKlineRow(row []json.RawMessage) (domain.Candle, error) {
	if len(row) < 6 {
		return domain.Candle{}, fmt.Errorf("expected at least 6 fields, got %d", len(row))
	}

	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return domain.Candle{}, fmt.Errorf("open time: %w", err)
	}

	values := make([]decimal.Decimal, 5)
	for i := range values {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return domain.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		values[i] = d
	}

	return domain.Candle{
		Time:   openTime / 1000,
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}
