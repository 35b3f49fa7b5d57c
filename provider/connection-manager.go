package provider

import (
	"go.uber.org/zap"

	"github.com/spooky-finn/go-cryptomarkets-view/config"
	"github.com/spooky-finn/go-cryptomarkets-view/domain"
	"github.com/spooky-finn/go-cryptomarkets-view/provider/binance"
	"github.com/spooky-finn/go-cryptomarkets-view/provider/stream"
)

// ConnectionManager owns the exchange adapters: one REST client and one set of
// reconnecting market streams shared by every instrument session.
type ConnectionManager struct {
	BinanceSyncAPI   *binance.BinanceSyncAPI
	BinanceStreamAPI *binance.BinanceStreamAPI

	validator domain.IDepthUpdateValidator
}

func NewConnectionManager(cfg *config.Config, logger *zap.Logger) *ConnectionManager {
	cm := &ConnectionManager{
		BinanceSyncAPI: binance.NewBinanceSyncAPI(cfg.Binance, logger.Named("binance-rest")),
		BinanceStreamAPI: binance.NewBinanceStreamAPI(binance.StreamAPIOptions{
			WsURL:  cfg.Binance.WsURL,
			Speed:  cfg.Book.StreamSpeed,
			Levels: cfg.Book.StreamLevels,
			Policy: stream.PolicyFromConfig(cfg.Stream),
			Dialer: stream.NewDialer(cfg.Stream.HandshakeTimeout),
		}, logger.Named("binance-ws")),
	}

	// partial book frames carry no update ids
	if cfg.Book.SequenceCheck && cfg.Book.StreamLevels == 0 {
		cm.validator = &binance.BinanceDepthUpdateValidator{}
	}

	return cm
}

func (cm *ConnectionManager) SyncAPI() domain.ProviderSyncAPI {
	return cm.BinanceSyncAPI
}

func (cm *ConnectionManager) StreamAPI() domain.ProviderStreamAPI {
	return cm.BinanceStreamAPI
}

// DepthUpdateValidator is nil unless sequence checking is enabled for the diff stream.
func (cm *ConnectionManager) DepthUpdateValidator() domain.IDepthUpdateValidator {
	return cm.validator
}

func (cm *ConnectionManager) Close() {
	cm.BinanceStreamAPI.Close()
}
