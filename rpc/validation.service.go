package rpc

import (
	"fmt"

	"github.com/spooky-finn/go-cryptomarkets-view/domain"
)

type ValidationServiceConfig struct {
	AvailableMarkets []string
}

type ValidationService struct {
	config *ValidationServiceConfig
}

func NewValidationService(config *ValidationServiceConfig) *ValidationService {
	return &ValidationService{
		config: config,
	}
}

func (s *ValidationService) IsSupportedMarket(market string) bool {
	for _, m := range s.config.AvailableMarkets {
		if m == market {
			return true
		}
	}
	return false
}

// ParseMarket checks market against the configured list and parses it.
func (s *ValidationService) ParseMarket(market string) (*domain.MarketSymbol, error) {
	if !s.IsSupportedMarket(market) {
		return nil, fmt.Errorf("market %s is not supported", market)
	}

	symbol, err := domain.NewMarketSymbolFromString(market)
	if err != nil {
		return nil, fmt.Errorf("invalid market symbol %s. Correct market symbol should use _ as a separator", market)
	}
	return symbol, nil
}
