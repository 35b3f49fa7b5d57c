package binance

import (
	"errors"

	"github.com/spooky-finn/go-cryptomarkets-view/domain"
)

// BinanceDepthUpdateValidator follows the diff stream rules of the Binance docs: an event
// with u <= lastUpdateId is outdated, the next event must have U <= lastUpdateId+1.
type BinanceDepthUpdateValidator struct{}

func (v *BinanceDepthUpdateValidator) IsValidUpd(update *domain.OrderBookUpdate, orderBookLastUpdId int64) error {
	// Drop any event where u is <= lastUpdateId in the snapshot
	if update.FinalUpdateID <= orderBookLastUpdId {
		return domain.ErrOrderBookUpdateIsOutdated
	}

	// The first processed event should have U <= lastUpdateId+1 AND u >= lastUpdateId+1
	if update.FirstUpdateID <= orderBookLastUpdId+1 && update.FinalUpdateID >= orderBookLastUpdId+1 {
		return nil
	}

	if update.FirstUpdateID > orderBookLastUpdId+1 {
		return domain.ErrOrderBookUpdateIsOutOfSequece
	}

	return nil
}

func (v *BinanceDepthUpdateValidator) IsErrOutOfSequece(err error) bool {
	return errors.Is(err, domain.ErrOrderBookUpdateIsOutOfSequece)
}

func (v *BinanceDepthUpdateValidator) IsErrOutdated(err error) bool {
	return errors.Is(err, domain.ErrOrderBookUpdateIsOutdated)
}
