package binance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spooky-finn/go-cryptomarkets-view/domain"
)

func TestDepthUpdateValidator(t *testing.T) {
	v := &BinanceDepthUpdateValidator{}

	upd := &domain.OrderBookUpdate{
		FirstUpdateID: 123,
		FinalUpdateID: 124,
	}

	// u <= lastUpdateId
	err := v.IsValidUpd(upd, 124)
	assert.Equal(t, domain.ErrOrderBookUpdateIsOutdated, err, "Error should match")
	assert.True(t, v.IsErrOutdated(err))

	// U <= lastUpdateId+1 AND u >= lastUpdateId+1
	// 123 <= 124 && 124 >= 124
	err = v.IsValidUpd(upd, 123)
	assert.Nil(t, err, "Error should be nil")
}

func TestDepthUpdateValidator2(t *testing.T) {
	v := &BinanceDepthUpdateValidator{}
	upd := &domain.OrderBookUpdate{
		FirstUpdateID: 123,
		FinalUpdateID: 140,
	}

	// 123 <= 124 && 140 >= 124
	err := v.IsValidUpd(upd, 123)
	assert.Nil(t, err, "Error should be nil")
}

func TestDepthUpdateValidator_OutOfSeq(t *testing.T) {
	v := &BinanceDepthUpdateValidator{}

	upd := &domain.OrderBookUpdate{
		FirstUpdateID: 125,
		FinalUpdateID: 136,
	}

	err := v.IsValidUpd(upd, 122)
	assert.Equal(t, domain.ErrOrderBookUpdateIsOutOfSequece, err, "Error should match")
	assert.True(t, v.IsErrOutOfSequece(err))
	assert.False(t, v.IsErrOutdated(err))
}
