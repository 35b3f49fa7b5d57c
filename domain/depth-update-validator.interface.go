package domain

import "errors"

var (
	// The update skips ids: some diffs were missed, typically across a reconnect.
	ErrOrderBookUpdateIsOutOfSequece = errors.New("order book update is out of sequence")
	// The update is already covered by the book.
	ErrOrderBookUpdateIsOutdated = errors.New("order book update is outdated")
)

// IDepthUpdateValidator checks exchange update ids against the book.
// The engines only report what it finds; updates are merged regardless.
type IDepthUpdateValidator interface {
	// if return nil, the update is valid
	IsValidUpd(update *OrderBookUpdate, orderBookLastUpdId int64) error
	IsErrOutOfSequece(err error) bool
	IsErrOutdated(err error) bool
}
