package stream

import (
	"time"

	"github.com/spooky-finn/go-cryptomarkets-view/config"
)

const (
	DefaultBackoffStep = 2 * time.Second
	DefaultBackoffMax  = 10 * time.Second
	DefaultMaxRetries  = 5
)

// Policy is a linear backoff: the n-th consecutive failure waits min(n*Step, Max).
// After MaxRetries failed reconnects the subscription gives up.
type Policy struct {
	Step       time.Duration
	Max        time.Duration
	MaxRetries int
}

func DefaultPolicy() Policy {
	return Policy{
		Step:       DefaultBackoffStep,
		Max:        DefaultBackoffMax,
		MaxRetries: DefaultMaxRetries,
	}
}

func PolicyFromConfig(cfg config.StreamConfig) Policy {
	return Policy{
		Step:       cfg.BackoffStep,
		Max:        cfg.BackoffMax,
		MaxRetries: cfg.MaxRetries,
	}
}

// Delay returns the wait before reconnect number attempt, starting at 1.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := time.Duration(attempt) * p.Step
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}

// Exhausted reports whether failure number attempt is past the retry budget.
func (p Policy) Exhausted(attempt int) bool {
	return attempt > p.MaxRetries
}
