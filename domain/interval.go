package domain

import (
	"fmt"
	"time"
)

// Interval is a kline bucket width.
type Interval struct {
	Name     string
	Duration time.Duration
}

var (
	Interval1s  = Interval{Name: "1s", Duration: time.Second}
	Interval1m  = Interval{Name: "1m", Duration: time.Minute}
	Interval3m  = Interval{Name: "3m", Duration: 3 * time.Minute}
	Interval5m  = Interval{Name: "5m", Duration: 5 * time.Minute}
	Interval15m = Interval{Name: "15m", Duration: 15 * time.Minute}
	Interval30m = Interval{Name: "30m", Duration: 30 * time.Minute}
	Interval1h  = Interval{Name: "1h", Duration: time.Hour}
	Interval2h  = Interval{Name: "2h", Duration: 2 * time.Hour}
	Interval4h  = Interval{Name: "4h", Duration: 4 * time.Hour}
	Interval6h  = Interval{Name: "6h", Duration: 6 * time.Hour}
	Interval8h  = Interval{Name: "8h", Duration: 8 * time.Hour}
	Interval12h = Interval{Name: "12h", Duration: 12 * time.Hour}
	Interval1d  = Interval{Name: "1d", Duration: 24 * time.Hour}
	Interval3d  = Interval{Name: "3d", Duration: 3 * 24 * time.Hour}
	Interval1w  = Interval{Name: "1w", Duration: 7 * 24 * time.Hour}
	// Calendar months vary; the duration is nominal.
	Interval1M = Interval{Name: "1M", Duration: 30 * 24 * time.Hour}
)

var AllIntervals = []Interval{
	Interval1s, Interval1m, Interval3m, Interval5m, Interval15m, Interval30m,
	Interval1h, Interval2h, Interval4h, Interval6h, Interval8h, Interval12h,
	Interval1d, Interval3d, Interval1w, Interval1M,
}

var intervalRegistry = make(map[string]Interval)

func init() {
	for _, interval := range AllIntervals {
		intervalRegistry[interval.Name] = interval
	}
}

func ParseInterval(name string) (Interval, error) {
	interval, ok := intervalRegistry[name]
	if !ok {
		return Interval{}, fmt.Errorf("%w: %q", ErrUnsupportedInterval, name)
	}
	return interval, nil
}

func (i Interval) String() string {
	return i.Name
}
