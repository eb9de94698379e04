package model

import (
	"fmt"
	"strings"
	"time"
)

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Resolution is the base period of a raw upstream series.
type Resolution string

const (
	ResolutionDaily  Resolution = "D"
	ResolutionHourly Resolution = "H"
)

// Duration returns the wall-clock length of one base period.
func (r Resolution) Duration() time.Duration {
	if r == ResolutionHourly {
		return time.Hour
	}
	return 24 * time.Hour
}

// ParseResolution accepts the spellings used by query strings and config files.
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "d", "day", "days", "1d":
		return ResolutionDaily, nil
	case "h", "hour", "hours", "60", "1h":
		return ResolutionHourly, nil
	default:
		return "", fmt.Errorf("%w: unknown resolution %q", ErrValidation, s)
	}
}

// RawSeries holds uniform-period OHLCV columns exactly as returned upstream.
// Timestamps are unix seconds. A nil column means the upstream omitted it.
type RawSeries struct {
	Symbol    string
	Timestamp []int64
	Open      []float64
	High      []float64
	Low       []float64
	Close     []float64
	Volume    []float64
}

// Len returns the number of timestamps.
func (s *RawSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Timestamp)
}

// CandleSeries is a RawSeries aggregated into windows of Width base periods.
type CandleSeries struct {
	Symbol    string
	Width     int
	Timestamp []int64
	Open      []float64
	High      []float64
	Low       []float64
	Close     []float64
	Volume    []float64
}

func (c *CandleSeries) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Timestamp)
}

// Bar returns the i-th candle as a row.
func (c *CandleSeries) Bar(i int) OHLCV {
	return OHLCV{
		Time:   time.Unix(c.Timestamp[i], 0),
		Open:   c.Open[i],
		High:   c.High[i],
		Low:    c.Low[i],
		Close:  c.Close[i],
		Volume: c.Volume[i],
	}
}

// Last returns the most recent candle, if any.
func (c *CandleSeries) Last() (OHLCV, bool) {
	n := c.Len()
	if n == 0 {
		return OHLCV{}, false
	}
	return c.Bar(n - 1), true
}

// Bars converts the column layout to rows.
func (c *CandleSeries) Bars() []OHLCV {
	bars := make([]OHLCV, c.Len())
	for i := range bars {
		bars[i] = c.Bar(i)
	}
	return bars
}
