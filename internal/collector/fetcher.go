package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"StockScreener/internal/model"
)

// HistoryQuery selects a raw series from an upstream provider.
type HistoryQuery struct {
	Symbol     string
	Resolution model.Resolution
	From       time.Time
	To         time.Time
	// CountBack is the number of base periods wanted ending at To. Zero lets
	// the provider use From alone.
	CountBack int
}

// Validate fills the time range defaults and rejects unusable queries.
func (q *HistoryQuery) Validate(now time.Time) error {
	q.Symbol = strings.TrimSpace(q.Symbol)
	if q.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", model.ErrValidation)
	}
	if q.Resolution == "" {
		q.Resolution = model.ResolutionDaily
	}
	if q.To.IsZero() {
		q.To = now
	}
	if q.From.After(q.To) {
		return fmt.Errorf("%w: from %s is after to %s", model.ErrValidation, q.From.Format(time.DateOnly), q.To.Format(time.DateOnly))
	}
	if q.CountBack < 0 {
		return fmt.Errorf("%w: countback must not be negative", model.ErrValidation)
	}
	return nil
}

func unixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// HistoryProvider fetches raw per-symbol series.
type HistoryProvider interface {
	FetchHistory(ctx context.Context, q HistoryQuery) (*model.RawSeries, error)
	Name() string
}

// CountBackFor returns how many base periods to request so that lookback
// candles of the given width are available.
func CountBackFor(width, lookback int) int {
	if width <= 0 || lookback <= 0 {
		return 0
	}
	return width*lookback - 1
}
