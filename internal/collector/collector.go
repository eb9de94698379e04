package collector

import (
	"context"
	"fmt"

	"StockScreener/internal/calculator"
	"StockScreener/internal/model"
)

// Snapshot is one symbol's candles and the indicators computed over them.
type Snapshot struct {
	Candles    *model.CandleSeries
	Indicators model.IndicatorSet
	// Missing lists requested indicators without enough history.
	Missing []model.IndicatorSpec
}

// Collector runs fetch, resample and indicator computation for a single symbol.
type Collector struct {
	Provider HistoryProvider
	Lookback int
}

// NewCollector creates a new Collector. lookback is the number of candles
// requested when a query carries no explicit range.
func NewCollector(provider HistoryProvider, lookback int) *Collector {
	return &Collector{Provider: provider, Lookback: lookback}
}

// Collect fetches q.Symbol, resamples to width and computes specs.
func (c *Collector) Collect(ctx context.Context, q HistoryQuery, width int, specs []model.IndicatorSpec) (*Snapshot, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: candle width must be positive", model.ErrValidation)
	}
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
	}
	if q.CountBack == 0 && q.From.IsZero() {
		q.CountBack = CountBackFor(width, c.Lookback)
	}

	raw, err := c.Provider.FetchHistory(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", q.Symbol, err)
	}
	candles, err := calculator.Resample(raw, width)
	if err != nil {
		return nil, fmt.Errorf("resample %s: %w", q.Symbol, err)
	}
	set, missing, err := calculator.ComputeAll(candles, specs)
	if err != nil {
		return nil, fmt.Errorf("indicators %s: %w", q.Symbol, err)
	}
	return &Snapshot{Candles: candles, Indicators: set, Missing: missing}, nil
}
