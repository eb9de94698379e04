package universe

import (
	"context"
	"fmt"
	"sort"

	"StockScreener/internal/model"
)

// Provider enumerates the screenable universe.
type Provider interface {
	// List returns entries whose market cap exceeds minMarketCap, largest first.
	List(ctx context.Context, minMarketCap float64) ([]model.UniverseEntry, error)
}

// StaticProvider serves a fixed in-memory universe.
type StaticProvider struct {
	Entries []model.UniverseEntry
}

func (p *StaticProvider) List(_ context.Context, minMarketCap float64) ([]model.UniverseEntry, error) {
	if err := checkCap(minMarketCap); err != nil {
		return nil, err
	}
	return filterAndSort(p.Entries, minMarketCap), nil
}

func checkCap(minMarketCap float64) error {
	if minMarketCap < 0 {
		return fmt.Errorf("%w: market cap must not be negative", model.ErrValidation)
	}
	return nil
}

func filterAndSort(entries []model.UniverseEntry, minMarketCap float64) []model.UniverseEntry {
	out := make([]model.UniverseEntry, 0, len(entries))
	for _, e := range entries {
		if e.MarketCap > minMarketCap {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MarketCap != out[j].MarketCap {
			return out[i].MarketCap > out[j].MarketCap
		}
		return out[i].SymbolID < out[j].SymbolID
	})
	return out
}
