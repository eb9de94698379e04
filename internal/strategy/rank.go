package strategy

import (
	"sort"

	"StockScreener/internal/model"
)

// Rank returns results sorted by the named column. Ties break on symbol.
func Rank(results []model.ScreenResult, key string, descending bool) []model.ScreenResult {
	out := make([]model.ScreenResult, len(results))
	copy(out, results)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Value(key), out[j].Value(key)
		if a != b {
			if descending {
				return a > b
			}
			return a < b
		}
		return out[i].Entry.SymbolID < out[j].Entry.SymbolID
	})
	return out
}
