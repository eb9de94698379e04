package model

import "time"

// UniverseEntry describes one screenable equity.
type UniverseEntry struct {
	SymbolID    string  `json:"symbolId"`
	DisplayName string  `json:"displayName"`
	MarketCap   float64 `json:"marketCap"`
	Exchange    string  `json:"exchange"`
}

// ScreenResult is the record a predicate emits for a matching symbol.
// Values holds the numbers the predicate chose to expose, keyed by column name.
type ScreenResult struct {
	Entry  UniverseEntry
	Time   time.Time
	Values map[string]float64
}

// Value returns the named column, or 0 if the predicate did not emit it.
func (r ScreenResult) Value(key string) float64 {
	return r.Values[key]
}
