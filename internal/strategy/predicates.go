package strategy

import (
	"math"

	"StockScreener/internal/model"
	"StockScreener/internal/scanner"
)

// Result columns emitted by the predicates.
const (
	ColHigh              = "high"
	ColClose             = "close"
	ColOpen              = "open"
	ColPrevClose         = "prevClose"
	ColOpenChangePercent = "openChangePercent"
	ColRSI               = "rsi"
)

// UnderEMA matches when the latest candle high is below the latest EMA.
func UnderEMA(period int) scanner.Predicate {
	spec := model.EMA(period)
	return func(_ model.UniverseEntry, candles *model.CandleSeries, ind model.IndicatorSet) (model.ScreenResult, bool) {
		last, ok := candles.Last()
		if !ok {
			return model.ScreenResult{}, false
		}
		ema, ok := ind.Last(spec)
		if !ok || last.High >= ema {
			return model.ScreenResult{}, false
		}
		return model.ScreenResult{Values: map[string]float64{
			ColHigh:       last.High,
			spec.String(): ema,
		}}, true
	}
}

// EMAStackUnder200 matches when EMA20, EMA50 and EMA100 all sit below
// EMA200 raised by pct percent.
func EMAStackUnder200(pct float64) scanner.Predicate {
	ceilingSpec := model.EMA(200)
	fast := []model.IndicatorSpec{model.EMA(20), model.EMA(50), model.EMA(100)}
	return func(_ model.UniverseEntry, candles *model.CandleSeries, ind model.IndicatorSet) (model.ScreenResult, bool) {
		ema200, ok := ind.Last(ceilingSpec)
		if !ok {
			return model.ScreenResult{}, false
		}
		limit := ema200 * (1 + pct/100)
		values := map[string]float64{ceilingSpec.String(): ema200}
		for _, spec := range fast {
			v, ok := ind.Last(spec)
			if !ok || v >= limit {
				return model.ScreenResult{}, false
			}
			values[spec.String()] = v
		}
		if last, ok := candles.Last(); ok {
			values[ColClose] = last.Close
		}
		return model.ScreenResult{Values: values}, true
	}
}

// RSIBelow matches when the latest RSI is strictly below threshold.
func RSIBelow(period int, threshold float64) scanner.Predicate {
	return rsiCompare(period, func(rsi float64) bool { return rsi < threshold })
}

// RSIAbove matches when the latest RSI is strictly above threshold.
func RSIAbove(period int, threshold float64) scanner.Predicate {
	return rsiCompare(period, func(rsi float64) bool { return rsi > threshold })
}

func rsiCompare(period int, match func(float64) bool) scanner.Predicate {
	spec := model.RSI(period)
	return func(_ model.UniverseEntry, candles *model.CandleSeries, ind model.IndicatorSet) (model.ScreenResult, bool) {
		rsi, ok := ind.Last(spec)
		if !ok || !match(rsi) {
			return model.ScreenResult{}, false
		}
		values := map[string]float64{ColRSI: rsi}
		if last, ok := candles.Last(); ok {
			values[ColClose] = last.Close
		}
		return model.ScreenResult{Values: values}, true
	}
}

// GapUpDown matches when the latest open moved at least pct percent away
// from the previous close, in either direction.
func GapUpDown(pct float64) scanner.Predicate {
	return func(_ model.UniverseEntry, candles *model.CandleSeries, _ model.IndicatorSet) (model.ScreenResult, bool) {
		n := candles.Len()
		if n < 2 {
			return model.ScreenResult{}, false
		}
		prevClose, open := candles.Close[n-2], candles.Open[n-1]
		if prevClose == 0 {
			return model.ScreenResult{}, false
		}
		change := (open - prevClose) / prevClose * 100
		if math.Abs(change) < pct {
			return model.ScreenResult{}, false
		}
		return model.ScreenResult{Values: map[string]float64{
			ColPrevClose:         prevClose,
			ColOpen:              open,
			ColOpenChangePercent: change,
		}}, true
	}
}
