package calculator

import (
	"fmt"

	"StockScreener/internal/model"
)

// RSI computes the Wilder-smoothed relative strength index over closes.
// The first value, at index period, averages the first period changes;
// later values use avg = (prev*(period-1) + cur) / period.
// The result is 100 whenever the smoothed loss is zero.
func RSI(closes []float64, period int) (*model.IndicatorSeries, error) {
	spec := model.RSI(period)
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if len(closes) <= period {
		return nil, fmt.Errorf("%w: %s needs %d candles, have %d", model.ErrInsufficientHistory, spec, period+1, len(closes))
	}

	values := undefined(len(closes))

	// Initial average gain/loss over the first `period` changes
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := split(closes[i] - closes[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	values[period] = relativeStrength(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		gain, loss := split(closes[i] - closes[i-1])
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		values[i] = relativeStrength(avgGain, avgLoss)
	}
	return &model.IndicatorSeries{Spec: spec, Values: values, Start: period}, nil
}

func split(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

func relativeStrength(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
