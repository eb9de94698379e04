package calculator

import (
	"errors"
	"fmt"
	"math"

	"StockScreener/internal/model"
)

// SMA computes the simple moving average over closes. values[i] is the mean
// of closes[i-period+1 : i+1], defined from period-1 onwards.
func SMA(closes []float64, period int) (*model.IndicatorSeries, error) {
	spec := model.SMA(period)
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if len(closes) < period {
		return nil, fmt.Errorf("%w: %s needs %d candles, have %d", model.ErrInsufficientHistory, spec, period, len(closes))
	}

	values := undefined(len(closes))
	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			values[i] = sum / float64(period)
		}
	}
	return &model.IndicatorSeries{Spec: spec, Values: values, Start: period - 1}, nil
}

// EMA computes the exponential moving average over closes. The value at
// period-1 is seeded with the mean of the first period closes and every
// later value follows ema[i] = (c[i]-ema[i-1])*k + ema[i-1], k = 2/(period+1).
func EMA(closes []float64, period int) (*model.IndicatorSeries, error) {
	spec := model.EMA(period)
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if len(closes) < period {
		return nil, fmt.Errorf("%w: %s needs %d candles, have %d", model.ErrInsufficientHistory, spec, period, len(closes))
	}

	values := undefined(len(closes))
	values[period-1] = mean(closes[:period])
	k := 2.0 / float64(period+1)
	for i := period; i < len(closes); i++ {
		values[i] = (closes[i]-values[i-1])*k + values[i-1]
	}
	return &model.IndicatorSeries{Spec: spec, Values: values, Start: period - 1}, nil
}

// Compute dispatches spec to the matching indicator.
func Compute(spec model.IndicatorSpec, closes []float64) (*model.IndicatorSeries, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	switch spec.Kind {
	case model.IndicatorRSI:
		return RSI(closes, spec.Period)
	case model.IndicatorSMA:
		return SMA(closes, spec.Period)
	default:
		return EMA(closes, spec.Period)
	}
}

// ComputeAll evaluates every spec against candles. Specs without enough
// history are left out of the set; any other error is returned.
func ComputeAll(candles *model.CandleSeries, specs []model.IndicatorSpec) (model.IndicatorSet, []model.IndicatorSpec, error) {
	set := make(model.IndicatorSet, len(specs))
	var short []model.IndicatorSpec
	for _, spec := range specs {
		series, err := Compute(spec, candles.Close)
		if err != nil {
			if errors.Is(err, model.ErrInsufficientHistory) {
				short = append(short, spec)
				continue
			}
			return nil, nil, err
		}
		set[spec] = series
	}
	return set, short, nil
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func undefined(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = math.NaN()
	}
	return values
}
