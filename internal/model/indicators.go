package model

import (
	"fmt"
	"math"
)

// IndicatorKind names a supported indicator family.
type IndicatorKind string

const (
	IndicatorEMA IndicatorKind = "EMA"
	IndicatorRSI IndicatorKind = "RSI"
	IndicatorSMA IndicatorKind = "SMA"
)

// IndicatorSpec identifies one computed indicator. It is comparable and
// used directly as a map key.
type IndicatorSpec struct {
	Kind   IndicatorKind
	Period int
}

func EMA(period int) IndicatorSpec { return IndicatorSpec{Kind: IndicatorEMA, Period: period} }
func RSI(period int) IndicatorSpec { return IndicatorSpec{Kind: IndicatorRSI, Period: period} }
func SMA(period int) IndicatorSpec { return IndicatorSpec{Kind: IndicatorSMA, Period: period} }

func (s IndicatorSpec) String() string {
	return fmt.Sprintf("%s%d", s.Kind, s.Period)
}

// Validate rejects unknown kinds and non-positive periods.
func (s IndicatorSpec) Validate() error {
	switch s.Kind {
	case IndicatorEMA, IndicatorRSI, IndicatorSMA:
	default:
		return fmt.Errorf("%w: unknown indicator kind %q", ErrValidation, s.Kind)
	}
	if s.Period <= 0 {
		return fmt.Errorf("%w: %s period must be positive", ErrValidation, s.Kind)
	}
	return nil
}

// IndicatorSeries is aligned by index with the CandleSeries it was computed
// from. Values before Start are NaN and must not be read as data.
type IndicatorSeries struct {
	Spec   IndicatorSpec
	Values []float64
	Start  int
}

// At returns the value at index i and whether it is defined.
func (s *IndicatorSeries) At(i int) (float64, bool) {
	if s == nil || i < s.Start || i >= len(s.Values) {
		return 0, false
	}
	v := s.Values[i]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Last returns the most recent defined value.
func (s *IndicatorSeries) Last() (float64, bool) {
	if s == nil {
		return 0, false
	}
	return s.At(len(s.Values) - 1)
}

// IndicatorSet maps each requested spec to its series. A spec with
// insufficient history is simply absent.
type IndicatorSet map[IndicatorSpec]*IndicatorSeries

func (s IndicatorSet) Get(spec IndicatorSpec) (*IndicatorSeries, bool) {
	series, ok := s[spec]
	return series, ok && series != nil
}

// Last returns the latest defined value of spec, or false when absent.
func (s IndicatorSet) Last(spec IndicatorSpec) (float64, bool) {
	series, ok := s.Get(spec)
	if !ok {
		return 0, false
	}
	return series.Last()
}
