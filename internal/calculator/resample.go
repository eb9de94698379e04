package calculator

import (
	"fmt"

	"StockScreener/internal/model"
)

// Resample aggregates a uniform-period series into candles of width base
// periods. Windows are left-aligned from index 0 and a trailing partial
// window is kept, so the result has ceil(N/width) candles.
func Resample(series *model.RawSeries, width int) (*model.CandleSeries, error) {
	if width <= 0 {
		return nil, fmt.Errorf("%w: candle width must be positive, got %d", model.ErrValidation, width)
	}
	if err := checkColumns(series); err != nil {
		return nil, err
	}

	n := series.Len()
	size := (n + width - 1) / width
	out := &model.CandleSeries{
		Symbol:    series.Symbol,
		Width:     width,
		Timestamp: make([]int64, 0, size),
		Open:      make([]float64, 0, size),
		High:      make([]float64, 0, size),
		Low:       make([]float64, 0, size),
		Close:     make([]float64, 0, size),
		Volume:    make([]float64, 0, size),
	}

	for start := 0; start < n; start += width {
		end := min(start+width, n)
		high, low, vol := series.High[start], series.Low[start], 0.0
		for i := start; i < end; i++ {
			high = max(high, series.High[i])
			low = min(low, series.Low[i])
			vol += series.Volume[i]
		}
		out.Timestamp = append(out.Timestamp, series.Timestamp[start])
		out.Open = append(out.Open, series.Open[start])
		out.High = append(out.High, high)
		out.Low = append(out.Low, low)
		out.Close = append(out.Close, series.Close[end-1])
		out.Volume = append(out.Volume, vol)
	}
	return out, nil
}

func checkColumns(s *model.RawSeries) error {
	if s == nil {
		return fmt.Errorf("%w: nil series", model.ErrDataIntegrity)
	}
	cols := []struct {
		name    string
		n       int
		missing bool
	}{
		{"o", len(s.Open), s.Open == nil},
		{"h", len(s.High), s.High == nil},
		{"l", len(s.Low), s.Low == nil},
		{"c", len(s.Close), s.Close == nil},
		{"v", len(s.Volume), s.Volume == nil},
	}
	if s.Timestamp == nil {
		return fmt.Errorf("%w: %s: missing t", model.ErrDataIntegrity, s.Symbol)
	}
	n := len(s.Timestamp)
	for _, c := range cols {
		if c.missing {
			return fmt.Errorf("%w: %s: missing %s", model.ErrDataIntegrity, s.Symbol, c.name)
		}
		if c.n != n {
			return fmt.Errorf("%w: %s: %s has %d values, t has %d", model.ErrDataIntegrity, s.Symbol, c.name, c.n, n)
		}
	}
	for i := 1; i < n; i++ {
		if s.Timestamp[i] <= s.Timestamp[i-1] {
			return fmt.Errorf("%w: %s: timestamps not increasing at index %d", model.ErrDataIntegrity, s.Symbol, i)
		}
	}
	return nil
}
