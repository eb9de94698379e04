package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"StockScreener/internal/model"
)

// MockProvider returns controllable fixed data for development and testing.
type MockProvider struct {
	// Series maps a symbol to its fixture. Symbols without a fixture get a
	// generated series of Bars periods around BasePrice.
	Series    map[string]*model.RawSeries
	Errors    map[string]error
	Latency   time.Duration
	BasePrice float64
	Bars      int

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) FetchHistory(ctx context.Context, q HistoryQuery) (*model.RawSeries, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[q.Symbol]++
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Latency):
		}
	}
	if err, ok := m.Errors[q.Symbol]; ok {
		return nil, fmt.Errorf("mock %s: %w", q.Symbol, err)
	}
	if s, ok := m.Series[q.Symbol]; ok {
		return s, nil
	}

	bars := m.Bars
	if bars <= 0 {
		bars = 200
	}
	if q.CountBack > 0 && q.CountBack < bars {
		bars = q.CountBack
	}
	base := m.BasePrice
	if base <= 0 {
		base = 100
	}
	end := q.To
	if end.IsZero() {
		end = time.Now()
	}
	return GenerateSeries(q.Symbol, base, bars, end, q.Resolution.Duration()), nil
}

// Calls reports how many times symbol was fetched.
func (m *MockProvider) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

// GenerateSeries builds a gently rising series of count periods ending at end.
func GenerateSeries(symbol string, basePrice float64, count int, end time.Time, step time.Duration) *model.RawSeries {
	s := &model.RawSeries{
		Symbol:    symbol,
		Timestamp: make([]int64, count),
		Open:      make([]float64, count),
		High:      make([]float64, count),
		Low:       make([]float64, count),
		Close:     make([]float64, count),
		Volume:    make([]float64, count),
	}
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		s.Timestamp[i] = end.Add(-time.Duration(count-i) * step).Unix()
		s.Open[i] = p * 0.999
		s.High[i] = p * 1.005
		s.Low[i] = p * 0.995
		s.Close[i] = p
		s.Volume[i] = 1000000
	}
	return s
}
