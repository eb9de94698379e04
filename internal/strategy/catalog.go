package strategy

import (
	"fmt"
	"sort"

	"StockScreener/internal/collector"
	"StockScreener/internal/model"
	"StockScreener/internal/scanner"
)

// Screen is a ready-to-run scan definition.
type Screen struct {
	Name       string
	Resolution model.Resolution
	Width      int
	Indicators []model.IndicatorSpec
	Predicate  scanner.Predicate
	// SortKey orders results by a result column. Empty keeps completion order.
	SortKey    string
	Descending bool
}

// Request builds a scanner request for universe. lookback is the minimum
// number of candles to fetch; it is raised to cover the slowest indicator.
func (s *Screen) Request(universe []model.UniverseEntry, lookback int) scanner.Request {
	need := lookback
	for _, spec := range s.Indicators {
		need = max(need, 2*spec.Period)
	}
	return scanner.Request{
		Universe:   universe,
		Resolution: s.Resolution,
		Width:      s.Width,
		Indicators: s.Indicators,
		Predicate:  s.Predicate,
		CountBack:  collector.CountBackFor(s.Width, need),
	}
}

// Finish ranks results the way the screen prescribes.
func (s *Screen) Finish(results []model.ScreenResult) []model.ScreenResult {
	if s.SortKey == "" {
		return results
	}
	return Rank(results, s.SortKey, s.Descending)
}

type builder func(Params) (*Screen, error)

// screens maps a screen name to its builder. Defaults follow the query
// parameters of the public API.
var screens = map[string]builder{
	"under-ema":               buildUnderEMA,
	"ema-20-50-100-under-200": buildEMAStack,
	"rsi-less-than":           buildRSI(false),
	"rsi-more-than":           buildRSI(true),
	"gap-up-gap-down":         buildGap,
}

// Names lists the available screens.
func Names() []string {
	names := make([]string, 0, len(screens))
	for name := range screens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build resolves a named screen with its parameters.
func Build(name string, params Params) (*Screen, error) {
	b, ok := screens[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown screen %q", model.ErrValidation, name)
	}
	s, err := b(params)
	if err != nil {
		return nil, fmt.Errorf("screen %s: %w", name, err)
	}
	s.Name = name
	if s.Width <= 0 {
		return nil, fmt.Errorf("%w: screen %s: candle width must be positive", model.ErrValidation, name)
	}
	for _, spec := range s.Indicators {
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("screen %s: %w", name, err)
		}
	}
	return s, nil
}

func buildUnderEMA(p Params) (*Screen, error) {
	width, err := p.Int("candle_width", 5)
	if err != nil {
		return nil, err
	}
	period, err := p.Int("ema", 20)
	if err != nil {
		return nil, err
	}
	res, err := p.Resolution("candle_unit")
	if err != nil {
		return nil, err
	}
	return &Screen{
		Resolution: res,
		Width:      width,
		Indicators: []model.IndicatorSpec{model.EMA(period)},
		Predicate:  UnderEMA(period),
	}, nil
}

func buildEMAStack(p Params) (*Screen, error) {
	width, err := p.Int("candle_width_in_days", 5)
	if err != nil {
		return nil, err
	}
	pct, err := p.Float("from_ema_200_plus_x_percent", 0)
	if err != nil {
		return nil, err
	}
	return &Screen{
		Resolution: model.ResolutionDaily,
		Width:      width,
		Indicators: []model.IndicatorSpec{model.EMA(20), model.EMA(50), model.EMA(100), model.EMA(200)},
		Predicate:  EMAStackUnder200(pct),
	}, nil
}

func buildRSI(above bool) builder {
	return func(p Params) (*Screen, error) {
		width, err := p.Int("candle_width_in_days", 5)
		if err != nil {
			return nil, err
		}
		period, err := p.Int("rsi", 9)
		if err != nil {
			return nil, err
		}
		def := 20.0
		if above {
			def = 70
		}
		threshold, err := p.Float("compare_value", def)
		if err != nil {
			return nil, err
		}
		s := &Screen{
			Resolution: model.ResolutionDaily,
			Width:      width,
			Indicators: []model.IndicatorSpec{model.RSI(period)},
			SortKey:    ColRSI,
			Descending: above,
		}
		if above {
			s.Predicate = RSIAbove(period, threshold)
		} else {
			s.Predicate = RSIBelow(period, threshold)
		}
		return s, nil
	}
}

func buildGap(p Params) (*Screen, error) {
	pct, err := p.Float("threshold_percent", 3)
	if err != nil {
		return nil, err
	}
	if pct < 0 {
		return nil, fmt.Errorf("%w: threshold_percent must not be negative", model.ErrValidation)
	}
	return &Screen{
		Resolution: model.ResolutionDaily,
		Width:      1,
		Predicate:  GapUpDown(pct),
		SortKey:    ColOpenChangePercent,
		Descending: true,
	}, nil
}
