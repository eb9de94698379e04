package scanner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"StockScreener/internal/calculator"
	"StockScreener/internal/collector"
	"StockScreener/internal/logger"
	"StockScreener/internal/model"
)

// Predicate decides whether a symbol matches and shapes its result. It must
// not mutate its arguments. An absent indicator must yield false.
type Predicate func(entry model.UniverseEntry, candles *model.CandleSeries, ind model.IndicatorSet) (model.ScreenResult, bool)

// Authenticator is checked once before fan-out when every fetch depends on
// a shared credential.
type Authenticator interface {
	Acquire(ctx context.Context) (string, error)
}

// Request describes one scan.
type Request struct {
	Universe   []model.UniverseEntry
	Resolution model.Resolution
	Width      int
	Indicators []model.IndicatorSpec
	Predicate  Predicate

	// Concurrency and FetchTimeout fall back to the scanner defaults when zero.
	Concurrency  int
	FetchTimeout time.Duration

	From      time.Time
	To        time.Time
	CountBack int
}

// Options configures a Scanner.
type Options struct {
	Concurrency  int
	FetchTimeout time.Duration
	// Lookback is the number of candles requested when a request has no range.
	Lookback      int
	Authenticator Authenticator
	Observer      Observer
}

// Scanner fans a request out over its universe under a concurrency bound.
type Scanner struct {
	provider collector.HistoryProvider
	opts     Options
	log      *logrus.Entry
}

func New(provider collector.HistoryProvider, opts Options) *Scanner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 50
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.Lookback <= 0 {
		opts.Lookback = 40
	}
	return &Scanner{provider: provider, opts: opts, log: logger.Component("scanner")}
}

func (s *Scanner) withDefaults(req Request) Request {
	if req.Concurrency == 0 {
		req.Concurrency = s.opts.Concurrency
	}
	if req.FetchTimeout == 0 {
		req.FetchTimeout = s.opts.FetchTimeout
	}
	if req.Resolution == "" {
		req.Resolution = model.ResolutionDaily
	}
	if req.CountBack == 0 && req.From.IsZero() {
		req.CountBack = collector.CountBackFor(req.Width, s.opts.Lookback)
	}
	return req
}

func validate(req Request) error {
	if req.Width <= 0 {
		return fmt.Errorf("%w: candle width must be positive, got %d", model.ErrValidation, req.Width)
	}
	if req.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency must be positive, got %d", model.ErrValidation, req.Concurrency)
	}
	if req.FetchTimeout <= 0 {
		return fmt.Errorf("%w: fetch timeout must be positive", model.ErrValidation)
	}
	if req.Predicate == nil {
		return fmt.Errorf("%w: predicate is required", model.ErrValidation)
	}
	for _, spec := range req.Indicators {
		if err := spec.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Scan evaluates every universe entry and returns the matches in
// completion order. Per-unit failures are recorded in the report and never
// fail the scan; only invalid requests and an unavailable shared credential do.
func (s *Scanner) Scan(ctx context.Context, req Request) ([]model.ScreenResult, *Report, error) {
	req = s.withDefaults(req)
	if err := validate(req); err != nil {
		return nil, nil, err
	}
	if s.opts.Authenticator != nil && len(req.Universe) > 0 {
		if _, err := s.opts.Authenticator.Acquire(ctx); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", model.ErrCredential, err)
		}
	}

	report := newReport(len(req.Universe))
	log := s.log.WithField("run_id", report.RunID)
	log.WithFields(logrus.Fields{
		"universe":    len(req.Universe),
		"width":       req.Width,
		"resolution":  req.Resolution,
		"concurrency": req.Concurrency,
	}).Info("scan started")

	var (
		mu      sync.Mutex
		results []model.ScreenResult
		wg      sync.WaitGroup
	)
	sem := semaphore.NewWeighted(int64(req.Concurrency))

	for i, entry := range req.Universe {
		s.observe(entry.SymbolID, StatePending)
		if err := sem.Acquire(ctx, 1); err != nil {
			for _, rest := range req.Universe[i:] {
				s.failUnit(log, report, rest.SymbolID, StateFetchFailed, err)
			}
			break
		}
		wg.Add(1)
		go func(entry model.UniverseEntry) {
			defer wg.Done()
			defer sem.Release(1)
			if res, ok := s.runUnit(ctx, log, report, req, entry); ok {
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}(entry)
	}
	wg.Wait()

	report.Duration = time.Since(report.Started)
	log.WithFields(logrus.Fields{
		"matched":      report.Matched(),
		"failed":       report.Failed(),
		"insufficient": report.InsufficientHistory,
		"duration":     report.Duration.Round(time.Millisecond),
	}).Info("scan finished")
	return results, report, nil
}

func (s *Scanner) runUnit(ctx context.Context, log *logrus.Entry, report *Report, req Request, entry model.UniverseEntry) (res model.ScreenResult, matched bool) {
	symbol := entry.SymbolID
	stage := StateFetching
	defer func() {
		if r := recover(); r != nil {
			s.failUnit(log, report, symbol, panicState(stage), fmt.Errorf("panic while %s: %v", strings.ToLower(string(stage)), r))
			res, matched = model.ScreenResult{}, false
		}
	}()

	s.observe(symbol, StateFetching)
	fetchCtx, cancel := context.WithTimeout(ctx, req.FetchTimeout)
	defer cancel()
	raw, err := s.provider.FetchHistory(fetchCtx, collector.HistoryQuery{
		Symbol:     symbol,
		Resolution: req.Resolution,
		From:       req.From,
		To:         req.To,
		CountBack:  req.CountBack,
	})
	if err != nil {
		s.failUnit(log, report, symbol, StateFetchFailed, err)
		return res, false
	}
	s.observe(symbol, StateFetched)

	stage = StateResampling
	s.observe(symbol, StateResampling)
	candles, err := calculator.Resample(raw, req.Width)
	if err != nil {
		s.failUnit(log, report, symbol, StateResampleFailed, err)
		return res, false
	}
	s.observe(symbol, StateResampled)

	stage = StateEvaluating
	s.observe(symbol, StateEvaluating)

	set, short, err := calculator.ComputeAll(candles, req.Indicators)
	if err != nil {
		s.failUnit(log, report, symbol, StateUnmatched, err)
		return res, false
	}
	if len(short) > 0 {
		report.insufficient()
		log.WithField("symbol", symbol).Debugf("insufficient history for %v", short)
	}

	res, matched = req.Predicate(entry, candles, set)
	if !matched {
		s.finishUnit(report, symbol, StateUnmatched)
		return model.ScreenResult{}, false
	}
	if res.Entry.SymbolID == "" {
		res.Entry = entry
	}
	if res.Time.IsZero() {
		if last, ok := candles.Last(); ok {
			res.Time = last.Time
		}
	}
	s.finishUnit(report, symbol, StateMatched)
	return res, true
}

// panicState maps the stage a unit panicked in to its terminal state.
func panicState(stage UnitState) UnitState {
	switch stage {
	case StateFetching:
		return StateFetchFailed
	case StateResampling:
		return StateResampleFailed
	default:
		return StateUnmatched
	}
}

func (s *Scanner) finishUnit(report *Report, symbol string, state UnitState) {
	report.finish(state)
	s.observe(symbol, state)
}

func (s *Scanner) failUnit(log *logrus.Entry, report *Report, symbol string, state UnitState, err error) {
	report.fail(symbol, state, err)
	log.WithFields(logrus.Fields{
		"symbol": symbol,
		"state":  state,
		"kind":   model.Classify(err),
	}).WithError(err).Warn("unit failed")
	s.observe(symbol, state)
}

func (s *Scanner) observe(symbol string, state UnitState) {
	if s.opts.Observer != nil {
		s.opts.Observer(symbol, state)
	}
}
