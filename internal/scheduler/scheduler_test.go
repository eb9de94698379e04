package scheduler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"StockScreener/internal/collector"
	"StockScreener/internal/config"
	"StockScreener/internal/model"
	"StockScreener/internal/scanner"
	"StockScreener/internal/universe"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) SendWithRetry(_ context.Context, text string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func gapSeries(symbol string, lastOpen float64) *model.RawSeries {
	day := int64(86400)
	return &model.RawSeries{
		Symbol:    symbol,
		Timestamp: []int64{day, 2 * day, 3 * day},
		Open:      []float64{100, 100, lastOpen},
		High:      []float64{101, 101, lastOpen + 1},
		Low:       []float64{99, 99, lastOpen - 1},
		Close:     []float64{100, 100, lastOpen},
		Volume:    []float64{1, 1, 1},
	}
}

func newTestScheduler(t *testing.T, provider *collector.MockProvider) (*Scheduler, *fakeSender) {
	t.Helper()
	uni := &universe.StaticProvider{Entries: []model.UniverseEntry{
		{SymbolID: "GAPPY", MarketCap: 900},
		{SymbolID: "FLAT", MarketCap: 800},
		{SymbolID: "TINY", MarketCap: 10},
	}}
	sc := scanner.New(provider, scanner.Options{Concurrency: 2, FetchTimeout: time.Second})
	sender := &fakeSender{}
	s := NewScheduler(context.Background(), sc, uni, sender, NewTradingCalendar("zzzz"), 40)
	err := s.RegisterAll([]config.Job{{
		Name:   "gaps",
		Cron:   "0 30 9 * * 1-5",
		Screen: "gap-up-gap-down",
		Cap:    100,
		Params: map[string]string{"threshold_percent": "5"},
	}})
	if err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	return s, sender
}

func TestRunJobNow_SendsReport(t *testing.T) {
	provider := &collector.MockProvider{Series: map[string]*model.RawSeries{
		"GAPPY": gapSeries("GAPPY", 110),
		"FLAT":  gapSeries("FLAT", 101),
		"TINY":  gapSeries("TINY", 150),
	}}
	s, sender := newTestScheduler(t, provider)

	if err := s.RunJobNow("gaps"); err != nil {
		t.Fatalf("RunJobNow: %v", err)
	}
	msgs := sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages, want 1: %v", len(msgs), msgs)
	}
	if !strings.Contains(msgs[0], "GAPPY") || strings.Contains(msgs[0], "FLAT") {
		t.Errorf("report = %q", msgs[0])
	}
	if provider.Calls("TINY") != 0 {
		t.Error("entry below the cap was scanned")
	}
}

func TestRunJobNow_ReportsFailures(t *testing.T) {
	provider := &collector.MockProvider{
		Series: map[string]*model.RawSeries{"GAPPY": gapSeries("GAPPY", 110)},
		Errors: map[string]error{"FLAT": model.ErrTransientUpstream},
	}
	s, sender := newTestScheduler(t, provider)

	if err := s.RunJobNow("gaps"); err != nil {
		t.Fatalf("RunJobNow: %v", err)
	}
	msgs := sender.messages()
	if len(msgs) != 2 || !strings.Contains(msgs[1], "upstream: FLAT") {
		t.Errorf("messages = %v", msgs)
	}
}

func TestRunJobNow_UnknownJob(t *testing.T) {
	s, _ := newTestScheduler(t, &collector.MockProvider{})
	if err := s.RunJobNow("nope"); err == nil {
		t.Error("expected error for unknown job")
	}
}

func TestScheduled_SkipsClosedMarket(t *testing.T) {
	provider := &collector.MockProvider{}
	s, sender := newTestScheduler(t, provider)
	s.Now = func() time.Time { return time.Date(2025, 1, 4, 10, 0, 0, 0, time.UTC) } // Saturday

	s.scheduled(config.Job{Name: "gaps", Screen: "gap-up-gap-down", Cap: 100})
	if len(sender.messages()) != 0 || provider.Calls("GAPPY") != 0 {
		t.Error("job ran on a non-trading day")
	}
}

func TestRegisterAll_RejectsBadJobs(t *testing.T) {
	s := NewScheduler(context.Background(), nil, nil, nil, nil, 40)
	if err := s.RegisterAll([]config.Job{{Name: "x", Cron: "0 0 9 * * *", Screen: "bogus"}}); err == nil {
		t.Error("unknown screen accepted")
	}
	if err := s.RegisterAll([]config.Job{{Name: "x", Cron: "not a cron", Screen: "under-ema"}}); err == nil {
		t.Error("bad cron accepted")
	}
}

func TestHandleCommand(t *testing.T) {
	s, _ := newTestScheduler(t, &collector.MockProvider{})

	if got := s.HandleCommand("/jobs"); !strings.Contains(got, "gaps") {
		t.Errorf("/jobs = %q", got)
	}
	if got := s.HandleCommand("/screens"); !strings.Contains(got, "rsi-less-than") {
		t.Errorf("/screens = %q", got)
	}
	if got := s.HandleCommand("/scan"); !strings.HasPrefix(got, "Usage") {
		t.Errorf("/scan = %q", got)
	}
	if got := s.HandleCommand("hello"); !strings.Contains(got, "/scan <job>") {
		t.Errorf("help = %q", got)
	}
	if got := s.HandleCommand("   "); got != "" {
		t.Errorf("blank = %q", got)
	}
}

func TestTradingCalendar_WeekdayFallback(t *testing.T) {
	cal := NewTradingCalendar("zzzz")
	monday := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	sunday := time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)
	if !cal.IsTradingDay(monday) || cal.IsTradingDay(sunday) {
		t.Error("fallback calendar should follow weekdays")
	}

	var none *TradingCalendar
	if !none.IsTradingDay(sunday) {
		t.Error("nil calendar should never gate")
	}
}
