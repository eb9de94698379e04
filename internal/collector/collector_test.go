package collector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"StockScreener/internal/model"
)

const okPayload = `{"s":"ok","t":[1,2,3,4],"o":[10,11,12,13],"h":[11,12,13,14],"l":[9,10,11,12],"c":[10.5,11.5,12.5,13.5],"v":[100,200,300,400]}`

func testOptions() ClientOptions {
	return ClientOptions{Timeout: 2 * time.Second}
}

func TestMoneyControl_FetchHistory(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/techCharts/indianMarket/stock/history" {
			http.NotFound(w, r)
			return
		}
		gotQuery.Store(r.URL.Query())
		io.WriteString(w, okPayload)
	}))
	defer srv.Close()

	p := NewMoneyControlProvider(srv.URL, testOptions())
	series, err := p.FetchHistory(context.Background(), HistoryQuery{
		Symbol:     "INFY",
		Resolution: model.ResolutionHourly,
		From:       time.Unix(0, 0),
		To:         time.Unix(1_700_000_000, 0),
		CountBack:  199,
	})
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if series.Len() != 4 || series.Close[3] != 13.5 || series.Volume[1] != 200 || series.Symbol != "INFY" {
		t.Errorf("unexpected series: %+v", series)
	}

	q := gotQuery.Load().(url.Values)
	want := map[string]string{
		"symbol":       "INFY",
		"resolution":   "60",
		"from":         "0",
		"to":           "1700000000",
		"countback":    "199",
		"currencyCode": "INR",
	}
	for k, v := range want {
		if len(q[k]) == 0 || q[k][0] != v {
			t.Errorf("query %s = %v, want %s", k, q[k], v)
		}
	}
}

func TestMoneyControl_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"no data", http.StatusOK, `{"s":"no_data"}`},
		{"server error", http.StatusInternalServerError, `oops`},
		{"not json", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			p := NewMoneyControlProvider(srv.URL, testOptions())
			_, err := p.FetchHistory(context.Background(), HistoryQuery{Symbol: "TCS"})
			if !errors.Is(err, model.ErrTransientUpstream) {
				t.Errorf("err = %v, want ErrTransientUpstream", err)
			}
		})
	}
}

func TestMoneyControl_MissingColumnIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"s":"ok","t":[1,2],"o":[1,2],"h":[1,2],"l":[1,2],"c":[1,2]}`)
	}))
	defer srv.Close()

	p := NewMoneyControlProvider(srv.URL, testOptions())
	series, err := p.FetchHistory(context.Background(), HistoryQuery{Symbol: "TCS"})
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if series.Volume != nil {
		t.Errorf("volume = %v, want nil", series.Volume)
	}
}

func TestMoneyControl_RespectsContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		io.WriteString(w, okPayload)
	}))
	defer srv.Close()

	p := NewMoneyControlProvider(srv.URL, testOptions())
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.FetchHistory(ctx, HistoryQuery{Symbol: "SLOW"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("fetch took %v, should stop at the deadline", elapsed)
	}
}

func TestHistoryQuery_Validate(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	q := HistoryQuery{Symbol: "  SBIN "}
	if err := q.Validate(now); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if q.Symbol != "SBIN" || q.Resolution != model.ResolutionDaily || !q.To.Equal(now) {
		t.Errorf("defaults not applied: %+v", q)
	}

	bad := []HistoryQuery{
		{},
		{Symbol: "X", From: now.Add(time.Hour), To: now},
		{Symbol: "X", CountBack: -1},
	}
	for i, q := range bad {
		if err := q.Validate(now); !errors.Is(err, model.ErrValidation) {
			t.Errorf("case %d: err = %v, want ErrValidation", i, err)
		}
	}
}

type fakeSession struct {
	token    string
	err      error
	failures atomic.Int32
	rejected atomic.Value
}

func (s *fakeSession) Acquire(context.Context) (string, error) { return s.token, s.err }
func (s *fakeSession) ReportFailure(rejected string) {
	s.failures.Add(1)
	s.rejected.Store(rejected)
}

func TestNSE_FetchHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Cookie") != "nsit=abc; nseappid=xyz" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req nseChartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TradingSymbol != "RELIANCE-EQ" || req.ChartPeriod != "D" || req.Exchange != "N" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		io.WriteString(w, okPayload)
	}))
	defer srv.Close()

	sess := &fakeSession{token: "nsit=abc; nseappid=xyz"}
	p := NewNSEProvider(srv.URL, sess, testOptions())
	series, err := p.FetchHistory(context.Background(), HistoryQuery{Symbol: "RELIANCE", CountBack: 2})
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if series.Len() != 2 || series.Timestamp[0] != 3 || series.Close[1] != 13.5 {
		t.Errorf("countback not applied: %+v", series)
	}
}

func TestNSE_RejectedSessionIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	sess := &fakeSession{token: "stale"}
	p := NewNSEProvider(srv.URL, sess, testOptions())
	_, err := p.FetchHistory(context.Background(), HistoryQuery{Symbol: "RELIANCE"})
	if !errors.Is(err, model.ErrTransientUpstream) {
		t.Errorf("err = %v, want ErrTransientUpstream", err)
	}
	if sess.failures.Load() != 1 {
		t.Errorf("reported failures = %d, want 1", sess.failures.Load())
	}
	if got, _ := sess.rejected.Load().(string); got != "stale" {
		t.Errorf("rejected cookie = %q, want the one sent", got)
	}
}

func TestNSE_SessionErrorPropagates(t *testing.T) {
	sess := &fakeSession{err: model.ErrCredential}
	p := NewNSEProvider("http://127.0.0.1:1", sess, testOptions())
	_, err := p.FetchHistory(context.Background(), HistoryQuery{Symbol: "RELIANCE"})
	if !errors.Is(err, model.ErrCredential) {
		t.Errorf("err = %v, want ErrCredential", err)
	}
}

func TestNSECookieProvider_JoinsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "nsit", Value: "abc", Path: "/", HttpOnly: true})
		http.SetCookie(w, &http.Cookie{Name: "nseappid", Value: "xyz", Path: "/"})
		io.WriteString(w, "<html></html>")
	}))
	defer srv.Close()

	p := NewNSECookieProvider(srv.URL, testOptions())
	got, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got != "nsit=abc; nseappid=xyz" {
		t.Errorf("cookie = %q", got)
	}
}

func TestNSECookieProvider_NoCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html></html>")
	}))
	defer srv.Close()

	p := NewNSECookieProvider(srv.URL, testOptions())
	if _, err := p.Acquire(context.Background()); !errors.Is(err, model.ErrTransientUpstream) {
		t.Errorf("err = %v, want ErrTransientUpstream", err)
	}
}

func TestCollector_Collect(t *testing.T) {
	mock := &MockProvider{BasePrice: 250, Bars: 120}
	c := NewCollector(mock, 40)

	snap, err := c.Collect(context.Background(), HistoryQuery{Symbol: "HDFCBANK"}, 5, []model.IndicatorSpec{model.EMA(20), model.EMA(200)})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	// countback 5*40-1 = 199 exceeds the 120 generated bars
	if snap.Candles.Len() != 24 {
		t.Errorf("candles = %d, want 24", snap.Candles.Len())
	}
	if _, ok := snap.Indicators.Last(model.EMA(20)); !ok {
		t.Error("EMA20 should be present")
	}
	if len(snap.Missing) != 1 || snap.Missing[0] != model.EMA(200) {
		t.Errorf("missing = %v, want [EMA200]", snap.Missing)
	}
	if mock.Calls("HDFCBANK") != 1 {
		t.Errorf("calls = %d, want 1", mock.Calls("HDFCBANK"))
	}
}

func TestCollector_DataIntegrity(t *testing.T) {
	broken := GenerateSeries("BROKEN", 100, 10, time.Now(), time.Hour)
	broken.High = nil
	c := NewCollector(&MockProvider{Series: map[string]*model.RawSeries{"BROKEN": broken}}, 40)

	_, err := c.Collect(context.Background(), HistoryQuery{Symbol: "BROKEN"}, 2, nil)
	if !errors.Is(err, model.ErrDataIntegrity) {
		t.Errorf("err = %v, want ErrDataIntegrity", err)
	}
}

func TestCountBackFor(t *testing.T) {
	if got := CountBackFor(5, 40); got != 199 {
		t.Errorf("CountBackFor(5, 40) = %d, want 199", got)
	}
	if got := CountBackFor(0, 40); got != 0 {
		t.Errorf("CountBackFor(0, 40) = %d, want 0", got)
	}
}
