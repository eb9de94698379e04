package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"StockScreener/internal/model"
)

const (
	nseChartURL   = "https://charting.nseindia.com/Charts/ChartData"
	nseLandingURL = "https://www.nseindia.com/get-quotes/derivatives"
)

// Session supplies the cookie for authenticated NSE endpoints.
type Session interface {
	Acquire(ctx context.Context) (string, error)
	// ReportFailure marks the cookie a rejected request was sent with.
	ReportFailure(rejected string)
}

// NSEProvider reads equity chart data from the NSE charting service.
type NSEProvider struct {
	ChartURL string
	Series   string
	session  Session
	http     *httpClient
	now      func() time.Time
}

// NewNSEProvider creates a provider that authenticates through session.
func NewNSEProvider(chartURL string, session Session, opts ClientOptions) *NSEProvider {
	if chartURL == "" {
		chartURL = nseChartURL
	}
	return &NSEProvider{
		ChartURL: chartURL,
		Series:   "EQ",
		session:  session,
		http:     newHTTPClient(opts),
		now:      time.Now,
	}
}

func (p *NSEProvider) Name() string { return "nse" }

type nseChartRequest struct {
	TradingSymbol string `json:"tradingSymbol"`
	Exchange      string `json:"exch"`
	FromDate      int64  `json:"fromDate"`
	ToDate        int64  `json:"toDate"`
	TimeInterval  int    `json:"timeInterval"`
	ChartPeriod   string `json:"chartPeriod"`
	ChartStart    int    `json:"chartStart"`
}

func (p *NSEProvider) FetchHistory(ctx context.Context, q HistoryQuery) (*model.RawSeries, error) {
	if err := q.Validate(p.now()); err != nil {
		return nil, err
	}

	cookie, err := p.session.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("nse %s: %w", q.Symbol, err)
	}

	payload := nseChartRequest{
		TradingSymbol: q.Symbol + "-" + p.Series,
		Exchange:      "N",
		FromDate:      unixSeconds(q.From),
		ToDate:        q.To.Unix(),
		TimeInterval:  1,
		ChartPeriod:   "D",
	}
	if q.Resolution == model.ResolutionHourly {
		payload.TimeInterval = 60
		payload.ChartPeriod = "I"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal nse payload: %w", err)
	}

	resp, err := p.http.do(ctx, func(req *fasthttp.Request) {
		req.Header.SetMethod(fasthttp.MethodPost)
		req.SetRequestURI(p.ChartURL)
		req.Header.SetContentType("application/json")
		req.Header.Set("Cookie", cookie)
		req.SetBody(body)
	})
	if err != nil {
		return nil, fmt.Errorf("nse %s: %w", q.Symbol, err)
	}
	switch resp.status {
	case fasthttp.StatusOK:
	case fasthttp.StatusUnauthorized, fasthttp.StatusForbidden:
		p.session.ReportFailure(cookie)
		return nil, fmt.Errorf("%w: nse %s: session rejected with status %d", model.ErrTransientUpstream, q.Symbol, resp.status)
	default:
		return nil, fmt.Errorf("%w: nse %s: status %d", model.ErrTransientUpstream, q.Symbol, resp.status)
	}

	series, err := parseHistory(q.Symbol, resp.body)
	if err != nil {
		return nil, err
	}
	return trimCountBack(series, q.CountBack), nil
}

// trimCountBack keeps the most recent n periods. The NSE endpoint has no
// countback parameter.
func trimCountBack(s *model.RawSeries, n int) *model.RawSeries {
	if n <= 0 || s.Len() <= n {
		return s
	}
	from := s.Len() - n
	cut := func(col []float64) []float64 {
		if len(col) < s.Len() {
			return col
		}
		return col[from:]
	}
	return &model.RawSeries{
		Symbol:    s.Symbol,
		Timestamp: s.Timestamp[from:],
		Open:      cut(s.Open),
		High:      cut(s.High),
		Low:       cut(s.Low),
		Close:     cut(s.Close),
		Volume:    cut(s.Volume),
	}
}

// NSECookieProvider obtains a session cookie by loading the NSE quote page
// and joining every Set-Cookie it returns.
type NSECookieProvider struct {
	LandingURL string
	http       *httpClient
}

func NewNSECookieProvider(landingURL string, opts ClientOptions) *NSECookieProvider {
	if landingURL == "" {
		landingURL = nseLandingURL
	}
	return &NSECookieProvider{LandingURL: landingURL, http: newHTTPClient(opts)}
}

func (p *NSECookieProvider) Acquire(ctx context.Context) (string, error) {
	resp, err := p.http.do(ctx, func(req *fasthttp.Request) {
		req.Header.SetMethod(fasthttp.MethodGet)
		req.SetRequestURI(p.LandingURL)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-GB,en;q=0.6")
		req.Header.Set("Sec-Fetch-Dest", "document")
		req.Header.Set("Sec-Fetch-Mode", "navigate")
		req.Header.Set("Sec-Fetch-Site", "none")
		req.Header.Set("Upgrade-Insecure-Requests", "1")
	})
	if err != nil {
		return "", fmt.Errorf("fetch nse cookie: %w", err)
	}
	if resp.status != fasthttp.StatusOK {
		return "", fmt.Errorf("%w: fetch nse cookie: status %d", model.ErrTransientUpstream, resp.status)
	}
	if len(resp.cookies) == 0 {
		return "", fmt.Errorf("%w: fetch nse cookie: no cookies set", model.ErrTransientUpstream)
	}
	return strings.Join(resp.cookies, "; "), nil
}
