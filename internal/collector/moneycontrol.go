package collector

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"

	"StockScreener/internal/model"
)

const moneyControlBaseURL = "https://priceapi.moneycontrol.com"

// MoneyControlProvider reads chart history from the public techCharts API.
type MoneyControlProvider struct {
	BaseURL      string
	CurrencyCode string
	http         *httpClient
	now          func() time.Time
}

// NewMoneyControlProvider creates a provider. An empty baseURL uses the public endpoint.
func NewMoneyControlProvider(baseURL string, opts ClientOptions) *MoneyControlProvider {
	if baseURL == "" {
		baseURL = moneyControlBaseURL
	}
	return &MoneyControlProvider{
		BaseURL:      baseURL,
		CurrencyCode: "INR",
		http:         newHTTPClient(opts),
		now:          time.Now,
	}
}

func (p *MoneyControlProvider) Name() string { return "moneycontrol" }

func (p *MoneyControlProvider) FetchHistory(ctx context.Context, q HistoryQuery) (*model.RawSeries, error) {
	if err := q.Validate(p.now()); err != nil {
		return nil, err
	}

	resolution := "1D"
	if q.Resolution == model.ResolutionHourly {
		resolution = "60"
	}

	resp, err := p.http.do(ctx, func(req *fasthttp.Request) {
		req.Header.SetMethod(fasthttp.MethodGet)
		req.SetRequestURI(p.BaseURL + "/techCharts/indianMarket/stock/history")
		args := req.URI().QueryArgs()
		args.Set("symbol", q.Symbol)
		args.Set("resolution", resolution)
		args.Set("from", strconv.FormatInt(unixSeconds(q.From), 10))
		args.Set("to", strconv.FormatInt(q.To.Unix(), 10))
		if q.CountBack > 0 {
			args.Set("countback", strconv.Itoa(q.CountBack))
		}
		args.Set("currencyCode", p.CurrencyCode)
	})
	if err != nil {
		return nil, fmt.Errorf("moneycontrol %s: %w", q.Symbol, err)
	}
	if resp.status != fasthttp.StatusOK {
		return nil, fmt.Errorf("%w: moneycontrol %s: status %d", model.ErrTransientUpstream, q.Symbol, resp.status)
	}
	return parseHistory(q.Symbol, resp.body)
}
