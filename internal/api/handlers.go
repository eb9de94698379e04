package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"StockScreener/internal/collector"
	"StockScreener/internal/model"
	"StockScreener/internal/strategy"
)

func (s *Server) largeCaps(c *gin.Context) {
	minCap, err := capParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	entries, err := s.Universe.List(c.Request.Context(), minCap)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// screen serves a catalog screen; every query parameter except cap is
// passed to the screen builder.
func (s *Server) screen(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		minCap, err := capParam(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		params := strategy.Params{}
		for key, values := range c.Request.URL.Query() {
			if key != "cap" && len(values) > 0 {
				params[key] = values[0]
			}
		}
		sc, err := strategy.Build(name, params)
		if err != nil {
			s.fail(c, err)
			return
		}
		entries, err := s.Universe.List(c.Request.Context(), minCap)
		if err != nil {
			s.fail(c, err)
			return
		}

		results, report, err := s.Scanner.Scan(c.Request.Context(), sc.Request(entries, s.Lookback))
		if err != nil {
			s.fail(c, err)
			return
		}
		results = sc.Finish(results)

		c.Header("X-Run-Id", report.RunID)
		c.Header("X-Scan-Failed", strconv.Itoa(report.Failed()))
		c.JSON(http.StatusOK, rows(results))
	}
}

// rows flattens results into serial-numbered JSON objects.
func rows(results []model.ScreenResult) []gin.H {
	out := make([]gin.H, 0, len(results))
	for i, r := range results {
		row := gin.H{
			"no.":       i + 1,
			"symbolId":  r.Entry.SymbolID,
			"name":      r.Entry.DisplayName,
			"marketCap": r.Entry.MarketCap,
			"exchange":  r.Entry.Exchange,
		}
		if !r.Time.IsZero() {
			row["time"] = r.Time.UTC()
		}
		for k, v := range r.Values {
			row[k] = round2(v)
		}
		out = append(out, row)
	}
	return out
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

type candleRow struct {
	Time   int64    `json:"time"`
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume float64  `json:"volume"`
	EMA    *float64 `json:"ema"`
}

func (s *Server) stockHistory(c *gin.Context) {
	symbol := strings.TrimSpace(c.Query("symbol"))
	if symbol == "" || c.Query("candle_width") == "" || c.Query("candle_unit") == "" || c.Query("ema") == "" {
		s.fail(c, fmt.Errorf("%w: symbol, candle_width, candle_unit and ema are required", model.ErrValidation))
		return
	}
	params := strategy.Params{
		"candle_width": c.Query("candle_width"),
		"candle_unit":  c.Query("candle_unit"),
		"ema":          c.Query("ema"),
	}
	width, err := params.Int("candle_width", 0)
	if err != nil {
		s.fail(c, err)
		return
	}
	period, err := params.Int("ema", 0)
	if err != nil {
		s.fail(c, err)
		return
	}
	res, err := params.Resolution("candle_unit")
	if err != nil {
		s.fail(c, err)
		return
	}

	spec := model.EMA(period)
	snap, err := s.Collector.Collect(c.Request.Context(), collector.HistoryQuery{
		Symbol:     symbol,
		Resolution: res,
	}, width, []model.IndicatorSpec{spec})
	if err != nil {
		s.fail(c, err)
		return
	}

	ema, hasEMA := snap.Indicators.Get(spec)
	out := make([]candleRow, snap.Candles.Len())
	for i := range out {
		bar := snap.Candles.Bar(i)
		out[i] = candleRow{
			Time:   bar.Time.Unix(),
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: bar.Volume,
		}
		if hasEMA {
			if v, ok := ema.At(i); ok {
				v = round2(v)
				out[i].EMA = &v
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":     symbol,
		"width":      width,
		"resolution": res,
		"indicator":  spec.String(),
		"candles":    out,
	})
}

func (s *Server) backTrack(c *gin.Context) {
	params := strategy.Params{
		"investmentPerPurchase": c.Query("investmentPerPurchase"),
		"percentageChange":      c.Query("percentageChange"),
	}
	investment, err := params.Float("investmentPerPurchase", 0)
	if err != nil {
		s.fail(c, err)
		return
	}
	pct, err := params.Float("percentageChange", 0)
	if err != nil {
		s.fail(c, err)
		return
	}
	result, err := strategy.BackTrack(c.Request.Context(), s.Collector.Provider, strategy.BackTestRequest{
		Strategy:              c.Query("strategy"),
		Symbol:                strings.TrimSpace(c.Query("symbol")),
		InvestmentPerPurchase: investment,
		PercentageChange:      pct,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func capParam(c *gin.Context) (float64, error) {
	raw := strings.TrimSpace(c.Query("cap"))
	if raw == "" {
		return 0, fmt.Errorf(`%w: invalid cap, please provide company size in (Crs): "cap"`, model.ErrValidation)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: cap %q is not a number", model.ErrValidation, raw)
	}
	return v, nil
}
