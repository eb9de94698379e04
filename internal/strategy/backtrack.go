package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"StockScreener/internal/calculator"
	"StockScreener/internal/collector"
	"StockScreener/internal/model"
)

// Strategy3H1HEMA buys on hourly closes that cross below the EMA of
// three-hour candles and exits the whole position at a fixed gain.
const Strategy3H1HEMA = "3H-1H-EMA"

// BackTestRequest parameterises a back-track run.
type BackTestRequest struct {
	Strategy              string
	Symbol                string
	InvestmentPerPurchase float64
	// PercentageChange is the take-profit gain over average cost, in percent.
	PercentageChange float64
	EMAPeriod        int
	// Bars is the number of hourly periods replayed.
	Bars int
	To   time.Time
}

// Trade is one simulated fill.
type Trade struct {
	Time   time.Time       `json:"time"`
	Side   string          `json:"side"`
	Price  decimal.Decimal `json:"price"`
	Units  decimal.Decimal `json:"units"`
	Amount decimal.Decimal `json:"amount"`
}

// BackTestResult summarises a back-track run.
type BackTestResult struct {
	Strategy      string          `json:"strategy"`
	Symbol        string          `json:"symbol"`
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	Purchases     int             `json:"purchases"`
	Sales         int             `json:"sales"`
	Invested      decimal.Decimal `json:"invested"`
	Realized      decimal.Decimal `json:"realized"`
	Holding       decimal.Decimal `json:"holdingUnits"`
	MarketValue   decimal.Decimal `json:"marketValue"`
	ProfitPercent decimal.Decimal `json:"profitPercent"`
	Trades        []Trade         `json:"trades"`
}

func (r *BackTestRequest) validate() error {
	if r.Strategy == "" {
		r.Strategy = Strategy3H1HEMA
	}
	if r.Strategy != Strategy3H1HEMA {
		return fmt.Errorf("%w: unknown strategy %q, expected %s", model.ErrValidation, r.Strategy, Strategy3H1HEMA)
	}
	if r.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", model.ErrValidation)
	}
	if r.InvestmentPerPurchase <= 0 {
		return fmt.Errorf("%w: investment per purchase must be positive", model.ErrValidation)
	}
	if r.PercentageChange <= 0 {
		r.PercentageChange = 5
	}
	if r.EMAPeriod <= 0 {
		r.EMAPeriod = 20
	}
	if r.Bars <= 0 {
		r.Bars = 3 * 200
	}
	return nil
}

// BackTrack replays the fixed 3H-1H-EMA strategy over hourly history.
func BackTrack(ctx context.Context, provider collector.HistoryProvider, req BackTestRequest) (*BackTestResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	raw, err := provider.FetchHistory(ctx, collector.HistoryQuery{
		Symbol:     req.Symbol,
		Resolution: model.ResolutionHourly,
		To:         req.To,
		CountBack:  req.Bars,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.Symbol, err)
	}
	hourly, err := calculator.Resample(raw, 1)
	if err != nil {
		return nil, err
	}
	threeHour, err := calculator.Resample(raw, 3)
	if err != nil {
		return nil, err
	}
	ema, err := calculator.EMA(threeHour.Close, req.EMAPeriod)
	if err != nil {
		return nil, err
	}
	return replay(req, hourly, ema), nil
}

// replay walks hourly closes against the EMA of the last completed
// three-hour candle.
func replay(req BackTestRequest, hourly *model.CandleSeries, ema *model.IndicatorSeries) *BackTestResult {
	res := &BackTestResult{Strategy: req.Strategy, Symbol: req.Symbol, Trades: []Trade{}}
	if hourly.Len() == 0 {
		return res
	}
	last, _ := hourly.Last()
	res.From, res.To = hourly.Bar(0).Time, last.Time

	invest := decimal.NewFromFloat(req.InvestmentPerPurchase)
	target := decimal.NewFromFloat(1 + req.PercentageChange/100)
	var (
		units, cost   decimal.Decimal
		prevBelow     bool
		havePrevBelow bool
	)

	for i := 0; i < hourly.Len(); i++ {
		level, ok := ema.At(i/3 - 1)
		if !ok {
			continue
		}
		bar := hourly.Bar(i)
		if bar.Close <= 0 {
			continue
		}
		price := decimal.NewFromFloat(bar.Close)
		below := bar.Close < level

		if units.IsPositive() && price.Mul(units).GreaterThanOrEqual(cost.Mul(target)) {
			amount := price.Mul(units)
			res.Trades = append(res.Trades, Trade{Time: bar.Time, Side: "SELL", Price: price, Units: units.Round(4), Amount: amount.Round(2)})
			res.Realized = res.Realized.Add(amount)
			res.Sales++
			units, cost = decimal.Zero, decimal.Zero
		} else if below && havePrevBelow && !prevBelow {
			bought := invest.DivRound(price, 8)
			res.Trades = append(res.Trades, Trade{Time: bar.Time, Side: "BUY", Price: price, Units: bought.Round(4), Amount: invest})
			units = units.Add(bought)
			cost = cost.Add(invest)
			res.Invested = res.Invested.Add(invest)
			res.Purchases++
		}
		prevBelow, havePrevBelow = below, true
	}

	res.Holding = units.Round(4)
	res.MarketValue = units.Mul(decimal.NewFromFloat(last.Close)).Round(2)
	res.Realized = res.Realized.Round(2)
	if res.Invested.IsPositive() {
		res.ProfitPercent = res.Realized.Add(res.MarketValue).Sub(res.Invested).
			Div(res.Invested).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return res
}
