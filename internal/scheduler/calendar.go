package scheduler

import (
	"strings"
	"time"

	"github.com/scmhub/calendar"

	"StockScreener/internal/logger"
)

// TradingCalendar decides whether scheduled scans should run on a date.
type TradingCalendar struct {
	cal *calendar.Calendar
	loc *time.Location
}

// NewTradingCalendar loads the exchange calendar for mic (ISO 10383, e.g.
// "xnse"). Unknown codes fall back to plain weekdays in Asia/Kolkata.
func NewTradingCalendar(mic string) *TradingCalendar {
	mic = strings.ToLower(strings.TrimSpace(mic))
	if cal := calendar.GetCalendar(mic); cal != nil {
		return &TradingCalendar{cal: cal, loc: cal.Loc}
	}
	logger.Component("scheduler").Warnf("no calendar for MIC %q, using Mon-Fri", mic)
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.UTC
	}
	return &TradingCalendar{loc: loc}
}

// IsTradingDay reports whether the exchange is in session on date.
func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc == nil {
		return true
	}
	if tc.loc != nil {
		date = date.In(tc.loc)
	}
	if tc.cal == nil {
		wd := date.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return tc.cal.IsBusinessDay(date)
}
