package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"StockScreener/internal/model"
	"StockScreener/internal/scanner"
)

// maxRows keeps a report under Telegram's message size limit.
const maxRows = 30

// FormatScanReport formats a finished scan into a Telegram message.
func FormatScanReport(title string, results []model.ScreenResult, report *scanner.Report) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>%s</b> | %s\n", html.EscapeString(title), time.Now().Format("2006-01-02 15:04")))
	if report != nil {
		b.WriteString(fmt.Sprintf("scanned %d | matched %d | failed %d | short history %d | took %s\n",
			report.Total, len(results), report.Failed(), report.InsufficientHistory,
			report.Duration.Round(time.Second)))
	}
	b.WriteString("\n")

	if len(results) == 0 {
		b.WriteString("No matches.\n")
		return b.String()
	}

	for i, r := range results {
		if i == maxRows {
			b.WriteString(fmt.Sprintf("… and %d more\n", len(results)-maxRows))
			break
		}
		b.WriteString(fmt.Sprintf("%d. <b>%s</b> %s\n", i+1, html.EscapeString(r.Entry.SymbolID), formatValues(r.Values)))
	}
	return b.String()
}

// FormatFailures lists per-symbol failures of a scan, grouped by kind.
func FormatFailures(report *scanner.Report) string {
	if report == nil || len(report.Failures) == 0 {
		return ""
	}
	byKind := map[string][]string{}
	for _, f := range report.Failures {
		byKind[f.Kind] = append(byKind[f.Kind], f.Symbol)
	}
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	var b strings.Builder
	b.WriteString("⚠️ <b>Failures</b>\n")
	for _, k := range kinds {
		syms := byKind[k]
		sort.Strings(syms)
		if len(syms) > 10 {
			syms = append(syms[:10], fmt.Sprintf("+%d", len(byKind[k])-10))
		}
		b.WriteString(fmt.Sprintf("  %s: %s\n", k, strings.Join(syms, ", ")))
	}
	return b.String()
}

func formatValues(values map[string]float64) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, decimal.NewFromFloat(values[k]).Round(2).String())
	}
	return strings.Join(parts, " ")
}
