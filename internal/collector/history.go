package collector

import (
	"fmt"

	"github.com/tidwall/gjson"

	"StockScreener/internal/model"
)

// parseHistory decodes the {s,t,o,h,l,c,v} chart payload shared by the
// supported upstreams. Absent columns stay nil so the resampler rejects them.
func parseHistory(symbol string, body []byte) (*model.RawSeries, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %s: invalid JSON payload", model.ErrTransientUpstream, symbol)
	}
	doc := gjson.ParseBytes(body)

	if status := doc.Get("s").String(); status != "ok" {
		msg := doc.Get("errmsg").String()
		if msg == "" {
			msg = status
		}
		return nil, fmt.Errorf("%w: %s: upstream status %q", model.ErrTransientUpstream, symbol, msg)
	}

	return &model.RawSeries{
		Symbol:    symbol,
		Timestamp: intColumn(doc.Get("t")),
		Open:      floatColumn(doc.Get("o")),
		High:      floatColumn(doc.Get("h")),
		Low:       floatColumn(doc.Get("l")),
		Close:     floatColumn(doc.Get("c")),
		Volume:    floatColumn(doc.Get("v")),
	}, nil
}

func floatColumn(v gjson.Result) []float64 {
	if !v.IsArray() {
		return nil
	}
	arr := v.Array()
	out := make([]float64, len(arr))
	for i, x := range arr {
		out[i] = x.Float()
	}
	return out
}

func intColumn(v gjson.Result) []int64 {
	if !v.IsArray() {
		return nil
	}
	arr := v.Array()
	out := make([]int64, len(arr))
	for i, x := range arr {
		out[i] = x.Int()
	}
	return out
}
