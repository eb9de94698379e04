package universe

import (
	"context"
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"StockScreener/internal/model"
)

// FileProvider reads the symbol metadata dump: a JSON array of objects
// carrying MKTCAP (crores), SC_FULLNM, company, NSEID, BSEID and exchange.
type FileProvider struct {
	Path string
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{Path: path}
}

func (p *FileProvider) List(_ context.Context, minMarketCap float64) ([]model.UniverseEntry, error) {
	if err := checkCap(minMarketCap); err != nil {
		return nil, err
	}
	entries, err := p.load()
	if err != nil {
		return nil, err
	}
	return filterAndSort(entries, minMarketCap), nil
}

// All returns every listable entry regardless of market cap.
func (p *FileProvider) All() ([]model.UniverseEntry, error) {
	return p.load()
}

func (p *FileProvider) load() ([]model.UniverseEntry, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read symbol metadata: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: symbol metadata %s is not valid JSON", model.ErrDataIntegrity, p.Path)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsArray() {
		return nil, fmt.Errorf("%w: symbol metadata %s is not an array", model.ErrDataIntegrity, p.Path)
	}

	var entries []model.UniverseEntry
	doc.ForEach(func(_, x gjson.Result) bool {
		if e, ok := parseEntry(x); ok {
			entries = append(entries, e)
		}
		return true
	})
	return entries, nil
}

// parseEntry keeps rows that are listed on an exchange, carry an NSE or
// BSE identifier and have a numeric market cap.
func parseEntry(x gjson.Result) (model.UniverseEntry, bool) {
	id := x.Get("NSEID").String()
	if id == "" {
		id = x.Get("BSEID").String()
	}
	exchange := x.Get("exchange").String()
	mcap := x.Get("MKTCAP")
	if id == "" || exchange == "" || exchange == "-" || mcap.Type != gjson.Number {
		return model.UniverseEntry{}, false
	}

	name := x.Get("SC_FULLNM").String()
	if name == "" {
		name = x.Get("company").String()
	}
	return model.UniverseEntry{
		SymbolID:    id,
		DisplayName: name,
		MarketCap:   mcap.Float(),
		Exchange:    exchange,
	}, true
}
