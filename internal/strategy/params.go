package strategy

import (
	"fmt"
	"strconv"
	"strings"

	"StockScreener/internal/model"
)

// Params carries string-valued screen parameters, as they arrive from a
// query string or a scheduled job definition.
type Params map[string]string

func (p Params) Int(key string, def int) (int, error) {
	v := strings.TrimSpace(p[key])
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", model.ErrValidation, key, v)
	}
	return n, nil
}

func (p Params) Float(key string, def float64) (float64, error) {
	v := strings.TrimSpace(p[key])
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", model.ErrValidation, key, v)
	}
	return f, nil
}

func (p Params) Resolution(key string) (model.Resolution, error) {
	return model.ParseResolution(p[key])
}
