package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in   string
		want Resolution
	}{
		{"", ResolutionDaily},
		{"Day", ResolutionDaily},
		{" 1d ", ResolutionDaily},
		{"H", ResolutionHourly},
		{"hours", ResolutionHourly},
		{"60", ResolutionHourly},
	}
	for _, tt := range tests {
		got, err := ParseResolution(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseResolution(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseResolution("week"); !errors.Is(err, ErrValidation) {
		t.Errorf("week: err = %v, want ErrValidation", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("wrap: %w", ErrDataIntegrity), "data_integrity"},
		{fmt.Errorf("fetch: %w", context.DeadlineExceeded), "timeout"},
		{fmt.Errorf("%w: %w", ErrCredential, ErrTransientUpstream), "credential"},
		{ErrTransientUpstream, "upstream"},
		{errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestIndicatorSeries_At(t *testing.T) {
	s := &IndicatorSeries{Spec: EMA(3), Values: []float64{math.NaN(), math.NaN(), 2, 3}, Start: 2}
	if _, ok := s.At(1); ok {
		t.Error("value before Start must be undefined")
	}
	if v, ok := s.At(2); !ok || v != 2 {
		t.Errorf("At(2) = %v, %v", v, ok)
	}
	if v, ok := s.Last(); !ok || v != 3 {
		t.Errorf("Last() = %v, %v", v, ok)
	}
	if EMA(3).String() != "EMA3" || RSI(14).String() != "RSI14" {
		t.Error("unexpected spec names")
	}
}
