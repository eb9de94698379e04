package model

import (
	"context"
	"errors"
)

var (
	// ErrValidation marks malformed scan or query parameters.
	ErrValidation = errors.New("validation error")
	// ErrDataIntegrity marks an upstream series that cannot be trusted.
	ErrDataIntegrity = errors.New("faulty historical data")
	// ErrTransientUpstream marks a failed or unusable upstream response.
	ErrTransientUpstream = errors.New("upstream unavailable")
	// ErrInsufficientHistory is returned when a series is too short for an indicator.
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrCredential marks exhausted credential acquisition.
	ErrCredential = errors.New("credential unavailable")
)

// Classify maps an error to a short label for logs and reports.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrDataIntegrity):
		return "data_integrity"
	case errors.Is(err, ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, ErrCredential):
		return "credential"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrTransientUpstream):
		return "upstream"
	default:
		return "unknown"
	}
}
