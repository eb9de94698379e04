package scanner

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"StockScreener/internal/model"
)

// UnitState is the lifecycle position of one symbol within a scan.
type UnitState string

const (
	StatePending        UnitState = "PENDING"
	StateFetching       UnitState = "FETCHING"
	StateFetchFailed    UnitState = "FETCH_FAILED"
	StateFetched        UnitState = "FETCHED"
	StateResampling     UnitState = "RESAMPLING"
	StateResampleFailed UnitState = "RESAMPLE_FAILED"
	StateResampled      UnitState = "RESAMPLED"
	StateEvaluating     UnitState = "EVALUATING"
	StateMatched        UnitState = "MATCHED"
	StateUnmatched      UnitState = "UNMATCHED"
)

// Terminal reports whether no further transition can follow s.
func (s UnitState) Terminal() bool {
	switch s {
	case StateFetchFailed, StateResampleFailed, StateMatched, StateUnmatched:
		return true
	}
	return false
}

// Observer receives every unit transition. It is called from the unit's
// goroutine and must be safe for concurrent use.
type Observer func(symbol string, state UnitState)

// UnitFailure records why a unit ended without being evaluated normally.
type UnitFailure struct {
	Symbol string    `json:"symbol"`
	State  UnitState `json:"state"`
	Kind   string    `json:"kind"`
	Error  string    `json:"error"`
}

// Report summarises one scan run.
type Report struct {
	RunID    string        `json:"runId"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Total    int           `json:"total"`
	// States counts units by terminal state.
	States map[UnitState]int `json:"states"`
	// InsufficientHistory counts units where at least one indicator was absent.
	InsufficientHistory int           `json:"insufficientHistory"`
	Failures            []UnitFailure `json:"failures,omitempty"`

	mu sync.Mutex
}

func newReport(total int) *Report {
	return &Report{
		RunID:   uuid.NewString(),
		Started: time.Now(),
		Total:   total,
		States:  make(map[UnitState]int),
	}
}

func (r *Report) finish(state UnitState) {
	r.mu.Lock()
	r.States[state]++
	r.mu.Unlock()
}

func (r *Report) fail(symbol string, state UnitState, err error) {
	r.mu.Lock()
	r.States[state]++
	r.Failures = append(r.Failures, UnitFailure{
		Symbol: symbol,
		State:  state,
		Kind:   model.Classify(err),
		Error:  err.Error(),
	})
	r.mu.Unlock()
}

func (r *Report) insufficient() {
	r.mu.Lock()
	r.InsufficientHistory++
	r.mu.Unlock()
}

func (r *Report) count(state UnitState) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.States[state]
}

func (r *Report) Matched() int   { return r.count(StateMatched) }
func (r *Report) Unmatched() int { return r.count(StateUnmatched) }

// Failed counts units that ended in a failure state.
func (r *Report) Failed() int {
	return r.count(StateFetchFailed) + r.count(StateResampleFailed)
}

// Completed counts units in any terminal state.
func (r *Report) Completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.States {
		n += c
	}
	return n
}
