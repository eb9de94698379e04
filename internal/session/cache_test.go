package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"StockScreener/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingProvider hands out "tok-1", "tok-2", ... and fails while fail > 0.
type countingProvider struct {
	calls atomic.Int32
	fail  atomic.Int32
	gate  chan struct{}
}

func (p *countingProvider) Acquire(ctx context.Context) (string, error) {
	n := p.calls.Add(1)
	if p.gate != nil {
		<-p.gate
	}
	if p.fail.Load() > 0 {
		p.fail.Add(-1)
		return "", errors.New("handshake rejected")
	}
	return fmt.Sprintf("tok-%d", n), nil
}

func TestAcquire_CachesWithinTTL(t *testing.T) {
	clock := newClock()
	p := &countingProvider{}
	c, err := New(p, Options{TTL: time.Hour, Now: clock.Now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.State() != StateEmpty {
		t.Errorf("state = %s, want EMPTY", c.State())
	}

	first, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	clock.Advance(59 * time.Minute)
	second, _ := c.Acquire(context.Background())
	if first != second || p.calls.Load() != 1 {
		t.Errorf("got %q then %q with %d calls, want one cached token", first, second, p.calls.Load())
	}
	if c.State() != StateActive {
		t.Errorf("state = %s, want ACTIVE", c.State())
	}

	clock.Advance(time.Minute)
	if c.State() != StateExpired {
		t.Errorf("state = %s, want EXPIRED", c.State())
	}
	third, _ := c.Acquire(context.Background())
	if third == first || p.calls.Load() != 2 {
		t.Errorf("expected refresh after TTL, got %q with %d calls", third, p.calls.Load())
	}
}

func TestAcquire_ConcurrentExpiredCoalesces(t *testing.T) {
	clock := newClock()
	p := &countingProvider{}
	c, _ := New(p, Options{TTL: time.Minute, Now: clock.Now})
	if _, err := c.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	clock.Advance(2 * time.Minute)

	p.gate = make(chan struct{})
	before := p.calls.Load()

	var wg sync.WaitGroup
	tokens := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = c.Acquire(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(p.gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if got := p.calls.Load() - before; got != 1 {
		t.Errorf("credential fetches = %d, want 1", got)
	}
	if tokens[0] != tokens[1] {
		t.Errorf("callers got %q and %q, want the same token", tokens[0], tokens[1])
	}
}

func TestAcquire_RetriesThenSucceeds(t *testing.T) {
	p := &countingProvider{}
	p.fail.Store(2)
	c, _ := New(p, Options{TTL: time.Hour, MaxRetries: 2, RetryBackoff: time.Millisecond})

	tok, err := c.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if tok != "tok-3" || p.calls.Load() != 3 {
		t.Errorf("tok=%q calls=%d, want tok-3 after 3 calls", tok, p.calls.Load())
	}
	if f := c.Snapshot().ConsecutiveFailures; f != 0 {
		t.Errorf("failures = %d, want reset to 0", f)
	}
}

func TestAcquire_ExhaustedRetriesPropagate(t *testing.T) {
	p := &countingProvider{}
	p.fail.Store(100)
	c, _ := New(p, Options{TTL: time.Hour, MaxRetries: 1})

	_, err := c.Acquire(context.Background())
	if !errors.Is(err, model.ErrCredential) {
		t.Fatalf("err = %v, want ErrCredential", err)
	}
	if p.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", p.calls.Load())
	}
	if f := c.Snapshot().ConsecutiveFailures; f != 2 {
		t.Errorf("failures = %d, want 2", f)
	}
}

func TestAcquire_HardResetAtCeiling(t *testing.T) {
	clock := newClock()
	path := filepath.Join(t.TempDir(), "session.json")
	p := &countingProvider{}
	c, _ := New(p, Options{TTL: time.Minute, FailureCeiling: 3, StateFile: path, Now: clock.Now})

	if _, err := c.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("state file not written: %v", err)
	}

	clock.Advance(time.Hour)
	p.fail.Store(100)
	for i := 0; i < 2; i++ {
		if _, err := c.Acquire(context.Background()); err == nil {
			t.Fatal("expected failure")
		}
	}
	if c.Snapshot().ConsecutiveFailures != 2 || c.State() != StateExpired {
		t.Fatalf("before ceiling: %+v state=%s", c.Snapshot(), c.State())
	}

	if _, err := c.Acquire(context.Background()); err == nil {
		t.Fatal("expected failure")
	}
	if c.State() != StateEmpty {
		t.Errorf("state = %s, want EMPTY after hard reset", c.State())
	}
	if f := c.Snapshot().ConsecutiveFailures; f != 0 {
		t.Errorf("failures = %d, want 0 after hard reset", f)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("state file should be removed, stat err = %v", err)
	}
}

func TestNew_RestoresPersistedToken(t *testing.T) {
	clock := newClock()
	path := filepath.Join(t.TempDir(), "session.json")
	if err := SaveToken(path, Token{Value: "saved", AcquiredAt: clock.Now(), TTLSeconds: 600}); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	p := &countingProvider{}
	c, err := New(p, Options{TTL: 10 * time.Minute, StateFile: path, Now: clock.Now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tok, err := c.Acquire(context.Background())
	if err != nil || tok != "saved" {
		t.Errorf("Acquire = %q, %v; want saved", tok, err)
	}
	if p.calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", p.calls.Load())
	}
}

func TestReportFailure_ForcesRefresh(t *testing.T) {
	p := &countingProvider{}
	c, _ := New(p, Options{TTL: time.Hour})
	first, _ := c.Acquire(context.Background())

	c.ReportFailure(first)
	if c.State() != StateEmpty {
		t.Errorf("state = %s, want EMPTY", c.State())
	}
	second, _ := c.Acquire(context.Background())
	if second == first {
		t.Errorf("expected a new token, got %q again", second)
	}
}

func TestReportFailure_StaleTokenKeepsFreshOne(t *testing.T) {
	p := &countingProvider{}
	c, _ := New(p, Options{TTL: time.Hour})
	ctx := context.Background()

	old, _ := c.Acquire(ctx)
	c.ReportFailure(old)
	fresh, _ := c.Acquire(ctx)

	// a second request sent with the old token is refused late
	c.ReportFailure(old)
	after, _ := c.Acquire(ctx)

	if old != "tok-1" || fresh != "tok-2" || after != "tok-2" {
		t.Errorf("old=%s fresh=%s after=%s, want tok-1 tok-2 tok-2", old, fresh, after)
	}
	if n := p.calls.Load(); n != 2 {
		t.Errorf("credential calls = %d, want 2", n)
	}
	if f := c.Snapshot().ConsecutiveFailures; f != 0 {
		t.Errorf("failures = %d, want 0 after the refresh", f)
	}
}

func TestNew_RestoredTokenUsesConfiguredTTL(t *testing.T) {
	clock := newClock()
	path := filepath.Join(t.TempDir(), "session.json")
	if err := SaveToken(path, Token{Value: "saved", AcquiredAt: clock.Now(), TTLSeconds: 6000}); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	c, err := New(&countingProvider{}, Options{TTL: time.Minute, StateFile: path, Now: clock.Now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.State() != StateActive {
		t.Fatalf("state = %s, want ACTIVE", c.State())
	}
	clock.Advance(2 * time.Minute)
	if c.State() != StateExpired {
		t.Errorf("state = %s, want EXPIRED under the configured ttl", c.State())
	}
}

func TestAcquire_CallerCancellation(t *testing.T) {
	p := &countingProvider{gate: make(chan struct{})}
	defer close(p.gate)
	c, _ := New(p, Options{TTL: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, Options{TTL: time.Hour}); !errors.Is(err, model.ErrValidation) {
		t.Errorf("nil provider: err = %v", err)
	}
	if _, err := New(&countingProvider{}, Options{}); !errors.Is(err, model.ErrValidation) {
		t.Errorf("zero ttl: err = %v", err)
	}
}
