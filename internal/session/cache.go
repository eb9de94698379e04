package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"StockScreener/internal/logger"
	"StockScreener/internal/model"
)

// CredentialProvider performs the actual credential handshake.
type CredentialProvider interface {
	Acquire(ctx context.Context) (string, error)
}

// CredentialFunc adapts a function to CredentialProvider.
type CredentialFunc func(ctx context.Context) (string, error)

func (f CredentialFunc) Acquire(ctx context.Context) (string, error) { return f(ctx) }

// State is the lifecycle position of the cached token.
type State string

const (
	StateEmpty   State = "EMPTY"
	StateActive  State = "ACTIVE"
	StateExpired State = "EXPIRED"
)

// Options configures a Cache.
type Options struct {
	TTL            time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	FailureCeiling int
	// StateFile persists the token across restarts. Empty disables persistence.
	StateFile string
	Now       func() time.Time
}

// Cache holds one refreshable credential shared by every caller.
type Cache struct {
	provider CredentialProvider
	opts     Options
	log      *logrus.Entry

	mu    sync.Mutex
	token Token
	group singleflight.Group
}

// New creates a Cache and restores any persisted token.
func New(provider CredentialProvider, opts Options) (*Cache, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: credential provider is required", model.ErrValidation)
	}
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("%w: session ttl must be positive", model.ErrValidation)
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Cache{provider: provider, opts: opts, log: logger.Component("session")}
	if opts.StateFile != "" {
		tok, err := LoadToken(opts.StateFile)
		if err != nil {
			c.log.WithError(err).Warn("ignoring unreadable session state")
		} else {
			tok.TTLSeconds = int64(opts.TTL / time.Second)
			c.token = tok
		}
	}
	return c, nil
}

// Acquire returns the cached token while it is active. Otherwise it joins
// or starts a single shared refresh. The refresh itself outlives a caller
// that gives up, so other waiters still get its result.
func (c *Cache) Acquire(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.stateLocked() == StateActive {
		v := c.token.Value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	ch := c.group.DoChan("refresh", func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Cache) refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.stateLocked() == StateActive {
		v := c.token.Value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	attempts := c.opts.MaxRetries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 && c.opts.RetryBackoff > 0 {
			backoff := c.opts.RetryBackoff * time.Duration(1<<uint(i-1))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		value, err := c.provider.Acquire(ctx)
		if err == nil && value == "" {
			err = errors.New("empty credential")
		}
		if err == nil {
			c.store(value)
			return value, nil
		}
		lastErr = err
		c.log.WithError(err).Warnf("credential refresh failed (attempt %d/%d)", i+1, attempts)
		c.recordFailure()
	}
	return "", fmt.Errorf("%w: %d attempts: %w", model.ErrCredential, attempts, lastErr)
}

func (c *Cache) store(value string) {
	c.mu.Lock()
	c.token = Token{
		Value:      value,
		AcquiredAt: c.opts.Now(),
		TTLSeconds: int64(c.opts.TTL / time.Second),
	}
	tok := c.token
	c.mu.Unlock()

	if c.opts.StateFile != "" {
		if err := SaveToken(c.opts.StateFile, tok); err != nil {
			c.log.WithError(err).Warn("persist session state")
		}
	}
	c.log.Debug("credential refreshed")
}

func (c *Cache) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token.ConsecutiveFailures++
	if c.opts.FailureCeiling > 0 && c.token.ConsecutiveFailures >= c.opts.FailureCeiling {
		c.hardResetLocked()
	}
}

// hardResetLocked discards the in-memory token, the persisted fallback and
// the failure counter.
func (c *Cache) hardResetLocked() {
	c.log.WithField("failures", c.token.ConsecutiveFailures).Warn("failure ceiling reached, resetting session")
	c.token = Token{}
	if c.opts.StateFile != "" {
		if err := RemoveToken(c.opts.StateFile); err != nil {
			c.log.WithError(err).Warn("remove session state")
		}
	}
}

// ReportFailure is called when an authenticated request sent with rejected
// was refused. A report for a token that has since been replaced is ignored.
// Otherwise the token is dropped so the next Acquire refreshes, and the
// failure counts toward the ceiling.
func (c *Cache) ReportFailure(rejected string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rejected == "" || rejected != c.token.Value {
		return
	}
	c.token.Value = ""
	c.token.ConsecutiveFailures++
	if c.opts.FailureCeiling > 0 && c.token.ConsecutiveFailures >= c.opts.FailureCeiling {
		c.hardResetLocked()
	}
}

// Invalidate forces the next Acquire to refresh.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.token.Value = ""
	c.mu.Unlock()
}

func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Snapshot returns a copy of the current token.
func (c *Cache) Snapshot() Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Cache) stateLocked() State {
	if c.token.Value == "" {
		return StateEmpty
	}
	if c.opts.Now().Sub(c.token.AcquiredAt) >= time.Duration(c.token.TTLSeconds)*time.Second {
		return StateExpired
	}
	return StateActive
}
