package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpproxy"
	"golang.org/x/time/rate"

	"StockScreener/internal/model"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// ClientOptions configures the shared upstream transport.
type ClientOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Proxy             string
	UserAgent         string
}

type httpClient struct {
	client    *fasthttp.Client
	limiter   *rate.Limiter
	timeout   time.Duration
	userAgent string
}

type response struct {
	status  int
	body    []byte
	cookies []string
}

func newHTTPClient(opts ClientOptions) *httpClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	c := &fasthttp.Client{
		Name:                     "stock-screener",
		NoDefaultUserAgentHeader: true,
		ReadTimeout:              opts.Timeout,
		WriteTimeout:             opts.Timeout,
		MaxConnsPerHost:          64,
		MaxConnWaitTimeout:       opts.Timeout,
	}
	if opts.Proxy != "" {
		addr := strings.TrimPrefix(strings.TrimPrefix(opts.Proxy, "http://"), "https://")
		c.Dial = fasthttpproxy.FasthttpHTTPDialer(addr)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &httpClient{client: c, limiter: limiter, timeout: opts.Timeout, userAgent: opts.UserAgent}
}

// do waits for the limiter, then performs the request prepared by build.
// The request is bounded by the earlier of the ctx deadline and the client
// timeout, and abandoned as soon as ctx is done.
func (c *httpClient) do(ctx context.Context, build func(req *fasthttp.Request)) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	type result struct {
		resp *response
		err  error
	}
	done := make(chan result, 1)

	go func() {
		req := fasthttp.AcquireRequest()
		defer fasthttp.ReleaseRequest(req)
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseResponse(resp)

		req.Header.Set("User-Agent", c.userAgent)
		build(req)

		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			done <- result{err: err}
			return
		}
		out := &response{
			status: resp.StatusCode(),
			body:   append([]byte(nil), resp.Body()...),
		}
		resp.Header.VisitAllCookie(func(_, value []byte) {
			cookie := fasthttp.AcquireCookie()
			defer fasthttp.ReleaseCookie(cookie)
			if err := cookie.ParseBytes(value); err == nil {
				out.cookies = append(out.cookies, string(cookie.Key())+"="+string(cookie.Value()))
			}
		})
		done <- result{resp: out}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, fasthttp.ErrTimeout) {
				return nil, fmt.Errorf("%w: %w", model.ErrTransientUpstream, context.DeadlineExceeded)
			}
			return nil, fmt.Errorf("%w: %w", model.ErrTransientUpstream, r.err)
		}
		return r.resp, nil
	}
}
