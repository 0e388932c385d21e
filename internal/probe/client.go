// Package probe implements the lightweight HTTP existence check issued
// against a single listing URL. A probe answers one question: is the source
// listing still there? The answer is a three-way Status rather than a bare
// boolean so the persistence layer can distinguish a definitive 404 from a
// transient network failure.
//
// Classification rules:
//   - status in [200,400)            -> StatusAvailable
//   - status in [400,500)            -> StatusGone (no retry; the listing
//     has been removed at the source)
//   - status >= 500, timeouts, and transport errors -> retried with
//     exponential backoff; once retries are exhausted the outcome is
//     StatusUnknown with a diagnostic reason.
//   - empty or non-http(s) URL       -> StatusGone, no network call.
//
// Check never returns an error: every failure mode is folded into the
// Outcome so a single misbehaving URL can never abort a batch.
package probe

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"
)

// Status is the tagged outcome of a single probe.
type Status int

const (
	// StatusUnknown means the probe could not reach a verdict: the source
	// site timed out or errored on every attempt. Transient outages land
	// here, not in StatusGone.
	StatusUnknown Status = iota
	// StatusAvailable means the listing responded with a 2xx/3xx status.
	StatusAvailable
	// StatusGone means the listing is definitively absent: a 4xx response
	// or an unusable URL.
	StatusGone
)

// String returns a short label used in logs and metrics.
func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusGone:
		return "gone"
	default:
		return "unknown"
	}
}

// Outcome is the transient per-probe result handed to the persistence
// updater. It is never stored as its own entity.
type Outcome struct {
	CarID  string `json:"car_id"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Config holds the probe client tunables. Zero values are replaced with the
// defaults documented on each field.
type Config struct {
	// Timeout is the total per-request budget including connect, TLS, and
	// response headers. Default 15s.
	Timeout time.Duration
	// ConnectTimeout bounds the dial phase alone. Default 5s.
	ConnectTimeout time.Duration
	// MaxRetries is the number of additional attempts after the first one
	// for retryable failures (5xx, timeout, transport error). Default 2.
	MaxRetries int
	// RetryDelay is the base backoff; attempt n sleeps RetryDelay * 2^n.
	// Default 1s.
	RetryDelay time.Duration
	// RateLimitDelay is a small jittered pause taken before every request
	// so a batch never bursts against a single host. 0 disables pacing;
	// deployments default it to 100ms via configuration.
	RateLimitDelay time.Duration
	// MaxConcurrent sizes the connection pool; it should match the batch
	// checker's concurrency bound. Default 10.
	MaxConcurrent int
	// UserAgent overrides the browser-like default sent with every probe.
	UserAgent string
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
}

// Client issues existence probes over a shared keep-alive connection pool.
// It is safe for concurrent use by all probes of a run and may be reused
// across runs.
type Client struct {
	http *http.Client
	cfg  Config

	// sleep is swapped out by tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client with a pooled transport sized for cfg.
func NewClient(cfg Config) *Client {
	cfg.applyDefaults()

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          cfg.MaxConcurrent * 2,
		MaxIdleConnsPerHost:   5,
		MaxConnsPerHost:       cfg.MaxConcurrent,
		IdleConnTimeout:       60 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	}

	return &Client{
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			// Redirects count as "still there"; follow them like a browser.
		},
		cfg:   cfg,
		sleep: sleepCtx,
	}
}

// Check probes url and classifies the result for carID. It issues a HEAD
// request (listings are only existence-checked, bodies are never needed)
// and retries retryable failures up to MaxRetries times with exponential
// backoff. The returned Outcome always carries carID.
func (c *Client) Check(ctx context.Context, carID, url string) Outcome {
	if !usableURL(url) {
		return Outcome{CarID: carID, Status: StatusGone, Reason: "invalid URL format"}
	}

	// Jittered pacing so concurrent probes do not burst a single host.
	if c.cfg.RateLimitDelay > 0 {
		jitter := time.Duration(rand.Int63n(int64(c.cfg.RateLimitDelay) + 1))
		if err := c.sleep(ctx, c.cfg.RateLimitDelay+jitter); err != nil {
			return Outcome{CarID: carID, Status: StatusUnknown, Reason: "cancelled"}
		}
	}

	var lastReason string
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.RetryDelay * (1 << (attempt - 1))
			if err := c.sleep(ctx, backoff); err != nil {
				return Outcome{CarID: carID, Status: StatusUnknown, Reason: "cancelled"}
			}
		}

		status, err := c.head(ctx, url)
		switch {
		case err != nil:
			lastReason = reasonFor(err)
		case status < 400:
			return Outcome{CarID: carID, Status: StatusAvailable}
		case status < 500:
			// Client error: the listing is gone for good, retrying is pointless.
			return Outcome{CarID: carID, Status: StatusGone, Reason: fmt.Sprintf("HTTP %d", status)}
		default:
			lastReason = fmt.Sprintf("HTTP %d", status)
		}
	}

	return Outcome{CarID: carID, Status: StatusUnknown, Reason: lastReason}
}

// head performs one HEAD request and returns the response status code.
func (c *Client) head(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// usableURL reports whether the checker should probe url at all.
func usableURL(url string) bool {
	url = strings.TrimSpace(url)
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// reasonFor maps a transport error to a short diagnostic string.
func reasonFor(err error) string {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return "timeout"
	}
	return "network error: " + err.Error()
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
