package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newTestClient returns a Client with pacing disabled and backoff sleeps
// replaced by a no-op so retry tests run instantly.
func newTestClient(cfg Config) *Client {
	cfg.RateLimitDelay = 0
	c := NewClient(cfg)
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func TestCheck_InvalidURL_NoNetworkCall(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := newTestClient(Config{MaxRetries: 2})

	for _, url := range []string{"", "   ", "ftp://example.com/car", "not-a-url"} {
		out := c.Check(context.Background(), "car-1", url)
		if out.Status != StatusGone {
			t.Fatalf("url %q: expected StatusGone, got %v", url, out.Status)
		}
		if out.Reason == "" {
			t.Fatalf("url %q: expected a diagnostic reason", url)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Fatalf("expected zero network calls for unusable URLs, got %d", n)
	}
}

func TestCheck_SuccessStatuses_Available(t *testing.T) {
	for _, status := range []int{200, 204, 299} {
		var attempts int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			if r.Method != http.MethodHead {
				t.Errorf("expected HEAD request, got %s", r.Method)
			}
			w.WriteHeader(status)
		}))

		c := newTestClient(Config{MaxRetries: 2})
		out := c.Check(context.Background(), "car-1", srv.URL)
		srv.Close()

		if out.Status != StatusAvailable {
			t.Fatalf("status %d: expected StatusAvailable, got %v (%s)", status, out.Status, out.Reason)
		}
		if n := atomic.LoadInt32(&attempts); n != 1 {
			t.Fatalf("status %d: expected exactly 1 attempt, got %d", status, n)
		}
	}
}

func TestCheck_Redirect_Available(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusFound)
	}))
	defer srv.Close()

	c := newTestClient(Config{})
	if out := c.Check(context.Background(), "car-1", srv.URL); out.Status != StatusAvailable {
		t.Fatalf("redirect: expected StatusAvailable, got %v (%s)", out.Status, out.Reason)
	}
}

func TestCheck_ClientError_GoneWithoutRetry(t *testing.T) {
	for _, status := range []int{400, 404, 410, 499} {
		var attempts int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(status)
		}))

		c := newTestClient(Config{MaxRetries: 3})
		out := c.Check(context.Background(), "car-1", srv.URL)
		srv.Close()

		if out.Status != StatusGone {
			t.Fatalf("status %d: expected StatusGone, got %v", status, out.Status)
		}
		if n := atomic.LoadInt32(&attempts); n != 1 {
			t.Fatalf("status %d: expected zero retries (1 attempt), got %d attempts", status, n)
		}
	}
}

func TestCheck_ServerError_RetriedThenUnknown(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(Config{MaxRetries: 2})
	out := c.Check(context.Background(), "car-1", srv.URL)

	if out.Status != StatusUnknown {
		t.Fatalf("expected StatusUnknown after exhausted retries, got %v", out.Status)
	}
	if out.Reason != "HTTP 502" {
		t.Fatalf("expected reason %q, got %q", "HTTP 502", out.Reason)
	}
	// max_retries=2 means exactly 3 total attempts.
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestCheck_ServerError_RecoversMidRetry(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(Config{MaxRetries: 2})
	out := c.Check(context.Background(), "car-1", srv.URL)

	if out.Status != StatusAvailable {
		t.Fatalf("expected StatusAvailable on third attempt, got %v (%s)", out.Status, out.Reason)
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestCheck_Timeout_RetriedThenUnknown(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(Config{Timeout: 30 * time.Millisecond, MaxRetries: 2})
	out := c.Check(context.Background(), "car-1", srv.URL)

	if out.Status != StatusUnknown {
		t.Fatalf("expected StatusUnknown after timeouts, got %v (%s)", out.Status, out.Reason)
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Fatalf("expected exactly 3 attempts with max_retries=2, got %d", n)
	}
}

func TestCheck_ConnectionRefused_Unknown(t *testing.T) {
	// Grab a port that is closed by binding and immediately releasing it.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(Config{MaxRetries: 1})
	out := c.Check(context.Background(), "car-1", url)
	if out.Status != StatusUnknown {
		t.Fatalf("expected StatusUnknown for refused connection, got %v", out.Status)
	}
	if out.Reason == "" {
		t.Fatal("expected a diagnostic reason")
	}
}

func TestCheck_ContextCancelled_Unknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{MaxRetries: 5, RetryDelay: time.Hour, RateLimitDelay: 0})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := c.Check(ctx, "car-1", srv.URL)
	if out.Status != StatusUnknown {
		t.Fatalf("expected StatusUnknown on cancelled context, got %v", out.Status)
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusAvailable: "available",
		StatusGone:      "gone",
		StatusUnknown:   "unknown",
		Status(42):      "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("Status(%d).String() = %q, want %q", s, got, want)
		}
	}
}
