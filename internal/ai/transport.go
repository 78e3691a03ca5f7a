package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// newHTTPClient returns a client whose outbound calls carry OpenTelemetry spans.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// retryPolicy bounds attempts and backoff for one provider call.
type retryPolicy struct {
	Attempts int
	Base     time.Duration
	Cap      time.Duration
}

// endpoint posts JSON to one provider with a shared retry loop.
type endpoint struct {
	hc     *http.Client
	policy retryPolicy
	// header adds provider headers (auth, attribution).
	header func(*http.Request)
	// status maps a non-2xx response onto a typed error. It may read the body.
	status func(*http.Response) error
	// host, when set, turns transport failures into *UnreachableError.
	host string
}

// post sends body and returns the first 2xx response; the caller closes it.
// 429, 5xx and transient network errors are retried with jittered exponential
// backoff capped at policy.Cap. A Retry-After hint replaces the backoff.
func (e endpoint) post(ctx context.Context, url string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	attempts := e.policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := e.policy.Base
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if e.header != nil {
			e.header(req)
		}

		last := attempt >= attempts
		wait := withJitter(delay)
		if e.policy.Cap > 0 && wait > e.policy.Cap {
			wait = e.policy.Cap
		}

		resp, err := e.hc.Do(req)
		switch {
		case err != nil:
			if last || !isRetryableNetErr(err) {
				return nil, e.transportErr(err)
			}
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		default:
			serr := e.status(resp)
			resp.Body.Close()
			if last || !retryableStatus(resp.StatusCode) {
				return nil, serr
			}
			var rl *RateLimitError
			if errors.As(serr, &rl) && rl.RetryAfter > 0 {
				wait = rl.RetryAfter
			}
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
		delay *= 2
	}
}

func (e endpoint) transportErr(err error) error {
	if e.host != "" {
		return &UnreachableError{Host: e.host, Err: err}
	}
	return fmt.Errorf("http request: %w", err)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

func isRetryableNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withJitter spreads d by ±20%.
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 500 * time.Millisecond
	}
	out := time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
	if out <= 0 {
		return d
	}
	return out
}
