package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// RetryPolicy controls how failed outbound calls are repeated.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
	Jitter   float64 // fraction of the delay, 0.2 == ±20%
}

// Delay returns the wait before attempt n+1 after attempt n failed.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	base := p.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	shift := min(n-1, 16)
	d := base << shift
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	if p.Jitter > 0 {
		d += time.Duration((rand.Float64()*2 - 1) * p.Jitter * float64(d))
	}
	return d
}

// HTTPClient sends requests through a breaker and retries 5xx, 429 and
// transport errors. Other responses go straight back to the caller.
type HTTPClient struct {
	Client  *http.Client
	Breaker *Breaker
	Retry   RetryPolicy
	Timeout time.Duration
}

// StatusError carries the status of the final retryable response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resilience: upstream returned %d %s", e.Code, http.StatusText(e.Code))
}

// Do executes req. The body is read once up front so every attempt can resend it.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	body, err := drainBody(req)
	if err != nil {
		return nil, err
	}
	attempts := max(cl.Retry.Attempts, 1)
	target := cl.Breaker.Target()

	var lastErr error
	for n := 1; n <= attempts; n++ {
		if err := cl.Breaker.Allow(ctx); err != nil {
			outboundAttempts.WithLabelValues(target, "rejected").Inc()
			if lastErr != nil {
				return nil, errors.Join(err, lastErr)
			}
			return nil, err
		}

		resp, err := cl.attempt(ctx, req, body)
		wait, retry := retryAfter(resp, err)
		if err != nil && !retry {
			// cancelled by the caller
			cl.Breaker.Report(ctx, nil)
			return nil, err
		}
		if !retry {
			cl.Breaker.Report(ctx, nil)
			if resp.StatusCode >= 400 {
				outboundAttempts.WithLabelValues(target, "client_error").Inc()
			} else {
				outboundAttempts.WithLabelValues(target, "ok").Inc()
			}
			return resp, nil
		}
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			err = &StatusError{Code: resp.StatusCode}
		}
		lastErr = err
		cl.Breaker.Report(ctx, err)
		outboundAttempts.WithLabelValues(target, "retry").Inc()
		if n == attempts {
			break
		}

		if wait <= 0 {
			wait = cl.Retry.Delay(n)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (cl HTTPClient) attempt(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	var callCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	out := req.Clone(callCtx)
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	resp, err := cl.Client.Do(out)
	if err != nil {
		cancel()
		return nil, err
	}
	// keep the attempt context alive until the caller closes the body
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// retryAfter decides whether an attempt should be retried and how long the
// upstream asked us to wait. A zero wait means use the policy delay.
func retryAfter(resp *http.Response, err error) (time.Duration, bool) {
	if err != nil {
		return 0, !errors.Is(err, context.Canceled)
	}
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
		return 0, false
	}
	if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs > 0 {
		return time.Duration(secs) * time.Second, true
	}
	return 0, true
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func drainBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	src := req.Body
	if req.GetBody != nil {
		fresh, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		src = fresh
	}
	defer func() { _ = src.Close() }()
	return io.ReadAll(src)
}
