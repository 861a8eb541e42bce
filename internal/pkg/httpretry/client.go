// Package httpretry retries outbound calls to the campaign service when it
// answers with a transient status or the connection drops.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/ignite/audience-core/internal/pkg/logger"
)

var log = logger.Named("httpretry")

// HTTPDoer is satisfied by *http.Client and *RetryClient.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient resends a request up to maxRetries extra times, sleeping a
// jittered, doubling interval between attempts.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

type Option func(*RetryClient)

// WithBackoff sets the first retry interval and the ceiling it doubles up to.
func WithBackoff(base, ceiling time.Duration) Option {
	return func(rc *RetryClient) {
		rc.baseDelay = base
		rc.maxDelay = ceiling
	}
}

// NewRetryClient wraps client, or a 30s-timeout http.Client when nil.
// maxRetries below one means three.
func NewRetryClient(client HTTPDoer, maxRetries int, opts ...Option) *RetryClient {
	rc := &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
	}
	if rc.client == nil {
		rc.client = &http.Client{Timeout: 30 * time.Second}
	}
	if rc.maxRetries <= 0 {
		rc.maxRetries = 3
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Do sends req, retrying connection failures and the statuses accepted by
// isRetryableStatus. When retries run out on a retryable status the last
// response is returned unread so the caller sees the upstream error body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		if attempt > 0 {
			if err := rewind(req); err != nil {
				return nil, err
			}
			delay := rc.backoff(attempt)
			log.Warn("campaign call failed, retrying", "attempt", attempt, "max_retries", rc.maxRetries,
				"method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "delay", delay)
			if err := sleep(ctx, delay); err != nil {
				return nil, firstErr(lastErr, err)
			}
		} else if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := rc.client.Do(req)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, err
		case err != nil:
			lastErr = err
		case !isRetryableStatus(resp.StatusCode), attempt == rc.maxRetries:
			return resp, nil
		default:
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("httpretry: %s %s answered %d", req.Method, req.URL.Path, resp.StatusCode)
		}
	}
	return nil, lastErr
}

// backoff picks a delay between base/10 and min(ceiling, base*2^(attempt-1)).
func (rc *RetryClient) backoff(attempt int) time.Duration {
	window := rc.baseDelay
	for i := 1; i < attempt && window < rc.maxDelay; i++ {
		window *= 2
	}
	if window > rc.maxDelay {
		window = rc.maxDelay
	}
	d := time.Duration(rand.Int63n(int64(window) + 1))
	if floor := rc.baseDelay / 10; d < floor {
		d = floor
	}
	return d
}

// rewind restores the body consumed by the previous attempt.
func rewind(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("httpretry: rewind body: %w", err)
	}
	req.Body = body
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// isRetryableStatus reports throttling and gateway-style server failures.
// Other 4xx and 5xx answers are final.
func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
