/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package httpratelimit throttles outgoing AWS API calls. It caps the
// request rate and, when AWS reports throttling, pauses every request
// through the transport for a while.
package httpratelimit

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"golang.org/x/time/rate"
)

// NOTE: Use the Go canonical form (capitals) for these headers.
const (
	// HeaderRetryAfter indicates how many seconds to wait before retrying
	HeaderRetryAfter = "Retry-After"
	// HeaderQueryError carries the error code of query protocol APIs, like SQS.
	HeaderQueryError = "X-Amzn-Query-Error"
	// HeaderErrorType carries the error code of JSON protocol APIs, like ECS.
	HeaderErrorType = "X-Amzn-Errortype"
)

// Transport wraps an http.RoundTripper to rate limit requests. It does not
// retry throttled requests itself; the response is returned to the caller
// and later requests wait for the pause to end.
type Transport struct {
	base              http.RoundTripper
	limiter           *limiter
	defaultRetryAfter time.Duration
}

// NewTransport creates a new rate limiting transport wrapper. maxRPS caps
// the request rate; zero or less means no cap. defaultRetryAfter is the
// pause used when a throttled response carries no Retry-After header
// (defaults to 1 second).
func NewTransport(base http.RoundTripper, maxRPS float64, defaultRetryAfter time.Duration) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if defaultRetryAfter == 0 {
		defaultRetryAfter = time.Second
	}

	limit, burst := rate.Inf, 100
	if maxRPS > 0 {
		limit, burst = rate.Limit(maxRPS), max(1, int(maxRPS))
	}
	return &Transport{
		base: base,
		limiter: &limiter{
			base: rate.NewLimiter(limit, burst),
		},
		defaultRetryAfter: defaultRetryAfter,
	}
}

// NewClient creates a new HTTP client with rate limiting enabled.
// This is a convenience function that wraps the given base transport.
func NewClient(base http.RoundTripper, maxRPS float64) *http.Client {
	return &http.Client{
		Transport: NewTransport(base, maxRPS, time.Second),
	}
}

// RoundTrip implements http.RoundTripper.
func (rt *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	// Wait if we're currently paused due to throttling
	if err := rt.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	rt.processThrottling(ctx, req, resp)
	return resp, nil
}

// processThrottling pauses future requests when resp says the caller is
// being throttled. It reports whether a pause was started.
func (rt *Transport) processThrottling(ctx context.Context, req *http.Request, resp *http.Response) bool {
	if !IsThrottled(resp) {
		return false
	}
	log := clog.FromContext(ctx).With("host", req.URL.Host)

	if v := resp.Header.Get(HeaderRetryAfter); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			log.Warnf("Failed to parse retry-after header: %v", err)
		} else if retryAfter := time.Duration(seconds) * time.Second; retryAfter > 0 {
			log.With("retry_after", retryAfter).Warn("AWS throttled the request, pausing requests")
			rt.limiter.PauseFor(retryAfter)
			return true
		}
	}

	log.With("retry_after", rt.defaultRetryAfter).
		Warn("AWS throttled the request (no retry-after), using default pause")
	rt.limiter.PauseFor(rt.defaultRetryAfter)
	return true
}

// IsThrottled reports whether resp is an AWS throttling response.
func IsThrottled(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusServiceUnavailable:
		return resp.Header.Get(HeaderRetryAfter) != ""
	case http.StatusBadRequest:
		return isThrottlingCode(resp.Header.Get(HeaderQueryError)) ||
			isThrottlingCode(resp.Header.Get(HeaderErrorType))
	}
	return false
}

func isThrottlingCode(v string) bool {
	code, _, _ := strings.Cut(v, ";")
	code, _, _ = strings.Cut(code, ":")
	switch code {
	case "Throttling", "ThrottlingException", "ThrottledException", "RequestThrottled",
		"RequestThrottledException", "TooManyRequestsException", "RequestLimitExceeded",
		"AWS.SimpleQueueService.RequestThrottled":
		return true
	}
	return false
}

// limiter provides a pausable rate limiter that can temporarily block all requests.
type limiter struct {
	base       *rate.Limiter
	mu         sync.Mutex
	pauseUntil time.Time
	pauseCh    chan struct{}
}

// Wait blocks until the limiter allows a request to proceed.
// It respects both the underlying rate limiter and any active pause.
func (l *limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		pauseCh := l.pauseCh
		l.mu.Unlock()
		if pauseCh == nil {
			break
		}

		// The channel closes when the pause ends or is extended.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pauseCh:
		}
	}

	return l.base.Wait(ctx)
}

// PauseFor pauses all requests for the specified duration.
// If already paused, extends the pause only if the new duration is longer.
func (l *limiter) PauseFor(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	until := time.Now().Add(d)

	if !until.After(l.pauseUntil) {
		return
	}
	l.pauseUntil = until

	if l.pauseCh != nil {
		close(l.pauseCh)
	}
	l.pauseCh = make(chan struct{})

	go func(ch chan struct{}) {
		timer := time.NewTimer(d)
		defer timer.Stop()

		<-timer.C

		l.mu.Lock()
		// Only clear if this is still the active pause channel
		if ch == l.pauseCh {
			close(ch)
			l.pauseCh = nil
			l.pauseUntil = time.Time{}
		}
		l.mu.Unlock()
	}(l.pauseCh)
}
