/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package httpratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"
)

type testRT struct {
	responses []*http.Response
	mu        sync.Mutex
	callCount int
}

func (t *testRT) RoundTrip(_ *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.callCount >= len(t.responses) {
		return nil, fmt.Errorf("no more responses")
	}
	resp := t.responses[t.callCount]
	t.callCount++
	return resp, nil
}

func TestIsThrottled(t *testing.T) {
	for _, c := range []struct {
		name   string
		status int
		header http.Header
		want   bool
	}{
		{"ok", http.StatusOK, nil, false},
		{"too many requests", http.StatusTooManyRequests, nil, true},
		{"unavailable with retry-after", http.StatusServiceUnavailable, http.Header{HeaderRetryAfter: {"1"}}, true},
		{"unavailable", http.StatusServiceUnavailable, nil, false},
		{"sqs throttled", http.StatusBadRequest, http.Header{HeaderQueryError: {"AWS.SimpleQueueService.RequestThrottled;Sender"}}, true},
		{"ecs throttled", http.StatusBadRequest, http.Header{HeaderErrorType: {"ThrottlingException"}}, true},
		{"cloudwatch throttled", http.StatusBadRequest, http.Header{HeaderQueryError: {"Throttling;Sender"}}, true},
		{"queue missing", http.StatusBadRequest, http.Header{HeaderQueryError: {"AWS.SimpleQueueService.NonExistentQueue;Sender"}}, false},
	} {
		t.Run(c.name, func(t *testing.T) {
			if got := IsThrottled(&http.Response{StatusCode: c.status, Header: c.header}); got != c.want {
				t.Errorf("IsThrottled() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestTransport_PausesAfterThrottling(t *testing.T) {
	defaultRetryAfter := 500 * time.Millisecond

	tests := []struct {
		name         string
		first        *http.Response
		expectedWait time.Duration
	}{{
		name:         "No throttling",
		first:        &http.Response{StatusCode: http.StatusOK},
		expectedWait: 0,
	}, {
		name: "Throttled with retry-after",
		first: &http.Response{
			StatusCode: http.StatusTooManyRequests,
			Header:     http.Header{HeaderRetryAfter: {"1"}},
		},
		expectedWait: 1 * time.Second,
	}, {
		name: "Throttled without headers uses the default retry-after",
		first: &http.Response{
			StatusCode: http.StatusBadRequest,
			Header:     http.Header{HeaderErrorType: {"ThrottlingException"}},
		},
		expectedWait: defaultRetryAfter,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			trt := &testRT{responses: []*http.Response{tt.first, {StatusCode: http.StatusOK}}}
			client := &http.Client{Transport: NewTransport(trt, 0, defaultRetryAfter)}

			do := func() *http.Response {
				req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://sqs.us-east-1.amazonaws.com/", nil)
				if err != nil {
					t.Fatalf("failed to create request: %v", err)
				}
				resp, err := client.Do(req)
				if err != nil {
					t.Fatalf("failed to make request: %v", err)
				}
				return resp
			}

			// The throttled response goes back to the caller.
			if resp := do(); resp.StatusCode != tt.first.StatusCode {
				t.Fatalf("expected status %d, got %d", tt.first.StatusCode, resp.StatusCode)
			}

			start := time.Now()
			if resp := do(); resp.StatusCode != http.StatusOK {
				t.Fatalf("expected status 200, got %d", resp.StatusCode)
			}
			elapsed := time.Since(start)

			if trt.callCount != 2 {
				t.Fatalf("expected 2 calls, got %d", trt.callCount)
			}

			// Apply some buffer to account for timing variations
			if tt.expectedWait == 0 {
				if elapsed > 100*time.Millisecond {
					t.Fatalf("expected no significant wait, but got %s", elapsed)
				}
			} else {
				buffer := tt.expectedWait / 4 // 25% buffer
				minExpectedWait := tt.expectedWait - buffer
				maxExpectedWait := tt.expectedWait + buffer

				if elapsed < minExpectedWait || elapsed > maxExpectedWait {
					t.Fatalf("expected wait time between %s and %s, got %s", minExpectedWait, maxExpectedWait, elapsed)
				}
			}
		})
	}
}

func TestTransport_MaxRPS(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	responses := make([]*http.Response, 0, 4)
	for range 4 {
		responses = append(responses, &http.Response{StatusCode: http.StatusOK})
	}
	trt := &testRT{responses: responses}
	// Burst of 2, then one request every 500ms.
	client := &http.Client{Transport: NewTransport(trt, 2, time.Second)}

	start := time.Now()
	for i := range responses {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://ecs.us-east-1.amazonaws.com/", nil)
		if err != nil {
			t.Fatalf("failed to create request: %v", err)
		}
		if _, err := client.Do(req); err != nil {
			t.Fatalf("failed to make request %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 750*time.Millisecond {
		t.Errorf("4 requests at 2 rps took %s, want at least 750ms", elapsed)
	}
}

func TestTransport_CancelDuringPause(t *testing.T) {
	trt := &testRT{responses: []*http.Response{{StatusCode: http.StatusOK}}}
	transport := NewTransport(trt, 0, time.Minute)
	transport.limiter.PauseFor(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://sqs.us-east-1.amazonaws.com/", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if _, err := transport.RoundTrip(req); err == nil {
		t.Fatal("expected an error while paused")
	}
	if trt.callCount != 0 {
		t.Errorf("expected no calls while paused, got %d", trt.callCount)
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(nil, 0)
	if client == nil {
		t.Fatal("expected non-nil client")
	}
	transport, ok := client.Transport.(*Transport)
	if !ok {
		t.Fatal("expected transport to be *Transport")
	}
	if transport.defaultRetryAfter != time.Second {
		t.Fatalf("expected default retry after to be 1 second, got %v", transport.defaultRetryAfter)
	}
}

func TestLimiter_ConcurrentPause(t *testing.T) {
	l := &limiter{}

	var wg sync.WaitGroup
	pauseDurations := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 50 * time.Millisecond}

	// Pause concurrently with different durations
	for _, d := range pauseDurations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.PauseFor(d)
		}()
	}

	wg.Wait()

	// The longest pause should win
	expectedPauseUntil := time.Now().Add(200 * time.Millisecond)
	l.mu.Lock()
	actualPauseUntil := l.pauseUntil
	l.mu.Unlock()

	// Allow some timing variance
	diff := actualPauseUntil.Sub(expectedPauseUntil)
	if diff < -50*time.Millisecond || diff > 50*time.Millisecond {
		t.Fatalf("expected pause until around %v, got %v (diff: %v)", expectedPauseUntil, actualPauseUntil, diff)
	}
}
