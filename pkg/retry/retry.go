/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/jonboulle/clockwork"
)

// ErrExhausted matches every error returned by Do after the last attempt
// failed. The concrete type is *ExhaustedError.
var ErrExhausted = errors.New("retry attempts exhausted")

// ExhaustedError is returned when every attempt of an operation failed.
type ExhaustedError struct {
	Label    string
	Attempts int
	// Err is the cause of the last failed attempt.
	Err error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Label, e.Attempts, e.Err)
}

// Is makes errors.Is(err, ErrExhausted) hold.
func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

func (e *ExhaustedError) Unwrap() error { return e.Err }

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// as soon as it sees it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Strategy computes the delay before a retry.
type Strategy interface {
	// Delay returns how long to wait after failed attempt n (1-indexed).
	Delay(attempt int) time.Duration
}

// Linear waits Step * attempt, capped at Max when Max is positive.
type Linear struct {
	Step time.Duration
	Max  time.Duration
}

// Delay implements Strategy.
func (l Linear) Delay(attempt int) time.Duration {
	d := l.Step * time.Duration(attempt)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// Event describes a failed attempt that is about to be retried.
type Event struct {
	Label       string
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	Err         error
}

// Policy retries a fallible operation a bounded number of times.
// The zero value runs the operation exactly once. A Policy holds no state
// between calls and is safe for concurrent use.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Backoff computes the wait between attempts. Nil means no wait.
	Backoff Strategy

	// OnRetry, when set, is called before each wait.
	OnRetry func(context.Context, Event)

	// Clock is used for waits. Nil means the real clock.
	Clock clockwork.Clock
}

// NewLinear returns a Policy of maxAttempts attempts that waits
// attempt * multiplier between them.
func NewLinear(maxAttempts int, multiplier time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Backoff:     Linear{Step: multiplier},
	}
}

// Do runs op until it succeeds, returns a Permanent error, ctx is done, or
// MaxAttempts attempts have failed. The label identifies the operation in
// logs so that concurrent retries can be told apart.
func (p Policy) Do(ctx context.Context, label string, op func(context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt >= maxAttempts {
			return &ExhaustedError{Label: label, Attempts: attempt, Err: err}
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff.Delay(attempt)
		}
		clog.FromContext(ctx).With("label", label, "attempt", attempt, "max_attempts", maxAttempts).
			Warnf("%s failed, retrying in %v: %v", label, delay, err)
		if p.OnRetry != nil {
			p.OnRetry(ctx, Event{
				Label:       label,
				Attempt:     attempt,
				MaxAttempts: maxAttempts,
				Delay:       delay,
				Err:         err,
			})
		}
		if delay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(delay):
		}
	}
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, label string, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, label, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
