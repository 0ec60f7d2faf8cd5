/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package sink

import (
	"context"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/sony/gobreaker"

	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
)

type breakerSink struct {
	Interface
	cb *gobreaker.CircuitBreaker
}

// WithCircuitBreaker wraps s so that, after threshold consecutive
// failures, it is not called for cooldown and fails fast with
// gobreaker.ErrOpenState instead. A threshold below one disables the breaker.
func WithCircuitBreaker(ctx context.Context, s Interface, threshold int, cooldown time.Duration) Interface {
	if threshold < 1 {
		return s
	}
	log := clog.FromContext(ctx)
	return &breakerSink{
		Interface: s,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        s.Name(),
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.With("sink", name, "from", from.String(), "to", to.String()).
					Warnf("Sink %s circuit breaker is now %s", name, to)
			},
		}),
	}
}

func (b *breakerSink) OnSnapshot(ctx context.Context, snap queuestats.Snapshot) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.Interface.OnSnapshot(ctx, snap)
	})
	return err
}
