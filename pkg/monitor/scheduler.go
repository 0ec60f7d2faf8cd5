/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package monitor

import (
	"context"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
	"github.com/chainguard-dev/queuewatch/pkg/sink"
)

// Scheduler polls a fixed set of queues on an interval and publishes the
// snapshots of each tick to the sinks. Only one tick is in flight at a
// time.
type Scheduler struct {
	Queues    []queuestats.ResolvedQueue
	Collector *Collector
	Sinks     *sink.Fanout

	// Interval is the pause between the end of one tick and the start of
	// the next.
	Interval time.Duration

	// PublishTimeout bounds the delivery of one snapshot to all sinks.
	// Zero means unbounded.
	PublishTimeout time.Duration

	// Clock is used for the pause. Nil means the real clock.
	Clock clockwork.Clock

	Metrics *Metrics
}

// Tick collects every queue concurrently, waits for all reads, then
// publishes the snapshots concurrently and waits for delivery. It returns
// the number of snapshots published.
func (s *Scheduler) Tick(ctx context.Context) int {
	start := time.Now()
	ctx, span := otel.Tracer("queuewatch").Start(ctx, "queuewatch.tick",
		trace.WithAttributes(attribute.Int("queuewatch.queues", len(s.Queues))))
	defer span.End()

	snaps := make([]queuestats.Snapshot, len(s.Queues))
	ok := make([]bool, len(s.Queues))
	var collect errgroup.Group
	for i, rq := range s.Queues {
		collect.Go(func() error {
			snaps[i], ok[i] = s.Collector.Collect(ctx, rq)
			return nil
		})
	}
	_ = collect.Wait()

	published := 0
	var publish errgroup.Group
	for i, snap := range snaps {
		if !ok[i] {
			continue
		}
		published++
		publish.Go(func() error {
			ctx, cancel := s.publishContext(ctx)
			defer cancel()
			s.Sinks.Publish(ctx, snap)
			return nil
		})
	}
	_ = publish.Wait()

	span.SetAttributes(attribute.Int("queuewatch.snapshots", published))
	s.Metrics.observeTick(time.Since(start))
	clog.FromContext(ctx).Debugf("Tick published %d of %d snapshots in %v", published, len(s.Queues), time.Since(start))
	return published
}

func (s *Scheduler) publishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if s.PublishTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.PublishTimeout)
}

// Run ticks until ctx is done, pausing Interval between ticks. A tick that
// has started always completes. Run returns nil once ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	clock := s.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		s.Tick(ctx)

		select {
		case <-ctx.Done():
			clog.InfoContextf(ctx, "Stopping the polling loop: %v", context.Cause(ctx))
			return nil
		case <-clock.After(s.Interval):
		}
	}
}
