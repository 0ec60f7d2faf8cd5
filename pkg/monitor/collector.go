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

	"github.com/chainguard-dev/queuewatch/pkg/fleet"
	"github.com/chainguard-dev/queuewatch/pkg/queue"
	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
	"github.com/chainguard-dev/queuewatch/pkg/retry"
)

// Collector reads the state of one queue and its consumer.
type Collector struct {
	Queues queue.Reader
	Fleet  fleet.Reader

	// Policy wraps every remote read. The zero value reads once.
	Policy retry.Policy

	// CallTimeout bounds every remote call. Zero means unbounded.
	CallTimeout time.Duration

	// Clock stamps snapshots. Nil means the real clock.
	Clock clockwork.Clock

	Metrics *Metrics
}

// Collect reads the depth of rq and, when it has a consumer, the task
// counts of its service. The reads run concurrently. Remote calls are
// detached from ctx cancellation so that they finish on their own, but
// retry waits stop when ctx is done.
//
// The second result is false when the depth read failed.
func (c *Collector) Collect(ctx context.Context, rq queuestats.ResolvedQueue) (queuestats.Snapshot, bool) {
	name := rq.Config.Name
	log := clog.FromContext(ctx).With("queue", name)
	if rq.Config.HasConsumer() {
		log = log.With("cluster", rq.Config.ConsumerCluster, "service", rq.Config.ConsumerService)
	}
	ctx = clog.WithLogger(ctx, log)

	var (
		consumer queuestats.ConsumerStats
		fleetErr error
		done     = make(chan struct{})
	)
	go func() {
		defer close(done)
		if !rq.Config.HasConsumer() {
			return
		}
		consumer, fleetErr = retry.Value(ctx, c.Policy, name+"/fleet", func(ctx context.Context) (queuestats.ConsumerStats, error) {
			ctx, cancel := c.detach(ctx)
			defer cancel()
			return c.Fleet.Describe(ctx, rq.Config.ConsumerCluster, rq.Config.ConsumerService)
		})
	}()

	depth, depthErr := retry.Value(ctx, c.Policy, name+"/depth", func(ctx context.Context) (queuestats.Depth, error) {
		ctx, cancel := c.detach(ctx)
		defer cancel()
		return c.Queues.Depth(ctx, rq.URL)
	})
	<-done

	if depthErr != nil {
		c.Metrics.collectError(name, "queue")
		if ctx.Err() != nil {
			log.Debugf("Depth read interrupted: %v", depthErr)
		} else {
			log.Errorf("Error getting queue attributes for %s: %v", name, depthErr)
		}
	}
	if fleetErr != nil {
		c.Metrics.collectError(name, "fleet")
		if ctx.Err() != nil {
			log.Debugf("Service read interrupted: %v", fleetErr)
		} else {
			log.Errorf("Error getting service stats for %s/%s: %v", rq.Config.ConsumerCluster, rq.Config.ConsumerService, fleetErr)
		}
	}

	return queuestats.Build(rq, depth, depthErr, consumer, fleetErr, c.now())
}

func (c *Collector) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if c.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.CallTimeout)
}

func (c *Collector) now() time.Time {
	if c.Clock == nil {
		return time.Now()
	}
	return c.Clock.Now()
}
