/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"

	"github.com/chainguard-dev/queuewatch/pkg/discovery"
	"github.com/chainguard-dev/queuewatch/pkg/queue"
	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
	"github.com/chainguard-dev/queuewatch/pkg/retry"
)

// Service discovers the configured queues once and then polls them.
type Service struct {
	Configs   []queuestats.QueueConfig
	Resolver  queue.Reader
	Discovery retry.Policy
	Scheduler *Scheduler

	// Shutdown is called when there is nothing to monitor, to request an
	// orderly exit of the process.
	Shutdown context.CancelFunc
}

// Run resolves the queues and runs the scheduler over those that resolved.
// When none did, it requests shutdown and returns discovery.ErrNoQueues
// without ticking.
func (s *Service) Run(ctx context.Context) error {
	resolved, err := discovery.Discover(ctx, s.Resolver, s.Discovery, s.Configs)
	switch {
	case errors.Is(err, discovery.ErrNoQueues):
		clog.ErrorContextf(ctx, "None of the %d configured queues could be resolved, shutting down", len(s.Configs))
		if s.Shutdown != nil {
			s.Shutdown()
		}
		return err
	case err != nil:
		return fmt.Errorf("run() = %w", err)
	}

	s.Scheduler.Queues = resolved
	s.Scheduler.Metrics.setMonitored(len(resolved))
	clog.InfoContextf(ctx, "Monitoring %d of %d queues every %v", len(resolved), len(s.Configs), s.Scheduler.Interval)
	return s.Scheduler.Run(ctx)
}
