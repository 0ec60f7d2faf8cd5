/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"github.com/chainguard-dev/queuewatch/pkg/queue"
	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
	"github.com/chainguard-dev/queuewatch/pkg/retry"
)

// ErrNoQueues is returned by Discover when no configured queue resolved.
var ErrNoQueues = errors.New("no queues are available for monitoring")

// Discover resolves the address of every configured queue. Each resolution
// is retried under policy, labelled with the queue name. Queues that never
// resolve are logged and dropped; the rest are returned in configured order.
//
// Discover returns ErrNoQueues when nothing resolved, and the context error
// if ctx ends first.
func Discover(ctx context.Context, r queue.Reader, policy retry.Policy, configs []queuestats.QueueConfig) ([]queuestats.ResolvedQueue, error) {
	log := clog.FromContext(ctx)

	seen := make(map[string]struct{}, len(configs))
	unique := make([]queuestats.QueueConfig, 0, len(configs))
	for _, qc := range configs {
		if _, ok := seen[qc.Name]; ok {
			log.Warnf("queue %q is configured more than once, using the first entry", qc.Name)
			continue
		}
		seen[qc.Name] = struct{}{}
		unique = append(unique, qc)
	}

	urls := make([]string, len(unique))
	var eg errgroup.Group
	for i, qc := range unique {
		eg.Go(func() error {
			ctx := clog.WithLogger(ctx, log.With("queue", qc.Name))
			url, err := retry.Value(ctx, policy, qc.Name, func(ctx context.Context) (string, error) {
				if strings.TrimSpace(qc.Name) == "" {
					return "", retry.Permanent(errors.New("queue name is empty"))
				}
				return r.Resolve(ctx, qc.Name)
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				clog.WarnContextf(ctx, "Unable to get queue URL for %q, dropping it: %v", qc.Name, err)
				return nil
			}
			clog.InfoContextf(ctx, "Resolved queue %q to %s", qc.Name, url)
			urls[i] = url
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("discover() = %w", err)
	}

	resolved := make([]queuestats.ResolvedQueue, 0, len(unique))
	for i, qc := range unique {
		if urls[i] == "" {
			continue
		}
		resolved = append(resolved, queuestats.ResolvedQueue{Config: qc, URL: urls[i]})
	}
	if len(resolved) == 0 {
		return nil, ErrNoQueues
	}
	return resolved, nil
}
