/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package profiler

import (
	"context"
	"fmt"

	"cloud.google.com/go/profiler"
	"github.com/chainguard-dev/clog"
)

// Config selects whether and how to run the Cloud Profiler agent.
type Config struct {
	Enabled bool
	Service string
	Version string
}

var start = profiler.Start

// SetupProfiler starts the profiler agent when cfg.Enabled is set.
func SetupProfiler(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		return nil
	}
	if err := start(profiler.Config{Service: cfg.Service, ServiceVersion: cfg.Version}); err != nil {
		return fmt.Errorf("failed to start profiler: %w", err)
	}
	clog.InfoContextf(ctx, "Started the profiler for %s", cfg.Service)
	return nil
}
