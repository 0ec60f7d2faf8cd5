/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package sink

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
)

// Interface is implemented by metric sinks. OnSnapshot is called once per
// snapshot per tick, possibly concurrently for different queues.
type Interface interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// OnSnapshot renders the snapshot into the sink's representation.
	OnSnapshot(ctx context.Context, snap queuestats.Snapshot) error
}

// Func is a convenience wrapper for turning a function into an Interface.
type Func func(context.Context, queuestats.Snapshot) error

// Named returns an Interface with the given name that calls f.
func (f Func) Named(name string) Interface {
	return &funcSink{name: name, f: f}
}

type funcSink struct {
	name string
	f    Func
}

func (s *funcSink) Name() string { return s.name }

func (s *funcSink) OnSnapshot(ctx context.Context, snap queuestats.Snapshot) error {
	return s.f(ctx, snap)
}

// Fanout delivers every snapshot to a fixed list of sinks. A failing sink
// never affects the others or the caller.
type Fanout struct {
	sinks    []Interface
	failures *prometheus.CounterVec
}

// NewFanout returns a Fanout over sinks, in order. Delivery failures are
// counted in queuewatch_sink_failures_total on reg, when reg is not nil.
func NewFanout(reg prometheus.Registerer, sinks ...Interface) (*Fanout, error) {
	failures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queuewatch_sink_failures_total",
			Help: "The number of snapshots a sink failed to accept.",
		},
		[]string{"sink"},
	)
	if reg != nil {
		if err := reg.Register(failures); err != nil {
			return nil, fmt.Errorf("register sink failure counter: %w", err)
		}
	}
	return &Fanout{sinks: sinks, failures: failures}, nil
}

// Sinks returns the names of the configured sinks.
func (f *Fanout) Sinks() []string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Publish delivers snap to every sink in order. Errors and panics are
// logged and counted, not returned.
func (f *Fanout) Publish(ctx context.Context, snap queuestats.Snapshot) {
	log := clog.FromContext(ctx).With("queue", snap.QueueName)
	if snap.Consumer != nil {
		log = log.With("cluster", snap.Consumer.Cluster, "service", snap.Consumer.Service)
	}
	for _, s := range f.sinks {
		if err := deliver(ctx, s, snap); err != nil {
			f.failures.WithLabelValues(s.Name()).Inc()
			if ctx.Err() != nil {
				log.Debugf("Sink %s interrupted: %v", s.Name(), err)
				continue
			}
			log.With("sink", s.Name()).Errorf("Error sending metrics to %s: %v", s.Name(), err)
		}
	}
}

func deliver(ctx context.Context, s Interface, snap queuestats.Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink %s panicked: %v", s.Name(), r)
		}
	}()
	return s.OnSnapshot(ctx, snap)
}
