/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package prom renders snapshots as Prometheus gauges, for scraping from
// the metrics endpoint.
package prom

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
	"github.com/chainguard-dev/queuewatch/pkg/sink"
)

// Sink owns one gauge vector per exported value.
type Sink struct {
	available  *prometheus.GaugeVec
	delayed    *prometheus.GaugeVec
	notVisible *prometheus.GaugeVec

	running *prometheus.GaugeVec
	desired *prometheus.GaugeVec
	pending *prometheus.GaugeVec
	backlog *prometheus.GaugeVec

	mu sync.Mutex
	// consumers holds the cluster and service last exported per queue.
	consumers map[string]consumerKey
}

type consumerKey struct{ cluster, service string }

var _ sink.Interface = (*Sink)(nil)

// New creates the sink's gauges and registers them on reg.
func New(reg prometheus.Registerer) (*Sink, error) {
	queueGauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{"queue"})
	}
	serviceGauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{"cluster", "service"})
	}

	s := &Sink{
		available: queueGauge("sqs_available_messages_count",
			"The number of messages available for retrieval from the queue"),
		delayed: queueGauge("sqs_delayed_messages_count",
			"The number of messages in the queue that are delayed and not available for reading immediately"),
		notVisible: queueGauge("sqs_not_visible_messages_count",
			"The number of messages that are in flight"),
		running: serviceGauge("ecs_service_running_count",
			"The number of tasks in the cluster that are in the RUNNING state"),
		desired: serviceGauge("ecs_service_desired_count",
			"The desired number of instantiations of the task definition to keep running on the service"),
		pending: serviceGauge("ecs_service_pending_count",
			"The number of tasks in the cluster that are in the PENDING state"),
		backlog: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ecs_service_backlog_count",
			Help: "The SQS messages backlog per running task",
		}, []string{"queue", "cluster", "service"}),
		consumers: map[string]consumerKey{},
	}

	for _, c := range []prometheus.Collector{
		s.available, s.delayed, s.notVisible,
		s.running, s.desired, s.pending, s.backlog,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register prometheus sink gauges: %w", err)
		}
	}
	return s, nil
}

// Name implements sink.Interface.
func (s *Sink) Name() string { return "prometheus" }

// OnSnapshot implements sink.Interface. An undefined backlog removes the
// backlog series for the queue rather than exporting a stale value. When
// the snapshot carries no consumer block, the task count series last
// exported for the queue are removed too.
func (s *Sink) OnSnapshot(_ context.Context, snap queuestats.Snapshot) error {
	s.available.WithLabelValues(snap.QueueName).Set(float64(snap.Depth.Available))
	s.delayed.WithLabelValues(snap.QueueName).Set(float64(snap.Depth.Delayed))
	s.notVisible.WithLabelValues(snap.QueueName).Set(float64(snap.Depth.InFlight))

	s.mu.Lock()
	defer s.mu.Unlock()
	last, seen := s.consumers[snap.QueueName]

	c := snap.Consumer
	if c == nil {
		if seen {
			s.forget(snap.QueueName, last)
		}
		return nil
	}
	key := consumerKey{cluster: c.Cluster, service: c.Service}
	if seen && last != key {
		s.forget(snap.QueueName, last)
	}
	s.consumers[snap.QueueName] = key

	s.running.WithLabelValues(c.Cluster, c.Service).Set(float64(c.Running))
	s.desired.WithLabelValues(c.Cluster, c.Service).Set(float64(c.Desired))
	s.pending.WithLabelValues(c.Cluster, c.Service).Set(float64(c.Pending))

	if backlog, ok := snap.BacklogPerWorker(); ok {
		s.backlog.WithLabelValues(snap.QueueName, c.Cluster, c.Service).Set(backlog)
	} else {
		s.backlog.DeleteLabelValues(snap.QueueName, c.Cluster, c.Service)
	}
	return nil
}

// forget drops every consumer series exported for queue. s.mu must be held.
func (s *Sink) forget(queue string, k consumerKey) {
	s.backlog.DeleteLabelValues(queue, k.cluster, k.service)
	s.running.DeleteLabelValues(k.cluster, k.service)
	s.desired.DeleteLabelValues(k.cluster, k.service)
	s.pending.DeleteLabelValues(k.cluster, k.service)
	delete(s.consumers, queue)
}
