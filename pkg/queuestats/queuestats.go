/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package queuestats

import (
	"strings"
	"time"
)

// QueueConfig is the static configuration of a monitored queue.
type QueueConfig struct {
	// Name is the name of the queue, as known to the queue service.
	Name string `yaml:"name"`

	// ConsumerCluster and ConsumerService identify the service that
	// consumes the queue. They are set together or not at all.
	ConsumerCluster string `yaml:"cluster,omitempty"`
	ConsumerService string `yaml:"service,omitempty"`
}

// HasConsumer reports whether both consumer fields are set. A field holding
// only whitespace counts as unset, so {" ", "svc"} has no consumer.
func (c QueueConfig) HasConsumer() bool {
	return strings.TrimSpace(c.ConsumerCluster) != "" && strings.TrimSpace(c.ConsumerService) != ""
}

// ResolvedQueue is a QueueConfig paired with the address the queue service
// resolved for it. It is produced once at startup and never mutated.
type ResolvedQueue struct {
	Config QueueConfig
	URL    string
}

// Depth holds the approximate message counts of a queue.
type Depth struct {
	Available int64
	Delayed   int64
	InFlight  int64
}

// ConsumerStats holds the task counts of the service consuming a queue.
type ConsumerStats struct {
	Cluster string
	Service string
	Running int64
	Desired int64
	Pending int64
}

// Snapshot is the immutable record of one queue's state on one tick.
// Sinks receive snapshots by value and read them concurrently.
type Snapshot struct {
	QueueName string
	QueueURL  string
	Depth     Depth
	// Consumer is nil unless the queue has a consumer configured and its
	// service was described successfully on this tick.
	Consumer  *ConsumerStats
	Timestamp time.Time
}

// HasConsumer reports whether the snapshot carries consumer stats.
func (s Snapshot) HasConsumer() bool {
	return s.Consumer != nil
}

// BacklogPerWorker returns the number of available messages per running
// consumer task. The second result is false when the value is undefined:
// there is no consumer block, or no task is running.
func (s Snapshot) BacklogPerWorker() (float64, bool) {
	if s.Consumer == nil || s.Consumer.Running <= 0 {
		return 0, false
	}
	return float64(s.Depth.Available) / float64(s.Consumer.Running), true
}

// Build combines the result of a depth read and, optionally, a fleet read
// into a Snapshot.
//
// A failed depth read yields no snapshot. A failed fleet read for a queue
// with a consumer yields a snapshot without the consumer block. The fleet
// result is ignored for queues without a consumer.
func Build(rq ResolvedQueue, depth Depth, depthErr error, consumer ConsumerStats, fleetErr error, now time.Time) (Snapshot, bool) {
	if depthErr != nil {
		return Snapshot{}, false
	}
	snap := Snapshot{
		QueueName: rq.Config.Name,
		QueueURL:  rq.URL,
		Depth:     depth,
		Timestamp: now,
	}
	if rq.Config.HasConsumer() && fleetErr == nil {
		cs := consumer
		cs.Cluster = rq.Config.ConsumerCluster
		cs.Service = rq.Config.ConsumerService
		snap.Consumer = &cs
	}
	return snap, true
}
