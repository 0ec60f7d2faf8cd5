/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package cloudwatch pushes the backlog-per-worker of each consumer-bound
// queue to Amazon CloudWatch, where it can drive service autoscaling.
package cloudwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/chainguard-dev/clog"

	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
	"github.com/chainguard-dev/queuewatch/pkg/sink"
)

// MetricName is the name of the pushed metric.
const MetricName = "EcsServiceBacklog"

// API is the subset of the CloudWatch client used by Sink.
type API interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Sink pushes one EcsServiceBacklog point per snapshot.
type Sink struct {
	client    API
	namespace string
}

var _ sink.Interface = (*Sink)(nil)

// New returns a Sink that writes to namespace.
func New(client API, namespace string) *Sink {
	return &Sink{client: client, namespace: namespace}
}

// Name implements sink.Interface.
func (s *Sink) Name() string { return "cloudwatch" }

// OnSnapshot implements sink.Interface. Snapshots without consumer stats,
// or with no running task, have no backlog and push nothing.
func (s *Sink) OnSnapshot(ctx context.Context, snap queuestats.Snapshot) error {
	backlog, ok := snap.BacklogPerWorker()
	if !ok {
		return nil
	}

	ts := snap.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	in := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(s.namespace),
		MetricData: []types.MetricDatum{{
			MetricName: aws.String(MetricName),
			Value:      aws.Float64(backlog),
			Timestamp:  aws.Time(ts),
			Unit:       types.StandardUnitCount,
			Dimensions: []types.Dimension{
				{Name: aws.String("Queue"), Value: aws.String(snap.QueueName)},
				{Name: aws.String("Cluster"), Value: aws.String(snap.Consumer.Cluster)},
				{Name: aws.String("Service"), Value: aws.String(snap.Consumer.Service)},
			},
		}},
	}

	start := time.Now()
	if _, err := s.client.PutMetricData(ctx, in); err != nil {
		return fmt.Errorf("PutMetricData(%s) = %w", s.namespace, err)
	}
	clog.FromContext(ctx).Debugf("Sent %s for %s to CloudWatch in %v", MetricName, snap.QueueName, time.Since(start))
	return nil
}
