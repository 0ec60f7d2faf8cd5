/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package otelmetric records snapshots as OpenTelemetry gauges, which are
// exported over OTLP by the meter provider.
package otelmetric

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
	"github.com/chainguard-dev/queuewatch/pkg/sink"
)

// Sink owns one gauge per exported value.
type Sink struct {
	available  metric.Float64Gauge
	delayed    metric.Float64Gauge
	notVisible metric.Float64Gauge

	running metric.Float64Gauge
	desired metric.Float64Gauge
	pending metric.Float64Gauge
	backlog metric.Float64Gauge
}

var _ sink.Interface = (*Sink)(nil)

// New creates the sink's instruments on meter.
func New(meter metric.Meter) (*Sink, error) {
	var errs []error
	gauge := func(name, desc string) metric.Float64Gauge {
		g, err := meter.Float64Gauge(name, metric.WithDescription(desc), metric.WithUnit("{message}"))
		errs = append(errs, err)
		return g
	}
	taskGauge := func(name, desc string) metric.Float64Gauge {
		g, err := meter.Float64Gauge(name, metric.WithDescription(desc), metric.WithUnit("{task}"))
		errs = append(errs, err)
		return g
	}

	s := &Sink{
		available:  gauge("sqs.messages.available", "The number of messages available for retrieval from the queue"),
		delayed:    gauge("sqs.messages.delayed", "The number of messages in the queue that are delayed and not available for reading immediately"),
		notVisible: gauge("sqs.messages.not_visible", "The number of messages that are in flight"),
		running:    taskGauge("ecs.service.tasks.running", "The number of tasks in the cluster that are in the RUNNING state"),
		desired:    taskGauge("ecs.service.tasks.desired", "The desired number of instantiations of the task definition to keep running on the service"),
		pending:    taskGauge("ecs.service.tasks.pending", "The number of tasks in the cluster that are in the PENDING state"),
		backlog:    gauge("ecs.service.backlog", "The SQS messages backlog per running task"),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("create otel sink instruments: %w", err)
	}
	return s, nil
}

// Name implements sink.Interface.
func (s *Sink) Name() string { return "otel" }

// OnSnapshot implements sink.Interface. An undefined backlog is not
// recorded.
func (s *Sink) OnSnapshot(ctx context.Context, snap queuestats.Snapshot) error {
	queue := metric.WithAttributes(attribute.String("queue", snap.QueueName))
	s.available.Record(ctx, float64(snap.Depth.Available), queue)
	s.delayed.Record(ctx, float64(snap.Depth.Delayed), queue)
	s.notVisible.Record(ctx, float64(snap.Depth.InFlight), queue)

	c := snap.Consumer
	if c == nil {
		return nil
	}
	svc := metric.WithAttributes(attribute.String("cluster", c.Cluster), attribute.String("service", c.Service))
	s.running.Record(ctx, float64(c.Running), svc)
	s.desired.Record(ctx, float64(c.Desired), svc)
	s.pending.Record(ctx, float64(c.Pending), svc)

	if backlog, ok := snap.BacklogPerWorker(); ok {
		s.backlog.Record(ctx, backlog, metric.WithAttributes(
			attribute.String("queue", snap.QueueName),
			attribute.String("cluster", c.Cluster),
			attribute.String("service", c.Service),
		))
	}
	return nil
}

// NewProvider returns a meter provider that pushes to an OTLP/gRPC
// collector at endpoint every interval. Callers own its Shutdown.
func NewProvider(ctx context.Context, endpoint string, interval time.Duration) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
		otlpmetricgrpc.WithTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String("queuewatch")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	), nil
}
