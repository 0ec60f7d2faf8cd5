/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package otelmetric

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() = %v", err)
	}
	return rm
}

func gaugePoints(t *testing.T, rm metricdata.ResourceMetrics, name string) []metricdata.DataPoint[float64] {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			g, ok := m.Data.(metricdata.Gauge[float64])
			if !ok {
				t.Fatalf("%s data = %T, want Gauge[float64]", name, m.Data)
			}
			return g.DataPoints
		}
	}
	return nil
}

func valueFor(points []metricdata.DataPoint[float64], kv ...attribute.KeyValue) (float64, bool) {
	want := attribute.NewSet(kv...)
	for _, p := range points {
		if p.Attributes.Equals(&want) {
			return p.Value, true
		}
	}
	return 0, false
}

func TestOnSnapshot(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	s, err := New(mp.Meter("test"))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	if err := s.OnSnapshot(ctx, queuestats.Snapshot{
		QueueName: "orders",
		Depth:     queuestats.Depth{Available: 12, Delayed: 1, InFlight: 3},
		Consumer:  &queuestats.ConsumerStats{Cluster: "prod", Service: "orders-worker", Running: 4, Desired: 4},
	}); err != nil {
		t.Fatalf("OnSnapshot() = %v", err)
	}
	if err := s.OnSnapshot(ctx, queuestats.Snapshot{
		QueueName: "idle",
		Depth:     queuestats.Depth{Available: 7},
		Consumer:  &queuestats.ConsumerStats{Cluster: "prod", Service: "idle-worker"},
	}); err != nil {
		t.Fatalf("OnSnapshot() = %v", err)
	}

	rm := collect(t, reader)

	available := gaugePoints(t, rm, "sqs.messages.available")
	if got, ok := valueFor(available, attribute.String("queue", "orders")); !ok || got != 12 {
		t.Errorf("sqs.messages.available{queue=orders} = %v, %v; want 12", got, ok)
	}
	if got, ok := valueFor(available, attribute.String("queue", "idle")); !ok || got != 7 {
		t.Errorf("sqs.messages.available{queue=idle} = %v, %v; want 7", got, ok)
	}

	running := gaugePoints(t, rm, "ecs.service.tasks.running")
	if got, ok := valueFor(running, attribute.String("cluster", "prod"), attribute.String("service", "orders-worker")); !ok || got != 4 {
		t.Errorf("ecs.service.tasks.running{orders-worker} = %v, %v; want 4", got, ok)
	}

	backlog := gaugePoints(t, rm, "ecs.service.backlog")
	if len(backlog) != 1 {
		t.Fatalf("ecs.service.backlog points = %d, want 1", len(backlog))
	}
	if got, ok := valueFor(backlog,
		attribute.String("queue", "orders"),
		attribute.String("cluster", "prod"),
		attribute.String("service", "orders-worker"),
	); !ok || got != 3 {
		t.Errorf("ecs.service.backlog{orders} = %v, %v; want 3", got, ok)
	}
}

func TestOnSnapshotWithoutConsumer(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	s, err := New(mp.Meter("test"))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	if err := s.OnSnapshot(ctx, queuestats.Snapshot{
		QueueName: "audit",
		Depth:     queuestats.Depth{Available: 2},
	}); err != nil {
		t.Fatalf("OnSnapshot() = %v", err)
	}

	rm := collect(t, reader)
	for _, name := range []string{"ecs.service.tasks.running", "ecs.service.backlog"} {
		if pts := gaugePoints(t, rm, name); len(pts) != 0 {
			t.Errorf("%s points = %d, want 0", name, len(pts))
		}
	}
	if got, ok := valueFor(gaugePoints(t, rm, "sqs.messages.delayed"), attribute.String("queue", "audit")); !ok || got != 0 {
		t.Errorf("sqs.messages.delayed{audit} = %v, %v; want 0", got, ok)
	}
}
