/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chainguard-dev/clog/slogtest"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"

	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
)

type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) sink(name string) Interface {
	return Func(func(_ context.Context, snap queuestats.Snapshot) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.names = append(r.names, snap.QueueName)
		return nil
	}).Named(name)
}

func TestFanoutIsolatesFailures(t *testing.T) {
	ctx := slogtest.Context(t)
	reg := prometheus.NewRegistry()

	good := &recorder{}
	failing := Func(func(context.Context, queuestats.Snapshot) error {
		return errors.New("backend unreachable")
	}).Named("failing")
	panicking := Func(func(context.Context, queuestats.Snapshot) error {
		panic("nil map")
	}).Named("panicking")

	f, err := NewFanout(reg, failing, panicking, good.sink("good"))
	if err != nil {
		t.Fatalf("NewFanout() = %v", err)
	}
	if diff := cmp.Diff([]string{"failing", "panicking", "good"}, f.Sinks()); diff != "" {
		t.Errorf("Sinks() (-want +got):\n%s", diff)
	}

	for range 5 {
		f.Publish(ctx, queuestats.Snapshot{QueueName: "orders"})
		f.Publish(ctx, queuestats.Snapshot{
			QueueName: "billing",
			Consumer:  &queuestats.ConsumerStats{Cluster: "prod", Service: "billing-worker"},
		})
	}

	if got := len(good.names); got != 10 {
		t.Errorf("good sink received %d snapshots, want 10", got)
	}
	if got := testutil.ToFloat64(f.failures.WithLabelValues("failing")); got != 10 {
		t.Errorf("failures{sink=failing} = %v, want 10", got)
	}
	if got := testutil.ToFloat64(f.failures.WithLabelValues("panicking")); got != 10 {
		t.Errorf("failures{sink=panicking} = %v, want 10", got)
	}
	if got := testutil.ToFloat64(f.failures.WithLabelValues("good")); got != 0 {
		t.Errorf("failures{sink=good} = %v, want 0", got)
	}
}

func TestFanoutConcurrentPublish(t *testing.T) {
	ctx := slogtest.Context(t)
	good := &recorder{}
	f, err := NewFanout(nil, good.sink("good"))
	if err != nil {
		t.Fatalf("NewFanout() = %v", err)
	}

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Publish(ctx, queuestats.Snapshot{QueueName: "q"})
		}()
	}
	wg.Wait()
	if got := len(good.names); got != 50 {
		t.Errorf("good sink received %d snapshots, want 50", got)
	}
}

func TestCircuitBreaker(t *testing.T) {
	ctx := slogtest.Context(t)

	var calls int
	inner := Func(func(context.Context, queuestats.Snapshot) error {
		calls++
		return errors.New("down")
	}).Named("cloudwatch")

	s := WithCircuitBreaker(ctx, inner, 2, time.Hour)
	if s.Name() != "cloudwatch" {
		t.Errorf("Name() = %q, want cloudwatch", s.Name())
	}
	for range 2 {
		if err := s.OnSnapshot(ctx, queuestats.Snapshot{}); err == nil {
			t.Fatal("OnSnapshot() = nil, want error")
		}
	}
	if err := s.OnSnapshot(ctx, queuestats.Snapshot{}); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("OnSnapshot() = %v, want ErrOpenState", err)
	}
	if calls != 2 {
		t.Errorf("inner sink called %d times, want 2", calls)
	}

	if got := WithCircuitBreaker(ctx, inner, 0, time.Hour); got != inner {
		t.Error("WithCircuitBreaker(threshold=0) wrapped the sink, want it unchanged")
	}
}
