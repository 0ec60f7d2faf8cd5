/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"

	cgcloudevents "github.com/chainguard-dev/queuewatch/pkg/metrics/cloudevents"
	cgpubsub "github.com/chainguard-dev/queuewatch/pkg/pubsub"
	"github.com/chainguard-dev/queuewatch/pkg/sink"
	cwsink "github.com/chainguard-dev/queuewatch/pkg/sink/cloudwatch"
	"github.com/chainguard-dev/queuewatch/pkg/sink/event"
	"github.com/chainguard-dev/queuewatch/pkg/sink/otelmetric"
	"github.com/chainguard-dev/queuewatch/pkg/sink/prom"
)

// buildSinks creates the sinks named in env.Sinks, in order. Remote sinks
// are wrapped in a circuit breaker. The returned func releases their
// clients.
func buildSinks(ctx context.Context, env envConfig, awsCfg aws.Config, reg prometheus.Registerer) ([]sink.Interface, func(), error) {
	var (
		sinks   []sink.Interface
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	cooldown := time.Duration(env.SinkBreakerCooldownSeconds) * time.Second
	guard := func(s sink.Interface) sink.Interface {
		return sink.WithCircuitBreaker(ctx, s, env.SinkBreakerThreshold, cooldown)
	}

	seen := map[string]bool{}
	for _, name := range env.Sinks {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		switch name {
		case "prometheus":
			s, err := prom.New(reg)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			sinks = append(sinks, s)

		case "cloudwatch":
			sinks = append(sinks, guard(cwsink.New(cloudwatch.NewFromConfig(awsCfg), env.MetricsNamespace)))

		case "otel":
			if env.OTelMetricsEndpoint == "" {
				closeAll()
				return nil, nil, fmt.Errorf("sink %q needs OTEL_METRICS_ENDPOINT", name)
			}
			mp, err := otelmetric.NewProvider(ctx, env.OTelMetricsEndpoint, time.Duration(env.IntervalSeconds)*time.Second)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, func() {
				if err := mp.Shutdown(context.WithoutCancel(ctx)); err != nil {
					clog.WarnContextf(ctx, "Error shutting down meter provider: %v", err)
				}
			})
			s, err := otelmetric.New(mp.Meter("github.com/chainguard-dev/queuewatch"))
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			sinks = append(sinks, guard(s))

		case "event":
			if env.EventTarget == "" {
				closeAll()
				return nil, nil, fmt.Errorf("sink %q needs EVENT_TARGET", name)
			}
			c, err := cgcloudevents.NewClient(ctx, env.EventTarget)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			sinks = append(sinks, guard(event.New(name, event.HTTPSender(c))))

		case "pubsub":
			if env.PubSubProject == "" || env.PubSubTopic == "" {
				closeAll()
				return nil, nil, fmt.Errorf("sink %q needs PUBSUB_PROJECT and PUBSUB_TOPIC", name)
			}
			psc, pub, err := cgpubsub.NewPublisher(ctx, env.PubSubProject, env.PubSubTopic)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, func() {
				pub.Stop()
				if err := psc.Close(); err != nil {
					clog.WarnContextf(ctx, "Error closing pubsub client: %v", err)
				}
			})
			sinks = append(sinks, guard(event.New(name, event.PubSubSender(pub))))

		default:
			closeAll()
			return nil, nil, fmt.Errorf("unknown sink %q", name)
		}
	}
	return sinks, closeAll, nil
}
