/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-envconfig"

	"github.com/chainguard-dev/queuewatch/pkg/discovery"
	"github.com/chainguard-dev/queuewatch/pkg/fleet"
	"github.com/chainguard-dev/queuewatch/pkg/httpratelimit"
	"github.com/chainguard-dev/queuewatch/pkg/metrics"
	"github.com/chainguard-dev/queuewatch/pkg/monitor"
	"github.com/chainguard-dev/queuewatch/pkg/profiler"
	"github.com/chainguard-dev/queuewatch/pkg/queue"
	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
	"github.com/chainguard-dev/queuewatch/pkg/retry"
	"github.com/chainguard-dev/queuewatch/pkg/sink"
)

type envConfig struct {
	IntervalSeconds            int `env:"INTERVAL_SECONDS, default=10"`
	DiscoveryRetryCount        int `env:"DISCOVERY_RETRY_COUNT, default=10"`
	DiscoveryBackoffMultiplier int `env:"DISCOVERY_BACKOFF_MULTIPLIER, default=3"`
	PollRetryCount             int `env:"POLL_RETRY_COUNT, default=1"`
	PollBackoffMultiplier      int `env:"POLL_BACKOFF_MULTIPLIER, default=1"`
	CallTimeoutSeconds         int `env:"CALL_TIMEOUT_SECONDS, default=30"`

	MetricsPort      int    `env:"METRICS_PORT, default=5000"`
	MetricsPath      string `env:"METRICS_PATH, default=metrics/"`
	MetricsNamespace string `env:"METRICS_NAMESPACE, default=Custom"`

	Queues     queuestats.QueueList `env:"QUEUES"`
	QueuesFile string               `env:"QUEUES_FILE"`

	Sinks                      []string `env:"SINKS, default=prometheus,cloudwatch"`
	SinkBreakerThreshold       int      `env:"SINK_BREAKER_THRESHOLD, default=5"`
	SinkBreakerCooldownSeconds int      `env:"SINK_BREAKER_COOLDOWN_SECONDS, default=60"`
	EventTarget                string   `env:"EVENT_TARGET"`
	PubSubProject              string   `env:"PUBSUB_PROJECT"`
	PubSubTopic                string   `env:"PUBSUB_TOPIC"`
	OTelMetricsEndpoint        string   `env:"OTEL_METRICS_ENDPOINT"`

	SQSEndpoint string  `env:"SQS_ENDPOINT"`
	AWSMaxRPS   float64 `env:"AWS_MAX_RPS, default=0"`

	EnableTracing  bool `env:"ENABLE_TRACING, default=false"`
	EnablePprof    bool `env:"ENABLE_PPROF, default=false"`
	EnableProfiler bool `env:"ENABLE_PROFILER, default=false"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var env envConfig
	envconfig.MustProcess(ctx, &env)

	if err := run(ctx, cancel, env); err != nil {
		clog.FatalContextf(ctx, "queuewatch: %v", err)
	}
}

// run monitors the configured queues until ctx is done or discovery finds
// nothing to monitor. Every resource it opens is released before it
// returns. cancel is called to request shutdown.
func run(ctx context.Context, cancel context.CancelFunc, env envConfig) error {
	if err := profiler.SetupProfiler(ctx, profiler.Config{Enabled: env.EnableProfiler, Service: "queuewatch"}); err != nil {
		return err
	}
	if env.EnableTracing {
		shutdown, err := metrics.SetupTracer(ctx)
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
		defer shutdown()
	}

	queues := env.Queues
	if env.QueuesFile != "" {
		fromFile, err := queuestats.LoadQueueFile(env.QueuesFile)
		if err != nil {
			return fmt.Errorf("failed to load queues: %w", err)
		}
		queues = append(queues, fromFile...)
	}

	reg := prometheus.NewRegistry()
	metricsDone := make(chan struct{})
	go func() {
		defer close(metricsDone)
		if err := metrics.ServeMetrics(ctx, metrics.Options{
			Port:        env.MetricsPort,
			Path:        env.MetricsPath,
			Gatherer:    prometheus.Gatherers{reg, prometheus.DefaultGatherer},
			EnablePprof: env.EnablePprof,
		}); err != nil {
			clog.ErrorContextf(ctx, "metrics endpoint: %v", err)
		}
	}()
	defer func() {
		cancel()
		<-metricsDone
	}()

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithHTTPClient(&http.Client{
		Transport: metrics.WrapTransport(httpratelimit.NewTransport(http.DefaultTransport, env.AWSMaxRPS, 0)),
	}))
	if err != nil {
		return fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if env.SQSEndpoint != "" {
			o.BaseEndpoint = aws.String(env.SQSEndpoint)
		}
	})
	queueReader := queue.NewSQS(sqsClient)

	sinks, closeSinks, err := buildSinks(ctx, env, awsCfg, reg)
	if err != nil {
		return fmt.Errorf("failed to set up sinks: %w", err)
	}
	defer closeSinks()
	fanout, err := sink.NewFanout(reg, sinks...)
	if err != nil {
		return fmt.Errorf("failed to set up sinks: %w", err)
	}
	clog.InfoContextf(ctx, "Publishing to sinks %v", fanout.Sinks())

	selfMetrics := monitor.NewMetrics(reg)
	callTimeout := time.Duration(env.CallTimeoutSeconds) * time.Second
	svc := &monitor.Service{
		Configs:   queues,
		Resolver:  queueReader,
		Discovery: retry.NewLinear(env.DiscoveryRetryCount, time.Duration(env.DiscoveryBackoffMultiplier)*time.Second),
		Scheduler: &monitor.Scheduler{
			Collector: &monitor.Collector{
				Queues:      queueReader,
				Fleet:       fleet.NewECS(ecs.NewFromConfig(awsCfg)),
				Policy:      retry.NewLinear(env.PollRetryCount, time.Duration(env.PollBackoffMultiplier)*time.Second),
				CallTimeout: callTimeout,
				Metrics:     selfMetrics,
			},
			Sinks:          fanout,
			Interval:       time.Duration(env.IntervalSeconds) * time.Second,
			PublishTimeout: callTimeout,
			Metrics:        selfMetrics,
		},
		Shutdown: cancel,
	}

	if err := svc.Run(ctx); errors.Is(err, discovery.ErrNoQueues) {
		clog.InfoContextf(ctx, "Nothing to monitor, exiting")
	} else if err != nil {
		return err
	}
	return nil
}
