/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/sync/errgroup"

	"github.com/chainguard-dev/queuewatch/pkg/httpratelimit"
	"github.com/chainguard-dev/queuewatch/pkg/loadgen"
	"github.com/chainguard-dev/queuewatch/pkg/metrics"
)

type envConfig struct {
	Producer struct {
		QueueURL            string `env:"QUEUE_URL"`
		BatchSize           int    `env:"BATCH_SIZE, default=1"`
		SendIntervalSeconds int    `env:"SEND_INTERVAL_SECONDS, default=1"`
	} `env:", prefix=PRODUCER_"`

	Consumer struct {
		QueueURL               string `env:"QUEUE_URL"`
		BatchSize              int    `env:"BATCH_SIZE, default=1"`
		VisibilityTimeout      int    `env:"VISIBILITY_TIMEOUT, default=30"`
		WaitTimeSeconds        int    `env:"WAIT_TIME_SECONDS, default=0"`
		MessageLatencySeconds  int    `env:"MESSAGE_LATENCY_SECONDS, default=0"`
		PollingIntervalSeconds int    `env:"POLLING_INTERVAL_SECONDS, default=0"`
	} `env:", prefix=CONSUMER_"`

	SQSEndpoint string  `env:"SQS_ENDPOINT"`
	AWSMaxRPS   float64 `env:"AWS_MAX_RPS, default=0"`
	MetricsPort int     `env:"METRICS_PORT, default=5001"`
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var env envConfig
	envconfig.MustProcess(ctx, &env)

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithHTTPClient(&http.Client{
		Transport: metrics.WrapTransport(httpratelimit.NewTransport(http.DefaultTransport, env.AWSMaxRPS, 0)),
	}))
	if err != nil {
		clog.FatalContextf(ctx, "failed to load AWS configuration: %v", err)
	}
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if env.SQSEndpoint != "" {
			o.BaseEndpoint = aws.String(env.SQSEndpoint)
		}
	})

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return metrics.ServeMetrics(ctx, metrics.Options{
			Port:     env.MetricsPort,
			Gatherer: prometheus.DefaultGatherer,
		})
	})
	eg.Go(func() error {
		return (&loadgen.Producer{
			Client: client,
			Config: loadgen.ProducerConfig{
				QueueURL:  env.Producer.QueueURL,
				BatchSize: env.Producer.BatchSize,
				Interval:  seconds(env.Producer.SendIntervalSeconds),
			},
		}).Run(ctx)
	})
	eg.Go(func() error {
		return (&loadgen.Consumer{
			Client: client,
			Config: loadgen.ConsumerConfig{
				QueueURL:          env.Consumer.QueueURL,
				BatchSize:         env.Consumer.BatchSize,
				VisibilityTimeout: seconds(env.Consumer.VisibilityTimeout),
				WaitTime:          seconds(env.Consumer.WaitTimeSeconds),
				MessageLatency:    seconds(env.Consumer.MessageLatencySeconds),
				PollingInterval:   seconds(env.Consumer.PollingIntervalSeconds),
			},
		}).Run(ctx)
	})
	if err := eg.Wait(); err != nil {
		clog.FatalContextf(ctx, "loadgen: %v", err)
	}
}
