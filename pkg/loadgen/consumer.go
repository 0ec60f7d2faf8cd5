/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package loadgen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/chainguard-dev/clog"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	// QueueURL is the queue to receive from. The consumer is disabled when
	// empty.
	QueueURL string

	// BatchSize is the most messages received per poll, capped at
	// MaxBatchSize.
	BatchSize int

	// VisibilityTimeout hides received messages from other consumers.
	VisibilityTimeout time.Duration

	// WaitTime is the long polling wait of each receive.
	WaitTime time.Duration

	// MessageLatency is the simulated processing time of each message.
	MessageLatency time.Duration

	// PollingInterval is the pause between polls.
	PollingInterval time.Duration
}

// Consumer receives messages, holds each for MessageLatency, then deletes
// it.
type Consumer struct {
	Client SQSAPI
	Config ConsumerConfig
	Clock  clockwork.Clock
}

// Run polls until ctx is done. Failed polls are logged and do not stop the
// consumer.
func (c *Consumer) Run(ctx context.Context) error {
	if strings.TrimSpace(c.Config.QueueURL) == "" {
		clog.WarnContext(ctx, "SQS consumer is not configured, no queue URL")
		return nil
	}
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("queue_url", c.Config.QueueURL))
	clog.InfoContextf(ctx, "Consuming queue %s", c.Config.QueueURL)

	clock := clockOrReal(c.Clock)
	for ctx.Err() == nil {
		if _, err := c.Poll(ctx); err != nil && ctx.Err() == nil {
			clog.ErrorContextf(ctx, "Failed to poll: %v", err)
		}
		if !pause(ctx, clock, c.Config.PollingInterval) {
			break
		}
	}
	return nil
}

// Poll receives one batch and processes its messages concurrently. It
// returns the number of messages deleted.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	out, err := c.Client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.Config.QueueURL),
		MaxNumberOfMessages: int32(min(max(c.Config.BatchSize, 1), MaxBatchSize)),
		VisibilityTimeout:   int32(c.Config.VisibilityTimeout / time.Second),
		WaitTimeSeconds:     int32(c.Config.WaitTime / time.Second),
	})
	if err != nil {
		return 0, fmt.Errorf("ReceiveMessage() = %w", err)
	}
	mReceived.Add(float64(len(out.Messages)))

	deleted := make([]bool, len(out.Messages))
	var eg errgroup.Group
	for i, msg := range out.Messages {
		eg.Go(func() error {
			err := c.process(ctx, msg)
			deleted[i] = err == nil
			return err
		})
	}
	err = eg.Wait()

	n := 0
	for _, ok := range deleted {
		if ok {
			n++
		}
	}
	return n, err
}

func (c *Consumer) process(ctx context.Context, msg types.Message) error {
	id := aws.ToString(msg.MessageId)
	start := time.Now()
	if !pause(ctx, clockOrReal(c.Clock), c.Config.MessageLatency) {
		return ctx.Err()
	}
	clog.DebugContextf(ctx, "Processed message %s in %v", id, time.Since(start))

	if _, err := c.Client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.Config.QueueURL),
		ReceiptHandle: msg.ReceiptHandle,
	}); err != nil {
		mDeleted.WithLabelValues("error").Inc()
		return fmt.Errorf("DeleteMessage(%s) = %w", id, err)
	}
	mDeleted.WithLabelValues("ok").Inc()
	return nil
}
