/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package loadgen produces and consumes SQS messages, to give a monitored
// queue a realistic backlog.
package loadgen

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MaxBatchSize is the most entries SQS accepts in one batch call, and the
// most messages one receive call returns.
const MaxBatchSize = 10

// SQSAPI is the subset of the SQS client used by the load generator.
type SQSAPI interface {
	SendMessageBatch(ctx context.Context, in *sqs.SendMessageBatchInput, opts ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

var (
	mSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadgen_sent_messages_total",
			Help: "The number of messages sent, by outcome",
		},
		[]string{"outcome"},
	)
	mReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loadgen_received_messages_total",
			Help: "The number of messages received",
		},
	)
	mDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loadgen_deleted_messages_total",
			Help: "The number of received messages deleted, by outcome",
		},
		[]string{"outcome"},
	)
)

// pause waits d on clock, or until ctx is done. It reports whether the
// full pause elapsed.
func pause(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-clock.After(d):
		return true
	}
}

func clockOrReal(c clockwork.Clock) clockwork.Clock {
	if c == nil {
		return clockwork.NewRealClock()
	}
	return c
}
