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
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ProducerConfig configures a Producer.
type ProducerConfig struct {
	// QueueURL is the queue to send to. The producer is disabled when empty.
	QueueURL string

	// BatchSize is the number of messages sent per round. Rounds larger
	// than MaxBatchSize are split over several batch calls.
	BatchSize int

	// Interval is the pause between rounds.
	Interval time.Duration
}

// Producer sends BatchSize uuid-bodied messages every Interval.
type Producer struct {
	Client SQSAPI
	Config ProducerConfig
	Clock  clockwork.Clock
}

// Run sends rounds of messages until ctx is done. Failed rounds are logged
// and do not stop the producer.
func (p *Producer) Run(ctx context.Context) error {
	if strings.TrimSpace(p.Config.QueueURL) == "" {
		clog.WarnContext(ctx, "SQS producer is not configured, no queue URL")
		return nil
	}
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("queue_url", p.Config.QueueURL))
	clog.InfoContextf(ctx, "Producing to queue %s", p.Config.QueueURL)

	clock := clockOrReal(p.Clock)
	for ctx.Err() == nil {
		start := clock.Now()
		sent, err := p.SendRound(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			clog.ErrorContextf(ctx, "Failed to send messages: %v", err)
		case err == nil:
			clog.DebugContextf(ctx, "Sent %d message(s) in %v", sent, clock.Since(start))
		}
		if !pause(ctx, clock, p.Config.Interval) {
			break
		}
	}
	return nil
}

// SendRound sends one round of BatchSize messages and returns how many
// SQS accepted.
func (p *Producer) SendRound(ctx context.Context) (int, error) {
	sent := 0
	for remaining := max(p.Config.BatchSize, 1); remaining > 0; remaining -= MaxBatchSize {
		entries := make([]types.SendMessageBatchRequestEntry, 0, min(remaining, MaxBatchSize))
		for range min(remaining, MaxBatchSize) {
			id := strings.ReplaceAll(uuid.NewString(), "-", "")
			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:          aws.String(id),
				MessageBody: aws.String(id),
			})
		}

		out, err := p.Client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(p.Config.QueueURL),
			Entries:  entries,
		})
		if err != nil {
			mSent.WithLabelValues("error").Add(float64(len(entries)))
			return sent, fmt.Errorf("SendMessageBatch() = %w", err)
		}
		sent += len(out.Successful)
		mSent.WithLabelValues("ok").Add(float64(len(out.Successful)))
		if n := len(out.Failed); n > 0 {
			mSent.WithLabelValues("failed").Add(float64(n))
			f := out.Failed[0]
			clog.WarnContextf(ctx, "SQS rejected %d of %d message(s), first: %s: %s",
				n, len(entries), aws.ToString(f.Code), aws.ToString(f.Message))
		}
	}
	return sent, nil
}
