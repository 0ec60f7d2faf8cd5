/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
)

// SQSAPI is the subset of the SQS client used by SQS.
type SQSAPI interface {
	GetQueueUrl(ctx context.Context, in *sqs.GetQueueUrlInput, opts ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, opts ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

var depthAttributes = []types.QueueAttributeName{
	types.QueueAttributeNameApproximateNumberOfMessages,
	types.QueueAttributeNameApproximateNumberOfMessagesDelayed,
	types.QueueAttributeNameApproximateNumberOfMessagesNotVisible,
}

// SQS reads queue depth from Amazon SQS.
type SQS struct {
	client SQSAPI
}

var _ Reader = (*SQS)(nil)

// NewSQS returns a Reader backed by the given SQS client.
func NewSQS(client SQSAPI) *SQS {
	return &SQS{client: client}
}

// Resolve implements Reader.
func (s *SQS) Resolve(ctx context.Context, name string) (string, error) {
	out, err := s.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		var dne *types.QueueDoesNotExist
		if errors.As(err, &dne) {
			return "", fmt.Errorf("%w: %s: %w", ErrNotFound, name, err)
		}
		return "", fmt.Errorf("GetQueueUrl(%s) = %w", name, err)
	}
	url := aws.ToString(out.QueueUrl)
	if url == "" {
		return "", fmt.Errorf("%w: %s: empty queue url", ErrNotFound, name)
	}
	return url, nil
}

// Depth implements Reader.
func (s *SQS) Depth(ctx context.Context, url string) (queuestats.Depth, error) {
	out, err := s.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(url),
		AttributeNames: depthAttributes,
	})
	if err != nil {
		return queuestats.Depth{}, fmt.Errorf("%w: %s: %w", ErrAttributesUnavailable, url, err)
	}

	var d queuestats.Depth
	for name, dst := range map[types.QueueAttributeName]*int64{
		types.QueueAttributeNameApproximateNumberOfMessages:           &d.Available,
		types.QueueAttributeNameApproximateNumberOfMessagesDelayed:    &d.Delayed,
		types.QueueAttributeNameApproximateNumberOfMessagesNotVisible: &d.InFlight,
	} {
		v, ok := out.Attributes[string(name)]
		if !ok {
			return queuestats.Depth{}, fmt.Errorf("%w: %s: attribute %s missing", ErrAttributesUnavailable, url, name)
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return queuestats.Depth{}, fmt.Errorf("%w: %s: attribute %s = %q: %w", ErrAttributesUnavailable, url, name, v, err)
		}
		*dst = n
	}
	return d, nil
}
