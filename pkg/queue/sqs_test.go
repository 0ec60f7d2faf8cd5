/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/go-cmp/cmp"

	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
)

type fakeSQS struct {
	urls       map[string]string
	urlErr     error
	attributes map[string]string
	attrErr    error

	gotAttrs []types.QueueAttributeName
}

func (f *fakeSQS) GetQueueUrl(_ context.Context, in *sqs.GetQueueUrlInput, _ ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	if f.urlErr != nil {
		return nil, f.urlErr
	}
	url, ok := f.urls[aws.ToString(in.QueueName)]
	if !ok {
		return nil, &types.QueueDoesNotExist{Message: aws.String("The specified queue does not exist.")}
	}
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String(url)}, nil
}

func (f *fakeSQS) GetQueueAttributes(_ context.Context, in *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	f.gotAttrs = in.AttributeNames
	if f.attrErr != nil {
		return nil, f.attrErr
	}
	return &sqs.GetQueueAttributesOutput{Attributes: f.attributes}, nil
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	r := NewSQS(&fakeSQS{urls: map[string]string{"orders": "https://sqs.us-east-1.amazonaws.com/123/orders"}})

	got, err := r.Resolve(ctx, "orders")
	if err != nil {
		t.Fatalf("Resolve() = %v", err)
	}
	if want := "https://sqs.us-east-1.amazonaws.com/123/orders"; got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}

	if _, err := r.Resolve(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(missing) = %v, want ErrNotFound", err)
	}

	boom := errors.New("no credentials")
	r = NewSQS(&fakeSQS{urlErr: boom})
	_, err = r.Resolve(ctx, "orders")
	if !errors.Is(err, boom) {
		t.Errorf("Resolve() = %v, want it to wrap %v", err, boom)
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve() = %v, a remote failure is not ErrNotFound", err)
	}
}

func TestDepth(t *testing.T) {
	ctx := context.Background()
	fake := &fakeSQS{attributes: map[string]string{
		"ApproximateNumberOfMessages":           "42",
		"ApproximateNumberOfMessagesDelayed":    "3",
		"ApproximateNumberOfMessagesNotVisible": "7",
	}}
	got, err := NewSQS(fake).Depth(ctx, "https://sqs/orders")
	if err != nil {
		t.Fatalf("Depth() = %v", err)
	}
	if diff := cmp.Diff(queuestats.Depth{Available: 42, Delayed: 3, InFlight: 7}, got); diff != "" {
		t.Errorf("Depth() (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(depthAttributes, fake.gotAttrs); diff != "" {
		t.Errorf("requested attributes (-want +got):\n%s", diff)
	}
}

func TestDepthFailures(t *testing.T) {
	ctx := context.Background()
	for name, fake := range map[string]*fakeSQS{
		"remote error":    {attrErr: errors.New("AccessDenied")},
		"malformed value": {attributes: map[string]string{"ApproximateNumberOfMessages": "lots"}},
		"missing attribute": {attributes: map[string]string{
			"ApproximateNumberOfMessages":        "42",
			"ApproximateNumberOfMessagesDelayed": "3",
		}},
		"no attributes": {attributes: map[string]string{}},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := NewSQS(fake).Depth(ctx, "https://sqs/orders"); !errors.Is(err, ErrAttributesUnavailable) {
				t.Errorf("Depth() = %v, want ErrAttributesUnavailable", err)
			}
		})
	}
}
