/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fleet

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"

	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
)

// ECSAPI is the subset of the ECS client used by ECS.
type ECSAPI interface {
	DescribeServices(ctx context.Context, in *ecs.DescribeServicesInput, opts ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error)
}

// ECS reads service task counts from Amazon ECS.
type ECS struct {
	client ECSAPI
}

var _ Reader = (*ECS)(nil)

// NewECS returns a Reader backed by the given ECS client.
func NewECS(client ECSAPI) *ECS {
	return &ECS{client: client}
}

// Describe implements Reader.
func (e *ECS) Describe(ctx context.Context, cluster, service string) (queuestats.ConsumerStats, error) {
	out, err := e.client.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(cluster),
		Services: []string{service},
	})
	if err != nil {
		return queuestats.ConsumerStats{}, fmt.Errorf("%w: %s/%s: %w", ErrServiceDescribeFailed, cluster, service, err)
	}
	if len(out.Services) == 0 {
		reason := "no service returned"
		if len(out.Failures) > 0 {
			reason = aws.ToString(out.Failures[0].Reason)
		}
		return queuestats.ConsumerStats{}, fmt.Errorf("%w: %s/%s: %s", ErrServiceNotFound, cluster, service, reason)
	}

	svc := out.Services[0]
	return queuestats.ConsumerStats{
		Running: int64(svc.RunningCount),
		Desired: int64(svc.DesiredCount),
		Pending: int64(svc.PendingCount),
	}, nil
}
