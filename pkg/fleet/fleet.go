/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fleet

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
)

var (
	// ErrServiceDescribeFailed matches every error returned by Describe.
	ErrServiceDescribeFailed = errors.New("service describe failed")

	// ErrServiceNotFound is returned when the orchestrator has no such
	// service. It also matches ErrServiceDescribeFailed.
	ErrServiceNotFound = fmt.Errorf("%w: service not found", ErrServiceDescribeFailed)
)

// Reader is implemented by orchestrators that run queue consumers.
type Reader interface {
	// Describe returns the task counts of service in cluster. Only the
	// Running, Desired and Pending fields of the result are set.
	Describe(ctx context.Context, cluster, service string) (queuestats.ConsumerStats, error)
}
