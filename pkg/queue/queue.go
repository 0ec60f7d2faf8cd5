/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package queue

import (
	"context"
	"errors"

	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
)

var (
	// ErrNotFound is returned by Resolve when the queue does not exist.
	ErrNotFound = errors.New("queue not found")

	// ErrAttributesUnavailable is returned by Depth when the queue's
	// attributes could not be read, for any reason.
	ErrAttributesUnavailable = errors.New("queue attributes unavailable")
)

// Reader is implemented by queue services.
type Reader interface {
	// Resolve returns the address of the named queue.
	Resolve(ctx context.Context, name string) (string, error)

	// Depth returns the approximate message counts of the queue at url.
	// It has no side effects beyond the remote read.
	Depth(ctx context.Context, url string) (queuestats.Depth, error)
}
