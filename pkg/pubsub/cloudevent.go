/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pubsub

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/chainguard-dev/clog"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/types"
	"google.golang.org/api/option"
)

// FromCloudEvent converts event to a Pub/Sub message in the binary
// content mode: attributes carry the "ce-" headers and the data is the
// message body.
func FromCloudEvent(ctx context.Context, event cloudevents.Event) *pubsub.Message {
	attributes := map[string]string{
		"ce-id":          event.ID(),
		"ce-specversion": event.SpecVersion(),
		"ce-type":        event.Type(),
		"ce-source":      event.Source(),
		"ce-subject":     event.Subject(),
		"ce-time":        event.Time().UTC().Format(time.RFC3339),
		"content-type":   event.DataContentType(),
	}

	for k, v := range event.Extensions() {
		sv, err := types.Format(v)
		if err != nil {
			clog.FromContext(ctx).Warnf("Skipping extension %q: %v", k, err)
			continue
		}
		attributes["ce-"+k] = sv
	}

	return &pubsub.Message{
		Attributes: attributes,
		Data:       event.Data(),
	}
}

// NewPublisher returns a client for project and a publisher for topic
// on it. Callers stop the publisher and close the client.
func NewPublisher(ctx context.Context, project, topic string, opts ...option.ClientOption) (*pubsub.Client, *pubsub.Publisher, error) {
	psc, err := pubsub.NewClientWithConfig(ctx, project,
		&pubsub.ClientConfig{
			EnableOpenTelemetryTracing: true,
		},
		opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	return psc, psc.Publisher(topic), nil
}
