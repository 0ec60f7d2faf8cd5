/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package event publishes every snapshot as a CloudEvent, either to a
// CloudEvents HTTP broker or to a Pub/Sub topic.
package event

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	cgpubsub "github.com/chainguard-dev/queuewatch/pkg/pubsub"
	"github.com/chainguard-dev/queuewatch/pkg/queuestats"
	"github.com/chainguard-dev/queuewatch/pkg/sink"
)

const (
	// Type is the CloudEvent type of snapshot events.
	Type = "dev.chainguard.queuewatch.snapshot"

	// Source is the default CloudEvent source.
	Source = "github.com/chainguard-dev/queuewatch"
)

// Sender delivers a CloudEvent.
type Sender func(ctx context.Context, event cloudevents.Event) error

// HTTPSender returns a Sender that delivers through a CloudEvents client.
func HTTPSender(c cloudevents.Client) Sender {
	return func(ctx context.Context, event cloudevents.Event) error {
		if res := c.Send(ctx, event); !cloudevents.IsACK(res) {
			return fmt.Errorf("send(%s) = %w", event.Subject(), res)
		}
		return nil
	}
}

// Publisher is the subset of *pubsub.Publisher used by PubSubSender.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// PubSubSender returns a Sender that publishes to a Pub/Sub topic and
// waits for the server to acknowledge the message.
func PubSubSender(p Publisher) Sender {
	return func(ctx context.Context, event cloudevents.Event) error {
		res := p.Publish(ctx, cgpubsub.FromCloudEvent(ctx, event))
		if _, err := res.Get(ctx); err != nil {
			return fmt.Errorf("publish(%s) = %w", event.Subject(), err)
		}
		return nil
	}
}

// Data is the JSON payload of a snapshot event.
type Data struct {
	Queue     string    `json:"queue"`
	QueueURL  string    `json:"queue_url"`
	Available int64     `json:"available"`
	Delayed   int64     `json:"delayed"`
	InFlight  int64     `json:"in_flight"`
	Consumer  *Consumer `json:"consumer,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Consumer is the consumer block of Data.
type Consumer struct {
	Cluster string   `json:"cluster"`
	Service string   `json:"service"`
	Running int64    `json:"running"`
	Desired int64    `json:"desired"`
	Pending int64    `json:"pending"`
	Backlog *float64 `json:"backlog_per_worker,omitempty"`
}

// Sink turns snapshots into CloudEvents.
type Sink struct {
	name   string
	source string
	send   Sender
}

var _ sink.Interface = (*Sink)(nil)

// New returns a Sink called name that delivers with send.
func New(name string, send Sender) *Sink {
	return &Sink{name: name, source: Source, send: send}
}

// Name implements sink.Interface.
func (s *Sink) Name() string { return s.name }

// OnSnapshot implements sink.Interface.
func (s *Sink) OnSnapshot(ctx context.Context, snap queuestats.Snapshot) error {
	event, err := s.render(snap)
	if err != nil {
		return err
	}
	return s.send(ctx, event)
}

func (s *Sink) render(snap queuestats.Snapshot) (cloudevents.Event, error) {
	data := Data{
		Queue:     snap.QueueName,
		QueueURL:  snap.QueueURL,
		Available: snap.Depth.Available,
		Delayed:   snap.Depth.Delayed,
		InFlight:  snap.Depth.InFlight,
		Timestamp: snap.Timestamp.UTC(),
	}
	if c := snap.Consumer; c != nil {
		data.Consumer = &Consumer{
			Cluster: c.Cluster,
			Service: c.Service,
			Running: c.Running,
			Desired: c.Desired,
			Pending: c.Pending,
		}
		if backlog, ok := snap.BacklogPerWorker(); ok {
			data.Consumer.Backlog = &backlog
		}
	}

	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetType(Type)
	event.SetSource(s.source)
	event.SetSubject(snap.QueueName)
	event.SetTime(snap.Timestamp)
	if err := event.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return event, fmt.Errorf("failed to set data: %w", err)
	}
	return event, nil
}
