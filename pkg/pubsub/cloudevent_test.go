/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pubsub

import (
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/chainguard-dev/clog/slogtest"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestFromCloudEvent(t *testing.T) {
	now := time.Unix(123456789, 0)
	tests := []struct {
		name string
		in   cloudevents.Event
		out  *pubsub.Message
	}{{
		name: "empty payload",
		in: func() cloudevents.Event {
			event := cloudevents.NewEvent()
			event.SetID("id")
			event.SetSource("source")
			event.SetType("type")
			event.SetSubject("subject")
			event.SetTime(now)

			event.SetData(cloudevents.ApplicationJSON, map[string]interface{}{})
			return event
		}(),
		out: &pubsub.Message{
			Attributes: map[string]string{
				"ce-id":          "id",
				"ce-source":      "source",
				"ce-specversion": "1.0",
				"ce-type":        "type",
				"ce-subject":     "subject",
				"ce-time":        "1973-11-29T21:33:09Z",
				"content-type":   "application/json",
			},
			Data: []byte("{}"),
		},
	}, {
		name: "non-empty payload",
		in: func() cloudevents.Event {
			event := cloudevents.NewEvent()
			event.SetID("id")
			event.SetSource("source")
			event.SetType("dev.chainguard.queuewatch.snapshot")
			event.SetSubject("orders")
			event.SetTime(now)

			event.SetData(cloudevents.ApplicationJSON, map[string]interface{}{
				"queue":     "orders",
				"available": 3,
			})
			return event
		}(),
		out: &pubsub.Message{
			Attributes: map[string]string{
				"ce-id":          "id",
				"ce-source":      "source",
				"ce-specversion": "1.0",
				"ce-type":        "dev.chainguard.queuewatch.snapshot",
				"ce-subject":     "orders",
				"ce-time":        "1973-11-29T21:33:09Z",
				"content-type":   "application/json",
			},
			Data: []byte(`{"available":3,"queue":"orders"}`),
		},
	}, {
		name: "with extensions",
		in: func() cloudevents.Event {
			event := cloudevents.NewEvent()
			event.SetID("id")
			event.SetSource("source")
			event.SetType("dev.chainguard.queuewatch.snapshot")
			event.SetSubject("subject")
			event.SetTime(now)

			event.SetData(cloudevents.ApplicationJSON, map[string]interface{}{})

			event.SetExtension("cluster", "prod")
			event.SetExtension("attempt", 2)
			event.SetExtension("observed", now)
			return event
		}(),
		out: &pubsub.Message{
			Attributes: map[string]string{
				"ce-id":          "id",
				"ce-source":      "source",
				"ce-specversion": "1.0",
				"ce-type":        "dev.chainguard.queuewatch.snapshot",
				"ce-subject":     "subject",
				"ce-time":        "1973-11-29T21:33:09Z",
				"ce-cluster":     "prod",
				"ce-attempt":     "2",
				"ce-observed":    "1973-11-29T21:33:09Z",
				"content-type":   "application/json",
			},
			Data: []byte("{}"),
		},
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			out := FromCloudEvent(slogtest.Context(t), test.in)
			if diff := cmp.Diff(out, test.out, cmpopts.IgnoreUnexported(pubsub.Message{})); diff != "" {
				t.Errorf("(-got, +want): %s", diff)
			}
		})
	}
}
