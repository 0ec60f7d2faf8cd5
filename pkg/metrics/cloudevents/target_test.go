/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package cloudevents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

func TestNewClientPlainHTTP(t *testing.T) {
	got := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Clone()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ctx := context.Background()
	c, err := NewClient(ctx, srv.URL)
	if err != nil {
		t.Fatalf("NewClient() = %v", err)
	}

	event := cloudevents.NewEvent()
	event.SetID("id")
	event.SetType("dev.chainguard.queuewatch.snapshot")
	event.SetSource("test")
	event.SetSubject("orders")
	if err := event.SetData(cloudevents.ApplicationJSON, json.RawMessage(`{"queue":"orders"}`)); err != nil {
		t.Fatalf("SetData() = %v", err)
	}

	if res := c.Send(ctx, event); !cloudevents.IsACK(res) {
		t.Fatalf("Send() = %v", res)
	}
	h := <-got
	if v := h.Get("Ce-Type"); v != "dev.chainguard.queuewatch.snapshot" {
		t.Errorf("Ce-Type = %q", v)
	}
	if v := h.Get("Ce-Subject"); v != "orders" {
		t.Errorf("Ce-Subject = %q", v)
	}
	if v := h.Get("Authorization"); v != "" {
		t.Errorf("Authorization = %q, want none for a plain HTTP target", v)
	}
}
