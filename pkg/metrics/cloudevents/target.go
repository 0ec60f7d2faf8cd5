/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package cloudevents

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
	"google.golang.org/api/idtoken"

	"github.com/chainguard-dev/queuewatch/pkg/metrics"
)

// WithTarget returns client options that send to url. HTTPS targets are
// called with an identity token for url as the audience. Requests always
// go through the metrics transport.
func WithTarget(ctx context.Context, url string) ([]cehttp.Option, error) {
	transport := http.DefaultTransport
	if strings.HasPrefix(url, "https://") {
		idc, err := idtoken.NewClient(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to create idtoken client: %w", err)
		}
		transport = idc.Transport
	}

	// If we don't specify a client, NewClientHTTP will use http.DefaultClient
	// and may clobber its Transport. To avoid so, we pass a client with the
	// the metrics transport instead.
	return []cehttp.Option{
		cehttp.WithClient(http.Client{Transport: metrics.WrapTransport(transport)}),
		cehttp.WithTarget(url),
	}, nil
}

// NewClient returns a CloudEvents HTTP client that sends to url.
func NewClient(ctx context.Context, url string) (cloudevents.Client, error) {
	opts, err := WithTarget(ctx, url)
	if err != nil {
		return nil, err
	}
	return cloudevents.NewClientHTTP(opts...)
}
