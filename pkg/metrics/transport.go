/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/chainguard-dev/queuewatch/pkg/httpratelimit"
)

var (
	mReqCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_client_request_count",
			Help: "The total number of HTTP requests",
		},
		[]string{"code", "method", "host"},
	)
	mReqInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_client_request_in_flight",
			Help: "The number of outgoing HTTP requests currently inflight",
		},
		[]string{"method", "host"},
	)
	mReqDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_client_request_duration_seconds",
			Help:    "The duration of HTTP requests",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"code", "method", "host"},
	)
	mAWSThrottled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aws_throttled_requests_total",
			Help: "The number of AWS API requests rejected by throttling",
		},
		[]string{"host"},
	)
	seenHostMap = sync.Map{}
)

// Transport is an http.RoundTripper that records metrics for each request.
var Transport = WrapTransport(http.DefaultTransport)

// WrapTransport wraps an http.RoundTripper with instrumentation.
func WrapTransport(t http.RoundTripper) http.RoundTripper {
	return instrumentRoundTripperCounter(
		instrumentRoundTripperInFlight(
			instrumentRoundTripperDuration(
				instrumentAWSThrottling(
					otelhttp.NewTransport(t)))))
}

func mapErrorToLabel(err error) string {
	switch msg := err.Error(); {
	case strings.Contains(msg, "no route to host"):
		return "no-route-to_host"
	case strings.Contains(msg, "i/o timeout"):
		return "io-timeout"
	case strings.Contains(msg, "TLS handshake timeout"):
		return "tls-handshake-timeout"
	case strings.Contains(msg, "TLS handshake error"):
		return "tls-handshake-error"
	case strings.Contains(msg, "unexpected EOF"):
		return "unexpected-eof"
	case strings.Contains(msg, "context deadline exceeded"):
		return "deadline-exceeded"
	case strings.Contains(msg, "context canceled"):
		return "canceled"
	}
	return "unknown-error"
}

// These instrument methods based on promhttp, with bucketized host labels added:
// https://pkg.go.dev/github.com/prometheus/client_golang/prometheus/promhttp

func instrumentRoundTripperCounter(next http.RoundTripper) promhttp.RoundTripperFunc {
	return func(r *http.Request) (*http.Response, error) {
		resp, err := next.RoundTrip(r)
		var code string
		if err == nil {
			code = strconv.Itoa(resp.StatusCode)
		} else {
			code = mapErrorToLabel(err)
		}
		mReqCount.With(prometheus.Labels{
			"code":   code,
			"method": r.Method,
			"host":   bucketize(r.Context(), r.URL.Host),
		}).Inc()
		return resp, err
	}
}

func instrumentRoundTripperInFlight(next http.RoundTripper) promhttp.RoundTripperFunc {
	return func(r *http.Request) (*http.Response, error) {
		g := mReqInFlight.With(prometheus.Labels{
			"method": r.Method,
			"host":   bucketize(r.Context(), r.URL.Host),
		})
		g.Inc()
		defer g.Dec()
		return next.RoundTrip(r)
	}
}

func instrumentRoundTripperDuration(next http.RoundTripper) promhttp.RoundTripperFunc {
	return func(r *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(r)
		if err == nil {
			mReqDuration.With(prometheus.Labels{
				"code":   strconv.Itoa(resp.StatusCode),
				"method": r.Method,
				"host":   bucketize(r.Context(), r.URL.Host),
			}).Observe(time.Since(start).Seconds())
		}
		return resp, err
	}
}

// instrumentAWSThrottling counts responses that AWS marks as throttled.
func instrumentAWSThrottling(next http.RoundTripper) promhttp.RoundTripperFunc {
	return func(r *http.Request) (*http.Response, error) {
		resp, err := next.RoundTrip(r)
		if err != nil || !strings.HasSuffix(r.URL.Hostname(), ".amazonaws.com") {
			return resp, err
		}
		if httpratelimit.IsThrottled(resp) {
			mAWSThrottled.WithLabelValues(bucketize(r.Context(), r.URL.Host)).Inc()
		}
		return resp, err
	}
}

var buckets = map[string]string{
	"169.254.169.254": "metadata server",
	"169.254.170.2":   "ECS task metadata",
	"localhost:4566":  "localstack",
}

// awsServices buckets regional AWS endpoints, like
// sqs.us-east-1.amazonaws.com, by their first label.
var awsServices = map[string]string{
	"sqs":        "SQS",
	"ecs":        "ECS",
	"monitoring": "CloudWatch",
	"sts":        "STS",
}

var bucketSuffixes = map[string]string{
	"googleapis.com": "Google API",
	"amazonaws.com":  "AWS",
	"a.run.app":      "Cloud Run",
}

func bucketize(ctx context.Context, host string) string {
	// Check the exact matches first.
	if b, ok := buckets[host]; ok {
		return b
	}
	name := host
	if h, _, ok := strings.Cut(host, ":"); ok {
		name = h
	}
	if strings.HasSuffix(name, ".amazonaws.com") {
		first, _, _ := strings.Cut(name, ".")
		if b, ok := awsServices[first]; ok {
			return b
		}
	}
	// Then check the suffixes.
	for k, v := range bucketSuffixes {
		if strings.HasSuffix(name, "."+k) {
			return v
		}
	}

	v, _ := seenHostMap.LoadOrStore(host, &atomic.Int64{})
	if seen := v.(*atomic.Int64).Add(1); (seen-1)%10 == 0 {
		clog.WarnContext(ctx, `bucketing host as "other"`, "host", host, "seen", seen)
	}
	return "other"
}
