/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/detectors/gcp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"google.golang.org/api/option"
)

// DefaultPath is where metrics are served when Options.Path is empty.
const DefaultPath = "metrics/"

// Options configures ServeMetrics.
type Options struct {
	// Port to listen on. Zero picks a free port.
	Port int

	// Path of the metrics endpoint. A leading slash is added when missing.
	Path string

	// Gatherer to expose. Nil means prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// EnablePprof registers the net/http/pprof handlers.
	EnablePprof bool
}

// NormalizePath returns p with a leading slash, or the default path when
// p is empty.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		p = DefaultPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// NewHandler returns the handler served by ServeMetrics.
func NewHandler(opts Options) http.Handler {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	h := Handler("metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux := http.NewServeMux()
	path := NormalizePath(opts.Path)
	mux.Handle(path, h)
	// Serve "/metrics" and "/metrics/" alike.
	if trimmed := strings.TrimSuffix(path, "/"); trimmed != "" && trimmed != path {
		mux.Handle(trimmed, h)
	} else if path != "/" {
		mux.Handle(path+"/", h)
	}

	if opts.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		mux.Handle("/debug/pprof/allocs", pprof.Handler("allocs"))
		mux.Handle("/debug/pprof/block", pprof.Handler("block"))
		mux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		mux.Handle("/debug/pprof/heap", pprof.Handler("heap"))
		mux.Handle("/debug/pprof/mutex", pprof.Handler("mutex"))
		mux.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	}
	return mux
}

// ServeMetrics serves the metrics endpoint until ctx is done, then drains
// in-flight scrapes. It returns nil after a clean shutdown.
//
// Expected usage:
//
//	go func() {
//		if err := metrics.ServeMetrics(ctx, opts); err != nil {
//			clog.ErrorContextf(ctx, "metrics endpoint: %v", err)
//		}
//	}()
func ServeMetrics(ctx context.Context, opts Options) error {
	logger := clog.FromContext(ctx)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.Port))
	if err != nil {
		return fmt.Errorf("listen on :%d: %w", opts.Port, err)
	}
	srv := &http.Server{
		Handler:           NewHandler(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Serving metrics on %s%s", lis.Addr(), NormalizePath(opts.Path))
		if opts.EnablePprof {
			logger.Info("Registered handlers for /debug/pprof")
		}
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve metrics: %w", err)
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}
	return nil
}

var (
	inFlightGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "A gauge of requests currently being served by the wrapped handler.",
		},
		[]string{"handler"},
	)
	duration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "A histogram of latencies for requests.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"handler", "method"},
	)
	counter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_status",
			Help: "The number of processed requests by response code",
		},
		[]string{"handler", "method", "code"},
	)
)

// Handler wraps a given http handler in standard metrics handlers.
func Handler(name string, handler http.Handler) http.Handler {
	labels := prometheus.Labels{"handler": name}
	return promhttp.InstrumentHandlerInFlight(
		inFlightGauge.With(labels),
		promhttp.InstrumentHandlerDuration(
			duration.MustCurryWith(labels),
			instrumentHandlerCounter(
				counter.MustCurryWith(labels),
				otelhttp.NewHandler(handler, name),
			),
		),
	)
}

func tracerOptionsGCP(ctx context.Context) ([]trace.TracerProviderOption, error) {
	traceExporter, err := texporter.New(
		// Avoid infinite recursion in trace uploads
		//   https://github.com/open-telemetry/opentelemetry-go/issues/1928
		texporter.WithTraceClientOptions([]option.ClientOption{option.WithTelemetryDisabled()}),
	)
	if err != nil {
		return nil, fmt.Errorf("tracerOptionsGCP() = %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithDetectors(gcp.NewDetector()),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(semconv.ServiceNameKey.String("queuewatch")),
	)
	if err != nil {
		return nil, fmt.Errorf("tracerOptionsGCP() = %w", err)
	}
	return []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSpanProcessor(trace.NewBatchSpanProcessor(traceExporter)),
		trace.WithSampler(trace.AlwaysSample()),
	}, nil
}

func tracerOptions(ctx context.Context) ([]trace.TracerProviderOption, error) {
	traceExporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("tracerOptions() = %w", err)
	}
	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(semconv.ServiceNameKey.String("queuewatch")))
	if err != nil {
		return nil, fmt.Errorf("tracerOptions() = %w", err)
	}
	return []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSpanProcessor(trace.NewBatchSpanProcessor(traceExporter)),
	}, nil
}

// SetupTracer installs a global tracer provider. Spans go to Cloud Trace
// when running on GCP without an OTLP endpoint, and over OTLP/HTTP
// otherwise.
//
// Expected usage:
//
//	shutdown, err := metrics.SetupTracer(ctx)
//	if err != nil { ... }
//	defer shutdown()
func SetupTracer(ctx context.Context) (func(), error) {
	traceEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT")
	projectID, _ := metadata.ProjectIDWithContext(ctx)

	var (
		options []trace.TracerProviderOption
		err     error
	)
	if traceEndpoint == "" && projectID != "" {
		options, err = tracerOptionsGCP(ctx)
	} else {
		options, err = tracerOptions(ctx)
	}
	if err != nil {
		return nil, err
	}
	tp := trace.NewTracerProvider(options...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			clog.FromContext(ctx).Infof("Error shutting down tracer provider: %v", err)
		}
	}, nil
}

type delegator struct {
	http.ResponseWriter
	Status int
}

func (d *delegator) WriteHeader(status int) {
	d.Status = status
	d.ResponseWriter.WriteHeader(status)
}

func instrumentHandlerCounter(counter *prometheus.CounterVec, next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := &delegator{
			ResponseWriter: w,
			Status:         http.StatusOK,
		}

		next.ServeHTTP(d, r)
		counter.With(prometheus.Labels{
			"method": r.Method,
			"code":   strconv.Itoa(d.Status),
		}).Inc()
	}
}
