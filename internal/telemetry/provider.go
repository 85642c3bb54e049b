// Package telemetry wires OpenTelemetry tracing for the client. Spans from
// the API client and the session provider go through the global tracer
// provider installed here.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	globalProvider trace.TracerProvider
	providerMu     sync.RWMutex
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
)

// circuitBreaker stops export attempts after repeated failures so an
// unreachable collector does not slow every batch down.
type circuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration
	failureCount     int
	lastFailureTime  time.Time
	state            breakerState
	now              func() time.Time
	mu               sync.Mutex
}

func newCircuitBreaker() *circuitBreaker {
	return &circuitBreaker{
		failureThreshold: 5,
		resetTimeout:     30 * time.Second,
		now:              time.Now,
	}
}

func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == breakerClosed {
		return true
	}
	// Half-open: let one batch through after the reset timeout.
	return cb.now().Sub(cb.lastFailureTime) > cb.resetTimeout
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.state = breakerClosed
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = cb.now()
	if cb.failureCount >= cb.failureThreshold {
		cb.state = breakerOpen
	}
}

// retryableExporter wraps an exporter with exponential backoff and a
// circuit breaker.
type retryableExporter struct {
	exporter       sdktrace.SpanExporter
	circuitBreaker *circuitBreaker
	newBackOff     func() backoff.BackOff
	maxTries       uint
}

func newRetryableExporter(exporter sdktrace.SpanExporter) *retryableExporter {
	return &retryableExporter{
		exporter:       exporter,
		circuitBreaker: newCircuitBreaker(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			b.Multiplier = 1.5
			return b
		},
		maxTries: 5,
	}
}

func (re *retryableExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if !re.circuitBreaker.allow() {
		return fmt.Errorf("circuit breaker open: too many export failures")
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, re.exporter.ExportSpans(ctx, spans)
	},
		backoff.WithBackOff(re.newBackOff()),
		backoff.WithMaxTries(re.maxTries),
		backoff.WithMaxElapsedTime(10*time.Second),
	)
	if err != nil {
		re.circuitBreaker.recordFailure()
		return fmt.Errorf("export failed after %d attempts: %w", re.maxTries, err)
	}
	re.circuitBreaker.recordSuccess()
	return nil
}

func (re *retryableExporter) Shutdown(ctx context.Context) error {
	return re.exporter.Shutdown(ctx)
}

func createResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	return resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
		resource.WithProcessRuntimeDescription(),
		resource.WithOS(),
		resource.WithTelemetrySDK(),
	)
}

// InitProvider installs the global tracer provider and W3C trace-context
// propagator. It returns a shutdown function that flushes pending spans.
func InitProvider(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	providerMu.Lock()
	defer providerMu.Unlock()

	if !cfg.Enabled {
		globalProvider = noop.NewTracerProvider()
		otel.SetTracerProvider(globalProvider)
		return func(context.Context) error { return nil }, nil
	}

	res, err := createResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}
	if cfg.SampleRate < 1.0 {
		opts = append(opts, sdktrace.WithSampler(
			sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
		))
	} else {
		opts = append(opts, sdktrace.WithSampler(sdktrace.AlwaysSample()))
	}

	if cfg.Endpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpointURL(cfg.Endpoint),
			otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}

		opts = append(opts, sdktrace.WithBatcher(
			newRetryableExporter(exporter),
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	globalProvider = tp
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// GetTracerProvider returns the provider installed by InitProvider, or a
// noop provider.
func GetTracerProvider() trace.TracerProvider {
	providerMu.RLock()
	defer providerMu.RUnlock()

	if globalProvider != nil {
		return globalProvider
	}
	return noop.NewTracerProvider()
}
