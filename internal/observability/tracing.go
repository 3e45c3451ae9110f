package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/signalsfoundry/supplier-sim/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	defaultOTLPEndpoint = "localhost:4317"
	shutdownTimeout     = 5 * time.Second
)

// EnvResource describes the scenario an environment process serves. Every
// exported span carries it as resource attributes, so traces from runs over
// different panels can be told apart in the collector.
type EnvResource struct {
	Scenario    string // scenario document path
	Days        int
	SupplierNum int
	StateSpace  int
	ActionSpace int
}

func (r EnvResource) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int("env.days", r.Days),
		attribute.Int("env.supplier_num", r.SupplierNum),
		attribute.Int("env.state_space", r.StateSpace),
		attribute.Int("env.action_space", r.ActionSpace),
	}
	if r.Scenario != "" {
		attrs = append(attrs, attribute.String("env.scenario", r.Scenario))
	}
	return attrs
}

// TracingConfig governs span export for the simulator and the env server.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout | otlp
	Endpoint    string // collector address for otlp
	SampleRatio float64
	Writer      io.Writer // stdout exporter target; os.Stderr when nil
	Env         EnvResource
}

// Resource merges OTEL_RESOURCE_ATTRIBUTES with the service identity and the
// scenario shape. Explicit attributes win over the environment.
func (c TracingConfig) Resource(ctx context.Context) (*resource.Resource, error) {
	attrs := append([]attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.namespace", "supplier-sim"),
	}, c.Env.attributes()...)
	res, err := resource.New(ctx, resource.WithFromEnv(), resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}
	return res, nil
}

// sampler honours a sampled parent and otherwise samples SampleRatio of the
// episodes' root spans.
func (c TracingConfig) sampler() sdktrace.Sampler {
	switch {
	case c.SampleRatio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case c.SampleRatio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
	}
}

func (c TracingConfig) exporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(c.Exporter) {
	case "", "stdout":
		w := c.Writer
		if w == nil {
			w = os.Stderr
		}
		return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	case "otlp", "otlpgrpc":
		endpoint := c.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter %q (want stdout or otlp)", c.Exporter)
	}
}

// InitTracing installs the global tracer provider and propagators for cfg and
// returns the function that flushes pending spans. A disabled config installs
// a noop provider so Env and RPC spans cost nothing.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		return func(context.Context) error { return nil }, nil
	}

	exp, err := cfg.exporter(ctx)
	if err != nil {
		return nil, err
	}
	res, err := cfg.Resource(ctx)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(cfg.sampler()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Float("sample_ratio", cfg.SampleRatio),
		logging.Int("env_days", cfg.Env.Days),
		logging.Int("env_suppliers", cfg.Env.SupplierNum),
	)
	return tp.Shutdown, nil
}

// ShutdownWithTimeout flushes spans within a bounded time. Failures are
// logged, not returned.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
