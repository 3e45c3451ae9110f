package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/signalsfoundry/supplier-sim/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestInitTracingDisabledIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin", SampleRatio: 1}, logging.Noop())
	if err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
}

func TestTracingResourceCarriesScenarioShape(t *testing.T) {
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment=ci,service.name=ignored")
	cfg := TracingConfig{
		ServiceName: "supplier-env",
		Env:         EnvResource{Scenario: "configs/scenario.json", Days: 30, SupplierNum: 4, StateSpace: 6, ActionSpace: 16},
	}
	res, err := cfg.Resource(context.Background())
	if err != nil {
		t.Fatalf("Resource: %v", err)
	}
	got := make(map[attribute.Key]attribute.Value)
	for _, kv := range res.Attributes() {
		got[kv.Key] = kv.Value
	}
	if got["service.name"].AsString() != "supplier-env" {
		t.Fatalf("service.name = %q, want configured name over OTEL_RESOURCE_ATTRIBUTES", got["service.name"].AsString())
	}
	if got["deployment.environment"].AsString() != "ci" {
		t.Fatalf("OTEL_RESOURCE_ATTRIBUTES not merged: %v", res.Attributes())
	}
	if got["env.days"].AsInt64() != 30 || got["env.supplier_num"].AsInt64() != 4 || got["env.action_space"].AsInt64() != 16 {
		t.Fatalf("scenario attributes missing: %v", res.Attributes())
	}
	if got["env.scenario"].AsString() != "configs/scenario.json" {
		t.Fatalf("env.scenario = %q", got["env.scenario"].AsString())
	}
}

func TestInitTracingExportsSpansWithScenarioResource(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	var buf bytes.Buffer
	cfg := TracingConfig{
		Enabled:     true,
		ServiceName: "supplier-env",
		Exporter:    "stdout",
		SampleRatio: 1,
		Writer:      &buf,
		Env:         EnvResource{Days: 3, SupplierNum: 2, StateSpace: 1, ActionSpace: 4},
	}
	ctx := context.Background()
	shutdown, err := InitTracing(ctx, cfg, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := otel.Tracer("test").Start(ctx, "Env.Step")
	span.End()
	ShutdownWithTimeout(ctx, shutdown, logging.Noop())

	out := buf.String()
	if !strings.Contains(out, `"Env.Step"`) {
		t.Fatalf("span not exported: %s", out)
	}
	if !strings.Contains(out, `"env.supplier_num"`) {
		t.Fatalf("exported span lacks scenario resource: %s", out)
	}
}

func TestTracingSamplerBounds(t *testing.T) {
	cases := []struct {
		ratio float64
		want  string
	}{
		{ratio: 1, want: "AlwaysOnSampler"},
		{ratio: 0, want: "AlwaysOffSampler"},
		{ratio: 0.25, want: "TraceIDRatioBased{0.25}"},
	}
	for _, tc := range cases {
		desc := TracingConfig{SampleRatio: tc.ratio}.sampler().Description()
		if !strings.HasPrefix(desc, "ParentBased{root:"+tc.want+",") {
			t.Fatalf("sampler(%v) = %s, want root %s", tc.ratio, desc, tc.want)
		}
	}
}
