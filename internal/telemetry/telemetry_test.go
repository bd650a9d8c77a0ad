package telemetry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/player-auction/internal/config"
	"github.com/jensholdgaard/player-auction/internal/telemetry"
)

func TestNewNopProvider(t *testing.T) {
	p := telemetry.NewNopProvider()

	if p.TracerProvider == nil {
		t.Fatal("TracerProvider is nil")
	}
	if p.MeterProvider == nil {
		t.Fatal("MeterProvider is nil")
	}
	if p.LoggerProvider == nil {
		t.Fatal("LoggerProvider is nil")
	}
	if p.Logger == nil {
		t.Fatal("Logger is nil")
	}
}

func TestNopProvider_Shutdown(t *testing.T) {
	p := telemetry.NewNopProvider()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestSetup_NoEndpoint(t *testing.T) {
	p, err := telemetry.Setup(context.Background(), config.Defaults().Telemetry)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if p.Logger != slog.Default() {
		t.Error("Setup without endpoint should log through slog.Default")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestLogWithTrace_NoSpan(t *testing.T) {
	logger := slog.Default()
	// Context with no span should return the same logger.
	got := telemetry.LogWithTrace(context.Background(), logger)
	if got == nil {
		t.Fatal("LogWithTrace() returned nil")
	}
}

func TestLogWithTrace_WithSpan(t *testing.T) {
	p := telemetry.NewNopProvider()
	ctx, span := p.TracerProvider.Tracer("test").Start(context.Background(), "bid")
	defer span.End()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	telemetry.LogWithTrace(ctx, logger).Info("bid accepted")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decoding log line: %v", err)
	}
	sc := span.SpanContext()
	if line["trace_id"] != sc.TraceID().String() {
		t.Errorf("trace_id = %v, want %s", line["trace_id"], sc.TraceID())
	}
	if line["span_id"] != sc.SpanID().String() {
		t.Errorf("span_id = %v, want %s", line["span_id"], sc.SpanID())
	}
}

func TestNewResource(t *testing.T) {
	t.Setenv(telemetry.EnvInstanceID, "auctiond-0")
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "league=premier")

	cfg := config.Defaults().Telemetry
	cfg.Environment = "staging"

	res, err := telemetry.NewResource(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewResource() error = %v", err)
	}

	want := map[attribute.Key]string{
		semconv.ServiceNameKey:           "auctiond",
		semconv.ServiceVersionKey:        "0.1.0",
		semconv.DeploymentEnvironmentKey: "staging",
		semconv.ServiceInstanceIDKey:     "auctiond-0",
		"league":                         "premier",
	}
	set := res.Set()
	for k, v := range want {
		got, ok := set.Value(k)
		if !ok {
			t.Errorf("resource missing %s", k)
			continue
		}
		if got.AsString() != v {
			t.Errorf("%s = %q, want %q", k, got.AsString(), v)
		}
	}
}

func TestNewResource_NoEnvironment(t *testing.T) {
	t.Setenv(telemetry.EnvInstanceID, "")

	res, err := telemetry.NewResource(context.Background(), config.Defaults().Telemetry)
	if err != nil {
		t.Fatalf("NewResource() error = %v", err)
	}
	if _, ok := res.Set().Value(semconv.DeploymentEnvironmentKey); ok {
		t.Error("deployment.environment set without a configured environment")
	}
	if _, ok := res.Set().Value(semconv.ServiceInstanceIDKey); ok {
		t.Error("service.instance.id set without a pod name")
	}
}

func TestNewSampler(t *testing.T) {
	sampledParent := trace.ContextWithRemoteSpanContext(context.Background(),
		trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    trace.TraceID{0x01},
			SpanID:     trace.SpanID{0x02},
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		}))

	tests := []struct {
		name  string
		ratio float64
		ctx   context.Context
		want  bool
	}{
		{name: "all roots kept", ratio: 1, ctx: context.Background(), want: true},
		{name: "no roots kept", ratio: 0, ctx: context.Background(), want: false},
		{name: "sampled parent wins over ratio", ratio: 0, ctx: sampledParent, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(telemetry.NewSampler(tt.ratio)))
			t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

			_, span := tp.Tracer("test").Start(tt.ctx, "PlaceBid")
			defer span.End()
			if got := span.IsRecording(); got != tt.want {
				t.Errorf("IsRecording() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetricViews_SaleAmountBuckets(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithView(telemetry.MetricViews()...),
	)
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	hist, err := mp.Meter("test").Int64Histogram("auction.sale.amount")
	if err != nil {
		t.Fatal(err)
	}
	hist.Record(ctx, 1200)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(rm.ScopeMetrics) != 1 || len(rm.ScopeMetrics[0].Metrics) != 1 {
		t.Fatalf("got %d scopes, want one scope with one metric", len(rm.ScopeMetrics))
	}
	data, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Histogram[int64])
	if !ok {
		t.Fatalf("data is %T, want int64 histogram", rm.ScopeMetrics[0].Metrics[0].Data)
	}
	dp := data.DataPoints[0]
	if len(dp.Bounds) != len(telemetry.SaleAmountBuckets) {
		t.Fatalf("got %d bounds, want %d", len(dp.Bounds), len(telemetry.SaleAmountBuckets))
	}
	for i, b := range telemetry.SaleAmountBuckets {
		if dp.Bounds[i] != b {
			t.Errorf("bound[%d] = %v, want %v", i, dp.Bounds[i], b)
		}
	}
	// 1200 falls in (1000, 1500].
	if dp.BucketCounts[3] != 1 {
		t.Errorf("bucket counts = %v, want the 1200 sale in bucket 3", dp.BucketCounts)
	}
}
