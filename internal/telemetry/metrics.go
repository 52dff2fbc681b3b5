package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitMeterProvider initializes the Prometheus exporter and MeterProvider.
// It returns an http.Handler for the /metrics endpoint and a shutdown function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	if err := runtime.Start(); err != nil {
		return nil, nil, err
	}

	return promhttp.Handler(), mp.Shutdown, nil
}

// Metrics holds the marketplace's domain counters. A nil *Metrics is a no-op.
type Metrics struct {
	ordersCreated   metric.Int64Counter
	ordersCancelled metric.Int64Counter
	paymentStatus   metric.Int64Counter
	downloads       metric.Int64Counter
	gatewayCalls    metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	ordersCreated, err := meter.Int64Counter("botmarket.orders.created",
		metric.WithDescription("Orders created"))
	if err != nil {
		return nil, err
	}
	ordersCancelled, err := meter.Int64Counter("botmarket.orders.cancelled",
		metric.WithDescription("Orders cancelled by their owner"))
	if err != nil {
		return nil, err
	}
	paymentStatus, err := meter.Int64Counter("botmarket.payments.status_changes",
		metric.WithDescription("Payment status changes by target status"))
	if err != nil {
		return nil, err
	}
	downloads, err := meter.Int64Counter("botmarket.downloads",
		metric.WithDescription("Successful template downloads"))
	if err != nil {
		return nil, err
	}
	gatewayCalls, err := meter.Int64Counter("botmarket.gateway.calls",
		metric.WithDescription("Bot gateway calls by operation and outcome"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ordersCreated:   ordersCreated,
		ordersCancelled: ordersCancelled,
		paymentStatus:   paymentStatus,
		downloads:       downloads,
		gatewayCalls:    gatewayCalls,
	}, nil
}

func (m *Metrics) OrderCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.ordersCreated.Add(ctx, 1)
}

func (m *Metrics) OrderCancelled(ctx context.Context) {
	if m == nil {
		return
	}
	m.ordersCancelled.Add(ctx, 1)
}

func (m *Metrics) PaymentStatus(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.paymentStatus.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) Download(ctx context.Context) {
	if m == nil {
		return
	}
	m.downloads.Add(ctx, 1)
}

func (m *Metrics) GatewayCall(ctx context.Context, operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.gatewayCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}
