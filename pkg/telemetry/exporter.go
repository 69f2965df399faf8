package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// defaultMeterName is used when InitMetrics is called without a
// session-identifying name, e.g. from tests.
const defaultMeterName = "tradesession_core"

// InitMetrics initializes the Prometheus exporter, sets the global meter
// provider, and registers the session's instruments under meterName. This
// is a single-instrument engine (spec.md §1): callers should pass a
// symbol-qualified name such as "tradesession_BTCUSDT" so metrics from
// multiple concurrently-running paper/live sessions scraped by the same
// Prometheus target stay distinguishable by meter name rather than
// colliding under one label-less series.
func InitMetrics(meterName string) error {
	if meterName == "" {
		meterName = defaultMeterName
	}

	exporter, err := prometheus.New()
	if err != nil {
		return err
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	holder := GetGlobalMetrics()
	meter := provider.Meter(meterName)
	if err := holder.InitMetrics(meter); err != nil {
		return err
	}

	return nil
}
