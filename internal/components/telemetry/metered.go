package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeteredAPI forwards everything to inner and also records ReportCount
// values on an OpenTelemetry gauge, keyed by report id.
type MeteredAPI struct {
	API
	gauge metric.Int64Gauge
}

func NewMeteredAPI(inner API) MeteredAPI {
	meter := otel.Meter("otelms-backend")
	gauge, err := meter.Int64Gauge("otelms.count")
	if err != nil {
		inner.ReportBroken("telemetry.new-metered-api", err)
	}
	return MeteredAPI{API: inner, gauge: gauge}
}

func (m MeteredAPI) ReportCount(id string, count int64) {
	m.API.ReportCount(id, count)
	if m.gauge == nil {
		return
	}
	m.gauge.Record(
		context.Background(),
		count,
		metric.WithAttributes(attribute.String("id", id)),
	)
}
