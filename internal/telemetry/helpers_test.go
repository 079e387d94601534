package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func metricOpt(lang string) metric.AddOption {
	return metric.WithAttributes(attribute.String("language", lang))
}
