package recorder

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/starford/geotracker/internal/recorder"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
