package processor

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/timzifer/tsconsole/config"
	"github.com/timzifer/tsconsole/telemetry"
)

func newTelemetryCollector(cfg config.TelemetryConfig) (telemetry.Collector, error) {
	if !cfg.Enabled {
		return telemetry.Noop(), nil
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", "prometheus":
		collector, err := telemetry.NewPrometheusCollector(nil)
		if err != nil {
			return nil, err
		}
		return collector, nil
	default:
		return telemetry.Noop(), fmt.Errorf("unsupported telemetry provider %q", cfg.Provider)
	}
}

// metricsHandler returns the scrape endpoint for collectors exporting to the
// default Prometheus registry.
func metricsHandler(collector telemetry.Collector) http.Handler {
	if _, ok := collector.(*telemetry.PrometheusCollector); !ok {
		return nil
	}
	return promhttp.Handler()
}
