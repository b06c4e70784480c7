// Package metrics builds the single prometheus.Registry the router binary
// exposes on /metrics, and wires its counters into the ingestor, strategy,
// and executor packages. Grounded on the teacher's promauto-based
// internal/telemetry/metrics/provider_health.go, but registered against a
// dedicated non-default registry rather than the global one, so tests can
// build independent routers without collector-already-registered panics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sawpanic/dexrouter/internal/executor"
	"github.com/sawpanic/dexrouter/internal/ingest"
	"github.com/sawpanic/dexrouter/internal/strategy"
)

// RouterMetrics owns the registry and every counter handed to the router's
// pipeline stages.
type RouterMetrics struct {
	Registry *prometheus.Registry

	Ingest   ingest.Metrics
	Strategy strategy.Metrics
	Executor executor.Metrics
}

// NewRouterMetrics constructs a fresh registry and registers one counter per
// pipeline stage event named in the catalog/ingest/strategy/executor flow.
func NewRouterMetrics() *RouterMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &RouterMetrics{
		Registry: reg,
		Ingest: ingest.Metrics{
			UpdatesTotal: factory.NewCounter(prometheus.CounterOpts{
				Name: "dexrouter_ingest_updates_total",
				Help: "Account updates received from the feed, including dropped and failed ones.",
			}),
			DroppedTotal: factory.NewCounter(prometheus.CounterOpts{
				Name: "dexrouter_ingest_dropped_total",
				Help: "Account updates dropped for lacking an owning venue.",
			}),
			UpdateFailures: factory.NewCounter(prometheus.CounterOpts{
				Name: "dexrouter_ingest_update_failures_total",
				Help: "Venue Update calls that returned an error.",
			}),
		},
		Strategy: strategy.Metrics{
			RequestsTotal: factory.NewCounter(prometheus.CounterOpts{
				Name: "dexrouter_strategy_requests_total",
				Help: "Quote and swap requests handled by the strategy.",
			}),
			NoRouteTotal: factory.NewCounter(prometheus.CounterOpts{
				Name: "dexrouter_strategy_no_route_total",
				Help: "Requests for which no active venue produced liquidity.",
			}),
		},
		Executor: executor.Metrics{
			SubmittedTotal: factory.NewCounter(prometheus.CounterOpts{
				Name: "dexrouter_executor_submitted_total",
				Help: "Swap jobs submitted and signed successfully.",
			}),
			FailedTotal: factory.NewCounter(prometheus.CounterOpts{
				Name: "dexrouter_executor_failed_total",
				Help: "Swap jobs that failed signing or submission.",
			}),
		},
	}
}
