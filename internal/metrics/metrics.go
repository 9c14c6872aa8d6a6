// Package metrics exposes Prometheus instruments for the line service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service's instruments on one registry
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests     *prometheus.CounterVec
	Predictions      prometheus.Counter
	Simulations      prometheus.Counter
	SimulatedMatches prometheus.Counter
	BetsPlaced       *prometheus.CounterVec
	BetsRejected     prometheus.Counter
	BetAmount        prometheus.Histogram
	Payouts          prometheus.Histogram
	SideEffectErrors *prometheus.CounterVec
}

// New registers the service instruments on a fresh registry along with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "endpoint", "code"},
		),
		Predictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "line_predictions_total",
			Help: "Total match predictions computed",
		}),
		Simulations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "line_simulations_total",
			Help: "Total simulation batches run",
		}),
		SimulatedMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "line_simulated_matches_total",
			Help: "Total synthetic matches generated by simulations",
		}),
		BetsPlaced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "line_bets_placed_total",
				Help: "Total bets accepted into the ledger",
			},
			[]string{"side", "type"},
		),
		BetsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "line_bets_rejected_total",
			Help: "Total bets rejected by validation",
		}),
		BetAmount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "line_bet_amount",
			Help:    "Stake of accepted bets",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		Payouts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "line_payout_multiplier",
			Help:    "Payout multipliers offered per alliance",
			Buckets: []float64{1.01, 1.05, 1.1, 1.2, 1.3, 1.4, 1.5},
		}),
		SideEffectErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "line_side_effect_errors_total",
				Help: "Cache, analytics or publish failures after a successful operation",
			},
			[]string{"target"},
		),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.Predictions,
		m.Simulations,
		m.SimulatedMatches,
		m.BetsPlaced,
		m.BetsRejected,
		m.BetAmount,
		m.Payouts,
		m.SideEffectErrors,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Instrument counts requests to endpoint by method and status code
func (m *Metrics) Instrument(endpoint string, next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(
		m.HTTPRequests.MustCurryWith(prometheus.Labels{"endpoint": endpoint}),
		next,
	)
}
