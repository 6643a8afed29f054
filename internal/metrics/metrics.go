package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flight_explorer"

// Metrics holds all prometheus metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Searches        *prometheus.CounterVec
	SearchDuration  prometheus.Histogram
	FlightsCached   prometheus.Counter
	FavoriteToggles *prometheus.CounterVec
	ImageLookups    *prometheus.CounterVec
}

// New creates the metrics and registers them on a fresh registry, so several
// instances can coexist (one per test).
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Flight searches by outcome",
		}, []string{"outcome"}),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Time spent in the remote flight search",
			Buckets:   prometheus.DefBuckets,
		}),
		FlightsCached: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flights_cached_total",
			Help:      "Flights newly written to the flight cache",
		}),
		FavoriteToggles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "favorite_toggles_total",
			Help:      "Favorite toggles by persistence result",
		}, []string{"result"}),
		ImageLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_lookups_total",
			Help:      "Destination image lookups by source",
		}, []string{"source"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveImageLookup counts one image lookup from source.
func (m *Metrics) ObserveImageLookup(source string) {
	m.ImageLookups.WithLabelValues(source).Inc()
}
