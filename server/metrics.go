// MODUL: metrics
// ZWECK: Prometheus-Metriken fuer Requests, Encoder-Eingaben und Cache
// INPUT: Request-Status und Dauer aus der Middleware
// OUTPUT: /metrics im Prometheus-Textformat
// NEBENEFFEKTE: keine globalen Registrierungen, jede Server-Instanz hat eine eigene Registry
// ABHAENGIGKEITEN: github.com/prometheus/client_golang

package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inputs   *prometheus.CounterVec

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	factory := promauto.With(reg)
	return &metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cnclip_http_requests_total",
			Help: "Total number of HTTP requests processed",
		}, []string{"method", "path", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cnclip_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "path"}),
		inputs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cnclip_encoded_inputs_total",
			Help: "Texts and images passed to the encoders",
		}, []string{"kind"}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "cnclip_condition_cache_hits_total",
			Help: "Conditioning results served from the cache",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "cnclip_condition_cache_misses_total",
			Help: "Conditioning results computed by the conditioner",
		}),
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
