package observe

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "dispenser_"

var (
	registerOnce sync.Once

	readingsIngested *prometheus.CounterVec
	anomaliesFound   *prometheus.CounterVec
	apiRequests      *prometheus.CounterVec
	apiLatency       *prometheus.HistogramVec
	ingestDropped    prometheus.Counter
)

// Init registers the process counters. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		readingsIngested = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_ingested_total",
				Help: "Total readings accepted into the pipeline by sensor",
			},
			[]string{"sensor"},
		)
		anomaliesFound = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "anomalies_total",
				Help: "Total anomalies detected by kind and rule",
			},
			[]string{"kind", "rule"},
		)
		apiRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "api_requests_total",
				Help: "Total API requests by route and status",
			},
			[]string{"route", "status"},
		)
		apiLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "api_latency_seconds",
				Help:    "API request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		)
		ingestDropped = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_dropped_total",
				Help: "Readings dropped because the ingest channel was full",
			},
		)

		prometheus.MustRegister(
			readingsIngested,
			anomaliesFound,
			apiRequests,
			apiLatency,
			ingestDropped,
		)
	})
}

// Handler exposes the scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncReadingIngested(sensor string) {
	if readingsIngested != nil {
		readingsIngested.WithLabelValues(sensor).Inc()
	}
}

func AddAnomalies(kind, rule string, count int) {
	if count <= 0 {
		return
	}
	if anomaliesFound != nil {
		anomaliesFound.WithLabelValues(kind, rule).Add(float64(count))
	}
}

func ObserveAPIRequest(route, status string, duration time.Duration) {
	if apiRequests != nil {
		apiRequests.WithLabelValues(route, status).Inc()
	}
	if apiLatency != nil {
		apiLatency.WithLabelValues(route).Observe(duration.Seconds())
	}
}

func IncIngestDropped() {
	if ingestDropped != nil {
		ingestDropped.Inc()
	}
}
