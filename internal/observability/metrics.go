package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	httpErrorsTotal       *prometheus.CounterVec
	harvestAttemptsTotal  *prometheus.CounterVec
	evaluationItemsTotal  *prometheus.CounterVec
	evaluationAverageLast *prometheus.GaugeVec
)

// RegisterMetrics initialises the Prometheus collectors shared by the harvester and the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "captcha_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "captcha_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 10.0, 60.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "captcha_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		harvestAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "captcha_harvest_attempts_total",
			Help: "Harvest iterations by outcome (saved, fetch_timeout, extraction_error, fetch_error, persist_error).",
		}, []string{"outcome"})

		evaluationItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "captcha_evaluation_items_total",
			Help: "Evaluated items by whether the completion contains the answer.",
		}, []string{"model", "contains_answer"})

		evaluationAverageLast = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "captcha_evaluation_average_similarity",
			Help: "Average similarity of the most recent evaluation run.",
		}, []string{"model", "detail"})

		prometheus.MustRegister(httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			harvestAttemptsTotal, evaluationItemsTotal, evaluationAverageLast)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// HarvestAttempts exposes the harvest outcome counter.
func HarvestAttempts() *prometheus.CounterVec {
	RegisterMetrics()
	return harvestAttemptsTotal
}

// EvaluationItems exposes the per-item evaluation counter.
func EvaluationItems() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationItemsTotal
}

// EvaluationAverage exposes the last-run average similarity gauge.
func EvaluationAverage() *prometheus.GaugeVec {
	RegisterMetrics()
	return evaluationAverageLast
}
