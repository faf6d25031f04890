package metrics

import "github.com/prometheus/client_golang/prometheus"

// Query pipeline Prometheus metrics.
var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "examdex",
			Name:      "queries_total",
			Help:      "Total number of classified queries",
		},
		[]string{"intent"},
	)

	AnswerConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "examdex",
			Name:      "answer_confidence",
			Help:      "Confidence scores of generated answers",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
	)

	ModelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "examdex",
			Name:      "model_requests_total",
			Help:      "Total number of answer generation requests",
		},
		[]string{"model", "status"},
	)
)

var queryMetricsRegistered bool

// RegisterQueryMetrics registers Prometheus query metrics. Must be called once from main.
func RegisterQueryMetrics() {
	if queryMetricsRegistered {
		return
	}
	prometheus.MustRegister(QueriesTotal)
	prometheus.MustRegister(AnswerConfidence)
	prometheus.MustRegister(ModelRequestsTotal)
	queryMetricsRegistered = true
}
