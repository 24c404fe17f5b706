package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the gateway.
type Metrics struct {
	HTTPRequests          *prometheus.CounterVec
	TokensStreamed        prometheus.Counter
	StreamsTotal          *prometheus.CounterVec
	SynthesisByTier       *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	EngineErrors          *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status class.",
		}, []string{"endpoint", "status"}),
		TokensStreamed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_streamed_total",
			Help:      "Generation tokens relayed to clients.",
		}),
		StreamsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_streams_total",
			Help:      "Chat streams by terminal outcome.",
		}, []string{"outcome"}),
		SynthesisByTier: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_total",
			Help:      "Completed syntheses by producing tier.",
		}, []string{"tier"}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Wall-clock transcription time in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 25, 60},
		}),
		EngineErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_errors_total",
			Help:      "Engine failures by engine and code.",
		}, []string{"engine", "code"}),
	}
}

func (m *Metrics) ObserveTranscription(d time.Duration) {
	m.TranscriptionDuration.Observe(d.Seconds())
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
