package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	upstreamRequestsTotal  *prometheus.CounterVec
	upstreamDuration       *prometheus.HistogramVec
	transcriptionFallbacks *prometheus.CounterVec
	audioFilesFailed       prometheus.Counter
	styleFilesSkipped      *prometheus.CounterVec
	minutesParseFailures   prometheus.Counter
	mockResponses          prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minutes_http_requests_total",
				Help: "Total number of HTTP requests handled.",
			},
			[]string{"route", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "minutes_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"route", "method", "status"},
		),
		upstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minutes_upstream_requests_total",
				Help: "Total upstream Gemini API requests.",
			},
			[]string{"endpoint", "status"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "minutes_upstream_request_duration_seconds",
				Help:    "Upstream request duration in seconds.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"endpoint", "status"},
		),
		transcriptionFallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minutes_transcription_fallback_total",
				Help: "Audio files that were transcribed by a fallback model.",
			},
			[]string{"model"},
		),
		audioFilesFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "minutes_transcription_failed_files_total",
				Help: "Audio files that contributed nothing because every model failed.",
			},
		),
		styleFilesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minutes_style_files_skipped_total",
				Help: "Style exemplar files skipped as unsupported or unreadable.",
			},
			[]string{"format"},
		),
		minutesParseFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "minutes_structured_parse_failures_total",
				Help: "Minutes responses replaced by placeholders after a schema violation.",
			},
		),
		mockResponses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "minutes_mock_responses_total",
				Help: "Minutes requests answered in mock mode.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.upstreamRequestsTotal,
		m.upstreamDuration,
		m.transcriptionFallbacks,
		m.audioFilesFailed,
		m.styleFilesSkipped,
		m.minutesParseFailures,
		m.mockResponses,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "UNKNOWN"
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(route, method, statusLabel).Inc()
	m.httpRequestDuration.WithLabelValues(route, method, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) ObserveUpstream(endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	statusLabel := strconv.Itoa(status)
	m.upstreamRequestsTotal.WithLabelValues(endpoint, statusLabel).Inc()
	m.upstreamDuration.WithLabelValues(endpoint, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) IncTranscriptionFallback(model string) {
	if m == nil {
		return
	}
	m.transcriptionFallbacks.WithLabelValues(model).Inc()
}

func (m *Metrics) IncAudioFileFailed() {
	if m == nil {
		return
	}
	m.audioFilesFailed.Inc()
}

func (m *Metrics) IncStyleFileSkipped(format string) {
	if m == nil {
		return
	}
	if format == "" {
		format = "unknown"
	}
	m.styleFilesSkipped.WithLabelValues(format).Inc()
}

func (m *Metrics) IncMinutesParseFailure() {
	if m == nil {
		return
	}
	m.minutesParseFailures.Inc()
}

func (m *Metrics) IncMockResponse() {
	if m == nil {
		return
	}
	m.mockResponses.Inc()
}
