// Package metrics exposes Prometheus metrics for the transcription service.
// Each Metrics value owns its registry so tests and multiple servers never
// collide on global registration.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "transcripts"

// Metrics holds every collector the service records into.
type Metrics struct {
	registry  *prometheus.Registry
	startTime time.Time

	// Webhook intake
	EventsReceived  *prometheus.CounterVec // channel, kind
	MalformedEvents *prometheus.CounterVec // channel
	EventsDropped   *prometheus.CounterVec // channel
	QueueDepth      prometheus.Gauge

	// Pipeline
	PreferenceUpdates     *prometheus.CounterVec // language
	TranscriptionRequests *prometheus.CounterVec // backend, language
	TranscriptionFailures *prometheus.CounterVec // stage
	TranscriptionDuration prometheus.Histogram
	TranscriptConfidence  prometheus.Histogram
	AudioDuration         prometheus.Histogram
	RepliesSent           *prometheus.CounterVec // channel
	RepliesFailed         *prometheus.CounterVec // channel

	// HTTP
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates a Metrics value registered on a fresh registry that also
// carries the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		EventsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Inbound events accepted from webhooks",
		}, []string{"channel", "kind"}),
		MalformedEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_events_total",
			Help:      "Webhook sub-entries skipped as malformed",
		}, []string{"channel"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Inbound events dropped because the work queue was full or closed",
		}, []string{"channel"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Events waiting in the work queue",
		}),

		PreferenceUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preference_updates_total",
			Help:      "Language preferences set by senders",
		}, []string{"language"}),
		TranscriptionRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_requests_total",
			Help:      "Audio messages sent to the speech backend",
		}, []string{"backend", "language"}),
		TranscriptionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_failures_total",
			Help:      "Audio messages that ended in an apology, by failing stage",
		}, []string{"stage"}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Speech backend latency",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.5 minutes
		}),
		TranscriptConfidence: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcript_confidence",
			Help:      "Confidence of completed transcripts",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		AudioDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_duration_seconds",
			Help:      "Duration of normalized voice recordings",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		RepliesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_sent_total",
			Help:      "Outbound messages delivered",
		}, []string{"channel"}),
		RepliesFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_failed_total",
			Help:      "Outbound messages that could not be delivered",
		}, []string{"channel"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Time since start in seconds",
	}, func() float64 { return m.Uptime().Seconds() })

	return m
}

// Uptime returns how long the metrics have been collected.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler renders the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordEvent(channel, kind string) {
	m.EventsReceived.WithLabelValues(channel, kind).Inc()
}

func (m *Metrics) RecordMalformed(channel string, n int) {
	m.MalformedEvents.WithLabelValues(channel).Add(float64(n))
}

func (m *Metrics) RecordDropped(channel string) {
	m.EventsDropped.WithLabelValues(channel).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) RecordPreference(languageCode string) {
	m.PreferenceUpdates.WithLabelValues(languageCode).Inc()
}

// RecordTranscription records a successful backend call.
func (m *Metrics) RecordTranscription(backend, languageCode string, elapsed time.Duration, confidence, audioSeconds float64) {
	m.TranscriptionRequests.WithLabelValues(backend, languageCode).Inc()
	m.TranscriptionDuration.Observe(elapsed.Seconds())
	m.TranscriptConfidence.Observe(confidence)
	m.AudioDuration.Observe(audioSeconds)
}

// RecordFailure records an audio message that ended in an apology.
func (m *Metrics) RecordFailure(stage string) {
	m.TranscriptionFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordReply(channel string, err error) {
	if err != nil {
		m.RepliesFailed.WithLabelValues(channel).Inc()
		return
	}
	m.RepliesSent.WithLabelValues(channel).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

// Middleware wraps a handler with request counting under a fixed endpoint label.
func (m *Metrics) Middleware(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)
		m.RecordHTTPRequest(r.Method, endpoint, ww.statusCode, time.Since(start))
	})
}

// responseWriter captures the status code written by the wrapped handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
