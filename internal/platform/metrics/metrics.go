package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the listener.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         prometheus.Counter
	errorsTotal           prometheus.Counter
	activeSessions        prometheus.Gauge
	streamsOpenedTotal    prometheus.Counter
	streamsDroppedTotal   prometheus.Counter
	chunksReceivedTotal   prometheus.Counter
	transcriptionErrors   *prometheus.CounterVec
	researchEnqueuedTotal *prometheus.CounterVec
	researchSettledTotal  *prometheus.CounterVec
	extractionFailures    prometheus.Counter
}

// New creates and registers Prometheus metrics for the listener.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "listener_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "listener_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "listener_active_sessions",
		Help: "Number of open listening sessions",
	})
	streamsOpenedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "listener_chunk_streams_opened_total",
		Help: "Chunk stream connections opened",
	})
	streamsDroppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "listener_chunk_requests_dropped_total",
		Help: "Chunk range requests dropped because a stream was already in flight",
	})
	chunksReceivedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "listener_chunks_received_total",
		Help: "Chunk results received from transcription streams",
	})
	transcriptionErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listener_transcription_errors_total",
		Help: "Transcription failures by kind (metadata, stream, connection)",
	}, []string{"kind"})
	researchEnqueuedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listener_research_items_enqueued_total",
		Help: "Research items appended to session queues by origin",
	}, []string{"origin"})
	researchSettledTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "listener_research_items_settled_total",
		Help: "Research items that reached a terminal status",
	}, []string{"status"})
	extractionFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "listener_extraction_failures_total",
		Help: "Notable-context extraction calls that failed",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		activeSessions,
		streamsOpenedTotal,
		streamsDroppedTotal,
		chunksReceivedTotal,
		transcriptionErrors,
		researchEnqueuedTotal,
		researchSettledTotal,
		extractionFailures,
	)

	return &Metrics{
		registry:              registry,
		requestsTotal:         requestsTotal,
		errorsTotal:           errorsTotal,
		activeSessions:        activeSessions,
		streamsOpenedTotal:    streamsOpenedTotal,
		streamsDroppedTotal:   streamsDroppedTotal,
		chunksReceivedTotal:   chunksReceivedTotal,
		transcriptionErrors:   transcriptionErrors,
		researchEnqueuedTotal: researchEnqueuedTotal,
		researchSettledTotal:  researchSettledTotal,
		extractionFailures:    extractionFailures,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// IncStreamsOpened counts a chunk stream connection being opened.
func (m *Metrics) IncStreamsOpened() {
	m.streamsOpenedTotal.Inc()
}

// IncRequestsDropped counts a range request refused by the single-flight guard.
func (m *Metrics) IncRequestsDropped() {
	m.streamsDroppedTotal.Inc()
}

// IncChunksReceived counts one chunk result.
func (m *Metrics) IncChunksReceived() {
	m.chunksReceivedTotal.Inc()
}

// IncTranscriptionError counts a transcription failure of the given kind.
func (m *Metrics) IncTranscriptionError(kind string) {
	m.transcriptionErrors.WithLabelValues(kind).Inc()
}

// IncResearchEnqueued counts an appended research item.
func (m *Metrics) IncResearchEnqueued(origin string) {
	m.researchEnqueuedTotal.WithLabelValues(origin).Inc()
}

// IncResearchSettled counts a research item reaching completed or error.
func (m *Metrics) IncResearchSettled(status string) {
	m.researchSettledTotal.WithLabelValues(status).Inc()
}

// IncExtractionFailures counts a failed extraction call.
func (m *Metrics) IncExtractionFailures() {
	m.extractionFailures.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
