package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akozlov/graphrag/internal/core/domain"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queriesTotal       *prometheus.CounterVec
	queryDuration      *prometheus.HistogramVec
	confidenceScore    *prometheus.HistogramVec
	retrievalHitTotal  *prometheus.CounterVec
	noContextTotal     *prometheus.CounterVec
	retrievedChunks    *prometheus.HistogramVec
	graphResults       *prometheus.HistogramVec
	uploadedBytesTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "grag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grag",
			Subsystem: "query",
			Name:      "total",
			Help:      "Total answered queries by classified type and guard verdict.",
		},
		[]string{"service", "query_type", "verdict"},
	)
	queryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grag",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end query pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "query_type"},
	)
	confidenceScore := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grag",
			Subsystem: "query",
			Name:      "confidence_score",
			Help:      "Distribution of confidence scores for generated answers.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
		[]string{"service"},
	)
	retrievalHitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grag",
			Subsystem: "query",
			Name:      "retrieval_hit_total",
			Help:      "Total queries with at least one retrieved source.",
		},
		[]string{"service"},
	)
	noContextTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grag",
			Subsystem: "query",
			Name:      "no_context_total",
			Help:      "Total queries rejected for lack of retrieved context.",
		},
		[]string{"service"},
	)
	retrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grag",
			Subsystem: "query",
			Name:      "retrieved_chunks",
			Help:      "Distribution of vector chunks retrieved per query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	graphResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "grag",
			Subsystem: "query",
			Name:      "graph_results",
			Help:      "Distribution of knowledge-graph results per query by kind.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
		[]string{"service", "kind"},
	)
	uploadedBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grag",
			Subsystem: "ingest",
			Name:      "uploaded_bytes_total",
			Help:      "Total bytes accepted for ingestion.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queriesTotal,
		queryDuration,
		confidenceScore,
		retrievalHitTotal,
		noContextTotal,
		retrievedChunks,
		graphResults,
		uploadedBytesTotal,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		queriesTotal:       queriesTotal,
		queryDuration:      queryDuration,
		confidenceScore:    confidenceScore,
		retrievalHitTotal:  retrievalHitTotal,
		noContextTotal:     noContextTotal,
		retrievedChunks:    retrievedChunks,
		graphResults:       graphResults,
		uploadedBytesTotal: uploadedBytesTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

// RecordAnswer feeds the per-query instruments from a finished answer.
func (m *HTTPServerMetrics) RecordAnswer(service string, answer *domain.Answer, duration time.Duration) {
	if answer == nil {
		return
	}
	m.queriesTotal.WithLabelValues(service, string(answer.QueryType), string(answer.Confidence.Verdict)).Inc()
	m.queryDuration.WithLabelValues(service, string(answer.QueryType)).Observe(duration.Seconds())
	m.confidenceScore.WithLabelValues(service).Observe(answer.Confidence.Score)

	m.retrievedChunks.WithLabelValues(service).Observe(float64(len(answer.Sources)))
	m.graphResults.WithLabelValues(service, "entities").Observe(float64(len(answer.KGContext.Entities)))
	m.graphResults.WithLabelValues(service, "relations").Observe(float64(len(answer.KGContext.Relations)))

	if len(answer.Sources) > 0 || !answer.KGContext.Empty() {
		m.retrievalHitTotal.WithLabelValues(service).Inc()
		return
	}
	m.noContextTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordUpload(service string, bytes int64) {
	if bytes <= 0 {
		return
	}
	m.uploadedBytesTotal.WithLabelValues(service).Add(float64(bytes))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
