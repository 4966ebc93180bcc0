package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	tokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capgate_tokens_issued_total",
			Help: "Tokens issued by type.",
		},
		[]string{"type"},
	)

	tokenVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capgate_token_verifications_total",
			Help: "Token verifications by outcome.",
		},
		[]string{"outcome"},
	)

	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capgate_authorization_decisions_total",
			Help: "Authorization decisions by required capability.",
		},
		[]string{"capability", "decision"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "capgate_ready",
		Help: "1 when the service passed its last readiness check.",
	})

	initOnce sync.Once
)

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			tokensIssued, tokenVerifications, authzDecisions, ready,
		)
	})
}

// Handler exposes the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTokenIssued counts an issued token of the given type.
func RecordTokenIssued(tokenType string) {
	tokensIssued.WithLabelValues(tokenType).Inc()
}

// RecordTokenVerification counts a verification outcome ("ok" or an error kind).
func RecordTokenVerification(outcome string) {
	tokenVerifications.WithLabelValues(outcome).Inc()
}

// RecordAuthorization counts an allow or deny decision for capability.
func RecordAuthorization(capability, decision string) {
	authzDecisions.WithLabelValues(capability, decision).Inc()
}

// SetReady records the result of the last readiness probe.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Instrument records RPS, latency and in-flight requests for next.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses identifier segments so metric label cardinality
// stays bounded: /api/v1/posts/abc becomes /api/v1/:model/:id.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "v1" {
		switch len(parts) {
		case 3:
			return "/api/v1/:model"
		case 4:
			return "/api/v1/:model/:id"
		}
	}
	return path
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
