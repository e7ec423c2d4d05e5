package middleware

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

type MetricsMiddleware struct {
	requestCounter   *metrics.Counter
	responseTimeHist *metrics.Histogram
	requestSizeHist  *metrics.Histogram
	responseSizeHist *metrics.Histogram
}

// inFlight backs one gauge shared by every MetricsMiddleware.
var (
	inFlight      atomic.Int64
	inFlightGauge = metrics.NewGauge("http_requests_in_flight", func() float64 {
		return float64(inFlight.Load())
	})
)

// NewMetricsMiddleware registers the http_* metrics in the default set.
// Calling it twice reuses the same metrics.
func NewMetricsMiddleware() *MetricsMiddleware {
	return &MetricsMiddleware{
		requestCounter:   metrics.GetOrCreateCounter("http_requests_total"),
		responseTimeHist: metrics.GetOrCreateHistogram("http_response_time_seconds"),
		requestSizeHist:  metrics.GetOrCreateHistogram("http_request_size_bytes"),
		responseSizeHist: metrics.GetOrCreateHistogram("http_response_size_bytes"),
	}
}

func statusCounter(code int) *metrics.Counter {
	return metrics.GetOrCreateCounter(`http_response_status_total{code="` + strconv.Itoa(code) + `"}`)
}

func (m *MetricsMiddleware) WithMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if r.ContentLength > 0 {
			m.requestSizeHist.Update(float64(r.ContentLength))
		}

		sr := newStatusRecorder(w)

		m.requestCounter.Inc()
		inFlight.Add(1)
		defer inFlight.Add(-1)
		next.ServeHTTP(sr, r)

		m.responseTimeHist.UpdateDuration(start)
		statusCounter(sr.statusCode).Inc()
		m.responseSizeHist.Update(float64(sr.length))
	})
}

// ServeHTTP exposes every registered metric in Prometheus text format.
func (m *MetricsMiddleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.WritePrometheus(w, true)
}
