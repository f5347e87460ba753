package middleware

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Harshitk-cp/lqe/internal/metrics"
)

// MetricsCollector counts requests and errors for the JSON /metrics
// endpoint and feeds the prometheus collectors.
type MetricsCollector struct {
	requestCount *atomic.Int64
	errorCount   *atomic.Int64
	prom         *metrics.Metrics
}

// NewMetricsCollector creates a new metrics collector. prom may be nil.
func NewMetricsCollector(requestCount, errorCount *atomic.Int64, prom *metrics.Metrics) *MetricsCollector {
	return &MetricsCollector{
		requestCount: requestCount,
		errorCount:   errorCount,
		prom:         prom,
	}
}

// Middleware returns middleware that counts requests and errors.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		mc.requestCount.Add(1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		// 4xx and 5xx
		if rw.statusCode >= 400 {
			mc.errorCount.Add(1)
		}
		mc.prom.ObserveRequest(rw.statusCode, time.Since(start))
	})
}
