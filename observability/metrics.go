package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

type httpMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics

	swapMetricsOnce sync.Once
	swapRegistry    *SwapMetrics
)

// HTTP returns the lazily-initialised registry recording API handler activity.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "arcade",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "arcade",
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "Total API errors segmented by route and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "arcade",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "arcade",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			httpRegistry.requests,
			httpRegistry.errors,
			httpRegistry.latency,
			httpRegistry.throttles,
		)
	})
	return httpRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *httpMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards remain consistent.
func (m *httpMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// SwapMetrics captures engine operation outcomes and oracle health.
type SwapMetrics struct {
	operations  *prometheus.CounterVec
	errors      *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	oraclePrice *prometheus.GaugeVec
	oracleAge   *prometheus.GaugeVec
}

// Swap returns the singleton metrics registry for swap operations.
func Swap() *SwapMetrics {
	swapMetricsOnce.Do(func() {
		swapRegistry = &SwapMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "arcade",
				Subsystem: "swap",
				Name:      "operations_total",
				Help:      "Count of swap operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "arcade",
				Subsystem: "swap",
				Name:      "errors_total",
				Help:      "Count of swap failures segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "arcade",
				Subsystem: "swap",
				Name:      "duration_seconds",
				Help:      "Latency distribution for swap operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			oraclePrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "arcade",
				Subsystem: "oracle",
				Name:      "price",
				Help:      "Latest aggregated reserve price (1.0 == 1e18 scaled down to float).",
			}, []string{"asset"}),
			oracleAge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "arcade",
				Subsystem: "oracle",
				Name:      "age_seconds",
				Help:      "Age of the freshest accepted oracle quote.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			swapRegistry.operations,
			swapRegistry.errors,
			swapRegistry.latency,
			swapRegistry.oraclePrice,
			swapRegistry.oracleAge,
		)
	})
	return swapRegistry
}

// Observe records one engine operation. reason is a stable error class and
// is ignored on success.
func (m *SwapMetrics) Observe(operation string, duration time.Duration, reason string) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if reason != "" {
		outcome = "error"
		m.errors.WithLabelValues(op, reason).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordOraclePrice publishes the latest aggregated price.
func (m *SwapMetrics) RecordOraclePrice(asset string, price *uint256.Int, age time.Duration) {
	if m == nil || price == nil {
		return
	}
	label := labelAsset(asset)
	m.oraclePrice.WithLabelValues(label).Set(scaledToFloat(price.ToBig()))
	m.oracleAge.WithLabelValues(label).Set(age.Seconds())
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

var priceScale = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

func scaledToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).Quo(new(big.Float).SetInt(value), priceScale).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
