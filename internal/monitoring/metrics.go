// Package monitoring exposes Prometheus metrics for the mining engine.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestCount    *prometheus.CounterVec

	tapsTotal        prometheus.Counter
	coinsMinted      *prometheus.CounterVec
	coinsSpent       *prometheus.CounterVec
	claimsTotal      *prometheus.CounterVec
	achievementsDone prometheus.Counter
	autoCollectUsers prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "miner_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "miner_http_requests_total",
			Help: "HTTP requests served.",
		}, []string{"route", "method", "status"}),
		tapsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "miner_taps_total",
			Help: "Manual taps processed.",
		}),
		coinsMinted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "miner_coins_minted_total",
			Help: "Coins credited to users by source.",
		}, []string{"source"}),
		coinsSpent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "miner_coins_spent_total",
			Help: "Coins debited from users by sink.",
		}, []string{"sink"}),
		claimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "miner_claims_total",
			Help: "Passive income claims by mode.",
		}, []string{"mode"}),
		achievementsDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "miner_achievements_completed_total",
			Help: "Achievements completed.",
		}),
		autoCollectUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "miner_autocollect_users",
			Help: "Users with auto-collect enabled, from the last sweep.",
		}),
	}
	m.registry.MustRegister(
		m.requestDuration, m.requestCount,
		m.tapsTotal, m.coinsMinted, m.coinsSpent, m.claimsTotal,
		m.achievementsDone, m.autoCollectUsers,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTaps(n int64) { m.tapsTotal.Add(float64(n)) }
func (m *Metrics) ObserveMint(source string, n int64) {
	if n > 0 {
		m.coinsMinted.WithLabelValues(source).Add(float64(n))
	}
}
func (m *Metrics) ObserveSpend(sink string, n int64) {
	if n > 0 {
		m.coinsSpent.WithLabelValues(sink).Add(float64(n))
	}
}
func (m *Metrics) ObserveClaim(auto bool) {
	mode := "manual"
	if auto {
		mode = "auto"
	}
	m.claimsTotal.WithLabelValues(mode).Inc()
}
func (m *Metrics) ObserveAchievement()       { m.achievementsDone.Inc() }
func (m *Metrics) SetAutoCollectUsers(n int) { m.autoCollectUsers.Set(float64(n)) }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency per chi route pattern. The
// pattern is read after the handler runs, once routing has resolved it.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := strconv.Itoa(rec.status)
		m.requestCount.WithLabelValues(route, r.Method, status).Inc()
		m.requestDuration.WithLabelValues(route, r.Method, status).Observe(time.Since(start).Seconds())
	})
}
