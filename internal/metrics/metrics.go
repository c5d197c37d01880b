package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "calgrid"

const unknownRoute = "unknown"

// HTTP server.
var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests served, by route pattern.",
	}, []string{"method", "route"})

	httpServerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "errors_total",
		Help:      "HTTP requests answered with a 5xx status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "HTTP requests currently being served.",
	})
)

// Storage.
var dbLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "db",
	Name:      "latency_seconds",
	Help:      "Database call latency, by operation and the HTTP route that issued it.",
	Buckets:   prometheus.DefBuckets,
}, []string{"operation", "route"})

// Event sync, auth and jobs.
var (
	eventSyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_sync_total",
		Help:      "Event persistence calls issued by the sync queue.",
	}, []string{"op", "result"})

	eventSyncCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_sync_coalesced_total",
		Help:      "Queued event updates replaced by a newer one before being sent.",
	})

	loginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Login attempts by outcome.",
	}, []string{"method", "result"})

	tokensPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_purged_total",
		Help:      "Expired login tokens removed by the cleanup job.",
	})
)

// Middleware counts and times every request under its chi route pattern.
// It must be installed on the router that routes the request, so the pattern
// is resolved by the time the handler returns.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			httpInFlight.Inc()
			defer httpInFlight.Dec()

			began := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			code := strconv.Itoa(status)
			route := Route(r.Context())
			if route == unknownRoute {
				route = r.URL.Path
			}

			httpRequests.WithLabelValues(r.Method, route).Inc()
			httpDuration.WithLabelValues(r.Method, route, code).Observe(time.Since(began).Seconds())
			if status >= http.StatusInternalServerError {
				httpServerErrors.WithLabelValues(r.Method, route, code).Inc()
			}
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Route returns the chi route pattern matched for the request carried by ctx,
// or "unknown" outside a routed request.
func Route(ctx context.Context) string {
	rctx := chi.RouteContext(ctx)
	if rctx == nil {
		return unknownRoute
	}
	if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
		return pattern
	}
	return unknownRoute
}

// ObserveDBLatency records the duration of a database operation started at start.
func ObserveDBLatency(ctx context.Context, operation string, start time.Time) {
	dbLatency.WithLabelValues(operation, Route(ctx)).Observe(time.Since(start).Seconds())
}

// ObserveEventSync counts one persistence call made by the client sync queue.
func ObserveEventSync(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	eventSyncTotal.WithLabelValues(op, result).Inc()
}

// ObserveEventSyncCoalesced counts an update that was superseded while queued.
func ObserveEventSyncCoalesced() {
	eventSyncCoalesced.Inc()
}

// ObserveLogin counts a login attempt. method is "password" or "oidc".
func ObserveLogin(method string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	loginAttemptsTotal.WithLabelValues(method, result).Inc()
}

// ObserveTokensPurged adds n removed tokens.
func ObserveTokensPurged(n int64) {
	if n > 0 {
		tokensPurgedTotal.Add(float64(n))
	}
}
