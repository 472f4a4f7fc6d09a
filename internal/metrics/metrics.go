package metrics

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"strconv"
	"time"
)

var (
	RequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agrimarket_orders_created_total",
		Help: "Orders successfully created",
	})

	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrimarket_order_transitions_total",
			Help: "Committed order status transitions",
		},
		[]string{"from", "to"},
	)

	ReservationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrimarket_reservation_failures_total",
			Help: "Order creations refused by the inventory ledger",
		},
		[]string{"reason"},
	)

	StagesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrimarket_production_stages_completed_total",
			Help: "Completed production stages",
		},
		[]string{"stage"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrimarket_events_published_total",
			Help: "Domain events handed to the broker, by outcome",
		},
		[]string{"event_type", "outcome"},
	)
)

// unmatchedRoute labels requests no route matched, so scanners hitting
// random paths add no series.
const unmatchedRoute = "unmatched"

// Middleware records request count and latency labelled with the chi route
// pattern, so path parameters do not explode label cardinality.
func Middleware(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := unmatchedRoute
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					path = p
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			RequestCounter.WithLabelValues(service, r.Method, path, strconv.Itoa(status)).Inc()
			RequestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

func Handler() http.Handler { return promhttp.Handler() }
