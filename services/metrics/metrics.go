// Package metrics records moderation, store and HTTP metrics with Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/trezcool/coursereview/core/review"
	cachestore "github.com/trezcool/coursereview/storage/cache"
)

const namespace = "coursereview"

type Recorder struct {
	reviewsSubmitted *prometheus.CounterVec
	reviewsModerated *prometheus.CounterVec
	storeCalls       *prometheus.CounterVec
	storeDuration    *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

var (
	_ review.Recorder     = (*Recorder)(nil)
	_ cachestore.Recorder = (*Recorder)(nil)
)

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		reviewsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_submitted_total",
			Help:      "Reviews submitted for moderation.",
		}, []string{"course_type"}),
		reviewsModerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_moderated_total",
			Help:      "Pending reviews approved or rejected.",
		}, []string{"decision"}),
		storeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_calls_total",
			Help:      "Backend store calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_call_duration_seconds",
			Help:      "Backend store call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Snapshot cache lookups by result.",
		}, []string{"result"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_breaker_state",
			Help:      "Store circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"name"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	reg.MustRegister(
		r.reviewsSubmitted, r.reviewsModerated,
		r.storeCalls, r.storeDuration, r.cacheLookups, r.breakerState,
		r.httpRequests, r.httpDuration,
	)
	return r
}

func (r *Recorder) ReviewSubmitted(courseType string) {
	r.reviewsSubmitted.WithLabelValues(courseType).Inc()
}

func (r *Recorder) ReviewsModerated(decision string, n int) {
	r.reviewsModerated.WithLabelValues(decision).Add(float64(n))
}

func (r *Recorder) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

func (r *Recorder) StoreCall(op string, d time.Duration, err error) {
	r.storeCalls.WithLabelValues(op, outcome(err)).Inc()
	r.storeDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (r *Recorder) BreakerState(name string, state gobreaker.State) {
	r.breakerState.WithLabelValues(name).Set(stateValue(state))
}

func (r *Recorder) HTTPRequest(method, path string, status int, d time.Duration) {
	r.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
