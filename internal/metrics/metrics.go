package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker metrics

	JobsClaimedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sequencer",
		Name:      "jobs_claimed_total",
		Help:      "Total jobs claimed by worker ticks.",
	})

	JobsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sequencer",
		Name:      "jobs_processed_total",
		Help:      "Total jobs finished, by outcome.",
	}, []string{"outcome"})

	SendDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sequencer",
		Name:      "send_duration_seconds",
		Help:      "Duration of one provider send, by result.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"result"})

	RunsTransitionedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sequencer",
		Name:      "runs_transitioned_total",
		Help:      "Sequence run status transitions, by target state.",
	}, []string{"to"})

	ReaperReclaimedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sequencer",
		Name:      "reaper_reclaimed_total",
		Help:      "Stale claimed jobs returned to scheduled by the reaper.",
	})

	WorkerTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sequencer",
		Name:      "worker_tick_duration_seconds",
		Help:      "Time taken for one worker tick.",
		Buckets:   prometheus.DefBuckets,
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sequencer",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sequencer",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		JobsClaimedTotal,
		JobsProcessedTotal,
		SendDuration,
		RunsTransitionedTotal,
		ReaperReclaimedTotal,
		WorkerTickDuration,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// HealthHandler is implemented by health.Checker.
type HealthHandler interface {
	LivenessHandler() http.Handler
	ReadinessHandler() http.Handler
}

func NewServer(addr string, checker HealthHandler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if checker != nil {
		mux.Handle("/healthz", checker.LivenessHandler())
		mux.Handle("/readyz", checker.ReadinessHandler())
	}
	return &http.Server{Addr: addr, Handler: mux}
}
