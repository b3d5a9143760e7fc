package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pastiche/internal/jobs"
)

const namespace = "pastiche"

// Recorder implements jobs.Recorder and HTTP instrumentation on a dedicated
// Prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	jobsQueued     *prometheus.CounterVec
	jobWait        *prometheus.HistogramVec
	jobsFinished   *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	queueDepth     prometheus.Gauge
	artifactsSwept prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	filtersLoaded  prometheus.Gauge
}

var _ jobs.Recorder = (*Recorder)(nil)

// New creates a Recorder and registers its collectors. Go runtime and process
// collectors are included.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		jobsQueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_queued_total",
				Help:      "Total number of filter jobs accepted into the queue",
			},
			[]string{"filter"},
		),
		jobWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_wait_seconds",
				Help:      "Time jobs spent queued before a worker picked them up",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"filter"},
		),
		jobsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_finished_total",
				Help:      "Total number of filter jobs that reached a terminal state",
			},
			[]string{"filter", "status"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration of filter application including artifact IO",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
			},
			[]string{"filter", "status"},
		),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of jobs waiting for a worker",
		}),
		artifactsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_swept_total",
			Help:      "Total number of working artifacts removed by the age sweep",
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests handled",
			},
			[]string{"route", "method", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		filtersLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "filters_loaded",
			Help:      "Number of filters in the registry",
		}),
	}

	r.registry.MustRegister(
		r.jobsQueued,
		r.jobWait,
		r.jobsFinished,
		r.jobDuration,
		r.queueDepth,
		r.artifactsSwept,
		r.httpRequests,
		r.httpDuration,
		r.filtersLoaded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) JobQueued(filter string) {
	r.jobsQueued.WithLabelValues(filter).Inc()
}

func (r *Recorder) JobStarted(filter string, wait time.Duration) {
	if wait < 0 {
		wait = 0
	}
	r.jobWait.WithLabelValues(filter).Observe(wait.Seconds())
}

func (r *Recorder) JobFinished(filter string, status jobs.Status, duration time.Duration) {
	r.jobsFinished.WithLabelValues(filter, string(status)).Inc()
	// Jobs failed at shutdown never ran.
	if duration > 0 {
		r.jobDuration.WithLabelValues(filter, string(status)).Observe(duration.Seconds())
	}
}

func (r *Recorder) QueueDepth(depth int) {
	r.queueDepth.Set(float64(depth))
}

// ArtifactsSwept counts artifacts removed by one sweep pass.
func (r *Recorder) ArtifactsSwept(n int) {
	if n > 0 {
		r.artifactsSwept.Add(float64(n))
	}
}

// FiltersLoaded records the registry size.
func (r *Recorder) FiltersLoaded(n int) {
	r.filtersLoaded.Set(float64(n))
}

// Middleware records request counts and latency labelled by the matched chi
// route pattern, so path parameters do not explode label cardinality.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		r.httpRequests.WithLabelValues(route, req.Method, strconv.Itoa(code)).Inc()
		r.httpDuration.WithLabelValues(route, req.Method).Observe(time.Since(start).Seconds())
	})
}
