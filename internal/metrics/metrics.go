package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Market data
	marketFetches *prometheus.CounterVec
	marketRetries *prometheus.CounterVec
	priceCache    *prometheus.CounterVec

	// Analytics
	backtestsTotal       *prometheus.CounterVec
	backtestDuration     prometheus.Histogram
	optimizationsTotal   *prometheus.CounterVec
	optimizationDuration prometheus.Histogram
	optimizerTrials      *prometheus.CounterVec
	jobsActive           *prometheus.GaugeVec

	// Ledger
	tradesTotal         *prometheus.CounterVec
	tradeRejections     *prometheus.CounterVec
	persistenceFailures prometheus.Counter

	notifications *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.marketFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinquant_market_fetch_total",
			Help: "Market data HTTP attempts by endpoint and outcome",
		},
		[]string{"source", "status"},
	)
	r.marketRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinquant_market_retries_total",
			Help: "Market data requests retried after a transient failure",
		},
		[]string{"source"},
	)
	r.priceCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinquant_price_cache_total",
			Help: "Current price lookups by cache result",
		},
		[]string{"result"},
	)
	r.backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinquant_backtests_total",
			Help: "Total number of backtests",
		},
		[]string{"status"},
	)
	r.backtestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skinquant_backtest_duration_seconds",
			Help:    "Backtest duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30},
		},
	)
	r.optimizationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinquant_optimizations_total",
			Help: "Total number of parameter optimisations",
		},
		[]string{"status"},
	)
	r.optimizationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skinquant_optimization_duration_seconds",
			Help:    "Parameter optimisation duration in seconds",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120},
		},
	)
	r.optimizerTrials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinquant_optimizer_trials_total",
			Help: "Parameter combinations evaluated or skipped",
		},
		[]string{"outcome"},
	)
	r.jobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skinquant_jobs_active",
			Help: "Number of active jobs",
		},
		[]string{"type"},
	)
	r.tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinquant_trades_total",
			Help: "Ledger trades by action and outcome",
		},
		[]string{"action", "status"},
	)
	r.tradeRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinquant_trade_rejections_total",
			Help: "Rejected trades by rejection code",
		},
		[]string{"kind"},
	)
	r.persistenceFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skinquant_persistence_failures_total",
			Help: "Account saves that did not complete",
		},
	)

	r.notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skinquant_notifications_total",
			Help: "Signal batches sent per notifier and outcome",
		},
		[]string{"notifier", "status"},
	)

	reg.MustRegister(r.marketFetches)
	reg.MustRegister(r.marketRetries)
	reg.MustRegister(r.priceCache)
	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)
	reg.MustRegister(r.optimizationsTotal)
	reg.MustRegister(r.optimizationDuration)
	reg.MustRegister(r.optimizerTrials)
	reg.MustRegister(r.jobsActive)
	reg.MustRegister(r.tradesTotal)
	reg.MustRegister(r.tradeRejections)
	reg.MustRegister(r.persistenceFailures)
	reg.MustRegister(r.notifications)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// ObserveFetch records one market data attempt under "<source>_<endpoint>".
func (r *Registry) ObserveFetch(source, endpoint string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.marketFetches.WithLabelValues(source+"_"+endpoint, status).Inc()
}

// ObserveRetry records a retried market data request.
func (r *Registry) ObserveRetry(source string) {
	r.marketRetries.WithLabelValues(source).Inc()
}

// ObservePriceCache records a price lookup as "hit" or "miss".
func (r *Registry) ObservePriceCache(result string) {
	r.priceCache.WithLabelValues(result).Inc()
}

// RecordBacktest records a backtest completion.
func (r *Registry) RecordBacktest(status string, duration float64) {
	r.backtestsTotal.WithLabelValues(status).Inc()
	r.backtestDuration.Observe(duration)
}

// RecordOptimization records an optimisation run and its trial counts.
func (r *Registry) RecordOptimization(status string, duration float64, evaluated, skipped int) {
	r.optimizationsTotal.WithLabelValues(status).Inc()
	r.optimizationDuration.Observe(duration)
	r.optimizerTrials.WithLabelValues("evaluated").Add(float64(evaluated))
	r.optimizerTrials.WithLabelValues("skipped").Add(float64(skipped))
}

// SetJobsActive sets the number of active jobs of a type.
func (r *Registry) SetJobsActive(jobType string, count int) {
	r.jobsActive.WithLabelValues(jobType).Set(float64(count))
}

// ObserveTrade records a ledger trade outcome.
func (r *Registry) ObserveTrade(action, status string) {
	r.tradesTotal.WithLabelValues(action, status).Inc()
}

// ObserveRejection records a rejected trade by code.
func (r *Registry) ObserveRejection(kind string) {
	r.tradeRejections.WithLabelValues(kind).Inc()
}

// ObservePersistenceFailure records an account save failure.
func (r *Registry) ObservePersistenceFailure() {
	r.persistenceFailures.Inc()
}

// ObserveNotification records one notifier delivery.
func (r *Registry) ObserveNotification(notifier string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.notifications.WithLabelValues(notifier, status).Inc()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
