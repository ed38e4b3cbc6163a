package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

const namespace = "roadmap"

// Metrics holds every collector the service exports. All methods are safe on
// a nil receiver so callers never branch on whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	aggregateOps       *prometheus.CounterVec
	aggregateLatency   *prometheus.HistogramVec
	aggregateConflicts *prometheus.CounterVec
	aggregateRetries   *prometheus.CounterVec
	rootLockWait       *prometheus.HistogramVec

	cascadeRuns      *prometheus.CounterVec
	cascadePersisted prometheus.Histogram
	cascadeLatency   prometheus.Histogram
	inconsistencies  *prometheus.CounterVec

	dbStats   *prometheus.GaugeVec
	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Init builds the process-wide Metrics once. It returns nil when disabled.
func Init(enabled bool, log *logger.Logger) *Metrics {
	if !enabled {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("prometheus metrics enabled")
		}
	})
	return instance
}

func Current() *Metrics {
	return instance
}

// NewMetrics returns Metrics on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		aggregateOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "aggregate_operations_total",
			Help: "Aggregate write operations by name and outcome code.",
		}, []string{"op", "status"}),
		aggregateLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "aggregate_operation_duration_seconds",
			Help:    "Aggregate write latency in seconds, cascade included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		aggregateConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "aggregate_conflicts_total",
			Help: "Aggregate writes that ended in a conflict.",
		}, []string{"op"}),
		aggregateRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "aggregate_retries_total",
			Help: "Aggregate writes re-run after a retryable failure.",
		}, []string{"op"}),
		rootLockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "root_lock_wait_seconds",
			Help:    "Time writers spent waiting for a roadmap root lock, by op and outcome.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"op", "acquired"}),
		cascadeRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "progress_cascades_total",
			Help: "Ancestor progress cascades by outcome.",
		}, []string{"status"}),
		cascadePersisted: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "progress_cascade_ancestors",
			Help:    "Ancestors persisted per cascade.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		cascadeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "progress_cascade_duration_seconds",
			Help:    "Cascade latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		inconsistencies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tree_inconsistencies_total",
			Help: "Broken parent references met during a cascade.",
		}, []string{"reason"}),
		dbStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "db_pool",
			Help: "database/sql pool statistics.",
		}, []string{"stat"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_up",
			Help: "Redis connectivity (1=up, 0=down).",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_ping_seconds",
			Help: "Redis ping latency in seconds.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.aggregateOps, m.aggregateLatency, m.aggregateConflicts, m.aggregateRetries, m.rootLockWait,
		m.cascadeRuns, m.cascadePersisted, m.cascadeLatency, m.inconsistencies,
		m.dbStats, m.redisUp, m.redisPing,
	)
	return m
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAggregateOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	op = labelOr(op, "unknown")
	m.aggregateOps.WithLabelValues(op, labelOr(status, "unknown")).Inc()
	m.aggregateLatency.WithLabelValues(op).Observe(dur.Seconds())
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.WithLabelValues(labelOr(op, "unknown")).Inc()
}

func (m *Metrics) IncAggregateRetry(op string) {
	if m == nil {
		return
	}
	m.aggregateRetries.WithLabelValues(labelOr(op, "unknown")).Inc()
}

func (m *Metrics) ObserveRootLockWait(op string, acquired bool, dur time.Duration) {
	if m == nil {
		return
	}
	m.rootLockWait.WithLabelValues(labelOr(op, "unknown"), strconv.FormatBool(acquired)).Observe(dur.Seconds())
}

// ObserveCascade and IncInconsistent make Metrics a progress.Observer.
func (m *Metrics) ObserveCascade(status string, persisted int, dur time.Duration) {
	if m == nil {
		return
	}
	m.cascadeRuns.WithLabelValues(labelOr(status, "unknown")).Inc()
	m.cascadePersisted.Observe(float64(persisted))
	m.cascadeLatency.Observe(dur.Seconds())
}

func (m *Metrics) IncInconsistent(reason string) {
	if m == nil {
		return
	}
	m.inconsistencies.WithLabelValues(labelOr(reason, "unknown")).Inc()
}

func labelOr(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}

// StartDBCollector samples the gorm pool every interval until ctx is done.
func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB, interval time.Duration) {
	if m == nil || db == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.dbStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
				m.dbStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.dbStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.dbStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.dbStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
				m.dbStats.WithLabelValues("max_open_connections").Set(float64(stats.MaxOpenConnections))
			}
		}
	}()
}

// StartRedisCollector pings rdb every interval until ctx is done.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *goredis.Client, interval time.Duration) {
	if m == nil || rdb == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sampleRedis(ctx, log, rdb)
			}
		}
	}()
}

func (m *Metrics) sampleRedis(ctx context.Context, log *logger.Logger, rdb *goredis.Client) {
	start := time.Now()
	if err := rdb.Ping(ctx).Err(); err != nil {
		m.redisUp.Set(0)
		if log != nil {
			log.Warn("metrics: redis ping failed", "error", err)
		}
		return
	}
	m.redisUp.Set(1)
	m.redisPing.Set(time.Since(start).Seconds())
}
