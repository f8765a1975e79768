package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 送礼结果标签
const (
	ResultCommitted  = "committed"
	ResultDuplicate  = "duplicate"
	ResultRolledBack = "rolled_back"
)

// Metrics 送礼链路的 prometheus 指标
// 零值和 nil 都可以安全调用，测试里不需要注册
type Metrics struct {
	registry *prometheus.Registry

	transfers         *prometheus.CounterVec
	transferDuration  prometheus.Histogram
	lockWait          prometheus.Histogram
	hookFailures      *prometheus.CounterVec
	outboxMessages    *prometheus.CounterVec
	reconcileMismatch prometheus.Gauge
	hookQueueDropped  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gift",
			Name:      "transfers_total",
			Help:      "Gift transfers by result and error kind.",
		}, []string{"result", "kind"}),
		transferDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gift",
			Name:      "transfer_duration_seconds",
			Help:      "Wall time of one gift transfer, lock wait included.",
			Buckets:   prometheus.DefBuckets,
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gift",
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring the ordered account locks.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 3},
		}),
		hookFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gift",
			Name:      "hook_failures_total",
			Help:      "Post-commit hook invocations that exhausted their attempts.",
		}, []string{"hook"}),
		outboxMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gift",
			Name:      "outbox_messages_total",
			Help:      "Outbox deliveries by final status.",
		}, []string{"status"}),
		reconcileMismatch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gift",
			Name:      "reconcile_mismatches",
			Help:      "Accounts whose balance differs from their latest bill snapshot in the last run.",
		}),
		hookQueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gift",
			Name:      "hook_queue_dropped_total",
			Help:      "Post-commit events dropped because the hook queue was full.",
		}),
	}
	m.registry.MustRegister(
		m.transfers,
		m.transferDuration,
		m.lockWait,
		m.hookFailures,
		m.outboxMessages,
		m.reconcileMismatch,
		m.hookQueueDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveTransfer(result, kind string, elapsed time.Duration) {
	if m == nil || m.transfers == nil {
		return
	}
	m.transfers.WithLabelValues(result, kind).Inc()
	m.transferDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveLockWait(elapsed time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.Observe(elapsed.Seconds())
}

func (m *Metrics) HookFailed(hook string) {
	if m == nil || m.hookFailures == nil {
		return
	}
	m.hookFailures.WithLabelValues(hook).Inc()
}

func (m *Metrics) HookDropped() {
	if m == nil || m.hookQueueDropped == nil {
		return
	}
	m.hookQueueDropped.Inc()
}

func (m *Metrics) OutboxDelivered(status string) {
	if m == nil || m.outboxMessages == nil {
		return
	}
	m.outboxMessages.WithLabelValues(status).Inc()
}

func (m *Metrics) SetReconcileMismatches(n int) {
	if m == nil || m.reconcileMismatch == nil {
		return
	}
	m.reconcileMismatch.Set(float64(n))
}
