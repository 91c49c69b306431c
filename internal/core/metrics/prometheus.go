package metrics

import (
	"crypto/tls"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-tlsworker/internal/core/worker"
)

// PrometheusReporter 基于 Prometheus 的 Reporter
type PrometheusReporter struct {
	accepted      prometheus.Counter
	rejected      *prometheus.CounterVec
	acceptErrors  *prometheus.CounterVec
	handshakes    *prometheus.CounterVec
	handshakeTime *prometheus.HistogramVec
	workersDone   *prometheus.CounterVec
	workerTime    prometheus.Histogram
	reaped        *prometheus.CounterVec
	outstanding   prometheus.Gauge
}

// 确保实现 Reporter 接口
var _ Reporter = (*PrometheusReporter)(nil)

// NewPrometheusReporter 创建并注册指标
func NewPrometheusReporter(namespace string, reg prometheus.Registerer) (*PrometheusReporter, error) {
	r := &PrometheusReporter{
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Connections accepted by the coordinator.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Connections closed without dispatch.",
		}, []string{"reason"}),
		acceptErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accept_errors_total",
			Help:      "Errors returned by the listen socket.",
		}, []string{"kind"}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "TLS handshakes by engine, version and result.",
		}, []string{"engine", "version", "result"}),
		handshakeTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_duration_seconds",
			Help:      "TLS handshake latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"engine", "result"}),
		workersDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_completed_total",
			Help:      "Workers that reached a terminal state.",
		}, []string{"state"}),
		workerTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_duration_seconds",
			Help:      "Time from claim to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		reaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaped_total",
			Help:      "Worker contexts freed by the coordinator.",
		}, []string{"forced"}),
		outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outstanding_contexts",
			Help:      "Worker contexts not yet reaped.",
		}),
	}

	for _, c := range []prometheus.Collector{
		r.accepted, r.rejected, r.acceptErrors, r.handshakes, r.handshakeTime,
		r.workersDone, r.workerTime, r.reaped, r.outstanding,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ConnAccepted 实现 Reporter
func (r *PrometheusReporter) ConnAccepted() {
	r.accepted.Inc()
}

// ConnRejected 实现 Reporter
func (r *PrometheusReporter) ConnRejected(reason string) {
	r.rejected.WithLabelValues(reason).Inc()
}

// AcceptError 实现 Reporter
func (r *PrometheusReporter) AcceptError(temporary bool) {
	kind := "fatal"
	if temporary {
		kind = "temporary"
	}
	r.acceptErrors.WithLabelValues(kind).Inc()
}

// HandshakeDone 实现 worker.Observer
func (r *PrometheusReporter) HandshakeDone(engine string, version uint16, d time.Duration, err error) {
	result := "ok"
	versionLabel := "none"
	if err != nil {
		result = "error"
	} else {
		versionLabel = tls.VersionName(version)
	}
	r.handshakes.WithLabelValues(engine, versionLabel, result).Inc()
	r.handshakeTime.WithLabelValues(engine, result).Observe(d.Seconds())
}

// WorkerDone 实现 worker.Observer
func (r *PrometheusReporter) WorkerDone(state worker.State, d time.Duration) {
	r.workersDone.WithLabelValues(state.String()).Inc()
	r.workerTime.Observe(d.Seconds())
}

// Reaped 实现 Reporter
func (r *PrometheusReporter) Reaped(forced bool) {
	r.reaped.WithLabelValues(strconv.FormatBool(forced)).Inc()
}

// SetOutstanding 实现 Reporter
func (r *PrometheusReporter) SetOutstanding(n int) {
	r.outstanding.Set(float64(n))
}
