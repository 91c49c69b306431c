// Package metrics 提供监控指标收集
//
// Reporter 接收协调器与工作者的事件，PrometheusReporter 把它们
// 记录为 Prometheus 指标：
//
//	reg := prometheus.NewRegistry()
//	r, err := metrics.NewPrometheusReporter("tlsworker", reg)
//	w := worker.New(engine, handler, worker.WithObserver(r))
//
// # 指标
//
//	<ns>_connections_accepted_total
//	<ns>_connections_rejected_total{reason}
//	<ns>_accept_errors_total{kind}
//	<ns>_handshakes_total{engine,version,result}
//	<ns>_handshake_duration_seconds{engine,result}
//	<ns>_workers_completed_total{state}
//	<ns>_worker_duration_seconds
//	<ns>_reaped_total{forced}
//	<ns>_outstanding_contexts
//
// 未启用指标时使用 NopReporter。
package metrics
