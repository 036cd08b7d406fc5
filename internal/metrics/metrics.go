package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// SdkMetrics 会话与协议管线指标
type SdkMetrics struct {
	TransportBytesReceived prometheus.Counter
	TransportBytesSent     prometheus.Counter
	FramesReceived         prometheus.Counter
	FramesDropped          prometheus.Counter
	BstDecodeTotal         *prometheus.CounterVec // labels: result=ok|error
	BemResponsesReceived   prometheus.Counter
	BemResponsesCorrelated prometheus.Counter
	BemTimeouts            prometheus.Counter
	PendingRequests        prometheus.Gauge
}

// NewSdkMetrics 注册并返回 SDK 指标
func NewSdkMetrics(reg *prometheus.Registry) *SdkMetrics {
	m := &SdkMetrics{
		TransportBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transport_bytes_received_total",
			Help: "Total bytes received from the transport.",
		}),
		TransportBytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transport_bytes_sent_total",
			Help: "Total bytes handed to the transport for sending.",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bdtp_frames_received_total",
			Help: "BDTP frames successfully extracted.",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bdtp_frames_dropped_total",
			Help: "BDTP frames dropped due to protocol errors.",
		}),
		BstDecodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bst_decode_total",
			Help: "BST decode attempts.",
		}, []string{"result"}),
		BemResponsesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bem_responses_received_total",
			Help: "BEM responses decoded (solicited and unsolicited).",
		}),
		BemResponsesCorrelated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bem_responses_correlated_total",
			Help: "BEM responses matched to a pending request.",
		}),
		BemTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bem_request_timeouts_total",
			Help: "BEM requests completed by the timeout sweep.",
		}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bem_pending_requests",
			Help: "Current number of outstanding BEM requests.",
		}),
	}
	reg.MustRegister(
		m.TransportBytesReceived, m.TransportBytesSent,
		m.FramesReceived, m.FramesDropped, m.BstDecodeTotal,
		m.BemResponsesReceived, m.BemResponsesCorrelated, m.BemTimeouts,
		m.PendingRequests,
	)
	return m
}
