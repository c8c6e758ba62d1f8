package rfb

import "github.com/prometheus/client_golang/prometheus"

// serverMetrics holds the live gauges/counters for one RFBServer.
// Each RFBServer owns its own metric set, registered against the
// Registerer supplied via WithRegisterer (or a private
// prometheus.NewRegistry() if none was given), so multiple servers in
// one process never collide on duplicate registration.
type serverMetrics struct {
	connectionsActive  prometheus.Gauge
	connectionsTotal   prometheus.Counter
	updatesBroadcast   prometheus.Counter
	updateRectsTotal   prometheus.Counter
	bytesBroadcast     prometheus.Counter
	protocolErrorTotal *prometheus.CounterVec
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	m := &serverMetrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rfb_connections_active",
			Help: "Number of currently connected RFB clients.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rfb_connections_total",
			Help: "Total number of accepted RFB connections.",
		}),
		updatesBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rfb_updates_broadcast_total",
			Help: "Total number of FrameBufferUpdate messages broadcast.",
		}),
		updateRectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rfb_update_rects_total",
			Help: "Total number of rectangles encoded across all FrameBufferUpdate messages.",
		}),
		bytesBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rfb_bytes_broadcast_total",
			Help: "Total number of server-originated bytes handed to the broadcast bus.",
		}),
		protocolErrorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rfb_protocol_errors_total",
			Help: "Total number of per-connection protocol errors, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		m.connectionsActive,
		m.connectionsTotal,
		m.updatesBroadcast,
		m.updateRectsTotal,
		m.bytesBroadcast,
		m.protocolErrorTotal,
	)
	return m
}
