package rsocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFramesRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rsocket",
		Name:      "frames_read_total",
		Help:      "Frames read from the transport, by frame type.",
	}, []string{"type"})

	metricFramesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rsocket",
		Name:      "frames_written_total",
		Help:      "Frames written to the transport, by frame type.",
	}, []string{"type"})

	metricActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rsocket",
		Name:      "active_streams",
		Help:      "Streams currently registered in the demultiplex map.",
	})

	metricKeepaliveTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rsocket",
		Name:      "keepalive_timeouts_total",
		Help:      "Connections closed because the peer stopped responding to keepalives.",
	})

	metricDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rsocket",
		Name:      "decode_errors_total",
		Help:      "Frames that failed to decode.",
	})
)
