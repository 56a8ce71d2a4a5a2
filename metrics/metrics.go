// Package metrics exposes strand's congestion, RTT, and retransmission
// state as Prometheus gauges and counters, registered at package-init
// time the way packetd's controller package registers its sniffer and
// roundtrip metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every strand metric name.
const Namespace = "strand"

var (
	cwndBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cwnd_bytes",
			Help:      "Current CUBIC congestion window in bytes",
		},
	)

	inFlightBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "in_flight_bytes",
			Help:      "Bytes currently in flight and unacknowledged",
		},
	)

	smoothedRTTMicros = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "smoothed_rtt_microseconds",
			Help:      "Smoothed round-trip time estimate in microseconds",
		},
	)

	rtoMicros = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "rto_microseconds",
			Help:      "Current retransmission timeout in microseconds",
		},
	)

	retransmissionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "retransmissions_total",
			Help:      "Total DATA frames retransmitted after an RTO",
		},
	)

	givenUpTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "given_up_total",
			Help:      "Total packets abandoned after exhausting their retry budget",
		},
	)

	streamsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "streams_open",
			Help:      "Number of live streams in the multiplexer's stream table",
		},
	)

	framesByType = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_total",
			Help:      "Frames sent or received, by frame type",
		},
		[]string{"type", "direction"},
	)
)

// ObserveWindow records the current congestion window and in-flight
// byte count.
func ObserveWindow(cwnd, inFlight int64) {
	cwndBytes.Set(float64(cwnd))
	inFlightBytes.Set(float64(inFlight))
}

// ObserveRTT records the current smoothed RTT and RTO.
func ObserveRTT(srttMicros, rtoMicros_ int64) {
	smoothedRTTMicros.Set(float64(srttMicros))
	rtoMicros.Set(float64(rtoMicros_))
}

// ObserveStreamCount records the live stream table size.
func ObserveStreamCount(n int) {
	streamsOpen.Set(float64(n))
}

// RecordRetransmit increments the retransmission counter by n.
func RecordRetransmit(n int) {
	retransmissionsTotal.Add(float64(n))
}

// RecordGivenUp increments the abandoned-packet counter by n.
func RecordGivenUp(n int) {
	givenUpTotal.Add(float64(n))
}

// RecordFrame increments the per-type frame counter. direction is "tx"
// or "rx".
func RecordFrame(frameType byte, direction string) {
	framesByType.WithLabelValues(frameTypeName(frameType), direction).Inc()
}

func frameTypeName(t byte) string {
	switch t {
	case 0x01:
		return "data"
	case 0x02:
		return "ack"
	case 0x03:
		return "nack"
	case 0x04:
		return "fin"
	case 0x05:
		return "rst"
	case 0x06:
		return "ping"
	case 0x07:
		return "pong"
	case 0x08:
		return "window_update"
	case 0x10:
		return "stream_open"
	case 0x11:
		return "stream_ack"
	case 0x12:
		return "stream_close"
	case 0x13:
		return "stream_reset"
	case 0x40:
		return "congestion"
	default:
		return "unknown"
	}
}
