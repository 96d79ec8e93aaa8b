// Package metrics exposes the Prometheus collectors pulsenet's connection
// and server layers report into: active connections, smoothed latency,
// congestion quality, and packet accounting (spec.md DOMAIN STACK). Grounded
// on promauto-registered vectors the way runZeroInc-sockstats/pkg/exporter
// and galpt-cake-stats wire client_golang, adapted from their ad hoc
// TCP-info collectors to pulsenet's connection-keyed metric set.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector bundles every metric pulsenet reports. A nil *Collector is
// valid and every method on it is a no-op, so components can be built and
// tested without a registry.
type Collector struct {
	activeConnections prometheus.Gauge
	latencySeconds    *prometheus.GaugeVec
	quality           *prometheus.GaugeVec
	packetsSent       *prometheus.CounterVec
	packetsReceived   *prometheus.CounterVec
	packetsDropped    *prometheus.CounterVec
	packetsAcked      *prometheus.CounterVec
	packetsTimedOut   *prometheus.CounterVec
	pendingAckTable   *prometheus.GaugeVec
}

// New registers and returns pulsenet's metric set against reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulsenet",
			Name:      "active_connections",
			Help:      "Number of connections currently tracked by the server demultiplexer.",
		}),
		latencySeconds: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pulsenet",
			Name:      "latency_seconds",
			Help:      "Smoothed round-trip latency estimate per remote peer.",
		}, []string{"remote"}),
		quality: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pulsenet",
			Name:      "connection_quality",
			Help:      "Congestion quality per remote peer: 0=good, 1=bad.",
		}, []string{"remote"}),
		packetsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsenet",
			Name:      "packets_sent_total",
			Help:      "Datagrams sent per remote peer.",
		}, []string{"remote"}),
		packetsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsenet",
			Name:      "packets_received_total",
			Help:      "Datagrams decoded per remote peer, including ones then dropped as duplicate or stale.",
		}, []string{"remote"}),
		packetsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsenet",
			Name:      "packets_dropped_total",
			Help:      "Datagrams dropped (duplicate, stale, or malformed) per remote peer.",
		}, []string{"remote"}),
		packetsAcked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsenet",
			Name:      "packets_acked_total",
			Help:      "Sent packets that were acknowledged, per remote peer.",
		}, []string{"remote"}),
		packetsTimedOut: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulsenet",
			Name:      "packets_timed_out_total",
			Help:      "Sent packets whose ack was never observed within the packet timeout, per remote peer.",
		}, []string{"remote"}),
		pendingAckTable: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pulsenet",
			Name:      "pending_ack_table_size",
			Help:      "Number of outstanding unacknowledged packets per remote peer.",
		}, []string{"remote"}),
	}
}

func (c *Collector) SetActiveConnections(n int) {
	if c == nil {
		return
	}
	c.activeConnections.Set(float64(n))
}

func (c *Collector) SetLatency(remote string, seconds float64) {
	if c == nil {
		return
	}
	c.latencySeconds.WithLabelValues(remote).Set(seconds)
}

func (c *Collector) SetQuality(remote string, quality string) {
	if c == nil {
		return
	}
	v := 0.0
	if quality == "bad" {
		v = 1.0
	}
	c.quality.WithLabelValues(remote).Set(v)
}

func (c *Collector) IncPacketsSent(remote string) {
	if c == nil {
		return
	}
	c.packetsSent.WithLabelValues(remote).Inc()
}

func (c *Collector) IncPacketsReceived(remote string) {
	if c == nil {
		return
	}
	c.packetsReceived.WithLabelValues(remote).Inc()
}

func (c *Collector) IncPacketsDropped(remote string) {
	if c == nil {
		return
	}
	c.packetsDropped.WithLabelValues(remote).Inc()
}

func (c *Collector) ObservePacketAcked(remote string) {
	if c == nil {
		return
	}
	c.packetsAcked.WithLabelValues(remote).Inc()
}

func (c *Collector) ObservePacketTimeout(remote string) {
	if c == nil {
		return
	}
	c.packetsTimedOut.WithLabelValues(remote).Inc()
}

func (c *Collector) SetPendingAckTableSize(remote string, n int) {
	if c == nil {
		return
	}
	c.pendingAckTable.WithLabelValues(remote).Set(float64(n))
}
