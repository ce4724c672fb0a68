package netstackmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "netstackd"
	subsystem = "stack"
)

// Label names.
const (
	labelProtocol = "protocol"
)

// -------------------------------------------------------------------------
// Collector — Prometheus netstackd Metrics
// -------------------------------------------------------------------------

// Collector holds all netstackd Prometheus metrics.
//
// Metrics cover the allocator, the Ethernet/ARP layer, and the transport
// layers:
//   - Heap gauges track arena occupancy for capacity planning.
//   - Packet counters track send/receive/drop volumes per protocol.
//   - State transition counters record TCP FSM changes for alerting.
//   - ARP cache and pending-queue gauges track link-layer resolution health.
type Collector struct {
	// HeapUsedBytes tracks bytes currently allocated out of the heap arena.
	HeapUsedBytes prometheus.Gauge

	// HeapFreeBlocks tracks the number of free blocks in the heap's free list.
	HeapFreeBlocks prometheus.Gauge

	// PacketsSent counts packets transmitted per protocol (icmp/tcp/udp/arp).
	PacketsSent *prometheus.CounterVec

	// PacketsReceived counts packets received per protocol.
	PacketsReceived *prometheus.CounterVec

	// PacketsDropped counts packets dropped per protocol (validation
	// failures, full queues, demux misses).
	PacketsDropped *prometheus.CounterVec

	// TCPStateTransitions counts TCP FSM state transitions, labeled with the
	// old and new state for precise alerting (e.g., Established->CloseWait).
	TCPStateTransitions *prometheus.CounterVec

	// ARPCacheEntries tracks the current occupancy of the ARP cache.
	ARPCacheEntries prometheus.Gauge

	// PendingARPQueueLength tracks the total number of IPv4 packets queued
	// awaiting MAC resolution (REDESIGN FLAG 2).
	PendingARPQueueLength prometheus.Gauge

	// TCPConnections tracks the number of active TCP connection-table entries.
	TCPConnections prometheus.Gauge

	// UDPBindings tracks the number of active UDP bindings.
	UDPBindings prometheus.Gauge
}

// NewCollector creates a Collector with all metrics registered against reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.HeapUsedBytes,
		c.HeapFreeBlocks,
		c.PacketsSent,
		c.PacketsReceived,
		c.PacketsDropped,
		c.TCPStateTransitions,
		c.ARPCacheEntries,
		c.PendingARPQueueLength,
		c.TCPConnections,
		c.UDPBindings,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	protocolLabels := []string{labelProtocol}
	transitionLabels := []string{"from_state", "to_state"}

	return &Collector{
		HeapUsedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "heap",
			Name:      "used_bytes",
			Help:      "Bytes currently allocated out of the heap arena.",
		}),

		HeapFreeBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "heap",
			Name:      "free_blocks",
			Help:      "Number of free blocks in the heap's free list.",
		}),

		PacketsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_sent_total",
			Help:      "Total packets transmitted, by protocol.",
		}, protocolLabels),

		PacketsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_received_total",
			Help:      "Total packets received, by protocol.",
		}, protocolLabels),

		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dropped_total",
			Help:      "Total packets dropped due to validation failure, full queue, or demux miss, by protocol.",
		}, protocolLabels),

		TCPStateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "state_transitions_total",
			Help:      "Total TCP connection FSM state transitions.",
		}, transitionLabels),

		ARPCacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "arp",
			Name:      "cache_entries",
			Help:      "Current number of entries in the ARP cache.",
		}),

		PendingARPQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ipv4",
			Name:      "pending_arp_queue_length",
			Help:      "Total IPv4 packets queued awaiting ARP resolution across all destinations.",
		}),

		TCPConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "connections",
			Help:      "Current number of active TCP connection-table entries.",
		}),

		UDPBindings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "udp",
			Name:      "bindings",
			Help:      "Current number of active UDP bindings.",
		}),
	}
}

// -------------------------------------------------------------------------
// Heap
// -------------------------------------------------------------------------

// SetHeapUsedBytes records the current allocated-byte total.
func (c *Collector) SetHeapUsedBytes(n int) {
	c.HeapUsedBytes.Set(float64(n))
}

// SetHeapFreeBlocks records the current free-list block count.
func (c *Collector) SetHeapFreeBlocks(n int) {
	c.HeapFreeBlocks.Set(float64(n))
}

// -------------------------------------------------------------------------
// Packet Counters
// -------------------------------------------------------------------------

// IncPacketsSent increments the transmitted-packets counter for protocol.
func (c *Collector) IncPacketsSent(protocol string) {
	c.PacketsSent.WithLabelValues(protocol).Inc()
}

// IncPacketsReceived increments the received-packets counter for protocol.
func (c *Collector) IncPacketsReceived(protocol string) {
	c.PacketsReceived.WithLabelValues(protocol).Inc()
}

// IncPacketsDropped increments the dropped-packets counter for protocol.
func (c *Collector) IncPacketsDropped(protocol string) {
	c.PacketsDropped.WithLabelValues(protocol).Inc()
}

// -------------------------------------------------------------------------
// TCP State Transitions
// -------------------------------------------------------------------------

// RecordTCPStateTransition increments the state transition counter with the
// old and new state labels.
func (c *Collector) RecordTCPStateTransition(from, to string) {
	c.TCPStateTransitions.WithLabelValues(from, to).Inc()
}

// -------------------------------------------------------------------------
// Link-layer / table occupancy gauges
// -------------------------------------------------------------------------

// SetARPCacheEntries records the current ARP cache occupancy.
func (c *Collector) SetARPCacheEntries(n int) {
	c.ARPCacheEntries.Set(float64(n))
}

// SetPendingARPQueueLength records the total pending-ARP queue length.
func (c *Collector) SetPendingARPQueueLength(n int) {
	c.PendingARPQueueLength.Set(float64(n))
}

// SetTCPConnections records the current TCP connection-table occupancy.
func (c *Collector) SetTCPConnections(n int) {
	c.TCPConnections.Set(float64(n))
}

// SetUDPBindings records the current UDP binding-table occupancy.
func (c *Collector) SetUDPBindings(n int) {
	c.UDPBindings.Set(float64(n))
}
