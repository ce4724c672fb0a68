package ethernet

import (
	"log/slog"

	"github.com/dantte-lp/netstackd/internal/netutil"
)

// TransmitFunc hands a fully-built frame to the NIC driver for egress
// (spec.md §6 "set_transmit_callback").
type TransmitFunc func(frame []byte)

// IPv4ReceiveFunc dispatches a parsed IPv4 payload up to internal/ipv4
// (spec.md §4.C "0x0800 → IP.receive_packet").
type IPv4ReceiveFunc func(payload []byte)

// Layer is the Ethernet link layer: frame dispatch, ARP cache, and MAC
// resolution, grounded on internal/bfd/manager.go's singleton-owns-table
// shape (one ARPCache per Layer, one Layer per Stack).
type Layer struct {
	ourMAC netutil.MAC
	ourIP  netutil.IPv4
	cache  *ARPCache

	transmit   TransmitFunc
	onIPv4     IPv4ReceiveFunc
	onResolved func(ip netutil.IPv4)
	log        *slog.Logger
}

// SetTransmitCallback registers fn as the NIC egress hook (spec.md §8
// "set_transmit_callback"), replacing whatever was passed to NewLayer. This
// lets internal/stack satisfy the two-step "construct, then register the
// driver" sequence spec.md describes instead of requiring the transmit
// function up front.
func (l *Layer) SetTransmitCallback(fn TransmitFunc) {
	l.transmit = fn
}

// SetResolvedCallback registers fn to be invoked whenever the ARP cache
// learns a new (or refreshed) mapping, so that internal/ipv4's pending
// queue (REDESIGN FLAG 2) can flush packets waiting on that address.
func (l *Layer) SetResolvedCallback(fn func(ip netutil.IPv4)) {
	l.onResolved = fn
}

// NewLayer constructs a Layer for the given interface address. transmit is
// invoked for every outgoing frame; onIPv4 receives every inbound IPv4
// payload after link-layer filtering.
func NewLayer(ourMAC netutil.MAC, ourIP netutil.IPv4, transmit TransmitFunc, onIPv4 IPv4ReceiveFunc, log *slog.Logger) *Layer {
	return &Layer{
		ourMAC:   ourMAC,
		ourIP:    ourIP,
		cache:    NewARPCache(),
		transmit: transmit,
		onIPv4:   onIPv4,
		log:      log,
	}
}

// ARPCache exposes the cache for metrics/introspection.
func (l *Layer) ARPCache() *ARPCache { return l.cache }

// ReceiveFrame is the NIC ingress entry point (spec.md §4.C
// "receive_frame(bytes)").
func (l *Layer) ReceiveFrame(raw []byte) {
	f, err := ParseFrame(raw)
	if err != nil {
		l.log.Debug("ethernet: dropping frame", slog.Any("error", err))
		return
	}
	if !DestFor(f.Dest, l.ourMAC) {
		return
	}

	switch f.EtherType {
	case TypeIPv4:
		l.onIPv4(f.Payload)
	case TypeARP:
		l.handleARP(f.Payload)
	case TypeIPv6:
		// spec.md §4.C: IPv6 is recognised and ignored, not an unknown type.
	default:
		l.log.Debug("ethernet: unknown ethertype", slog.Int("ethertype", int(f.EtherType)))
	}
}

func (l *Layer) handleARP(payload []byte) {
	p, err := ParseARP(payload)
	if err != nil {
		l.log.Debug("ethernet: dropping ARP packet", slog.Any("error", err))
		return
	}

	l.cache.Update(p.SenderIP, p.SenderMAC)
	if l.onResolved != nil {
		l.onResolved(p.SenderIP)
	}

	if p.Op == ARPRequest && p.TargetIP == l.ourIP {
		reply := ARPPacket{
			Op:        ARPReply,
			SenderMAC: l.ourMAC,
			SenderIP:  l.ourIP,
			TargetMAC: p.SenderMAC,
			TargetIP:  p.SenderIP,
		}
		l.SendFrame(p.SenderMAC, TypeARP, EmitARP(reply))
	}
}

// SendFrame emits payload as a frame to dest (spec.md §4.C "send_frame").
func (l *Layer) SendFrame(dest netutil.MAC, ethertype uint16, payload []byte) {
	l.transmit(EmitFrame(dest, l.ourMAC, ethertype, payload))
}

// ResolveMAC returns the cached MAC for ip if present; otherwise it
// broadcasts an ARP request and reports unresolved (spec.md §4.C
// "resolve_mac"). Callers needing delivery once resolution completes must
// queue the packet themselves (REDESIGN FLAG 2, implemented in
// internal/ipv4's pending queue).
func (l *Layer) ResolveMAC(ip netutil.IPv4) (netutil.MAC, bool) {
	if mac, ok := l.cache.Lookup(ip); ok {
		return mac, true
	}
	req := ARPPacket{
		Op:        ARPRequest,
		SenderMAC: l.ourMAC,
		SenderIP:  l.ourIP,
		TargetIP:  ip,
	}
	l.SendFrame(netutil.BroadcastMAC, TypeARP, EmitARP(req))
	return netutil.MAC{}, false
}
