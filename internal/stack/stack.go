// Package stack wires together internal/ethernet, internal/ipv4,
// internal/udp and internal/tcp into the single process-wide network stack
// spec.md §5 calls for ("the Stack owns one Ethernet, one IP, one TCP, one
// UDP instance"), grounded on internal/bfd/manager.go's Manager
// construction/lifecycle and cmd/gobfd/main.go's config→manager wiring
// order.
package stack

import (
	"log/slog"

	"github.com/dantte-lp/netstackd/internal/ethernet"
	"github.com/dantte-lp/netstackd/internal/ipv4"
	"github.com/dantte-lp/netstackd/internal/netutil"
	"github.com/dantte-lp/netstackd/internal/tcp"
	"github.com/dantte-lp/netstackd/internal/udp"
)

// Config carries the interface addressing needed to bring the stack up
// (spec.md §5 "initialize() ... layer configuration (MAC/IPv4/mask/gateway)").
type Config struct {
	MAC     netutil.MAC
	IPv4    netutil.IPv4
	Mask    netutil.IPv4
	Gateway netutil.IPv4
}

// Stack is the wired network stack for one interface. There is deliberately
// no package-level global singleton here (unlike some C kernels written
// against a single static NIC) since Go's constructor-based ownership gives
// the same single-instance-per-process guarantee without a global; the
// teacher's own Manager is likewise built explicitly by main, not reached
// through a package variable.
type Stack struct {
	eth *ethernet.Layer
	ip  *ipv4.Layer
	udp *udp.Layer
	tcp *tcp.Layer
}

// ipForwarder satisfies tcp.IPSender and udp.IPSender by forwarding to
// whichever ipv4.Layer its owning Stack holds at call time, breaking the
// three-way construction cycle between Ethernet, IP and the transport
// layers (each needs a reference to one of the others before all three
// exist).
type ipForwarder struct{ s *Stack }

func (f ipForwarder) Send(protocol uint8, dst netutil.IPv4, payload []byte) {
	f.s.ip.Send(protocol, dst, payload)
}

// New constructs a fully wired Stack for cfg. The NIC egress hook is
// supplied afterward via RegisterTransmitCallback, matching spec.md §8's
// two-step "construct, then register the driver" sequence.
func New(cfg Config, log *slog.Logger) *Stack {
	s := &Stack{}

	s.eth = ethernet.NewLayer(cfg.MAC, cfg.IPv4, nil, func(payload []byte) {
		s.ip.ReceiveIPv4(payload)
	}, log)

	s.tcp = tcp.NewLayer(cfg.IPv4, ipForwarder{s}, log)
	s.udp = udp.NewLayer(cfg.IPv4, ipForwarder{s})
	s.ip = ipv4.NewLayer(cfg.IPv4, cfg.Mask, cfg.Gateway, s.eth, s.tcp.ReceiveSegment, s.udp.ReceiveUDP, log)

	return s
}

// RegisterTransmitCallback registers fn as the NIC egress hook (spec.md §8
// "set_transmit_callback(fn(bytes, len))").
func (s *Stack) RegisterTransmitCallback(fn func(frame []byte)) {
	s.eth.SetTransmitCallback(fn)
}

// ReceiveFromNIC is the driver ingress entry point (spec.md §8
// "receive_packet(bytes, len)"). The stack does not retain raw.
func (s *Stack) ReceiveFromNIC(raw []byte) {
	s.eth.ReceiveFrame(raw)
}

// TCP exposes the TCP layer for internal/socket to delegate to.
func (s *Stack) TCP() *tcp.Layer { return s.tcp }

// UDP exposes the UDP layer for internal/socket to delegate to.
func (s *Stack) UDP() *udp.Layer { return s.udp }

// ARPCacheLen reports ARP cache occupancy, for metrics.
func (s *Stack) ARPCacheLen() int { return s.eth.ARPCache().Len() }

// PendingQueueLen reports the number of IPv4 packets queued awaiting MAC
// resolution, for metrics (REDESIGN FLAG 2).
func (s *Stack) PendingQueueLen() int { return s.ip.PendingCount() }

// TCPConnectionCount reports the number of active TCP connection-table
// entries, for metrics.
func (s *Stack) TCPConnectionCount() int { return s.tcp.Len() }

// UDPBindingCount reports the number of active UDP bindings, for metrics.
func (s *Stack) UDPBindingCount() int { return s.udp.Len() }
