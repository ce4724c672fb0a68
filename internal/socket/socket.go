// Package socket implements the BSD-style socket façade over internal/tcp
// and internal/udp (spec.md §4.G), grounded on the teacher's
// internal/server/server.go thin-adapter pattern: a façade type translating
// an external call shape onto the internal TCP/UDP API, with the RPC
// transport itself stripped (see DESIGN.md).
package socket

import (
	"errors"
	"sync"

	"github.com/dantte-lp/netstackd/internal/netutil"
	"github.com/dantte-lp/netstackd/internal/tcp"
	"github.com/dantte-lp/netstackd/internal/udp"
)

// Status is the protocol-level result code family from spec.md §7. It is
// returned by value, not as a Go error, matching SPEC_FULL.md §2's
// separation between "Go errors" (setup/programmer misuse) and "protocol
// result codes" (expected socket outcomes).
type Status int

const (
	Success Status = iota
	Error
	Busy
	OutOfMemory
	NotSupported
)

func (s Status) String() string {
	switch s {
	case Success:
		return "Success"
	case Error:
		return "Error"
	case Busy:
		return "Busy"
	case OutOfMemory:
		return "OutOfMemory"
	case NotSupported:
		return "NotSupported"
	default:
		return "Unknown"
	}
}

// Type distinguishes socket kinds (spec.md §4.G).
type Type int

const (
	Stream Type = iota
	Datagram
	Raw
)

// Option names recognised by setOption/getOption. All report NotSupported
// in this core (spec.md §4.G).
type Option int

const (
	OptReuseAddr Option = iota
	OptKeepAlive
	OptNoDelay
	OptBroadcast
	OptSendTimeout
	OptRecvTimeout
	OptSendBufferSize
	OptRecvBufferSize
)

var ErrWrongType = errors.New("socket: operation not valid for this socket type")

// TCPProvider is the subset of tcp.Layer's API a Socket delegates to.
type TCPProvider interface {
	Connect(remoteIP netutil.IPv4, remotePort uint16) (tcp.Handle, error)
	Listen(localPort uint16) (tcp.Handle, error)
	Send(h tcp.Handle, data []byte) int
	Receive(h tcp.Handle, buf []byte) int
	Close(h tcp.Handle)
	State(h tcp.Handle) tcp.State
}

// UDPProvider is the subset of udp.Layer's API a Socket delegates to.
type UDPProvider interface {
	Bind(port uint16) (udp.Handle, error)
	Unbind(h udp.Handle)
	Send(dstIP netutil.IPv4, dstPort, srcPort uint16, payload []byte)
	Receive(h udp.Handle, buf []byte) (int, netutil.IPv4, uint16)
}

// Socket is a BSD-style socket shell: it keeps its own bound/connected/
// listening flags and delegates everything else to TCP or UDP (spec.md
// §4.G).
type Socket struct {
	mu sync.Mutex

	typ Type
	tcp TCPProvider
	udp UDPProvider

	bound      bool
	connected  bool
	listening  bool
	localPort  uint16
	tcpHandle  tcp.Handle
	udpHandle  udp.Handle
}

// NewStream creates an unbound, unconnected Stream socket.
func NewStream(t TCPProvider) *Socket {
	return &Socket{typ: Stream, tcp: t}
}

// NewDatagram creates an unbound Datagram socket.
func NewDatagram(u UDPProvider) *Socket {
	return &Socket{typ: Datagram, udp: u}
}

// NewRaw creates a Raw socket shell. Raw sockets carry no TCP/UDP
// delegation in this core: Connect, Listen and Bind report NotSupported,
// while Send, Recv, SendTo and RecvFrom report Error, as they do for any
// socket that is not connected or bound.
func NewRaw() *Socket {
	return &Socket{typ: Raw}
}

// Connect implements Stream.connect → TCP.connect (spec.md §4.G).
func (s *Socket) Connect(remoteIP netutil.IPv4, remotePort uint16) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typ != Stream {
		return NotSupported
	}
	if s.connected {
		return Error
	}
	h, err := s.tcp.Connect(remoteIP, remotePort)
	if err != nil {
		return Error
	}
	s.tcpHandle = h
	s.connected = true
	return Success
}

// Listen implements Stream.listen → TCP.listen (spec.md §4.G).
func (s *Socket) Listen(localPort uint16) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typ != Stream {
		return NotSupported
	}
	if s.listening {
		return Error
	}
	h, err := s.tcp.Listen(localPort)
	if err != nil {
		return Busy
	}
	s.tcpHandle = h
	s.localPort = localPort
	s.listening = true
	return Success
}

// Accept implements Stream.accept: when this listening socket's TCP handle
// observes an Established child, a new Socket shell wraps that handle and
// Accept re-arms a fresh listener on the same port; if re-arming fails the
// socket stops listening (spec.md §4.G). ok is false while still waiting.
func (s *Socket) Accept() (child *Socket, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typ != Stream || !s.listening {
		return nil, false
	}
	if s.tcp.State(s.tcpHandle) != tcp.StateEstablished {
		return nil, false
	}

	child = &Socket{typ: Stream, tcp: s.tcp, connected: true, tcpHandle: s.tcpHandle}
	h, err := s.tcp.Listen(s.localPort)
	if err != nil {
		// Re-arm failed (e.g. duplicate); caller still gets the accepted child.
		s.listening = false
		return child, true
	}
	s.tcpHandle = h
	return child, true
}

// Send implements Stream.send → TCP.send (spec.md §4.G).
func (s *Socket) Send(data []byte) (int, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typ != Stream || !s.connected {
		return -1, Error
	}
	n := s.tcp.Send(s.tcpHandle, data)
	if n < 0 {
		return -1, Error
	}
	return n, Success
}

// Recv implements Stream.recv → TCP.receive (spec.md §4.G).
func (s *Socket) Recv(buf []byte) (int, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typ != Stream || !s.connected {
		return -1, Error
	}
	n := s.tcp.Receive(s.tcpHandle, buf)
	if n < 0 {
		return -1, Error
	}
	return n, Success
}

// Bind implements Datagram.bind → UDP.bind (spec.md §4.G).
func (s *Socket) Bind(port uint16) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typ != Datagram {
		return NotSupported
	}
	if s.bound {
		return Error
	}
	h, err := s.udp.Bind(port)
	if err != nil {
		return Busy
	}
	s.udpHandle = h
	s.localPort = port
	s.bound = true
	return Success
}

// SendTo implements Datagram.sendto → UDP.send (spec.md §4.G).
func (s *Socket) SendTo(dstIP netutil.IPv4, dstPort uint16, payload []byte) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typ != Datagram || !s.bound {
		return Error
	}
	s.udp.Send(dstIP, dstPort, s.localPort, payload)
	return Success
}

// RecvFrom implements Datagram.recvfrom → UDP.receive (spec.md §4.G).
func (s *Socket) RecvFrom(buf []byte) (int, netutil.IPv4, uint16, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typ != Datagram || !s.bound {
		return -1, netutil.IPv4{}, 0, Error
	}
	n, ip, port := s.udp.Receive(s.udpHandle, buf)
	if n < 0 {
		return -1, ip, port, Error
	}
	return n, ip, port, Success
}

// Close tears down whichever handle is active and resets all flags
// (spec.md §4.G "close").
func (s *Socket) Close() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.typ {
	case Stream:
		if s.connected || s.listening {
			s.tcp.Close(s.tcpHandle)
		}
	case Datagram:
		if s.bound {
			s.udp.Unbind(s.udpHandle)
		}
	}
	s.bound = false
	s.connected = false
	s.listening = false
	return Success
}

// SetOption and GetOption are recognised but unimplemented in this core
// (spec.md §4.G).
func (s *Socket) SetOption(Option, any) Status { return NotSupported }
func (s *Socket) GetOption(Option) (any, Status) { return nil, NotSupported }
