// Package udp implements the UDP binding table, FIFO per-binding receive
// queues, and datagram send/receive (spec.md §4.E), grounded on the
// teacher's internal/bfd/manager.go table-with-capacity pattern.
package udp

import (
	"container/list"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/dantte-lp/netstackd/internal/inetchecksum"
	"github.com/dantte-lp/netstackd/internal/ipv4"
	"github.com/dantte-lp/netstackd/internal/netutil"
)

const (
	HeaderLen = 8

	// MaxBindings is the size of the binding table (spec.md §4.E "reserves a
	// slot in the [0, 256) table").
	MaxBindings = 256
)

var (
	ErrTableFull     = errors.New("udp: binding table full")
	ErrPortInUse     = errors.New("udp: port already bound")
	ErrInvalidHandle = errors.New("udp: invalid binding handle")
)

// Datagram is one queued inbound datagram (spec.md §4.E "a newly allocated
// datagram record {source_ip, source_port, bytes_copy}").
type Datagram struct {
	SourceIP   netutil.IPv4
	SourcePort uint16
	Bytes      []byte
}

type binding struct {
	port  uint16
	queue *list.List // of Datagram
}

// IPSender is the subset of ipv4.Layer's API used to transmit datagrams.
type IPSender interface {
	Send(protocol uint8, dst netutil.IPv4, payload []byte)
}

// Handle identifies a binding returned by Bind.
type Handle int

// Layer is the UDP transport: a fixed-capacity port→queue binding table.
type Layer struct {
	mu       sync.Mutex
	ourIP    netutil.IPv4
	bindings map[Handle]*binding
	byPort   map[uint16]Handle
	nextID   Handle
	ip       IPSender
}

// NewLayer constructs an empty Layer bound to ourIP (used for pseudo-header
// checksums) and ip for egress.
func NewLayer(ourIP netutil.IPv4, ip IPSender) *Layer {
	return &Layer{
		ourIP:    ourIP,
		bindings: make(map[Handle]*binding),
		byPort:   make(map[uint16]Handle),
		ip:       ip,
	}
}

// Bind reserves a slot for port, rejecting duplicates (spec.md §4.E "bind").
func (l *Layer) Bind(port uint16) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byPort[port]; exists {
		return 0, ErrPortInUse
	}
	if len(l.bindings) >= MaxBindings {
		return 0, ErrTableFull
	}

	l.nextID++
	h := l.nextID
	l.bindings[h] = &binding{port: port, queue: list.New()}
	l.byPort[port] = h
	return h, nil
}

// Unbind releases h's slot.
func (l *Layer) Unbind(h Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.bindings[h]
	if !ok {
		return
	}
	delete(l.byPort, b.port)
	delete(l.bindings, h)
}

// Send builds a UDP datagram, computes the pseudo-header checksum, and
// submits it to IP with protocol 17 (spec.md §4.E "send").
func (l *Layer) Send(dstIP netutil.IPv4, dstPort, srcPort uint16, payload []byte) {
	length := HeaderLen + len(payload)
	seg := make([]byte, length)
	binary.BigEndian.PutUint16(seg[0:2], srcPort)
	binary.BigEndian.PutUint16(seg[2:4], dstPort)
	binary.BigEndian.PutUint16(seg[4:6], uint16(length))
	binary.BigEndian.PutUint16(seg[6:8], 0)
	copy(seg[8:], payload)

	sum := inetchecksum.WithPseudoHeader(l.ourIP, dstIP, ipv4.ProtoUDP, uint16(length), seg)
	binary.BigEndian.PutUint16(seg[6:8], inetchecksum.UDPChecksumOrFFFF(sum))

	l.ip.Send(ipv4.ProtoUDP, dstIP, seg)
}

// ReceiveUDP is wired as internal/ipv4's TransportReceiveFunc. It validates
// length, locates the binding for the destination port, and enqueues a
// datagram record, dropping silently on any miss (spec.md §4.E ingress).
func (l *Layer) ReceiveUDP(srcIP, _ netutil.IPv4, segment []byte) {
	if len(segment) < HeaderLen {
		return
	}
	srcPort := binary.BigEndian.Uint16(segment[0:2])
	dstPort := binary.BigEndian.Uint16(segment[2:4])
	length := binary.BigEndian.Uint16(segment[4:6])
	if int(length) < HeaderLen || int(length) > len(segment) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.byPort[dstPort]
	if !ok {
		return
	}
	b := l.bindings[h]

	payload := make([]byte, int(length)-HeaderLen)
	copy(payload, segment[HeaderLen:length])
	b.queue.PushBack(Datagram{SourceIP: srcIP, SourcePort: srcPort, Bytes: payload})
}

// Receive dequeues one datagram for h (non-blocking), copying up to len(buf)
// bytes into buf and returning the actual copied length, 0 if empty, or -1
// for an invalid handle (spec.md §4.E "receive").
func (l *Layer) Receive(h Handle, buf []byte) (int, netutil.IPv4, uint16) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.bindings[h]
	if !ok {
		return -1, netutil.IPv4{}, 0
	}
	front := b.queue.Front()
	if front == nil {
		return 0, netutil.IPv4{}, 0
	}
	b.queue.Remove(front)
	dg := front.Value.(Datagram)
	n := copy(buf, dg.Bytes)
	return n, dg.SourceIP, dg.SourcePort
}

// Len reports the number of active bindings, for metrics.
func (l *Layer) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.bindings)
}
