// Package nictunnel carries whole Ethernet frames between two netstackd
// processes over a real UDP socket, playing the role of the NIC driver
// internal/stack expects at its ingress/egress boundary.
//
// The wire format is VXLAN's outer envelope (RFC 7348 Section 5): an 8-byte
// header carrying a 24-bit VNI, sent to UDP port 4789. Unlike a genuine VTEP,
// the payload after the header is not a synthesized inner
// Ethernet/IPv4/UDP/payload stack -- it is the real Ethernet frame that
// internal/ethernet already built, copied onto the wire unmodified. The
// VNI still partitions unrelated tunnels sharing a port, exactly as it
// partitions tenant traffic in RFC 7348.
package nictunnel

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
)

// HeaderSize is the fixed VXLAN outer header size in bytes (RFC 7348 §5).
const HeaderSize = 8

// DefaultPort is the IANA-assigned VXLAN UDP port (RFC 7348 §5).
const DefaultPort uint16 = 4789

// vxlanFlagVNI is the VXLAN flag bit indicating a valid VNI (the I flag).
const vxlanFlagVNI uint8 = 0x08

// maxFrameSize bounds the receive buffer; large enough for any frame
// internal/ethernet can build plus the outer header.
const maxFrameSize = 9000

// ErrHeaderTooShort indicates a received datagram was shorter than HeaderSize.
var ErrHeaderTooShort = errors.New("nictunnel: header too short: need 8 bytes")

// ErrInvalidFlags indicates the VXLAN I flag was not set.
var ErrInvalidFlags = errors.New("nictunnel: I flag (VNI valid) not set")

// ErrVNIOverflow indicates a VNI exceeding the 24-bit range was requested.
var ErrVNIOverflow = errors.New("nictunnel: VNI exceeds 24-bit range")

// ErrVNIMismatch indicates a received datagram's VNI did not match the
// configured tunnel VNI; such datagrams belong to an unrelated tunnel
// sharing the same port and are dropped, not treated as an error.
var ErrVNIMismatch = errors.New("nictunnel: VNI mismatch")

// ErrClosed indicates an operation was attempted on a closed Conn.
var ErrClosed = errors.New("nictunnel: connection closed")

// MarshalHeader encodes the outer header into buf (must be >= HeaderSize),
// exported so the wire format can be tested without a real socket.
func MarshalHeader(buf []byte, vni uint32) error {
	if len(buf) < HeaderSize {
		return ErrHeaderTooShort
	}
	if vni > 0x00FFFFFF {
		return fmt.Errorf("vni=%d: %w", vni, ErrVNIOverflow)
	}
	buf[0] = vxlanFlagVNI
	buf[1], buf[2], buf[3] = 0, 0, 0
	binary.BigEndian.PutUint32(buf[4:8], vni<<8)
	return nil
}

// UnmarshalHeader parses the outer header from buf (must be >= HeaderSize).
func UnmarshalHeader(buf []byte) (vni uint32, err error) {
	if len(buf) < HeaderSize {
		return 0, ErrHeaderTooShort
	}
	if buf[0]&vxlanFlagVNI == 0 {
		return 0, ErrInvalidFlags
	}
	return binary.BigEndian.Uint32(buf[4:8]) >> 8, nil
}

// Conn is a UDP-backed tunnel carrying Ethernet frames to and from one
// peer netstackd process, bound to a local VNI.
//
// Thread safety: Send and Serve's receive loop may run concurrently from
// separate goroutines; the underlying net.UDPConn supports that, and mu
// protects only the closed flag, matching the concurrency contract
// internal/netio's VXLANConn documents for the same split.
type Conn struct {
	conn   *net.UDPConn
	vni    uint32
	peer   netip.AddrPort
	log    *slog.Logger
	mu     sync.Mutex
	closed bool
}

// Dial binds a UDP socket at listenAddr and prepares to exchange frames
// with peerAddr under the given VNI.
func Dial(listenAddr, peerAddr netip.AddrPort, vni uint32, log *slog.Logger) (*Conn, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(listenAddr))
	if err != nil {
		return nil, fmt.Errorf("nictunnel: bind %s: %w", listenAddr, err)
	}

	return &Conn{
		conn: conn,
		vni:  vni,
		peer: peerAddr,
		log: log.With(
			slog.String("component", "nictunnel"),
			slog.String("peer", peerAddr.String()),
		),
	}, nil
}

// LocalAddr returns the address the underlying socket is bound to, useful
// when Dial was given port 0 and the kernel chose an ephemeral port.
func (c *Conn) LocalAddr() netip.AddrPort {
	return c.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Send encapsulates frame in a VXLAN-style envelope and transmits it to
// the configured peer. It is the function handed to
// stack.Stack.RegisterTransmitCallback.
func (c *Conn) Send(frame []byte) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	buf := make([]byte, HeaderSize+len(frame))
	if err := MarshalHeader(buf[:HeaderSize], c.vni); err != nil {
		c.log.Warn("drop outgoing frame", slog.String("error", err.Error()))
		return
	}
	copy(buf[HeaderSize:], frame)

	if _, err := c.conn.WriteToUDPAddrPort(buf, c.peer); err != nil {
		c.log.Warn("send failed", slog.String("error", err.Error()))
	}
}

// Serve reads datagrams until ctx is cancelled or the socket is closed,
// handing each decapsulated frame to onFrame. Datagrams carrying a VNI
// other than this Conn's are dropped silently, matching RFC 8971's
// "packets for other VNIs are not processed" rule.
func (c *Conn) Serve(ctx context.Context, onFrame func(frame []byte)) error {
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	buf := make([]byte, maxFrameSize)
	for {
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("nictunnel: read: %w", err)
		}

		if n < HeaderSize {
			c.log.Warn("drop short datagram", slog.Int("bytes", n))
			continue
		}

		vni, err := UnmarshalHeader(buf[:HeaderSize])
		if err != nil {
			c.log.Warn("drop malformed header", slog.String("error", err.Error()))
			continue
		}
		if vni != c.vni {
			continue
		}

		frame := make([]byte, n-HeaderSize)
		copy(frame, buf[HeaderSize:n])
		onFrame(frame)
	}
}

// Close releases the underlying UDP socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("nictunnel: close: %w", err)
	}
	return nil
}
