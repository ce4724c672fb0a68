// Package ethernet implements frame parsing/emission, EtherType dispatch,
// and ARP resolution (spec.md §4.C), following the wire-codec conventions of
// the teacher's internal/bfd/packet.go: explicit byte slicing with
// encoding/binary.BigEndian and sentinel errors wrapped with %w.
package ethernet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dantte-lp/netstackd/internal/netutil"
)

const (
	HeaderLen = 14
	ARPLen    = 28

	TypeIPv4 = 0x0800
	TypeARP  = 0x0806
	TypeIPv6 = 0x86DD
)

var (
	ErrFrameTooShort = errors.New("ethernet: frame shorter than header")
	ErrARPTooShort   = errors.New("ethernet: ARP packet too short")
	ErrNotARP        = errors.New("ethernet: not an Ethernet/IPv4 ARP packet")
)

// Frame is a parsed Ethernet II frame (spec.md §6 "Ethernet frame").
type Frame struct {
	Dest      netutil.MAC
	Src       netutil.MAC
	EtherType uint16
	Payload   []byte
}

// ParseFrame parses raw into a Frame. It returns ErrFrameTooShort for
// anything shorter than HeaderLen (spec.md §4.C: "drops frames shorter than
// the header").
func ParseFrame(raw []byte) (Frame, error) {
	if len(raw) < HeaderLen {
		return Frame{}, fmt.Errorf("%w: got %d bytes", ErrFrameTooShort, len(raw))
	}
	var f Frame
	copy(f.Dest[:], raw[0:6])
	copy(f.Src[:], raw[6:12])
	f.EtherType = binary.BigEndian.Uint16(raw[12:14])
	f.Payload = raw[14:]
	return f, nil
}

// EmitFrame renders a Frame to its wire bytes (spec.md §4.C "send_frame").
func EmitFrame(dest, src netutil.MAC, ethertype uint16, payload []byte) []byte {
	out := make([]byte, HeaderLen+len(payload))
	copy(out[0:6], dest[:])
	copy(out[6:12], src[:])
	binary.BigEndian.PutUint16(out[12:14], ethertype)
	copy(out[14:], payload)
	return out
}

// DestFor reports whether dest is a deliverable destination for a host
// configured with ourMAC: our own address, the broadcast address, or any
// multicast address (low bit of the first octet set) — spec.md §4.C.
func DestFor(dest, ourMAC netutil.MAC) bool {
	if dest == ourMAC || dest == netutil.BroadcastMAC {
		return true
	}
	return dest[0]&0x01 != 0
}

// ARPOp values (spec.md §6 "ARP packet").
const (
	ARPRequest = 1
	ARPReply   = 2
)

// ARPPacket is a parsed Ethernet/IPv4 ARP packet (spec.md §6).
type ARPPacket struct {
	Op         uint16
	SenderMAC  netutil.MAC
	SenderIP   netutil.IPv4
	TargetMAC  netutil.MAC
	TargetIP   netutil.IPv4
}

// ParseARP parses raw as an ARP packet, rejecting anything that is not
// Ethernet-hardware/IPv4-protocol ARP (spec.md §4.C: "Only Ethernet-hardware
// / IPv4-protocol ARP is recognised").
func ParseARP(raw []byte) (ARPPacket, error) {
	if len(raw) < ARPLen {
		return ARPPacket{}, fmt.Errorf("%w: got %d bytes", ErrARPTooShort, len(raw))
	}
	hwtype := binary.BigEndian.Uint16(raw[0:2])
	ptype := binary.BigEndian.Uint16(raw[2:4])
	hwlen := raw[4]
	plen := raw[5]
	if hwtype != 1 || ptype != TypeIPv4 || hwlen != 6 || plen != 4 {
		return ARPPacket{}, ErrNotARP
	}

	var p ARPPacket
	p.Op = binary.BigEndian.Uint16(raw[6:8])
	copy(p.SenderMAC[:], raw[8:14])
	copy(p.SenderIP[:], raw[14:18])
	copy(p.TargetMAC[:], raw[18:24])
	copy(p.TargetIP[:], raw[24:28])
	return p, nil
}

// EmitARP renders an ARPPacket to its wire bytes.
func EmitARP(p ARPPacket) []byte {
	out := make([]byte, ARPLen)
	binary.BigEndian.PutUint16(out[0:2], 1)
	binary.BigEndian.PutUint16(out[2:4], TypeIPv4)
	out[4] = 6
	out[5] = 4
	binary.BigEndian.PutUint16(out[6:8], p.Op)
	copy(out[8:14], p.SenderMAC[:])
	copy(out[14:18], p.SenderIP[:])
	copy(out[18:24], p.TargetMAC[:])
	copy(out[24:28], p.TargetIP[:])
	return out
}
