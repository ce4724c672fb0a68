// Package ipv4 implements IPv4 header build/validate, routing, ICMP echo,
// and the pending-ARP-resolution queue (spec.md §4.D), following the
// teacher's internal/bfd/packet.go wire-codec conventions.
package ipv4

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dantte-lp/netstackd/internal/inetchecksum"
	"github.com/dantte-lp/netstackd/internal/netutil"
)

const (
	HeaderLen = 20

	ProtoICMP = 1
	ProtoTCP  = 6
	ProtoUDP  = 17

	flagsFragmentDF = 0x4000
	versionIHL      = 0x45
	defaultTTL      = 64
)

var (
	ErrPacketTooShort = errors.New("ipv4: packet shorter than header")
	ErrBadVersion     = errors.New("ipv4: version is not 4")
	ErrBadIHL         = errors.New("ipv4: IHL out of range")
	ErrBadChecksum    = errors.New("ipv4: header checksum invalid")
)

// Header is a parsed IPv4 header (spec.md §6 "IPv4 header").
type Header struct {
	IHL            uint8
	TOS            uint8
	TotalLength    uint16
	ID             uint16
	FlagsFragment  uint16
	TTL            uint8
	Protocol       uint8
	Checksum       uint16
	Src            netutil.IPv4
	Dst            netutil.IPv4
}

// Packet is a parsed IPv4 datagram.
type Packet struct {
	Header  Header
	Payload []byte
}

// Parse validates and parses raw as an IPv4 datagram, per spec.md §4.D
// ingress validation: version must be 4, IHL in [5, totalLength/4], and the
// header checksum must verify to zero.
func Parse(raw []byte) (Packet, error) {
	if len(raw) < HeaderLen {
		return Packet{}, fmt.Errorf("%w: got %d bytes", ErrPacketTooShort, len(raw))
	}

	version := raw[0] >> 4
	ihl := raw[0] & 0x0F
	if version != 4 {
		return Packet{}, fmt.Errorf("%w: got %d", ErrBadVersion, version)
	}
	totalLength := binary.BigEndian.Uint16(raw[2:4])
	if ihl < 5 || int(ihl) > int(totalLength)/4 {
		return Packet{}, fmt.Errorf("%w: ihl=%d totalLength=%d", ErrBadIHL, ihl, totalLength)
	}
	headerBytes := int(ihl) * 4
	if len(raw) < headerBytes {
		return Packet{}, fmt.Errorf("%w: header claims %d bytes, have %d", ErrPacketTooShort, headerBytes, len(raw))
	}

	if inetchecksum.Internet(raw[:headerBytes]) != 0 {
		return Packet{}, ErrBadChecksum
	}

	var h Header
	h.IHL = ihl
	h.TOS = raw[1]
	h.TotalLength = totalLength
	h.ID = binary.BigEndian.Uint16(raw[4:6])
	h.FlagsFragment = binary.BigEndian.Uint16(raw[6:8])
	h.TTL = raw[8]
	h.Protocol = raw[9]
	h.Checksum = binary.BigEndian.Uint16(raw[10:12])
	copy(h.Src[:], raw[12:16])
	copy(h.Dst[:], raw[16:20])

	end := int(totalLength)
	if end > len(raw) {
		end = len(raw)
	}
	return Packet{Header: h, Payload: raw[headerBytes:end]}, nil
}

// Build renders a fresh IPv4 datagram (spec.md §4.D egress: "allocates a
// fresh packet, fills {...}, recomputes the header checksum with the
// checksum field zero"). id is the caller-supplied monotonic identifier.
func Build(id uint16, protocol uint8, src, dst netutil.IPv4, payload []byte) []byte {
	totalLength := HeaderLen + len(payload)
	out := make([]byte, totalLength)

	out[0] = versionIHL
	out[1] = 0 // tos
	binary.BigEndian.PutUint16(out[2:4], uint16(totalLength))
	binary.BigEndian.PutUint16(out[4:6], id)
	binary.BigEndian.PutUint16(out[6:8], flagsFragmentDF)
	out[8] = defaultTTL
	out[9] = protocol
	binary.BigEndian.PutUint16(out[10:12], 0) // checksum, filled below
	copy(out[12:16], src[:])
	copy(out[16:20], dst[:])
	copy(out[20:], payload)

	sum := inetchecksum.Internet(out[:HeaderLen])
	binary.BigEndian.PutUint16(out[10:12], sum)
	return out
}

// DestFor reports whether dst is a deliverable destination for a host
// configured with ourIP/mask: ours, the limited broadcast, the subnet
// broadcast, or (class D) multicast (spec.md §4.D "filters by destination").
func DestFor(dst, ourIP, mask netutil.IPv4) bool {
	if dst == ourIP || dst.Broadcast() || dst == ourIP.SubnetBroadcast(mask) {
		return true
	}
	return dst[0]&0xF0 == 0xE0 // 224.0.0.0/4
}

// NextHop implements spec.md §4.D routing: dst itself when it is on our
// subnet, otherwise the configured gateway.
func NextHop(dst, ourIP, mask, gateway netutil.IPv4) netutil.IPv4 {
	if dst.Mask(mask) == ourIP.Mask(mask) {
		return dst
	}
	return gateway
}
