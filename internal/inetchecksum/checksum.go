// Package inetchecksum implements the host/network byte-order swaps and the
// Internet checksum algorithm shared by internal/ipv4, internal/tcp and
// internal/udp (spec.md §4.B), following the explicit byte-level style of
// the teacher's internal/bfd/packet.go codec rather than reaching for a
// third-party binary-protocol library (see DESIGN.md).
package inetchecksum

import "encoding/binary"

// HToNS converts a uint16 from host to network byte order. On a Go process
// there is no host byte order distinct from the wire's big-endian
// convention, so this and NToHS are identity functions kept for parity with
// the named operations in spec.md §4.B and to give callers a single place
// that states the convention explicitly.
func HToNS(v uint16) uint16 { return v }

// NToHS converts a uint16 from network to host byte order.
func NToHS(v uint16) uint16 { return v }

// HToNL converts a uint32 from host to network byte order.
func HToNL(v uint32) uint32 { return v }

// NToHL converts a uint32 from network to host byte order.
func NToHL(v uint32) uint32 { return v }

// Internet computes the Internet checksum (RFC 1071) over data: the
// one's-complement of the one's-complement 16-bit sum of big-endian word
// pairs, with an odd trailing byte treated as the high byte of a
// zero-padded word.
func Internet(data []byte) uint16 {
	var sum uint32
	n := len(data)
	i := 0
	for ; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if i < n {
		sum += uint32(data[i]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// PseudoHeader builds the 12-byte TCP/UDP pseudo-header
// {src_ip, dst_ip, zero, protocol, length} used as a checksum prefix
// (spec.md §4.B).
func PseudoHeader(src, dst [4]byte, protocol uint8, length uint16) [12]byte {
	var out [12]byte
	copy(out[0:4], src[:])
	copy(out[4:8], dst[:])
	out[8] = 0
	out[9] = protocol
	binary.BigEndian.PutUint16(out[10:12], length)
	return out
}

// WithPseudoHeader computes the Internet checksum of the pseudo-header
// concatenated with segment, as required for TCP and UDP checksums.
func WithPseudoHeader(src, dst [4]byte, protocol uint8, length uint16, segment []byte) uint16 {
	ph := PseudoHeader(src, dst, protocol, length)
	buf := make([]byte, 0, len(ph)+len(segment))
	buf = append(buf, ph[:]...)
	buf = append(buf, segment...)
	return Internet(buf)
}

// UDPChecksumOrFFFF applies the RFC 768 rule that a computed checksum of
// exactly zero is sent on the wire as 0xFFFF, since a wire value of zero
// means "checksum not computed".
func UDPChecksumOrFFFF(sum uint16) uint16 {
	if sum == 0 {
		return 0xFFFF
	}
	return sum
}
