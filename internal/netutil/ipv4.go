// Package netutil holds small address types shared across the layers
// (internal/ethernet, internal/ipv4, internal/udp, internal/tcp) so none of
// them import one another just to pass an address around.
package netutil

import "fmt"

// IPv4 is a 4-byte big-endian IPv4 address, used as a map key throughout
// internal/ipv4, internal/udp and internal/tcp.
type IPv4 [4]byte

// String renders dotted-decimal form.
func (a IPv4) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}

// Broadcast reports whether a is the limited broadcast address 255.255.255.255.
func (a IPv4) Broadcast() bool {
	return a == IPv4{255, 255, 255, 255}
}

// Zero reports whether a is 0.0.0.0.
func (a IPv4) Zero() bool {
	return a == IPv4{}
}

// Mask applies a subnet mask, returning the network portion of a.
func (a IPv4) Mask(mask IPv4) IPv4 {
	var out IPv4
	for i := range a {
		out[i] = a[i] & mask[i]
	}
	return out
}

// SubnetBroadcast returns a's subnet broadcast address given mask: the host
// bits all set to one (original_source/QNetwork's `ours | ^mask`, carried
// forward per SPEC_FULL.md §4).
func (a IPv4) SubnetBroadcast(mask IPv4) IPv4 {
	var out IPv4
	for i := range a {
		out[i] = a[i] | ^mask[i]
	}
	return out
}

// MAC is a 6-byte Ethernet hardware address.
type MAC [6]byte

// String renders colon-separated hex form.
func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// BroadcastMAC is the Ethernet broadcast address ff:ff:ff:ff:ff:ff.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Zero reports whether m is the all-zero address.
func (m MAC) Zero() bool {
	return m == MAC{}
}
