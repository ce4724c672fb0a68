package ipv4

import (
	"encoding/binary"

	"github.com/dantte-lp/netstackd/internal/inetchecksum"
)

const (
	icmpHeaderLen = 8

	ICMPEchoRequest   = 8
	ICMPTypeEchoReply = 0
)

// ICMPEchoReply builds an echo reply for an echo request payload (type 8,
// code 0), preserving the rest-of-header and the trailing payload bytes
// unchanged (spec.md §4.D "ICMP").
func ICMPEchoReply(request []byte) ([]byte, bool) {
	if len(request) < icmpHeaderLen || request[0] != ICMPEchoRequest || request[1] != 0 {
		return nil, false
	}

	out := make([]byte, len(request))
	copy(out, request)
	out[0] = ICMPTypeEchoReply
	out[1] = 0
	binary.BigEndian.PutUint16(out[2:4], 0)
	sum := inetchecksum.Internet(out)
	binary.BigEndian.PutUint16(out[2:4], sum)
	return out, true
}
