package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dantte-lp/netstackd/internal/inetchecksum"
	"github.com/dantte-lp/netstackd/internal/ipv4"
	"github.com/dantte-lp/netstackd/internal/netutil"
)

const (
	HeaderLen = 20

	FlagFIN = 0x01
	FlagSYN = 0x02
	FlagRST = 0x04
	FlagPSH = 0x08
	FlagACK = 0x10
	FlagURG = 0x20
)

var ErrSegmentTooShort = errors.New("tcp: segment shorter than header")

// Segment is a parsed TCP segment (spec.md §6 "TCP header").
type Segment struct {
	SrcPort uint16
	DstPort uint16
	Seq     uint32
	Ack     uint32
	Flags   uint8
	Window  uint16
	Payload []byte
}

// ParseSegment parses raw as a TCP segment. It does not itself verify the
// checksum -- callers that need validation compute it via
// inetchecksum.WithPseudoHeader against the IP source/destination.
func ParseSegment(raw []byte) (Segment, error) {
	if len(raw) < HeaderLen {
		return Segment{}, fmt.Errorf("%w: got %d bytes", ErrSegmentTooShort, len(raw))
	}
	var s Segment
	s.SrcPort = binary.BigEndian.Uint16(raw[0:2])
	s.DstPort = binary.BigEndian.Uint16(raw[2:4])
	s.Seq = binary.BigEndian.Uint32(raw[4:8])
	s.Ack = binary.BigEndian.Uint32(raw[8:12])
	s.Flags = raw[13]
	s.Window = binary.BigEndian.Uint16(raw[14:16])
	dataOffsetWords := raw[12] >> 4
	headerBytes := int(dataOffsetWords) * 4
	if headerBytes < HeaderLen {
		headerBytes = HeaderLen
	}
	if headerBytes > len(raw) {
		headerBytes = len(raw)
	}
	s.Payload = raw[headerBytes:]
	return s, nil
}

// BuildSegment renders a Segment to wire bytes and fills in the
// pseudo-header checksum (spec.md §4.F "Checksum").
func BuildSegment(srcIP, dstIP netutil.IPv4, s Segment) []byte {
	length := HeaderLen + len(s.Payload)
	out := make([]byte, length)
	binary.BigEndian.PutUint16(out[0:2], s.SrcPort)
	binary.BigEndian.PutUint16(out[2:4], s.DstPort)
	binary.BigEndian.PutUint32(out[4:8], s.Seq)
	binary.BigEndian.PutUint32(out[8:12], s.Ack)
	out[12] = 5 << 4 // data offset: 5 words, no options
	out[13] = s.Flags
	binary.BigEndian.PutUint16(out[14:16], s.Window)
	binary.BigEndian.PutUint16(out[16:18], 0) // checksum, filled below
	binary.BigEndian.PutUint16(out[18:20], 0) // urgent pointer, unused
	copy(out[20:], s.Payload)

	sum := inetchecksum.WithPseudoHeader(srcIP, dstIP, ipv4.ProtoTCP, uint16(length), out)
	binary.BigEndian.PutUint16(out[16:18], sum)
	return out
}
