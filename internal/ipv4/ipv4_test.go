package ipv4_test

import (
	"bytes"
	"testing"

	"github.com/dantte-lp/netstackd/internal/ipv4"
	"github.com/dantte-lp/netstackd/internal/netutil"
)

func TestBuildParseRoundTrip(t *testing.T) {
	t.Parallel()

	src := netutil.IPv4{10, 0, 0, 1}
	dst := netutil.IPv4{10, 0, 0, 2}
	payload := []byte("payload-bytes")

	raw := ipv4.Build(42, ipv4.ProtoUDP, src, dst, payload)
	pkt, err := ipv4.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pkt.Header.Src != src || pkt.Header.Dst != dst || pkt.Header.Protocol != ipv4.ProtoUDP {
		t.Fatalf("header mismatch: %+v", pkt.Header)
	}
	if pkt.Header.ID != 42 {
		t.Fatalf("ID = %d, want 42", pkt.Header.ID)
	}
	if !bytes.Equal(pkt.Payload, payload) {
		t.Fatalf("payload mismatch: got %q want %q", pkt.Payload, payload)
	}
}

func TestParseRejectsBadVersion(t *testing.T) {
	t.Parallel()

	raw := ipv4.Build(1, ipv4.ProtoTCP, netutil.IPv4{1, 1, 1, 1}, netutil.IPv4{2, 2, 2, 2}, []byte("x"))
	raw[0] = 0x65 // version 6
	if _, err := ipv4.Parse(raw); err == nil {
		t.Fatal("expected version error")
	}
}

func TestParseRejectsBadChecksum(t *testing.T) {
	t.Parallel()

	raw := ipv4.Build(1, ipv4.ProtoTCP, netutil.IPv4{1, 1, 1, 1}, netutil.IPv4{2, 2, 2, 2}, []byte("x"))
	raw[10] ^= 0xFF
	if _, err := ipv4.Parse(raw); err == nil {
		t.Fatal("expected checksum error")
	}
}

func TestParseTooShort(t *testing.T) {
	t.Parallel()

	if _, err := ipv4.Parse(make([]byte, 10)); err == nil {
		t.Fatal("expected too-short error")
	}
}

func TestNextHopLocalVsGateway(t *testing.T) {
	t.Parallel()

	ourIP := netutil.IPv4{192, 168, 1, 10}
	mask := netutil.IPv4{255, 255, 255, 0}
	gateway := netutil.IPv4{192, 168, 1, 1}

	local := netutil.IPv4{192, 168, 1, 20}
	if got := ipv4.NextHop(local, ourIP, mask, gateway); got != local {
		t.Errorf("NextHop(local) = %v, want %v", got, local)
	}

	remote := netutil.IPv4{8, 8, 8, 8}
	if got := ipv4.NextHop(remote, ourIP, mask, gateway); got != gateway {
		t.Errorf("NextHop(remote) = %v, want gateway %v", got, gateway)
	}
}

func TestDestForBroadcastAndMulticast(t *testing.T) {
	t.Parallel()

	ourIP := netutil.IPv4{192, 168, 1, 10}
	mask := netutil.IPv4{255, 255, 255, 0}

	if !ipv4.DestFor(ourIP, ourIP, mask) {
		t.Error("expected our own address to be deliverable")
	}
	if !ipv4.DestFor(netutil.IPv4{255, 255, 255, 255}, ourIP, mask) {
		t.Error("expected limited broadcast to be deliverable")
	}
	if !ipv4.DestFor(netutil.IPv4{192, 168, 1, 255}, ourIP, mask) {
		t.Error("expected subnet broadcast to be deliverable")
	}
	if !ipv4.DestFor(netutil.IPv4{224, 0, 0, 1}, ourIP, mask) {
		t.Error("expected multicast to be deliverable")
	}
	if ipv4.DestFor(netutil.IPv4{8, 8, 8, 8}, ourIP, mask) {
		t.Error("expected unrelated address to not be deliverable")
	}
}

func TestICMPEchoReply(t *testing.T) {
	t.Parallel()

	request := []byte{8, 0, 0, 0, 1, 2, 3, 4, 'p', 'i', 'n', 'g'}
	reply, ok := ipv4.ICMPEchoReply(request)
	if !ok {
		t.Fatal("expected ICMPEchoReply to succeed")
	}
	if reply[0] != ipv4.ICMPTypeEchoReply || reply[1] != 0 {
		t.Fatalf("reply type/code = %d/%d, want 0/0", reply[0], reply[1])
	}
	if !bytes.Equal(reply[4:8], request[4:8]) {
		t.Fatalf("rest-of-header not preserved: got %v want %v", reply[4:8], request[4:8])
	}
	if !bytes.Equal(reply[8:], request[8:]) {
		t.Fatalf("payload not preserved: got %v want %v", reply[8:], request[8:])
	}
}

func TestICMPEchoReplyRejectsNonEchoRequest(t *testing.T) {
	t.Parallel()

	if _, ok := ipv4.ICMPEchoReply([]byte{0, 0, 0, 0, 0, 0, 0, 0}); ok {
		t.Fatal("expected ICMPEchoReply to reject an echo reply as input")
	}
}
