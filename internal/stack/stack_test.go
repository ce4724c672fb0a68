package stack_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/dantte-lp/netstackd/internal/netutil"
	"github.com/dantte-lp/netstackd/internal/stack"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestEndToEndARPAndUDP wires two Stacks back-to-back (each one's transmit
// callback feeds the other's ReceiveFromNIC, as two NICs on the same wire
// would) and exercises a full path: ARP resolution on first send, then UDP
// delivery, across every layer New wires together.
func TestEndToEndARPAndUDP(t *testing.T) {
	t.Parallel()

	var client, server *stack.Stack

	clientCfg := stack.Config{
		MAC:     netutil.MAC{0x02, 0, 0, 0, 0, 1},
		IPv4:    netutil.IPv4{10, 0, 0, 1},
		Mask:    netutil.IPv4{255, 255, 255, 0},
		Gateway: netutil.IPv4{10, 0, 0, 254},
	}
	serverCfg := stack.Config{
		MAC:     netutil.MAC{0x02, 0, 0, 0, 0, 2},
		IPv4:    netutil.IPv4{10, 0, 0, 2},
		Mask:    netutil.IPv4{255, 255, 255, 0},
		Gateway: netutil.IPv4{10, 0, 0, 254},
	}

	client = stack.New(clientCfg, discardLogger())
	server = stack.New(serverCfg, discardLogger())
	client.RegisterTransmitCallback(func(frame []byte) { server.ReceiveFromNIC(frame) })
	server.RegisterTransmitCallback(func(frame []byte) { client.ReceiveFromNIC(frame) })

	h, err := server.UDP().Bind(9000)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	client.UDP().Send(serverCfg.IPv4, 9000, 5000, []byte("hello"))

	buf := make([]byte, 16)
	n, srcIP, srcPort := server.UDP().Receive(h, buf)
	if n != len("hello") {
		t.Fatalf("Receive returned n=%d, want %d (ARP resolution + delivery should have completed synchronously)", n, len("hello"))
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("payload = %q, want %q", buf[:n], "hello")
	}
	if srcIP != clientCfg.IPv4 {
		t.Fatalf("srcIP = %v, want %v", srcIP, clientCfg.IPv4)
	}
	if srcPort != 5000 {
		t.Fatalf("srcPort = %d, want 5000", srcPort)
	}
	if got := client.ARPCacheLen(); got != 1 {
		t.Fatalf("client ARP cache len = %d, want 1", got)
	}
	if got := client.PendingQueueLen(); got != 0 {
		t.Fatalf("client pending queue len = %d, want 0 (flushed)", got)
	}
}

// TestEndToEndTCPHandshake exercises a full TCP three-way handshake across
// two wired Stacks, confirming internal/tcp's connection table and FSM are
// reachable through the full Ethernet/IPv4 path, not just in isolation.
func TestEndToEndTCPHandshake(t *testing.T) {
	t.Parallel()

	var client, server *stack.Stack

	clientCfg := stack.Config{
		MAC:  netutil.MAC{0x02, 0, 0, 0, 0, 3},
		IPv4: netutil.IPv4{10, 0, 0, 3},
		Mask: netutil.IPv4{255, 255, 255, 0},
	}
	serverCfg := stack.Config{
		MAC:  netutil.MAC{0x02, 0, 0, 0, 0, 4},
		IPv4: netutil.IPv4{10, 0, 0, 4},
		Mask: netutil.IPv4{255, 255, 255, 0},
	}

	client = stack.New(clientCfg, discardLogger())
	server = stack.New(serverCfg, discardLogger())
	client.RegisterTransmitCallback(func(frame []byte) { server.ReceiveFromNIC(frame) })
	server.RegisterTransmitCallback(func(frame []byte) { client.ReceiveFromNIC(frame) })

	if _, err := server.TCP().Listen(80); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ch, err := client.TCP().Connect(serverCfg.IPv4, 80)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if got := client.TCP().State(ch); got.String() != "Established" {
		t.Fatalf("client state = %v, want Established", got)
	}
	if got := server.TCPConnectionCount(); got != 1 {
		t.Fatalf("server connection count = %d, want 1", got)
	}
}
