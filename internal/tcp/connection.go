package tcp

import (
	"sync"

	"github.com/dantte-lp/netstackd/internal/netutil"
)

const (
	// initialISN is the fixed initial sequence number spec.md §4.F calls
	// for ("seeds send_next = send_unacked = 1000, replace with a random
	// ISN in a production port") -- kept fixed here since randomizing it is
	// explicitly named as future, out-of-scope work by the spec itself.
	initialISN = 1000

	// bufferCapacity sizes both the send and receive ring buffers
	// (spec.md §3: "default 8 KiB send/recv buffers").
	bufferCapacity = 8192

	// initialWindow is the advertised send/recv window at connection
	// construction (spec.md §3: "initial window 65 535"), independent of
	// bufferCapacity.
	initialWindow = 65535
)

// Connection is one TCP connection-table entry (spec.md §3 "TCP
// connection").
type Connection struct {
	mu sync.Mutex

	state State

	localIP    netutil.IPv4
	localPort  uint16
	remoteIP   netutil.IPv4
	remotePort uint16

	sendNext    uint32
	sendUnacked uint32
	recvNext    uint32
	window      uint16

	sendBuf *ringBuffer
	recvBuf *ringBuffer

	ephemeral bool // true if localPort was allocated by connect(), released on close
}

func newConnection(localIP netutil.IPv4, localPort uint16) *Connection {
	return &Connection{
		localIP:     localIP,
		localPort:   localPort,
		sendNext:    initialISN,
		sendUnacked: initialISN,
		window:      initialWindow,
		sendBuf:     newRingBuffer(bufferCapacity),
		recvBuf:     newRingBuffer(bufferCapacity),
	}
}

// State returns the connection's current FSM state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
