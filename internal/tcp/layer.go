package tcp

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/dantte-lp/netstackd/internal/ipv4"
	"github.com/dantte-lp/netstackd/internal/netutil"
)

// MaxConnections bounds the connection table (spec.md §4.F "Connection
// table (max 256)").
const MaxConnections = 256

var (
	ErrTableFull      = errors.New("tcp: connection table full")
	ErrPortBusy       = errors.New("tcp: local port already in Listen state")
	ErrInvalidHandle  = errors.New("tcp: invalid connection handle")
	ErrEphemeralRange = errors.New("tcp: no ephemeral port available")
)

// Handle identifies one connection-table entry.
type Handle int

// IPSender is the subset of ipv4.Layer's API used to transmit segments.
type IPSender interface {
	Send(protocol uint8, dst netutil.IPv4, payload []byte)
}

// StateChangeFunc is invoked after every FSM transition with the handle and
// its old and new states. internal/socket does not register one: its Accept
// polls State instead.
type StateChangeFunc func(h Handle, old, new State)

// Layer is the TCP transport: connection table, FSM driver, ephemeral port
// allocator, grounded on internal/bfd/manager.go's table-with-capacity
// pattern and internal/bfd/session.go's applyEvent/executeAction split.
type Layer struct {
	mu        sync.Mutex
	ourIP     netutil.IPv4
	conns     map[Handle]*Connection
	byTuple   map[tupleKey]Handle
	listeners map[uint16]Handle
	nextID    Handle

	ports *portAllocator
	ip    IPSender

	onStateChange StateChangeFunc
	log           *slog.Logger
}

type tupleKey struct {
	remoteIP   netutil.IPv4
	remotePort uint16
	localPort  uint16
}

// NewLayer constructs an empty Layer bound to ourIP for egress and ip for
// IP-layer submission.
func NewLayer(ourIP netutil.IPv4, ip IPSender, log *slog.Logger) *Layer {
	return &Layer{
		ourIP:     ourIP,
		conns:     make(map[Handle]*Connection),
		byTuple:   make(map[tupleKey]Handle),
		listeners: make(map[uint16]Handle),
		ports:     newPortAllocator(),
		ip:        ip,
		log:       log,
	}
}

// SetStateChangeCallback registers fn to be invoked after every FSM
// transition.
func (l *Layer) SetStateChangeCallback(fn StateChangeFunc) {
	l.onStateChange = fn
}

// Connect creates an entry, allocates an ephemeral local port, seeds the
// ISN, emits SYN, and transitions to SynSent (spec.md §4.F "connect").
func (l *Layer) Connect(remoteIP netutil.IPv4, remotePort uint16) (Handle, error) {
	l.mu.Lock()
	if len(l.conns) >= MaxConnections {
		l.mu.Unlock()
		return 0, ErrTableFull
	}
	l.mu.Unlock()

	localPort, err := l.ports.Allocate()
	if err != nil {
		return 0, ErrEphemeralRange
	}

	c := newConnection(l.ourIP, localPort)
	c.remoteIP = remoteIP
	c.remotePort = remotePort
	c.ephemeral = true
	c.state = StateSynSent

	l.mu.Lock()
	l.nextID++
	h := l.nextID
	l.conns[h] = c
	l.byTuple[tupleKey{remoteIP, remotePort, localPort}] = h
	l.mu.Unlock()

	l.emitSegment(c, FlagSYN, nil)
	c.sendNext++
	return h, nil
}

// Listen creates an entry in Listen state (spec.md §4.F "listen").
func (l *Layer) Listen(localPort uint16) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.listeners[localPort]; exists {
		return 0, ErrPortBusy
	}
	if len(l.conns) >= MaxConnections {
		return 0, ErrTableFull
	}

	c := newConnection(l.ourIP, localPort)
	c.state = StateListen

	l.nextID++
	h := l.nextID
	l.conns[h] = c
	l.listeners[localPort] = h
	return h, nil
}

// Send truncates data to the connection's window (the fixed 65535-byte
// initial window; the Window field of incoming segments does not change it),
// emits one PSH|ACK segment, and advances send_next (spec.md §4.F "send").
func (l *Layer) Send(h Handle, data []byte) int {
	c := l.lookup(h)
	if c == nil {
		return -1
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if int(c.window) < len(data) {
		data = data[:c.window]
	}
	l.emitSegmentLocked(c, FlagPSH|FlagACK, data)
	c.sendNext += uint32(len(data))
	return len(data)
}

// Receive copies up to len(buf) bytes out of the connection's receive
// buffer (non-blocking), implementing the real ring buffer called for by
// REDESIGN FLAG 4 in place of the distilled spec's stubbed receive path.
func (l *Layer) Receive(h Handle, buf []byte) int {
	c := l.lookup(h)
	if c == nil {
		return -1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recvBuf.Read(buf)
}

// Close implements spec.md §4.F "close(conn)".
func (l *Layer) Close(h Handle) {
	c := l.lookup(h)
	if c == nil {
		return
	}
	c.mu.Lock()
	result := ApplyEvent(c.state, EventLocalClose)
	old := c.state
	c.state = result.NewState
	l.execute(c, result.Actions)
	c.mu.Unlock()

	if result.Changed && l.onStateChange != nil {
		l.onStateChange(h, old, result.NewState)
	}
	if result.NewState == StateClosed {
		l.releaseConnection(h, c)
	}
}

// State returns h's current FSM state, or StateClosed if h is unknown.
func (l *Layer) State(h Handle) State {
	c := l.lookup(h)
	if c == nil {
		return StateClosed
	}
	return c.State()
}

func (l *Layer) lookup(h Handle) *Connection {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conns[h]
}

func (l *Layer) releaseConnection(h Handle, c *Connection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, h)
	delete(l.byTuple, tupleKey{c.remoteIP, c.remotePort, c.localPort})
	if l.listeners[c.localPort] == h {
		delete(l.listeners, c.localPort)
	}
	if c.ephemeral {
		l.ports.Release(c.localPort)
	}
}

// ReceiveSegment is wired as internal/ipv4's TransportReceiveFunc. srcIP is
// threaded straight from the IP header (REDESIGN FLAG 3: spec.md §9 flags
// the original's TCP.processSegment as reading the peer address from the
// wrong place; here it always comes from the caller's verified IP-layer
// source, never re-derived from segment fields).
func (l *Layer) ReceiveSegment(srcIP, dstIP netutil.IPv4, raw []byte) {
	seg, err := ParseSegment(raw)
	if err != nil {
		l.log.Debug("tcp: dropping segment", slog.Any("error", err))
		return
	}

	h, c := l.demux(srcIP, seg)
	if c == nil {
		return
	}

	c.mu.Lock()
	if c.state == StateListen {
		// A Listen entry accepts a new peer tuple on its first SYN.
		c.remoteIP = srcIP
		c.remotePort = seg.SrcPort
		l.mu.Lock()
		l.byTuple[tupleKey{srcIP, seg.SrcPort, c.localPort}] = h
		l.mu.Unlock()
	}

	event := classifyEvent(c.state, seg.Flags, len(seg.Payload))
	result := ApplyEvent(c.state, event)
	old := c.state
	c.state = result.NewState
	if old == StateListen && c.state != StateListen {
		// This entry now belongs to the peer tuple; free the port so a fresh
		// Listen can be re-armed on it.
		l.mu.Lock()
		delete(l.listeners, c.localPort)
		l.mu.Unlock()
	}

	if event == EventRecvACKData {
		c.recvBuf.Write(seg.Payload)
	}
	for _, a := range result.Actions {
		switch a {
		case ActionRecvSeqPlus1:
			c.recvNext = seg.Seq + 1
		case ActionRecvNextPlusLen:
			c.recvNext += uint32(len(seg.Payload))
		case ActionSetSendUnackedFromAck:
			c.sendUnacked = seg.Ack
		}
	}
	l.execute(c, result.Actions)
	c.mu.Unlock()

	if result.Changed && l.onStateChange != nil {
		l.onStateChange(h, old, result.NewState)
	}
	if result.NewState == StateClosed {
		l.releaseConnection(h, c)
	}
}

// demux matches incoming segments by exact tuple first, then falls back to
// any Listen entry on the destination port (spec.md §4.F
// "Demultiplexing").
func (l *Layer) demux(srcIP netutil.IPv4, seg Segment) (Handle, *Connection) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := tupleKey{srcIP, seg.SrcPort, seg.DstPort}
	if h, ok := l.byTuple[key]; ok {
		if c := l.conns[h]; c != nil && c.state != StateListen {
			return h, c
		}
	}
	if h, ok := l.listeners[seg.DstPort]; ok {
		return h, l.conns[h]
	}
	return 0, nil
}

// classifyEvent maps an inbound segment's flags/payload to an FSM event,
// directly per the transition table in spec.md §4.F: FinWait1 is the only
// state that distinguishes a FIN+ACK combination from a bare FIN.
func classifyEvent(state State, flags uint8, payloadLen int) Event {
	switch {
	case flags&FlagSYN != 0 && flags&FlagACK != 0:
		return EventRecvSYNACK
	case flags&FlagSYN != 0:
		return EventRecvSYN
	case flags&FlagFIN != 0:
		if state == StateFinWait1 && flags&FlagACK != 0 {
			return EventRecvFINACK
		}
		return EventRecvFIN
	case flags&FlagACK != 0 && payloadLen > 0:
		return EventRecvACKData
	default:
		return EventRecvACK
	}
}

func (l *Layer) execute(c *Connection, actions []Action) {
	for _, a := range actions {
		switch a {
		case ActionSendSYNACK:
			l.emitSegmentLocked(c, FlagSYN|FlagACK, nil)
		case ActionSendACK:
			l.emitSegmentLocked(c, FlagACK, nil)
		case ActionSendFINACK:
			l.emitSegmentLocked(c, FlagFIN|FlagACK, nil)
		case ActionIncSendNext:
			c.sendNext++
		case ActionReleaseBuffers:
			// Buffers are garbage-collected with the Connection; the table
			// slot itself is freed by the caller via releaseConnection.
		}
	}
}

// emitSegment locks c before building and submitting a segment.
func (l *Layer) emitSegment(c *Connection, flags uint8, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l.emitSegmentLocked(c, flags, payload)
}

// emitSegmentLocked builds and submits a segment; c.mu must already be held.
func (l *Layer) emitSegmentLocked(c *Connection, flags uint8, payload []byte) {
	seg := Segment{
		SrcPort: c.localPort,
		DstPort: c.remotePort,
		Seq:     c.sendNext,
		Ack:     c.recvNext,
		Flags:   flags,
		Window:  c.window,
		Payload: payload,
	}
	raw := BuildSegment(c.localIP, c.remoteIP, seg)
	l.ip.Send(ipv4.ProtoTCP, c.remoteIP, raw)
}

// Len reports the number of active connection-table entries, for metrics.
func (l *Layer) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.conns)
}
