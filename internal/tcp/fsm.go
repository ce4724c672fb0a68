package tcp

// The TCP state machine is implemented as a pure function over a transition
// table, mirroring internal/bfd/fsm.go's ApplyEvent/fsmTable structure: no
// Connection dependency, no side effects beyond the returned Action list,
// which the caller (Connection.applyEvent) executes.
//
// The eleven RFC 793 states and the transition table below are exactly the
// ones spec.md §4.F lists as authoritative; any (state, event) pair not in
// the table is dropped silently, per spec.md §4.F "any other input segment
// is dropped silently on that connection".

// State is a TCP connection state (RFC 793).
type State uint8

const (
	StateClosed State = iota
	StateListen
	StateSynSent
	StateSynReceived
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateCloseWait
	StateClosing
	StateLastAck
	StateTimeWait
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateListen:
		return "Listen"
	case StateSynSent:
		return "SynSent"
	case StateSynReceived:
		return "SynReceived"
	case StateEstablished:
		return "Established"
	case StateFinWait1:
		return "FinWait1"
	case StateFinWait2:
		return "FinWait2"
	case StateCloseWait:
		return "CloseWait"
	case StateClosing:
		return "Closing"
	case StateLastAck:
		return "LastAck"
	case StateTimeWait:
		return "TimeWait"
	default:
		return "Unknown"
	}
}

// Event is a TCP FSM input: either an inbound segment classification or a
// local API call (spec.md §4.F table plus connect/listen/close).
type Event uint8

const (
	EventRecvSYN Event = iota
	EventRecvSYNACK
	EventRecvACK
	EventRecvACKData
	EventRecvFIN
	EventRecvFINACK
	EventLocalClose
)

// String returns the human-readable name of the event.
func (e Event) String() string {
	switch e {
	case EventRecvSYN:
		return "RecvSYN"
	case EventRecvSYNACK:
		return "RecvSYNACK"
	case EventRecvACK:
		return "RecvACK"
	case EventRecvACKData:
		return "RecvACKData"
	case EventRecvFIN:
		return "RecvFIN"
	case EventRecvFINACK:
		return "RecvFINACK"
	case EventLocalClose:
		return "LocalClose"
	default:
		return "Unknown"
	}
}

// Action is a side-effect the caller must execute after a transition.
type Action uint8

const (
	// ActionRecvSeqPlus1 sets recv_next = segment.seq + 1 (SYN/FIN consume
	// one sequence number).
	ActionRecvSeqPlus1 Action = iota + 1
	// ActionRecvNextPlusLen sets recv_next += len(payload).
	ActionRecvNextPlusLen
	// ActionSetSendUnackedFromAck sets send_unacked = segment.ack.
	ActionSetSendUnackedFromAck
	// ActionSendSYNACK emits a SYN|ACK segment.
	ActionSendSYNACK
	// ActionSendACK emits a bare ACK segment.
	ActionSendACK
	// ActionSendFINACK emits a FIN|ACK segment.
	ActionSendFINACK
	// ActionIncSendNext advances send_next by one (SYN/FIN consume one
	// sequence number on the local side too).
	ActionIncSendNext
	// ActionReleaseBuffers frees send/recv ring buffers and the connection
	// table slot (purely-local close from Listen/SynSent).
	ActionReleaseBuffers
)

type stateEvent struct {
	state State
	event Event
}

type transition struct {
	newState State
	actions  []Action
}

// Result holds the outcome of applying an event to the FSM.
type Result struct {
	OldState State
	NewState State
	Actions  []Action
	Changed  bool
}

//nolint:gochecknoglobals // transition table is intentionally package-level, as in bfd.fsmTable.
var fsmTable = map[stateEvent]transition{
	{StateListen, EventRecvSYN}: {
		newState: StateSynReceived,
		actions:  []Action{ActionRecvSeqPlus1, ActionSendSYNACK, ActionIncSendNext},
	},
	{StateSynSent, EventRecvSYNACK}: {
		newState: StateEstablished,
		actions:  []Action{ActionRecvSeqPlus1, ActionSetSendUnackedFromAck, ActionSendACK},
	},
	{StateSynReceived, EventRecvACK}: {
		newState: StateEstablished,
		actions:  []Action{ActionSetSendUnackedFromAck},
	},
	{StateEstablished, EventRecvACKData}: {
		newState: StateEstablished,
		actions:  []Action{ActionRecvNextPlusLen, ActionSendACK},
	},
	{StateEstablished, EventRecvFIN}: {
		newState: StateCloseWait,
		actions:  []Action{ActionRecvSeqPlus1, ActionSendACK},
	},
	{StateFinWait1, EventRecvFINACK}: {
		newState: StateTimeWait,
		actions:  []Action{ActionRecvSeqPlus1, ActionSendACK},
	},
	{StateFinWait1, EventRecvACK}: {
		newState: StateFinWait2,
		actions:  nil,
	},
	{StateFinWait1, EventRecvFIN}: {
		newState: StateClosing,
		actions:  []Action{ActionRecvSeqPlus1, ActionSendACK},
	},
	{StateFinWait2, EventRecvFIN}: {
		newState: StateTimeWait,
		actions:  []Action{ActionRecvSeqPlus1, ActionSendACK},
	},
	{StateClosing, EventRecvACK}: {
		newState: StateTimeWait,
		actions:  nil,
	},
	{StateLastAck, EventRecvACK}: {
		newState: StateClosed,
		actions:  nil,
	},

	// Local close() transitions (spec.md §4.F "close(conn)").
	{StateEstablished, EventLocalClose}: {
		newState: StateFinWait1,
		actions:  []Action{ActionSendFINACK, ActionIncSendNext},
	},
	{StateSynReceived, EventLocalClose}: {
		newState: StateFinWait1,
		actions:  []Action{ActionSendFINACK, ActionIncSendNext},
	},
	{StateCloseWait, EventLocalClose}: {
		newState: StateLastAck,
		actions:  []Action{ActionSendFINACK, ActionIncSendNext},
	},
	{StateListen, EventLocalClose}: {
		newState: StateClosed,
		actions:  []Action{ActionReleaseBuffers},
	},
	{StateSynSent, EventLocalClose}: {
		newState: StateClosed,
		actions:  []Action{ActionReleaseBuffers},
	},
}

// ApplyEvent applies event to currentState and returns the result. It is a
// pure function; the caller executes Actions. An (state, event) pair absent
// from the table leaves the state unchanged with no actions.
func ApplyEvent(currentState State, event Event) Result {
	tr, ok := fsmTable[stateEvent{state: currentState, event: event}]
	if !ok {
		return Result{OldState: currentState, NewState: currentState}
	}
	return Result{
		OldState: currentState,
		NewState: tr.newState,
		Actions:  tr.actions,
		Changed:  currentState != tr.newState,
	}
}
