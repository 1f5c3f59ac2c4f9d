package sdls

import "github.com/rs/xid"

// LogSize is the fixed capacity of the tamper/security event ring
// (spec.md §4.9).
const LogSize = 64

// EMVSize is the fixed size of an event's opaque value field.
const EMVSize = 16

// Event codes logged by the engine and EP interpreter (spec.md §4.6, §4.7).
const (
	EventStartup        = "STARTUP"
	EventSPIInvalid     = "SPI_INVALID"
	EventIVWindowError  = "IV_WINDOW_ERR"
	EventIVReplayError  = "IV_REPLAY_ERR"
	EventMACError       = "MAC_ERR"
	EventFECFError      = "FECF_ERR"
	EventMKIDInvalid    = "MKID_INVALID_EID"
	EventOTARMasterErr  = "OTAR_MK_ERR_EID"
	EventKeyStateErr    = "KEY_TRANSITION_ERR"
	EventSATransitionErr = "SA_TRANSITION_ERR"
)

// Event is one entry in the tamper-event log (spec.md §4.9).
type Event struct {
	EMT  string // event type/code
	EMLen int
	EMV  [EMVSize]byte
	CID  string // correlation id, tags every event for cross-referencing logs
}

// LogSummary mirrors the legacy summary block: a big-endian running count
// of events ever appended (including ones dropped for being over capacity)
// plus the current ring occupancy (spec.md §4.9, §9 numbering note).
type LogSummary struct {
	NumSE uint32 // total events ever appended, big-endian arithmetic
	RS    int    // current ring occupancy
}

// EventLog is a bounded ring buffer of Events. Append silently drops new
// events once the ring is full rather than evicting old ones, so the
// earliest tamper evidence is never overwritten (spec.md §4.9).
type EventLog struct {
	events  [LogSize]Event
	count   int
	numSE   uint32
}

// NewEventLog returns an empty log seeded with two STARTUP entries carrying
// emv="NASA", per the engine's fixed seed data (spec.md §6).
func NewEventLog() *EventLog {
	l := &EventLog{}
	for i := 0; i < 2; i++ {
		l.Append(EventStartup, []byte("NASA"))
	}
	return l
}

// Append records an event, tagging it with a fresh correlation id. Once the
// ring is full, further events are counted in the summary but dropped from
// storage (spec.md §4.9).
func (l *EventLog) Append(emt string, emv []byte) {
	l.numSE++
	if l.count >= LogSize {
		return
	}
	var ev Event
	ev.EMT = emt
	ev.EMLen = copy(ev.EMV[:], emv)
	ev.CID = xid.New().String()
	l.events[l.count] = ev
	l.count++
}

// Events returns the currently stored entries, oldest first.
func (l *EventLog) Events() []Event {
	return append([]Event(nil), l.events[:l.count]...)
}

// Summary returns the current NumSE/RS pair (spec.md §4.9).
func (l *EventLog) Summary() LogSummary {
	return LogSummary{NumSE: l.numSE, RS: l.count}
}

// Erase zeroes the ring and resets both counters (spec.md §4.9, MC EraseLog).
func (l *EventLog) Erase() {
	l.events = [LogSize]Event{}
	l.count = 0
	l.numSE = 0
}
