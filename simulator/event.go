package simulator

import raft "github.com/ccl0326/raft/raft"

// EventKind classifies the three kinds of discrete event the harness
// schedules: a tick coming due, a disk append becoming durable, or a
// network message arriving.
type EventKind int

const (
	EventTick EventKind = iota
	EventDiskCompletion
	EventNetworkDelivery
)

func (k EventKind) String() string {
	switch k {
	case EventTick:
		return "TICK"
	case EventDiskCompletion:
		return "DISK"
	case EventNetworkDelivery:
		return "NETWORK"
	default:
		return "UNKNOWN"
	}
}

// event is one scheduled occurrence. seq breaks ties between events of the
// same kind scheduled for the same server at the same virtual time, so
// ordering stays deterministic regardless of map iteration order elsewhere.
type event struct {
	at     raft.Time
	server int
	kind   EventKind
	seq    uint64
	fire   func()
}

// eventQueue is an unsorted slice rather than a heap: cluster sizes in this
// harness are small (a handful of servers), so a linear scan for the
// minimum on each step is simpler than a heap and just as fast in practice.
type eventQueue struct {
	events []*event
	seq    uint64
}

func (q *eventQueue) schedule(at raft.Time, server int, kind EventKind, fire func()) {
	q.seq++
	q.events = append(q.events, &event{at: at, server: server, kind: kind, seq: q.seq, fire: fire})
}

// cancel removes every pending event for server matching kind, used by
// Close to stop scheduling further local work for a shut-down server.
func (q *eventQueue) cancel(server int, kind EventKind) {
	kept := q.events[:0]
	for _, e := range q.events {
		if e.server == server && e.kind == kind {
			continue
		}
		kept = append(kept, e)
	}
	q.events = kept
}

// pop removes and returns the earliest-ordered pending event, or nil if the
// queue is empty. Ordering: earliest virtual time first; ties broken by
// ascending server index, then by event kind, then by schedule order.
func (q *eventQueue) pop() *event {
	if len(q.events) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(q.events); i++ {
		if less(q.events[i], q.events[best]) {
			best = i
		}
	}
	e := q.events[best]
	q.events[best] = q.events[len(q.events)-1]
	q.events = q.events[:len(q.events)-1]
	return e
}

func less(a, b *event) bool {
	if a.at != b.at {
		return a.at < b.at
	}
	if a.server != b.server {
		return a.server < b.server
	}
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	return a.seq < b.seq
}

func (q *eventQueue) empty() bool { return len(q.events) == 0 }
