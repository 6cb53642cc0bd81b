package raft

import "go.uber.org/atomic"

// TransportHandshakeVersion is the version byte a concrete networked
// transport must send first. It is not interpreted by the core; it
// documents the contract a real transport implementation must honor before
// exchanging any Message.
const TransportHandshakeVersion byte = 0x01

// AppendCallback is invoked once an IO.Append call has durably persisted
// its entries (i.e. after fsync), or has failed.
type AppendCallback func(token Token, err error)

// SendCallback is invoked once a transport has released a message: either
// it was handed off successfully, or the attempt failed. A failure is
// never fatal; it is logged and the normal heartbeat/replication loop
// retries.
type SendCallback func(token Token, err error)

// CloseCallback is invoked once IO.Close has drained every outstanding
// callback.
type CloseCallback func()

// RecvCallback delivers an inbound message, tagged with the sender's id
// and address as reported by the transport.
type RecvCallback func(senderID ServerID, senderAddress string, msg Message)

// IO is the abstract boundary through which the core drives time,
// randomness, persistence and networking. The core never performs any of
// these directly: every potentially blocking call is delegated here and
// completes via a callback delivered on the same logical executor as
// Raft.Tick/Raft.Step, so no internal locking is needed. Implementations
// must not reenter the core from within a callback before that callback
// returns.
type IO interface {
	// Time returns a monotonic clock reading in milliseconds. It must never
	// go backwards.
	Time() Time
	// Random returns a pseudo-random integer in [lo, hi).
	Random(lo, hi int) int

	// SetTerm durably persists the current term. It must return only after
	// the value is durable.
	SetTerm(term uint64) error
	// SetVote durably persists the candidate id voted for in the current
	// term (0 clears it). It must return only after the value is durable.
	SetVote(id ServerID) error

	// Append asynchronously persists entries; cb fires after fsync.
	Append(entries []Entry, token Token, cb AppendCallback)
	// Truncate durably discards entries at or above index.
	Truncate(index uint64) error

	// SnapshotPut durably persists a snapshot.
	SnapshotPut(s Snapshot) error
	// SnapshotGet returns the most recently persisted snapshot, if any.
	SnapshotGet() (Snapshot, bool, error)

	// Send asynchronously transmits msg to the server identified by
	// msg.To; cb fires with the outcome once the transport has released
	// the message. The message contents must remain valid until cb fires.
	Send(msg Message, token Token, cb SendCallback)
	// Recv installs the callback invoked for every inbound message. It is
	// called exactly once, during setup.
	Recv(cb RecvCallback)

	// Close drains every outstanding callback and then invokes cb. No new
	// work may be submitted to the IO after Close is called.
	Close(cb CloseCallback)
}

// Token identifies one outstanding Append or Send request. The core hands
// a Token to the IO layer and receives it back in the corresponding
// callback; it never retains a pointer into IO-owned state between the two.
type Token uint64

// tokenPool assigns monotonically increasing tokens to outstanding
// Append/Send requests and reclaims them when the corresponding callback
// fires. Its counter is a go.uber.org/atomic value; within this module only
// the dispatch goroutine that allocates tokens reads or writes it.
type tokenPool struct {
	next        atomic.Uint64
	outstanding map[Token]struct{}
}

func newTokenPool() *tokenPool {
	return &tokenPool{outstanding: make(map[Token]struct{})}
}

// Acquire reserves and returns a fresh token.
func (p *tokenPool) Acquire() Token {
	t := Token(p.next.Add(1))
	p.outstanding[t] = struct{}{}
	return t
}

// Release reclaims a token once its callback has fired.
func (p *tokenPool) Release(t Token) {
	delete(p.outstanding, t)
}

// Outstanding reports how many tokens are still awaiting a callback.
// Raft.Close does not consult it; draining is left to IO.Close.
func (p *tokenPool) Outstanding() int {
	return len(p.outstanding)
}
