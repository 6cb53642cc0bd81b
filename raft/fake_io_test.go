package raft

// fakeIO is a minimal, single-node-friendly raft.IO used by unit tests that
// don't need the full simulator package: every Append/Send callback fires
// synchronously, and Send records outgoing messages instead of delivering
// them, so a test can assert on what a server tried to broadcast.
type fakeIO struct {
	now  Time
	rnd  func(lo, hi int) int
	sent []Message

	term uint64
	vote ServerID

	snap    Snapshot
	hasSnap bool

	recv RecvCallback
}

func newFakeIO() *fakeIO {
	return &fakeIO{rnd: func(lo, hi int) int { return lo }}
}

func (f *fakeIO) Time() Time            { return f.now }
func (f *fakeIO) Random(lo, hi int) int { return f.rnd(lo, hi) }

func (f *fakeIO) SetTerm(term uint64) error { f.term = term; return nil }
func (f *fakeIO) SetVote(id ServerID) error { f.vote = id; return nil }

func (f *fakeIO) Append(entries []Entry, token Token, cb AppendCallback) { cb(token, nil) }
func (f *fakeIO) Truncate(index uint64) error                            { return nil }

func (f *fakeIO) SnapshotPut(s Snapshot) error         { f.snap = s; f.hasSnap = true; return nil }
func (f *fakeIO) SnapshotGet() (Snapshot, bool, error) { return f.snap, f.hasSnap, nil }

func (f *fakeIO) Send(msg Message, token Token, cb SendCallback) {
	f.sent = append(f.sent, msg)
	cb(token, nil)
}

func (f *fakeIO) Recv(cb RecvCallback) { f.recv = cb }
func (f *fakeIO) Close(cb CloseCallback) { cb() }

func (f *fakeIO) lastSent() (Message, bool) {
	if len(f.sent) == 0 {
		return Message{}, false
	}
	return f.sent[len(f.sent)-1], true
}
