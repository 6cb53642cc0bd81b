package simulator

import raft "github.com/ccl0326/raft/raft"

// simIO is the raft.IO implementation for one server in a Cluster. Every
// method either reads/writes process-local state directly (Time, Random,
// SetTerm, SetVote, SnapshotPut/Get) or schedules a future event on the
// cluster's shared queue (Append, Send) so durability and delivery are
// modeled as discrete, orderable steps rather than happening inline.
type simIO struct {
	cluster *Cluster
	index   int // position in cluster.servers

	term uint64
	vote raft.ServerID
	snap raft.Snapshot
	hasSnap bool

	recv   raft.RecvCallback
	closed bool
}

func (io *simIO) Time() raft.Time { return io.cluster.now }

func (io *simIO) Random(lo, hi int) int { return io.cluster.rng(lo, hi) }

func (io *simIO) SetTerm(term uint64) error {
	io.term = term
	return nil
}

func (io *simIO) SetVote(id raft.ServerID) error {
	io.vote = id
	return nil
}

func (io *simIO) Append(entries []raft.Entry, token raft.Token, cb raft.AppendCallback) {
	if io.closed {
		return
	}
	batch := append([]raft.Entry(nil), entries...)
	io.cluster.events.schedule(io.cluster.now+io.cluster.diskLatency, io.index, EventDiskCompletion, func() {
		_ = batch
		cb(token, nil)
	})
}

func (io *simIO) Truncate(index uint64) error { return nil }

func (io *simIO) SnapshotPut(s raft.Snapshot) error {
	io.snap = s
	io.hasSnap = true
	return nil
}

func (io *simIO) SnapshotGet() (raft.Snapshot, bool, error) {
	return io.snap, io.hasSnap, nil
}

func (io *simIO) Send(msg raft.Message, token raft.Token, cb raft.SendCallback) {
	if io.closed {
		return
	}
	toIdx := io.cluster.indexOf(msg.To)
	if toIdx < 0 {
		cb(token, &raft.TransportFaultError{})
		return
	}
	fromIdx := io.index
	delay := io.cluster.latency(fromIdx, toIdx)
	fromAddr := io.cluster.servers[fromIdx].address
	io.cluster.events.schedule(io.cluster.now+delay, toIdx, EventNetworkDelivery, func() {
		dst := io.cluster.servers[toIdx].io
		if !dst.closed && dst.recv != nil {
			dst.recv(msg.From, fromAddr, msg)
		}
		cb(token, nil)
	})
}

func (io *simIO) Recv(cb raft.RecvCallback) { io.recv = cb }

func (io *simIO) Close(cb raft.CloseCallback) {
	io.closed = true
	io.cluster.events.cancel(io.index, EventTick)
	cb()
}
