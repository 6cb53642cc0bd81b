package raft

import (
	"bytes"
	"encoding/gob"
)

// FSM is the user-supplied application state machine that interprets
// committed command entries. The core only ever calls Apply, in log order,
// exactly once per entry per server.
type FSM interface {
	Apply(payload []byte) (interface{}, error)
}

// completionPoint controls whether a future completes as soon as its entry
// commits, or only once it has also been applied to the FSM.
type completionPoint int

const (
	completeOnApply completionPoint = iota
	completeOnCommit
)

type future struct {
	index      uint64
	completion completionPoint
	ch         chan futureResult
	done       bool
}

type futureResult struct {
	Result interface{}
	Err    error
}

func newFuture(index uint64, completion completionPoint) *future {
	return &future{index: index, completion: completion, ch: make(chan futureResult, 1)}
}

func (f *future) complete(result interface{}, err error) {
	if f.done {
		return
	}
	f.done = true
	f.ch <- futureResult{Result: result, Err: err}
}

// Future is the handle returned by Apply, Barrier and the membership-change
// operations. Await blocks until the operation completes.
type Future struct{ f *future }

// Await blocks until the future completes, returning the FSM's result for
// Apply futures, or (nil, nil) on success for Barrier/membership futures.
// It may only be called once per Future.
func (fut *Future) Await() (interface{}, error) {
	r := <-fut.f.ch
	return r.Result, r.Err
}

// propose appends one entry at the leader's current term and registers a
// future for it; it is the shared path behind Apply, Barrier and the
// membership operations.
func (r *Raft) propose(entryType EntryType, payload []byte, completion completionPoint) (*Future, error) {
	if r.faulted() {
		return nil, r.fault
	}
	if r.closed {
		return nil, errShutdown
	}
	if r.state != StateLeader {
		return nil, &NotLeaderError{ServerID: r.id, LeaderID: r.LeaderID()}
	}

	// The future must be registered before appendEntries, whose durability
	// callback may fire inline and complete it the instant a single-node
	// cluster commits.
	index := r.log.LastIndex() + 1
	f := newFuture(index, completion)
	r.pendingFutures[index] = f
	r.appendEntries(Entry{Type: entryType, Payload: payload})
	return &Future{f: f}, nil
}

// Apply proposes a new COMMAND entry. The returned Future completes once
// the entry has committed and been applied, with the FSM's result.
func (r *Raft) Apply(payload []byte) (*Future, error) {
	return r.propose(EntryCommand, payload, completeOnApply)
}

// Barrier proposes a no-op entry. The returned Future completes once the
// entry commits, guaranteeing every previously proposed entry has too.
func (r *Raft) Barrier() (*Future, error) {
	return r.propose(EntryBarrier, nil, completeOnCommit)
}

// applyEntry passes the payload of a single committed COMMAND entry to the
// FSM, in index order. BARRIER and CONFIGURATION entries are not handed to
// the FSM. Only completeOnApply futures are completed here; the futures
// that Barrier and the membership operations register are completeOnCommit
// ones, which completeCommitFutures completes instead.
func (r *Raft) applyEntry(ent Entry) {
	var result interface{}
	var err error
	if ent.Type == EntryCommand {
		result, err = r.fsm.Apply(ent.Payload)
	}
	if ent.Type == EntryConfiguration {
		r.onConfigurationCommitted(ent.Index)
	}
	if f, ok := r.pendingFutures[ent.Index]; ok && f.completion == completeOnApply {
		f.complete(result, err)
		delete(r.pendingFutures, ent.Index)
	}
	r.lastApplied = ent.Index
}

// applyCommitted applies every entry in (lastApplied, commitIndex], in
// order, exactly once.
func (r *Raft) applyCommitted() {
	for r.lastApplied < r.commitIndex {
		ent, err := r.log.Get(r.lastApplied + 1)
		if err != nil {
			r.onFault("apply", err)
			return
		}
		r.applyEntry(ent)
	}
}

// completeCommitFutures completes every completeOnCommit future (Barrier,
// membership changes) whose index is now <= commitIndex.
func (r *Raft) completeCommitFutures() {
	for idx, f := range r.pendingFutures {
		if f.completion == completeOnCommit && idx <= r.commitIndex {
			f.complete(nil, nil)
			delete(r.pendingFutures, idx)
		}
	}
}

// stepDownFutures is called when a leader becomes a follower: every
// outstanding future was accepted but may never commit now, so they all
// fail with LeadershipLostError. This includes any pending automatic
// promotion catch-up, since a former leader no longer tracks it.
func (r *Raft) stepDownFutures() {
	for idx, f := range r.pendingFutures {
		f.complete(nil, &LeadershipLostError{ServerID: r.id, Term: r.term})
		delete(r.pendingFutures, idx)
	}
	if r.leader != nil {
		for id, cu := range r.leader.catchUp {
			cu.future.complete(nil, &LeadershipLostError{ServerID: r.id, Term: r.term})
			delete(r.leader.catchUp, id)
		}
	}
}

func encodeConfiguration(c Configuration) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		panic("raft: failed to encode configuration: " + err.Error())
	}
	return buf.Bytes()
}

func decodeConfiguration(payload []byte) (Configuration, error) {
	var c Configuration
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&c); err != nil {
		return Configuration{}, err
	}
	return c, nil
}
