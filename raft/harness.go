package raft

// Elect and Depose are harness-only escape hatches: a real deployment never
// calls these, since real elections and step-downs only ever happen
// through Tick and Step. They exist so a test harness can force a specific
// server to become leader, or force the current leader to step down,
// without fabricating a fake election timeout race across every peer.

// Elect forces this server to start an election immediately, regardless
// of its current randomized timeout. It is a no-op if the server is not
// FOLLOWER or CANDIDATE, or is not a voting member.
func (r *Raft) Elect() {
	if r.faulted() || r.closed {
		return
	}
	if r.state == StateLeader || !r.isVoting() {
		return
	}
	r.becomeCandidate()
	r.electionStart()
}

// Depose forces this server to step down immediately if it is currently
// the leader. It is a no-op otherwise.
func (r *Raft) Depose() {
	if r.faulted() || r.closed {
		return
	}
	if r.state != StateLeader {
		return
	}
	r.becomeFollower(r.term, None)
}
