package raft

// electionResetTimer samples a fresh randomized timeout in
// [ElectionTimeout, 2*ElectionTimeout) and marks "now" as the start of the
// current window.
func (r *Raft) electionResetTimer() {
	t := r.timerState()
	lo := int(r.cfg.ElectionTimeout.Milliseconds())
	t.randomizedElectionTimeout = lo + r.io.Random(0, lo)
	r.electionTimerStart = r.io.Time()
}

// pastElectionTimeout reports whether the current randomized election
// timeout has elapsed since electionResetTimer was last called.
func (r *Raft) pastElectionTimeout() bool {
	t := r.timerState()
	now := r.io.Time()
	return uint64(now)-uint64(r.electionTimerStart) >= uint64(t.randomizedElectionTimeout)
}

// tickElection is the tick handler for FOLLOWER and CANDIDATE: it starts a
// new election once the randomized timeout has elapsed. A known leader only
// suppresses this while the timer hasn't expired; expiry itself means the
// leader is stale and clears currentLeaderID, so a crashed or partitioned
// leader doesn't wedge this server out of ever campaigning again.
func (r *Raft) tickElection() {
	if !r.isVoting() {
		return
	}
	if !r.pastElectionTimeout() {
		return
	}
	if r.state == StateFollower {
		r.follower.currentLeaderID = None
	}
	r.becomeCandidate()
	r.electionStart()
}

// electionStart bumps the term, votes for self, persists both durably
// before any outgoing message, resets the election timer and broadcasts
// RequestVote to every other voting peer. A single-server voting cluster
// wins the election immediately, since the candidate's own vote already
// forms a quorum.
func (r *Raft) electionStart() {
	term := r.term + 1
	if !r.persistTerm(term) {
		return
	}
	if !r.persistVote(r.id) {
		return
	}
	r.term = term
	r.vote = r.id
	r.electionResetTimer()

	votingIndex, _ := r.configuration.IndexOfVoting(r.id)
	for i := range r.candidate.votes {
		r.candidate.votes[i] = i == votingIndex
	}

	if r.electionTally(votingIndex) {
		r.becomeLeader()
		return
	}

	for _, s := range r.configuration.VotingServers() {
		if s.ID == r.id {
			continue
		}
		r.send(Message{
			Type:         MsgRequestVote,
			To:           s.ID,
			Term:         r.term,
			LastLogIndex: r.log.LastIndex(),
			LastLogTerm:  r.log.LastTerm(),
		})
	}
}

// handleRequestVote applies the known-leader suppression rule ahead of the
// generic term-bump rule: a FOLLOWER with a known current leader rejects
// outright, without adopting a higher term, so that a removed server
// cannot disrupt a stable leader by campaigning against it.
func (r *Raft) handleRequestVote(from ServerID, msg Message) error {
	if r.faulted() || r.closed {
		return errShutdown
	}
	if r.state == StateFollower && r.follower.currentLeaderID != None {
		r.send(Message{Type: MsgRequestVoteResult, To: from, Term: r.term, VoteGranted: false})
		return nil
	}

	if msg.Term > r.term {
		r.becomeFollower(msg.Term, None)
	} else if msg.Term < r.term {
		r.send(Message{Type: MsgRequestVoteResult, To: from, Term: r.term, VoteGranted: false})
		return nil
	}

	granted := r.electionVote(from, msg)
	r.send(Message{Type: MsgRequestVoteResult, To: from, Term: r.term, VoteGranted: granted})
	return nil
}

// electionVote applies the vote grant policy. It does not send the reply;
// the caller does.
func (r *Raft) electionVote(candidateID ServerID, msg Message) bool {
	if !r.isVoting() {
		return false
	}
	if r.vote != None && r.vote != candidateID {
		return false
	}

	lastIndex := r.log.LastIndex()
	upToDate := false
	switch {
	case lastIndex == 0:
		upToDate = true
	case msg.LastLogTerm > r.log.LastTerm():
		upToDate = true
	case msg.LastLogTerm == r.log.LastTerm() && msg.LastLogIndex >= lastIndex:
		upToDate = true
	}
	if !upToDate {
		return false
	}

	if !r.persistVote(candidateID) {
		return false
	}
	r.vote = candidateID
	r.electionResetTimer()
	return true
}

// electionTally records a granted vote from the voting-subsequence index
// voterIndex and reports whether a quorum has now been reached.
func (r *Raft) electionTally(voterIndex int) bool {
	r.candidate.votes[voterIndex] = true
	votes := 0
	for _, v := range r.candidate.votes {
		if v {
			votes++
		}
	}
	half := len(r.candidate.votes) / 2
	return votes >= half+1
}

// stepCandidate handles every message type a candidate can legitimately
// receive via Raft.step; AppendEntries and InstallSnapshot are
// intercepted earlier by Step itself and never reach here (they apply to
// every role, including CANDIDATE -> FOLLOWER demotion).
func (r *Raft) stepCandidate(from ServerID, msg Message) error {
	if msg.Type != MsgRequestVoteResult {
		return nil
	}
	voterIndex, ok := r.configuration.IndexOfVoting(from)
	if !ok {
		return nil
	}
	if !msg.VoteGranted {
		return nil
	}
	if r.electionTally(voterIndex) {
		r.becomeLeader()
	}
	return nil
}
