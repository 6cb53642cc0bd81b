package raft

// send hands a message to the IO layer, tagging it with a fresh token so
// the corresponding callback can be correlated without the core retaining
// a pointer into IO-owned state. A send failure is logged and otherwise
// ignored: transport faults are always absorbed locally and left for the
// normal heartbeat/replication retry loop to paper over.
func (r *Raft) send(msg Message) {
	msg.From = r.id
	token := r.tokens.Acquire()
	r.io.Send(msg, token, func(tok Token, err error) {
		r.tokens.Release(tok)
		if err != nil {
			r.logger.Warningf("%d failed to send %s to %d: %v", r.id, msg.Type, msg.To, &TransportFaultError{To: msg.To, err: err})
		}
	})
}

// appendEntries assigns indices and the current term to entries and
// returns the index of the last entry, before the entries are durable.
// The log is updated synchronously, but every effect that the safety
// properties depend on an entry actually surviving a crash for --
// advancing commitIndex, broadcasting it to followers, completing a
// commit future -- waits for IO.Append's durability callback. Callers
// that register a future against the returned index must do so before
// calling appendEntries, since the callback may fire inline.
func (r *Raft) appendEntries(entries ...Entry) uint64 {
	last := r.log.LastIndex()
	for i := range entries {
		entries[i].Index = last + 1 + uint64(i)
		entries[i].Term = r.term
	}
	if err := r.log.Append(entries); err != nil {
		r.onFault("append", err)
		return last
	}
	last = r.log.LastIndex()

	// CONFIGURATION entries take effect optimistically at append time,
	// independent of durability.
	for _, e := range entries {
		if e.Type == EntryConfiguration {
			r.onConfigurationAppended(e)
		}
	}

	token := r.tokens.Acquire()
	r.io.Append(entries, token, func(tok Token, err error) {
		r.tokens.Release(tok)
		if err != nil {
			r.onFault("append", err)
			return
		}
		r.onEntriesPersisted(entries, last)
	})
	return last
}

// onEntriesPersisted runs once a batch of appended entries is confirmed
// durable: if this server is still the leader for the term at which they
// were written, it advances its own match index, re-evaluates commit, and
// broadcasts the new entries.
func (r *Raft) onEntriesPersisted(entries []Entry, last uint64) {
	if r.state != StateLeader || len(entries) == 0 || entries[0].Term != r.term {
		return
	}
	if pr := r.progressOf(r.id); pr != nil {
		pr.maybeUpdate(last)
	}
	if r.maybeCommit() {
		r.completeCommitFutures()
		r.applyCommitted()
	}
	r.bcastAppend()
}

// sendAppend sends an AppendEntries RPC to follower `to`, carrying every
// entry from pr.Next onward. It falls back to snapshot state if those
// entries are no longer retained.
func (r *Raft) sendAppend(to ServerID) {
	pr := r.progressOf(to)
	if pr == nil || pr.State == ProgressStateSnapshot {
		return
	}
	if pr.State == ProgressStatePipeline && pr.pipelineFull() {
		return
	}

	prevIndex := pr.Next - 1
	prevTerm, err := r.termAt(prevIndex)
	if err != nil {
		r.sendInstallSnapshot(to)
		return
	}

	var entries []Entry
	for idx := pr.Next; idx <= r.log.LastIndex(); idx++ {
		ent, err := r.log.Get(idx)
		if err != nil {
			r.sendInstallSnapshot(to)
			return
		}
		entries = append(entries, ent)
	}

	r.send(Message{
		Type:         MsgAppendEntries,
		To:           to,
		Term:         r.term,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: r.commitIndex,
	})

	if len(entries) > 0 {
		last := entries[len(entries)-1].Index
		if pr.State == ProgressStatePipeline {
			pr.inflights.Add(last)
		} else {
			pr.becomePipeline()
		}
	}
}

func (r *Raft) termAt(index uint64) (uint64, error) {
	if index == 0 {
		return 0, nil
	}
	ent, err := r.log.Get(index)
	if err != nil {
		return 0, err
	}
	return ent.Term, nil
}

func (r *Raft) sendHeartbeat(to ServerID) {
	pr := r.progressOf(to)
	commit := r.commitIndex
	if pr != nil && pr.Match < commit {
		commit = pr.Match
	}
	r.send(Message{Type: MsgAppendEntries, To: to, Term: r.term, PrevLogIndex: r.log.LastIndex(), LeaderCommit: commit})
}

func (r *Raft) sendInstallSnapshot(to ServerID) {
	snap, ok, err := r.io.SnapshotGet()
	if err != nil {
		r.onFault("snapshot_get", err)
		return
	}
	if !ok {
		r.logger.Warningf("%d no snapshot available to send to %d", r.id, to)
		return
	}
	if pr := r.progressOf(to); pr != nil {
		pr.becomeSnapshot()
		// Marks the send attempt, not an acknowledgment, so tickHeartbeat's
		// retry check waits a full InstallSnapshotTimeout before resending.
		pr.LastContactTime = r.io.Time()
	}
	r.send(Message{Type: MsgInstallSnapshot, To: to, Term: r.term, Snapshot: &snap})
}

func (r *Raft) forEachPeer(f func(id ServerID)) {
	for _, s := range r.configuration.Servers {
		if s.ID == r.id {
			continue
		}
		f(s.ID)
	}
}

func (r *Raft) bcastAppend() {
	r.forEachPeer(func(id ServerID) { r.sendAppend(id) })
}

func (r *Raft) bcastHeartbeat() {
	r.forEachPeer(func(id ServerID) { r.sendHeartbeat(id) })
}

// tickHeartbeat is the leader's tick handler: it sends heartbeats to
// followers that haven't been contacted recently, and steps down if it
// hasn't heard from a voting quorum within the election timeout -- a
// leader isolated by a partition must not keep acting as leader forever.
func (r *Raft) tickHeartbeat() {
	now := r.io.Time()
	r.forEachPeer(func(id ServerID) {
		pr := r.progressOf(id)
		if pr == nil {
			return
		}
		if pr.State == ProgressStateSnapshot {
			if uint64(now)-uint64(pr.LastContactTime) >= uint64(r.cfg.InstallSnapshotTimeout.Milliseconds()) {
				r.sendInstallSnapshot(id)
			}
			return
		}
		if uint64(now)-uint64(pr.LastContactTime) >= uint64(r.cfg.HeartbeatTimeout.Milliseconds()) {
			r.sendHeartbeat(id)
		}
	})
	if !r.quorumContactedWithin(r.cfg.ElectionTimeout.Milliseconds()) {
		r.logger.Warningf("%d stepping down: lost contact with a voting quorum", r.id)
		r.becomeFollower(r.term, None)
		return
	}
	r.checkPromotion(now)
}

func (r *Raft) quorumContactedWithin(ms int64) bool {
	now := r.io.Time()
	contacted := 0
	for _, s := range r.configuration.VotingServers() {
		if s.ID == r.id {
			contacted++
			continue
		}
		pr := r.progressOf(s.ID)
		if pr != nil && uint64(now)-uint64(pr.LastContactTime) < uint64(ms) {
			contacted++
		}
	}
	return contacted >= r.configuration.Quorum()
}

// handleAppendEntries implements the receiver side of log replication: it
// rejects stale terms, steps down to follower on a current or newer term,
// checks the log for a matching prevLog entry, and appends/truncates as
// needed before acknowledging.
func (r *Raft) handleAppendEntries(from ServerID, msg Message) error {
	if msg.Term < r.term {
		r.send(Message{Type: MsgAppendEntriesResult, To: from, Term: r.term, Success: false})
		return nil
	}

	if r.state != StateFollower {
		r.becomeFollower(msg.Term, from)
	} else {
		r.follower.currentLeaderID = from
		r.electionResetTimer()
	}

	if msg.PrevLogIndex > 0 {
		term, err := r.termAt(msg.PrevLogIndex)
		if err != nil || term != msg.PrevLogTerm {
			// PrevLogIndex is echoed back so the leader can tell whether this
			// rejection is still fresh relative to its current Next.
			r.send(Message{Type: MsgAppendEntriesResult, To: from, Term: r.term, Success: false, PrevLogIndex: msg.PrevLogIndex, LastLogIndex: r.log.LastIndex()})
			return nil
		}
	}

	index := msg.PrevLogIndex
	var newEntries []Entry
	for _, e := range msg.Entries {
		index++
		if existing, err := r.log.Get(index); err == nil {
			if existing.Term == e.Term {
				continue
			}
			if err := r.truncateFrom(index); err != nil {
				r.onFault("truncate", err)
				return nil
			}
		}
		e.Index = index
		newEntries = append(newEntries, e)
	}

	lastNew := msg.PrevLogIndex + uint64(len(msg.Entries))
	reply := func() {
		if msg.LeaderCommit > r.commitIndex {
			newCommit := msg.LeaderCommit
			if lastNew < newCommit {
				newCommit = lastNew
			}
			if newCommit > r.commitIndex {
				r.commitIndex = newCommit
				r.applyCommitted()
			}
		}
		r.send(Message{Type: MsgAppendEntriesResult, To: from, Term: r.term, Success: true, LastLogIndex: r.log.LastIndex()})
	}

	if len(newEntries) == 0 {
		reply()
		return nil
	}

	if err := r.log.Append(newEntries); err != nil {
		r.onFault("append", err)
		return nil
	}
	for _, e := range newEntries {
		if e.Type == EntryConfiguration {
			r.onConfigurationAppended(e)
		}
	}
	token := r.tokens.Acquire()
	r.io.Append(newEntries, token, func(tok Token, err error) {
		r.tokens.Release(tok)
		if err != nil {
			r.onFault("append", err)
			return
		}
		reply()
	})
	return nil
}

// truncateFrom discards the log's uncommitted suffix at or above index and
// rolls back any uncommitted configuration change that index evicts.
func (r *Raft) truncateFrom(index uint64) error {
	if index <= r.commitIndex {
		r.logger.Panicf("%d refusing to truncate committed entry at %d (commit=%d)", r.id, index, r.commitIndex)
	}
	if err := r.log.TruncateFrom(index); err != nil {
		return err
	}
	if err := r.io.Truncate(index); err != nil {
		return err
	}
	r.onConfigurationTruncated(index)
	return nil
}

func (r *Raft) stepFollower(from ServerID, msg Message) error {
	// AppendEntries and InstallSnapshot are handled centrally in Step;
	// every other message type reaching a follower is stale or irrelevant.
	return nil
}

func (r *Raft) stepLeader(from ServerID, msg Message) error {
	switch msg.Type {
	case MsgAppendEntriesResult:
		r.handleAppendEntriesResult(from, msg)
	case MsgInstallSnapshotResult:
		r.handleInstallSnapshotResult(from, msg)
	}
	return nil
}

// handleAppendEntriesResult applies a follower's AppendEntries reply:
// backs off Next on rejection, or advances Match and re-evaluates commit
// on success.
func (r *Raft) handleAppendEntriesResult(from ServerID, msg Message) {
	pr := r.progressOf(from)
	if pr == nil {
		return
	}
	pr.LastContactTime = r.io.Time()

	if !msg.Success {
		if pr.maybeDecrTo(msg.PrevLogIndex, msg.LastLogIndex) {
			pr.becomeProbe()
			r.sendAppend(from)
		}
		return
	}

	matchIndex := msg.LastLogIndex
	if pr.maybeUpdate(matchIndex) {
		if pr.State == ProgressStateProbe {
			pr.becomePipeline()
		} else if pr.State == ProgressStatePipeline {
			pr.inflights.FreeLE(matchIndex)
		}
		if r.maybeCommit() {
			r.completeCommitFutures()
			r.applyCommitted()
			r.bcastAppend()
		} else if pr.State == ProgressStatePipeline && !pr.pipelineFull() {
			r.sendAppend(from)
		}
	}
}

// maybeCommit advances commitIndex to the highest N such that a voting
// quorum has Match >= N and the entry at N was written at the current
// term. The term check is why becomeLeader appends a BARRIER entry: it
// prevents committing a prior term's entries by count alone.
func (r *Raft) maybeCommit() bool {
	voters := r.configuration.VotingServers()
	matches := make([]uint64, len(voters))
	for i, s := range voters {
		if pr := r.progressOf(s.ID); pr != nil {
			matches[i] = pr.Match
		}
	}
	n := quorumFloor(matches, r.configuration.Quorum())
	if n <= r.commitIndex {
		return false
	}
	term, err := r.termAt(n)
	if err != nil || term != r.term {
		return false
	}
	r.commitIndex = n
	return true
}

// quorumFloor returns the largest value v such that at least quorum of the
// given match indices are >= v.
func quorumFloor(matches []uint64, quorum int) uint64 {
	sorted := append([]uint64(nil), matches...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	if quorum <= 0 || quorum > len(sorted) {
		return 0
	}
	return sorted[len(sorted)-quorum]
}

func (r *Raft) handleInstallSnapshot(from ServerID, msg Message) error {
	if msg.Snapshot == nil {
		return nil
	}
	if r.state != StateFollower {
		r.becomeFollower(msg.Term, from)
	} else {
		r.follower.currentLeaderID = from
		r.electionResetTimer()
	}
	if msg.Snapshot.Metadata.LastIncludedIndex <= r.commitIndex {
		r.send(Message{Type: MsgInstallSnapshotResult, To: from, Term: r.term, Success: false, LastLogIndex: r.log.LastIndex()})
		return nil
	}
	if err := r.io.SnapshotPut(*msg.Snapshot); err != nil {
		r.onFault("snapshot_put", err)
		return nil
	}
	r.commitIndex = msg.Snapshot.Metadata.LastIncludedIndex
	r.lastApplied = msg.Snapshot.Metadata.LastIncludedIndex
	r.configuration = msg.Snapshot.Metadata.Configuration
	r.committedConfiguration = msg.Snapshot.Metadata.Configuration
	r.uncommittedConfigurationIndex = 0
	r.send(Message{Type: MsgInstallSnapshotResult, To: from, Term: r.term, Success: true, LastLogIndex: r.log.LastIndex()})
	return nil
}

func (r *Raft) handleInstallSnapshotResult(from ServerID, msg Message) {
	pr := r.progressOf(from)
	if pr == nil {
		return
	}
	pr.LastContactTime = r.io.Time()
	if !msg.Success {
		r.sendInstallSnapshot(from)
		return
	}
	pr.becomeProbe()
	pr.maybeUpdate(msg.LastLogIndex)
	if r.maybeCommit() {
		r.completeCommitFutures()
		r.applyCommitted()
	}
	r.sendAppend(from)
}
