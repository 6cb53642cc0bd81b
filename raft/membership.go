package raft

// proposeConfigurationChange validates next against the single-change
// invariant, appends it as a CONFIGURATION entry at the leader's current
// term, and returns a future that completes on commit. Only one
// configuration change may be outstanding at a time.
func (r *Raft) proposeConfigurationChange(next Configuration) (*Future, error) {
	if r.faulted() {
		return nil, r.fault
	}
	if r.closed {
		return nil, errShutdown
	}
	if r.state != StateLeader {
		return nil, &NotLeaderError{ServerID: r.id, LeaderID: r.LeaderID()}
	}
	if r.uncommittedConfigurationIndex != 0 {
		return nil, &ConfigurationBusyError{UncommittedIndex: r.uncommittedConfigurationIndex}
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if kind := diff(r.configuration, next); kind == diffInvalid {
		return nil, &InvalidArgumentError{Msg: "configuration change must add, remove or flip exactly one server"}
	}

	index := r.log.LastIndex() + 1
	f := newFuture(index, completeOnCommit)
	r.pendingFutures[index] = f
	r.appendEntries(Entry{Type: EntryConfiguration, Payload: encodeConfiguration(next)})
	return &Future{f: f}, nil
}

// AddServer adds a new, initially non-voting server at the given address.
// It is promoted to voting automatically once it has caught up; see
// CatchUpFuture to observe that outcome, or PromoteServer for an explicit,
// immediate alternative.
func (r *Raft) AddServer(id ServerID, address string) (*Future, error) {
	next := r.configuration.Clone()
	next.Servers = append(next.Servers, Server{ID: id, Address: address, Voting: false})
	return r.proposeConfigurationChange(next)
}

// RemoveServer removes a server from the configuration entirely.
func (r *Raft) RemoveServer(id ServerID) (*Future, error) {
	next := Configuration{}
	for _, s := range r.configuration.Servers {
		if s.ID != id {
			next.Servers = append(next.Servers, s)
		}
	}
	return r.proposeConfigurationChange(next)
}

// PromoteServer flips an existing non-voting server to voting immediately,
// without waiting for automatic catch-up promotion.
func (r *Raft) PromoteServer(id ServerID) (*Future, error) {
	next := r.configuration.Clone()
	found := false
	for i := range next.Servers {
		if next.Servers[i].ID == id {
			next.Servers[i].Voting = true
			found = true
		}
	}
	if !found {
		return nil, &InvalidArgumentError{Msg: "unknown server id"}
	}
	return r.proposeConfigurationChange(next)
}

// CatchUpFuture returns the future tracking automatic promotion of the
// given non-voting server, if one is currently being caught up. The future
// completes with success once the server is promoted, or with
// PromotionAbandonedError if it falls too far behind for too long, or with
// CancelledError if it leaves the configuration first.
func (r *Raft) CatchUpFuture(id ServerID) (*Future, bool) {
	if r.leader == nil {
		return nil, false
	}
	cu, ok := r.leader.catchUp[id]
	if !ok {
		return nil, false
	}
	return &Future{f: cu.future}, true
}

// onConfigurationAppended applies a CONFIGURATION entry's effect as soon as
// it is appended to the log, not when it commits: membership changes take
// effect optimistically, and are rolled back by onConfigurationTruncated if
// the entry never survives. It also starts catch-up round tracking for a
// newly added non-voting leader-local peer.
func (r *Raft) onConfigurationAppended(ent Entry) {
	cfg, err := decodeConfiguration(ent.Payload)
	if err != nil {
		r.logger.Warningf("%d failed to decode configuration entry at %d: %v", r.id, ent.Index, err)
		return
	}
	prev := r.configuration
	r.configuration = cfg
	r.uncommittedConfigurationIndex = ent.Index

	if r.state == StateLeader {
		r.syncProgress()
		for _, s := range cfg.Servers {
			if _, existed := prev.Get(s.ID); !existed {
				r.startCatchUp(s.ID)
			}
		}
		for id, cu := range r.leader.catchUp {
			if _, ok := cfg.Get(id); !ok {
				cu.future.complete(nil, errCancelled)
				delete(r.leader.catchUp, id)
			}
		}
	}
}

// onConfigurationCommitted clears the uncommitted marker once the entry at
// index has committed, and records the now-durable configuration as the
// new committed baseline used for rollback.
func (r *Raft) onConfigurationCommitted(index uint64) {
	if r.uncommittedConfigurationIndex != 0 && index >= r.uncommittedConfigurationIndex {
		r.uncommittedConfigurationIndex = 0
		r.committedConfiguration = r.configuration.Clone()
	}
	if r.state == StateLeader {
		if _, ok := r.configuration.Get(r.id); !ok {
			r.logger.Infof("%d stepping down: removed from configuration", r.id)
			r.becomeFollower(r.term, None)
		}
	}
}

// onConfigurationTruncated restores the last committed configuration when a
// log truncation evicts an uncommitted CONFIGURATION entry: the in-memory
// configuration must never outrun the log.
func (r *Raft) onConfigurationTruncated(fromIndex uint64) {
	if r.uncommittedConfigurationIndex != 0 && fromIndex <= r.uncommittedConfigurationIndex {
		r.configuration = r.committedConfiguration.Clone()
		r.uncommittedConfigurationIndex = 0
	}
}

// startCatchUp begins round tracking for a non-voting server just added to
// the configuration. Each round measures whether the server's Match index
// advanced to within CatchUpThreshold of the leader's last index inside one
// election timeout; CatchUpRounds consecutive successful rounds triggers
// automatic promotion, and CatchUpMaxFailures consecutive failed rounds
// abandons it.
func (r *Raft) startCatchUp(id ServerID) {
	r.leader.catchUp[id] = &catchUpRound{
		roundStart: r.io.Time(),
		future:     newFuture(0, completeOnCommit),
	}
}

// checkPromotion is polled from tickHeartbeat. It advances or resets the
// catch-up round for every non-voting server being tracked, promotes any
// that completed CatchUpRounds consecutive successful rounds, and abandons
// any that accumulated CatchUpMaxFailures consecutive failed rounds.
func (r *Raft) checkPromotion(now Time) {
	if r.state != StateLeader || r.uncommittedConfigurationIndex != 0 {
		return
	}
	electionMS := uint64(r.cfg.ElectionTimeout.Milliseconds())
	last := r.log.LastIndex()

	for id, cu := range r.leader.catchUp {
		if uint64(now)-uint64(cu.roundStart) < electionMS {
			continue
		}
		pr := r.progressOf(id)
		if pr == nil {
			delete(r.leader.catchUp, id)
			continue
		}
		behind := last - pr.Match
		if behind <= r.cfg.CatchUpThreshold {
			cu.roundIndex++
			cu.failedRounds = 0
		} else {
			cu.roundIndex = 0
			cu.failedRounds++
		}
		cu.roundStart = now

		switch {
		case cu.roundIndex >= r.cfg.CatchUpRounds:
			if _, err := r.PromoteServer(id); err != nil {
				r.logger.Warningf("%d automatic promotion of %d failed: %v", r.id, id, err)
				continue
			}
			cu.future.complete(nil, nil)
			delete(r.leader.catchUp, id)
		case cu.failedRounds >= r.cfg.CatchUpMaxFailures:
			r.logger.Warningf("%d abandoning promotion of %d after %d failed rounds", r.id, id, cu.failedRounds)
			cu.future.complete(nil, &PromotionAbandonedError{ServerID: id, FailedRounds: cu.failedRounds})
			delete(r.leader.catchUp, id)
		}
	}
}
