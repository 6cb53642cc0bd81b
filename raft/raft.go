package raft

import "encoding/gob"

func init() {
	gob.Register(Configuration{})
}

// commonTimerState holds the randomized election timeout shared by
// followerState and candidateState, so Raft.timerState can reach it with a
// single accessor regardless of which of the two is currently active.
type commonTimerState struct {
	randomizedElectionTimeout int // milliseconds
}

type followerState struct {
	commonTimerState
	currentLeaderID ServerID
}

type candidateState struct {
	commonTimerState
	votes []bool // indexed by position in the voting subsequence
}

type leaderState struct {
	progress map[ServerID]*Progress

	// catchUp tracks automatic promotion rounds for non-voting servers,
	// keyed by server id so more than one can be caught up concurrently.
	catchUp map[ServerID]*catchUpRound
}

// catchUpRound measures a non-voting server's replication progress in
// fixed rounds, each bounded by one election timeout. roundIndex counts
// consecutive successful rounds; failedRounds counts consecutive rounds
// that fell behind. future completes when the server is promoted, or when
// catch-up is abandoned or the server leaves the configuration first.
type catchUpRound struct {
	roundIndex   int
	failedRounds int
	roundStart   Time
	future       *future
}

// PersistentState is the subset of per-server state that must survive a
// restart: current term, voted-for, and the latest committed configuration.
// The log itself is supplied separately via a LogStore that
// already contains any persisted entries. Raft.New expects the caller to
// have already loaded this from durable storage; the core never reads it
// itself (IO only exposes the write side: SetTerm/SetVote).
type PersistentState struct {
	Term                   uint64
	Vote                   ServerID
	CommittedConfiguration Configuration
}

// Raft is one server's Raft state machine: role, log, configuration and
// the election/replication/membership bookkeeping that goes with them. It
// is single-threaded cooperative: every method must be called from the
// same logical executor, and the instance touches its IO only through
// callbacks delivered on that same executor.
type Raft struct {
	id     ServerID
	cfg    *Config
	logger Logger
	io     IO
	fsm    FSM

	log  LogStore
	term uint64
	vote ServerID

	configuration                 Configuration
	committedConfiguration        Configuration
	uncommittedConfigurationIndex uint64

	commitIndex        uint64
	lastApplied        uint64
	electionTimerStart Time

	state     StateType
	follower  *followerState
	candidate *candidateState
	leader    *leaderState

	tick func()
	step func(from ServerID, msg Message) error

	tokens         *tokenPool
	pendingFutures map[uint64]*future

	fault  *IoFaultError
	closed bool
}

// New constructs a Raft instance in FOLLOWER state from already-restored
// persistent state. log must already contain any persisted entries;
// configuration is the in-memory configuration to start from. New then
// replays any CONFIGURATION entries in log on top of it itself (see
// rebuildConfiguration).
func New(id ServerID, configuration Configuration, log LogStore, io IO, fsm FSM, restored PersistentState, opts ...Option) (*Raft, error) {
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	cfg := defaultConfig(id)
	for _, o := range opts {
		o.apply(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	r := &Raft{
		id:                     cfg.ID,
		cfg:                    cfg,
		logger:                 cfg.Logger,
		io:                     io,
		fsm:                    fsm,
		log:                    log,
		term:                   restored.Term,
		vote:                   restored.Vote,
		configuration:          configuration,
		committedConfiguration: restored.CommittedConfiguration,
		tokens:                 newTokenPool(),
		pendingFutures:         make(map[uint64]*future),
	}
	r.rebuildConfiguration()
	r.io.Recv(r.onReceive)
	r.becomeFollower(r.term, None)
	r.logger.Infof("%d newRaft [voting: %v, term: %d, lastindex: %d]", r.id, r.isVoting(), r.term, r.log.LastIndex())
	return r, nil
}

// rebuildConfiguration replays every CONFIGURATION entry in the log, from
// FirstIndex on, in order: the last one found becomes the current
// configuration and its index is recorded as uncommittedConfigurationIndex,
// since commitIndex starts at 0 and no entry is yet known to be committed.
func (r *Raft) rebuildConfiguration() {
	for idx := r.log.FirstIndex(); idx <= r.log.LastIndex(); idx++ {
		ent, err := r.log.Get(idx)
		if err != nil || ent.Type != EntryConfiguration {
			continue
		}
		cfg, err := decodeConfiguration(ent.Payload)
		if err != nil {
			r.logger.Warningf("%d failed to decode configuration entry at %d: %v", r.id, idx, err)
			continue
		}
		r.configuration = cfg
		r.uncommittedConfigurationIndex = idx
	}
}

func (r *Raft) ID() ServerID                 { return r.id }
func (r *Raft) State() StateType             { return r.state }
func (r *Raft) Term() uint64                 { return r.term }
func (r *Raft) CommitIndex() uint64          { return r.commitIndex }
func (r *Raft) LastApplied() uint64          { return r.lastApplied }
func (r *Raft) Configuration() Configuration { return r.configuration.Clone() }

// LeaderID returns this server's best guess at the current leader, or None.
func (r *Raft) LeaderID() ServerID {
	switch r.state {
	case StateLeader:
		return r.id
	case StateFollower:
		return r.follower.currentLeaderID
	default:
		return None
	}
}

func (r *Raft) isVoting() bool {
	s, ok := r.configuration.Get(r.id)
	return ok && s.Voting
}

// timerState returns the randomized-election-timeout slot shared by
// follower and candidate substates.
func (r *Raft) timerState() *commonTimerState {
	switch r.state {
	case StateFollower:
		return &r.follower.commonTimerState
	case StateCandidate:
		return &r.candidate.commonTimerState
	default:
		r.logger.Panicf("%d timerState called while %s", r.id, r.state)
		return nil
	}
}

// Tick drives the per-server logical clock. It must be invoked by the IO
// layer at a fixed cadence.
func (r *Raft) Tick() {
	if r.faulted() || r.closed {
		return
	}
	r.tick()
}

func (r *Raft) faulted() bool { return r.fault != nil }

// onFault records a fatal persistence failure: it halts the role state
// machine (refusing further Tick/Step/propose work) and completes every
// outstanding future with the fault, but leaves the instance closable.
func (r *Raft) onFault(op string, err error) {
	if r.fault != nil {
		return
	}
	r.fault = newIoFault(op, err)
	r.logger.Errorf("%d fatal io fault: %v", r.id, r.fault)
	for idx, f := range r.pendingFutures {
		f.complete(nil, r.fault)
		delete(r.pendingFutures, idx)
	}
}

func (r *Raft) persistTerm(term uint64) bool {
	if err := r.io.SetTerm(term); err != nil {
		r.onFault("set_term", err)
		return false
	}
	return true
}

func (r *Raft) persistVote(id ServerID) bool {
	if err := r.io.SetVote(id); err != nil {
		r.onFault("set_vote", err)
		return false
	}
	return true
}

// resetRoleState is the common bookkeeping performed on every role transition: it
// does NOT change r.term (callers adjust it directly so they can decide
// whether to clear the vote).
func (r *Raft) resetRoleState() {
	r.follower = nil
	r.candidate = nil
	r.leader = nil
}

func (r *Raft) becomeFollower(term uint64, leaderID ServerID) {
	if term > r.term {
		r.vote = None
	}
	r.term = term
	if r.state == StateLeader {
		r.stepDownFutures()
	}
	r.resetRoleState()
	r.state = StateFollower
	r.follower = &followerState{currentLeaderID: leaderID}
	r.tick = r.tickElection
	r.step = r.stepFollower
	r.electionResetTimer()
	r.logger.Infof("%d became follower at term %d (leader %d)", r.id, r.term, leaderID)
}

func (r *Raft) becomeCandidate() {
	if r.state == StateLeader {
		r.logger.Panicf("%d invalid transition leader -> candidate", r.id)
	}
	if !r.isVoting() {
		r.logger.Panicf("%d non-voting server cannot become candidate", r.id)
	}
	votingN := r.configuration.NumVoting()
	r.resetRoleState()
	r.state = StateCandidate
	r.candidate = &candidateState{votes: make([]bool, votingN)}
	r.tick = r.tickElection
	r.step = r.stepCandidate
	r.logger.Infof("%d became candidate at term %d", r.id, r.term+1)
}

func (r *Raft) becomeLeader() {
	if r.state == StateFollower {
		r.logger.Panicf("%d invalid transition follower -> leader", r.id)
	}
	r.resetRoleState()
	r.state = StateLeader
	r.leader = &leaderState{progress: make(map[ServerID]*Progress), catchUp: make(map[ServerID]*catchUpRound)}
	r.tick = r.tickHeartbeat
	r.step = r.stepLeader
	r.syncProgress()
	r.logger.Infof("%d became leader at term %d", r.id, r.term)

	// Barrier entry: only entries written at the leader's own term can be
	// committed by count (see maybeCommit), so a freshly elected leader
	// appends one immediately to make its predecessors' entries committable.
	// Broadcasting is deferred to its durability callback.
	r.appendEntries(Entry{Type: EntryBarrier})
}

// syncProgress rebuilds r.leader.progress to match r.configuration, keyed
// by server id rather than by pointer into the configuration, so a
// membership change never invalidates an existing Progress.
func (r *Raft) syncProgress() {
	next := make(map[ServerID]*Progress, len(r.configuration.Servers))
	for _, s := range r.configuration.Servers {
		if pr, ok := r.leader.progress[s.ID]; ok {
			next[s.ID] = pr
			continue
		}
		pr := &Progress{
			Next:      r.log.LastIndex() + 1,
			State:     ProgressStateProbe,
			inflights: newInflights(r.cfg.MaxInflightPerPeer),
		}
		if s.ID == r.id {
			pr.Match = r.log.LastIndex()
		}
		next[s.ID] = pr
	}
	r.leader.progress = next
}

func (r *Raft) progressOf(id ServerID) *Progress {
	if r.leader == nil {
		return nil
	}
	return r.leader.progress[id]
}

// onReceive is installed once as the IO layer's RecvCallback.
func (r *Raft) onReceive(senderID ServerID, senderAddress string, msg Message) {
	if err := r.Step(senderID, msg); err != nil {
		r.logger.Debugf("%d step from %d failed: %v", r.id, senderID, err)
	}
}

// Step dispatches one inbound RPC message. Any RPC whose term exceeds
// r.term forces a term bump, vote clear and demotion to follower before any
// further evaluation -- except MsgRequestVote, whose known-leader
// suppression rule must run first, unconditionally, without bumping the
// term.
func (r *Raft) Step(from ServerID, msg Message) error {
	if r.faulted() || r.closed {
		return errShutdown
	}

	if msg.Type == MsgRequestVote {
		return r.handleRequestVote(from, msg)
	}

	if msg.Term > r.term {
		leader := None
		if msg.Type == MsgAppendEntries || msg.Type == MsgInstallSnapshot {
			leader = from
		}
		r.becomeFollower(msg.Term, leader)
	} else if msg.Term != 0 && msg.Term < r.term {
		r.logger.Debugf("%d ignoring %s from %d with stale term %d", r.id, msg.Type, from, msg.Term)
		return nil
	}

	switch msg.Type {
	case MsgAppendEntries:
		return r.handleAppendEntries(from, msg)
	case MsgInstallSnapshot:
		return r.handleInstallSnapshot(from, msg)
	default:
		return r.step(from, msg)
	}
}

// Close drains outstanding IO callbacks and then reports done via cb. Once
// Close has been called no new ticks are scheduled and every pending
// future is completed with CancelledError.
func (r *Raft) Close(cb CloseCallback) {
	if r.closed {
		if cb != nil {
			cb()
		}
		return
	}
	r.closed = true
	for idx, f := range r.pendingFutures {
		f.complete(nil, errCancelled)
		delete(r.pendingFutures, idx)
	}
	r.io.Close(cb)
}
