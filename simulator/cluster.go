package simulator

import (
	"fmt"

	raft "github.com/ccl0326/raft/raft"
)

// DefaultTickInterval is the virtual-time gap between successive Tick
// events the harness schedules for every server.
const DefaultTickInterval raft.Time = 100

// DefaultDiskLatency is the virtual delay the harness uses for Append
// durability callbacks. It is deliberately small relative to the tick
// cadence so it never itself becomes the dominant source of election
// delay in deterministic scenarios.
const DefaultDiskLatency raft.Time = 1

type serverHandle struct {
	id      raft.ServerID
	address string
	raft    *raft.Raft
	io      *simIO
	fsm     *CounterFSM
	log     raft.LogStore
}

// Cluster is a deterministic, single-threaded N-server harness: virtual
// time advances only by explicit Step calls (Step, StepN, StepUntil and the
// helpers built on them), so the same sequence of
// calls always produces the same outcome.
type Cluster struct {
	servers      []*serverHandle
	now          raft.Time
	events       *eventQueue
	tickInterval raft.Time
	diskLatency  raft.Time
	latency      LatencyFunc
	rng          func(lo, hi int) int
}

// Option configures a Cluster at construction time.
type Option func(*Cluster)

// WithTickInterval overrides the default 100ms tick cadence.
func WithTickInterval(d raft.Time) Option {
	return func(c *Cluster) { c.tickInterval = d }
}

// WithLatency overrides the default zero-latency network model.
func WithLatency(f LatencyFunc) Option {
	return func(c *Cluster) { c.latency = f }
}

// WithDiskLatency overrides the default Append durability delay.
func WithDiskLatency(d raft.Time) Option {
	return func(c *Cluster) { c.diskLatency = d }
}

// WithRandom overrides the default zero-jitter randomized election timeout
// source. The zero-jitter default is what makes test scenarios land on
// exact, reproducible virtual-time values.
func WithRandom(f func(lo, hi int) int) Option {
	return func(c *Cluster) { c.rng = f }
}

// NewCluster builds an n-server cluster, all voting, bootstrapped from a
// shared configuration, with raft.Raft instances constructed directly on
// top of raft.NewMemoryLog and this package's simIO.
func NewCluster(n int, raftOpts []raft.Option, opts ...Option) *Cluster {
	c := &Cluster{
		events:       &eventQueue{},
		tickInterval: DefaultTickInterval,
		diskLatency:  DefaultDiskLatency,
		latency:      UniformLatency(0),
		rng:          func(lo, hi int) int { return lo },
	}
	for _, o := range opts {
		o(c)
	}

	configuration := raft.Configuration{}
	for i := 0; i < n; i++ {
		configuration.Servers = append(configuration.Servers, raft.Server{
			ID:      raft.ServerID(i + 1),
			Address: fmt.Sprintf("server-%d", i+1),
			Voting:  true,
		})
	}

	for i := 0; i < n; i++ {
		id := raft.ServerID(i + 1)
		log := raft.NewMemoryLog()
		io := &simIO{cluster: c, index: i}
		fsm := &CounterFSM{}
		memberOpts := append([]raft.Option{raft.WithLogger(raft.DiscardLogger{})}, raftOpts...)
		rf, err := raft.New(id, configuration, log, io, fsm, raft.PersistentState{}, memberOpts...)
		if err != nil {
			panic("simulator: failed to construct cluster member: " + err.Error())
		}
		c.servers = append(c.servers, &serverHandle{id: id, address: configuration.Servers[i].Address, raft: rf, io: io, fsm: fsm, log: log})
	}

	for i := range c.servers {
		c.scheduleNextTick(i)
	}
	return c
}

func (c *Cluster) scheduleNextTick(i int) {
	at := c.now + c.tickInterval
	c.events.schedule(at, i, EventTick, func() {
		c.servers[i].raft.Tick()
		c.scheduleNextTick(i)
	})
}

func (c *Cluster) indexOf(id raft.ServerID) int {
	for i, s := range c.servers {
		if s.id == id {
			return i
		}
	}
	return -1
}

// Time returns the harness's current virtual time.
func (c *Cluster) Time() raft.Time { return c.now }

// Servers returns the underlying raft.Raft instances, in index order.
func (c *Cluster) Servers() []*raft.Raft {
	out := make([]*raft.Raft, len(c.servers))
	for i, s := range c.servers {
		out[i] = s.raft
	}
	return out
}

// States returns every server's current role, in index order.
func (c *Cluster) States() []raft.StateType {
	out := make([]raft.StateType, len(c.servers))
	for i, s := range c.servers {
		out[i] = s.raft.State()
	}
	return out
}

// FSMs returns the underlying application state machines, in index order.
func (c *Cluster) FSMs() []*CounterFSM {
	out := make([]*CounterFSM, len(c.servers))
	for i, s := range c.servers {
		out[i] = s.fsm
	}
	return out
}

// Step delivers exactly the single earliest-pending event in the cluster,
// advancing the virtual clock to its time, and reports which server and
// kind of event it was. It panics if no event is pending, since that
// means every server has been closed.
func (c *Cluster) Step() (int, EventKind) {
	e := c.events.pop()
	if e == nil {
		panic("simulator: step called with no pending events")
	}
	c.now = e.at
	e.fire()
	return e.server, e.kind
}

// StepN calls Step n times.
func (c *Cluster) StepN(n int) {
	for i := 0; i < n; i++ {
		c.Step()
	}
}

// StepUntil steps until predicate returns true or the virtual clock
// reaches deadline, whichever comes first. It returns whether predicate
// was satisfied.
func (c *Cluster) StepUntil(predicate func(*Cluster) bool, deadline raft.Time) bool {
	for !predicate(c) {
		if c.events.empty() || c.peekNext() > deadline {
			return predicate(c)
		}
		c.Step()
	}
	return true
}

func (c *Cluster) peekNext() raft.Time {
	best := raft.Time(0)
	found := false
	for _, e := range c.events.events {
		if !found || e.at < best {
			best = e.at
			found = true
		}
	}
	if !found {
		return c.now
	}
	return best
}

// StepUntilApplied steps until every server has applied at least index, or
// deadline is reached. It returns whether every server caught up.
func (c *Cluster) StepUntilApplied(index uint64, deadline raft.Time) bool {
	return c.StepUntil(func(c *Cluster) bool {
		for _, s := range c.servers {
			if s.raft.LastApplied() < index {
				return false
			}
		}
		return true
	}, deadline)
}

// Elect forces server i to start an election immediately, then steps the
// cluster until i is leader AND its ascension barrier entry has committed
// -- so the replicated effects of the election (not just the role flip)
// have actually happened before Elect returns.
func (c *Cluster) Elect(i int) bool {
	commitBefore := c.servers[i].raft.CommitIndex()
	c.servers[i].raft.Elect()
	deadline := c.now + 10*c.tickInterval + 10*c.diskLatency
	return c.StepUntil(func(c *Cluster) bool {
		r := c.servers[i].raft
		return r.State() == raft.StateLeader && r.CommitIndex() > commitBefore
	}, deadline)
}

// Depose forces the current leader, if any, to step down immediately.
func (c *Cluster) Depose() {
	for _, s := range c.servers {
		if s.raft.State() == raft.StateLeader {
			s.raft.Depose()
			return
		}
	}
}

// Apply submits a command to server i, which must currently be leader.
func (c *Cluster) Apply(i int, payload []byte) (*raft.Future, error) {
	return c.servers[i].raft.Apply(payload)
}
