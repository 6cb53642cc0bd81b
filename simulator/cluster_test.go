package simulator

import (
	"testing"

	"github.com/stretchr/testify/require"

	raft "github.com/ccl0326/raft/raft"
)

// These reproduce spec §8's six concrete scenarios literally: three
// servers bootstrapped from a shared configuration, default tick cadence
// 100ms, default election timeout 1000ms.

func TestTickCadence(t *testing.T) {
	c := NewCluster(3, nil)

	srv, kind := c.Step()
	require.Equal(t, 0, srv)
	require.Equal(t, EventTick, kind)
	require.Equal(t, raft.Time(100), c.Time())

	srv, kind = c.Step()
	require.Equal(t, 1, srv)
	require.Equal(t, EventTick, kind)
	require.Equal(t, raft.Time(100), c.Time())

	srv, kind = c.Step()
	require.Equal(t, 2, srv)
	require.Equal(t, EventTick, kind)
	require.Equal(t, raft.Time(100), c.Time())

	srv, kind = c.Step()
	require.Equal(t, 0, srv)
	require.Equal(t, EventTick, kind)
	require.Equal(t, raft.Time(200), c.Time())
}

func TestDefaultElection(t *testing.T) {
	c := NewCluster(3, nil)

	var lastServer int
	var lastKind EventKind
	for i := 0; i < 28; i++ {
		lastServer, lastKind = c.Step()
	}

	require.Equal(t, 0, lastServer)
	require.Equal(t, EventTick, lastKind)
	require.Equal(t, raft.Time(1000), c.Time())
	require.Equal(t, []raft.StateType{raft.StateCandidate, raft.StateFollower, raft.StateFollower}, c.States())
}

func TestForcedElectionOfServerZero(t *testing.T) {
	c := NewCluster(3, nil)

	ok := c.Elect(0)
	require.True(t, ok)
	require.Equal(t, []raft.StateType{raft.StateLeader, raft.StateFollower, raft.StateFollower}, c.States())

	leaderLog := c.servers[0].log
	require.Equal(t, uint64(1), leaderLog.LastIndex())
	ent, err := leaderLog.Get(1)
	require.NoError(t, err)
	require.Equal(t, raft.EntryBarrier, ent.Type)
	require.Equal(t, c.servers[0].raft.Term(), ent.Term)
}

func TestLeadershipChange(t *testing.T) {
	c := NewCluster(3, nil)

	require.True(t, c.Elect(0))
	c.Depose()
	require.True(t, c.Elect(1))

	require.Equal(t, []raft.StateType{raft.StateFollower, raft.StateLeader, raft.StateFollower}, c.States())

	var barrierTerms []uint64
	log := c.servers[1].log
	for idx := uint64(1); idx <= log.LastIndex(); idx++ {
		ent, err := log.Get(idx)
		require.NoError(t, err)
		if ent.Type == raft.EntryBarrier {
			barrierTerms = append(barrierTerms, ent.Term)
		}
	}
	require.Len(t, barrierTerms, 2)
	require.NotEqual(t, barrierTerms[0], barrierTerms[1])
}

func TestApplyOneEntry(t *testing.T) {
	c := NewCluster(3, nil)
	require.True(t, c.Elect(0))

	_, err := c.Apply(0, EncodeAddX(1))
	require.NoError(t, err)

	require.True(t, c.StepUntilApplied(2, c.Time()+10*c.tickInterval))
	for _, fsm := range c.FSMs() {
		require.Equal(t, int64(1), fsm.X)
	}
}

func TestApplyTwoEntries(t *testing.T) {
	c := NewCluster(3, nil)
	require.True(t, c.Elect(0))

	_, err := c.Apply(0, EncodeAddX(1))
	require.NoError(t, err)
	_, err = c.Apply(0, EncodeAddX(1))
	require.NoError(t, err)

	require.True(t, c.StepUntilApplied(3, c.Time()+10*c.tickInterval))
	for _, fsm := range c.FSMs() {
		require.Equal(t, int64(2), fsm.X)
	}
	for _, s := range c.servers {
		require.Equal(t, uint64(3), s.raft.LastApplied())
	}
}
