package raft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddServerStartsNonVoting(t *testing.T) {
	cfg := Configuration{Servers: []Server{{ID: 1, Voting: true}}}
	r, _ := newTestRaft(t, 1, cfg)
	r.Elect()

	_, err := r.AddServer(2, "addr-2")
	require.NoError(t, err)

	s, ok := r.configuration.Get(2)
	require.True(t, ok)
	require.False(t, s.Voting)
	// A single-voter cluster with synchronous durability commits the
	// CONFIGURATION entry inline; catch-up tracking started when the entry
	// was appended.
	require.Zero(t, r.uncommittedConfigurationIndex)
	_, tracked := r.CatchUpFuture(2)
	require.True(t, tracked)
}

func TestCatchUpPromotesAfterEnoughRounds(t *testing.T) {
	cfg := Configuration{Servers: []Server{{ID: 1, Voting: true}}}
	r, io := newTestRaft(t, 1, cfg, WithCatchUpRounds(2), WithElectionTimeout(1000*time.Millisecond), WithHeartbeatTimeout(100*time.Millisecond))
	r.Elect()

	_, err := r.AddServer(2, "addr-2")
	require.NoError(t, err)
	fut, tracked := r.CatchUpFuture(2)
	require.True(t, tracked)

	pr := r.progressOf(2)
	require.NotNil(t, pr)
	pr.Match = r.log.LastIndex() // fully caught up

	for i := 0; i < 2; i++ {
		io.now += Time(1000)
		r.checkPromotion(io.now)
	}

	s, ok := r.configuration.Get(2)
	require.True(t, ok)
	require.True(t, s.Voting)
	_, err = fut.Await()
	require.NoError(t, err)
}

func TestCatchUpAbandonedAfterRepeatedFailure(t *testing.T) {
	cfg := Configuration{Servers: []Server{{ID: 1, Voting: true}}}
	r, io := newTestRaft(t, 1, cfg, WithCatchUpMaxFailures(2), WithCatchUpThreshold(0))
	r.Elect()

	_, err := r.AddServer(2, "addr-2")
	require.NoError(t, err)
	fut, tracked := r.CatchUpFuture(2)
	require.True(t, tracked)

	pr := r.progressOf(2)
	require.NotNil(t, pr)
	pr.Match = 0 // never advances

	for i := 0; i < 2; i++ {
		io.now += Time(1000)
		r.checkPromotion(io.now)
	}

	_, err = fut.Await()
	require.Error(t, err)
	var abandoned *PromotionAbandonedError
	require.ErrorAs(t, err, &abandoned)
	_, stillTracked := r.CatchUpFuture(2)
	require.False(t, stillTracked)
}

func TestCatchUpTracksMultipleServersIndependently(t *testing.T) {
	cfg := Configuration{Servers: []Server{{ID: 1, Voting: true}}}
	r, _ := newTestRaft(t, 1, cfg, WithCatchUpRounds(1))
	r.Elect()

	_, err := r.AddServer(2, "addr-2")
	require.NoError(t, err)
	_, err = r.AddServer(3, "addr-3")
	require.NoError(t, err)

	_, ok2 := r.CatchUpFuture(2)
	_, ok3 := r.CatchUpFuture(3)
	require.True(t, ok2)
	require.True(t, ok3)
}

func TestConfigurationChangeRejectedWhileBusy(t *testing.T) {
	cfg := Configuration{Servers: []Server{{ID: 1, Voting: true}}}
	r, _ := newTestRaft(t, 1, cfg)
	r.Elect()

	// fakeIO.Append is synchronous, so by default a single AddServer call
	// would already be committed. Force busy-ness by setting the
	// uncommitted-configuration marker again to simulate a slow multi-node
	// quorum.
	_, err := r.AddServer(2, "addr-2")
	require.NoError(t, err)
	r.uncommittedConfigurationIndex = r.log.LastIndex() // pretend it's still pending

	_, err = r.AddServer(3, "addr-3")
	require.Error(t, err)
	var busy *ConfigurationBusyError
	require.ErrorAs(t, err, &busy)
}

func TestConfigurationChangeRejectsFlipAndRemovalTogether(t *testing.T) {
	r, _ := newTestRaft(t, 1, threeServerConfig())
	r.Elect()
	// fakeIO delivers nothing, so grant server 2's vote by hand to win.
	require.NoError(t, r.Step(2, Message{Type: MsgRequestVoteResult, Term: r.term, VoteGranted: true}))

	next := r.configuration.Clone()
	next.Servers[0].Voting = false
	next.Servers = next.Servers[:2] // both a voting flip and a removal at once
	_, err := r.proposeConfigurationChange(next)
	require.Error(t, err)
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)
}

func TestPromoteServerRequiresKnownID(t *testing.T) {
	r, _ := newTestRaft(t, 1, threeServerConfig())
	r.Elect()

	_, err := r.PromoteServer(99)
	require.Error(t, err)
}
