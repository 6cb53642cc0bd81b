package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestElectionTallyQuorumMath(t *testing.T) {
	r, _ := newTestRaft(t, 1, threeServerConfig())
	r.becomeCandidate()

	require.False(t, r.electionTally(0)) // 1/3, no quorum yet
	require.True(t, r.electionTally(1))  // 2/3, quorum
}

func TestElectionVoteGrantsToUpToDateCandidate(t *testing.T) {
	r, _ := newTestRaft(t, 1, threeServerConfig())

	granted := r.electionVote(2, Message{LastLogIndex: 0, LastLogTerm: 0})
	require.True(t, granted)
	require.Equal(t, ServerID(2), r.vote)
}

func TestElectionVoteRejectsSecondCandidate(t *testing.T) {
	r, _ := newTestRaft(t, 1, threeServerConfig())

	require.True(t, r.electionVote(2, Message{}))
	require.False(t, r.electionVote(3, Message{}))
}

func TestElectionVoteRejectsStaleLog(t *testing.T) {
	r, io := newTestRaft(t, 1, threeServerConfig())
	_ = io
	require.NoError(t, r.log.Append([]Entry{{Term: 5, Type: EntryCommand}}))

	granted := r.electionVote(2, Message{LastLogIndex: 1, LastLogTerm: 1})
	require.False(t, granted)
}

func TestHandleRequestVoteSuppressedByKnownLeader(t *testing.T) {
	r, io := newTestRaft(t, 1, threeServerConfig())
	r.becomeFollower(1, 2) // leader already known at term 1

	err := r.handleRequestVote(3, Message{Term: 5})
	require.NoError(t, err)

	reply, ok := io.lastSent()
	require.True(t, ok)
	require.Equal(t, MsgRequestVoteResult, reply.Type)
	require.False(t, reply.VoteGranted)
	// The rejection must not have adopted the higher term.
	require.Equal(t, uint64(1), r.term)
}

func TestHandleRequestVoteGrantsAtHigherTerm(t *testing.T) {
	r, io := newTestRaft(t, 1, threeServerConfig())

	err := r.handleRequestVote(2, Message{Term: 7})
	require.NoError(t, err)
	require.Equal(t, uint64(7), r.term)

	reply, ok := io.lastSent()
	require.True(t, ok)
	require.True(t, reply.VoteGranted)
}

func TestSingleVotingServerElectsImmediately(t *testing.T) {
	cfg := Configuration{Servers: []Server{{ID: 1, Voting: true}}}
	r, _ := newTestRaft(t, 1, cfg)

	r.Elect()
	require.Equal(t, StateLeader, r.state)
}
