package raft

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBarrierCompletesWithNilResult(t *testing.T) {
	cfg := Configuration{Servers: []Server{{ID: 1, Voting: true}}}
	r, _ := newTestRaft(t, 1, cfg)
	r.Elect()

	fut, err := r.Barrier()
	require.NoError(t, err)
	result, err := fut.Await()
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestStepDownFailsPendingFuturesWithLeadershipLost(t *testing.T) {
	cfg := Configuration{Servers: []Server{{ID: 1, Voting: true}}}
	r, _ := newTestRaft(t, 1, cfg)
	r.Elect() // single-voter cluster: becomes leader immediately

	f := newFuture(r.log.LastIndex()+1, completeOnApply)
	r.pendingFutures[f.index] = f

	r.becomeFollower(r.term+1, 2)

	_, err := (&Future{f: f}).Await()
	require.Error(t, err)
	var lost *LeadershipLostError
	require.ErrorAs(t, err, &lost)
}

func TestApplyFailsFastWhenFaulted(t *testing.T) {
	r, _ := newTestRaft(t, 1, threeServerConfig())
	r.onFault("test", errors.New("disk gone"))

	_, err := r.Apply([]byte("x"))
	require.Error(t, err)
}

func TestConfigurationEncodeDecodeRoundTrip(t *testing.T) {
	cfg := Configuration{Servers: []Server{
		{ID: 1, Address: "a1", Voting: true},
		{ID: 2, Address: "a2", Voting: false},
	}}
	payload := encodeConfiguration(cfg)
	got, err := decodeConfiguration(payload)
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}

func TestDecodeConfigurationRejectsGarbage(t *testing.T) {
	_, err := decodeConfiguration([]byte("not gob"))
	require.Error(t, err)
}
