package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func threeServerConfig() Configuration {
	return Configuration{Servers: []Server{
		{ID: 1, Address: "a1", Voting: true},
		{ID: 2, Address: "a2", Voting: true},
		{ID: 3, Address: "a3", Voting: true},
	}}
}

func TestConfigurationQuorum(t *testing.T) {
	require.Equal(t, 1, Configuration{Servers: []Server{{ID: 1, Voting: true}}}.Quorum())
	require.Equal(t, 2, threeServerConfig().Quorum())

	c := threeServerConfig()
	c.Servers = append(c.Servers, Server{ID: 4, Voting: true})
	require.Equal(t, 3, c.Quorum())
}

func TestConfigurationIndexOfVoting(t *testing.T) {
	c := Configuration{Servers: []Server{
		{ID: 1, Voting: false},
		{ID: 2, Voting: true},
		{ID: 3, Voting: true},
	}}
	idx, ok := c.IndexOfVoting(2)
	require.True(t, ok)
	require.Equal(t, 0, idx)

	idx, ok = c.IndexOfVoting(3)
	require.True(t, ok)
	require.Equal(t, 1, idx)

	_, ok = c.IndexOfVoting(1)
	require.False(t, ok)
}

func TestConfigurationValidate(t *testing.T) {
	require.NoError(t, threeServerConfig().Validate())

	require.Error(t, Configuration{}.Validate())

	dup := Configuration{Servers: []Server{{ID: 1, Voting: true}, {ID: 1, Voting: true}}}
	require.Error(t, dup.Validate())

	zero := Configuration{Servers: []Server{{ID: 0, Voting: true}}}
	require.Error(t, zero.Validate())

	noVoting := Configuration{Servers: []Server{{ID: 1, Voting: false}}}
	require.Error(t, noVoting.Validate())
}

func TestConfigurationDiff(t *testing.T) {
	prev := threeServerConfig()

	same := prev.Clone()
	require.Equal(t, diffNone, diff(prev, same))

	added := prev.Clone()
	added.Servers = append(added.Servers, Server{ID: 4, Voting: false})
	require.Equal(t, diffAddOrRemove, diff(prev, added))

	removed := Configuration{Servers: prev.Servers[:2]}
	require.Equal(t, diffAddOrRemove, diff(prev, removed))

	flipped := prev.Clone()
	flipped.Servers[0].Voting = false
	require.Equal(t, diffVotingFlip, diff(prev, flipped))

	invalid := prev.Clone()
	invalid.Servers[0].Voting = false
	invalid.Servers = append(invalid.Servers, Server{ID: 4, Voting: false})
	require.Equal(t, diffInvalid, diff(prev, invalid))
}
