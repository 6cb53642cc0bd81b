package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryLogAppendAndGet(t *testing.T) {
	log := NewMemoryLog()
	require.Equal(t, uint64(0), log.LastIndex())
	require.Equal(t, uint64(0), log.LastTerm())
	require.Equal(t, uint64(1), log.FirstIndex())

	require.NoError(t, log.Append([]Entry{{Term: 1, Type: EntryCommand}, {Term: 1, Type: EntryCommand}}))
	require.Equal(t, uint64(2), log.LastIndex())
	require.Equal(t, uint64(1), log.LastTerm())

	ent, err := log.Get(1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), ent.Index)

	_, err = log.Get(3)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryLogTruncateFrom(t *testing.T) {
	log := NewMemoryLog()
	require.NoError(t, log.Append([]Entry{{Term: 1}, {Term: 1}, {Term: 2}}))

	require.NoError(t, log.TruncateFrom(2))
	require.Equal(t, uint64(1), log.LastIndex())
	require.Equal(t, uint64(1), log.LastTerm())

	require.NoError(t, log.Append([]Entry{{Term: 3}}))
	ent, err := log.Get(2)
	require.NoError(t, err)
	require.Equal(t, uint64(3), ent.Term)
}
