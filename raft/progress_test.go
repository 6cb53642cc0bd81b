package raft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProgressMaybeUpdate(t *testing.T) {
	pr := &Progress{Next: 1, Match: 0}

	require.True(t, pr.maybeUpdate(5))
	require.Equal(t, uint64(5), pr.Match)
	require.Equal(t, uint64(6), pr.Next)

	require.False(t, pr.maybeUpdate(3))
	require.Equal(t, uint64(5), pr.Match)
}

func TestProgressMaybeDecrToProbe(t *testing.T) {
	pr := &Progress{Next: 10, State: ProgressStateProbe}

	require.False(t, pr.maybeDecrTo(5, 0))
	require.Equal(t, uint64(10), pr.Next)

	require.True(t, pr.maybeDecrTo(9, 4))
	require.Equal(t, uint64(5), pr.Next)
}

func TestProgressMaybeDecrToPipelineStale(t *testing.T) {
	pr := &Progress{Next: 10, Match: 8, State: ProgressStatePipeline}

	require.False(t, pr.maybeDecrTo(8, 0))
	require.True(t, pr.maybeDecrTo(9, 0))
	require.Equal(t, uint64(9), pr.Next)
}

func TestInflights(t *testing.T) {
	in := newInflights(2)
	require.False(t, in.Full())

	in.Add(1)
	in.Add(2)
	require.True(t, in.Full())

	in.FreeLE(1)
	require.False(t, in.Full())

	in.Add(3)
	require.True(t, in.Full())

	in.Reset()
	require.False(t, in.Full())
}

func TestPipelineFull(t *testing.T) {
	pr := &Progress{State: ProgressStatePipeline, inflights: newInflights(1)}
	require.False(t, pr.pipelineFull())
	pr.inflights.Add(1)
	require.True(t, pr.pipelineFull())
}
