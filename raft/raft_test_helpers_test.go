package raft

import "testing"

// newTestRaft builds a Raft instance wired to a fresh fakeIO, suitable for
// unit tests that drive Step/Tick directly without a full simulator.Cluster.
func newTestRaft(t *testing.T, id ServerID, configuration Configuration, opts ...Option) (*Raft, *fakeIO) {
	t.Helper()
	io := newFakeIO()
	fsm := &noopFSM{}
	allOpts := append([]Option{WithLogger(DiscardLogger{})}, opts...)
	r, err := New(id, configuration, NewMemoryLog(), io, fsm, PersistentState{}, allOpts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, io
}

type noopFSM struct{}

func (noopFSM) Apply(payload []byte) (interface{}, error) { return nil, nil }
