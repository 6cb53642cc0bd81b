package simulator

import raft "github.com/ccl0326/raft/raft"

// LatencyFunc computes one-way network delay from server index `from` to
// server index `to`. Indices are positions in Cluster.servers, not
// raft.ServerID values.
type LatencyFunc func(from, to int) raft.Time

// UniformLatency returns a LatencyFunc with the same delay on every link,
// including self-addressed messages (which never occur in practice, since
// the core never sends to itself).
func UniformLatency(d raft.Time) LatencyFunc {
	return func(from, to int) raft.Time { return d }
}
