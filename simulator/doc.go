// Package simulator implements a deterministic cluster harness: N
// raft.Raft cores sharing a single virtual clock and an in-memory
// raft.IO implementation, driven one discrete event at a time. It is test
// tooling, not a deployable transport, and is used both directly by
// cluster_test.go and as the engine behind the scenario-file runner in
// scenario.go.
package simulator
