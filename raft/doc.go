// Package raft implements the core of the Raft consensus protocol: a
// deterministic, event-driven state machine that replicates an ordered log
// of opaque command entries across a fixed set of voting and non-voting
// servers.
//
// The package does not perform any I/O itself. A caller supplies an IO
// implementation (time, randomness, persistence, transport) and drives the
// state machine with Tick and Step; see io.go for the contract. The
// concrete transport and disk store, and the application state machine that
// interprets committed entries, are external collaborators.
package raft
