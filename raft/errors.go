package raft

import (
	"fmt"

	"github.com/pkg/errors"
)

// NotLeaderError is returned when an operation is submitted to a server
// that is not currently the leader. LeaderID is the server's best guess at
// the current leader, or None if it has none.
type NotLeaderError struct {
	ServerID ServerID
	LeaderID ServerID
}

func (e *NotLeaderError) Error() string {
	return fmt.Sprintf("raft: server %d is not the leader (known leader: %d)", e.ServerID, e.LeaderID)
}

// LeadershipLostError is returned when a previously accepted proposal was
// not committed because the server stepped down before it could be.
type LeadershipLostError struct {
	ServerID ServerID
	Term     uint64
}

func (e *LeadershipLostError) Error() string {
	return fmt.Sprintf("raft: server %d lost leadership during term %d before the proposal committed", e.ServerID, e.Term)
}

// ConfigurationBusyError is returned when a membership change is requested
// while an uncommitted CONFIGURATION entry already exists.
type ConfigurationBusyError struct {
	UncommittedIndex uint64
}

func (e *ConfigurationBusyError) Error() string {
	return fmt.Sprintf("raft: configuration change already in progress at index %d", e.UncommittedIndex)
}

// PromotionAbandonedError is returned when a non-voting server's automatic
// catch-up tracking failed too many rounds in a row to keep retrying.
type PromotionAbandonedError struct {
	ServerID     ServerID
	FailedRounds int
}

func (e *PromotionAbandonedError) Error() string {
	return fmt.Sprintf("raft: promotion of server %d abandoned after %d failed catch-up rounds", e.ServerID, e.FailedRounds)
}

// IoFaultError wraps a persistent-storage failure. It is fatal to the
// instance: the role state machine halts and refuses further operation,
// though it remains closable.
type IoFaultError struct {
	Op  string
	err error
}

func newIoFault(op string, cause error) *IoFaultError {
	return &IoFaultError{Op: op, err: errors.Wrap(cause, op)}
}

func (e *IoFaultError) Error() string {
	return fmt.Sprintf("raft: io fault during %s: %v", e.Op, e.err)
}

func (e *IoFaultError) Unwrap() error { return e.err }

// Cause reports the root cause of the fault, as recorded by github.com/pkg/errors.
func (e *IoFaultError) Cause() error { return errors.Cause(e.err) }

// TransportFaultError describes a transient send failure. It is always
// absorbed locally (logged) and never surfaced to a caller; the type exists
// so the logging and introspection paths have a concrete error to report.
type TransportFaultError struct {
	To  ServerID
	err error
}

func (e *TransportFaultError) Error() string {
	return fmt.Sprintf("raft: transport fault sending to %d: %v", e.To, e.err)
}

func (e *TransportFaultError) Unwrap() error { return e.err }

// InvalidArgumentError reports a malformed input: a zero or duplicate
// server id, an empty configuration, and the like.
type InvalidArgumentError struct {
	Msg string
}

func (e *InvalidArgumentError) Error() string { return "raft: invalid argument: " + e.Msg }

// CancelledError is returned to a caller whose operation was outstanding
// when the instance was closed.
type CancelledError struct{}

func (e *CancelledError) Error() string { return "raft: operation cancelled by close" }

// ShutdownError is returned when an operation is submitted after close has
// been initiated.
type ShutdownError struct{}

func (e *ShutdownError) Error() string { return "raft: instance is shut down" }

var (
	errShutdown  = &ShutdownError{}
	errCancelled = &CancelledError{}
)
