package raft

import "time"

const (
	DefaultElectionTimeout        = 1000 * time.Millisecond
	DefaultHeartbeatTimeout       = 100 * time.Millisecond
	DefaultInstallSnapshotTimeout = 30 * time.Second
	DefaultSnapshotThreshold      = 8192
	DefaultSnapshotTrailing       = 4096
	DefaultMaxInflightPerPeer     = 256
	// DefaultCatchUpRounds is how many consecutive successful catch-up
	// rounds a non-voting server needs before it is promoted.
	DefaultCatchUpRounds = 10
	// DefaultCatchUpThreshold is how far behind the leader's last index a
	// catching-up server's match index may remain within one round and
	// still count as progress.
	DefaultCatchUpThreshold = 10
	// DefaultCatchUpMaxFailures bounds how many consecutive failed rounds a
	// non-voting server may accumulate before its catch-up is abandoned.
	DefaultCatchUpMaxFailures = 5
)

// Config collects every tunable of the election/heartbeat/snapshot/catch-up
// timing model, plus the Logger collaborator. It is built with
// functional options.
type Config struct {
	ID                     ServerID
	ElectionTimeout        time.Duration
	HeartbeatTimeout       time.Duration
	InstallSnapshotTimeout time.Duration
	SnapshotThreshold      uint64
	SnapshotTrailing       uint64
	MaxInflightPerPeer     int
	CatchUpRounds          int
	CatchUpThreshold       uint64
	CatchUpMaxFailures     int
	Logger                 Logger
}

func defaultConfig(id ServerID) *Config {
	return &Config{
		ID:                     id,
		ElectionTimeout:        DefaultElectionTimeout,
		HeartbeatTimeout:       DefaultHeartbeatTimeout,
		InstallSnapshotTimeout: DefaultInstallSnapshotTimeout,
		SnapshotThreshold:      DefaultSnapshotThreshold,
		SnapshotTrailing:       DefaultSnapshotTrailing,
		MaxInflightPerPeer:     DefaultMaxInflightPerPeer,
		CatchUpRounds:          DefaultCatchUpRounds,
		CatchUpThreshold:       DefaultCatchUpThreshold,
		CatchUpMaxFailures:     DefaultCatchUpMaxFailures,
		Logger:                 defaultLogger(),
	}
}

// Option configures a Raft instance using the functional-options pattern.
type Option interface {
	apply(c *Config)
}

type optionFunc func(c *Config)

func (f optionFunc) apply(c *Config) { f(c) }

// WithElectionTimeout sets the minimum randomized election timeout; the
// maximum is always 2x this value. Default 1000ms.
func WithElectionTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.ElectionTimeout = d })
}

// WithHeartbeatTimeout sets the leader-to-follower heartbeat cadence. Must
// be strictly less than the election timeout. Default 100ms.
func WithHeartbeatTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.HeartbeatTimeout = d })
}

// WithInstallSnapshotTimeout sets how long the leader waits for an
// InstallSnapshot exchange to complete before retrying. Default 30s.
func WithInstallSnapshotTimeout(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.InstallSnapshotTimeout = d })
}

// WithSnapshotThreshold sets Config.SnapshotThreshold, the log length at
// which to snapshot. The core stores the value but never reads it: it does
// not take snapshots itself.
func WithSnapshotThreshold(n uint64) Option {
	return optionFunc(func(c *Config) { c.SnapshotThreshold = n })
}

// WithSnapshotTrailing sets Config.SnapshotTrailing, how many log entries
// to retain behind a snapshot. Like SnapshotThreshold, the core stores the
// value but never reads it, and never compacts the log.
func WithSnapshotTrailing(n uint64) Option {
	return optionFunc(func(c *Config) { c.SnapshotTrailing = n })
}

// WithMaxInflightPerPeer bounds the number of pipelined, unacknowledged
// AppendEntries per follower. Default 256.
func WithMaxInflightPerPeer(n int) Option {
	return optionFunc(func(c *Config) { c.MaxInflightPerPeer = n })
}

// WithLogger overrides the default zap-backed Logger.
func WithLogger(l Logger) Option {
	return optionFunc(func(c *Config) { c.Logger = l })
}

// WithCatchUpRounds overrides how many consecutive successful catch-up
// rounds are required before a non-voting server is promoted.
func WithCatchUpRounds(n int) Option {
	return optionFunc(func(c *Config) { c.CatchUpRounds = n })
}

// WithCatchUpThreshold overrides how far behind the leader's last index a
// catching-up server's match index may remain within one round and still
// count as progress.
func WithCatchUpThreshold(n uint64) Option {
	return optionFunc(func(c *Config) { c.CatchUpThreshold = n })
}

// WithCatchUpMaxFailures overrides how many consecutive failed catch-up
// rounds a non-voting server may accumulate before its promotion is
// abandoned.
func WithCatchUpMaxFailures(n int) Option {
	return optionFunc(func(c *Config) { c.CatchUpMaxFailures = n })
}

func (c *Config) validate() error {
	if c.ID == None {
		return &InvalidArgumentError{Msg: "server id must be nonzero"}
	}
	if c.HeartbeatTimeout <= 0 {
		return &InvalidArgumentError{Msg: "heartbeat timeout must be positive"}
	}
	if c.ElectionTimeout <= c.HeartbeatTimeout {
		return &InvalidArgumentError{Msg: "election timeout must exceed heartbeat timeout"}
	}
	if c.Logger == nil {
		c.Logger = defaultLogger()
	}
	return nil
}
