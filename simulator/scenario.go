package simulator

import (
	"time"

	"github.com/BurntSushi/toml"
	raft "github.com/ccl0326/raft/raft"
)

// Scenario is the declarative cluster topology the harness can be built
// from instead of programmatic NewCluster calls, decoded with
// github.com/BurntSushi/toml per SPEC_FULL.md's Configuration section.
//
// Example:
//
//	servers = 3
//	tick_interval_ms = 100
//	election_timeout_ms = 1000
//	heartbeat_timeout_ms = 100
//
//	[[links]]
//	from = 0
//	to = 1
//	latency_ms = 5
type Scenario struct {
	Servers            int    `toml:"servers"`
	TickIntervalMS     int64  `toml:"tick_interval_ms"`
	ElectionTimeoutMS  int64  `toml:"election_timeout_ms"`
	HeartbeatTimeoutMS int64  `toml:"heartbeat_timeout_ms"`
	DiskLatencyMS      int64  `toml:"disk_latency_ms"`
	Links              []Link `toml:"links"`
}

// Link overrides the network latency between two specific server indices;
// any pair not listed falls back to the scenario's implicit zero latency.
type Link struct {
	From      int   `toml:"from"`
	To        int   `toml:"to"`
	LatencyMS int64 `toml:"latency_ms"`
}

// LoadScenario decodes a TOML-encoded Scenario from path.
func LoadScenario(path string) (Scenario, error) {
	var s Scenario
	_, err := toml.DecodeFile(path, &s)
	return s, err
}

// NewClusterFromScenario builds a Cluster from a decoded Scenario.
func NewClusterFromScenario(s Scenario) *Cluster {
	var raftOpts []raft.Option
	if s.ElectionTimeoutMS > 0 {
		raftOpts = append(raftOpts, raft.WithElectionTimeout(time.Duration(s.ElectionTimeoutMS)*time.Millisecond))
	}
	if s.HeartbeatTimeoutMS > 0 {
		raftOpts = append(raftOpts, raft.WithHeartbeatTimeout(time.Duration(s.HeartbeatTimeoutMS)*time.Millisecond))
	}

	links := make(map[[2]int]raft.Time, len(s.Links))
	for _, l := range s.Links {
		links[[2]int{l.From, l.To}] = raft.Time(l.LatencyMS)
	}
	latency := func(from, to int) raft.Time {
		if d, ok := links[[2]int{from, to}]; ok {
			return d
		}
		return 0
	}

	var opts []Option
	opts = append(opts, WithLatency(latency))
	if s.TickIntervalMS > 0 {
		opts = append(opts, WithTickInterval(raft.Time(s.TickIntervalMS)))
	}
	if s.DiskLatencyMS > 0 {
		opts = append(opts, WithDiskLatency(raft.Time(s.DiskLatencyMS)))
	}

	n := s.Servers
	if n <= 0 {
		n = 3
	}
	return NewCluster(n, raftOpts, opts...)
}
