package raft

// Server describes one member of a Configuration: a unique, nonzero id, an
// opaque address used only by the transport, and whether it counts toward
// quorum.
type Server struct {
	ID      ServerID
	Address string
	Voting  bool
}

// Configuration is an ordered set of servers. The ordering is significant:
// the "voting subsequence" (the configuration filtered to Voting==true, in
// configuration order) is what candidate vote tallies and leader progress
// arrays index into.
//
// Invariants: ids are unique and nonzero; there is at least one voting
// server; a single configuration change flips at most one voting-status bit
// or adds/removes at most one server relative to the prior committed
// configuration.
type Configuration struct {
	Servers []Server
}

// Clone returns a deep copy, safe to mutate independently of the receiver.
func (c Configuration) Clone() Configuration {
	out := Configuration{Servers: make([]Server, len(c.Servers))}
	copy(out.Servers, c.Servers)
	return out
}

// Get returns the server with the given id, or false if absent.
func (c Configuration) Get(id ServerID) (Server, bool) {
	for _, s := range c.Servers {
		if s.ID == id {
			return s, true
		}
	}
	return Server{}, false
}

// NumVoting returns the number of voting servers.
func (c Configuration) NumVoting() int {
	n := 0
	for _, s := range c.Servers {
		if s.Voting {
			n++
		}
	}
	return n
}

// IndexOfVoting returns the position of id within the voting subsequence
// (the configuration filtered to Voting==true, in configuration order), and
// whether id is present and voting at all.
func (c Configuration) IndexOfVoting(id ServerID) (int, bool) {
	i := 0
	for _, s := range c.Servers {
		if !s.Voting {
			continue
		}
		if s.ID == id {
			return i, true
		}
		i++
	}
	return -1, false
}

// VotingServers returns the voting subsequence, in configuration order.
func (c Configuration) VotingServers() []Server {
	out := make([]Server, 0, len(c.Servers))
	for _, s := range c.Servers {
		if s.Voting {
			out = append(out, s)
		}
	}
	return out
}

// Quorum returns floor(NumVoting/2) + 1, the number of voting servers
// required to commit an entry or elect a leader.
func (c Configuration) Quorum() int {
	return c.NumVoting()/2 + 1
}

// Validate checks the structural invariants required of every
// configuration: unique nonzero ids and at least one voting server.
func (c Configuration) Validate() error {
	if len(c.Servers) == 0 {
		return &InvalidArgumentError{Msg: "configuration has no servers"}
	}
	seen := make(map[ServerID]struct{}, len(c.Servers))
	votingCount := 0
	for _, s := range c.Servers {
		if s.ID == None {
			return &InvalidArgumentError{Msg: "server id must be nonzero"}
		}
		if _, dup := seen[s.ID]; dup {
			return &InvalidArgumentError{Msg: "duplicate server id"}
		}
		seen[s.ID] = struct{}{}
		if s.Voting {
			votingCount++
		}
	}
	if votingCount == 0 {
		return &InvalidArgumentError{Msg: "configuration has no voting server"}
	}
	return nil
}

// diffKind classifies the structural delta between two configurations, for
// enforcing the single-server-change invariant in membership.go.
type diffKind int

const (
	diffNone diffKind = iota
	diffVotingFlip
	diffAddOrRemove
	diffInvalid
)

// diff classifies "next" relative to "prev". Only one voting-status flip or
// one add/remove is permitted per change; anything else is diffInvalid.
func diff(prev, next Configuration) diffKind {
	prevByID := make(map[ServerID]Server, len(prev.Servers))
	for _, s := range prev.Servers {
		prevByID[s.ID] = s
	}
	nextByID := make(map[ServerID]Server, len(next.Servers))
	for _, s := range next.Servers {
		nextByID[s.ID] = s
	}

	var added, removed, flipped int
	for id, s := range nextByID {
		if ps, ok := prevByID[id]; !ok {
			added++
		} else if ps.Voting != s.Voting {
			flipped++
		}
	}
	for id := range prevByID {
		if _, ok := nextByID[id]; !ok {
			removed++
		}
	}

	switch {
	case added == 0 && removed == 0 && flipped == 0:
		return diffNone
	case added == 0 && removed == 0 && flipped == 1:
		return diffVotingFlip
	case added+removed == 1 && flipped == 0:
		return diffAddOrRemove
	default:
		return diffInvalid
	}
}
