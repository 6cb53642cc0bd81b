package raft

// ProgressState is the leader's replication strategy for one follower.
type ProgressState int

const (
	// ProgressStateProbe is the state used to find the follower's matching
	// point after an election or a rejection. Sends are not paused while a
	// reply is outstanding: sendAppend moves the follower to PIPELINE as
	// soon as it sends an AppendEntries that carries entries, without
	// waiting for that reply.
	ProgressStateProbe ProgressState = iota
	// ProgressStatePipeline streams AppendEntries without waiting for each
	// reply, bounded by Inflights' capacity.
	ProgressStatePipeline
	// ProgressStateSnapshot means a snapshot is in flight; no AppendEntries
	// are sent until it completes.
	ProgressStateSnapshot
)

func (s ProgressState) String() string {
	switch s {
	case ProgressStateProbe:
		return "ProgressStateProbe"
	case ProgressStatePipeline:
		return "ProgressStatePipeline"
	case ProgressStateSnapshot:
		return "ProgressStateSnapshot"
	default:
		return "ProgressStateUnknown"
	}
}

// inflights is a bounded FIFO of in-flight AppendEntries high-water
// indices, used to cap how much a PIPELINE-state follower can have
// outstanding. While the window is full, sendAppend sends that follower
// nothing and leaves it in PIPELINE; it is not moved back to PROBE.
type inflights struct {
	start  int
	count  int
	buffer []uint64
}

func newInflights(cap int) *inflights {
	return &inflights{buffer: make([]uint64, cap)}
}

func (in *inflights) Full() bool {
	return in.count == len(in.buffer)
}

// Add records that a message carrying entries up to and including index is
// now in flight.
func (in *inflights) Add(index uint64) {
	if in.Full() {
		panic("raft: cannot add to a full inflights window")
	}
	next := in.start + in.count
	if next >= len(in.buffer) {
		next -= len(in.buffer)
	}
	in.buffer[next] = index
	in.count++
}

// FreeLE frees every in-flight slot whose recorded index is <= index: those
// messages have now been acknowledged.
func (in *inflights) FreeLE(index uint64) {
	if in.count == 0 || index < in.buffer[in.start] {
		return
	}
	i, idx := 0, in.start
	for ; i < in.count; i++ {
		if index < in.buffer[idx] {
			break
		}
		idx++
		if idx >= len(in.buffer) {
			idx -= len(in.buffer)
		}
	}
	in.count -= i
	in.start = idx
}

func (in *inflights) Reset() {
	in.start = 0
	in.count = 0
}

// Progress is the leader's replication bookkeeping for one follower.
// Progress entries are keyed by server id, not by pointer into the
// Configuration, so a membership change can freely rebuild r.progress by
// id-matching.
type Progress struct {
	Next, Match     uint64
	State           ProgressState
	LastContactTime Time
	inflights       *inflights
}

// maybeUpdate records that the follower has replicated through index index,
// as reported by a successful AppendEntriesResult. Returns true if this
// advances Match.
func (pr *Progress) maybeUpdate(index uint64) bool {
	updated := false
	if pr.Match < index {
		pr.Match = index
		updated = true
	}
	if pr.Next < index+1 {
		pr.Next = index + 1
	}
	return updated
}

// maybeDecrTo lowers Next after a rejected AppendEntries, optionally using
// the follower-reported last-log-index as a fast-backoff hint. Returns true
// if Next actually moved.
func (pr *Progress) maybeDecrTo(rejected, lastIndexHint uint64) bool {
	if pr.State == ProgressStatePipeline {
		// The rejection is stale if it refers to an index already implied
		// acknowledged by Match.
		if rejected <= pr.Match {
			return false
		}
		pr.Next = pr.Match + 1
		return true
	}
	if pr.Next-1 != rejected {
		return false
	}
	if lastIndexHint > 0 {
		pr.Next = lastIndexHint + 1
	} else if pr.Next > 1 {
		pr.Next--
	}
	return true
}

func (pr *Progress) becomeProbe() {
	if pr.State == ProgressStateSnapshot {
		pivot := pr.Match + 1
		if pivot > pr.Next {
			pr.Next = pivot
		}
	}
	pr.State = ProgressStateProbe
	if pr.inflights != nil {
		pr.inflights.Reset()
	}
}

func (pr *Progress) becomePipeline() {
	pr.State = ProgressStatePipeline
}

func (pr *Progress) becomeSnapshot() {
	pr.State = ProgressStateSnapshot
	if pr.inflights != nil {
		pr.inflights.Reset()
	}
}

// pipelineFull reports whether this follower has hit its
// max_inflight_per_peer cap. sendAppend then skips the follower until
// acknowledgments free a slot; the follower stays in PIPELINE.
func (pr *Progress) pipelineFull() bool {
	return pr.inflights != nil && pr.inflights.Full()
}
