package scheduler

// Reason is a bitfield recording why a task was promoted from pending to
// ready. It is zero while a task is pending and, per spec.md invariant 2,
// becomes non-zero exactly once (on promotion) and is frozen thereafter.
type Reason uint8

const (
	// ReasonStartup marks the task the caller handed to Run.
	ReasonStartup Reason = 1 << iota
	// ReasonShutdownActive marks a shutdown-eligible task promoted because
	// shutdown is in progress. It can co-occur with other reasons.
	ReasonShutdownActive
	// ReasonTimeout marks a task promoted because its deadline passed.
	ReasonTimeout
	// ReasonReadReady marks a task promoted because a descriptor in its read
	// interest set became readable.
	ReasonReadReady
	// ReasonWriteReady marks a task promoted because a descriptor in its
	// write interest set became writable.
	ReasonWriteReady
	// ReasonPrereqDone marks a task promoted (among other conditions) after
	// its prerequisite task was destroyed.
	ReasonPrereqDone
)

// Has reports whether bit is set in r.
func (r Reason) Has(bit Reason) bool {
	return r&bit != 0
}

// String renders the set bits for logging, e.g. "timeout|read_ready".
func (r Reason) String() string {
	if r == 0 {
		return "none"
	}
	var s string
	add := func(bit Reason, name string) {
		if r&bit != 0 {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	add(ReasonStartup, "startup")
	add(ReasonShutdownActive, "shutdown_active")
	add(ReasonTimeout, "timeout")
	add(ReasonReadReady, "read_ready")
	add(ReasonWriteReady, "write_ready")
	add(ReasonPrereqDone, "prereq_done")
	return s
}
