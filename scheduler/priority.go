package scheduler

// Priority is the priority band a task is dispatched under. Bands are
// ordered; within a run, a task at a strictly higher band always runs before
// one at a lower band, per spec.md §4.1/§5.
type Priority int

const (
	// PriorityKeep is a sentinel meaning "inherit the priority of whichever
	// task is currently executing". It is never a real queue: registering
	// with PriorityKeep resolves to a concrete band at registration time and
	// is a programming error (a panic with *UsageError) outside a running
	// callback.
	PriorityKeep Priority = iota
	// PriorityIdle is for tasks that should only run when nothing else is happening.
	PriorityIdle
	// PriorityBackground is for low-importance, non-urgent work.
	PriorityBackground
	// PriorityDefault is the priority new work runs at absent a better reason.
	PriorityDefault
	// PriorityHigh is for latency-sensitive work that should preempt default work.
	PriorityHigh
	// PriorityShutdown is for tasks tied to an orderly shutdown sequence.
	PriorityShutdown
	// PriorityUrgent is always fully drained before the loop returns to the
	// OS wait; reserved for I/O completions that would otherwise starve.
	PriorityUrgent

	priorityCount
)

// String renders a Priority for logging.
func (p Priority) String() string {
	switch p {
	case PriorityKeep:
		return "keep"
	case PriorityIdle:
		return "idle"
	case PriorityBackground:
		return "background"
	case PriorityDefault:
		return "default"
	case PriorityHigh:
		return "high"
	case PriorityShutdown:
		return "shutdown"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// CountSentinel, passed to Scheduler.GetLoad, requests the total ready count
// across every priority band instead of one band's count.
const CountSentinel Priority = priorityCount
