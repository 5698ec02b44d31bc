package scheduler

import (
	"time"

	"github.com/gnunet-go/scheduler/fdset"
)

// Forever is the relative-delay sentinel meaning "no deadline" — the task
// waits only on its interest sets and/or prerequisite. It is the Go analogue
// of the original's GNUNET_TIME_UNIT_FOREVER_REL (scheduler.c).
const Forever = fdset.Forever

// TaskID uniquely and monotonically identifies a registered task. Per
// spec.md invariant 3, a TaskID is only meaningful until its callback begins
// executing.
type TaskID uint64

// NoTask is the sentinel TaskID meaning "no prerequisite"/"no task".
const NoTask TaskID = 0

// Callback is the function a task runs once it becomes ready. The closure
// it captures plays the role of the original's opaque callback_cls: the
// scheduler never inspects it (spec.md §5, "Resources").
type Callback func(ctx *TaskContext)

// TaskContext is handed to a task's Callback, describing why it was
// dispatched and, for read/write-ready dispatches, which descriptors fired.
type TaskContext struct {
	Reason    Reason
	ReadReady *fdset.FDSet
	WriteReady *fdset.FDSet
}

// task is the scheduler's internal record; Task in the data model of
// spec.md §3. Never exposed directly — callers interact via TaskID.
type task struct {
	id       TaskID
	callback Callback
	priority Priority
	prereq   TaskID

	hasDeadline bool
	deadline    time.Time

	readSet  *fdset.FDSet
	writeSet *fdset.FDSet

	onShutdown bool
	reason     Reason
}

// destroy releases a task's owned resources. Called exactly once, per
// spec.md's task lifecycle, immediately after its callback returns (or, for
// a cancelled task, in place of ever running it).
func (t *task) destroy() {
	if t.readSet != nil {
		t.readSet.Destroy()
		t.readSet = nil
	}
	if t.writeSet != nil {
		t.writeSet.Destroy()
		t.writeSet = nil
	}
}
