// Package scheduler implements a cooperative, single-threaded event
// scheduler: callers register tasks that wait on a deadline, a file
// descriptor's readiness, a prerequisite task, or shutdown, and Run drives a
// dispatch loop that promotes and executes them in priority order. It is the
// Go rendering of GNUnet's util/scheduler.c (see original_source/).
package scheduler

import (
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"

	"github.com/gnunet-go/scheduler/fdset"
	"github.com/gnunet-go/scheduler/internal/obslog"
)

// Scheduler holds every pending and ready task and drives their dispatch.
// It is not safe for concurrent use: like the original, all registration and
// cancellation is expected to happen either before Run or from within a
// task's own callback.
type Scheduler struct {
	pending map[TaskID]*task
	ready   [priorityCount][]*task

	readyCount      int
	nextID          uint64
	lowestPendingID TaskID

	shutdown        atomic.Bool
	currentPriority Priority
	tasksRun        uint64
	inCallback      bool

	logger            *obslog.Logger
	busyLoopLimiter   *catrate.Limiter
	busyLoopThreshold int

	sigStop func()
}

// New constructs a Scheduler. It does not start dispatching; call Run.
func New(opts ...Option) *Scheduler {
	o := resolveOptions(opts)
	return &Scheduler{
		pending:           make(map[TaskID]*task),
		nextID:            1,
		currentPriority:   PriorityDefault,
		logger:            o.logger,
		busyLoopLimiter:   catrate.NewLimiter(map[time.Duration]int{o.busyLoopWindow: 1}),
		busyLoopThreshold: o.busyLoopThreshold,
	}
}

// TasksRun returns the number of task callbacks dispatched so far.
func (s *Scheduler) TasksRun() uint64 {
	return s.tasksRun
}

// Shutdown requests an orderly shutdown: on the scheduler's next iteration,
// pending tasks not marked run-on-shutdown are dropped, and run-on-shutdown
// tasks are promoted with ReasonShutdownActive set. Safe to call from a
// running task's callback (that is in fact the common case); also called
// internally when a terminating signal arrives during Run.
func (s *Scheduler) Shutdown() {
	s.shutdown.Store(true)
}

// resolvePriority turns PriorityKeep into the priority of the
// currently-executing task, and validates any other value.
func (s *Scheduler) resolvePriority(p Priority) Priority {
	if p != PriorityKeep {
		if p <= PriorityKeep || p >= priorityCount {
			panic(usageErrorf("add", "invalid priority %d", int(p)))
		}
		return p
	}
	if !s.inCallback {
		panic(usageErrorf("add", "PriorityKeep may only be used to register a task from within a running task's callback"))
	}
	return s.currentPriority
}

func (s *Scheduler) validatePrereq(id TaskID) {
	if id == NoTask {
		return
	}
	if uint64(id) >= s.nextID {
		panic(usageErrorf("add", "prerequisite task %d was never registered", uint64(id)))
	}
}

// AddSelect is the canonical, general-purpose registration operation: every
// other Add* method is a thin wrapper around it. rs and ws are cloned, not
// retained, so the caller remains responsible for destroying them. A nil rs
// or ws means "no descriptors of that kind"; delay of Forever means "no
// deadline".
func (s *Scheduler) AddSelect(rs, ws *fdset.FDSet, delay time.Duration, prio Priority, prereq TaskID, runOnShutdown bool, cb Callback) TaskID {
	if cb == nil {
		panic(usageErrorf("add", "nil callback"))
	}
	s.validatePrereq(prereq)
	resolved := s.resolvePriority(prio)

	t := &task{
		callback:   cb,
		priority:   resolved,
		prereq:     prereq,
		onShutdown: runOnShutdown,
	}
	if rs != nil {
		t.readSet = rs.Clone()
	} else {
		t.readSet = fdset.New()
	}
	if ws != nil {
		t.writeSet = ws.Clone()
	} else {
		t.writeSet = fdset.New()
	}
	if delay == Forever {
		t.hasDeadline = false
	} else {
		t.hasDeadline = true
		t.deadline = time.Now().Add(delay)
	}

	t.id = TaskID(s.nextID)
	s.nextID++
	s.pending[t.id] = t
	return t.id
}

// AddDelayed registers a task that becomes ready once delay elapses (or on
// the next iteration, if delay is zero or negative). Forever is the one
// exception: it sets no deadline, so such a task is promoted only by
// shutdown, if runOnShutdown is set.
func (s *Scheduler) AddDelayed(delay time.Duration, prio Priority, prereq TaskID, runOnShutdown bool, cb Callback) TaskID {
	return s.AddSelect(nil, nil, delay, prio, prereq, runOnShutdown, cb)
}

// AddAfter registers a task that becomes ready once prereq completes. It
// registers with a zero delay rather than Forever: a task with no deadline,
// no interests, and no other reason bit set never accumulates a nonzero
// reason (isReady's prerequisite check only runs once some bit is already
// set), so it would never be promoted even after its prerequisite is
// destroyed. The zero delay guarantees ReasonTimeout is set on the first
// iteration, which is what actually lets the prerequisite check fire and
// gate dispatch — matching GNUNET_SCHEDULER_add_after's use of
// GNUNET_TIME_UNIT_ZERO in the original (original_source/src/util/scheduler.c).
func (s *Scheduler) AddAfter(prereq TaskID, prio Priority, runOnShutdown bool, cb Callback) TaskID {
	return s.AddSelect(nil, nil, 0, prio, prereq, runOnShutdown, cb)
}

// AddReadNet registers a task that becomes ready when fd (a socket) is
// readable, or delay elapses, whichever comes first.
func (s *Scheduler) AddReadNet(fd int, delay time.Duration, prio Priority, prereq TaskID, runOnShutdown bool, cb Callback) TaskID {
	rs := fdset.New()
	rs.AddSocket(fd, fdset.Read)
	id := s.AddSelect(rs, nil, delay, prio, prereq, runOnShutdown, cb)
	rs.Destroy()
	return id
}

// AddWriteNet registers a task that becomes ready when fd (a socket) is
// writable, or delay elapses, whichever comes first.
func (s *Scheduler) AddWriteNet(fd int, delay time.Duration, prio Priority, prereq TaskID, runOnShutdown bool, cb Callback) TaskID {
	ws := fdset.New()
	ws.AddSocket(fd, fdset.Write)
	id := s.AddSelect(nil, ws, delay, prio, prereq, runOnShutdown, cb)
	ws.Destroy()
	return id
}

// AddReadFile registers a task that becomes ready when handle (a pipe or
// other file descriptor) is readable, or delay elapses.
func (s *Scheduler) AddReadFile(handle int, delay time.Duration, prio Priority, prereq TaskID, runOnShutdown bool, cb Callback) TaskID {
	rs := fdset.New()
	rs.AddFileHandle(handle, fdset.Read)
	id := s.AddSelect(rs, nil, delay, prio, prereq, runOnShutdown, cb)
	rs.Destroy()
	return id
}

// AddWriteFile registers a task that becomes ready when handle is writable,
// or delay elapses.
func (s *Scheduler) AddWriteFile(handle int, delay time.Duration, prio Priority, prereq TaskID, runOnShutdown bool, cb Callback) TaskID {
	ws := fdset.New()
	ws.AddFileHandle(handle, fdset.Write)
	id := s.AddSelect(nil, ws, delay, prio, prereq, runOnShutdown, cb)
	ws.Destroy()
	return id
}

// AddContinuation enqueues cb directly onto the ready queue at the
// currently-executing task's priority (or PriorityDefault, outside a
// callback), bypassing readiness evaluation entirely. It exists to splice a
// synchronous caller into the dispatch loop without it having to fabricate a
// deadline of zero.
func (s *Scheduler) AddContinuation(reason Reason, cb Callback) TaskID {
	if cb == nil {
		panic(usageErrorf("add_continuation", "nil callback"))
	}
	prio := PriorityDefault
	if s.inCallback {
		prio = s.currentPriority
	}
	t := &task{
		callback:   cb,
		priority:   prio,
		prereq:     NoTask,
		onShutdown: true,
		reason:     reason,
		readSet:    fdset.New(),
		writeSet:   fdset.New(),
	}
	t.id = TaskID(s.nextID)
	s.nextID++
	s.queueReady(t)
	return t.id
}

// Cancel removes a task before it runs, returning the callback it would have
// invoked so the caller can release resources it owns (mirroring the
// original's GNUNET_SCHEDULER_cancel return value). It is a programming
// error to cancel a task that has already been dispatched or never existed.
func (s *Scheduler) Cancel(id TaskID) Callback {
	if t, ok := s.pending[id]; ok {
		delete(s.pending, id)
		cb := t.callback
		t.destroy()
		return cb
	}
	for p := Priority(1); p < priorityCount; p++ {
		q := s.ready[p]
		for i, t := range q {
			if t.id == id {
				s.ready[p] = append(q[:i:i], q[i+1:]...)
				s.readyCount--
				cb := t.callback
				t.destroy()
				return cb
			}
		}
	}
	panic(usageErrorf("cancel", "task %d is not pending or ready (already dispatched, already cancelled, or never existed)", uint64(id)))
}

// GetLoad reports the number of ready tasks at priority p. Pass
// CountSentinel for the total across every band, or PriorityKeep for the
// currently-executing task's own band.
func (s *Scheduler) GetLoad(p Priority) int {
	switch {
	case p == CountSentinel:
		return s.readyCount
	case p == PriorityKeep:
		return len(s.ready[s.currentPriority])
	default:
		return len(s.ready[p])
	}
}

func (s *Scheduler) queueReady(t *task) {
	s.ready[t.priority] = append(s.ready[t.priority], t)
	s.readyCount++
}

// isPending reports whether id still identifies a task that has not yet
// been dispatched (either still pending, or already promoted to ready but
// not yet run). lowestPendingID is a monotone lower bound refreshed on a
// miss, letting most isPending(prereq) calls for long-completed tasks
// short-circuit without a full scan — the same shortcut scheduler.c takes
// with its lowest_pending_id.
func (s *Scheduler) isPending(id TaskID) bool {
	if id < s.lowestPendingID {
		return false
	}
	if _, ok := s.pending[id]; ok {
		return true
	}
	for p := Priority(1); p < priorityCount; p++ {
		for _, t := range s.ready[p] {
			if t.id == id {
				return true
			}
		}
	}
	min := TaskID(^uint64(0))
	for pid := range s.pending {
		if pid < min {
			min = pid
		}
	}
	for p := Priority(1); p < priorityCount; p++ {
		for _, t := range s.ready[p] {
			if t.id < min {
				min = t.id
			}
		}
	}
	s.lowestPendingID = min
	return false
}

// isReady evaluates a single pending task against the current shutdown
// state, its deadline, and the descriptors ready in rs/ws, setting reason
// bits as it goes. Once any bit is set it never clears, per spec.md
// invariant 2. On an interest-set match the task's entire want set is
// replaced with the full ready set (not merely the intersection) — a
// faithful carry-over of scheduler.c's set_overlaps-then-copy quirk, which
// callers rely on to read back which other descriptors fired alongside the
// one they were waiting for.
func (s *Scheduler) isReady(t *task, now time.Time, rs, ws *fdset.FDSet) bool {
	shuttingDown := s.shutdown.Load()
	if !t.onShutdown && shuttingDown {
		return false
	}
	if t.onShutdown && shuttingDown {
		t.reason |= ReasonShutdownActive
	}
	if t.hasDeadline && !now.Before(t.deadline) {
		t.reason |= ReasonTimeout
	}
	if !t.reason.Has(ReasonReadReady) && rs != nil && t.readSet.Overlaps(rs) {
		t.readSet.CopyFrom(rs)
		t.reason |= ReasonReadReady
	}
	if !t.reason.Has(ReasonWriteReady) && ws != nil && t.writeSet.Overlaps(ws) {
		t.writeSet.CopyFrom(ws)
		t.reason |= ReasonWriteReady
	}
	if t.reason == 0 {
		return false
	}
	if t.prereq != NoTask {
		if s.isPending(t.prereq) {
			return false
		}
		t.reason |= ReasonPrereqDone
	}
	return true
}

// checkReady promotes every pending task that isReady accepts, given the
// descriptors that fired this iteration (rs/ws may be nil, e.g. during the
// post-loop shutdown drain where there is no further multiplexer wait).
func (s *Scheduler) checkReady(rs, ws *fdset.FDSet) {
	now := time.Now()
	for id, t := range s.pending {
		if s.isReady(t, now, rs, ws) {
			delete(s.pending, id)
			s.queueReady(t)
		}
	}
}

// updateSets folds every pending task (other than ones still blocked on an
// outstanding prerequisite) into the descriptor sets to wait on and tightens
// timeout to the soonest deadline.
func (s *Scheduler) updateSets(rs, ws *fdset.FDSet, timeout *time.Duration) {
	now := time.Now()
	for _, t := range s.pending {
		if t.prereq != NoTask && s.isPending(t.prereq) {
			continue
		}
		if t.hasDeadline {
			remaining := t.deadline.Sub(now)
			if remaining < 0 {
				remaining = 0
			}
			if *timeout == Forever || remaining < *timeout {
				*timeout = remaining
			}
		}
		rs.Union(t.readSet)
		ws.Union(t.writeSet)
	}
}

// runReady drains the highest non-empty priority band, most-recently-queued
// task first (LIFO within a band), for as long as either PriorityUrgent was
// the band just serviced or no pending tasks remain — both conditions under
// which returning to the multiplexer wait first would be pure overhead.
func (s *Scheduler) runReady() {
	for s.readyCount > 0 {
		var p Priority
		for pp := priorityCount - 1; pp > PriorityKeep; pp-- {
			if len(s.ready[pp]) > 0 {
				p = pp
				break
			}
		}
		q := s.ready[p]
		t := q[len(q)-1]
		s.ready[p] = q[:len(q)-1]
		s.readyCount--
		s.currentPriority = p

		ctx := &TaskContext{Reason: t.reason, ReadReady: t.readSet, WriteReady: t.writeSet}
		s.inCallback = true
		t.callback(ctx)
		s.inCallback = false
		t.destroy()
		s.tasksRun++

		if len(s.pending) != 0 && p != PriorityUrgent {
			return
		}
	}
}

// Run drives the dispatch loop to completion: it registers initial as the
// startup task (ReasonStartup), installs handlers for SIGINT/SIGTERM et al.
// for the duration of the call, and repeatedly waits for the soonest
// deadline or a descriptor in the combined interest set, promotes whatever
// that satisfies, and drains the ready queues — until no pending or ready
// task remains, or shutdown has been requested and only non-shutdown tasks
// are left. Leftover pending tasks at exit are freed without running, per
// spec.md's documented leak-by-design for an abandoned scheduler.
func (s *Scheduler) Run(initial Callback) {
	s.installSignalHandler()
	defer s.uninstallSignalHandler()

	s.currentPriority = PriorityDefault
	s.AddContinuation(ReasonStartup, initial)

	var lastTasksRun uint64
	var noProgress int

	for !s.shutdown.Load() && (len(s.pending) > 0 || s.readyCount > 0) {
		rs, ws := fdset.New(), fdset.New()
		timeout := Forever
		s.updateSets(rs, ws, &timeout)
		if s.readyCount > 0 {
			timeout = 0
		}

		if s.tasksRun == lastTasksRun {
			noProgress++
		} else {
			lastTasksRun = s.tasksRun
			noProgress = 0
		}
		if timeout == 0 && noProgress > s.busyLoopThreshold {
			if _, allowed := s.busyLoopLimiter.Allow("busy-loop"); allowed {
				s.logger.Warning().Log("scheduler appears to be busy-waiting; a task may be re-scheduling itself at zero delay")
				time.Sleep(time.Second)
			}
		}

		readyRS, readyWS, err := fdset.Wait(rs, ws, timeout)
		rs.Destroy()
		ws.Destroy()
		if err != nil {
			s.logger.Err().Err(err).Log("multiplexer wait failed; stopping dispatch")
			break
		}

		s.checkReady(readyRS, readyWS)
		readyRS.Destroy()
		readyWS.Destroy()
		s.runReady()
	}

	// Final drain: run whatever run-on-shutdown tasks just became eligible,
	// with no further multiplexer wait, until nothing is left ready.
	for {
		s.runReady()
		s.checkReady(nil, nil)
		if s.readyCount == 0 {
			break
		}
	}

	for id, t := range s.pending {
		t.destroy()
		delete(s.pending, id)
	}
}
