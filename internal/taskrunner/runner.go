package taskrunner

// Runner is the scheduler: it owns the busy/ready queue lists, the
// coordinator-wait protocol, and goroutine-spawn accounting for every
// TaskQueue it creates. A single Runner's lock guards every field of the
// Runner itself and of every TaskQueue it owns.
type Runner struct {
	lock    *Lockable
	backend Backend

	queues []*TaskQueue

	busyQueues  []*TaskQueue
	readyQueues []*TaskQueue

	executeCallCount int64
	runCallCount     int64

	coordinatorWaiting  bool
	coordinatorWakeUpAt int64
}

// NewRunner constructs a Runner driven by backend.
func NewRunner(backend Backend) *Runner {
	return &Runner{
		lock:    NewLockable(),
		backend: backend,
	}
}

// NewGoroutineRunner is a convenience constructor for production use: a
// Runner backed by real time and real goroutines.
func NewGoroutineRunner() *Runner {
	return NewRunner(NewGoroutineBackend())
}

// Snapshot reports a point-in-time view of the Runner's bookkeeping,
// intended for diagnostics and the live TUI monitor rather than for
// decision-making (the values are stale the instant the lock is released).
type Snapshot struct {
	BusyQueues       int
	ReadyQueues      int
	ExecuteCallCount int64
	RunCallCount     int64
	CoordinatorWait  bool
}

// Snapshot returns the Runner's current bookkeeping state.
func (r *Runner) Snapshot() Snapshot {
	r.lock.Lock()
	defer r.lock.Unlock()
	return Snapshot{
		BusyQueues:       len(r.busyQueues),
		ReadyQueues:      len(r.readyQueues),
		ExecuteCallCount: r.executeCallCount,
		RunCallCount:     r.runCallCount,
		CoordinatorWait:  r.coordinatorWaiting,
	}
}

// NewQueue returns a fresh TaskQueue owned by this Runner.
func (r *Runner) NewQueue(name string) *TaskQueue {
	r.lock.Lock()
	defer r.lock.Unlock()
	q := newTaskQueue(r, name)
	r.queues = append(r.queues, q)
	r.backend.Decorate(q)
	return q
}

// ActiveQueues returns a snapshot of every queue this Runner has created.
func (r *Runner) ActiveQueues() []*TaskQueue {
	r.lock.Lock()
	defer r.lock.Unlock()
	out := make([]*TaskQueue, len(r.queues))
	copy(out, r.queues)
	return out
}

// CancelAll issues cancellation to every tracked queue.
func (r *Runner) CancelAll() {
	r.lock.Lock()
	queues := make([]*TaskQueue, len(r.queues))
	copy(queues, r.queues)
	r.lock.Unlock()

	for _, q := range queues {
		q.CancelAll()
	}
}

// kickCoordinatorLocked is called by a queue (lock already held) whenever it
// schedules, cancels, or otherwise mutates its futureTasks. It reconciles
// readyQueues membership and either wakes a waiting coordinator or starts a
// new worker.
func (r *Runner) kickCoordinatorLocked(q *TaskQueue) {
	ready := q.isReadyLocked()
	idx := r.indexOfReady(q)

	switch {
	case ready && idx < 0:
		r.readyQueues = append(r.readyQueues, q)
	case !ready && idx >= 0:
		r.readyQueues = append(r.readyQueues[:idx], r.readyQueues[idx+1:]...)
	}

	if r.coordinatorWaiting {
		r.backend.CoordinatorNotify(r)
		return
	}
	r.startAnotherThreadLocked()
}

func (r *Runner) indexOfReady(q *TaskQueue) int {
	for i, cand := range r.readyQueues {
		if cand == q {
			return i
		}
	}
	return -1
}

func (r *Runner) indexOfBusy(q *TaskQueue) int {
	for i, cand := range r.busyQueues {
		if cand == q {
			return i
		}
	}
	return -1
}

// startAnotherThreadLocked pairs executeCallCount against runCallCount so
// that N ready tasks never start more than one extra, not-yet-observed
// worker: if a worker is already starting but hasn't incremented
// runCallCount yet, it is assumed sufficient.
func (r *Runner) startAnotherThreadLocked() {
	if r.executeCallCount > r.runCallCount {
		return
	}
	r.executeCallCount++
	r.backend.Execute(r, r.worker)
}

// worker is the body of every spawned goroutine.
func (r *Runner) worker() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.runCallCount++

	for {
		task := r.awaitTaskToRunLocked()
		if task == nil {
			return
		}

		r.lock.Unlock()
		delay, completed, panicVal := runTaskOffLock(task)
		r.lock.Lock()

		r.afterRunLocked(task, delay, completed)

		if !completed {
			// Preserve observability: the panic re-emerges on this
			// goroutine, after bookkeeping is settled, rather than being
			// swallowed here.
			panic(panicVal)
		}
	}
}

// runTaskOffLock runs task.RunOnce without the Runner's lock held, catching
// a panic so the caller can update bookkeeping before re-raising it.
func runTaskOffLock(task *Task) (delay int64, completed bool, panicVal interface{}) {
	defer func() {
		if p := recover(); p != nil {
			delay = Cancel
			completed = false
			panicVal = p
		}
	}()
	delay = task.RunOnce()
	completed = true
	return
}

// awaitTaskToRunLocked implements the decision loop described in spec.md
// §4.1. Must be called with the lock held.
func (r *Runner) awaitTaskToRunLocked() *Task {
	for {
		if len(r.readyQueues) == 0 {
			return nil
		}

		now := r.backend.NanoTime()

		var readyQueue *TaskQueue
		var readyTask *Task
		multipleReady := false
		minDelay := int64(-1)

		for _, q := range r.readyQueues {
			if len(q.futureTasks) == 0 {
				continue
			}
			head := q.futureTasks[0]
			delay := head.nextExecuteNanoTime - now
			if delay > 0 {
				if minDelay < 0 || delay < minDelay {
					minDelay = delay
				}
				continue
			}
			if readyTask == nil {
				readyTask = head
				readyQueue = q
			} else {
				multipleReady = true
				break
			}
		}

		if readyTask != nil {
			r.beforeRunLocked(readyQueue, readyTask)
			if multipleReady || (len(r.readyQueues) > 0 && !r.coordinatorWaiting) {
				r.startAnotherThreadLocked()
			}
			return readyTask
		}

		if minDelay < 0 {
			// No head is eligible and none is pending a positive delay
			// either (shouldn't normally happen since readyQueues only
			// holds non-empty queues), so avoid a busy spin.
			return nil
		}

		if r.coordinatorWaiting {
			wakeIn := r.coordinatorWakeUpAt - now
			if minDelay < wakeIn {
				r.backend.CoordinatorNotify(r)
			}
			return nil
		}

		r.coordinatorWaiting = true
		r.coordinatorWakeUpAt = now + minDelay
		err := r.backend.CoordinatorWait(r, minDelay)
		r.coordinatorWaiting = false
		if err != nil {
			r.lock.Unlock()
			r.CancelAll()
			r.lock.Lock()
		}
		// loop and retry the decision
	}
}

// beforeRunLocked removes task from its queue's futureTasks, marks it
// active, and reconciles busy/ready membership.
func (r *Runner) beforeRunLocked(q *TaskQueue, task *Task) {
	task.nextExecuteNanoTime = NotScheduled
	q.removeHeadLocked()
	// A queue with an active task is busy, not ready, even while more of its
	// tasks are pending; afterRunLocked puts it back in readyQueues.
	if idx := r.indexOfReady(q); idx >= 0 {
		r.readyQueues = append(r.readyQueues[:idx], r.readyQueues[idx+1:]...)
	}
	q.activeTask = task
	r.busyQueues = append(r.busyQueues, q)
}

// afterRunLocked reconciles state once a task has finished running
// (normally or via panic), optionally rescheduling it.
func (r *Runner) afterRunLocked(task *Task, delayNanos int64, completedNormally bool) {
	q := task.queue
	if q == nil || q.activeTask != task {
		panic("taskrunner: afterRun called for a task that is not its queue's active task")
	}

	cancelled := q.cancelActiveTask
	q.cancelActiveTask = false
	q.activeTask = nil
	if idx := r.indexOfBusy(q); idx >= 0 {
		r.busyQueues = append(r.busyQueues[:idx], r.busyQueues[idx+1:]...)
	}

	if delayNanos != Cancel && !cancelled && !q.shutdown {
		task.nextExecuteNanoTime = NotScheduled
		// rescheduleLocked only reinserts the task; it deliberately does not
		// kick the coordinator (see its doc comment) since this worker is
		// about to loop back into awaitTaskToRunLocked and reconsider q
		// itself, unless completedNormally is false below.
		_ = q.rescheduleLocked(task, delayNanos)
		if idx := r.indexOfReady(q); idx < 0 {
			r.readyQueues = append(r.readyQueues, q)
		}
	} else {
		task.queue = nil
		if len(q.futureTasks) > 0 {
			if idx := r.indexOfReady(q); idx < 0 {
				r.readyQueues = append(r.readyQueues, q)
			}
		}
	}

	if !completedNormally {
		r.startAnotherThreadLocked()
	}
}
