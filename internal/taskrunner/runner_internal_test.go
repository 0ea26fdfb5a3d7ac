package taskrunner

import "testing"

// manualBackend is a deterministic Backend for white-box tests: time only
// advances when CoordinatorWait fast-forwards it, CoordinatorNotify is a
// no-op, and Execute never starts a worker, because these tests drive
// awaitTaskToRunLocked directly rather than through worker goroutines.
type manualBackend struct {
	now int64
}

func (b *manualBackend) NanoTime() int64 { return b.now }

// CoordinatorWait simulates the passage of real time by fast-forwarding the
// fake clock rather than actually blocking, so awaitTaskToRunLocked's retry
// loop converges without a real sleep.
func (b *manualBackend) CoordinatorWait(_ *Runner, nanos int64) error {
	if nanos > 0 {
		b.now += nanos
	}
	return nil
}
func (b *manualBackend) CoordinatorNotify(*Runner) {}
func (b *manualBackend) Execute(*Runner, func())   {}
func (b *manualBackend) Decorate(*TaskQueue)       {}

func newTestRunner() (*Runner, *manualBackend) {
	b := &manualBackend{}
	return NewRunner(b), b
}

func TestScheduleLocked_OrdersByEligibilityThenInsertion(t *testing.T) {
	r, b := newTestRunner()
	q := r.NewQueue("q")

	var order []string
	mk := func(name string) *Task {
		return newTask(name, true, func() int64 {
			order = append(order, name)
			return Cancel
		})
	}

	r.lock.Lock()
	_ = q.scheduleLocked(mk("b"), 100)
	_ = q.scheduleLocked(mk("a"), 50)
	_ = q.scheduleLocked(mk("c"), 100) // same delay as b, FIFO after b
	r.lock.Unlock()

	if len(q.futureTasks) != 3 {
		t.Fatalf("futureTasks = %d, want 3", len(q.futureTasks))
	}
	got := []string{q.futureTasks[0].Name, q.futureTasks[1].Name, q.futureTasks[2].Name}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	_ = b
}

func TestAwaitTaskToRun_RespectsEligibility(t *testing.T) {
	r, b := newTestRunner()
	q := r.NewQueue("q")

	task := newTask("t", true, func() int64 { return Cancel })
	r.lock.Lock()
	_ = q.scheduleLocked(task, 1000)

	got := r.awaitTaskToRunLocked()
	r.lock.Unlock()

	if got != task {
		t.Fatalf("awaitTaskToRunLocked = %v, want %v", got, task)
	}
	if b.now < 1000 {
		t.Fatalf("fake clock did not advance past the task's delay: now=%d", b.now)
	}
}

func TestBeforeAfterRun_ReconcilesBusyReady(t *testing.T) {
	r, _ := newTestRunner()
	q := r.NewQueue("q")

	task := newTask("t", true, func() int64 { return Cancel })

	r.lock.Lock()
	_ = q.scheduleLocked(task, 0)

	got := r.awaitTaskToRunLocked()
	if got != task {
		t.Fatalf("expected task to be ready immediately")
	}
	if q.activeTask != task {
		t.Fatalf("beforeRun did not set activeTask")
	}
	if r.indexOfBusy(q) < 0 {
		t.Fatalf("beforeRun did not add queue to busyQueues")
	}
	if r.indexOfReady(q) >= 0 {
		t.Fatalf("queue should have left readyQueues once its only task became active")
	}

	r.afterRunLocked(task, Cancel, true)
	r.lock.Unlock()

	if q.activeTask != nil {
		t.Fatalf("afterRun did not clear activeTask")
	}
	if r.indexOfBusy(q) >= 0 {
		t.Fatalf("afterRun did not remove queue from busyQueues")
	}
}

func TestAfterRun_CancelledTaskNotRescheduled(t *testing.T) {
	r, _ := newTestRunner()
	q := r.NewQueue("q")

	ran := 0
	task := newTask("t", true, func() int64 {
		ran++
		return 5000 // requests reschedule
	})

	r.lock.Lock()
	_ = q.scheduleLocked(task, 0)
	_ = r.awaitTaskToRunLocked()

	q.cancelActiveTask = true // simulate a CancelAll against the active task
	r.afterRunLocked(task, 5000, true)
	r.lock.Unlock()

	if len(q.futureTasks) != 0 {
		t.Fatalf("cancelled task was rescheduled: futureTasks = %+v", q.futureTasks)
	}
}

func TestStartAnotherThread_PairsExecuteAndRunCounts(t *testing.T) {
	r, _ := newTestRunner()

	r.lock.Lock()
	r.startAnotherThreadLocked()
	if r.executeCallCount != 1 {
		t.Fatalf("executeCallCount = %d, want 1", r.executeCallCount)
	}
	// A second request while the first hasn't "run" yet must not start
	// another.
	r.startAnotherThreadLocked()
	if r.executeCallCount != 1 {
		t.Fatalf("executeCallCount = %d, want 1 (no duplicate start)", r.executeCallCount)
	}

	r.runCallCount++ // simulate the spawned worker observing itself
	r.startAnotherThreadLocked()
	if r.executeCallCount != 2 {
		t.Fatalf("executeCallCount = %d, want 2 after runCallCount caught up", r.executeCallCount)
	}
	r.lock.Unlock()
}

func TestAfterRun_RecurringTaskReschedulesWithoutExtraThread(t *testing.T) {
	r, _ := newTestRunner()
	q := r.NewQueue("q")

	task := newTask("t", true, func() int64 { return 5000 }) // requests reschedule

	r.lock.Lock()
	_ = q.scheduleLocked(task, 0)
	_ = r.awaitTaskToRunLocked()

	executeBefore := r.executeCallCount
	r.afterRunLocked(task, 5000, true) // completedNormally: the worker loops back itself
	r.lock.Unlock()

	if r.executeCallCount != executeBefore {
		t.Fatalf("afterRun of a recurring task started an extra worker: executeCallCount %d -> %d", executeBefore, r.executeCallCount)
	}
	if len(q.futureTasks) != 1 || q.futureTasks[0] != task {
		t.Fatalf("recurring task was not reinserted into futureTasks: %+v", q.futureTasks)
	}
	if r.indexOfReady(q) < 0 {
		t.Fatalf("queue with a rescheduled task should be back in readyQueues")
	}
}

func TestAwaitTaskToRun_MultipleEligibleAcrossQueues(t *testing.T) {
	r, _ := newTestRunner()
	q1 := r.NewQueue("q1")
	q2 := r.NewQueue("q2")

	t1 := newTask("t1", true, func() int64 { return Cancel })
	t2 := newTask("t2", true, func() int64 { return Cancel })

	r.lock.Lock()
	_ = q1.scheduleLocked(t1, 0)
	_ = q2.scheduleLocked(t2, 0)

	r.runCallCount = r.executeCallCount // the calling worker has started, as worker() records before awaiting
	executeBefore := r.executeCallCount
	got := r.awaitTaskToRunLocked()
	r.lock.Unlock()

	if got == nil {
		t.Fatalf("expected a ready task")
	}
	if r.executeCallCount <= executeBefore {
		t.Fatalf("multiple ready tasks should trigger startAnotherThread")
	}
}
