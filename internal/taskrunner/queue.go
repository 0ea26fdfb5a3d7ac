package taskrunner

import "fmt"

// TaskQueue is an ordered set of pending tasks belonging to one logical
// stream of work. All field access is serialized by the owning Runner's
// lock; TaskQueue itself holds no lock of its own.
type TaskQueue struct {
	Name string

	runner *Runner

	activeTask       *Task
	futureTasks      []*Task // sorted by nextExecuteNanoTime asc, FIFO ties
	cancelActiveTask bool
	shutdown         bool
	nextSequence     int64
}

func newTaskQueue(runner *Runner, name string) *TaskQueue {
	return &TaskQueue{Name: name, runner: runner}
}

// Schedule inserts task into the queue's futureTasks at now+delayNanos,
// preserving ascending-eligibility order with FIFO ties. It fails if the
// queue has been shut down.
func (q *TaskQueue) Schedule(task *Task, delayNanos int64) error {
	q.runner.lock.Lock()
	defer q.runner.lock.Unlock()
	return q.scheduleLocked(task, delayNanos)
}

func (q *TaskQueue) scheduleLocked(task *Task, delayNanos int64) error {
	if q.shutdown {
		return fmt.Errorf("taskrunner: queue %q is shut down", q.Name)
	}
	if task.queue != nil && task.queue != q {
		return fmt.Errorf("taskrunner: task %q already belongs to another queue", task.Name)
	}
	task.queue = q
	task.nextExecuteNanoTime = q.runner.backend.NanoTime() + delayNanos
	task.sequence = q.nextSequence
	q.nextSequence++

	q.insertSorted(task)
	q.runner.kickCoordinatorLocked(q)
	return nil
}

// rescheduleLocked reinserts task into q's futureTasks after a run, without
// notifying the coordinator or starting a worker: afterRunLocked's caller is
// the very worker that will loop back into awaitTaskToRunLocked and pick the
// rescheduled task back up itself, so kicking the coordinator here would
// only start a second worker that finds nothing to do (spec.md §4.1).
func (q *TaskQueue) rescheduleLocked(task *Task, delayNanos int64) error {
	if q.shutdown {
		return fmt.Errorf("taskrunner: queue %q is shut down", q.Name)
	}
	task.queue = q
	task.nextExecuteNanoTime = q.runner.backend.NanoTime() + delayNanos
	task.sequence = q.nextSequence
	q.nextSequence++
	q.insertSorted(task)
	return nil
}

func (q *TaskQueue) insertSorted(task *Task) {
	i := len(q.futureTasks)
	for i > 0 {
		prev := q.futureTasks[i-1]
		if prev.nextExecuteNanoTime <= task.nextExecuteNanoTime {
			break
		}
		i--
	}
	q.futureTasks = append(q.futureTasks, nil)
	copy(q.futureTasks[i+1:], q.futureTasks[i:])
	q.futureTasks[i] = task
}

// Execute is a convenience for scheduling a one-shot, non-recurrent task.
func (q *TaskQueue) Execute(name string, delayNanos int64, block func()) error {
	task := newTask(name, true, func() int64 {
		block()
		return Cancel
	})
	return q.Schedule(task, delayNanos)
}

// CancelAll drops every cancelable pending task and, if the active task is
// cancelable, requests that it not be rescheduled. The queue itself is not
// removed from the runner's busy/ready lists here; reconciliation happens
// via kickCoordinator.
func (q *TaskQueue) CancelAll() {
	q.runner.lock.Lock()
	defer q.runner.lock.Unlock()
	q.cancelAllLocked()
	q.runner.kickCoordinatorLocked(q)
}

func (q *TaskQueue) cancelAllLocked() {
	kept := q.futureTasks[:0]
	for _, t := range q.futureTasks {
		if t.Cancelable {
			t.queue = nil
			t.nextExecuteNanoTime = NotScheduled
			continue
		}
		kept = append(kept, t)
	}
	q.futureTasks = kept

	if q.activeTask != nil && q.activeTask.Cancelable {
		q.cancelActiveTask = true
	}
}

// Shutdown marks the queue shut down: no further Schedule calls succeed,
// and cancelable pending tasks are dropped immediately.
func (q *TaskQueue) Shutdown() {
	q.runner.lock.Lock()
	defer q.runner.lock.Unlock()
	q.shutdown = true
	q.cancelAllLocked()
	q.runner.kickCoordinatorLocked(q)
}

// Len reports the number of pending (not yet active) tasks.
func (q *TaskQueue) Len() int {
	q.runner.lock.Lock()
	defer q.runner.lock.Unlock()
	return len(q.futureTasks)
}

// IsIdle reports whether the queue has neither an active task nor any
// pending ones.
func (q *TaskQueue) IsIdle() bool {
	q.runner.lock.Lock()
	defer q.runner.lock.Unlock()
	return q.activeTask == nil && len(q.futureTasks) == 0
}

// isReadyLocked reports whether the queue belongs in the runner's
// readyQueues set: no active task, and at least one pending task,
// regardless of whether the head is currently eligible.
func (q *TaskQueue) isReadyLocked() bool {
	return q.activeTask == nil && len(q.futureTasks) > 0
}

// removeHeadLocked pops and returns the head of futureTasks.
func (q *TaskQueue) removeHeadLocked() *Task {
	if len(q.futureTasks) == 0 {
		return nil
	}
	head := q.futureTasks[0]
	q.futureTasks = q.futureTasks[1:]
	return head
}
