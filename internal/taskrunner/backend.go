package taskrunner

import (
	"sync"
	"time"
)

// Backend abstracts the wall-independent time source, the coordinator's
// wait/notify primitive, and the worker-submission mechanism that
// TaskRunner is built on. Tests supply a fake-clock Backend to exercise the
// scheduler deterministically; production code uses GoroutineBackend.
type Backend interface {
	// NanoTime returns a monotonic nanosecond timestamp.
	NanoTime() int64

	// CoordinatorWait atomically releases runner's lock and waits up to
	// nanos nanoseconds, or until CoordinatorNotify is called, then
	// reacquires the lock before returning. A non-nil error signals that
	// the wait was interrupted and the runner should cancel all work.
	CoordinatorWait(runner *Runner, nanos int64) error

	// CoordinatorNotify wakes a goroutine blocked in CoordinatorWait.
	CoordinatorNotify(runner *Runner)

	// Execute submits fn to run on a new or pooled goroutine. It must not
	// block the caller on fn's completion.
	Execute(runner *Runner, fn func())

	// Decorate is a passthrough hook invoked once per newly created queue,
	// primarily useful for test instrumentation.
	Decorate(queue *TaskQueue)
}

// GoroutineBackend is the production Backend: real monotonic time, an
// unbounded goroutine pool (one goroutine per Execute call — Go's runtime
// scheduler already multiplexes these onto OS threads, so unlike a cached
// thread-pool backend there is no separate rendezvous queue to configure),
// and the Runner's own Lockable as the coordinator's wait/notify primitive.
type GoroutineBackend struct{}

// NewGoroutineBackend constructs the production Backend. It carries no
// state of its own: CoordinatorWait/CoordinatorNotify operate directly on
// the Runner's Lockable, which is the single mutex/condition-variable pair
// shared by every goroutine touching that Runner.
func NewGoroutineBackend() *GoroutineBackend {
	return &GoroutineBackend{}
}

func (b *GoroutineBackend) NanoTime() int64 {
	return time.Now().UnixNano()
}

func (b *GoroutineBackend) CoordinatorWait(runner *Runner, nanos int64) error {
	runner.lock.awaitNanos(nanos)
	return nil
}

func (b *GoroutineBackend) CoordinatorNotify(runner *Runner) {
	runner.lock.notify()
}

func (b *GoroutineBackend) Execute(runner *Runner, fn func()) {
	go fn()
}

func (b *GoroutineBackend) Decorate(queue *TaskQueue) {}

var _ Backend = (*GoroutineBackend)(nil)
var _ sync.Locker = (*Lockable)(nil)
