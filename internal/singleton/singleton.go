// Package singleton owns the process-lifetime default TaskRunner that
// client.Do multiplexes exchanges through when the caller doesn't inject
// one of its own, plus the flock-guarded lock file `wirehttp serve` uses
// to ensure only one daemon runs against a given config directory at a
// time (grounded on the teacher's single-instance-daemon discipline in
// cmd/http_handlers.go).
package singleton

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/wirehttp/wirehttp/internal/taskrunner"
)

var (
	runnerOnce sync.Once
	runner     *taskrunner.Runner
)

// Runner returns the shared process-lifetime TaskRunner, creating it on
// first use.
func Runner() *taskrunner.Runner {
	runnerOnce.Do(func() {
		runner = taskrunner.NewGoroutineRunner()
	})
	return runner
}

// Lock acquires an exclusive, non-blocking flock on "<dir>/wirehttp.lock",
// returning an error if another process already holds it. The caller must
// call the returned release function (typically via defer) to drop it.
func Lock(dir string) (release func() error, err error) {
	path := filepath.Join(dir, "wirehttp.lock")
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("singleton: acquiring lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("singleton: another wirehttp process already holds %s", path)
	}
	return fl.Unlock, nil
}
