// Package supervisor coordinates the long-running tasks of a process around
// one shared shutdown signal. An OS signal and a task fault funnel into the
// same cancellation, and every task observes it cooperatively.
package supervisor

import (
	"context"
	"errors"
	"sync"

	"github.com/luxfi/log"
)

// Task is a named long-running function. It runs until its context is
// cancelled or it fails; returning context.Canceled (or nil) is a clean
// exit, anything else is an unhandled fault.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Supervisor owns the shared cancel. Register tasks, then Run once.
type Supervisor struct {
	logger log.Logger

	mu    sync.Mutex
	tasks []Task
}

// New builds an empty supervisor.
func New(logger log.Logger) *Supervisor {
	return &Supervisor{logger: logger.New("module", "supervisor")}
}

// Register adds a task. Registration after Run has started is a
// programming error and is ignored once tasks are launched.
func (s *Supervisor) Register(name string, run func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, Task{Name: name, Run: run})
}

// Run launches every registered task and blocks until all have exited.
// The first fault cancels the shared context; external cancellation of ctx
// takes the same path. The returned error is the first fault, or nil when
// every task exited cleanly.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	tasks := make([]Task, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		faultMu  sync.Mutex
		firstErr error
	)

	fail := func(name string, err error) {
		faultMu.Lock()
		if firstErr == nil {
			firstErr = err
			s.logger.Error("task fault, shutting down", "task", name, "error", err)
		}
		faultMu.Unlock()
		cancel()
	}

	for _, task := range tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			defer func() {
				// A panicking task is still an unhandled fault, not a
				// process abort: convert and converge.
				if r := recover(); r != nil {
					fail(t.Name, &PanicError{Task: t.Name, Value: r})
				}
			}()

			s.logger.Info("task started", "task", t.Name)
			err := t.Run(runCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				fail(t.Name, err)
				return
			}
			s.logger.Info("task exited", "task", t.Name)
		}(task)
	}

	wg.Wait()

	faultMu.Lock()
	defer faultMu.Unlock()
	return firstErr
}

// PanicError wraps a recovered panic from a supervised task.
type PanicError struct {
	Task  string
	Value any
}

func (e *PanicError) Error() string {
	return "supervisor: task " + e.Task + " panicked"
}
