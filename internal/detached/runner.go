// Package detached runs fire-and-forget tasks that must outlive the request
// that started them, such as persisting risk scores back to the fact store.
package detached

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a single detached task
const DefaultTimeout = 5 * time.Second

// Runner executes tasks on contexts detached from the caller's cancellation.
// Task errors are reported on an internal channel that a single goroutine
// drains, logs and counts. They are never returned to the caller.
type Runner struct {
	timeout time.Duration

	mu      sync.RWMutex
	stopped bool

	tasks   sync.WaitGroup
	pending sync.WaitGroup
	errs    chan taskError
	drained chan struct{}

	started   atomic.Int64
	failures  atomic.Int64
	onFailure func(name string)
}

type taskError struct {
	name string
	err  error
}

// Option configures a Runner
type Option func(*Runner)

// WithTimeout sets the per-task timeout
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithFailureHook registers a callback invoked for every failed task, from the drain goroutine
func WithFailureHook(fn func(name string)) Option {
	return func(r *Runner) {
		r.onFailure = fn
	}
}

// NewRunner creates a runner and starts its error drain
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		timeout: DefaultTimeout,
		errs:    make(chan taskError, 64),
		drained: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.drain()
	return r
}

// Go schedules fn. The task context keeps the values of ctx (request id,
// trace span) but not its deadline or cancellation. After Stop the task is
// dropped.
func (r *Runner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		logrus.WithField("task", name).Warn("Detached runner stopped, dropping task")
		return
	}

	r.tasks.Add(1)
	r.started.Add(1)
	taskCtx := context.WithoutCancel(ctx)

	go func() {
		defer r.tasks.Done()

		ctx, cancel := context.WithTimeout(taskCtx, r.timeout)
		defer cancel()

		if err := r.run(ctx, fn); err != nil {
			r.pending.Add(1)
			r.errs <- taskError{name: name, err: err}
		}
	}()
}

func (r *Runner) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in detached task: %v", rec)
		}
	}()
	return fn(ctx)
}

func (r *Runner) drain() {
	defer close(r.drained)
	for te := range r.errs {
		r.failures.Add(1)
		logrus.WithFields(logrus.Fields{
			"task":  te.name,
			"error": te.err,
		}).Warn("Detached task failed")
		if r.onFailure != nil {
			r.onFailure(te.name)
		}
		r.pending.Done()
	}
}

// Wait blocks until every scheduled task has finished and its error, if any,
// has been handled
func (r *Runner) Wait() {
	r.tasks.Wait()
	r.pending.Wait()
}

// Stop rejects new tasks, waits for in-flight ones and shuts down the drain.
// It is safe to call more than once.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		<-r.drained
		return
	}
	r.stopped = true
	r.mu.Unlock()

	r.tasks.Wait()
	close(r.errs)
	<-r.drained
	logrus.WithFields(logrus.Fields{
		"started":  r.started.Load(),
		"failures": r.failures.Load(),
	}).Info("Detached runner stopped")
}

// Stats returns the number of tasks started and failed so far
func (r *Runner) Stats() (started, failed int64) {
	return r.started.Load(), r.failures.Load()
}
