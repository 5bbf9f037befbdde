// Package task implements the callable unit pipeline stages submit to the
// pool: a thunk plus a small DAG of front-task dependencies that must
// complete before it may run.
package task

import "sync"

// Task is a unit of work with optional predecessors. It is safe to execute
// at most once; Execute is idempotent only in the sense that a second call
// observes the same result without re-running the thunk.
type Task struct {
	thunk   func() error
	front   []*Task
	msg     string
	done    chan struct{}
	doneSet sync.Once

	mu  sync.Mutex
	err error
	ran bool
}

// Option configures a Task at construction.
type Option func(*Task)

// WithFrontTasks declares tasks that must complete (successfully or not)
// before this task's thunk may run.
func WithFrontTasks(front ...*Task) Option {
	return func(t *Task) { t.front = append(t.front, front...) }
}

// WithMessage attaches a human-readable label used in failure logging.
func WithMessage(msg string) Option {
	return func(t *Task) { t.msg = msg }
}

// New constructs a Task around thunk.
func New(thunk func() error, opts ...Option) *Task {
	t := &Task{thunk: thunk, done: make(chan struct{})}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Message returns the task's label, for logging.
func (t *Task) Message() string { return t.msg }

// WaitForFrontTasksComplete blocks until every declared front task has
// signaled completion. Safe to call concurrently with Execute of a
// different task; each front task's completion channel may be awaited by
// any number of dependents.
func (t *Task) WaitForFrontTasksComplete() {
	for _, f := range t.front {
		<-f.done
	}
}

// Execute waits for front tasks, then runs the thunk exactly once and
// signals completion regardless of outcome (success, non-zero/failing
// return, or panic recovered by the caller). The worker pool is
// responsible for catching panics; Execute only guarantees the done signal
// always fires.
func (t *Task) Execute() error {
	t.WaitForFrontTasksComplete()
	defer t.signalDone()

	t.mu.Lock()
	if t.ran {
		t.mu.Unlock()
		<-t.done
		err, _ := t.Err()
		return err
	}
	t.ran = true
	t.mu.Unlock()

	err := t.thunk()
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	return err
}

func (t *Task) signalDone() {
	t.doneSet.Do(func() { close(t.done) })
}

// Done returns a channel closed once the task has completed, for use as a
// front-task dependency by other tasks.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the thunk's error after Execute has run; the zero value
// (nil, false) is returned beforehand.
func (t *Task) Err() (error, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err, t.ran
}
