// Package enginepool implements the bounded producer/consumer executor
// pipeline stages submit their tasks to: a fixed worker count, a backlog
// capped at twice the worker count, and two condition variables guarding
// the shared queue. The trans-data helper uses the same mutex plus
// notFull/notEmpty discipline for its own queue.
package enginepool

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/cambricon/inferpipe/internal/metrics"
	"github.com/cambricon/inferpipe/internal/task"
	"github.com/cambricon/inferpipe/pkg/lifecycle"
)

// ErrorHandler is invoked for every panic or non-nil task.Execute error a
// worker observes. The default handler logs at error level.
type ErrorHandler func(err error)

// Pool is a bounded multi-producer/multi-consumer task executor.
type Pool struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	queue    []*task.Task
	cap      int

	running atomic.Bool
	once    *lifecycle.Once
	workers sync.WaitGroup

	errHandler atomic.Value // ErrorHandler
	log        *zap.Logger
	met        *metrics.Registry
}

// Option configures a Pool at construction.
type Option func(*Pool)

// WithMetrics attaches a metrics.Registry the pool reports
// inferpipe_tasks_executed/inferpipe_tasks_failed/inferpipe_queue_depth
// against. A nil registry disables metrics for this pool.
func WithMetrics(reg *metrics.Registry) Option {
	return func(p *Pool) { p.met = reg }
}

// New constructs an un-started Pool. Call Init before submitting tasks.
func New(log *zap.Logger, opts ...Option) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pool{once: lifecycle.NewOnce(), log: log}
	p.notFull = sync.NewCond(&p.mu)
	p.notEmpty = sync.NewCond(&p.mu)
	p.errHandler.Store(ErrorHandler(p.defaultErrorHandler))
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Pool) defaultErrorHandler(err error) {
	p.log.Error("unhandled inference task error", zap.Error(err))
}

// SetErrorHandler registers the sink invoked for task panics and failures.
// A nil fn restores the default (log-to-stderr-equivalent) handler.
func (p *Pool) SetErrorHandler(fn ErrorHandler) {
	if fn == nil {
		fn = p.defaultErrorHandler
	}
	p.errHandler.Store(fn)
}

func (p *Pool) errorHandler() ErrorHandler {
	return p.errHandler.Load().(ErrorHandler)
}

// Init starts nWorkers worker goroutines and sets the backlog cap to
// 2*nWorkers. Init is idempotent: calling it again after the pool has
// already started is a no-op.
func (p *Pool) Init(nWorkers int) error {
	return p.once.Start(func() error {
		p.mu.Lock()
		p.cap = 2 * nWorkers
		p.mu.Unlock()

		p.running.Store(true)
		p.workers.Add(nWorkers)
		for i := 0; i < nWorkers; i++ {
			go p.workerLoop()
		}
		return nil
	})
}

// Submit enqueues a single task, blocking while the backlog is at
// capacity. If the pool stops running while Submit is waiting, it returns
// without enqueueing; a submit after shutdown is silently dropped.
func (p *Pool) Submit(t *task.Task) {
	if t == nil {
		return
	}
	p.mu.Lock()
	for len(p.queue) >= p.cap && p.running.Load() {
		p.notFull.Wait()
	}
	if !p.running.Load() {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, t)
	depth := len(p.queue)
	p.mu.Unlock()
	p.met.SetQueueDepth("pool", depth)
	p.notEmpty.Signal()
}

// SubmitAll submits tasks in iteration order, preserving FIFO ordering for
// a single-producer caller.
func (p *Pool) SubmitAll(tasks []*task.Task) {
	for _, t := range tasks {
		p.Submit(t)
	}
}

// Len reports the current backlog depth, for tests and metrics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// IsRunning reports whether the pool is currently accepting and executing
// tasks.
func (p *Pool) IsRunning() bool { return p.running.Load() }

func (p *Pool) popTask() *task.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 && p.running.Load() {
		p.notEmpty.Wait()
	}
	if !p.running.Load() {
		return nil
	}
	t := p.queue[0]
	p.queue = p.queue[1:]
	depth := len(p.queue)
	p.notFull.Signal()
	p.met.SetQueueDepth("pool", depth)
	return t
}

func (p *Pool) workerLoop() {
	defer p.workers.Done()
	for {
		t := p.popTask()
		if t == nil {
			return
		}
		p.runGuarded(t)
	}
}

// runGuarded executes t, forwarding panics and non-nil errors to the
// installed error handler. The worker survives either outcome and moves on
// to the next task.
func (p *Pool) runGuarded(t *task.Task) {
	defer p.met.IncTasksExecuted("pool")
	defer func() {
		if r := recover(); r != nil {
			p.met.IncTasksFailed("pool")
			p.errorHandler()(fmt.Errorf("inference task panicked: %v", r))
		}
	}()

	if err := t.Execute(); err != nil {
		p.met.IncTasksFailed("pool")
		msg := t.Message()
		if msg == "" {
			p.errorHandler()(err)
		} else {
			p.errorHandler()(fmt.Errorf("task %q failed: %w", msg, err))
		}
	}
}

// Destroy stops accepting new work, wakes any blocked Submit/pop calls,
// lets in-flight tasks run to completion, joins every worker, and drops
// whatever remains queued. Destroy is idempotent: calling it twice is
// equivalent to calling it once, the same guarantee pkg/lifecycle.Once
// gives every other stoppable component in this module.
func (p *Pool) Destroy() error {
	return p.once.Stop(func() error {
		p.running.Store(false)

		p.mu.Lock()
		p.notFull.Broadcast()
		p.notEmpty.Broadcast()
		p.mu.Unlock()

		p.workers.Wait()

		p.mu.Lock()
		p.queue = nil
		p.mu.Unlock()
		return nil
	})
}
