// Package metrics wires the pipeline's ticket servers, worker pool and
// trans-data helper to go.uber.org/net/metrics.
//
// Every exported method is nil-safe: a *Registry obtained from a nil scope
// (the common case in unit tests that don't care about metrics) silently
// discards increments instead of panicking.
package metrics

import (
	"go.uber.org/net/metrics"
)

// Registry is the pipeline's metrics surface: one counter vector per
// resource/stage event, tagged by name, plus a queue-depth gauge vector
// shared by the pool and the trans-data helper.
type Registry struct {
	ticketsIssued    *metrics.CounterVector
	ticketsCompleted *metrics.CounterVector
	tasksExecuted    *metrics.CounterVector
	tasksFailed      *metrics.CounterVector
	queueDepth       *metrics.GaugeVector
}

// New builds a Registry against scope, registering every counter/gauge
// vector it needs. A nil scope yields a nil *Registry whose methods are all
// safe no-ops, so callers that don't care about metrics (most unit tests)
// can pass nil without special-casing it. Callers should construct one
// Registry per Engine and share it across every resource/stage/pool
// instance that engine owns; constructing more than one Registry against
// the same underlying metrics.Root would double-register these names.
func New(scope *metrics.Scope) *Registry {
	if scope == nil {
		return nil
	}

	r := &Registry{}
	r.ticketsIssued, _ = scope.CounterVector(metrics.Spec{
		Name:      "inferpipe_tickets_issued",
		Help:      "Total number of tickets issued by a queuing server.",
		ConstTags: map[string]string{"component": "inferpipe"},
		VarTags:   []string{"resource"},
	})
	r.ticketsCompleted, _ = scope.CounterVector(metrics.Spec{
		Name:      "inferpipe_tickets_completed",
		Help:      "Total number of tickets released via DeallingDone.",
		ConstTags: map[string]string{"component": "inferpipe"},
		VarTags:   []string{"resource"},
	})
	r.tasksExecuted, _ = scope.CounterVector(metrics.Spec{
		Name:      "inferpipe_tasks_executed",
		Help:      "Total number of pipeline tasks executed by the pool.",
		ConstTags: map[string]string{"component": "inferpipe"},
		VarTags:   []string{"stage"},
	})
	r.tasksFailed, _ = scope.CounterVector(metrics.Spec{
		Name:      "inferpipe_tasks_failed",
		Help:      "Total number of pipeline tasks that returned an error or panicked.",
		ConstTags: map[string]string{"component": "inferpipe"},
		VarTags:   []string{"stage"},
	})
	r.queueDepth, _ = scope.GaugeVector(metrics.Spec{
		Name:      "inferpipe_queue_depth",
		Help:      "Current backlog depth of a bounded FIFO queue.",
		ConstTags: map[string]string{"component": "inferpipe"},
		VarTags:   []string{"queue"},
	})
	return r
}

// IncTicketsIssued increments the issued-ticket counter for resource.
func (r *Registry) IncTicketsIssued(resource string) {
	if r == nil {
		return
	}
	incVec(r.ticketsIssued, "resource", resource)
}

// IncTicketsCompleted increments the completed-ticket counter for resource.
func (r *Registry) IncTicketsCompleted(resource string) {
	if r == nil {
		return
	}
	incVec(r.ticketsCompleted, "resource", resource)
}

// IncTasksExecuted increments the executed-task counter for stage.
func (r *Registry) IncTasksExecuted(stage string) {
	if r == nil {
		return
	}
	incVec(r.tasksExecuted, "stage", stage)
}

// IncTasksFailed increments the failed-task counter for stage.
func (r *Registry) IncTasksFailed(stage string) {
	if r == nil {
		return
	}
	incVec(r.tasksFailed, "stage", stage)
}

// SetQueueDepth records the current backlog depth of the named queue.
func (r *Registry) SetQueueDepth(queue string, depth int) {
	if r == nil || r.queueDepth == nil {
		return
	}
	g, err := r.queueDepth.Get("queue", queue)
	if err != nil || g == nil {
		return
	}
	g.Store(int64(depth))
}

func incVec(vec *metrics.CounterVector, tagKey, tagVal string) {
	if vec == nil {
		return
	}
	if c, err := vec.Get(tagKey, tagVal); err == nil && c != nil {
		c.Inc()
	}
}
