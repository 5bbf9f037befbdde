// Package resource implements the typed buffer resource every pipeline
// stage contends for.
//
// A Resource wraps a ticket.Server with a value that's allocated once and
// mutated in place by whichever stage currently holds the head ticket.
package resource

import (
	"github.com/cambricon/inferpipe/internal/ticket"
)

// Resource arbitrates access to a value of type T via an embedded ticket
// server. Only the holder of the current head ticket may read or mutate
// Value() at any given time.
type Resource[T any] struct {
	*ticket.Server

	value T
}

// New constructs a Resource around an already-allocated value. The value is
// allocated exactly once, here, and never replaced; only mutation of its
// contents is arbitrated by tickets.
func New[T any](value T, opts ...ticket.Option) *Resource[T] {
	return &Resource[T]{Server: ticket.New(opts...), value: value}
}

// WaitResourceByTicket awaits t, then returns the resource's value. The
// caller may read or mutate the value only while it continues to hold a
// live (uncalled-done) claim on t.
func (r *Resource[T]) WaitResourceByTicket(t *ticket.Ticket) T {
	r.WaitByTicket(t)
	return r.value
}

// GetDataDirectly returns the value without waiting on any ticket. Intended
// for tests and introspection only; regular stages must go through
// WaitResourceByTicket.
func (r *Resource[T]) GetDataDirectly() T {
	return r.value
}

// IOValue is the buffer a pipeline resource allocates: one slot buffer of
// exactly batchsize cells, one per frame in a batch.
type IOValue struct {
	Slots     []int32
	BatchSize int
}

// IOResource is the concrete buffer resource shared by the H2D/Infer/D2H
// and CPU input/output stages.
type IOResource = Resource[*IOValue]

// NewIOResource allocates an IOResource sized to batchsize.
func NewIOResource(batchsize int, opts ...ticket.Option) *IOResource {
	return New(&IOValue{
		Slots:     make([]int32, batchsize),
		BatchSize: batchsize,
	}, opts...)
}
