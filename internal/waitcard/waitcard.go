// Package waitcard implements the downstream completion signal handed back
// by Engine.FeedData.
//
// A Card is a one-shot wait point backed by the same "close a channel
// exactly once" idiom internal/ticket and pkg/lifecycle already use.
// AutoSetDone is its write side: a reference-counted guard so more than one
// stage task can share responsibility for a single frame's completion
// signal without coordinating directly with each other.
package waitcard

import (
	"sync"

	"go.uber.org/atomic"
)

// Card is the read side of a frame's completion signal.
type Card struct {
	done chan struct{}
}

// WaitForCall blocks until every holder of the paired AutoSetDone has
// called Release.
func (c *Card) WaitForCall() { <-c.done }

// Done returns the underlying channel, for use in select statements
// alongside other wait conditions (e.g. a shutdown signal).
func (c *Card) Done() <-chan struct{} { return c.done }

// AutoSetDone is the write side: a reference count that, once it reaches
// zero, closes the card's channel exactly once.
type AutoSetDone struct {
	done      chan struct{}
	count     atomic.Int32
	closeOnce sync.Once
}

// New constructs a linked Card/AutoSetDone pair. initialHolders is the
// number of independent call sites that must each call Release before the
// card resolves; it must be at least 1.
func New(initialHolders int32) (*Card, *AutoSetDone) {
	done := make(chan struct{})
	a := &AutoSetDone{done: done}
	a.count.Store(initialHolders)
	return &Card{done: done}, a
}

// Add registers delta additional holders that must Release before the card
// resolves. Used when a frame fans out into more tasks than were known when
// the card was created.
func (a *AutoSetDone) Add(delta int32) { a.count.Add(delta) }

// Release drops one holder's claim. Once every holder has released, the
// paired Card's channel closes.
func (a *AutoSetDone) Release() {
	if a.count.Dec() == 0 {
		a.closeOnce.Do(func() { close(a.done) })
	}
}
