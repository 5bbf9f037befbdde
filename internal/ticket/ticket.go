// Package ticket implements the FIFO ticket-arbitration server that every
// pipeline resource is built on.
//
// A Ticket is a one-shot wait point, the same "close a channel exactly once"
// idiom pkg/lifecycle.Once uses for its startCh/stopCh: Call closes the
// channel, and any number of goroutines can Wait on it without blocking once
// it's closed.
package ticket

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cambricon/inferpipe/internal/metrics"
)

// ErrInvariantViolation names the class of error for a server's bookkeeping
// breaking one of its invariants. No Server method returns it:
// Server.PickUpNewTicket reports such a break only through its logger's
// DPanic and then continues.
var ErrInvariantViolation = errors.New("ticket: queuing server invariant violation")

// Ticket is a totally-ordered, one-shot permission to use a resource.
type Ticket struct {
	seq  uint64
	done chan struct{}
}

func newTicket(seq uint64) *Ticket {
	return &Ticket{seq: seq, done: make(chan struct{})}
}

// Seq returns the ticket's issuance order, used only for observability and
// tests.
func (t *Ticket) Seq() uint64 { return t.seq }

// Wait blocks until the ticket has been called.
func (t *Ticket) Wait() { <-t.done }

// call fulfills the ticket. Must be called at most once per ticket.
func (t *Ticket) call() { close(t.done) }

// entry is a ticket as tracked inside the server's queue: the ticket itself
// plus how many extra holders (beyond the first) are sharing it via
// reservation.
type entry struct {
	ticket        *Ticket
	reservedCount int
}

// Server arbitrates FIFO access to one logical resource. The zero value is
// not usable; construct with New.
type Server struct {
	mu       sync.Mutex
	queue    []*entry
	reserved bool
	nextSeq  uint64

	log  *zap.Logger
	name string
	met  *metrics.Registry
}

// Option configures a Server.
type Option interface {
	apply(*Server)
}

type optionFunc func(*Server)

func (f optionFunc) apply(s *Server) { f(s) }

// WithLogger attaches a logger used to report invariant violations. Defaults
// to zap.NewNop().
func WithLogger(log *zap.Logger) Option {
	return optionFunc(func(s *Server) { s.log = log })
}

// WithMetrics attaches a metrics.Registry and the resource name this server
// arbitrates, so issued/completed tickets are reflected in
// inferpipe_tickets_issued/inferpipe_tickets_completed. A nil registry is
// safe and simply disables metrics for this server.
func WithMetrics(reg *metrics.Registry, resourceName string) Option {
	return optionFunc(func(s *Server) {
		s.met = reg
		s.name = resourceName
	})
}

// New constructs a Server.
func New(opts ...Option) *Server {
	s := &Server{log: zap.NewNop()}
	for _, o := range opts {
		o.apply(s)
	}
	return s
}

// Len reports the number of live tickets currently queued. Exposed for
// tests exercising the reservation invariants.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// PickUpTicket returns the current reserved ticket if one is held,
// otherwise issues a new one appended to the queue. If reserve is true, the
// returned ticket is marked reserved (its reservedCount is bumped) so the
// next PickUpTicket call returns the same ticket instead of minting a new
// one.
func (s *Server) PickUpTicket(reserve bool) *Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t *Ticket
	if s.reserved {
		t = s.queue[len(s.queue)-1].ticket
	} else {
		t = s.pushNewLocked()
	}

	if reserve {
		s.queue[len(s.queue)-1].reservedCount++
		s.reserved = true
	} else {
		s.reserved = false
	}
	return t
}

// PickUpNewTicket forces the creation of a new ticket regardless of any
// outstanding reservation. If the previous ticket was reserved, that
// reservation is consumed first: a zero reservedCount pops it from the
// queue (there must be no other holders; anything else is an invariant
// violation, logged and not fatal), otherwise reservedCount is decremented
// in place.
func (s *Server) PickUpNewTicket(reserve bool) *Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reserved {
		tail := s.queue[len(s.queue)-1]
		if tail.reservedCount == 0 {
			if len(s.queue) != 1 {
				s.log.DPanic("internal error: consuming a drained reservation with other tickets live",
					zap.Int("queueLen", len(s.queue)))
			}
			s.popFrontLocked()
		} else {
			tail.reservedCount--
		}
		s.reserved = false
	}

	t := s.pushNewLocked()
	if reserve {
		s.queue[len(s.queue)-1].reservedCount++
		s.reserved = true
	}
	return t
}

// DeallingDone releases the head ticket's claim: if its reservedCount is
// zero it is popped and the new head (if any) is called; otherwise
// reservedCount is decremented in place. No-op on an empty queue.
func (s *Server) DeallingDone() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return
	}
	head := s.queue[0]
	if head.reservedCount == 0 {
		s.popFrontLocked()
		s.callHeadLocked()
	} else {
		head.reservedCount--
	}
	s.met.IncTicketsCompleted(s.name)
}

// WaitByTicket blocks until t has been called.
func (s *Server) WaitByTicket(t *Ticket) { t.Wait() }

func (s *Server) pushNewLocked() *Ticket {
	t := newTicket(s.nextSeq)
	s.nextSeq++
	s.queue = append(s.queue, &entry{ticket: t})
	if len(s.queue) == 1 {
		s.callHeadLocked()
	}
	s.met.IncTicketsIssued(s.name)
	return t
}

func (s *Server) popFrontLocked() {
	s.queue = s.queue[1:]
}

func (s *Server) callHeadLocked() {
	if len(s.queue) > 0 {
		s.queue[0].ticket.call()
	}
}
