package ticket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertCalledWithin(t *testing.T, tk *Ticket, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		tk.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("ticket was never called")
	}
}

func assertNotCalled(t *testing.T, tk *Ticket, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		tk.Wait()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("ticket was called, expected it to remain pending")
	case <-time.After(d):
	}
}

func TestFirstTicketCalledImmediately(t *testing.T) {
	s := New()
	tk := s.PickUpTicket(false)
	assertCalledWithin(t, tk, 50*time.Millisecond)
	assert.Equal(t, 1, s.Len())
}

func TestSecondTicketPendingUntilDeallingDone(t *testing.T) {
	s := New()
	first := s.PickUpTicket(false)
	second := s.PickUpTicket(false)

	assertCalledWithin(t, first, 50*time.Millisecond)
	assertNotCalled(t, second, 20*time.Millisecond)
	assert.Equal(t, 2, s.Len())

	s.DeallingDone()
	assertCalledWithin(t, second, 50*time.Millisecond)
	assert.Equal(t, 1, s.Len())
}

func TestReservationSharesTicketAcrossSiblings(t *testing.T) {
	s := New()

	first := s.PickUpTicket(true)
	second := s.PickUpTicket(true)
	third := s.PickUpTicket(false) // last sibling does not reserve

	assert.Same(t, first, second)
	assert.Same(t, second, third)
	assertCalledWithin(t, third, 50*time.Millisecond)

	// S5: queue length stays at 1 across reservation pickups.
	assert.Equal(t, 1, s.Len())
}

func TestReservationProbeS5(t *testing.T) {
	s := New()

	for i := 0; i < 3; i++ {
		tk := s.PickUpTicket(true)
		assertCalledWithin(t, tk, 50*time.Millisecond)
		assert.Equal(t, 1, s.Len())
	}
	for i := 0; i < 3; i++ {
		s.DeallingDone()
		assert.Equal(t, 1, s.Len())
	}

	next := s.PickUpNewTicket(false)
	assertCalledWithin(t, next, 50*time.Millisecond)
	assert.Equal(t, 1, s.Len())
}

func TestPickUpNewTicketEndsPreviousHoldersClaim(t *testing.T) {
	s := New()
	a := s.PickUpTicket(true)
	assertCalledWithin(t, a, 50*time.Millisecond)

	b := s.PickUpNewTicket(false)
	require.NotSame(t, a, b)
	// reserve(true) bumped a's reservedCount to 1, so PickUpNewTicket
	// consumes that reservation by decrementing it to 0 instead of popping
	// a; b stays pending behind a.
	assertNotCalled(t, b, 20*time.Millisecond)
	assert.Equal(t, 2, s.Len())

	s.DeallingDone() // a's reservedCount is 0, so a is popped and b is called
	assertCalledWithin(t, b, 50*time.Millisecond)
	assert.Equal(t, 1, s.Len())
}

func TestFIFOOrdering(t *testing.T) {
	s := New()
	var tickets []*Ticket
	for i := 0; i < 5; i++ {
		tickets = append(tickets, s.PickUpTicket(false))
	}

	for i, tk := range tickets {
		if i == 0 {
			assertCalledWithin(t, tk, 50*time.Millisecond)
		} else {
			assertNotCalled(t, tk, 10*time.Millisecond)
		}
	}

	for i, tk := range tickets {
		_ = i
		assertCalledWithin(t, tk, 50*time.Millisecond)
		s.DeallingDone()
	}
}
