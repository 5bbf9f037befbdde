package resource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIOResourceAllocatesExactlyOneSlotPerBatchItem(t *testing.T) {
	r := NewIOResource(4)
	v := r.GetDataDirectly()
	require.NotNil(t, v)
	assert.Len(t, v.Slots, 4)
	assert.Equal(t, 4, v.BatchSize)
}

func TestWaitResourceByTicketBlocksUntilCalled(t *testing.T) {
	r := NewIOResource(2)
	first := r.PickUpTicket(false)
	second := r.PickUpTicket(false)

	gotSecond := make(chan *IOValue, 1)
	go func() {
		gotSecond <- r.WaitResourceByTicket(second)
	}()

	select {
	case <-gotSecond:
		t.Fatal("second ticket resolved before the head ticket was released")
	case <-time.After(20 * time.Millisecond):
	}

	v := r.WaitResourceByTicket(first)
	v.Slots[0] = 7
	r.DeallingDone()

	select {
	case got := <-gotSecond:
		assert.Equal(t, int32(7), got.Slots[0], "resource mutations are visible to the next holder")
	case <-time.After(50 * time.Millisecond):
		t.Fatal("second ticket never resolved after DeallingDone")
	}
}
