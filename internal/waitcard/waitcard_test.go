package waitcard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func resolved(c *Card) bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}

func TestCardResolvesOnlyAfterEveryHolderReleases(t *testing.T) {
	card, done := New(3)

	done.Release()
	done.Release()
	assert.False(t, resolved(card), "card resolved with a holder outstanding")

	done.Release()
	assert.True(t, resolved(card))
}

func TestAddRegistersLateHolders(t *testing.T) {
	card, done := New(1)
	done.Add(1)

	done.Release()
	assert.False(t, resolved(card))

	done.Release()
	assert.True(t, resolved(card))
}

func TestWaitForCallBlocksUntilResolved(t *testing.T) {
	card, done := New(1)

	waited := make(chan struct{})
	go func() {
		card.WaitForCall()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("WaitForCall returned before the holder released")
	case <-time.After(20 * time.Millisecond):
	}

	done.Release()

	select {
	case <-waited:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("WaitForCall never returned after the last release")
	}
}
