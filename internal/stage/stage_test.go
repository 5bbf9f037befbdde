package stage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cambricon/inferpipe/internal/frame"
	"github.com/cambricon/inferpipe/internal/resource"
	"github.com/cambricon/inferpipe/internal/waitcard"
)

type fakeClock struct{}

func (fakeClock) Sleep(time.Duration) {}

func TestBatchingClaimsTicketsAndWritesSlots(t *testing.T) {
	const batchSize = 3
	out := resource.NewIOResource(batchSize)
	b := NewBatching(batchSize, out, WithBatchingClock(fakeClock{}))

	tasks := make([]interface{ Execute() error }, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		tk := b.Batching(frame.Frame{ItemIndex: i})
		tasks = append(tasks, tk)
	}

	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for _, tk := range tasks {
		tk := tk
		go func() {
			defer wg.Done()
			require.NoError(t, tk.Execute())
		}()
	}
	wg.Wait()

	v := out.GetDataDirectly()
	assert.Equal(t, []int32{0, 1, 2}, v.Slots)
}

func TestBatchingResetRewindsIndex(t *testing.T) {
	out := resource.NewIOResource(2)
	b := NewBatching(2, out, WithBatchingClock(fakeClock{}))
	require.NoError(t, b.Batching(frame.Frame{}).Execute())
	require.NoError(t, b.Batching(frame.Frame{}).Execute())
	b.Reset()
	assert.Equal(t, 0, b.batchIdx)
}

func TestH2DBatchingDoneReleasesBothResources(t *testing.T) {
	cpu := resource.NewIOResource(1)
	mlu := resource.NewIOResource(1)
	s := NewH2D(1, cpu, mlu, WithH2DClock(fakeClock{}))

	tasks := s.BatchingDone(BatchingDoneInput{{Frame: frame.Frame{TimeStamp: 1}}})
	require.Len(t, tasks, 1)
	require.NoError(t, tasks[0].Execute())

	next := cpu.PickUpTicket(false)
	select {
	case <-nextDone(next):
	case <-time.After(100 * time.Millisecond):
		t.Fatal("cpu input resource never released after H2D task ran")
	}

	nextMLU := mlu.PickUpTicket(false)
	select {
	case <-nextDone(nextMLU):
	case <-time.After(100 * time.Millisecond):
		t.Fatal("mlu input resource never released after H2D task ran")
	}
}

func nextDone(t interface{ Wait() }) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		t.Wait()
		close(done)
	}()
	return done
}

func TestPostprocessReleasesWaitCardPerFrame(t *testing.T) {
	const batchSize = 2
	cpuOut := resource.NewIOResource(batchSize)
	s := NewPostprocess(batchSize, cpuOut, WithPostprocessClock(fakeClock{}))

	cards := make([]*waitcard.Card, batchSize)
	input := make(BatchingDoneInput, batchSize)
	for i := 0; i < batchSize; i++ {
		card, done := waitcard.New(1)
		cards[i] = card
		input[i] = FrameCard{Frame: frame.Frame{ItemIndex: i}, Done: done}
	}

	tasks := s.BatchingDone(input)
	require.Len(t, tasks, batchSize)

	for _, tk := range tasks {
		require.NoError(t, tk.Execute())
	}

	for i, card := range cards {
		select {
		case <-card.Done():
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("card %d never released", i)
		}
	}
}
