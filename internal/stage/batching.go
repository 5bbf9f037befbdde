// Package stage implements the two pipeline stage shapes every batch moves
// through: the per-frame batching stage that buffers a frame into a shared
// IOResource, and the four per-batch batching-done stages that drive H2D
// transfer, inference, D2H transfer, and post-processing.
package stage

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cambricon/inferpipe/internal/frame"
	"github.com/cambricon/inferpipe/internal/resource"
	"github.com/cambricon/inferpipe/internal/task"
)

// Batching emits one task per frame, claiming a ticket on the shared
// output resource and only fully releasing it once the batch is complete.
type Batching struct {
	mu        sync.Mutex
	batchSize int
	batchIdx  int
	outputRes *resource.IOResource
	clock     Clock
	log       *zap.Logger
}

// BatchingOption configures a Batching stage.
type BatchingOption func(*Batching)

// WithBatchingClock overrides the simulated-latency clock.
func WithBatchingClock(c Clock) BatchingOption {
	return func(b *Batching) { b.clock = c }
}

// WithBatchingLogger overrides the stage's logger.
func WithBatchingLogger(log *zap.Logger) BatchingOption {
	return func(b *Batching) { b.log = log }
}

// NewBatching constructs a Batching stage over outputRes, which must have
// been sized to batchSize.
func NewBatching(batchSize int, outputRes *resource.IOResource, opts ...BatchingOption) *Batching {
	b := &Batching{
		batchSize: batchSize,
		outputRes: outputRes,
		clock:     RealClock,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Reset rewinds the batch index to zero, called once a batch has been
// fully handed off downstream.
func (b *Batching) Reset() {
	b.mu.Lock()
	b.batchIdx = 0
	b.mu.Unlock()
}

// Batching claims a ticket on the output resource for f and returns a task
// that, once scheduled, waits for that ticket, writes f's slot, and
// releases the claim. The last frame in a batch does not reserve its
// ticket across siblings; it's the one that triggers the hand-off.
func (b *Batching) Batching(f frame.Frame) *task.Task {
	b.mu.Lock()
	reserve := b.batchIdx+1 != b.batchSize
	bidx := b.batchIdx
	b.batchIdx = (b.batchIdx + 1) % b.batchSize
	b.mu.Unlock()

	t := b.outputRes.PickUpTicket(reserve)

	return task.New(func() error {
		value := b.outputRes.WaitResourceByTicket(t)
		b.processOneFrame(f, bidx, value)
		b.outputRes.DeallingDone()
		return nil
	}, task.WithMessage(fmt.Sprintf("batching bidx=%d", bidx)))
}

func (b *Batching) processOneFrame(f frame.Frame, bidx int, value *resource.IOValue) {
	b.clock.Sleep(50 * time.Millisecond)
	if bidx < len(value.Slots) {
		value.Slots[bidx] = int32(f.ItemIndex)
	}
	b.log.Debug("batching stage processed frame",
		zap.Int("bidx", bidx),
		zap.Int("batchIndex", f.BatchIndex),
		zap.Int("itemIndex", f.ItemIndex))
}
