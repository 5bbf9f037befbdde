// Package transhelper implements the downstream hand-off queue a pipeline
// feeds completed frames through: a bounded FIFO drained by a single
// goroutine that blocks on each frame's waitcard before handing the frame
// to a consumer callback.
package transhelper

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/cambricon/inferpipe/internal/frame"
	"github.com/cambricon/inferpipe/internal/metrics"
	"github.com/cambricon/inferpipe/internal/waitcard"
	"github.com/cambricon/inferpipe/pkg/lifecycle"
)

// Item is a frame paired with the card signaling when its processing has
// completed.
type Item struct {
	Frame frame.Frame
	Card  *waitcard.Card
}

// Consumer receives frames in submission order, once each has resolved.
type Consumer func(frame.Frame)

// Helper is the bounded FIFO: one sync.Mutex, two sync.Cond ("notFull",
// "notEmpty") guarding a slice-backed queue, the same discipline
// internal/enginepool uses for its task backlog.
type Helper struct {
	mu        sync.Mutex
	notFull   *sync.Cond
	notEmpty  *sync.Cond
	queue     []Item
	cap       int
	batchSize int

	running atomic.Bool
	stop    chan struct{}
	once    *lifecycle.Once
	wg      sync.WaitGroup

	consumer Consumer
	log      *zap.Logger
	met      *metrics.Registry
}

// Option configures a Helper at construction.
type Option func(*Helper)

// WithMetrics attaches a metrics.Registry the helper reports
// inferpipe_queue_depth["queue"="transhelper"] against. A nil registry
// disables metrics for this helper.
func WithMetrics(reg *metrics.Registry) Option {
	return func(h *Helper) { h.met = reg }
}

// WithQueueMultiple overrides the default 3x backlog multiplier, so
// callers can tune it via Config's HelperQueueMultiplier.
func WithQueueMultiple(multiple int) Option {
	return func(h *Helper) {
		if multiple > 0 {
			h.cap = multiple * h.batchSize
		}
	}
}

// New constructs and starts a Helper whose backlog is capped at
// 3*batchSize. consumer is invoked once per frame, after that frame's card
// resolves; a nil consumer only waits for each card before discarding the
// frame.
func New(batchSize int, consumer Consumer, log *zap.Logger, opts ...Option) *Helper {
	if log == nil {
		log = zap.NewNop()
	}
	if consumer == nil {
		consumer = func(frame.Frame) {}
	}
	h := &Helper{
		batchSize: batchSize,
		cap:       3 * batchSize,
		consumer:  consumer,
		log:       log,
		stop:      make(chan struct{}),
		once:      lifecycle.NewOnce(),
	}
	for _, o := range opts {
		o(h)
	}
	h.notFull = sync.NewCond(&h.mu)
	h.notEmpty = sync.NewCond(&h.mu)

	h.running.Store(true)
	h.wg.Add(1)
	go h.loop()
	_ = h.once.Start(nil)
	return h
}

// SubmitData enqueues item, blocking while the backlog is full. A submit
// that arrives after Close has been called is silently dropped.
func (h *Helper) SubmitData(item Item) {
	h.mu.Lock()
	for len(h.queue) >= h.cap && h.running.Load() {
		h.notFull.Wait()
	}
	if !h.running.Load() {
		h.mu.Unlock()
		return
	}
	h.queue = append(h.queue, item)
	depth := len(h.queue)
	h.mu.Unlock()
	h.met.SetQueueDepth("transhelper", depth)
	h.notEmpty.Signal()
}

// Len reports the current backlog depth, for tests and metrics.
func (h *Helper) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}

func (h *Helper) popItem() (Item, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for len(h.queue) == 0 && h.running.Load() {
		h.notEmpty.Wait()
	}
	if !h.running.Load() {
		return Item{}, false
	}
	item := h.queue[0]
	h.queue = h.queue[1:]
	depth := len(h.queue)
	h.notFull.Signal()
	h.met.SetQueueDepth("transhelper", depth)
	return item, true
}

func (h *Helper) loop() {
	defer h.wg.Done()
	for {
		item, ok := h.popItem()
		if !ok {
			return
		}
		// A card belonging to a batch that never flushed may never resolve;
		// shutdown must still be able to join this goroutine.
		select {
		case <-item.Card.Done():
		case <-h.stop:
			return
		}
		h.log.Debug("trans data helper delivering frame",
			zap.Int("batchIndex", item.Frame.BatchIndex),
			zap.Int("itemIndex", item.Frame.ItemIndex))
		h.consumer(item.Frame)
	}
}

// Close stops accepting new items, wakes the drain goroutine, and joins
// it. Frames still queued when the running flag flips, and a frame whose
// card the drain goroutine is still waiting on, are discarded without
// invoking the consumer; this covers frames of a partial batch that never
// flushed and frames whose tasks the pool dropped when it was destroyed.
func (h *Helper) Close() error {
	return h.once.Stop(func() error {
		h.running.Store(false)
		close(h.stop)
		h.mu.Lock()
		h.notFull.Broadcast()
		h.notEmpty.Broadcast()
		h.mu.Unlock()
		h.wg.Wait()

		h.mu.Lock()
		h.queue = nil
		h.mu.Unlock()
		return nil
	})
}
