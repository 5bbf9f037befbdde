package stage

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cambricon/inferpipe/internal/resource"
	"github.com/cambricon/inferpipe/internal/task"
	"github.com/cambricon/inferpipe/internal/ticket"
)

// Postprocess is the terminal stage: one task per frame, each claiming the
// CPU-side output resource in turn via the same reservation-chain trick
// Batching uses. The first frame in the batch mints a fresh reservation
// with PickUpNewTicket(true), every subsequent frame rides it with
// PickUpTicket(true). Each task releases its frame's completion guard once
// it actually finishes processing that frame's slot, which is when the
// frame's caller learns it is done.
type Postprocess struct {
	batchSize    int
	cpuOutputRes *resource.IOResource
	clock        Clock
	log          *zap.Logger
}

// PostprocessOption configures a Postprocess stage.
type PostprocessOption func(*Postprocess)

// WithPostprocessClock overrides the simulated-latency clock.
func WithPostprocessClock(c Clock) PostprocessOption { return func(s *Postprocess) { s.clock = c } }

// WithPostprocessLogger overrides the stage's logger.
func WithPostprocessLogger(log *zap.Logger) PostprocessOption {
	return func(s *Postprocess) { s.log = log }
}

// NewPostprocess constructs a Postprocess batching-done stage.
func NewPostprocess(batchSize int, cpuOutputRes *resource.IOResource, opts ...PostprocessOption) *Postprocess {
	s := &Postprocess{batchSize: batchSize, cpuOutputRes: cpuOutputRes, clock: RealClock, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// BatchingDone submits one post-processing task per frame in the batch.
func (s *Postprocess) BatchingDone(in BatchingDoneInput) []*task.Task {
	tasks := make([]*task.Task, 0, len(in))

	for bidx, fc := range in {
		bidx, fc := bidx, fc

		var tk *ticket.Ticket
		if bidx == 0 {
			tk = s.cpuOutputRes.PickUpNewTicket(true)
		} else {
			tk = s.cpuOutputRes.PickUpTicket(true)
		}

		tsk := task.New(func() error {
			value := s.cpuOutputRes.WaitResourceByTicket(tk)
			s.clock.Sleep(50 * time.Millisecond)

			s.log.Debug("postprocessing batching done",
				zap.Int("bidx", bidx),
				zap.Int64("timestamp", fc.Frame.TimeStamp))
			_ = value

			s.cpuOutputRes.DeallingDone()
			if fc.Done != nil {
				fc.Done.Release()
			}
			return nil
		}, task.WithMessage(fmt.Sprintf("postprocess bidx=%d", bidx)))

		tasks = append(tasks, tsk)
	}

	return tasks
}
