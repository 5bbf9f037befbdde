package stage

import (
	"time"

	"go.uber.org/zap"

	"github.com/cambricon/inferpipe/internal/resource"
	"github.com/cambricon/inferpipe/internal/task"
)

// H2D is the host-to-device transfer stage: one task per batch,
// claiming fresh tickets on the CPU-side input resource it reads from and
// the MLU-side input resource it writes into.
type H2D struct {
	batchSize   int
	cpuInputRes *resource.IOResource
	mluInputRes *resource.IOResource
	clock       Clock
	log         *zap.Logger
}

// H2DOption configures an H2D stage.
type H2DOption func(*H2D)

// WithH2DClock overrides the simulated-latency clock.
func WithH2DClock(c Clock) H2DOption { return func(s *H2D) { s.clock = c } }

// WithH2DLogger overrides the stage's logger.
func WithH2DLogger(log *zap.Logger) H2DOption { return func(s *H2D) { s.log = log } }

// NewH2D constructs an H2D batching-done stage.
func NewH2D(batchSize int, cpuInputRes, mluInputRes *resource.IOResource, opts ...H2DOption) *H2D {
	s := &H2D{batchSize: batchSize, cpuInputRes: cpuInputRes, mluInputRes: mluInputRes, clock: RealClock, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// BatchingDone submits the H2D transfer for a completed batch.
func (s *H2D) BatchingDone(in BatchingDoneInput) []*task.Task {
	cpuTicket := s.cpuInputRes.PickUpNewTicket(false)
	mluTicket := s.mluInputRes.PickUpNewTicket(false)

	t := task.New(func() error {
		_ = s.cpuInputRes.WaitResourceByTicket(cpuTicket)
		_ = s.mluInputRes.WaitResourceByTicket(mluTicket)
		s.clock.Sleep(100 * time.Millisecond)

		for _, fc := range in {
			s.log.Debug("h2d batching done", zap.Int64("timestamp", fc.Frame.TimeStamp))
		}

		s.cpuInputRes.DeallingDone()
		s.mluInputRes.DeallingDone()
		return nil
	}, task.WithMessage("h2d batching done"))

	return []*task.Task{t}
}
