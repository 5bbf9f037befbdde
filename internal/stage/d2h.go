package stage

import (
	"time"

	"go.uber.org/zap"

	"github.com/cambricon/inferpipe/internal/resource"
	"github.com/cambricon/inferpipe/internal/task"
)

// D2H is the device-to-host transfer stage: one task per batch,
// reading the MLU-side output resource and writing the CPU-side output
// resource that Postprocess ultimately consumes.
type D2H struct {
	batchSize    int
	mluOutputRes *resource.IOResource
	cpuOutputRes *resource.IOResource
	clock        Clock
	log          *zap.Logger
}

// D2HOption configures a D2H stage.
type D2HOption func(*D2H)

// WithD2HClock overrides the simulated-latency clock.
func WithD2HClock(c Clock) D2HOption { return func(s *D2H) { s.clock = c } }

// WithD2HLogger overrides the stage's logger.
func WithD2HLogger(log *zap.Logger) D2HOption { return func(s *D2H) { s.log = log } }

// NewD2H constructs a D2H batching-done stage.
func NewD2H(batchSize int, mluOutputRes, cpuOutputRes *resource.IOResource, opts ...D2HOption) *D2H {
	s := &D2H{batchSize: batchSize, mluOutputRes: mluOutputRes, cpuOutputRes: cpuOutputRes, clock: RealClock, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// BatchingDone submits the D2H transfer task for a completed batch.
func (s *D2H) BatchingDone(in BatchingDoneInput) []*task.Task {
	mluTicket := s.mluOutputRes.PickUpNewTicket(false)
	cpuTicket := s.cpuOutputRes.PickUpNewTicket(false)

	t := task.New(func() error {
		_ = s.mluOutputRes.WaitResourceByTicket(mluTicket)
		_ = s.cpuOutputRes.WaitResourceByTicket(cpuTicket)
		s.clock.Sleep(100 * time.Millisecond)

		for _, fc := range in {
			s.log.Debug("d2h batching done", zap.Int64("timestamp", fc.Frame.TimeStamp))
		}

		s.mluOutputRes.DeallingDone()
		s.cpuOutputRes.DeallingDone()
		return nil
	}, task.WithMessage("d2h batching done"))

	return []*task.Task{t}
}
