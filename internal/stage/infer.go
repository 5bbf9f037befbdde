package stage

import (
	"time"

	"go.uber.org/zap"

	"github.com/cambricon/inferpipe/internal/resource"
	"github.com/cambricon/inferpipe/internal/task"
)

// Infer is the accelerator-inference stage: one task per batch, reading
// the MLU-side input resource and writing the MLU-side output resource.
// Its simulated latency is by far the largest of the four stages, standing
// in for a real accelerator invocation.
type Infer struct {
	batchSize    int
	mluInputRes  *resource.IOResource
	mluOutputRes *resource.IOResource
	clock        Clock
	log          *zap.Logger
}

// InferOption configures an Infer stage.
type InferOption func(*Infer)

// WithInferClock overrides the simulated-latency clock.
func WithInferClock(c Clock) InferOption { return func(s *Infer) { s.clock = c } }

// WithInferLogger overrides the stage's logger.
func WithInferLogger(log *zap.Logger) InferOption { return func(s *Infer) { s.log = log } }

// NewInfer constructs an Infer batching-done stage.
func NewInfer(batchSize int, mluInputRes, mluOutputRes *resource.IOResource, opts ...InferOption) *Infer {
	s := &Infer{batchSize: batchSize, mluInputRes: mluInputRes, mluOutputRes: mluOutputRes, clock: RealClock, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// BatchingDone submits the inference task for a completed batch.
func (s *Infer) BatchingDone(in BatchingDoneInput) []*task.Task {
	inputTicket := s.mluInputRes.PickUpNewTicket(false)
	outputTicket := s.mluOutputRes.PickUpNewTicket(false)

	t := task.New(func() error {
		_ = s.mluInputRes.WaitResourceByTicket(inputTicket)
		_ = s.mluOutputRes.WaitResourceByTicket(outputTicket)
		s.clock.Sleep(800 * time.Millisecond)

		for _, fc := range in {
			s.log.Debug("infer batching done", zap.Int64("timestamp", fc.Frame.TimeStamp))
		}

		s.mluInputRes.DeallingDone()
		s.mluOutputRes.DeallingDone()
		return nil
	}, task.WithMessage("infer batching done"))

	return []*task.Task{t}
}
