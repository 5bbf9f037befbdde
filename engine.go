// Package inferpipe is the scheduling core of an accelerator-backed
// inference serving pipeline: it batches a stream of input frames and
// drives each batch through host-to-device transfer, accelerator
// inference, device-to-host transfer, and per-item post-processing,
// arbitrating contention on each stage's shared buffer with FIFO tickets
// (internal/ticket) and executing the resulting task graph on a bounded
// worker pool (internal/enginepool).
//
// Engine is the single context object owning the feeder state, the four
// resources, the pool, and the trans-data helper; it is constructed by New
// and torn down by Close, which destroys the pool before closing the
// trans-data helper.
package inferpipe

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/net/metrics"
	"go.uber.org/zap"

	"github.com/cambricon/inferpipe/internal/enginepool"
	"github.com/cambricon/inferpipe/internal/frame"
	infermetrics "github.com/cambricon/inferpipe/internal/metrics"
	"github.com/cambricon/inferpipe/internal/resource"
	"github.com/cambricon/inferpipe/internal/stage"
	"github.com/cambricon/inferpipe/internal/ticket"
	"github.com/cambricon/inferpipe/internal/transhelper"
	"github.com/cambricon/inferpipe/internal/waitcard"
	"github.com/cambricon/inferpipe/pkg/lifecycle"
)

// Frame re-exports the pipeline's identity record so callers never need to
// import internal/frame directly.
type Frame = frame.Frame

// WaitingCard re-exports the per-frame completion signal FeedData returns.
type WaitingCard = waitcard.Card

// resource names used consistently for logging and metrics tags.
const (
	resCPUInput  = "cpu_input"
	resMLUInput  = "mlu_input"
	resMLUOutput = "mlu_output"
	resCPUOutput = "cpu_output"
)

// Engine owns one instance each of the four IOResources, the batching
// stage, the four batching-done stages, the worker pool, and the
// trans-data helper, and exposes the pipeline's programmatic boundary:
// FeedData in, WaitingCards out.
type Engine struct {
	cfg Config

	cpuInput  *resource.IOResource
	mluInput  *resource.IOResource
	mluOutput *resource.IOResource
	cpuOutput *resource.IOResource

	batching *stage.Batching
	h2d      *stage.H2D
	infer    *stage.Infer
	d2h      *stage.D2H
	post     *stage.Postprocess

	pool   *enginepool.Pool
	helper *transhelper.Helper

	met *infermetrics.Registry
	log *zap.Logger

	mu      sync.Mutex
	pending stage.BatchingDoneInput

	lifecycle *lifecycle.Once
}

// Option configures an Engine at construction.
type Option func(*engineOptions)

type engineOptions struct {
	log         *zap.Logger
	metricScope *metrics.Scope
	consumer    transhelper.Consumer
	clock       stage.Clock
}

// WithLogger attaches the zap.Logger every stage and the engine itself log
// through. Defaults to zap.NewNop().
func WithLogger(log *zap.Logger) Option {
	return func(o *engineOptions) { o.log = log }
}

// WithMetricsScope attaches the go.uber.org/net/metrics scope the engine's
// resources, pool and helper report counters/gauges against. Defaults to
// nil, which disables metrics entirely.
func WithMetricsScope(scope *metrics.Scope) Option {
	return func(o *engineOptions) { o.metricScope = scope }
}

// WithConsumer overrides the trans-data helper's downstream consumer
// (invoked once per frame, in submission order, once that frame's pipeline
// has fully completed). Defaults to a consumer that logs one line per
// frame.
func WithConsumer(c transhelper.Consumer) Option {
	return func(o *engineOptions) { o.consumer = c }
}

// WithClock overrides every stage's simulated accelerator-latency clock.
// Intended for tests; production callers should leave this unset to use
// stage.RealClock.
func WithClock(c stage.Clock) Option {
	return func(o *engineOptions) { o.clock = c }
}

// New constructs and starts an Engine: it allocates the four IOResources,
// wires the batching and batching-done stages over them, starts the pool
// with cfg.PoolWorkers workers, and starts the trans-data helper. The
// returned Engine is immediately ready for FeedData.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := &engineOptions{log: zap.NewNop(), clock: stage.RealClock}
	for _, opt := range opts {
		opt(o)
	}
	if o.consumer == nil {
		o.consumer = defaultConsumer(o.log)
	}

	met := infermetrics.New(o.metricScope)
	resOpts := func(name string) []ticket.Option {
		return []ticket.Option{ticket.WithLogger(o.log), ticket.WithMetrics(met, name)}
	}

	e := &Engine{
		cfg:       cfg,
		cpuInput:  resource.NewIOResource(cfg.BatchSize, resOpts(resCPUInput)...),
		mluInput:  resource.NewIOResource(cfg.BatchSize, resOpts(resMLUInput)...),
		mluOutput: resource.NewIOResource(cfg.BatchSize, resOpts(resMLUOutput)...),
		cpuOutput: resource.NewIOResource(cfg.BatchSize, resOpts(resCPUOutput)...),
		met:       met,
		log:       o.log,
		lifecycle: lifecycle.NewOnce(),
	}

	e.batching = stage.NewBatching(cfg.BatchSize, e.cpuInput,
		stage.WithBatchingClock(o.clock), stage.WithBatchingLogger(o.log))
	e.h2d = stage.NewH2D(cfg.BatchSize, e.cpuInput, e.mluInput,
		stage.WithH2DClock(o.clock), stage.WithH2DLogger(o.log))
	e.infer = stage.NewInfer(cfg.BatchSize, e.mluInput, e.mluOutput,
		stage.WithInferClock(o.clock), stage.WithInferLogger(o.log))
	e.d2h = stage.NewD2H(cfg.BatchSize, e.mluOutput, e.cpuOutput,
		stage.WithD2HClock(o.clock), stage.WithD2HLogger(o.log))
	e.post = stage.NewPostprocess(cfg.BatchSize, e.cpuOutput,
		stage.WithPostprocessClock(o.clock), stage.WithPostprocessLogger(o.log))

	e.pool = enginepool.New(o.log, enginepool.WithMetrics(met))
	if err := e.pool.Init(cfg.PoolWorkers); err != nil {
		return nil, fmt.Errorf("inferpipe: starting pool: %w", err)
	}

	e.helper = transhelper.New(cfg.BatchSize, o.consumer, o.log,
		transhelper.WithMetrics(met),
		transhelper.WithQueueMultiple(cfg.HelperQueueMultiplier))

	if err := e.lifecycle.Start(nil); err != nil {
		return nil, err
	}
	return e, nil
}

func defaultConsumer(log *zap.Logger) transhelper.Consumer {
	return func(f frame.Frame) {
		log.Debug("frame completed pipeline",
			zap.Int64("timestamp", f.TimeStamp),
			zap.Int("batchIndex", f.BatchIndex),
			zap.Int("itemIndex", f.ItemIndex))
	}
}

// FeedData assigns f a slot in the current batch, submits its per-frame
// batching task to the pool, and, once BatchSize frames have been
// accepted, runs BatchingDone across the four stages, submitting every
// resulting task. It returns a WaitingCard that resolves once f has
// traversed the entire pipeline. FeedData is safe for concurrent callers,
// but batch-slot assignment and trans-helper ordering are only meaningful
// with a single submitter.
func (e *Engine) FeedData(f frame.Frame) (*WaitingCard, error) {
	card, done := waitcard.New(1)

	e.mu.Lock()
	bTask := e.batching.Batching(f)
	e.pending = append(e.pending, stage.FrameCard{Frame: f, Done: done})

	var flushed stage.BatchingDoneInput
	if len(e.pending) == e.cfg.BatchSize {
		flushed = e.pending
		e.pending = nil
		e.batching.Reset()
	}
	e.mu.Unlock()

	e.pool.Submit(bTask)

	if flushed != nil {
		e.batchingDone(flushed)
	}

	e.helper.SubmitData(transhelper.Item{Frame: f, Card: card})
	return card, nil
}

func (e *Engine) batchingDone(batch stage.BatchingDoneInput) {
	e.pool.SubmitAll(e.h2d.BatchingDone(batch))
	e.pool.SubmitAll(e.infer.BatchingDone(batch))
	e.pool.SubmitAll(e.d2h.BatchingDone(batch))
	e.pool.SubmitAll(e.post.BatchingDone(batch))
}

// SetErrorHandler registers the sink invoked for task panics and failures
// across the whole pipeline. Task errors are best-effort and never abort
// the pipeline.
func (e *Engine) SetErrorHandler(fn enginepool.ErrorHandler) {
	e.pool.SetErrorHandler(fn)
}

// Helper returns the trans-data helper so callers can reconfigure or
// inspect the downstream hand-off queue directly.
func (e *Engine) Helper() *transhelper.Helper { return e.helper }

// Close destroys the pool (joining its workers) and then closes the
// trans-data helper (joining its drain goroutine), and combines any errors
// from both. Close is idempotent; a second call is a no-op that returns the first
// call's error.
func (e *Engine) Close() error {
	return e.lifecycle.Stop(func() error {
		var errs []error
		if err := e.pool.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("destroying pool: %w", err))
		}
		if err := e.helper.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing trans-data helper: %w", err))
		}
		return multierr.Combine(errs...)
	})
}
