package stage

import (
	"github.com/cambricon/inferpipe/internal/frame"
	"github.com/cambricon/inferpipe/internal/waitcard"
)

// FrameCard pairs a frame with the completion guard its post-processing
// task must release once it finishes.
type FrameCard struct {
	Frame frame.Frame
	Done  *waitcard.AutoSetDone
}

// BatchingDoneInput is one full batch's worth of frames awaiting the
// H2D/Infer/D2H/Postprocess hand-off.
type BatchingDoneInput []FrameCard
