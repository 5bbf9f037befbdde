package stage

import "time"

// Clock abstracts the simulated accelerator/transfer latency each stage
// incurs while holding its resource tickets. Production wiring uses
// realClock; tests inject a fake that returns immediately so the
// concurrency behavior under test isn't at the mercy of wall-clock sleeps.
type Clock interface {
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock is the production Clock, backed by time.Sleep.
var RealClock Clock = realClock{}
