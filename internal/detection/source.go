// Package detection runs continuous face-quality detection over a live frame source.
package detection

import (
	"context"
	"image"
	"time"

	"golang.org/x/time/rate"
)

// Source is a live video feed.
type Source interface {
	// Dimensions reports the current frame size. Zero means the stream has no frames yet.
	Dimensions() (width, height int)
	// HasEnoughData reports whether a current frame can be read.
	HasEnoughData() bool
	// Frame returns the most recent frame.
	Frame() image.Image
	// Ready is closed once the source has produced its first frame.
	Ready() <-chan struct{}
}

// Scheduler repeatedly invokes step until ctx is cancelled. Steps never overlap.
type Scheduler interface {
	Run(ctx context.Context, step func(context.Context))
}

// DefaultFPS is the detection rate used when no scheduler is configured.
const DefaultFPS = 30

// IntervalScheduler runs steps at a fixed rate.
type IntervalScheduler struct {
	fps float64
}

// NewIntervalScheduler returns a scheduler that runs at most fps steps per second.
func NewIntervalScheduler(fps float64) *IntervalScheduler {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &IntervalScheduler{fps: fps}
}

// Run implements Scheduler.
func (s *IntervalScheduler) Run(ctx context.Context, step func(context.Context)) {
	limiter := rate.NewLimiter(rate.Every(time.Duration(float64(time.Second)/s.fps)), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		step(ctx)
	}
}

// ManualScheduler runs one step per Tick call.
type ManualScheduler struct {
	ticks chan chan struct{}
}

// NewManualScheduler returns a scheduler driven by Tick.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{ticks: make(chan chan struct{})}
}

// Run implements Scheduler.
func (s *ManualScheduler) Run(ctx context.Context, step func(context.Context)) {
	for {
		select {
		case <-ctx.Done():
			return
		case done := <-s.ticks:
			step(ctx)
			close(done)
		}
	}
}

// Tick runs a single step and waits for it to finish. It returns false if ctx
// ends before a running loop picks the tick up.
func (s *ManualScheduler) Tick(ctx context.Context) bool {
	done := make(chan struct{})
	select {
	case s.ticks <- done:
	case <-ctx.Done():
		return false
	}
	<-done
	return true
}
