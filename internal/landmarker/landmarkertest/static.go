// Package landmarkertest provides in-memory detectors for tests.
package landmarkertest

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/blackmouse572/skin-doctor/internal/facequality"
	"github.com/blackmouse572/skin-doctor/internal/landmarker"
)

// StaticDetector returns the same faces for every call and counts calls and releases.
type StaticDetector struct {
	Faces []facequality.LandmarkSet
	Err   error

	mu     sync.Mutex
	calls  int
	closed int
}

// DetectForFrame implements landmarker.VideoDetector.
func (d *StaticDetector) DetectForFrame(ctx context.Context, _ image.Image, _ time.Duration) ([]facequality.LandmarkSet, error) {
	return d.detect(ctx)
}

// DetectForImage implements landmarker.ImageDetector.
func (d *StaticDetector) DetectForImage(ctx context.Context, _ image.Image) ([]facequality.LandmarkSet, error) {
	return d.detect(ctx)
}

// Close records the release.
func (d *StaticDetector) Close() error {
	d.mu.Lock()
	d.closed++
	d.mu.Unlock()
	return nil
}

// Calls reports how many detections ran.
func (d *StaticDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Closed reports how many times Close was called.
func (d *StaticDetector) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *StaticDetector) detect(ctx context.Context) ([]facequality.LandmarkSet, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Faces, d.Err
}

// StaticLoader returns a Loader that always hands out detector.
func StaticLoader(detector landmarker.Detector) landmarker.Loader {
	return func(context.Context, landmarker.Options) (landmarker.Detector, error) {
		return detector, nil
	}
}
