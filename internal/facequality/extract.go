package facequality

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// LightingThresholds bound the target brightness band [Min, Max] and the
// outer warning band [WarningMin, WarningMax].
type LightingThresholds struct {
	Min, Max               float64
	WarningMin, WarningMax float64
}

// AngleThresholds bound the ear depth difference.
type AngleThresholds struct {
	Perfect    float64
	Acceptable float64
}

// DistanceThresholds bound the normalized outer-eye distance.
type DistanceThresholds struct {
	TooClose float64
	TooFar   float64
}

// Thresholds groups every fixed limit of the quality checks.
type Thresholds struct {
	Lighting LightingThresholds
	Angle    AngleThresholds
	Distance DistanceThresholds
}

// QualityThresholds are the limits used by the extractors and the status evaluator.
var QualityThresholds = Thresholds{
	Lighting: LightingThresholds{Min: 60, Max: 200, WarningMin: 40, WarningMax: 220},
	Angle:    AngleThresholds{Perfect: 0.05, Acceptable: 0.1},
	Distance: DistanceThresholds{TooClose: 0.4, TooFar: 0.15},
}

// Sentinels attached to degraded readings. Extractors never return them as
// errors; they are carried in the reading so callers can tell a fallback value
// from a measured one.
var (
	ErrEmptyFrame      = errors.New("facequality: frame has no pixels")
	ErrEmptyRegion     = errors.New("facequality: face region is empty")
	ErrLandmarkMissing = errors.New("facequality: required landmark missing")
)

// BrightnessReading is the mean perceived luminance (0-255) of the face region.
type BrightnessReading struct {
	Value float64
	Err   error
}

// Degraded reports whether Value is a fallback rather than a measurement.
func (r BrightnessReading) Degraded() bool { return r.Err != nil }

// AngleReading is the ear depth difference used as a yaw proxy.
type AngleReading struct {
	IsForward bool
	Angle     float64
	Err       error
}

// Degraded reports whether the reading is a fallback.
func (r AngleReading) Degraded() bool { return r.Err != nil }

// DistanceReading is the normalized outer-eye distance used as a camera distance proxy.
type DistanceReading struct {
	IsTooFar   bool
	IsTooClose bool
	Size       float64
	Err        error
}

// Degraded reports whether the reading is a fallback.
func (r DistanceReading) Degraded() bool { return r.Err != nil }

// MeasureBrightness crops the landmarks' bounding box out of frame and averages
// 0.299R + 0.587G + 0.114B over it. Failures yield a zero value with Err set.
func MeasureBrightness(frame image.Image, set LandmarkSet) (reading BrightnessReading) {
	defer func() {
		if r := recover(); r != nil {
			reading = BrightnessReading{Err: fmt.Errorf("%w: %v", ErrEmptyRegion, r)}
		}
	}()

	if frame == nil {
		return BrightnessReading{Err: ErrEmptyFrame}
	}
	bounds := frame.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return BrightnessReading{Err: ErrEmptyFrame}
	}
	if len(set) == 0 {
		return BrightnessReading{Err: ErrEmptyRegion}
	}

	minX, maxX := set[0].X, set[0].X
	minY, maxY := set[0].Y, set[0].Y
	for _, l := range set[1:] {
		minX = math.Min(minX, l.X)
		maxX = math.Max(maxX, l.X)
		minY = math.Min(minY, l.Y)
		maxY = math.Max(maxY, l.Y)
	}
	for _, v := range []float64{minX, maxX, minY, maxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return BrightnessReading{Err: ErrEmptyRegion}
		}
	}

	x := int(minX * float64(width))
	y := int(minY * float64(height))
	w := int((maxX - minX) * float64(width))
	h := int((maxY - minY) * float64(height))
	if w <= 0 || h <= 0 {
		return BrightnessReading{Err: ErrEmptyRegion}
	}

	region := imaging.Crop(frame, image.Rect(x, y, x+w, y+h).Add(bounds.Min))
	rb := region.Bounds()
	if rb.Empty() {
		return BrightnessReading{Err: ErrEmptyRegion}
	}

	var sum float64
	rowLen := rb.Dx() * 4
	for row := 0; row < rb.Dy(); row++ {
		pix := region.Pix[row*region.Stride : row*region.Stride+rowLen]
		for i := 0; i < len(pix); i += 4 {
			sum += 0.299*float64(pix[i]) + 0.587*float64(pix[i+1]) + 0.114*float64(pix[i+2])
		}
	}
	return BrightnessReading{Value: sum / float64(rb.Dx()*rb.Dy())}
}

// MeasureAngle compares the depth of both ears. A symmetric head yields a value near zero.
func MeasureAngle(set LandmarkSet, topology Topology) AngleReading {
	left, okLeft := topology.Lookup(set, LeftEar)
	right, okRight := topology.Lookup(set, RightEar)
	if !okLeft || !okRight {
		return AngleReading{IsForward: false, Angle: 0, Err: ErrLandmarkMissing}
	}

	diff := math.Abs(left.Z - right.Z)
	return AngleReading{
		IsForward: diff < QualityThresholds.Angle.Perfect,
		Angle:     diff,
	}
}

// MeasureDistance measures the outer eye corners in normalized coordinates.
// Missing landmarks fall back to "too far" so capture stays blocked.
func MeasureDistance(set LandmarkSet, topology Topology) DistanceReading {
	left, okLeft := topology.Lookup(set, LeftEyeOuter)
	right, okRight := topology.Lookup(set, RightEyeOuter)
	if !okLeft || !okRight {
		return DistanceReading{IsTooFar: true, IsTooClose: false, Size: 0, Err: ErrLandmarkMissing}
	}

	eyeDistance := math.Hypot(right.X-left.X, right.Y-left.Y)
	return DistanceReading{
		IsTooFar:   eyeDistance < QualityThresholds.Distance.TooFar,
		IsTooClose: eyeDistance > QualityThresholds.Distance.TooClose,
		Size:       eyeDistance,
	}
}
