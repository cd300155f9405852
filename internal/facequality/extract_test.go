package facequality

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasureBrightnessUniformFrame(t *testing.T) {
	for _, level := range []uint8{0, 35, 128, 255} {
		reading := MeasureBrightness(grayFrame(200, 100, level), faceSet(0.25, 0))
		require.NoError(t, reading.Err)
		assert.InDelta(t, float64(level), reading.Value, 0.01)
	}
}

func TestMeasureBrightnessUsesFaceRegionOnly(t *testing.T) {
	frame := grayFrame(100, 100, 0)
	// Bright patch covering the face bounding box (x 30..70, y 20..80).
	for y := 20; y < 80; y++ {
		for x := 30; x < 70; x++ {
			frame.Set(x, y, color.RGBA{R: 150, G: 150, B: 150, A: 255})
		}
	}

	reading := MeasureBrightness(frame, faceSet(0.25, 0))
	require.NoError(t, reading.Err)
	assert.InDelta(t, 150, reading.Value, 0.5)
}

func TestMeasureBrightnessWeightsChannels(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			frame.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	set := LandmarkSet{{X: 0, Y: 0}, {X: 1, Y: 1}}

	reading := MeasureBrightness(frame, set)
	require.NoError(t, reading.Err)
	assert.InDelta(t, 0.299*255, reading.Value, 0.01)
}

func TestMeasureBrightnessDegrades(t *testing.T) {
	tests := []struct {
		name  string
		frame image.Image
		set   LandmarkSet
		want  error
	}{
		{name: "nil frame", frame: nil, set: faceSet(0.25, 0), want: ErrEmptyFrame},
		{name: "zero width frame", frame: image.NewRGBA(image.Rect(0, 0, 0, 10)), set: faceSet(0.25, 0), want: ErrEmptyFrame},
		{name: "no landmarks", frame: grayFrame(10, 10, 100), set: nil, want: ErrEmptyRegion},
		{name: "degenerate box", frame: grayFrame(10, 10, 100), set: LandmarkSet{{X: 0.5, Y: 0.5}}, want: ErrEmptyRegion},
		{name: "box outside frame", frame: grayFrame(10, 10, 100), set: LandmarkSet{{X: 2, Y: 2}, {X: 3, Y: 3}}, want: ErrEmptyRegion},
		{name: "nan coordinate", frame: grayFrame(10, 10, 100), set: LandmarkSet{{X: math.NaN(), Y: 0}, {X: 1, Y: 1}}, want: ErrEmptyRegion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading := MeasureBrightness(tt.frame, tt.set)
			assert.True(t, reading.Degraded())
			assert.ErrorIs(t, reading.Err, tt.want)
			assert.Zero(t, reading.Value)
		})
	}
}

func TestMeasureBrightnessMonotonic(t *testing.T) {
	set := faceSet(0.25, 0)
	previous := -1.0
	for level := 0; level <= 255; level += 15 {
		reading := MeasureBrightness(grayFrame(64, 64, uint8(level)), set)
		require.NoError(t, reading.Err)
		assert.GreaterOrEqual(t, reading.Value, previous)
		previous = reading.Value
	}
}

func TestMeasureAngle(t *testing.T) {
	topology := DefaultTopology()

	forward := MeasureAngle(faceSet(0.25, 0.02), topology)
	require.NoError(t, forward.Err)
	assert.True(t, forward.IsForward)
	assert.InDelta(t, 0.02, forward.Angle, 1e-9)

	turned := MeasureAngle(faceSet(0.25, -0.12), topology)
	assert.False(t, turned.IsForward)
	assert.InDelta(t, 0.12, turned.Angle, 1e-9)

	boundary := MeasureAngle(faceSet(0.25, 0.05), topology)
	assert.False(t, boundary.IsForward)
}

func TestMeasureAngleMissingLandmarks(t *testing.T) {
	reading := MeasureAngle(make(LandmarkSet, 100), DefaultTopology())
	assert.True(t, reading.Degraded())
	assert.ErrorIs(t, reading.Err, ErrLandmarkMissing)
	assert.False(t, reading.IsForward)
	assert.Zero(t, reading.Angle)
}

func TestMeasureDistance(t *testing.T) {
	topology := DefaultTopology()

	tests := []struct {
		name     string
		eyes     float64
		tooClose bool
		tooFar   bool
	}{
		{name: "good", eyes: 0.25},
		{name: "too close", eyes: 0.5, tooClose: true},
		{name: "too far", eyes: 0.1, tooFar: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading := MeasureDistance(faceSet(tt.eyes, 0), topology)
			require.NoError(t, reading.Err)
			assert.InDelta(t, tt.eyes, reading.Size, 1e-9)
			assert.Equal(t, tt.tooClose, reading.IsTooClose)
			assert.Equal(t, tt.tooFar, reading.IsTooFar)
		})
	}
}

func TestMeasureDistanceBoundsAreInclusive(t *testing.T) {
	topology := DefaultTopology()
	set := faceSet(0.25, 0)

	set[33], set[263] = Landmark{X: 0, Y: 0.4}, Landmark{X: 0.4, Y: 0.4}
	reading := MeasureDistance(set, topology)
	assert.False(t, reading.IsTooClose)
	assert.False(t, reading.IsTooFar)

	set[33], set[263] = Landmark{X: 0, Y: 0.4}, Landmark{X: 0.15, Y: 0.4}
	reading = MeasureDistance(set, topology)
	assert.False(t, reading.IsTooClose)
	assert.False(t, reading.IsTooFar)
}

func TestMeasureDistanceMissingLandmarks(t *testing.T) {
	reading := MeasureDistance(LandmarkSet{{X: 0.1, Y: 0.1}}, DefaultTopology())
	assert.ErrorIs(t, reading.Err, ErrLandmarkMissing)
	assert.True(t, reading.IsTooFar)
	assert.False(t, reading.IsTooClose)
	assert.Zero(t, reading.Size)
}

func TestParseTopologyRejectsIncompleteTable(t *testing.T) {
	_, err := ParseTopology([]byte("model: partial\nlandmarks:\n  left_ear: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing landmark")

	_, err = ParseTopology([]byte("model: bad\nlandmarks:\n  left_ear: -1\n  right_ear: 2\n  left_eye_outer: 3\n  right_eye_outer: 4\n"))
	require.Error(t, err)
}

func TestLoadTopology(t *testing.T) {
	def, err := LoadTopology("")
	require.NoError(t, err)
	assert.Equal(t, 234, def.Indices[LeftEar])
	assert.Equal(t, 454, def.Indices[RightEar])
	assert.Equal(t, 33, def.Indices[LeftEyeOuter])
	assert.Equal(t, 263, def.Indices[RightEyeOuter])

	_, err = LoadTopology(t.TempDir() + "/missing.yaml")
	require.Error(t, err)
}
