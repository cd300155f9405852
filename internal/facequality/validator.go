package facequality

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"
)

// maxFacesPerImage is the number of faces a valid upload may contain.
const maxFacesPerImage = 1

// MaxConcurrentValidations caps detector calls in flight for one ValidateAll.
const MaxConcurrentValidations = 4

// ImageDetector finds faces in a single still image.
type ImageDetector interface {
	DetectForImage(ctx context.Context, img image.Image) ([]LandmarkSet, error)
}

// ImageValidation is the outcome of checking one uploaded photo. Issues are
// problems likely to hurt analysis; warnings are advisory.
type ImageValidation struct {
	IsValid    bool     `json:"is_valid"`
	HasFace    bool     `json:"has_face"`
	FaceCount  int      `json:"face_count"`
	Brightness float64  `json:"brightness"`
	Issues     []string `json:"issues"`
	Warnings   []string `json:"warnings"`
}

// Validator checks uploaded photos before they are sent for analysis.
type Validator struct {
	detector ImageDetector
	logger   *zap.Logger
}

// NewValidator creates a validator backed by detector.
func NewValidator(detector ImageDetector, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{detector: detector, logger: logger}
}

// Validate reports face presence and lighting quality for img. A detector
// failure is reported as a warning and leaves the image valid, so the user is
// never blocked by the checker itself.
func (v *Validator) Validate(ctx context.Context, img image.Image) ImageValidation {
	result := ImageValidation{IsValid: true, Issues: []string{}, Warnings: []string{}}

	faces, err := v.detect(ctx, img)
	if err != nil {
		v.logger.Warn("image validation failed", zap.Error(err))
		result.Warnings = append(result.Warnings, "Unable to validate image quality automatically")
		return result
	}

	result.FaceCount = len(faces)
	result.HasFace = result.FaceCount > 0

	switch {
	case result.FaceCount == 0:
		result.Issues = append(result.Issues, "No face detected in the image")
		result.IsValid = false
	case result.FaceCount > maxFacesPerImage:
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d faces detected - only one person should be in the photo", result.FaceCount))
		result.IsValid = false
	}

	if !result.HasFace {
		return result
	}

	reading := MeasureBrightness(img, faces[0])
	if reading.Degraded() {
		v.logger.Debug("brightness measurement degraded", zap.Error(reading.Err))
	}
	result.Brightness = reading.Value

	t := QualityThresholds.Lighting
	switch {
	case reading.Value < t.WarningMin:
		result.Issues = append(result.Issues, "Image is too dark - lighting quality may affect analysis accuracy")
	case reading.Value < t.Min:
		result.Warnings = append(result.Warnings, "Image is slightly dark - consider retaking in better lighting")
	case reading.Value > t.WarningMax:
		result.Issues = append(result.Issues, "Image is too bright or has glare - may affect analysis accuracy")
	case reading.Value > t.Max:
		result.Warnings = append(result.Warnings, "Image is slightly bright - consider reducing direct light")
	}
	return result
}

// ValidateAll validates images concurrently, at most MaxConcurrentValidations
// at a time. Results keep input order.
func (v *Validator) ValidateAll(ctx context.Context, images []image.Image) []ImageValidation {
	results := make([]ImageValidation, len(images))
	semaphore := make(chan struct{}, MaxConcurrentValidations)
	var wg sync.WaitGroup
	for i, img := range images {
		wg.Add(1)
		go func(i int, img image.Image) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results[i] = v.Validate(ctx, img)
		}(i, img)
	}
	wg.Wait()
	return results
}

func (v *Validator) detect(ctx context.Context, img image.Image) (faces []LandmarkSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panicked: %v", r)
		}
	}()

	if img == nil {
		return nil, errors.New("no image provided")
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrEmptyFrame
	}
	if v.detector == nil {
		return nil, errors.New("image detector unavailable")
	}
	return v.detector.DetectForImage(ctx, img)
}
