package landmarker

import (
	"context"
	"errors"
	"image"
	"strings"
	"time"

	"github.com/blackmouse572/skin-doctor/internal/facequality"
)

// Delegate selects the inference backend of the landmark model.
type Delegate string

const (
	DelegateGPU Delegate = "GPU"
	DelegateCPU Delegate = "CPU"
)

// Mode selects between frame-by-frame tracking and independent stills.
type Mode string

const (
	ModeVideo Mode = "VIDEO"
	ModeImage Mode = "IMAGE"
)

// Options configures a detector when it is acquired.
type Options struct {
	NumFaces                   int      `json:"num_faces"`
	MinFaceDetectionConfidence float64  `json:"min_face_detection_confidence"`
	MinTrackingConfidence      float64  `json:"min_tracking_confidence,omitempty"`
	Delegate                   Delegate `json:"delegate"`
	Mode                       Mode     `json:"mode"`
}

// VideoOptions are used by the live detection loop.
func VideoOptions() Options {
	return Options{
		NumFaces:                   1,
		MinFaceDetectionConfidence: 0.5,
		MinTrackingConfidence:      0.5,
		Delegate:                   DelegateGPU,
		Mode:                       ModeVideo,
	}
}

// ImageOptions are used for uploaded photos. Two faces are requested so a
// second person in the photo can be reported.
func ImageOptions() Options {
	return Options{
		NumFaces:                   2,
		MinFaceDetectionConfidence: 0.6,
		Delegate:                   DelegateGPU,
		Mode:                       ModeImage,
	}
}

// VideoDetector detects faces in consecutive frames of one stream.
type VideoDetector interface {
	DetectForFrame(ctx context.Context, frame image.Image, ts time.Duration) ([]facequality.LandmarkSet, error)
}

// ImageDetector detects faces in a single still image.
type ImageDetector interface {
	DetectForImage(ctx context.Context, img image.Image) ([]facequality.LandmarkSet, error)
}

// Detector is an acquired model handle. Close releases it.
type Detector interface {
	VideoDetector
	ImageDetector
	Close() error
}

// Loader acquires a detector configured with opts. Loading may be slow.
type Loader func(ctx context.Context, opts Options) (Detector, error)

// ErrClosed is returned once a Manager has been closed.
var ErrClosed = errors.New("landmarker: closed")

// IsBenignROI reports whether err is the region-of-interest noise the model
// emits while a stream is still warming up. Such errors are not worth logging.
func IsBenignROI(err error) bool {
	return err != nil && strings.Contains(err.Error(), "ROI")
}
