package facequality

import (
	"image"
	"time"

	"go.uber.org/zap"
)

// Metrics are the raw numbers measured for one frame.
type Metrics struct {
	HasFace       bool    `json:"has_face"`
	FaceCount     int     `json:"face_count"`
	Brightness    float64 `json:"brightness"`
	Angle         float64 `json:"angle"`
	Distance      float64 `json:"distance"`
	IsForward     bool    `json:"is_forward"`
	IsTooClose    bool    `json:"is_too_close"`
	IsTooFar      bool    `json:"is_too_far"`
	AllChecksPass bool    `json:"all_checks_pass"`
}

// Snapshot pairs the metrics of one frame with their evaluated statuses.
// Snapshots are treated as immutable once published.
type Snapshot struct {
	Metrics Metrics         `json:"metrics"`
	Status  DetectionStatus `json:"status"`
}

// DetectionResult is what a landmark detector reports for one frame.
type DetectionResult struct {
	Faces     []LandmarkSet
	Timestamp time.Duration
}

// EmptySnapshot is published before the first frame has been analyzed.
func EmptySnapshot() *Snapshot {
	return WaitingSnapshot("Starting face detection...")
}

// WaitingSnapshot reports every check as pending with the given message.
func WaitingSnapshot(message string) *Snapshot {
	pending := Check{Status: StatusChecking, Message: message}
	return &Snapshot{
		Status: DetectionStatus{
			Face:     pending,
			Lighting: pending,
			Angle:    pending,
			Distance: pending,
		},
	}
}

// NoFaceSnapshot is the result for a frame without a usable face.
func NoFaceSnapshot() *Snapshot {
	return &Snapshot{Status: Evaluate(EvaluatorInput{FaceCount: 0})}
}

// Analyzer turns a detection result and its frame into a Snapshot.
type Analyzer struct {
	topology Topology
	logger   *zap.Logger
}

// NewAnalyzer builds an analyzer. A nil logger disables logging.
func NewAnalyzer(topology Topology, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topology.Indices == nil {
		topology = DefaultTopology()
	}
	return &Analyzer{topology: topology, logger: logger}
}

// Analyze measures the first detected face. It returns nil when the frame has
// no pixels, which callers treat as "nothing to publish" rather than a failure.
func (a *Analyzer) Analyze(result DetectionResult, frame image.Image) (snapshot *Snapshot) {
	if frame == nil {
		return nil
	}
	if b := frame.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("face analysis panicked", zap.Any("panic", r))
			snapshot = NoFaceSnapshot()
		}
	}()

	faceCount := len(result.Faces)
	if faceCount == 0 || len(result.Faces[0]) == 0 {
		return NoFaceSnapshot()
	}
	face := result.Faces[0]

	brightness := MeasureBrightness(frame, face)
	angle := MeasureAngle(face, a.topology)
	distance := MeasureDistance(face, a.topology)
	a.logDegraded(brightness.Err, angle.Err, distance.Err)

	status := Evaluate(EvaluatorInput{
		FaceCount:  faceCount,
		Brightness: brightness.Value,
		Angle:      angle.Angle,
		IsTooClose: distance.IsTooClose,
		IsTooFar:   distance.IsTooFar,
	})

	return &Snapshot{
		Metrics: Metrics{
			HasFace:       true,
			FaceCount:     faceCount,
			Brightness:    brightness.Value,
			Angle:         angle.Angle,
			Distance:      distance.Size,
			IsForward:     angle.IsForward,
			IsTooClose:    distance.IsTooClose,
			IsTooFar:      distance.IsTooFar,
			AllChecksPass: AllChecksPass(status, faceCount),
		},
		Status: status,
	}
}

func (a *Analyzer) logDegraded(errs ...error) {
	for _, err := range errs {
		if err != nil {
			a.logger.Debug("degraded face metric", zap.Error(err))
		}
	}
}
