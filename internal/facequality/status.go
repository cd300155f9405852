package facequality

import "fmt"

// Status is the categorical outcome of a single quality check.
type Status string

const (
	StatusChecking Status = "checking"
	StatusPerfect  Status = "perfect"
	StatusWarning  Status = "warning"
	StatusError    Status = "error"
)

// Check is the status of one quality check plus a user-facing message.
type Check struct {
	Status     Status   `json:"status"`
	Message    string   `json:"message"`
	Brightness *float64 `json:"brightness,omitempty"`
}

// DetectionStatus holds the four independent checks for one frame.
type DetectionStatus struct {
	Face     Check `json:"face"`
	Lighting Check `json:"lighting"`
	Angle    Check `json:"angle"`
	Distance Check `json:"distance"`
}

// NamedCheck pairs a check with its name, in display order.
type NamedCheck struct {
	Name  string
	Check Check
}

// Checks lists the four checks as face, lighting, angle, distance.
func (s DetectionStatus) Checks() []NamedCheck {
	return []NamedCheck{
		{Name: "face", Check: s.Face},
		{Name: "lighting", Check: s.Lighting},
		{Name: "angle", Check: s.Angle},
		{Name: "distance", Check: s.Distance},
	}
}

// EvaluatorInput is the subset of metrics the status rules depend on.
type EvaluatorInput struct {
	FaceCount  int
	Brightness float64
	Angle      float64
	IsTooClose bool
	IsTooFar   bool
}

const pendingFaceMessage = "Detecting face first..."

// Evaluate maps raw metrics to per-check statuses. Without a face, lighting,
// angle and distance are always reported as checking.
func Evaluate(in EvaluatorInput) DetectionStatus {
	if in.FaceCount <= 0 {
		pending := Check{Status: StatusChecking, Message: pendingFaceMessage}
		return DetectionStatus{
			Face:     evaluateFace(0),
			Lighting: pending,
			Angle:    pending,
			Distance: pending,
		}
	}

	return DetectionStatus{
		Face:     evaluateFace(in.FaceCount),
		Lighting: evaluateLighting(in.Brightness),
		Angle:    evaluateAngle(in.Angle),
		Distance: evaluateDistance(in.IsTooClose, in.IsTooFar),
	}
}

// AllChecksPass reports whether capture may proceed. A slight head turn
// (angle warning) is tolerated; nothing else is.
func AllChecksPass(status DetectionStatus, faceCount int) bool {
	return faceCount == 1 &&
		status.Lighting.Status == StatusPerfect &&
		status.Angle.Status != StatusError &&
		status.Distance.Status == StatusPerfect
}

func evaluateFace(faceCount int) Check {
	switch {
	case faceCount <= 0:
		return Check{Status: StatusError, Message: "No face detected"}
	case faceCount == 1:
		return Check{Status: StatusPerfect, Message: "Face detected"}
	default:
		return Check{Status: StatusWarning, Message: fmt.Sprintf("%d faces detected - show only one", faceCount)}
	}
}

func evaluateLighting(brightness float64) Check {
	t := QualityThresholds.Lighting
	check := Check{Brightness: &brightness}
	switch {
	case brightness < t.WarningMin:
		check.Status, check.Message = StatusError, "Too dark - move to brighter area"
	case brightness < t.Min:
		check.Status, check.Message = StatusWarning, "Slightly dark - increase lighting"
	case brightness > t.WarningMax:
		check.Status, check.Message = StatusError, "Too bright - reduce glare"
	case brightness > t.Max:
		check.Status, check.Message = StatusWarning, "Slightly bright - reduce light"
	default:
		check.Status, check.Message = StatusPerfect, "Lighting is perfect"
	}
	return check
}

func evaluateAngle(angle float64) Check {
	switch {
	case angle < QualityThresholds.Angle.Perfect:
		return Check{Status: StatusPerfect, Message: "Face straight ahead"}
	case angle < QualityThresholds.Angle.Acceptable:
		return Check{Status: StatusWarning, Message: "Slight angle - look straight"}
	default:
		return Check{Status: StatusError, Message: "Face turned - look straight at camera"}
	}
}

func evaluateDistance(isTooClose, isTooFar bool) Check {
	switch {
	case isTooClose:
		return Check{Status: StatusError, Message: "Too close - move back"}
	case isTooFar:
		return Check{Status: StatusError, Message: "Too far - move closer"}
	default:
		return Check{Status: StatusPerfect, Message: "Distance is good"}
	}
}
