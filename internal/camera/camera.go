// Package camera turns browser camera-access failures into user guidance.
package camera

// Failure names reported by the browser media API.
const (
	NotFound        = "NotFoundError"
	NotAllowed      = "NotAllowedError"
	NotReadable     = "NotReadableError"
	Overconstrained = "OverconstrainedError"
	TypeError       = "TypeError"

	unknownCode    = "Unknown"
	defaultMessage = "Unable to access camera"
)

// AccessFailure is a classified camera failure. Recovery is always left to the
// user: CanRetry and CanSwitchDevice only say which actions to offer.
type AccessFailure struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	CanRetry        bool   `json:"can_retry"`
	CanSwitchDevice bool   `json:"can_switch_device"`
}

// Classify maps a failure name and raw message to a user-facing failure.
func Classify(name, message string) AccessFailure {
	failure := AccessFailure{Code: name, CanRetry: true}
	if failure.Code == "" {
		failure.Code = unknownCode
	}

	switch name {
	case NotFound:
		failure.Message = "No camera device found. Please connect a camera and try again."
	case NotAllowed:
		failure.Message = "Camera access denied. Please allow camera access in your browser settings."
	case NotReadable:
		failure.Message = "Camera is already in use by another application. Please close other apps using the camera."
		failure.CanSwitchDevice = true
	case Overconstrained:
		failure.Message = "Selected camera device is not compatible. Try selecting a different camera."
		failure.CanSwitchDevice = true
	case TypeError:
		failure.Message = "Camera configuration error. Please try again."
	default:
		failure.Message = message
		if failure.Message == "" {
			failure.Message = defaultMessage
		}
	}
	return failure
}
