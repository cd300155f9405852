package stream

import (
	"github.com/blackmouse572/skin-doctor/internal/camera"
	"github.com/blackmouse572/skin-doctor/internal/detection"
	"github.com/blackmouse572/skin-doctor/internal/facequality"
)

// Outbound message types.
const (
	TypeSnapshot    = "snapshot"
	TypeStatus      = "status"
	TypeCameraError = "camera_error"
	TypeError       = "error"
)

// Inbound control message types. Frames travel as binary messages.
const (
	ControlCameraError = "camera_error"
	ControlRetry       = "retry"
)

// StatusPayload mirrors detection.Status for clients.
type StatusPayload struct {
	State         detection.State `json:"state"`
	IsInitialized bool            `json:"is_initialized"`
	Error         string          `json:"error,omitempty"`
}

// Message is every JSON message the server sends.
type Message struct {
	Type        string                    `json:"type"`
	SessionID   string                    `json:"session_id,omitempty"`
	Snapshot    *facequality.Snapshot     `json:"snapshot,omitempty"`
	Gate        *facequality.GateDecision `json:"gate,omitempty"`
	Status      *StatusPayload            `json:"status,omitempty"`
	CameraError *camera.AccessFailure     `json:"camera_error,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

// Control is a JSON text message sent by the client.
type Control struct {
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`
}

func statusPayload(status detection.Status) *StatusPayload {
	payload := &StatusPayload{State: status.State, IsInitialized: status.IsInitialized}
	if status.Err != nil {
		payload.Error = status.Err.Error()
	}
	return payload
}

func snapshotMessage(update detection.Update) Message {
	var detectorErr error
	if update.Status.State == detection.StateFailed {
		detectorErr = update.Status.Err
	}
	gate := facequality.Gate(update.Snapshot, detectorErr)
	return Message{Type: TypeSnapshot, Snapshot: update.Snapshot, Gate: &gate}
}
