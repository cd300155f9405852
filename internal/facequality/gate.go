package facequality

const (
	hintReady      = "All quality checks passed. Click to capture your photo."
	hintImprove    = "Follow the guidance above to improve photo quality."
	ungatedWarning = "Real-time quality checks couldn't load. You can still capture your photo, but quality validation won't be available."
)

// Guidance is one check that currently needs the user's attention.
type Guidance struct {
	Check   string `json:"check"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// GateDecision tells the capture surface whether the shutter may fire.
type GateDecision struct {
	CanCapture bool       `json:"can_capture"`
	Gated      bool       `json:"gated"`
	Guidance   []Guidance `json:"guidance,omitempty"`
	Hint       string     `json:"hint,omitempty"`
	Warning    string     `json:"warning,omitempty"`
}

// Gate decides whether capture is allowed. When the detector could not be
// loaded, capture is allowed without gating and a warning is attached.
func Gate(snapshot *Snapshot, detectorErr error) GateDecision {
	if detectorErr != nil {
		return GateDecision{CanCapture: true, Gated: false, Warning: ungatedWarning}
	}
	if snapshot == nil {
		snapshot = EmptySnapshot()
	}

	decision := GateDecision{Gated: true, CanCapture: snapshot.Metrics.AllChecksPass}
	for _, c := range snapshot.Status.Checks() {
		if c.Check.Status == StatusWarning || c.Check.Status == StatusError {
			decision.Guidance = append(decision.Guidance, Guidance{
				Check:   c.Name,
				Status:  c.Check.Status,
				Message: c.Check.Message,
			})
		}
	}
	if decision.CanCapture {
		decision.Hint = hintReady
	} else {
		decision.Hint = hintImprove
	}
	return decision
}
