package facequality

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateAllowsCaptureWhenChecksPass(t *testing.T) {
	snapshot := newTestAnalyzer().Analyze(
		DetectionResult{Faces: []LandmarkSet{faceSet(0.25, 0)}},
		grayFrame(100, 100, 128),
	)

	decision := Gate(snapshot, nil)
	assert.True(t, decision.CanCapture)
	assert.True(t, decision.Gated)
	assert.Empty(t, decision.Guidance)
	assert.Equal(t, "All quality checks passed. Click to capture your photo.", decision.Hint)
	assert.Empty(t, decision.Warning)
}

func TestGateListsGuidanceInOrder(t *testing.T) {
	snapshot := &Snapshot{Status: Evaluate(EvaluatorInput{FaceCount: 2, Brightness: 30, Angle: 0.02, IsTooFar: true})}

	decision := Gate(snapshot, nil)
	assert.False(t, decision.CanCapture)
	require.Len(t, decision.Guidance, 3)
	assert.Equal(t, "face", decision.Guidance[0].Check)
	assert.Equal(t, "lighting", decision.Guidance[1].Check)
	assert.Equal(t, "Too dark - move to brighter area", decision.Guidance[1].Message)
	assert.Equal(t, "distance", decision.Guidance[2].Check)
	assert.Equal(t, "Follow the guidance above to improve photo quality.", decision.Hint)
}

func TestGateBeforeFirstSnapshot(t *testing.T) {
	decision := Gate(nil, nil)
	assert.False(t, decision.CanCapture)
	assert.True(t, decision.Gated)
	assert.Empty(t, decision.Guidance)
}

func TestGateFallsBackWhenDetectorUnavailable(t *testing.T) {
	decision := Gate(NoFaceSnapshot(), errors.New("model load failed"))
	assert.True(t, decision.CanCapture)
	assert.False(t, decision.Gated)
	assert.Contains(t, decision.Warning, "Real-time quality checks couldn't load")
}
