package facequality

import (
	_ "embed"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Landmark is one normalized facial point. X and Y are fractions of the frame
// width and height; Z is relative depth in the detection model's units.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// LandmarkSet holds every landmark reported for a single face, in model topology order.
type LandmarkSet []Landmark

// At returns the landmark at index i, or false when the set is too short.
func (s LandmarkSet) At(i int) (Landmark, bool) {
	if i < 0 || i >= len(s) {
		return Landmark{}, false
	}
	return s[i], true
}

// LandmarkName identifies a semantic facial feature independent of model topology.
type LandmarkName string

const (
	LeftEar       LandmarkName = "left_ear"
	RightEar      LandmarkName = "right_ear"
	LeftEyeOuter  LandmarkName = "left_eye_outer"
	RightEyeOuter LandmarkName = "right_eye_outer"
)

var requiredLandmarks = []LandmarkName{LeftEar, RightEar, LeftEyeOuter, RightEyeOuter}

//go:embed topology.yaml
var defaultTopologyYAML []byte

// Topology maps semantic landmark names to indices of one model's output.
type Topology struct {
	Model   string               `yaml:"model"`
	Indices map[LandmarkName]int `yaml:"landmarks"`
}

// Lookup resolves a named landmark inside set.
func (t Topology) Lookup(set LandmarkSet, name LandmarkName) (Landmark, bool) {
	idx, ok := t.Indices[name]
	if !ok {
		return Landmark{}, false
	}
	return set.At(idx)
}

var defaultTopology = sync.OnceValue(func() Topology {
	topology, err := ParseTopology(defaultTopologyYAML)
	if err != nil {
		panic("failed to parse embedded topology.yaml: " + err.Error())
	}
	return topology
})

// DefaultTopology returns the MediaPipe Face Mesh table.
func DefaultTopology() Topology {
	return defaultTopology()
}

// ParseTopology decodes a YAML topology table and checks that every landmark
// used by the quality checks is present.
func ParseTopology(data []byte) (Topology, error) {
	var topology Topology
	if err := yaml.Unmarshal(data, &topology); err != nil {
		return Topology{}, fmt.Errorf("decode topology: %w", err)
	}
	for _, name := range requiredLandmarks {
		idx, ok := topology.Indices[name]
		if !ok {
			return Topology{}, fmt.Errorf("topology %q: missing landmark %s", topology.Model, name)
		}
		if idx < 0 {
			return Topology{}, fmt.Errorf("topology %q: negative index %d for %s", topology.Model, idx, name)
		}
	}
	return topology, nil
}

// LoadTopology reads a topology table from path. An empty path yields the default table.
func LoadTopology(path string) (Topology, error) {
	if path == "" {
		return DefaultTopology(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Topology{}, fmt.Errorf("read topology %s: %w", path, err)
	}
	return ParseTopology(data)
}
