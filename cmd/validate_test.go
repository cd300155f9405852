package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/blackmouse572/skin-doctor/internal/facequality"
	"github.com/blackmouse572/skin-doctor/internal/landmarker/landmarkertest"
)

func frontalFace() facequality.LandmarkSet {
	set := make(facequality.LandmarkSet, 478)
	for i := range set {
		set[i] = facequality.Landmark{X: 0.5, Y: 0.5}
	}
	set[10] = facequality.Landmark{X: 0.5, Y: 0.2}
	set[152] = facequality.Landmark{X: 0.5, Y: 0.8}
	set[234] = facequality.Landmark{X: 0.3, Y: 0.5}
	set[454] = facequality.Landmark{X: 0.7, Y: 0.5}
	set[33] = facequality.Landmark{X: 0.375, Y: 0.4}
	set[263] = facequality.Landmark{X: 0.625, Y: 0.4}
	return set
}

func writePNG(t *testing.T, dir, name string, level uint8) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	img.SetGray(0, 0, color.Gray{Y: level})

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	return path
}

func decodeResults(t *testing.T, out *bytes.Buffer) []fileValidation {
	t.Helper()
	var results []fileValidation
	dec := json.NewDecoder(out)
	for dec.More() {
		var result fileValidation
		if err := dec.Decode(&result); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		results = append(results, result)
	}
	return results
}

func TestValidateFilesAcceptsGoodPhotos(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writePNG(t, dir, "a.png", 128),
		writePNG(t, dir, "b.png", 140),
	}
	detector := &landmarkertest.StaticDetector{Faces: []facequality.LandmarkSet{frontalFace()}}
	validator := facequality.NewValidator(detector, zap.NewNop())

	var out bytes.Buffer
	if err := validateFiles(context.Background(), &out, validator, zap.NewNop(), paths); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	results := decodeResults(t, &out)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, result := range results {
		if result.File != paths[i] {
			t.Fatalf("result %d out of order: %s", i, result.File)
		}
		if result.Validation == nil || !result.Validation.IsValid {
			t.Fatalf("expected %s to be valid, got %+v", result.File, result.Validation)
		}
	}
}

func TestValidateFilesReportsFailures(t *testing.T) {
	dir := t.TempDir()
	dark := writePNG(t, dir, "dark.png", 10)
	missing := filepath.Join(dir, "missing.png")
	detector := &landmarkertest.StaticDetector{}
	validator := facequality.NewValidator(detector, zap.NewNop())

	var out bytes.Buffer
	err := validateFiles(context.Background(), &out, validator, zap.NewNop(), []string{dark, missing})
	if err == nil || !strings.Contains(err.Error(), "2 of 2") {
		t.Fatalf("expected both photos to fail, got %v", err)
	}

	results := decodeResults(t, &out)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Validation == nil || results[0].Validation.Issues[0] != "No face detected in the image" {
		t.Fatalf("unexpected result for dark photo: %+v", results[0])
	}
	if results[1].Error == "" || results[1].Validation != nil {
		t.Fatalf("expected read error for missing photo, got %+v", results[1])
	}
}
