package facequality

import (
	"image"
	"image/color"
	"image/draw"
)

const meshSize = 478

// faceSet builds a full mesh centred in the frame. eyeDistance sets the outer
// eye corner spread and earDepth the depth difference between the ears.
func faceSet(eyeDistance, earDepth float64) LandmarkSet {
	set := make(LandmarkSet, meshSize)
	for i := range set {
		set[i] = Landmark{X: 0.5, Y: 0.5}
	}
	set[10] = Landmark{X: 0.5, Y: 0.2}
	set[152] = Landmark{X: 0.5, Y: 0.8}
	set[234] = Landmark{X: 0.3, Y: 0.5, Z: earDepth}
	set[454] = Landmark{X: 0.7, Y: 0.5}
	set[33] = Landmark{X: 0.5 - eyeDistance/2, Y: 0.4}
	set[263] = Landmark{X: 0.5 + eyeDistance/2, Y: 0.4}
	return set
}

func grayFrame(w, h int, level uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: level, G: level, B: level, A: 255}}, image.Point{}, draw.Src)
	return img
}
