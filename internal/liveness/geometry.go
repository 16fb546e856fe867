package liveness

import "math"

// Point is a landmark coordinate. Units are whatever the landmark detector
// emits; the openness ratio is scale free.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EyeIndices addresses the six eye landmarks in anatomical order:
// outer corner, two upper lid points, inner corner, two lower lid points.
type EyeIndices [6]int

// Face mesh (478 point) indices.
var (
	DefaultLeftEye  = EyeIndices{362, 385, 387, 263, 373, 380}
	DefaultRightEye = EyeIndices{33, 160, 158, 133, 153, 144}
)

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// EyeAspectRatio computes (|p2-p6| + |p3-p5|) / (2|p1-p4|). It reports false
// when the eye corners coincide.
func EyeAspectRatio(eye [6]Point) (float64, bool) {
	horizontal := dist(eye[0], eye[3])
	if horizontal == 0 || math.IsNaN(horizontal) {
		return 0, false
	}
	return (dist(eye[1], eye[5]) + dist(eye[2], eye[4])) / (2 * horizontal), true
}

func (idx EyeIndices) pick(points []Point) ([6]Point, bool) {
	var eye [6]Point
	for i, j := range idx {
		if j < 0 || j >= len(points) {
			return eye, false
		}
		eye[i] = points[j]
	}
	return eye, true
}

// Openness averages the eye aspect ratio of both eyes.
func Openness(points []Point, left, right EyeIndices) (float64, bool) {
	l, ok := left.pick(points)
	if !ok {
		return 0, false
	}
	r, ok := right.pick(points)
	if !ok {
		return 0, false
	}
	le, ok := EyeAspectRatio(l)
	if !ok {
		return 0, false
	}
	re, ok := EyeAspectRatio(r)
	if !ok {
		return 0, false
	}
	return (le + re) / 2, true
}
