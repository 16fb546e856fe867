package face

import (
	"fmt"
	"image"

	"go.uber.org/zap"

	"faceattend/internal/logger"
)

// Normalizer equalizes lighting and returns the grayscale result.
type Normalizer interface {
	Normalize(img image.Image) (*image.Gray, error)
}

// BoxDetector finds face bounding boxes in a grayscale image.
type BoxDetector interface {
	DetectFaces(gray *image.Gray) ([]image.Rectangle, error)
}

// Locator crops the largest face out of an image.
type Locator struct {
	normalizer Normalizer
	detector   BoxDetector
	log        *zap.Logger
}

// NewLocator wires a lighting normalizer and a face box detector.
func NewLocator(normalizer Normalizer, detector BoxDetector, log *zap.Logger) *Locator {
	return &Locator{normalizer: normalizer, detector: detector, log: logger.OrNop(log)}
}

// Locate returns the grayscale region of the largest detected face, unresized.
// ErrNoFace is returned when the detector finds nothing.
func (l *Locator) Locate(img image.Image) (*image.Gray, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrInvalidImage
	}
	gray, err := l.normalizer.Normalize(img)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	boxes, err := l.detector.DetectFaces(gray)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	box, ok := Largest(boxes, gray.Bounds())
	if !ok {
		return nil, ErrNoFace
	}
	l.log.Debug("face located", zap.Int("candidates", len(boxes)), zap.Stringer("box", box))
	return Crop(gray, box), nil
}

// Largest picks the box with the biggest area inside bounds. Ties keep the
// detector's order.
func Largest(boxes []image.Rectangle, bounds image.Rectangle) (image.Rectangle, bool) {
	var (
		best     image.Rectangle
		bestArea int
		found    bool
	)
	for _, b := range boxes {
		b = b.Intersect(bounds)
		if b.Empty() {
			continue
		}
		if area := b.Dx() * b.Dy(); !found || area > bestArea {
			best, bestArea, found = b, area, true
		}
	}
	return best, found
}
