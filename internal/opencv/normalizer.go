// Package opencv implements the face capabilities on top of OpenCV through
// gocv: lighting normalization, Haar cascade face boxes and the LBPH
// recognizer.
package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"faceattend/internal/face"
)

// Normalizer applies CLAHE to the Lab lightness channel and returns the
// grayscale result.
type Normalizer struct {
	clipLimit float64
	tileGrid  image.Point
}

// NewNormalizer builds a normalizer; zero values use clip limit 3.0 and an
// 8x8 tile grid.
func NewNormalizer(clipLimit float64, tileGrid int) *Normalizer {
	if clipLimit <= 0 {
		clipLimit = 3.0
	}
	if tileGrid <= 0 {
		tileGrid = 8
	}
	return &Normalizer{clipLimit: clipLimit, tileGrid: image.Pt(tileGrid, tileGrid)}
}

// Normalize implements face.Normalizer.
func (n *Normalizer) Normalize(img image.Image) (*image.Gray, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer src.Close()
	if src.Empty() {
		return nil, face.ErrInvalidImage
	}

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(src, &lab, gocv.ColorBGRToLab)

	channels := gocv.Split(lab)
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()

	clahe := gocv.NewCLAHEWithParams(n.clipLimit, n.tileGrid)
	defer clahe.Close()
	lightness := gocv.NewMat()
	clahe.Apply(channels[0], &lightness)
	channels[0].Close()
	channels[0] = lightness

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(channels, &merged)

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(merged, &bgr, gocv.ColorLabToBGR)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)

	out, err := gray.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert mat: %w", err)
	}
	return face.ToGray(out), nil
}
