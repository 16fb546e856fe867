package opencv

import (
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"

	"faceattend/internal/recognition"
)

// LBPHEngine is a local binary pattern histogram recognizer. Its distance is
// the chi-square histogram distance reported by OpenCV.
type LBPHEngine struct {
	rec *contrib.LBPHFaceRecognizer
}

// NewLBPHEngine returns an untrained engine; it satisfies recognition.EngineFactory.
func NewLBPHEngine() recognition.Engine {
	return &LBPHEngine{rec: contrib.NewLBPHFaceRecognizer()}
}

// Train implements recognition.Engine.
func (e *LBPHEngine) Train(samples []recognition.Sample) error {
	mats := make([]gocv.Mat, 0, len(samples))
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()
	labels := make([]int, 0, len(samples))
	for _, s := range samples {
		m, err := gocv.ImageGrayToMatGray(s.Image)
		if err != nil {
			return fmt.Errorf("convert sample for label %d: %w", s.Label, err)
		}
		mats = append(mats, m)
		labels = append(labels, s.Label)
	}
	e.rec.Train(mats, labels)
	return nil
}

// Predict implements recognition.Engine.
func (e *LBPHEngine) Predict(img *image.Gray) (int, float64, error) {
	m, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return 0, 0, fmt.Errorf("convert crop: %w", err)
	}
	defer m.Close()
	resp := e.rec.PredictExtendedResponse(m)
	return int(resp.Label), float64(resp.Confidence), nil
}

// Save implements recognition.Engine.
func (e *LBPHEngine) Save(path string) error {
	e.rec.SaveFile(path)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("model not written: %w", err)
	}
	return nil
}

// Load implements recognition.Engine.
func (e *LBPHEngine) Load(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	e.rec.LoadFile(path)
	return nil
}
