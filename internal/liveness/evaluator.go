// Package liveness decides whether a burst of frames shows a live, blinking
// person rather than a photograph.
package liveness

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"faceattend/internal/face"
	"faceattend/internal/logger"
)

// NoFaceReason is reported when no frame produced an openness reading.
const NoFaceReason = "no face detected in any frame"

// LandmarkDetector returns the landmarks of the single face in img, or an
// error wrapping face.ErrNoFace when there is none.
type LandmarkDetector interface {
	DetectLandmarks(ctx context.Context, img image.Image) ([]Point, error)
}

// Config holds the blink thresholds and the eye landmark layout.
type Config struct {
	// ClosedThreshold must be undercut by the least open frame.
	ClosedThreshold float64
	// OpenThreshold must be exceeded by the most open frame.
	OpenThreshold float64
	LeftEye       EyeIndices
	RightEye      EyeIndices
}

// DefaultConfig returns the empirically tuned thresholds.
func DefaultConfig() Config {
	return Config{
		ClosedThreshold: 0.21,
		OpenThreshold:   0.23,
		LeftEye:         DefaultLeftEye,
		RightEye:        DefaultRightEye,
	}
}

// Result is the outcome of evaluating one burst.
type Result struct {
	IsLive bool
	Reason string
	// BestFrame is the most open frame; set only when IsLive.
	BestFrame image.Image
	BestIndex int
	// Openness holds one entry per input frame, nil where no reading was taken.
	Openness    []*float64
	MinOpenness float64
	MaxOpenness float64
	Readings    int
}

// Evaluator runs blink detection. It keeps no state between calls.
type Evaluator struct {
	detector LandmarkDetector
	cfg      Config
	log      *zap.Logger
}

// NewEvaluator creates an evaluator; zero thresholds or eye layouts fall back
// to DefaultConfig.
func NewEvaluator(detector LandmarkDetector, cfg Config, log *zap.Logger) *Evaluator {
	def := DefaultConfig()
	if cfg.ClosedThreshold == 0 {
		cfg.ClosedThreshold = def.ClosedThreshold
	}
	if cfg.OpenThreshold == 0 {
		cfg.OpenThreshold = def.OpenThreshold
	}
	if cfg.LeftEye == (EyeIndices{}) {
		cfg.LeftEye = def.LeftEye
	}
	if cfg.RightEye == (EyeIndices{}) {
		cfg.RightEye = def.RightEye
	}
	return &Evaluator{detector: detector, cfg: cfg, log: logger.OrNop(log)}
}

// Config returns the effective configuration.
func (e *Evaluator) Config() Config { return e.cfg }

// Evaluate measures eye openness on every frame and passes the burst only if
// it contains both a closed and an open reading. Frames without a face are
// skipped. The returned error is non-nil only when ctx is done.
func (e *Evaluator) Evaluate(ctx context.Context, frames []image.Image) (Result, error) {
	res := Result{Openness: make([]*float64, len(frames)), BestIndex: -1}

	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if frame == nil {
			continue
		}
		points, err := e.detector.DetectLandmarks(ctx, frame)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			if !errors.Is(err, face.ErrNoFace) {
				e.log.Warn("landmark detection failed", zap.Int("frame", i), zap.Error(err))
			}
			continue
		}
		v, ok := Openness(points, e.cfg.LeftEye, e.cfg.RightEye)
		if !ok {
			e.log.Debug("unusable eye landmarks", zap.Int("frame", i), zap.Int("points", len(points)))
			continue
		}
		res.Openness[i] = &v
		if res.Readings == 0 || v < res.MinOpenness {
			res.MinOpenness = v
		}
		if res.Readings == 0 || v > res.MaxOpenness {
			res.MaxOpenness = v
			res.BestIndex = i
		}
		res.Readings++
	}

	if res.Readings == 0 {
		res.Reason = NoFaceReason
		e.log.Info("liveness failed", zap.String("reason", res.Reason), zap.Int("frames", len(frames)))
		return res, nil
	}

	hasClosed := res.MinOpenness < e.cfg.ClosedThreshold
	hasOpen := res.MaxOpenness > e.cfg.OpenThreshold
	if hasClosed && hasOpen {
		res.IsLive = true
		res.Reason = "blink detected"
		res.BestFrame = frames[res.BestIndex]
		e.log.Info("liveness passed",
			zap.Float64("min", res.MinOpenness),
			zap.Float64("max", res.MaxOpenness),
			zap.Int("best_frame", res.BestIndex))
		return res, nil
	}

	res.Reason = fmt.Sprintf("blink not detected: min openness %.2f (need < %.2f), max openness %.2f (need > %.2f)",
		res.MinOpenness, e.cfg.ClosedThreshold, res.MaxOpenness, e.cfg.OpenThreshold)
	e.log.Info("liveness failed", zap.String("reason", res.Reason), zap.Int("readings", res.Readings))
	return res, nil
}
