// Package checkin turns a burst of kiosk frames into an attendance punch:
// liveness, face crop, recognition, then the debounced ledger.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"faceattend/internal/face"
	"faceattend/internal/identity"
	"faceattend/internal/liveness"
	"faceattend/internal/logger"
	"faceattend/internal/metrics"
	"faceattend/internal/recognition"
)

// Outcomes, also used as metric labels.
const (
	OutcomeNoImages   = "no_images"
	OutcomeNotLive    = "not_live"
	OutcomeNoFace     = "no_face"
	OutcomeNotTrained = "not_trained"
	OutcomeUnknown    = "unknown"
	OutcomeRecognized = "recognized"
)

// Messages returned to kiosks.
const (
	MsgInvalidImage = "Invalid image data"
	MsgNoFace       = "No face detected"
	MsgNotTrained   = "Model not trained yet."
	MsgUnknown      = "User not recognized. Try getting closer or better light."
	livenessSuffix  = ". Please blink/open eyes."
)

// LivenessChecker decides whether a burst shows a blink.
type LivenessChecker interface {
	Evaluate(ctx context.Context, frames []image.Image) (liveness.Result, error)
}

// Locator crops the main face out of an image.
type Locator interface {
	Locate(img image.Image) (*image.Gray, error)
}

// Predictor classifies a face crop.
type Predictor interface {
	Predict(crop *image.Gray) (recognition.Prediction, error)
}

// Directory resolves classifier labels to identities.
type Directory interface {
	Get(ctx context.Context, id int) (identity.Identity, bool, error)
}

// Ledger records debounced attendance events.
type Ledger interface {
	LogEvent(ctx context.Context, identityID int, name, eventType string) (bool, error)
}

// Result is the outcome of one identification attempt.
type Result struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
	Outcome    string   `json:"-"`
	IdentityID int      `json:"user_id,omitempty"`
	Name       string   `json:"user,omitempty"`
	Distance   *float64 `json:"confidence,omitempty"`
	Recorded   bool     `json:"recorded"`
}

// Service runs the identify pipeline.
type Service struct {
	liveness  LivenessChecker
	locator   Locator
	predictor Predictor
	directory Directory
	ledger    Ledger
	metrics   *metrics.Metrics
	log       *zap.Logger
}

// NewService wires the pipeline stages.
func NewService(lv LivenessChecker, loc Locator, pred Predictor, dir Directory, ledger Ledger, log *zap.Logger) *Service {
	return &Service{
		liveness:  lv,
		locator:   loc,
		predictor: pred,
		directory: dir,
		ledger:    ledger,
		log:       logger.OrNop(log),
	}
}

// WithMetrics records liveness, identify and attendance metrics.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// Identify checks the burst for a blink, recognizes the most open frame and
// logs an eventType punch for the matched identity. Biometric failures come
// back as unsuccessful results; errors are reserved for storage failures.
func (s *Service) Identify(ctx context.Context, frames []image.Image, eventType string) (Result, error) {
	res, err := s.identify(ctx, frames, eventType)
	if err == nil {
		s.metrics.Identify(res.Outcome)
	}
	return res, err
}

func (s *Service) identify(ctx context.Context, frames []image.Image, eventType string) (Result, error) {
	if len(frames) == 0 {
		return fail(OutcomeNoImages, MsgInvalidImage), nil
	}

	live, err := s.liveness.Evaluate(ctx, frames)
	if err != nil {
		return Result{}, err
	}
	s.metrics.Liveness(live.IsLive)
	if !live.IsLive {
		return fail(OutcomeNotLive, live.Reason+livenessSuffix), nil
	}

	crop, err := s.locator.Locate(live.BestFrame)
	if err != nil {
		if !errors.Is(err, face.ErrNoFace) {
			s.log.Warn("face crop failed", zap.Error(err))
		}
		return fail(OutcomeNoFace, MsgNoFace), nil
	}

	pred, err := s.predictor.Predict(crop)
	if errors.Is(err, recognition.ErrNotTrained) {
		return fail(OutcomeNotTrained, MsgNotTrained), nil
	}
	if err != nil {
		s.log.Warn("prediction failed", zap.Error(err))
		return fail(OutcomeUnknown, MsgUnknown), nil
	}
	distance := pred.Distance
	if !pred.Known {
		s.log.Debug("face not recognized", zap.Int("label", pred.Label), zap.Float64("distance", pred.Distance))
		res := fail(OutcomeUnknown, MsgUnknown)
		res.Distance = &distance
		return res, nil
	}

	ident, ok, err := s.directory.Get(ctx, pred.Label)
	if err != nil {
		return Result{}, fmt.Errorf("lookup identity: %w", err)
	}
	if !ok {
		s.log.Warn("model label has no identity", zap.Int("label", pred.Label))
		res := fail(OutcomeUnknown, MsgUnknown)
		res.Distance = &distance
		return res, nil
	}

	recorded, err := s.ledger.LogEvent(ctx, ident.ID, ident.Name, eventType)
	if err != nil {
		return Result{}, fmt.Errorf("log attendance: %w", err)
	}
	s.metrics.Attendance(recorded)

	msg := fmt.Sprintf("Punched %s for %s", eventType, ident.Name)
	if !recorded {
		msg = fmt.Sprintf("Already Punched %s recently, %s", eventType, ident.Name)
	}
	s.log.Info("identified",
		zap.Int("identity_id", ident.ID),
		zap.String("type", eventType),
		zap.Float64("distance", distance),
		zap.Bool("recorded", recorded))
	return Result{
		Success:    true,
		Message:    msg,
		Outcome:    OutcomeRecognized,
		IdentityID: ident.ID,
		Name:       ident.Name,
		Distance:   &distance,
		Recorded:   recorded,
	}, nil
}

func fail(outcome, msg string) Result {
	return Result{Outcome: outcome, Message: msg}
}
