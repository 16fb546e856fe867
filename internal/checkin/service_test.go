package checkin

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/face"
	"faceattend/internal/identity"
	"faceattend/internal/liveness"
	"faceattend/internal/metrics"
	"faceattend/internal/recognition"
)

type stubLiveness struct {
	res liveness.Result
	err error
}

func (s stubLiveness) Evaluate(_ context.Context, frames []image.Image) (liveness.Result, error) {
	if s.res.IsLive && s.res.BestFrame == nil {
		s.res.BestFrame = frames[len(frames)-1]
	}
	return s.res, s.err
}

type stubLocator struct{ err error }

func (s stubLocator) Locate(img image.Image) (*image.Gray, error) {
	if s.err != nil {
		return nil, s.err
	}
	return face.ToGray(img), nil
}

type stubPredictor struct {
	pred recognition.Prediction
	err  error
}

func (s stubPredictor) Predict(*image.Gray) (recognition.Prediction, error) { return s.pred, s.err }

type mapDirectory map[int]identity.Identity

func (d mapDirectory) Get(_ context.Context, id int) (identity.Identity, bool, error) {
	ident, ok := d[id]
	return ident, ok, nil
}

type scriptedLedger struct {
	answers []bool
	calls   []string
	err     error
}

func (l *scriptedLedger) LogEvent(_ context.Context, id int, name, eventType string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.calls = append(l.calls, name+"/"+eventType)
	ok := l.answers[0]
	l.answers = l.answers[1:]
	return ok, nil
}

var (
	live    = stubLiveness{res: liveness.Result{IsLive: true}}
	alice   = mapDirectory{1: {ID: 1, Name: "Alice"}}
	matched = stubPredictor{pred: recognition.Prediction{Label: 1, Distance: 42.5, Known: true}}
)

func burst() []image.Image {
	return []image.Image{
		image.NewGray(image.Rect(0, 0, 4, 4)),
		image.NewGray(image.Rect(0, 0, 4, 4)),
	}
}

func TestIdentifyPunches(t *testing.T) {
	ledger := &scriptedLedger{answers: []bool{true, false}}
	svc := NewService(live, stubLocator{}, matched, alice, ledger, nil)
	ctx := context.Background()

	res, err := svc.Identify(ctx, burst(), "in")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Recorded)
	assert.Equal(t, "Punched in for Alice", res.Message)
	assert.Equal(t, 1, res.IdentityID)
	require.NotNil(t, res.Distance)
	assert.Equal(t, 42.5, *res.Distance)

	res, err = svc.Identify(ctx, burst(), "in")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Recorded)
	assert.Equal(t, "Already Punched in recently, Alice", res.Message)

	assert.Equal(t, []string{"Alice/in", "Alice/in"}, ledger.calls)
}

func TestIdentifyFailures(t *testing.T) {
	notLive := stubLiveness{res: liveness.Result{Reason: liveness.NoFaceReason}}

	tests := []struct {
		name      string
		liveness  LivenessChecker
		locator   Locator
		predictor Predictor
		directory Directory
		frames    []image.Image
		outcome   string
		message   string
	}{
		{
			name: "no frames", liveness: live, locator: stubLocator{}, predictor: matched, directory: alice,
			outcome: OutcomeNoImages, message: MsgInvalidImage,
		},
		{
			name: "no blink", liveness: notLive, locator: stubLocator{}, predictor: matched, directory: alice,
			frames: burst(), outcome: OutcomeNotLive, message: "no face detected in any frame. Please blink/open eyes.",
		},
		{
			name: "no face in best frame", liveness: live, locator: stubLocator{err: face.ErrNoFace}, predictor: matched,
			directory: alice, frames: burst(), outcome: OutcomeNoFace, message: MsgNoFace,
		},
		{
			name: "untrained", liveness: live, locator: stubLocator{}, directory: alice,
			predictor: stubPredictor{err: recognition.ErrNotTrained},
			frames:    burst(), outcome: OutcomeNotTrained, message: MsgNotTrained,
		},
		{
			name: "over threshold", liveness: live, locator: stubLocator{}, directory: alice,
			predictor: stubPredictor{pred: recognition.Prediction{Label: 1, Distance: 70}},
			frames:    burst(), outcome: OutcomeUnknown, message: MsgUnknown,
		},
		{
			name: "label without identity", liveness: live, locator: stubLocator{}, directory: mapDirectory{},
			predictor: matched, frames: burst(), outcome: OutcomeUnknown, message: MsgUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &scriptedLedger{}
			svc := NewService(tt.liveness, tt.locator, tt.predictor, tt.directory, ledger, nil)

			res, err := svc.Identify(context.Background(), tt.frames, "out")
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.message, res.Message)
			assert.Empty(t, ledger.calls)
		})
	}
}

func TestIdentifyStorageErrorPropagates(t *testing.T) {
	ledger := &scriptedLedger{err: errors.New("disk full")}
	svc := NewService(live, stubLocator{}, matched, alice, ledger, nil)

	_, err := svc.Identify(context.Background(), burst(), "in")
	assert.ErrorContains(t, err, "disk full")
}

func TestIdentifyContextErrorPropagates(t *testing.T) {
	svc := NewService(stubLiveness{err: context.Canceled}, stubLocator{}, matched, alice, &scriptedLedger{}, nil)

	_, err := svc.Identify(context.Background(), burst(), "in")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIdentifyRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := NewService(live, stubLocator{}, matched, alice, &scriptedLedger{answers: []bool{true}}, nil).
		WithMetrics(metrics.New(reg))

	_, err := svc.Identify(context.Background(), burst(), "in")
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "faceattend_identify_total", "faceattend_liveness_total", "faceattend_attendance_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
