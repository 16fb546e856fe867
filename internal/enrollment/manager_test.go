package enrollment

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/face"
	"faceattend/internal/identity"
	"faceattend/internal/queue"
	"faceattend/internal/recognition"
	"faceattend/internal/samples"
	"faceattend/internal/store"
)

// widthLocator finds a face only in images wider than one pixel.
type widthLocator struct{}

func (widthLocator) Locate(img image.Image) (*image.Gray, error) {
	if img.Bounds().Dx() <= 1 {
		return nil, face.ErrNoFace
	}
	return face.ToGray(img), nil
}

// nopEngine trains instantly and always predicts its first label.
type nopEngine struct{ label int }

func (e *nopEngine) Train(s []recognition.Sample) error {
	e.label = s[0].Label
	return nil
}
func (e *nopEngine) Predict(*image.Gray) (int, float64, error) { return e.label, 0, nil }
func (e *nopEngine) Save(string) error                        { return nil }
func (e *nopEngine) Load(string) error                        { return nil }

type countingTrainer struct {
	mu    sync.Mutex
	calls int
	last  []recognition.Sample
	err   error
}

func (c *countingTrainer) Train(s []recognition.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.last = s
	return c.err
}

type memQueue struct {
	jobs []queue.Job
	err  error
}

func (q *memQueue) Publish(_ context.Context, job queue.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type fixture struct {
	registry *identity.Registry
	samples  *samples.FS
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	backend, err := store.NewJSONFile(filepath.Join(dir, "data.json"))
	require.NoError(t, err)
	fs, err := samples.NewFS(filepath.Join(dir, "faces"), nil)
	require.NoError(t, err)
	return fixture{registry: identity.NewRegistry(store.New(backend)), samples: fs}
}

func frames(detectable, blank int) []image.Image {
	var out []image.Image
	for i := 0; i < detectable; i++ {
		out = append(out, image.NewGray(image.Rect(0, 0, 8, 8)))
	}
	for i := 0; i < blank; i++ {
		out = append(out, image.NewGray(image.Rect(0, 0, 1, 1)))
	}
	return out
}

func TestEnrollTrainsClassifier(t *testing.T) {
	f := newFixture(t)
	clf := recognition.NewClassifier(func() recognition.Engine { return &nopEngine{} }, recognition.Options{})
	m := NewManager(f.registry, widthLocator{}, f.samples, clf, nil)

	imgs := frames(3, 2)
	imgs[0], imgs[3] = imgs[3], imgs[0]
	res, err := m.Enroll(context.Background(), "Alice", imgs)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 3, res.SamplesSaved)
	assert.Equal(t, 1, res.IdentityID)

	alice, ok, err := f.registry.Get(context.Background(), res.IdentityID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alice", alice.Name)

	assert.Contains(t, clf.Labels(), res.IdentityID)
	assert.True(t, clf.Trained())
}

func TestEnrollRetrainsOnEverySample(t *testing.T) {
	f := newFixture(t)
	trainer := &countingTrainer{}
	m := NewManager(f.registry, widthLocator{}, f.samples, trainer, nil)
	ctx := context.Background()

	_, err := m.Enroll(ctx, "Alice", frames(2, 0))
	require.NoError(t, err)
	_, err = m.Enroll(ctx, "Bob", frames(3, 0))
	require.NoError(t, err)

	assert.Equal(t, 2, trainer.calls)
	require.Len(t, trainer.last, 5)
	labels := map[int]int{}
	for _, s := range trainer.last {
		labels[s.Label]++
	}
	assert.Equal(t, map[int]int{1: 2, 2: 3}, labels)
}

func TestEnrollWithoutFacesKeepsIdentity(t *testing.T) {
	f := newFixture(t)
	trainer := &countingTrainer{}
	m := NewManager(f.registry, widthLocator{}, f.samples, trainer, nil)

	res, err := m.Enroll(context.Background(), "Ghost", frames(0, 4))
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, MsgNoFaces, res.Message)
	assert.Zero(t, trainer.calls)

	list, err := f.registry.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ghost", list[0].Name)
}

func TestEnrollRejectsEmptyInput(t *testing.T) {
	f := newFixture(t)
	m := NewManager(f.registry, widthLocator{}, f.samples, &countingTrainer{}, nil)

	res, err := m.Enroll(context.Background(), "Alice", nil)
	require.NoError(t, err)
	assert.Equal(t, MsgNoImages, res.Message)

	res, err = m.Enroll(context.Background(), "   ", frames(1, 0))
	require.NoError(t, err)
	assert.Equal(t, MsgNameRequired, res.Message)

	list, err := f.registry.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEnrollQueuesTraining(t *testing.T) {
	f := newFixture(t)
	trainer := &countingTrainer{}
	q := &memQueue{}
	m := NewManager(f.registry, widthLocator{}, f.samples, trainer, nil).WithQueue(q)

	res, err := m.Enroll(context.Background(), "Alice", frames(2, 0))
	require.NoError(t, err)

	assert.True(t, res.Queued)
	assert.Zero(t, trainer.calls)
	require.Len(t, q.jobs, 1)
	assert.Equal(t, queue.KindRetrain, q.jobs[0].Kind)
	assert.Equal(t, res.IdentityID, q.jobs[0].IdentityID)
}

func TestEnrollQueueFailure(t *testing.T) {
	f := newFixture(t)
	m := NewManager(f.registry, widthLocator{}, f.samples, &countingTrainer{}, nil).
		WithQueue(&memQueue{err: errors.New("redis down")})

	res, err := m.Enroll(context.Background(), "Alice", frames(1, 0))
	require.Error(t, err)
	assert.Equal(t, 1, res.SamplesSaved)
}

func TestRetrainSkipsUnknownIdentities(t *testing.T) {
	f := newFixture(t)
	trainer := &countingTrainer{}
	m := NewManager(f.registry, widthLocator{}, f.samples, trainer, nil)
	ctx := context.Background()

	_, err := f.samples.Save(ctx, 9, image.NewGray(image.Rect(0, 0, 2, 2)))
	require.NoError(t, err)

	n, err := m.Retrain(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, trainer.calls)

	_, err = m.Enroll(ctx, "Alice", frames(1, 0))
	require.NoError(t, err)
	require.Len(t, trainer.last, 1)
	assert.Equal(t, 1, trainer.last[0].Label)
}

func TestRetrainPropagatesTrainerError(t *testing.T) {
	f := newFixture(t)
	trainer := &countingTrainer{err: errors.New("boom")}
	m := NewManager(f.registry, widthLocator{}, f.samples, trainer, nil)

	_, err := m.Enroll(context.Background(), "Alice", frames(1, 0))
	assert.ErrorContains(t, err, "boom")
}
