// Package enrollment registers identities from face bursts and keeps the
// recognition model trained on every stored sample.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"faceattend/internal/identity"
	"faceattend/internal/logger"
	"faceattend/internal/metrics"
	"faceattend/internal/queue"
	"faceattend/internal/recognition"
)

// Messages returned in failed results.
const (
	MsgNoImages     = "No valid images received"
	MsgNoFaces      = "No valid faces detected in samples."
	MsgNameRequired = "Name is required"
)

// Locator crops the main face out of an image.
type Locator interface {
	Locate(img image.Image) (*image.Gray, error)
}

// SampleStore persists crops per identity.
type SampleStore interface {
	Save(ctx context.Context, identityID int, crop *image.Gray) (string, error)
	All(ctx context.Context) ([]recognition.Sample, error)
}

// Trainer rebuilds the recognition model.
type Trainer interface {
	Train(samples []recognition.Sample) error
}

// IdentityStore creates and lists identities.
type IdentityStore interface {
	Create(ctx context.Context, name string) (identity.Identity, error)
	List(ctx context.Context) ([]identity.Identity, error)
}

// Publisher hands retraining to a worker.
type Publisher interface {
	Publish(ctx context.Context, job queue.Job) error
}

// Result reports an enrollment outcome.
type Result struct {
	Success      bool   `json:"success"`
	IdentityID   int    `json:"user_id,omitempty"`
	SamplesSaved int    `json:"faces_saved"`
	Queued       bool   `json:"training_queued,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Manager runs enrollment and retraining.
type Manager struct {
	identities IdentityStore
	locator    Locator
	samples    SampleStore
	trainer    Trainer
	publisher  Publisher
	metrics    *metrics.Metrics
	log        *zap.Logger
	now        func() time.Time

	trainMu sync.Mutex
}

// NewManager wires the enrollment collaborators. Retraining runs inline until
// a publisher is set with WithQueue.
func NewManager(identities IdentityStore, locator Locator, samples SampleStore, trainer Trainer, log *zap.Logger) *Manager {
	return &Manager{
		identities: identities,
		locator:    locator,
		samples:    samples,
		trainer:    trainer,
		log:        logger.OrNop(log),
		now:        time.Now,
	}
}

// WithQueue makes Enroll publish a retrain job instead of training inline.
func (m *Manager) WithQueue(p Publisher) *Manager {
	m.publisher = p
	return m
}

// WithMetrics records enrollment and training metrics.
func (m *Manager) WithMetrics(mt *metrics.Metrics) *Manager {
	m.metrics = mt
	return m
}

// Enroll creates an identity named name, stores a crop for every image with a
// detectable face and retrains. The identity is kept even when no crop
// succeeds.
func (m *Manager) Enroll(ctx context.Context, name string, images []image.Image) (Result, error) {
	if len(images) == 0 {
		m.metrics.Enrollment(false)
		return Result{Message: MsgNoImages}, nil
	}

	ident, err := m.identities.Create(ctx, name)
	if errors.Is(err, identity.ErrNameRequired) {
		m.metrics.Enrollment(false)
		return Result{Message: MsgNameRequired}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("create identity: %w", err)
	}

	saved := 0
	for i, img := range images {
		crop, err := m.locator.Locate(img)
		if err != nil {
			m.log.Debug("enrollment frame skipped", zap.Int("identity_id", ident.ID), zap.Int("frame", i), zap.Error(err))
			continue
		}
		if _, err := m.samples.Save(ctx, ident.ID, crop); err != nil {
			return Result{}, fmt.Errorf("save sample: %w", err)
		}
		saved++
	}

	if saved == 0 {
		m.log.Warn("enrollment produced no samples", zap.Int("identity_id", ident.ID), zap.Int("images", len(images)))
		m.metrics.Enrollment(false)
		return Result{IdentityID: ident.ID, Message: MsgNoFaces}, nil
	}

	res := Result{Success: true, IdentityID: ident.ID, SamplesSaved: saved}
	if m.publisher != nil {
		job := queue.Job{Kind: queue.KindRetrain, Reason: "enroll", IdentityID: ident.ID, EnqueuedAt: m.now()}
		if err := m.publisher.Publish(ctx, job); err != nil {
			return res, fmt.Errorf("queue retrain: %w", err)
		}
		res.Queued = true
	} else if _, err := m.Retrain(ctx); err != nil {
		return res, err
	}

	m.log.Info("identity enrolled",
		zap.Int("identity_id", ident.ID),
		zap.String("name", ident.Name),
		zap.Int("samples", saved),
		zap.Bool("queued", res.Queued))
	m.metrics.Enrollment(true)
	return res, nil
}

// Retrain rebuilds the model from every stored sample whose identity exists.
// It returns the number of samples used; zero means there was nothing to
// train and the model was left untouched.
func (m *Manager) Retrain(ctx context.Context) (int, error) {
	m.trainMu.Lock()
	defer m.trainMu.Unlock()

	idents, err := m.identities.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list identities: %w", err)
	}
	known := make(map[int]struct{}, len(idents))
	for _, id := range idents {
		known[id.ID] = struct{}{}
	}

	all, err := m.samples.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("load samples: %w", err)
	}
	samples := all[:0]
	for _, s := range all {
		if _, ok := known[s.Label]; ok {
			samples = append(samples, s)
		}
	}
	if len(samples) == 0 {
		m.log.Info("no data to train")
		return 0, nil
	}

	start := m.now()
	if err := m.trainer.Train(samples); err != nil {
		return 0, fmt.Errorf("train: %w", err)
	}
	elapsed := m.now().Sub(start)
	m.metrics.Training(elapsed)
	m.log.Info("model retrained", zap.Int("samples", len(samples)), zap.Duration("took", elapsed))
	return len(samples), nil
}
